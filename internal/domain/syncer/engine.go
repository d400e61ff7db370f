package syncer

import (
	"bytes"
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/vetledger/vetledger/internal/domain/ledger"
	"github.com/vetledger/vetledger/internal/platform/apperr"
	"github.com/vetledger/vetledger/internal/platform/db"
	"github.com/vetledger/vetledger/internal/platform/transport"
)

const (
	stateLastSyncedRoot     = "last_synced_root"
	stateEncountersLastSync = "encounters_last_sync"
)

// Result summarizes one completed sync run.
type Result struct {
	Pushed     int
	RemoteRoot [32]byte
	RemoteN    uint64
}

// Engine drives the client side of the sync exchange. Commits may land
// between phases; the engine works from the snapshot taken during Hello and
// picks up later commits on the next run.
type Engine struct {
	store  *db.Store
	ledger *ledger.Service
	tr     transport.Transport
	log    zerolog.Logger
}

func NewEngine(store *db.Store, led *ledger.Service, tr transport.Transport, log zerolog.Logger) *Engine {
	return &Engine{store: store, ledger: led, tr: tr, log: log}
}

// Sync pushes every leaf the remote is missing and records the acknowledged
// root as the sync watermark. The context is honored between phases; an
// interrupted run leaves the watermark untouched and is safe to repeat.
func (e *Engine) Sync(ctx context.Context) (*Result, error) {
	leaves, err := e.ledger.AllLeaves()
	if err != nil {
		return nil, err
	}
	hashes := make([][32]byte, len(leaves))
	byHash := make(map[[32]byte]*ledger.Leaf, len(leaves))
	for i, leaf := range leaves {
		hashes[i] = leaf.Hash
		byHash[leaf.Hash] = leaf
	}
	localRoot := ledger.RootFromLeaves(hashes)
	localN := uint64(len(hashes))

	reply, err := e.hello(ctx, localRoot, localN, hashes)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, apperr.Wrap(err, apperr.IO, "sync canceled after hello")
	}

	res := &Result{RemoteRoot: localRoot, RemoteN: localN}
	if len(reply.Missing) == 0 {
		// Remote already holds everything we have.
		if err := e.advanceWatermark(localRoot); err != nil {
			return nil, err
		}
		return res, nil
	}

	batch, err := collectMissing(reply.Missing, byHash)
	if err != nil {
		return nil, err
	}
	ack, err := e.nodes(ctx, batch)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, apperr.Wrap(err, apperr.IO, "sync canceled after nodes")
	}

	if err := e.verifyAck(ack, localRoot, localN); err != nil {
		return nil, err
	}
	if err := e.advanceWatermark(localRoot); err != nil {
		return nil, err
	}
	res.Pushed = len(batch)
	e.log.Info().Int("pushed", res.Pushed).Uint64("n", localN).Msg("sync completed")
	return res, nil
}

// HasUnsyncedChanges reports whether the current root differs from the last
// acknowledged root. A log that was never synced counts as unsynced once it
// has leaves.
func (e *Engine) HasUnsyncedChanges() (bool, error) {
	root, n, err := e.ledger.Root()
	if err != nil {
		return false, err
	}
	var mark string
	err = e.store.Do(func(q db.Queryer) error {
		var err error
		mark, _, err = db.GetState(q, stateLastSyncedRoot)
		return err
	})
	if err != nil {
		return false, err
	}
	if mark == "" {
		return n > 0, nil
	}
	return mark != encodeHash(root), nil
}

func (e *Engine) hello(ctx context.Context, root [32]byte, n uint64, hashes [][32]byte) (*HelloReply, error) {
	h := Hello{Root: encodeHash(root), N: n, Leaves: make([]string, len(hashes))}
	for i, lh := range hashes {
		h.Leaves[i] = encodeHash(lh)
	}
	msg, err := marshalEnvelope(PhaseHello, h)
	if err != nil {
		return nil, err
	}
	resp, err := e.tr.Send(ctx, msg)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.IO, "hello: transport failed")
	}
	var reply HelloReply
	if err := openEnvelope(resp, PhaseHello, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

func (e *Engine) nodes(ctx context.Context, batch []NodeLeaf) (*Ack, error) {
	msg, err := marshalEnvelope(PhaseNodes, Nodes{Leaves: batch})
	if err != nil {
		return nil, err
	}
	resp, err := e.tr.Send(ctx, msg)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.IO, "nodes: transport failed")
	}
	var ack Ack
	if err := openEnvelope(resp, PhaseAck, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// verifyAck checks the remote's claimed head against the root this run
// computed from its own leaves. A mismatch means the remote ingested
// something else; the watermark must not advance.
func (e *Engine) verifyAck(ack *Ack, localRoot [32]byte, localN uint64) error {
	ackRoot, err := decodeHash(ack.Root)
	if err != nil {
		return apperr.Wrap(err, apperr.InvalidInput, "ack: malformed root")
	}
	if ack.N != localN || !bytes.Equal(ackRoot[:], localRoot[:]) {
		return apperr.New(apperr.Consistency,
			"ack: remote head (%s, %d) does not match local head (%s, %d)",
			ack.Root, ack.N, encodeHash(localRoot), localN)
	}
	return nil
}

func (e *Engine) advanceWatermark(root [32]byte) error {
	return e.store.Tx(func(q db.Queryer) error {
		if err := db.SetState(q, stateLastSyncedRoot, encodeHash(root)); err != nil {
			return err
		}
		return db.SetState(q, stateEncountersLastSync, time.Now().UTC().Format(time.RFC3339))
	})
}

// collectMissing resolves the remote's missing-hash list to local payloads,
// preserving order. A hash we do not hold means the peers disagree about
// the log contents.
func collectMissing(missing []string, byHash map[[32]byte]*ledger.Leaf) ([]NodeLeaf, error) {
	batch := make([]NodeLeaf, 0, len(missing))
	for _, hs := range missing {
		h, err := decodeHash(hs)
		if err != nil {
			return nil, err
		}
		leaf, ok := byHash[h]
		if !ok {
			return nil, apperr.New(apperr.Divergent, "remote requested unknown leaf %s", hs)
		}
		batch = append(batch, NodeLeaf{Hash: hs, Payload: leaf.Payload})
	}
	return batch, nil
}
