package syncer

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/vetledger/vetledger/internal/domain/ledger"
	"github.com/vetledger/vetledger/internal/platform/apperr"
	"github.com/vetledger/vetledger/internal/platform/db"
)

// Responder implements the remote side of the exchange on top of its own
// commit log. Failures never surface as transport errors; they travel back
// as kinded envelope errors so the client can branch on them.
type Responder struct {
	store *db.Store
	repo  ledger.Repository
	log   zerolog.Logger
}

func NewResponder(store *db.Store, repo ledger.Repository, log zerolog.Logger) *Responder {
	return &Responder{store: store, repo: repo, log: log}
}

// Handle dispatches one request envelope and returns the response envelope.
// Its signature matches transport.Func for in-process wiring.
func (r *Responder) Handle(_ context.Context, msg []byte) ([]byte, error) {
	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return errorEnvelope("", apperr.Wrap(err, apperr.InvalidInput, "malformed envelope")), nil
	}
	if env.Version != ProtocolVersion {
		return errorEnvelope(env.Phase, apperr.New(apperr.InvalidInput,
			"unsupported protocol v%d, want v%d", env.Version, ProtocolVersion)), nil
	}

	switch env.Phase {
	case PhaseHello:
		var h Hello
		if err := json.Unmarshal(env.Body, &h); err != nil {
			return errorEnvelope(env.Phase, apperr.Wrap(err, apperr.InvalidInput, "malformed hello")), nil
		}
		reply, err := r.handleHello(&h)
		if err != nil {
			return errorEnvelope(env.Phase, err), nil
		}
		out, err := marshalEnvelope(PhaseHello, reply)
		if err != nil {
			return errorEnvelope(env.Phase, err), nil
		}
		return out, nil
	case PhaseNodes:
		var n Nodes
		if err := json.Unmarshal(env.Body, &n); err != nil {
			return errorEnvelope(env.Phase, apperr.Wrap(err, apperr.InvalidInput, "malformed nodes")), nil
		}
		ack, err := r.handleNodes(&n)
		if err != nil {
			return errorEnvelope(env.Phase, err), nil
		}
		out, err := marshalEnvelope(PhaseAck, ack)
		if err != nil {
			return errorEnvelope(env.Phase, err), nil
		}
		return out, nil
	default:
		return errorEnvelope(env.Phase, apperr.New(apperr.InvalidInput, "unknown phase %q", env.Phase)), nil
	}
}

// handleHello decides whether the caller's log extends this one. The caller
// sends its full hash frontier; this log must be byte-for-byte the prefix
// of that frontier, otherwise the histories have diverged and no automatic
// merge is attempted.
func (r *Responder) handleHello(h *Hello) (*HelloReply, error) {
	if uint64(len(h.Leaves)) != h.N {
		return nil, apperr.New(apperr.InvalidInput, "hello claims %d leaves, lists %d", h.N, len(h.Leaves))
	}
	callerHashes := make([][32]byte, len(h.Leaves))
	for i, hs := range h.Leaves {
		ch, err := decodeHash(hs)
		if err != nil {
			return nil, err
		}
		callerHashes[i] = ch
	}
	callerRoot, err := decodeHash(h.Root)
	if err != nil {
		return nil, err
	}
	if computed := ledger.RootFromLeaves(callerHashes); !bytes.Equal(computed[:], callerRoot[:]) {
		return nil, apperr.New(apperr.InvalidInput, "hello root does not match listed leaves")
	}

	var reply *HelloReply
	err = r.store.Do(func(q db.Queryer) error {
		root, n, err := r.repo.Root(q)
		if err != nil {
			return err
		}
		if n > h.N {
			return apperr.New(apperr.Divergent, "remote log has %d leaves, caller only %d", n, h.N)
		}
		if n > 0 {
			prefix := ledger.RootFromLeaves(callerHashes[:n])
			if !bytes.Equal(prefix[:], root[:]) {
				return apperr.New(apperr.Divergent, "caller log is not an extension of remote log at %d leaves", n)
			}
		}
		reply = &HelloReply{Root: encodeHash(root), N: n}
		for _, ch := range callerHashes[n:] {
			reply.Missing = append(reply.Missing, encodeHash(ch))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reply, nil
}

// handleNodes ingests a batch of canonical payloads. Every payload is
// re-hashed and decoded before anything is written; the whole batch lands
// in one transaction or not at all. Leaves already present are skipped, so
// replaying a batch is harmless.
func (r *Responder) handleNodes(n *Nodes) (*Ack, error) {
	var ack *Ack
	err := r.store.Tx(func(q db.Queryer) error {
		hashes, err := r.repo.LeafHashes(q)
		if err != nil {
			return err
		}
		for _, nl := range n.Leaves {
			claimed, err := decodeHash(nl.Hash)
			if err != nil {
				return err
			}
			got := ledger.LeafHash(nl.Payload)
			if !bytes.Equal(got[:], claimed[:]) {
				return apperr.New(apperr.HashMismatch, "payload does not hash to %s", nl.Hash)
			}
			enc, err := ledger.Decode(nl.Payload)
			if err != nil {
				return err
			}
			if _, known, err := r.repo.SeqByHash(q, claimed); err != nil {
				return err
			} else if known {
				continue
			}
			leaf := &ledger.Leaf{
				SeqNo:   uint64(len(hashes)),
				Hash:    claimed,
				Payload: nl.Payload,
				DraftID: enc.DraftID,
			}
			if err := r.repo.AppendLeaf(q, leaf); err != nil {
				return err
			}
			hashes = append(hashes, claimed)
		}
		root, err := ledger.PersistTree(q, r.repo, hashes)
		if err != nil {
			return err
		}
		if err := r.repo.SaveRoot(q, root, uint64(len(hashes))); err != nil {
			return err
		}
		ack = &Ack{Root: encodeHash(root), N: uint64(len(hashes))}
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.log.Info().Uint64("n", ack.N).Msg("ingested sync batch")
	return ack, nil
}
