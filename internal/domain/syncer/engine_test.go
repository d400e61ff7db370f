package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vetledger/vetledger/internal/domain/ledger"
	"github.com/vetledger/vetledger/internal/platform/apperr"
	"github.com/vetledger/vetledger/internal/platform/db"
	"github.com/vetledger/vetledger/internal/platform/transport"
)

type peer struct {
	store *db.Store
	led   *ledger.Service
	repo  ledger.Repository
}

func newPeer(t *testing.T) *peer {
	t.Helper()
	store, err := db.OpenInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	repo := ledger.NewRepoSQLite()
	return &peer{store: store, led: ledger.NewService(store, repo, zerolog.Nop()), repo: repo}
}

// encounter builds a deterministic record so both peers produce identical
// canonical bytes for the same index.
func encounter(i int) *ledger.ReviewedEncounter {
	return &ledger.ReviewedEncounter{
		DraftID:    fmt.Sprintf("draft-%03d", i),
		Patient:    ledger.PatientIdentity{ID: "pat-1"},
		ReviewerID: "dr-a",
		ReviewedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Minute),
		Items: []ledger.LineItem{
			{SKU: "CARP-100", Quantity: 100, Unit: "mg", Route: "PO", Species: "canine"},
		},
	}
}

func commit(t *testing.T, p *peer, i int) {
	t.Helper()
	err := p.store.Tx(func(q db.Queryer) error {
		_, err := p.led.CommitTx(q, encounter(i))
		return err
	})
	if err != nil {
		t.Fatalf("commit %d: %v", i, err)
	}
}

func newEngine(t *testing.T, local, remote *peer) *Engine {
	t.Helper()
	responder := NewResponder(remote.store, remote.repo, zerolog.Nop())
	return NewEngine(local.store, local.led, transport.Func(responder.Handle), zerolog.Nop())
}

func TestSyncPushesMissingLeaves(t *testing.T) {
	local, remote := newPeer(t), newPeer(t)
	for i := 0; i < 3; i++ {
		commit(t, local, i)
	}
	commit(t, remote, 0)

	eng := newEngine(t, local, remote)
	unsynced, err := eng.HasUnsyncedChanges()
	if err != nil || !unsynced {
		t.Fatalf("before sync: unsynced=%v err=%v", unsynced, err)
	}

	res, err := eng.Sync(context.Background())
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if res.Pushed != 2 {
		t.Fatalf("pushed = %d, want 2", res.Pushed)
	}

	localRoot, localN, _ := local.led.Root()
	remoteRoot, remoteN, _ := remote.led.Root()
	if localN != 3 || remoteN != 3 || remoteRoot != localRoot {
		t.Fatalf("heads differ after sync: local (%x, %d) remote (%x, %d)",
			localRoot, localN, remoteRoot, remoteN)
	}
	if err := remote.led.Verify(); err != nil {
		t.Fatalf("remote log inconsistent: %v", err)
	}
	// Ingested leaves must be provable from the remote's own stored tree.
	for seq := uint64(0); seq < remoteN; seq++ {
		proof, root, err := remote.led.ProofFor(seq)
		if err != nil {
			t.Fatalf("remote proof for %d: %v", seq, err)
		}
		enc, leafHash, err := remote.led.LeafEncounter(seq)
		if err != nil || enc == nil {
			t.Fatalf("remote leaf %d: %v", seq, err)
		}
		if !ledger.VerifyProof(leafHash, proof, root) {
			t.Fatalf("remote proof for leaf %d rejected", seq)
		}
	}

	unsynced, err = eng.HasUnsyncedChanges()
	if err != nil || unsynced {
		t.Fatalf("after sync: unsynced=%v err=%v", unsynced, err)
	}
}

func TestSyncUpToDatePeers(t *testing.T) {
	local, remote := newPeer(t), newPeer(t)
	commit(t, local, 0)
	commit(t, remote, 0)

	res, err := newEngine(t, local, remote).Sync(context.Background())
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if res.Pushed != 0 {
		t.Fatalf("pushed = %d, want 0", res.Pushed)
	}
}

func TestSyncReplayIsIdempotent(t *testing.T) {
	local, remote := newPeer(t), newPeer(t)
	for i := 0; i < 3; i++ {
		commit(t, local, i)
	}
	eng := newEngine(t, local, remote)

	if _, err := eng.Sync(context.Background()); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	res, err := eng.Sync(context.Background())
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if res.Pushed != 0 {
		t.Fatalf("second sync pushed = %d, want 0", res.Pushed)
	}
	if _, n, _ := remote.led.Root(); n != 3 {
		t.Fatalf("remote leaf count = %d, want 3", n)
	}
}

func TestSyncDetectsDivergence(t *testing.T) {
	local, remote := newPeer(t), newPeer(t)
	commit(t, local, 0)
	commit(t, local, 1)
	// The remote's first leaf is a different encounter entirely.
	commit(t, remote, 99)

	eng := newEngine(t, local, remote)
	_, err := eng.Sync(context.Background())
	if apperr.KindOf(err) != apperr.Divergent {
		t.Fatalf("kind = %v, want Divergent (%v)", apperr.KindOf(err), err)
	}

	if _, n, _ := remote.led.Root(); n != 1 {
		t.Fatalf("divergent sync changed remote log, n = %d", n)
	}
	unsynced, _ := eng.HasUnsyncedChanges()
	if !unsynced {
		t.Fatal("divergent sync advanced the watermark")
	}
}

func TestSyncRejectsRemoteAhead(t *testing.T) {
	local, remote := newPeer(t), newPeer(t)
	commit(t, remote, 0)
	commit(t, remote, 1)
	commit(t, local, 0)

	_, err := newEngine(t, local, remote).Sync(context.Background())
	if apperr.KindOf(err) != apperr.Divergent {
		t.Fatalf("kind = %v, want Divergent (%v)", apperr.KindOf(err), err)
	}
}

func TestSyncTamperedPayloadRejected(t *testing.T) {
	local, remote := newPeer(t), newPeer(t)
	commit(t, local, 0)

	responder := NewResponder(remote.store, remote.repo, zerolog.Nop())
	// Flip one payload byte in flight; the remote must refuse the batch.
	tamper := transport.Func(func(ctx context.Context, msg []byte) ([]byte, error) {
		var env Envelope
		if json.Unmarshal(msg, &env) == nil && env.Phase == PhaseNodes {
			var n Nodes
			if json.Unmarshal(env.Body, &n) == nil && len(n.Leaves) > 0 {
				n.Leaves[0].Payload[0] ^= 0xff
				body, _ := json.Marshal(n)
				env.Body = body
				msg, _ = json.Marshal(env)
			}
		}
		return responder.Handle(ctx, msg)
	})
	eng := NewEngine(local.store, local.led, tamper, zerolog.Nop())

	_, err := eng.Sync(context.Background())
	if apperr.KindOf(err) != apperr.HashMismatch {
		t.Fatalf("kind = %v, want HashMismatch (%v)", apperr.KindOf(err), err)
	}
	if _, n, _ := remote.led.Root(); n != 0 {
		t.Fatalf("tampered batch partially applied, n = %d", n)
	}
	unsynced, _ := eng.HasUnsyncedChanges()
	if !unsynced {
		t.Fatal("failed sync advanced the watermark")
	}
}

func TestSyncForgedAckKeepsWatermark(t *testing.T) {
	local, remote := newPeer(t), newPeer(t)
	commit(t, local, 0)

	responder := NewResponder(remote.store, remote.repo, zerolog.Nop())
	forge := transport.Func(func(ctx context.Context, msg []byte) ([]byte, error) {
		resp, err := responder.Handle(ctx, msg)
		if err != nil {
			return nil, err
		}
		var env Envelope
		if json.Unmarshal(resp, &env) == nil && env.Phase == PhaseAck {
			ack := Ack{Root: encodeHash([32]byte{0xde, 0xad}), N: 1}
			body, _ := json.Marshal(ack)
			env.Body = body
			resp, _ = json.Marshal(env)
		}
		return resp, nil
	})
	eng := NewEngine(local.store, local.led, forge, zerolog.Nop())

	_, err := eng.Sync(context.Background())
	if apperr.KindOf(err) != apperr.Consistency {
		t.Fatalf("kind = %v, want Consistency (%v)", apperr.KindOf(err), err)
	}
	unsynced, _ := eng.HasUnsyncedChanges()
	if !unsynced {
		t.Fatal("forged ack advanced the watermark")
	}
}

func TestSyncHonorsCancellation(t *testing.T) {
	local, remote := newPeer(t), newPeer(t)
	commit(t, local, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newEngine(t, local, remote).Sync(ctx)
	if err == nil {
		t.Fatal("canceled sync returned nil error")
	}
	if _, n, _ := remote.led.Root(); n != 0 {
		t.Fatalf("canceled sync pushed leaves, n = %d", n)
	}
}

func TestResponderRejectsUnknownVersion(t *testing.T) {
	remote := newPeer(t)
	responder := NewResponder(remote.store, remote.repo, zerolog.Nop())

	env := Envelope{Version: 99, Phase: PhaseHello, Body: json.RawMessage(`{}`)}
	msg, _ := json.Marshal(env)
	resp, err := responder.Handle(context.Background(), msg)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	var out Envelope
	if err := json.Unmarshal(resp, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Error == nil || out.Error.Kind != apperr.InvalidInput.String() {
		t.Fatalf("error = %+v, want invalid_input", out.Error)
	}
}
