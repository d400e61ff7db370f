// Package syncer replicates the local commit log to a clinic server over a
// three-message exchange: Hello compares tree heads, Nodes carries the
// canonical payloads the remote is missing, Ack confirms the remote's new
// head. The transport is pluggable; messages are JSON envelopes.
package syncer

import (
	"encoding/hex"
	"encoding/json"

	"github.com/vetledger/vetledger/internal/platform/apperr"
)

// ProtocolVersion is carried on every envelope. Peers reject versions they
// do not speak.
const ProtocolVersion = 1

const (
	PhaseHello = "hello"
	PhaseNodes = "nodes"
	PhaseAck   = "ack"
)

// Envelope wraps every message on the wire. Exactly one of Body or Error is
// set on responses.
type Envelope struct {
	Version int             `json:"v"`
	Phase   string          `json:"phase"`
	Body    json.RawMessage `json:"body,omitempty"`
	Error   *WireError      `json:"error,omitempty"`
}

// WireError is a peer-reported failure. Kind mirrors the local error
// taxonomy so the caller can react without parsing messages.
type WireError struct {
	Kind string `json:"kind"`
	Msg  string `json:"msg"`
}

// Hello announces the local tree head together with the full ordered leaf
// hash frontier, which lets the remote check prefix consistency without a
// second round trip. Clinic logs are small enough that the frontier fits in
// one message.
type Hello struct {
	Root   string   `json:"root"`
	N      uint64   `json:"n"`
	Leaves []string `json:"leaves"`
}

// HelloReply reports the remote head and the leaf hashes it is missing, in
// log order. An empty Missing means the remote already holds everything.
type HelloReply struct {
	Root    string   `json:"root"`
	N       uint64   `json:"n"`
	Missing []string `json:"missing,omitempty"`
}

// NodeLeaf is one canonical payload in transit. The hash is the sender's
// claim; the remote recomputes it before accepting.
type NodeLeaf struct {
	Hash    string `json:"hash"`
	Payload []byte `json:"payload"`
}

// Nodes carries the payloads for the hashes listed in HelloReply.Missing,
// in the same order.
type Nodes struct {
	Leaves []NodeLeaf `json:"leaves"`
}

// Ack is the remote's head after ingesting a Nodes batch.
type Ack struct {
	Root string `json:"root"`
	N    uint64 `json:"n"`
}

func encodeHash(h [32]byte) string {
	return hex.EncodeToString(h[:])
}

func decodeHash(s string) ([32]byte, error) {
	var h [32]byte
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 32 {
		return h, apperr.New(apperr.InvalidInput, "malformed hash %q", s)
	}
	copy(h[:], b)
	return h, nil
}

func marshalEnvelope(phase string, body interface{}) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.Unknown, "encode %s body", phase)
	}
	return json.Marshal(Envelope{Version: ProtocolVersion, Phase: phase, Body: raw})
}

func errorEnvelope(phase string, err error) []byte {
	env := Envelope{
		Version: ProtocolVersion,
		Phase:   phase,
		Error:   &WireError{Kind: apperr.KindOf(err).String(), Msg: err.Error()},
	}
	b, _ := json.Marshal(env)
	return b
}

// openEnvelope parses a response, enforces the version and expected phase,
// and surfaces peer-reported errors with their original kind.
func openEnvelope(msg []byte, wantPhase string, body interface{}) error {
	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return apperr.Wrap(err, apperr.InvalidInput, "malformed %s response", wantPhase)
	}
	if env.Version != ProtocolVersion {
		return apperr.New(apperr.InvalidInput, "peer speaks protocol v%d, want v%d", env.Version, ProtocolVersion)
	}
	if env.Error != nil {
		return apperr.New(kindFromWire(env.Error.Kind), "peer rejected %s: %s", wantPhase, env.Error.Msg)
	}
	if env.Phase != wantPhase {
		return apperr.New(apperr.InvalidInput, "peer answered phase %q, want %q", env.Phase, wantPhase)
	}
	if err := json.Unmarshal(env.Body, body); err != nil {
		return apperr.Wrap(err, apperr.InvalidInput, "malformed %s body", wantPhase)
	}
	return nil
}

func kindFromWire(s string) apperr.Kind {
	for k := apperr.Unknown; k <= apperr.IO; k++ {
		if k.String() == s {
			return k
		}
	}
	return apperr.Unknown
}
