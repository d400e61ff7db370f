// Package apperr defines the error taxonomy shared by every layer of the
// core. Callers branch on Kind rather than on error strings.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the embedding host.
type Kind int

const (
	// Unknown is the zero kind for errors the core did not produce.
	Unknown Kind = iota
	// NotFound: referenced record does not exist.
	NotFound
	// UniqueViolation: insert/update would break a uniqueness constraint.
	UniqueViolation
	// InvalidInput: caller-supplied data failed validation.
	InvalidInput
	// InvalidState: operation not legal for the record's current lifecycle state.
	InvalidState
	// HashMismatch: recomputed hash disagrees with a claimed hash.
	HashMismatch
	// Divergent: local and remote ledgers are not prefix-consistent.
	Divergent
	// Consistency: stored data contradicts itself; the handle should be closed.
	Consistency
	// IO: underlying storage or transport failure.
	IO
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case UniqueViolation:
		return "unique_violation"
	case InvalidInput:
		return "invalid_input"
	case InvalidState:
		return "invalid_state"
	case HashMismatch:
		return "hash_mismatch"
	case Divergent:
		return "divergent"
	case Consistency:
		return "consistency"
	case IO:
		return "io"
	default:
		return "unknown"
	}
}

// Error is a kinded error. It wraps an optional cause.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a kinded error with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an existing error. Returns nil when
// err is nil so call sites can wrap unconditionally.
func Wrap(err error, kind Kind, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Cause: err}
}

// KindOf reports the kind of err, walking the wrap chain. Errors produced
// outside this package report Unknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
