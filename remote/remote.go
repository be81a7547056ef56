// Package remote abstracts the hosted trail store. It exposes a
// strongly-consistent primary read path, a replica-backed secondary read
// path, and the write path used by the sync queue. Every error crossing
// this boundary carries a structured Kind so callers never have to inspect
// error text to decide whether an operation is worth retrying.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Record is one document returned by a query, opaque to the sync layer.
type Record = json.RawMessage

// Kind classifies a remote-store failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindUnavailable      // server temporarily unreachable or overloaded
	KindTimeout          // the call exceeded its deadline
	KindContention       // transient server-side resource contention
	KindPermissionDenied // caller lacks access; retrying cannot help
	KindNotFound         // the queried resource does not exist
	KindMalformed        // the request itself was invalid
)

// Transient reports whether a failure of this kind may clear up on its own.
func (k Kind) Transient() bool {
	switch k {
	case KindUnavailable, KindTimeout, KindContention:
		return true
	}
	return false
}

func (k Kind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindTimeout:
		return "timeout"
	case KindContention:
		return "contention"
	case KindPermissionDenied:
		return "permission_denied"
	case KindNotFound:
		return "not_found"
	case KindMalformed:
		return "malformed"
	}
	return "unknown"
}

// Error is a classified remote-store failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with a kind at the store boundary.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the classification from an error chain. A bare
// context.DeadlineExceeded counts as a timeout.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnknown
}

// IsTransient reports whether any failure in the chain is worth retrying.
// A deadline-exceeded anywhere in the chain always counts: a timed-out
// primary read is retryable even when the fallback failed terminally.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var re *Error
	if errors.As(err, &re) {
		return re.Kind.Transient()
	}
	return false
}

// QuerySpec identifies one logical read against the hosted store.
type QuerySpec struct {
	Collection string
	Filter     map[string]string
	Limit      int
}

// Source is the remote-store capability the core depends on.
type Source interface {
	// Primary performs a strongly-consistent, server-origin read.
	Primary(ctx context.Context, spec QuerySpec) ([]Record, error)

	// Secondary reads from the local replica; served even while offline.
	Secondary(ctx context.Context, spec QuerySpec) ([]Record, error)

	// Write delivers one pending payload and returns once the server has
	// acknowledged it.
	Write(ctx context.Context, category string, payload []byte) error
}
