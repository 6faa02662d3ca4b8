package transport

import (
	"errors"
	"fmt"
)

// Kind classifies a transport failure so retry policy can be decided
// without string matching.
type Kind int

// Failure classes surfaced by Send and OpenStream.
const (
	// KindConnection covers unreachable hosts, refused and reset
	// connections, and dropped streams.
	KindConnection Kind = iota

	// KindTimeout covers deadlines that expired before a response or
	// the next frame arrived.
	KindTimeout

	// KindProtocol covers malformed responses and frames. Never
	// retryable.
	KindProtocol

	// KindHTTP covers non-2xx responses; Status carries the code.
	KindHTTP
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindTimeout:
		return "timeout"
	case KindProtocol:
		return "protocol"
	case KindHTTP:
		return "http"
	default:
		return "unknown"
	}
}

// Error is the single failure type returned by the transport. Exactly
// one attempt produces at most one Error; retry layering happens above.
type Error struct {
	Kind   Kind
	Status int // HTTP status for KindHTTP, zero otherwise
	Err    error
}

func (e *Error) Error() string {
	if e.Kind == KindHTTP {
		return fmt.Sprintf("transport: http status %d", e.Status)
	}
	return fmt.Sprintf("transport: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// AsError extracts a *Error from err's chain, if present.
func AsError(err error) (*Error, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}
