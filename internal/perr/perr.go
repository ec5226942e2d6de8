// Package perr defines the core pipeline's error taxonomy.
//
// Workers never propagate errors upward through return values alone; they
// classify what happened, mutate their own jitter/component state, and let
// the player observe the Kind to decide the next state transition. Public
// JSON-RPC handlers translate a Kind into an RPC error response.
package perr

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline error per spec §7.
type Kind int

const (
	// Transient is a recoverable I/O-would-block condition; retry.
	Transient Kind = iota
	// StreamEnd means the source is exhausted: read returned 0, remote
	// closed, or the decoder hit EOF. Triggers SRC_END_ES.
	StreamEnd
	// FormatMismatch means decoder output rate changed underneath the
	// encoder. Triggers a player CHANGE.
	FormatMismatch
	// ProtocolError is a malformed JSON-RPC or RTP message; drop and
	// keep running.
	ProtocolError
	// Fatal means the process cannot continue this pipeline: jitter
	// double-free pattern, failed bind, OOM-class failure. Player moves
	// to Error.
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case StreamEnd:
		return "stream_end"
	case FormatMismatch:
		return "format_mismatch"
	case ProtocolError:
		return "protocol_error"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Kind so callers can switch on it
// with errors.As without string-matching.
type Error struct {
	Kind  Kind
	Op    string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a classified error.
func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Cause: cause}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Sentinel causes used when there is no richer underlying error.
var (
	ErrStreamEnd  = errors.New("stream ended")
	ErrNoMedia    = errors.New("no media to play")
	ErrBusy       = errors.New("resource busy")
	ErrNotFound   = errors.New("not found")
	ErrBadRequest = errors.New("bad request")
)
