package process

import (
	"errors"
	"fmt"

	"github.com/tendant/simple-renderer/internal/store"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrNotFound     = store.ErrNotFound
	ErrMalformedJob = errors.New("malformed job")
	ErrRender       = errors.New("render failed")
	ErrUpload       = errors.New("upload failed")
	ErrStore        = errors.New("store failed")
	ErrPublish      = errors.New("publish failed")
	ErrInternal     = errors.New("internal error")
)

// Error carries the failing step and session alongside the classified cause.
type Error struct {
	Sentinel  error
	SessionID string
	Op        string
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: session %s: %v", e.Op, e.SessionID, e.Sentinel)
	}
	return fmt.Sprintf("%s: session %s: %v", e.Op, e.SessionID, e.Cause)
}

// Unwrap exposes both the sentinel and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Sentinel}
	}
	return []error{e.Sentinel, e.Cause}
}

func newError(sentinel error, sessionID, op string, cause error) *Error {
	return &Error{Sentinel: sentinel, SessionID: sessionID, Op: op, Cause: cause}
}

// Kind returns a short label for the sentinel err wraps, used in logs and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrMalformedJob):
		return "malformed"
	case errors.Is(err, ErrRender):
		return "render"
	case errors.Is(err, ErrUpload):
		return "upload"
	case errors.Is(err, ErrStore):
		return "store"
	case errors.Is(err, ErrPublish):
		return "publish"
	default:
		return "internal"
	}
}
