package executor

import (
	"errors"
	"fmt"
)

// ErrorKind classifies execution failures so the orchestrator can map them
// onto an outcome without inspecting remote error strings.
type ErrorKind int

const (
	// KindValidation marks bad or missing input. Never retried, surfaced
	// as an ignored signal.
	KindValidation ErrorKind = iota + 1
	// KindInsufficientFunds marks sizing that cannot proceed, including a
	// notional below the venue minimum.
	KindInsufficientFunds
	// KindVenueTransient marks a recoverable remote failure on a
	// non-critical step. Logged and swallowed.
	KindVenueTransient
	// KindVenueFatal marks a remote failure that aborts the run.
	KindVenueFatal
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindVenueTransient:
		return "venue_transient"
	case KindVenueFatal:
		return "venue_fatal"
	default:
		return "unknown"
	}
}

// Error carries an ErrorKind alongside the underlying cause.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, format string, v ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, v...)}
}

func wrapError(kind ErrorKind, err error, format string, v ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, v...), Err: err}
}

// KindOf extracts the ErrorKind from err. Unclassified errors count as
// venue-fatal: the safe default for anything unexpected from a remote call.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindVenueFatal
}
