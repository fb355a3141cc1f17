package ak

import (
	"errors"
	"fmt"
)

// Kind classifies engine errors so callers can map them to responses.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindInvalidInput
	KindConflict
	KindIOFailure
	KindRollbackFailure
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidInput:
		return "invalid_input"
	case KindConflict:
		return "conflict"
	case KindIOFailure:
		return "io_failure"
	case KindRollbackFailure:
		return "rollback_failure"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is. Any *Error matches the sentinel of its Kind.
var (
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrInvalidInput    = &Error{Kind: KindInvalidInput}
	ErrConflict        = &Error{Kind: KindConflict}
	ErrIOFailure       = &Error{Kind: KindIOFailure}
	ErrRollbackFailure = &Error{Kind: KindRollbackFailure}
)

// Error is a classified engine error.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels by Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

func notFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

func invalidInput(format string, args ...any) error {
	return &Error{Kind: KindInvalidInput, Msg: fmt.Sprintf(format, args...)}
}

func conflict(format string, args ...any) error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

// NotFoundf, InvalidInputf and Conflictf let sibling packages raise classified errors.
func NotFoundf(format string, args ...any) error     { return notFound(format, args...) }
func InvalidInputf(format string, args ...any) error { return invalidInput(format, args...) }
func Conflictf(format string, args ...any) error     { return conflict(format, args...) }

// IOFailure wraps an underlying filesystem or storage error.
func IOFailure(msg string, err error) error {
	return &Error{Kind: KindIOFailure, Msg: msg, Err: err}
}

// RollbackError is returned when restoring a snapshot failed after a
// mutation error. Cause is the error that triggered the rollback.
// The store may be inconsistent and must not be retried automatically.
type RollbackError struct {
	Cause       error
	RollbackErr error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("%v (rollback failed: %v)", e.Cause, e.RollbackErr)
}

func (e *RollbackError) Unwrap() []error { return []error{e.Cause, e.RollbackErr} }

func (e *RollbackError) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Msg == "" && t.Err == nil && t.Kind == KindRollbackFailure
}

// KindOf returns the Kind of err. A rollback failure outranks the kind of
// its cause; errors that carry no kind are reported as IOFailure.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var rb *RollbackError
	if errors.As(err, &rb) {
		return KindRollbackFailure
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindIOFailure
}

// classify makes sure err carries a Kind, wrapping unclassified errors as IOFailure.
func classify(msg string, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return fmt.Errorf("%s: %w", msg, err)
	}
	return IOFailure(msg, err)
}
