package types

import (
	"errors"
	"fmt"
)

// -----------------------------------------------------------------------------
// Typed Errors (stable categories for programmatic handling)
// -----------------------------------------------------------------------------

// ErrKind classifies errors so callers can branch on intent rather than text.
type ErrKind int

const (
	ErrKindResourceExhausted ErrKind = iota // no slot, or no untyped large/splittable enough
	ErrKindInvalidAddress                   // physical address outside every known untyped region
	ErrKindOther                            // kernel invocation failed for an unclassified reason
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindResourceExhausted:
		return "resource exhausted"
	case ErrKindInvalidAddress:
		return "invalid address"
	case ErrKindOther:
		return "other"
	default:
		return fmt.Sprintf("ErrKind(%d)", int(k))
	}
}

// Error is a typed error with an optional underlying cause.
type Error struct {
	Kind ErrKind
	Msg  string
	Err  error // optional underlying cause
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind and message, so wrapped copies
// of a sentinel still satisfy errors.Is against the sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Kind == t.Kind && e.Msg == t.Msg
}

// Wrap returns a copy of the sentinel e carrying cause as its underlying error.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Kind: e.Kind, Msg: e.Msg, Err: cause}
}

// Wrapf returns a copy of the sentinel e with a formatted detail cause.
func (e *Error) Wrapf(format string, args ...any) *Error {
	return e.Wrap(fmt.Errorf(format, args...))
}

// KindOf extracts the ErrKind of err. ok is false when err carries no *Error.
func KindOf(err error) (kind ErrKind, ok bool) {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind, true
	}
	return 0, false
}

// IsKind reports whether err carries an *Error of the given kind.
func IsKind(err error, kind ErrKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// Fault is the panic value raised when an internal invariant is broken: a
// physical-address mismatch after a targeted mapping, an undersized or
// misaligned stack, an unknown object size query, or a failed cache
// maintenance operation. A Fault is a programming or configuration defect
// and is never returned as an error.
type Fault struct {
	Module  string
	Message string
}

func (f *Fault) Error() string {
	return "[" + f.Module + "] unrecoverable: " + f.Message
}

// Faultf panics with a *Fault built from the module name and message.
func Faultf(module, format string, args ...any) {
	panic(&Fault{Module: module, Message: fmt.Sprintf(format, args...)})
}
