package session

import (
	"errors"
	"fmt"
)

// Kind classifies a domain failure. Handlers map kinds to HTTP statuses;
// services return classified errors and nothing else crosses that boundary.
type Kind string

const (
	KindValidation       Kind = "validation"
	KindNotFound         Kind = "not_found"
	KindExpired          Kind = "expired"
	KindEnded            Kind = "ended"
	KindGone             Kind = "gone"
	KindForbidden        Kind = "forbidden"
	KindExhaustedRetries Kind = "exhausted_retries"
	KindInternal         Kind = "internal"
)

// Error is a classified domain failure. Field is set for validation
// failures when a specific input is at fault.
type Error struct {
	Kind  Kind
	Field string
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Validation reports malformed caller input. field names the offending
// input and may be empty.
func Validation(field, msg string) *Error {
	return &Error{Kind: KindValidation, Field: field, Msg: msg}
}

// NotFound reports a token or id that matches nothing.
func NotFound(msg string) *Error { return &Error{Kind: KindNotFound, Msg: msg} }

// Expired reports a meeting whose token validity window has passed.
func Expired(msg string) *Error { return &Error{Kind: KindExpired, Msg: msg} }

// Ended reports a meeting explicitly closed by a clinician.
func Ended(msg string) *Error { return &Error{Kind: KindEnded, Msg: msg} }

// Gone reports a participant that already left or was evicted.
func Gone(msg string) *Error { return &Error{Kind: KindGone, Msg: msg} }

// Forbidden reports an operation the caller is not allowed to perform.
func Forbidden(msg string) *Error { return &Error{Kind: KindForbidden, Msg: msg} }

// ExhaustedRetries reports token generation giving up after repeated
// uniqueness collisions.
func ExhaustedRetries(msg string, err error) *Error {
	return &Error{Kind: KindExhaustedRetries, Msg: msg, Err: err}
}

// Internal classifies an unexpected infrastructure failure, preserving the
// cause for errors.Is inspection and logs.
func Internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Msg: msg, Err: err}
}

// KindOf extracts the classification from err. Unclassified non-nil errors
// count as internal; nil maps to the empty kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err classifies as kind.
func IsKind(err error, kind Kind) bool { return KindOf(err) == kind }
