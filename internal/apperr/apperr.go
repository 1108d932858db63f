// Package apperr defines the repository's error taxonomy. Callers branch on
// the error kind via errors.As / KindOf instead of matching message strings.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers and for the HTTP layer.
type Kind int

const (
	// KindUnknown is the zero value; not produced by this package's constructors.
	KindUnknown Kind = iota
	// KindValidation — malformed input; no state was mutated.
	KindValidation
	// KindNotFound — a referenced uploader/document/version does not exist.
	KindNotFound
	// KindAccessDenied — requester lacks department or public permission.
	KindAccessDenied
	// KindConflict — uniqueness violation detected at commit time.
	KindConflict
	// KindStorage — the backing file store is unavailable or a path is gone.
	KindStorage
)

// String returns the kind name for logs.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindAccessDenied:
		return "access_denied"
	case KindConflict:
		return "conflict"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// Error is a tagged domain error. Field is set for validation errors that
// concern a specific input field.
type Error struct {
	Kind  Kind
	Field string
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Unwrap exposes the wrapped cause to errors.Is/As.
func (e *Error) Unwrap() error { return e.Err }

// Validation builds a validation error for the given input field.
func Validation(field, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Field: field, Msg: fmt.Sprintf(format, args...)}
}

// NotFound builds a not-found error.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

// AccessDenied builds an access-denied error.
func AccessDenied(format string, args ...any) *Error {
	return &Error{Kind: KindAccessDenied, Msg: fmt.Sprintf(format, args...)}
}

// Conflict wraps a commit-time uniqueness violation.
func Conflict(err error, format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Storage wraps a file-store failure.
func Storage(err error, format string, args ...any) *Error {
	return &Error{Kind: KindStorage, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of err, or KindUnknown when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool { return KindOf(err) == kind }
