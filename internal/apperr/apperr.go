// Package apperr defines the error taxonomy shared by all write paths. The
// HTTP layer maps Kind to status codes; everything else wraps and rethrows.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an application error.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthentication
	KindPrecondition
	KindProtocolViolation
	KindNotFound
	KindConflict
)

// String returns the wire code for the kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "VALIDATION_ERROR"
	case KindAuthentication:
		return "AUTHENTICATION_ERROR"
	case KindPrecondition:
		return "PRECONDITION_FAILED"
	case KindProtocolViolation:
		return "INVALID_STEP_SEQUENCE"
	case KindNotFound:
		return "NOT_FOUND"
	case KindConflict:
		return "CONFLICT"
	default:
		return "INTERNAL_ERROR"
	}
}

// Error carries a kind, a client-safe message, and optional structured detail
// (field errors for validation, expected step for protocol violations).
type Error struct {
	Kind    Kind
	Message string
	Detail  map[string]interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf builds an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// WithDetail attaches structured detail and returns the error.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Detail == nil {
		e.Detail = make(map[string]interface{})
	}
	e.Detail[key] = value
	return e
}

// Validation is shorthand for a validation error.
func Validation(msg string) *Error { return New(KindValidation, msg) }

// NotFound is shorthand for a missed lookup.
func NotFound(msg string) *Error { return New(KindNotFound, msg) }

// Precondition is shorthand for a blocked or already-terminal operation.
func Precondition(msg string) *Error { return New(KindPrecondition, msg) }

// KindOf extracts the kind from any error chain, defaulting to internal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// As extracts the *Error from a chain, or nil.
func As(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return nil
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
