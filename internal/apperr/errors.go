package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies errors for propagation and retry decisions
type Kind int

const (
	// KindUnknown - unclassified error, treated as internal and not retryable
	KindUnknown Kind = iota

	// KindNotFound - referenced post, category or comment does not exist
	KindNotFound

	// KindConflict - duplicate like or unique view attempt
	KindConflict

	// KindTransient - cache or counter store failure caused by infrastructure.
	// Safe to retry.
	KindTransient

	// KindValidation - malformed input, rejected before any state mutation
	KindValidation
)

// String returns a human-readable kind name
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "transient"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// HTTPStatus maps a kind onto the status code the request layer reports
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindTransient:
		return http.StatusServiceUnavailable
	case KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Error carries a Kind alongside the message and the original cause
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a classified error without a cause
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an existing error
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: err}
}

// NotFound is shorthand for New(KindNotFound, ...)
func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

// Conflict is shorthand for New(KindConflict, ...)
func Conflict(format string, args ...any) *Error {
	return New(KindConflict, format, args...)
}

// Validation is shorthand for New(KindValidation, ...)
func Validation(format string, args ...any) *Error {
	return New(KindValidation, format, args...)
}

// Transient wraps an infrastructure failure as retryable
func Transient(err error, format string, args ...any) *Error {
	return Wrap(KindTransient, err, format, args...)
}

// KindOf returns the kind of the first classified error in the chain
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

// Is reports whether err is classified as kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsRetryable reports whether the caller may safely retry the operation
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransient
}
