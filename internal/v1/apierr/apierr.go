// Package apierr defines the typed error kinds returned by control-plane
// services and the mapping from those kinds to HTTP status codes.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error into one of the categories the HTTP layer knows
// how to render.
type Kind string

const (
	Unauthenticated        Kind = "unauthenticated"
	Forbidden              Kind = "forbidden"
	Validation             Kind = "validation"
	NotFound               Kind = "not_found"
	Conflict               Kind = "conflict"
	RangeNotSatisfiable    Kind = "range_not_satisfiable"
	DependencyUnavailable  Kind = "dependency_unavailable"
	Timeout                Kind = "timeout"
	Internal               Kind = "internal"
)

// FieldError describes a single invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the typed error carried through service layers up to the HTTP
// adapter. Code is a short machine-readable string (e.g. a §4.8/§4.9
// lifecycle outcome code); Fields is populated only for Validation errors.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Fields  []FieldError
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs an *Error of the given kind with a machine code and message.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap attaches a cause to a newly constructed *Error, useful for
// DependencyUnavailable/Internal kinds originating from a lower layer.
func Wrap(kind Kind, code, message string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, cause: cause}
}

// WithFields attaches field-level validation detail and returns the receiver
// for chaining at the call site.
func (e *Error) WithFields(fields ...FieldError) *Error {
	e.Fields = fields
	return e
}

// As extracts an *Error from err, following the standard library's errors.As
// convention so callers can branch on Kind without knowing the concrete type.
func As(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// HTTPStatus maps a Kind to the HTTP status code the httpapi layer renders.
func HTTPStatus(kind Kind) int {
	switch kind {
	case Unauthenticated:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case Validation:
		return http.StatusUnprocessableEntity
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case RangeNotSatisfiable:
		return http.StatusRequestedRangeNotSatisfiable
	case DependencyUnavailable:
		return http.StatusServiceUnavailable
	case Timeout:
		return http.StatusGatewayTimeout
	case Internal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Unauthenticatedf is a convenience constructor for the common
// Unauthenticated case.
func Unauthenticatedf(code, format string, args ...any) *Error {
	return New(Unauthenticated, code, fmt.Sprintf(format, args...))
}

// NotFoundf is a convenience constructor for the common NotFound case.
func NotFoundf(code, format string, args ...any) *Error {
	return New(NotFound, code, fmt.Sprintf(format, args...))
}

// Conflictf is a convenience constructor for the common Conflict case.
func Conflictf(code, format string, args ...any) *Error {
	return New(Conflict, code, fmt.Sprintf(format, args...))
}

// Validationf is a convenience constructor for the common Validation case.
func Validationf(code, format string, args ...any) *Error {
	return New(Validation, code, fmt.Sprintf(format, args...))
}

// Unavailablef wraps a lower-layer error as DependencyUnavailable.
func Unavailablef(code string, cause error, format string, args ...any) *Error {
	return Wrap(DependencyUnavailable, code, fmt.Sprintf(format, args...), cause)
}
