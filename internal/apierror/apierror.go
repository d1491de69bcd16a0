// Package apierror defines the typed error taxonomy used across the
// DICOMweb server core. Handlers return *Error; the HTTP front
// translates it into a fixed status code plus a JSON body.
package apierror

import "net/http"

// Kind enumerates the error categories the server front understands.
type Kind string

const (
	KindBadRequest           Kind = "BadRequest"
	KindNotFound             Kind = "NotFound"
	KindConflict             Kind = "Conflict"
	KindUnsupportedMediaType Kind = "UnsupportedMediaType"
	KindPayloadTooLarge      Kind = "PayloadTooLarge"
	KindRangeNotSatisfiable  Kind = "RangeNotSatisfiable"
	KindNotAcceptable        Kind = "NotAcceptable"
	KindNotImplemented       Kind = "NotImplemented"
	KindInternal             Kind = "Internal"
	KindValidationError      Kind = "ValidationError"
	KindUnavailable          Kind = "Unavailable"
)

// Error is the typed error carried by handlers through to the server front.
type Error struct {
	Kind    Kind
	Message string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}

// New builds an *Error of the given kind with a message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error of the given kind wrapping an underlying error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Wrapped: err}
}

// HTTPStatus maps a Kind to its fixed response status code.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindBadRequest, KindValidationError:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUnsupportedMediaType:
		return http.StatusUnsupportedMediaType
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindRangeNotSatisfiable:
		return http.StatusRequestedRangeNotSatisfiable
	case KindNotAcceptable:
		return http.StatusNotAcceptable
	case KindNotImplemented:
		return http.StatusNotImplemented
	case KindInternal:
		return http.StatusInternalServerError
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// As extracts an *Error from err, if any.
func As(err error) (*Error, bool) {
	ae, ok := err.(*Error)
	return ae, ok
}
