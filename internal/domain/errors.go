package domain

import (
	"errors"
	"net/http"
)

// Kind is the stable, machine-readable code of a failed conversion.
type Kind string

const (
	KindMissingFields       Kind = "MISSING_FIELDS"
	KindInvalidFilename     Kind = "INVALID_FILENAME"
	KindInvalidBody         Kind = "INVALID_BODY"
	KindElementNotFound     Kind = "ELEMENT_NOT_FOUND"
	KindGeometryUnavailable Kind = "GEOMETRY_UNAVAILABLE"
	KindFileNotPersisted    Kind = "FILE_NOT_PERSISTED"
	KindConversionFailed    Kind = "CONVERSION_FAILED"
)

// Status maps a kind to its HTTP status code.
func (k Kind) Status() int {
	switch k {
	case KindMissingFields, KindInvalidFilename, KindInvalidBody:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Sentinel errors raised below the handler. Render engines wrap them so the
// handler can pick the most specific Kind with errors.Is.
var (
	ErrInvalidFilename     = errors.New("invalid filename")
	ErrElementNotFound     = errors.New("could not find code container element")
	ErrGeometryUnavailable = errors.New("could not get element dimensions")
	ErrFileNotPersisted    = errors.New("file was not saved successfully")
)

// Error is a conversion failure as reported to the caller.
type Error struct {
	Kind    Kind
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

// Details is the underlying failure text shown on server-side errors.
func (e *Error) Details() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// NewError builds an Error of the given kind.
func NewError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// ConversionError classifies a failure of the render or verify steps,
// choosing the most specific kind the wrapped chain allows.
func ConversionError(err error) *Error {
	kind := KindConversionFailed
	switch {
	case errors.Is(err, ErrElementNotFound):
		kind = KindElementNotFound
	case errors.Is(err, ErrGeometryUnavailable):
		kind = KindGeometryUnavailable
	case errors.Is(err, ErrFileNotPersisted):
		kind = KindFileNotPersisted
	}
	return &Error{Kind: kind, Message: "Failed to convert HTML to image", Err: err}
}
