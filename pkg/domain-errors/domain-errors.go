package domainerrors

import "errors"

// Code represents an error category independent of the transport layer.
// Codes describe what went wrong in calculation terms, not HTTP terms.
type Code string

const (
	CodeValidation  Code = "validation_failed"
	CodeTransport   Code = "transport_failed"
	CodeTimeout     Code = "timeout"
	CodeEmptyResult Code = "empty_result"
	CodeBadData     Code = "bad_data"
	CodeBadRequest  Code = "bad_request"
	CodeNotFound    Code = "not_found"
	CodeInternal    Code = "internal_error"
)

// Error wraps calculation or infrastructure failures with a stable code.
// Field is set for validation failures and names the offending argument.
type Error struct {
	Code    Code
	Field   string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

// Unwrap implements error unwrapping for error chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is enables errors.Is() to match errors by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new domain error with the given code and message.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Invalid creates a validation error for a single argument.
func Invalid(field, msg string) error {
	return &Error{Code: CodeValidation, Field: field, Message: msg}
}

// Wrap creates a new domain error wrapping an existing error.
// If the wrapped error is already a domain error, the original code and field are preserved.
func Wrap(err error, code Code, msg string) error {
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{Code: existing.Code, Field: existing.Field, Message: msg, Err: err}
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode checks if an error is a domain error with the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf returns the code of the outermost domain error, or CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// FieldOf returns the argument named by a validation error, or "".
func FieldOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Field
	}
	return ""
}
