// Package domainerrors carries coded errors across service boundaries.
//
// Services return *Error values (or wrap lower-level errors into one) so the
// transport layer can pick an HTTP status and an OCPI status code without
// inspecting error strings. Stores keep returning pkg/platform/sentinel
// errors; services translate them with Wrap.
//
// Usage:
//
//	return dErrors.New(dErrors.CodeValidation, "party id must be 3 characters")
//	return dErrors.Wrap(err, dErrors.CodeNotFound, "party not found")
//	if dErrors.HasCode(err, dErrors.CodeConflict) { ... }
package domainerrors

import (
	"errors"
)

// Code classifies an error for the transport layer.
type Code string

const (
	CodeBadRequest         Code = "bad_request"
	CodeValidation         Code = "validation_error"
	CodeInvalidInput       Code = "invalid_input"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeMethodNotAllowed   Code = "method_not_allowed"
	CodePreconditionFailed Code = "precondition_failed"
	CodeInvariantViolation Code = "invariant_violation"
	CodeUnsupportedVersion Code = "unsupported_version"
	CodeUpstream           Code = "upstream_error"
	CodeUnavailable        Code = "unavailable"
	CodeInternal           Code = "internal_error"
)

// Error is a coded domain error. Message is safe to show to clients except
// for CodeInternal, whose message is only logged.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying error. Wrapping a nil
// error returns nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// As returns the outermost *Error in err's chain.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// HasCode reports whether any *Error in err's chain carries code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// Is is an alias of HasCode kept for call-site readability.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the code of the outermost *Error, or CodeInternal.
func CodeOf(err error) Code {
	if de, ok := As(err); ok {
		return de.Code
	}
	return CodeInternal
}
