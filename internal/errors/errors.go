// Package errors provides coded domain errors for the Hush reading core.
//
// Usage:
//
//	// In the sequencer - return typed errors
//	if index < 0 || index >= total {
//	    return current, errors.OutOfRangef("block %d outside [0,%d)", index, total)
//	}
//
//	// In callers - check with errors.Is
//	if errors.Is(err, errors.ErrAtBoundary) {
//	    return // nothing to do, already at the edge
//	}
//
//	// Or use the Code directly for switch statements
//	var domainErr *errors.Error
//	if errors.As(err, &domainErr) {
//	    switch domainErr.Code {
//	    case errors.CodeNotFound:
//	        showNotFound()
//	    case errors.CodeNarrationFailed:
//	        showNotice(domainErr.Message)
//	    }
//	}
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
	New    = errors.New
)

// Code represents a machine-readable error code.
type Code string

// Error codes used throughout the application.
const (
	CodeNotFound           Code = "NOT_FOUND"
	CodeValidation         Code = "VALIDATION"
	CodeOutOfRange         Code = "OUT_OF_RANGE"
	CodeAtBoundary         Code = "AT_BOUNDARY"
	CodeTransitionInFlight Code = "TRANSITION_IN_FLIGHT"
	CodeNarrationFailed    Code = "NARRATION_FAILED"
	CodeInvalidBlock       Code = "INVALID_BLOCK"
	CodeRateLimited        Code = "RATE_LIMITED"
	CodeInternal           Code = "INTERNAL"
)

// Silent reports whether errors with this code are resolved internally and
// must never be shown to the reader.
func (c Code) Silent() bool {
	switch c {
	case CodeOutOfRange, CodeAtBoundary, CodeTransitionInFlight:
		return true
	default:
		return false
	}
}

// HTTPStatus returns the appropriate HTTP status code for an error code.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeValidation, CodeInvalidBlock:
		return http.StatusBadRequest
	case CodeOutOfRange:
		return http.StatusRequestedRangeNotSatisfiable
	case CodeAtBoundary, CodeTransitionInFlight:
		return http.StatusConflict
	case CodeNarrationFailed:
		return http.StatusBadGateway
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error with a code, message, and optional details.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target matches this error.
// Matches if target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// HTTPStatus returns the HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a new error with additional details.
func (e *Error) WithDetails(details any) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		cause:   e.cause,
	}
}

// WithMessage returns a new error with the same code and a custom message.
func (e *Error) WithMessage(msg string) *Error {
	return &Error{
		Code:    e.Code,
		Message: msg,
		Details: e.Details,
		cause:   e.cause,
	}
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		cause:   err,
	}
}

// Sentinel errors for use with errors.Is().
var (
	ErrNotFound           = &Error{Code: CodeNotFound, Message: "not found"}
	ErrValidation         = &Error{Code: CodeValidation, Message: "validation error"}
	ErrOutOfRange         = &Error{Code: CodeOutOfRange, Message: "index out of range"}
	ErrAtBoundary         = &Error{Code: CodeAtBoundary, Message: "already at story boundary"}
	ErrTransitionInFlight = &Error{Code: CodeTransitionInFlight, Message: "transition in flight"}
	ErrNarrationFailed    = &Error{Code: CodeNarrationFailed, Message: "narration failed"}
	ErrInvalidBlock       = &Error{Code: CodeInvalidBlock, Message: "invalid block"}
	ErrRateLimited        = &Error{Code: CodeRateLimited, Message: "too many requests"}
	ErrInternal           = &Error{Code: CodeInternal, Message: "internal error"}
)

// Constructor functions for creating errors with custom messages.

// NotFound creates a not found error.
func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

// NotFoundf creates a not found error with formatted message.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a validation error.
func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

// Validationf creates a validation error with formatted message.
func Validationf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// ValidationWithDetails creates a validation error with details.
func ValidationWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

// OutOfRangef creates an out of range error with formatted message.
func OutOfRangef(format string, args ...any) *Error {
	return &Error{Code: CodeOutOfRange, Message: fmt.Sprintf(format, args...)}
}

// AtBoundaryf creates an at boundary error with formatted message.
func AtBoundaryf(format string, args ...any) *Error {
	return &Error{Code: CodeAtBoundary, Message: fmt.Sprintf(format, args...)}
}

// NarrationFailed wraps a synthesis or playback failure.
func NarrationFailed(err error, msg string) *Error {
	return &Error{Code: CodeNarrationFailed, Message: msg, cause: err}
}

// InvalidBlockf creates an invalid block error with formatted message.
func InvalidBlockf(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidBlock, Message: fmt.Sprintf(format, args...)}
}

// Internal creates an internal error.
func Internal(msg string) *Error {
	return &Error{Code: CodeInternal, Message: msg}
}

// Wrap wraps an error with a code and message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// Wrapf wraps an error with a code and formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
