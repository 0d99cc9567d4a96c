// Package errors provides the coded error types shared by the renderer, the
// tile writers and the HTTP server.
//
// Every failure in a render run is terminal for the node that hit it, so the
// codes describe where the failure came from rather than whether to retry:
//   - CONFIGURATION_ERROR: geometry, partition or option validation, raised
//     before any tile is written
//   - RESOURCE_ERROR: the per-block pixel buffer cannot be provided
//   - ENCODING_ERROR: a tile could not be serialized or written
//
// # Usage
//
//	err := errors.New(errors.ErrCodeConfiguration, "width %d is not a multiple of %d", w, bw)
//	if errors.Is(err, errors.ErrCodeConfiguration) {
//	    // reject the run
//	}
//
//	err := errors.Wrap(errors.ErrCodeEncoding, origErr, "write tile %s", name)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

const (
	ErrCodeConfiguration Code = "CONFIGURATION_ERROR"
	ErrCodeResource      Code = "RESOURCE_ERROR"
	ErrCodeEncoding      Code = "ENCODING_ERROR"

	ErrCodeInvalidInput Code = "INVALID_INPUT"
	ErrCodeNotFound     Code = "NOT_FOUND"
	ErrCodeInternal     Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Configuration is shorthand for New(ErrCodeConfiguration, ...).
func Configuration(format string, args ...any) *Error {
	return New(ErrCodeConfiguration, format, args...)
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns the message without the code prefix for *Error values
// and the plain error string otherwise.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
