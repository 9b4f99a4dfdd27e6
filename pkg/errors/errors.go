// Package errors defines the error taxonomy for leaks-collector.
package errors

import (
	"errors"
	"fmt"
)

// Error codes for the application.
const (
	CodeUnknown        = "UNKNOWN_ERROR"
	CodeInvalidInput   = "INVALID_INPUT"
	CodeConfigError    = "CONFIG_ERROR"
	CodeParseError     = "PARSE_ERROR"
	CodeCacheMiss      = "CACHE_MISS"
	CodeEdgeUnresolved = "EDGE_UNRESOLVED"
	CodeStaleOwner     = "STALE_OWNER"
	CodeMissingRoot    = "MISSING_ROOT"
)

// AppError represents an application error with a code and message.
type AppError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError.
func New(code string, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError.
func Wrap(code string, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common error instances, one per branch of the error handling design.
var (
	ErrInvalidInput   = New(CodeInvalidInput, "invalid input")
	ErrConfigError    = New(CodeConfigError, "configuration error")
	ErrParseError     = New(CodeParseError, "snapshot parse error")
	ErrCacheMiss      = New(CodeCacheMiss, "reverse index cache miss")
	ErrEdgeUnresolved = New(CodeEdgeUnresolved, "edge could not be resolved")
	ErrStaleOwner     = New(CodeStaleOwner, "stale node owner entry")
	ErrMissingRoot    = New(CodeMissingRoot, "missing gc root mapping")
)

// IsInvalidInput checks if the error is an invocation error.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsConfigError checks if the error is a configuration error.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrConfigError)
}

// IsParseError checks if the error is a snapshot parse error.
func IsParseError(err error) bool {
	return errors.Is(err, ErrParseError)
}

// IsCacheMiss checks if the error is a cache mismatch/corruption error.
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// GetErrorMessage extracts the error message from an error.
func GetErrorMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
