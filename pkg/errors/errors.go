package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents application-specific error codes
type ErrorCode string

const (
	// Validation errors
	ErrCodeValidation   ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"

	// Call lifecycle errors
	ErrCodeCallNotFound ErrorCode = "CALL_NOT_FOUND"
	ErrCodeCallTerminal ErrorCode = "CALL_TERMINAL"

	// Media errors
	ErrCodeMediaUnavailable ErrorCode = "MEDIA_UNAVAILABLE"

	// Signaling transport errors
	ErrCodeStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"

	// Not found errors
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeUserNotFound ErrorCode = "USER_NOT_FOUND"

	// Internal errors
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// AppError represents a structured application error with code, message, and HTTP status
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	StatusCode int       `json:"-"`
	Err        error     `json:"-"`
}

// Error implements the error interface, returning a formatted error message
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the given code and message
// The status code defaults to 500 Internal Server Error
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

// NewWithStatus creates a new AppError with a specific HTTP status code
func NewWithStatus(code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an existing error with an AppError, preserving the original error
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// HasCode reports whether err carries the given application error code.
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// CallNotFound means the session document does not exist. A callee racing
// the caller's own cancellation sees this as a recoverable "call vanished"
// condition, not a crash.
func CallNotFound(sessionID string) *AppError {
	return NewWithStatus(ErrCodeCallNotFound, fmt.Sprintf("call %s no longer available", sessionID), http.StatusNotFound)
}

// CallTerminal means the session already reached ended/rejected and cannot
// be answered or transitioned again.
func CallTerminal(sessionID string) *AppError {
	return NewWithStatus(ErrCodeCallTerminal, fmt.Sprintf("call %s no longer available", sessionID), http.StatusConflict)
}

// MediaUnavailable wraps a camera/microphone acquisition failure. Fatal to
// the call attempt; surfaced before any signaling write happens.
func MediaUnavailable(err error) *AppError {
	return Wrap(ErrCodeMediaUnavailable, "could not access camera or microphone", err)
}
