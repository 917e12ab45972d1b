package common

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
)

// ErrorCode represents different types of application errors
type ErrorCode string

const (
	// General errors
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput       ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeTimeout            ErrorCode = "TIMEOUT"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"

	// Validation errors
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidFormat    ErrorCode = "INVALID_FORMAT"
	ErrCodeOutOfRange       ErrorCode = "OUT_OF_RANGE"

	// Storage errors
	ErrCodeDatabaseConnection ErrorCode = "DATABASE_CONNECTION"
	ErrCodeDatabaseQuery      ErrorCode = "DATABASE_QUERY"

	// External service errors
	ErrCodeExternalService ErrorCode = "EXTERNAL_SERVICE"

	// Model errors
	ErrCodeInsufficientData ErrorCode = "INSUFFICIENT_DATA"
	ErrCodeCorruptSnapshot  ErrorCode = "CORRUPT_SNAPSHOT"
)

// AppError represents a structured application error
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	Cause      error     `json:"-"`
	StatusCode int       `json:"-"`
	Stack      string    `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new application error
func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: getHTTPStatusCode(code),
		Stack:      getStackTrace(),
	}
}

// NewAppErrorWithDetails creates a new application error with details
func NewAppErrorWithDetails(code ErrorCode, message, details string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		Details:    details,
		StatusCode: getHTTPStatusCode(code),
		Stack:      getStackTrace(),
	}
}

// NewAppErrorWithCause creates a new application error with an underlying cause
func NewAppErrorWithCause(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		Cause:      cause,
		StatusCode: getHTTPStatusCode(code),
		Stack:      getStackTrace(),
	}
}

// WrapError wraps an existing error with application error context
func WrapError(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}

	// If it's already an AppError, preserve it
	if appErr := GetAppError(err); appErr != nil {
		return appErr
	}

	return &AppError{
		Code:       code,
		Message:    message,
		Cause:      err,
		StatusCode: getHTTPStatusCode(code),
		Stack:      getStackTrace(),
	}
}

// getHTTPStatusCode maps error codes to HTTP status codes
func getHTTPStatusCode(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeInvalidInput, ErrCodeValidationFailed, ErrCodeInvalidFormat,
		ErrCodeOutOfRange, ErrCodeCorruptSnapshot:
		return http.StatusBadRequest
	case ErrCodeTimeout:
		return http.StatusRequestTimeout
	case ErrCodeServiceUnavailable, ErrCodeDatabaseConnection, ErrCodeExternalService:
		return http.StatusServiceUnavailable
	case ErrCodeInsufficientData:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// getStackTrace captures the current stack trace
func getStackTrace() string {
	buf := make([]byte, 1024)
	for {
		n := runtime.Stack(buf, false)
		if n < len(buf) {
			return string(buf[:n])
		}
		buf = make([]byte, 2*len(buf))
	}
}

// GetAppError extracts AppError from error chain
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// HasErrorCode checks if the error has a specific error code
func HasErrorCode(err error, code ErrorCode) bool {
	if appErr := GetAppError(err); appErr != nil {
		return appErr.Code == code
	}
	return false
}

// StatusCodeOf returns the HTTP status code carried by err, 500 otherwise
func StatusCodeOf(err error) int {
	if appErr := GetAppError(err); appErr != nil && appErr.StatusCode != 0 {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

// Common error constructors for frequently used errors

// ErrNotFound creates a not found error
func ErrNotFound(resource string) *AppError {
	return NewAppError(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

// ErrInvalidInput creates an invalid input error
func ErrInvalidInput(field string) *AppError {
	return NewAppError(ErrCodeInvalidInput, fmt.Sprintf("invalid input for field: %s", field))
}

// ErrValidationFailed creates a validation failed error
func ErrValidationFailed(details string) *AppError {
	return NewAppErrorWithDetails(ErrCodeValidationFailed, "validation failed", details)
}

// ErrInsufficientData creates an insufficient training data error
func ErrInsufficientData(have, need int) *AppError {
	return NewAppErrorWithDetails(ErrCodeInsufficientData, "insufficient training data",
		fmt.Sprintf("have %d samples, need at least %d", have, need))
}

// ErrCorruptSnapshot creates a corrupt snapshot error
func ErrCorruptSnapshot(cause error) *AppError {
	return NewAppErrorWithCause(ErrCodeCorruptSnapshot, "model snapshot is invalid", cause)
}

// ErrExternalService creates an external service error
func ErrExternalService(service string, cause error) *AppError {
	return NewAppErrorWithCause(ErrCodeExternalService,
		fmt.Sprintf("external service error: %s", service), cause)
}

// ErrDatabaseQuery creates a database query error
func ErrDatabaseQuery(operation string, cause error) *AppError {
	return NewAppErrorWithCause(ErrCodeDatabaseQuery,
		fmt.Sprintf("database query failed: %s", operation), cause)
}

// ErrInternal creates an internal error
func ErrInternal(message string) *AppError {
	if message == "" {
		message = "internal server error"
	}
	return NewAppError(ErrCodeInternal, message)
}
