package models

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorCode defines specific error types for the API.
type ErrorCode string

const (
	// ErrorCodeValidationFailed is returned when input data fails validation
	ErrorCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	// ErrorCodeMissingField is returned when a required field is missing
	ErrorCodeMissingField ErrorCode = "MISSING_FIELD"

	// ErrorCodeNotFound is returned when a resource is not found
	ErrorCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrorCodeConflict is returned when creating a resource whose id already exists
	ErrorCodeConflict ErrorCode = "CONFLICT"
	// ErrorCodeUnauthorized is returned when authentication is missing or invalid
	ErrorCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrorCodeForbidden is returned when an authorization predicate fails
	ErrorCodeForbidden ErrorCode = "FORBIDDEN"

	// ErrorCodeLockTimeout is returned when a named mutex could not be acquired in time
	ErrorCodeLockTimeout ErrorCode = "LOCK_TIMEOUT"
	// ErrorCodeCorruptResource is returned when a stored document failed to parse
	ErrorCodeCorruptResource ErrorCode = "CORRUPT_RESOURCE"
	// ErrorCodeStorageError is returned when a storage operation fails
	ErrorCodeStorageError ErrorCode = "STORAGE_ERROR"
	// ErrorCodeInternal is returned when an unexpected server error occurs
	ErrorCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// ErrorDetails defines the structured error information in a response.
type ErrorDetails struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// ErrorResponse is the standard API error response.
type ErrorResponse struct {
	Error   ErrorDetails   `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorWithStatus is an error that includes an HTTP status code and error code.
type ErrorWithStatus interface {
	Error() string
	StatusCode() int
	Code() ErrorCode
	Details() map[string]any
}

// APIError is a concrete error type with status code, code, and optional details.
type APIError struct {
	statusCode int
	code       ErrorCode
	message    string
	details    map[string]any
	wrappedErr error
}

// NewAPIError creates a new APIError with the given status code and message.
func NewAPIError(statusCode int, code ErrorCode, message string) *APIError {
	return &APIError{
		statusCode: statusCode,
		code:       code,
		message:    message,
		details:    make(map[string]any),
	}
}

// WithDetail adds a single detail to the error.
func (e *APIError) WithDetail(key string, value any) *APIError {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	e.details[key] = value
	return e
}

// Wrap wraps an underlying error.
func (e *APIError) Wrap(err error) *APIError {
	e.wrappedErr = err
	return e
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.wrappedErr != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrappedErr)
	}
	return e.message
}

// StatusCode returns the HTTP status code.
func (e *APIError) StatusCode() int {
	return e.statusCode
}

// Code returns the error code.
func (e *APIError) Code() ErrorCode {
	return e.code
}

// Details returns additional error details.
func (e *APIError) Details() map[string]any {
	return e.details
}

// Unwrap returns the wrapped error if any.
func (e *APIError) Unwrap() error {
	return e.wrappedErr
}

// Predefined error constructors for common cases

// NotFound creates a 404 Not Found error.
func NotFound(resource string) *APIError {
	return NewAPIError(http.StatusNotFound, ErrorCodeNotFound, fmt.Sprintf("%s not found", resource))
}

// Conflict creates a 400 error for an id that already exists.
func Conflict(resource, id string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrorCodeConflict,
		fmt.Sprintf("%s %q already exists", resource, id)).WithDetail("id", id)
}

// BadRequest creates a 400 Bad Request error.
func BadRequest(message string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrorCodeValidationFailed, message)
}

// MissingField creates a 400 Bad Request error for a missing field.
func MissingField(fieldName string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrorCodeMissingField, fmt.Sprintf("Missing required field: %s", fieldName))
}

// Forbidden returns a 403 Forbidden error.
func Forbidden(message string) *APIError {
	return NewAPIError(http.StatusForbidden, ErrorCodeForbidden, message)
}

// Unauthorized returns a 401 Unauthorized error.
func Unauthorized() *APIError {
	return NewAPIError(http.StatusUnauthorized, ErrorCodeUnauthorized, "Unauthorized")
}

// LockTimeout creates a 503 error for a lock that could not be acquired.
// It names the lock and the elapsed wait so overload is distinguishable
// from business errors in logs.
func LockTimeout(name string, elapsed time.Duration) *APIError {
	return NewAPIError(http.StatusServiceUnavailable, ErrorCodeLockTimeout,
		fmt.Sprintf("could not acquire lock %q within %s", name, elapsed.Round(time.Millisecond))).
		WithDetail("lock", name)
}

// CorruptResource creates a 500 error for a stored document that failed to parse.
func CorruptResource(path string, err error) *APIError {
	return NewAPIError(http.StatusInternalServerError, ErrorCodeCorruptResource,
		fmt.Sprintf("corrupt resource at %s", path)).Wrap(err)
}

// StorageError creates a 500 error for a failed file or directory operation.
func StorageError(message string, err error) *APIError {
	return NewAPIError(http.StatusInternalServerError, ErrorCodeStorageError, message).Wrap(err)
}

// Internal returns a 500 Internal Server Error.
func Internal(message string) *APIError {
	return NewAPIError(http.StatusInternalServerError, ErrorCodeInternal, message)
}

// HasCode reports whether err carries the given error code.
func HasCode(err error, code ErrorCode) bool {
	var ews ErrorWithStatus
	return errors.As(err, &ews) && ews.Code() == code
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	return HasCode(err, ErrorCodeNotFound)
}

// IsConflict reports whether err is a conflict error.
func IsConflict(err error) bool {
	return HasCode(err, ErrorCodeConflict)
}
