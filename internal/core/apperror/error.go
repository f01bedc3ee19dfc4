// Package apperror provides structured error handling following RFC 7807 Problem Details.
// All errors leaving the document engine must use AppError for consistent API responses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// Infrastructure errors (5xx)
	CodeInternal             = "INTERNAL_ERROR"
	CodeConfigurationMissing = "CONFIGURATION_MISSING"

	// Validation errors (400)
	CodeValidation   = "VALIDATION_ERROR"
	CodeInvalidInput = "INVALID_INPUT"

	// Business rule violations (422)
	CodePreconditionFailed = "PRECONDITION_FAILED"
	CodeSequenceExhausted  = "SEQUENCE_EXHAUSTED"

	// Conflict (409)
	CodeDuplicateDetected = "DUPLICATE_DETECTED"

	// Lock contention (423)
	CodeBusy = "BUSY"
)

// AppError is the standard error type for the platform.
// It implements error interface and provides structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (folder, class, lock name, ...)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Retryable marks conditions the caller may retry after a short delay
	Retryable bool `json:"retryable,omitempty"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewInvalidInput is returned for a missing or nonexistent order folder (400).
// Not retried.
func NewInvalidInput(message string) *AppError {
	return &AppError{
		Code:       CodeInvalidInput,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewConfigurationMissing is returned when a template or a required setting is absent.
// The operator must fix the configuration.
func NewConfigurationMissing(setting string) *AppError {
	return &AppError{
		Code:       CodeConfigurationMissing,
		Message:    fmt.Sprintf("configuration missing: %s", setting),
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"setting": setting},
	}
}

// NewBusy reports lock contention (423). Retryable after a short delay.
func NewBusy(resource string) *AppError {
	return &AppError{
		Code:       CodeBusy,
		Message:    "Another document is being generated for this resource, try again shortly",
		HTTPStatus: http.StatusLocked,
		Retryable:  true,
		Details:    map[string]any{"resource": resource},
	}
}

// NewDuplicateDetected is returned by the outer duplicate guard (409).
func NewDuplicateDetected(class, orderCode string) *AppError {
	return &AppError{
		Code:       CodeDuplicateDetected,
		Message:    fmt.Sprintf("a %s document for order %s already exists", class, orderCode),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"class": class, "order_code": orderCode},
	}
}

// NewPreconditionFailed creates a business rule violation error (422)
func NewPreconditionFailed(message string) *AppError {
	return &AppError{
		Code:       CodePreconditionFailed,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// NewSequenceExhausted is returned when the next number does not fit the 4-digit grammar.
func NewSequenceExhausted(class string, next int) *AppError {
	return &AppError{
		Code:       CodeSequenceExhausted,
		Message:    fmt.Sprintf("%s sequence exhausted at %d", class, next),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"class": class, "next": next},
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// HasCode reports whether err carries the given AppError code.
func HasCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsBusy checks if error is CodeBusy
func IsBusy(err error) bool {
	return HasCode(err, CodeBusy)
}
