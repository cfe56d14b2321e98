package analytics

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes an error for metrics and logging.
type ErrorCode string

// Error codes.
const (
	ErrCodeConfig     ErrorCode = "CONFIG"     // configuration errors
	ErrCodeValidation ErrorCode = "VALIDATION" // event validation errors
	ErrCodeNetwork    ErrorCode = "NETWORK"    // network/connection errors
	ErrCodeAPI        ErrorCode = "API"        // ingestion endpoint errors
	ErrCodeRateLimit  ErrorCode = "RATE_LIMIT" // throttling / quota errors
	ErrCodeOverflow   ErrorCode = "OVERFLOW"   // bounded buffer capacity exceeded
	ErrCodeShutdown   ErrorCode = "SHUTDOWN"   // shutdown-related errors
	ErrCodeInternal   ErrorCode = "INTERNAL"   // internal SDK errors
)

// Sentinel errors.
var (
	ErrMissingAPIKey    = errors.New("analytics: API key is required")
	ErrMissingServerURL = errors.New("analytics: server URL is required")
	ErrInvalidConfig    = errors.New("analytics: invalid configuration")
	ErrClientClosed     = errors.New("analytics: client is closed")
	ErrBufferOverflow   = errors.New("analytics: event buffer is full")
)

// APIError represents a classified response from the ingestion endpoint or a
// transport failure on the way there. Transport failures (network errors,
// timeouts before any response) carry status code 0. APIError supports
// errors.Is comparison by status code and errors.Unwrap for wrapped causes.
type APIError struct {
	StatusCode int    `json:"code"`
	Message    string `json:"error"`
	Err        error  `json:"-"`
}

// Sentinel APIError values for use with errors.Is. They match on status
// code only.
var (
	ErrInvalidRequest  = &APIError{StatusCode: 400}
	ErrPayloadTooLarge = &APIError{StatusCode: 413}
	ErrTooManyRequests = &APIError{StatusCode: 429}
)

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		if e.Message != "" {
			return fmt.Sprintf("analytics: transport error: %s", e.Message)
		}
		return "analytics: transport error"
	}
	if e.Message != "" {
		return fmt.Sprintf("analytics: API error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("analytics: API error (status %d)", e.StatusCode)
}

// Unwrap returns the underlying error for error chain support.
func (e *APIError) Unwrap() error { return e.Err }

// Is implements error comparison for errors.Is, matching on status code.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return e.StatusCode == t.StatusCode
}

// IsRetryable returns true if a batch receiving this error should be retried
// with backoff: timeouts, throttling, server errors, and transport failures.
func (e *APIError) IsRetryable() bool {
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == 408, e.StatusCode == 429:
		return true
	case e.StatusCode >= 500:
		return true
	default:
		return false
	}
}

// Code returns the error category.
func (e *APIError) Code() ErrorCode {
	switch {
	case e.StatusCode == 0:
		return ErrCodeNetwork
	case e.StatusCode == 429:
		return ErrCodeRateLimit
	default:
		return ErrCodeAPI
	}
}

// ValidationError reports a malformed or incomplete event. It is the only
// failure surfaced synchronously to the caller: an event that fails
// validation is never enqueued.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("analytics: validation error for field %q: %s", e.Field, e.Message)
}

// Unwrap returns the underlying error for error chain support.
func (e *ValidationError) Unwrap() error { return e.Err }

// Code returns the error category.
func (e *ValidationError) Code() ErrorCode { return ErrCodeValidation }

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// ShutdownError reports that a graceful shutdown timed out with events still
// pending. Those events may be lost.
type ShutdownError struct {
	Cause         error
	PendingEvents int
}

// Error implements the error interface.
func (e *ShutdownError) Error() string {
	if e.PendingEvents > 0 {
		return fmt.Sprintf("analytics: shutdown timed out: %d pending events may be lost", e.PendingEvents)
	}
	return "analytics: shutdown timed out"
}

// Unwrap returns the underlying error for error chain support.
func (e *ShutdownError) Unwrap() error { return e.Cause }

// Code returns the error category.
func (e *ShutdownError) Code() ErrorCode { return ErrCodeShutdown }

// CodedError is implemented by errors that carry an ErrorCode.
type CodedError interface {
	error
	Code() ErrorCode
}

// ErrorCodeOf returns the category of an error, inferring it from the error
// type when the error does not implement CodedError itself.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var coded CodedError
	if errors.As(err, &coded) {
		return coded.Code()
	}
	switch {
	case errors.Is(err, ErrMissingAPIKey),
		errors.Is(err, ErrMissingServerURL),
		errors.Is(err, ErrInvalidConfig):
		return ErrCodeConfig
	case errors.Is(err, ErrClientClosed):
		return ErrCodeShutdown
	case errors.Is(err, ErrBufferOverflow):
		return ErrCodeOverflow
	}
	return ErrCodeInternal
}

// AsAPIError extracts an APIError from the error chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// AsValidationError extracts a ValidationError from the error chain.
func AsValidationError(err error) (*ValidationError, bool) {
	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return valErr, true
	}
	return nil, false
}

// IsRetryable reports whether the error represents a retryable condition.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if apiErr, ok := AsAPIError(err); ok {
		return apiErr.IsRetryable()
	}
	return false
}
