package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorType classifies provider failures for retry decisions.
type ErrorType int8

const (
	// Retryable error types.

	// ErrorTypeRateLimit represents rate limiting (429, quota exceeded).
	ErrorTypeRateLimit ErrorType = iota
	// ErrorTypeTransient represents transient faults (5xx, timeouts,
	// connection resets).
	ErrorTypeTransient
	// ErrorTypeEmptyResponse represents a successful call that produced no
	// content.
	ErrorTypeEmptyResponse

	// Non-retryable error types.

	// ErrorTypeAuth represents credential problems (401/403).
	ErrorTypeAuth
	// ErrorTypeBadPrompt represents malformed or rejected requests (4xx).
	ErrorTypeBadPrompt
	// ErrorTypeUnknown is the default for unclassified errors.
	ErrorTypeUnknown
)

// String returns the string representation of the error type.
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeEmptyResponse:
		return "empty_response"
	case ErrorTypeAuth:
		return "auth"
	case ErrorTypeBadPrompt:
		return "bad_prompt"
	default:
		return "unknown"
	}
}

// Retryable reports whether errors of this type are worth another attempt.
// Unknown errors are not retried: an unclassified permanent failure would
// otherwise hold the generation lock through the whole backoff schedule.
func (et ErrorType) Retryable() bool {
	switch et {
	case ErrorTypeRateLimit, ErrorTypeTransient, ErrorTypeEmptyResponse:
		return true
	default:
		return false
	}
}

// Error is a provider failure tagged with its classification.
type Error struct {
	Type       ErrorType
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s error (%s): %s", e.Provider, e.Type, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s error (%s): %v", e.Provider, e.Type, e.Err)
	}
	return fmt.Sprintf("%s error (%s): status %d", e.Provider, e.Type, e.StatusCode)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a classified provider error.
func NewError(t ErrorType, provider, message string) *Error {
	return &Error{Type: t, Provider: provider, Message: message}
}

// NewErrorWithStatus creates a classified provider error from an HTTP
// status.
func NewErrorWithStatus(t ErrorType, provider string, status int, message string) *Error {
	return &Error{Type: t, Provider: provider, StatusCode: status, Message: message}
}

// WrapError wraps a transport-level error with a classification.
func WrapError(t ErrorType, provider string, cause error) *Error {
	return &Error{Type: t, Provider: provider, Err: cause}
}

// TypeOf returns the classification of err, ErrorTypeUnknown when untagged.
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// IsRetryable reports whether err is worth another attempt. Context
// cancellation is never retried regardless of classification.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Type.Retryable()
	}
	return false
}

// ClassifyStatus maps an HTTP status code to an error type.
func ClassifyStatus(status int) ErrorType {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrorTypeAuth
	case status == http.StatusRequestTimeout:
		return ErrorTypeTransient
	case status >= 500:
		return ErrorTypeTransient
	case status >= 400:
		return ErrorTypeBadPrompt
	default:
		return ErrorTypeUnknown
	}
}
