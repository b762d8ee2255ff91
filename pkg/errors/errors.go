// Package errors defines unified error types for cheatsheet service operations.
// Provider failures, curation anomalies, session misuse, and configuration
// problems are all mapped to these standard error types.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ServiceError represents a standardized error from the cheatsheet service.
// It contains all necessary information for error handling, logging, and client response.
type ServiceError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Type       string `json:"type"`
	Provider   string `json:"provider,omitempty"`
	Retryable  bool   `json:"-"`
	Err        error  `json:"-"`
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("[%s] %s (provider=%s, code=%d)",
			e.Type, e.Message, e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("[%s] %s (code=%d)", e.Type, e.Message, e.StatusCode)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As chains.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the appropriate HTTP status code for the error.
func (e *ServiceError) HTTPStatusCode() int {
	if e.StatusCode > 0 {
		return e.StatusCode
	}
	return http.StatusInternalServerError
}

// Common error types as constants for consistency.
const (
	TypeInvocation         = "invocation_error"
	TypeCurationParse      = "curation_parse_error"
	TypeAnswerExtraction   = "answer_extraction_error"
	TypeConfiguration      = "configuration_error"
	TypeSessionState       = "session_state_error"
	TypeNotFound           = "not_found_error"
	TypeAuthentication     = "authentication_error"
	TypeRateLimit          = "rate_limit_error"
	TypeInvalidRequest     = "invalid_request_error"
	TypeTimeout            = "timeout_error"
	TypeServiceUnavailable = "service_unavailable_error"
	TypeInternalError      = "internal_error"
)

// NewInvocationError creates the terminal error surfaced when a model call
// has failed after all retries (502). The last provider error is attached
// as the cause.
func NewInvocationError(provider, message string, cause error) *ServiceError {
	return &ServiceError{
		StatusCode: http.StatusBadGateway,
		Message:    message,
		Type:       TypeInvocation,
		Provider:   provider,
		Retryable:  false,
		Err:        cause,
	}
}

// NewCurationParseError creates the non-fatal error raised when a curator
// response carries no recognizable cheatsheet section (422). The store is
// left unchanged when this occurs.
func NewCurationParseError(message string) *ServiceError {
	return &ServiceError{
		StatusCode: http.StatusUnprocessableEntity,
		Message:    message,
		Type:       TypeCurationParse,
		Retryable:  false,
	}
}

// NewAnswerExtractionError creates the non-fatal error raised when a
// generation response carries no final-answer marker (422). The raw output
// remains usable by the caller.
func NewAnswerExtractionError(message string) *ServiceError {
	return &ServiceError{
		StatusCode: http.StatusUnprocessableEntity,
		Message:    message,
		Type:       TypeAnswerExtraction,
		Retryable:  false,
	}
}

// NewConfigurationError creates a fatal startup error (500).
func NewConfigurationError(message string, cause error) *ServiceError {
	return &ServiceError{
		StatusCode: http.StatusInternalServerError,
		Message:    message,
		Type:       TypeConfiguration,
		Retryable:  false,
		Err:        cause,
	}
}

// NewSessionStateError creates an error for an operation that is not legal
// in the session's current state (409).
func NewSessionStateError(message string) *ServiceError {
	return &ServiceError{
		StatusCode: http.StatusConflict,
		Message:    message,
		Type:       TypeSessionState,
		Retryable:  false,
	}
}

// NewNotFoundError creates a not found error (404).
func NewNotFoundError(message string) *ServiceError {
	return &ServiceError{
		StatusCode: http.StatusNotFound,
		Message:    message,
		Type:       TypeNotFound,
		Retryable:  false,
	}
}

// NewAuthenticationError creates an authentication error (401).
func NewAuthenticationError(provider, message string) *ServiceError {
	return &ServiceError{
		StatusCode: http.StatusUnauthorized,
		Message:    message,
		Type:       TypeAuthentication,
		Provider:   provider,
		Retryable:  false,
	}
}

// NewRateLimitError creates a rate limit error (429).
func NewRateLimitError(provider, message string) *ServiceError {
	return &ServiceError{
		StatusCode: http.StatusTooManyRequests,
		Message:    message,
		Type:       TypeRateLimit,
		Provider:   provider,
		Retryable:  true,
	}
}

// NewInvalidRequestError creates an invalid request error (400).
func NewInvalidRequestError(provider, message string) *ServiceError {
	return &ServiceError{
		StatusCode: http.StatusBadRequest,
		Message:    message,
		Type:       TypeInvalidRequest,
		Provider:   provider,
		Retryable:  false,
	}
}

// NewTimeoutError creates a timeout error (408).
func NewTimeoutError(provider, message string) *ServiceError {
	return &ServiceError{
		StatusCode: http.StatusRequestTimeout,
		Message:    message,
		Type:       TypeTimeout,
		Provider:   provider,
		Retryable:  true,
	}
}

// NewServiceUnavailableError creates a service unavailable error (503).
func NewServiceUnavailableError(provider, message string) *ServiceError {
	return &ServiceError{
		StatusCode: http.StatusServiceUnavailable,
		Message:    message,
		Type:       TypeServiceUnavailable,
		Provider:   provider,
		Retryable:  true,
	}
}

// NewInternalError creates an internal server error (500).
func NewInternalError(message string, cause error) *ServiceError {
	return &ServiceError{
		StatusCode: http.StatusInternalServerError,
		Message:    message,
		Type:       TypeInternalError,
		Retryable:  false,
		Err:        cause,
	}
}

// IsRetryable reports whether the error is a transient provider failure
// that the invoker may retry with backoff.
func IsRetryable(err error) bool {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// IsType reports whether the error chain contains a ServiceError of the
// given type.
func IsType(err error, errType string) bool {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Type == errType
	}
	return false
}

// IsCurationParse reports whether the error is a curation parse failure.
func IsCurationParse(err error) bool { return IsType(err, TypeCurationParse) }

// IsAnswerExtraction reports whether the error is an answer extraction failure.
func IsAnswerExtraction(err error) bool { return IsType(err, TypeAnswerExtraction) }

// IsSessionState reports whether the error is a session state violation.
func IsSessionState(err error) bool { return IsType(err, TypeSessionState) }

// IsNotFound reports whether the error is a not-found error.
func IsNotFound(err error) bool { return IsType(err, TypeNotFound) }

// IsRetryableStatus classifies a raw upstream HTTP status code.
// Timeouts, rate limits, and all 5xx responses are worth retrying;
// other 4xx responses are client errors and are not.
func IsRetryableStatus(statusCode int) bool {
	if statusCode >= 400 && statusCode < 500 {
		switch statusCode {
		case http.StatusTooManyRequests, // 429
			http.StatusRequestTimeout: // 408
			return true
		default:
			return false
		}
	}
	return statusCode >= 500
}
