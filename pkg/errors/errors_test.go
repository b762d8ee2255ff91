package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestIsRetryableStatus(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		want       bool
	}{
		// Should retry
		{"rate limit 429", http.StatusTooManyRequests, true},
		{"timeout 408", http.StatusRequestTimeout, true},
		{"internal error 500", http.StatusInternalServerError, true},
		{"bad gateway 502", http.StatusBadGateway, true},
		{"service unavailable 503", http.StatusServiceUnavailable, true},

		// Should NOT retry
		{"bad request 400", http.StatusBadRequest, false},
		{"unauthorized 401", http.StatusUnauthorized, false},
		{"forbidden 403", http.StatusForbidden, false},
		{"not found 404", http.StatusNotFound, false},
		{"unprocessable 422", http.StatusUnprocessableEntity, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsRetryableStatus(tt.statusCode)
			if got != tt.want {
				t.Errorf("IsRetryableStatus(%d) = %v, want %v", tt.statusCode, got, tt.want)
			}
		})
	}
}

func TestServiceError(t *testing.T) {
	t.Run("error message format", func(t *testing.T) {
		err := NewRateLimitError("openai", "rate limit exceeded")
		msg := err.Error()

		if msg == "" {
			t.Error("error message should not be empty")
		}

		// Should contain key information
		contains := []string{"rate_limit_error", "openai", "429"}
		for _, s := range contains {
			if !containsString(msg, s) {
				t.Errorf("error message should contain %q, got %q", s, msg)
			}
		}
	})

	t.Run("HTTP status codes", func(t *testing.T) {
		tests := []struct {
			name     string
			err      *ServiceError
			wantCode int
		}{
			{"invocation", NewInvocationError("p", "msg", nil), 502},
			{"curation parse", NewCurationParseError("msg"), 422},
			{"answer extraction", NewAnswerExtractionError("msg"), 422},
			{"configuration", NewConfigurationError("msg", nil), 500},
			{"session state", NewSessionStateError("msg"), 409},
			{"not found", NewNotFoundError("msg"), 404},
			{"auth error", NewAuthenticationError("p", "msg"), 401},
			{"rate limit", NewRateLimitError("p", "msg"), 429},
			{"bad request", NewInvalidRequestError("p", "msg"), 400},
			{"timeout", NewTimeoutError("p", "msg"), 408},
			{"unavailable", NewServiceUnavailableError("p", "msg"), 503},
			{"internal", NewInternalError("msg", nil), 500},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if got := tt.err.HTTPStatusCode(); got != tt.wantCode {
					t.Errorf("HTTPStatusCode() = %d, want %d", got, tt.wantCode)
				}
			})
		}
	})

	t.Run("retryable flag", func(t *testing.T) {
		retryable := []*ServiceError{
			NewRateLimitError("p", "msg"),
			NewTimeoutError("p", "msg"),
			NewServiceUnavailableError("p", "msg"),
		}
		for _, err := range retryable {
			if !err.Retryable {
				t.Errorf("%s should be retryable", err.Type)
			}
			if !IsRetryable(err) {
				t.Errorf("IsRetryable(%s) should be true", err.Type)
			}
		}

		notRetryable := []*ServiceError{
			NewAuthenticationError("p", "msg"),
			NewInvalidRequestError("p", "msg"),
			NewInvocationError("p", "msg", nil),
			NewCurationParseError("msg"),
			NewSessionStateError("msg"),
		}
		for _, err := range notRetryable {
			if err.Retryable {
				t.Errorf("%s should not be retryable", err.Type)
			}
		}
	})

	t.Run("unwrap chain", func(t *testing.T) {
		cause := NewTimeoutError("ollama", "deadline exceeded")
		err := NewInvocationError("ollama", "model call failed after 3 attempts", cause)

		var se *ServiceError
		if !errors.As(err, &se) {
			t.Fatal("errors.As should find a ServiceError")
		}
		if !errors.Is(err, cause) {
			t.Error("errors.Is should reach the wrapped cause")
		}

		wrapped := fmt.Errorf("solve failed: %w", err)
		if !IsType(wrapped, TypeInvocation) {
			t.Error("IsType should see through fmt.Errorf wrapping")
		}
	})

	t.Run("type predicates", func(t *testing.T) {
		if !IsCurationParse(NewCurationParseError("no section")) {
			t.Error("IsCurationParse should match")
		}
		if !IsAnswerExtraction(NewAnswerExtractionError("no marker")) {
			t.Error("IsAnswerExtraction should match")
		}
		if !IsSessionState(NewSessionStateError("bad transition")) {
			t.Error("IsSessionState should match")
		}
		if !IsNotFound(NewNotFoundError("unknown session")) {
			t.Error("IsNotFound should match")
		}
		if IsCurationParse(NewNotFoundError("unknown session")) {
			t.Error("IsCurationParse should not match other types")
		}
	})
}

func containsString(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || len(s) > 0 && containsSubstring(s, substr))
}

func containsSubstring(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
