package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorType represents the type of LLM error
type ErrorType string

const (
	ErrorTypeUnknown           ErrorType = "unknown"
	ErrorTypeInvalidRequest    ErrorType = "invalid_request"
	ErrorTypeAuthentication    ErrorType = "authentication_error"
	ErrorTypePermission        ErrorType = "permission_error"
	ErrorTypeNotFound          ErrorType = "not_found"
	ErrorTypeRateLimit         ErrorType = "rate_limit_exceeded"
	ErrorTypeInsufficientQuota ErrorType = "insufficient_quota"
	ErrorTypeInvalidModel      ErrorType = "invalid_model"
	ErrorTypeContextLength     ErrorType = "context_length_exceeded"
	ErrorTypeContentFilter     ErrorType = "content_filter"
	ErrorTypeServerError       ErrorType = "server_error"
	ErrorTypeTimeout           ErrorType = "timeout"
	ErrorTypeConnectionError   ErrorType = "connection_error"
	ErrorTypeValidationError   ErrorType = "validation_error"
	ErrorTypeJSONParsingError  ErrorType = "json_parsing_error"
)

// LLMError represents an error from an LLM provider. Transport failures reach
// callers of the structured negotiator as *LLMError, unmodified.
type LLMError struct {
	Type       ErrorType         `json:"type"`
	Message    string            `json:"message"`
	Code       string            `json:"code,omitempty"`
	Provider   Provider          `json:"provider"`
	Model      string            `json:"model,omitempty"`
	HTTPStatus int               `json:"http_status,omitempty"`
	Retryable  bool              `json:"retryable"`
	RetryAfter int               `json:"retry_after,omitempty"` // Seconds to wait before retry
	Details    map[string]string `json:"details,omitempty"`
	Cause      error             `json:"-"`
}

// Error implements the error interface
func (e *LLMError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// Unwrap returns the underlying error
func (e *LLMError) Unwrap() error {
	return e.Cause
}

// IsRetryable returns true if the error is retryable
func (e *LLMError) IsRetryable() bool {
	return e.Retryable
}

// NewLLMError creates a new LLM error
func NewLLMError(provider Provider, errorType ErrorType, message string) *LLMError {
	return &LLMError{
		Type:      errorType,
		Message:   message,
		Provider:  provider,
		Retryable: isRetryableError(errorType),
	}
}

// NewLLMErrorWithCause creates a new LLM error with an underlying cause
func NewLLMErrorWithCause(provider Provider, errorType ErrorType, message string, cause error) *LLMError {
	err := NewLLMError(provider, errorType, message)
	err.Cause = cause
	return err
}

func isRetryableError(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeRateLimit, ErrorTypeServerError, ErrorTypeTimeout, ErrorTypeConnectionError:
		return true
	default:
		return false
	}
}

// ParseHTTPError maps an HTTP status and body onto the error taxonomy.
func ParseHTTPError(provider Provider, statusCode int, body string) *LLMError {
	var errorType ErrorType
	var message string

	switch statusCode {
	case http.StatusBadRequest:
		errorType, message = ErrorTypeInvalidRequest, "Invalid request parameters"
	case http.StatusUnauthorized:
		errorType, message = ErrorTypeAuthentication, "Invalid API key or authentication failed"
	case http.StatusForbidden:
		errorType, message = ErrorTypePermission, "Permission denied"
	case http.StatusNotFound:
		errorType, message = ErrorTypeNotFound, "Resource not found"
	case http.StatusTooManyRequests:
		errorType, message = ErrorTypeRateLimit, "Rate limit exceeded"
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		errorType, message = ErrorTypeServerError, "Server error occurred"
	default:
		errorType, message = ErrorTypeUnknown, fmt.Sprintf("HTTP %d error", statusCode)
	}

	if body != "" {
		if specific := classifyBody(provider, body); specific != nil {
			specific.HTTPStatus = statusCode
			return specific
		}
		message = fmt.Sprintf("%s: %s", message, truncateBody(body, 200))
	}

	err := NewLLMError(provider, errorType, message)
	err.HTTPStatus = statusCode
	return err
}

// classifyBody recognizes provider error bodies whose status code alone is
// ambiguous (OpenAI returns 400 for context length, 429 for quota, ...).
func classifyBody(provider Provider, body string) *LLMError {
	lower := strings.ToLower(body)
	has := func(subs ...string) bool {
		for _, s := range subs {
			if strings.Contains(lower, s) {
				return true
			}
		}
		return false
	}

	switch {
	case has("rate limit", "too many requests"):
		return NewLLMError(provider, ErrorTypeRateLimit, "Rate limit exceeded")
	case has("insufficient quota", "quota exceeded"):
		return NewLLMError(provider, ErrorTypeInsufficientQuota, "Insufficient quota or credits")
	case has("context length", "token limit"):
		return NewLLMError(provider, ErrorTypeContextLength, "Context length exceeded")
	case has("content filter", "safety"):
		return NewLLMError(provider, ErrorTypeContentFilter, "Content filtered by safety system")
	case has("model") && has("not found", "invalid"):
		return NewLLMError(provider, ErrorTypeInvalidModel, "Invalid or unavailable model")
	}
	return nil
}

func truncateBody(body string, maxLength int) string {
	if len(body) <= maxLength {
		return body
	}
	return body[:maxLength] + "..."
}

// IsLLMError reports whether err wraps an *LLMError and returns it.
func IsLLMError(err error) (*LLMError, bool) {
	var llmErr *LLMError
	if errors.As(err, &llmErr) {
		return llmErr, true
	}
	return nil, false
}

// IsRetryableError checks if an error is retryable
func IsRetryableError(err error) bool {
	if llmErr, ok := IsLLMError(err); ok {
		// Recompute from the type so hand-built errors behave the same.
		return isRetryableError(llmErr.Type)
	}
	return false
}

// IsRateLimitError checks if an error is a rate limit error
func IsRateLimitError(err error) bool {
	llmErr, ok := IsLLMError(err)
	return ok && llmErr.Type == ErrorTypeRateLimit
}

// IsAuthenticationError checks if an error is an authentication error
func IsAuthenticationError(err error) bool {
	llmErr, ok := IsLLMError(err)
	return ok && llmErr.Type == ErrorTypeAuthentication
}
