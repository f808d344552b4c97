package chat

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the chat package.
var (
	// ErrNoChoices indicates the backend returned no reply.
	ErrNoChoices = errors.New("chat: no choices returned")

	// ErrMissingAPIKey indicates the Gemini API key was not provided.
	ErrMissingAPIKey = errors.New("chat: API key is required")

	// ErrMissingBaseURL indicates the chat server URL was not provided.
	ErrMissingBaseURL = errors.New("chat: base URL is required")

	// ErrEmptyMessage indicates an empty prompt.
	ErrEmptyMessage = errors.New("chat: message is empty")
)

// APIError represents a non-2xx response from the chat server.
type APIError struct {
	StatusCode int
	Message    string
	Retryable  bool
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("chat: API error (HTTP %d): %s", e.StatusCode, e.Message)
}

// IsRetryable returns true if the request can be retried.
func (e *APIError) IsRetryable() bool {
	return e.Retryable
}

// NewAPIError creates a new APIError.
func NewAPIError(statusCode int, message string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		Message:    message,
		Retryable:  statusCode == http.StatusTooManyRequests || statusCode >= 500,
	}
}

// IsRetryable returns true if err is a retryable APIError.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsRetryable()
	}
	return false
}

// IsUnauthorized returns true if the server rejected the credentials.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden
	}
	return false
}
