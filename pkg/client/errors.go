package client

import (
	"errors"
	"fmt"
	"time"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrNotFound is matched by errors for 404 responses.
	ErrNotFound = errors.New("record not found")

	// ErrQuery is matched by errors for requests OpenAlex rejected as malformed (400, 403).
	ErrQuery = errors.New("invalid query")

	// ErrRateLimited is returned when the request budget is exhausted.
	ErrRateLimited = errors.New("request blocked: rate limit exhausted")
)

// APIError is an error response from OpenAlex, or a failure to reach it.
type APIError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error

	// RetryAfter is the server-requested delay of a 429 response.
	RetryAfter time.Duration

	retryable bool
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("OpenAlex %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("OpenAlex %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// shouldRetry determines if an error class may be retried at all.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient, ErrorClassNotFound:
		// 4xx errors are never retried
		return false
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		return false
	}
}

// isRetryable reports whether a specific error may be retried. Only the
// status codes in Config.RetryHTTPCodes are; transport failures always are.
func isRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.retryable
	}
	return true
}
