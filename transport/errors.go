package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout indicates a request exceeded the client's per-attempt timeout.
	ErrTimeout = errors.New("request timed out")

	// ErrNetwork indicates the request failed before a response was received.
	ErrNetwork = errors.New("network error")

	// ErrAPI indicates the server answered with a non-2xx status.
	ErrAPI = errors.New("api error")
)

// APIError carries the status and a bounded excerpt of the body of a non-2xx response.
type APIError struct {
	StatusCode int
	Body       string
	Attempts   int
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("api error: status %d after %d attempt(s)", e.StatusCode, e.Attempts)
	}
	return fmt.Sprintf("api error: status %d after %d attempt(s): %s", e.StatusCode, e.Attempts, e.Body)
}

// Unwrap lets errors.Is(err, ErrAPI) match.
func (e *APIError) Unwrap() error {
	return ErrAPI
}

// IsRetryable reports whether the status is one the client retries.
func (e *APIError) IsRetryable() bool {
	return retryableStatus(e.StatusCode)
}
