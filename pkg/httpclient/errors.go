package httpclient

import (
	"fmt"
	"time"
)

// RetryableError is returned by Do when the retry budget is exhausted on
// a retryable status. RetryAfter carries the delay the next attempt
// should wait, so callers with their own retry loop can honor server
// pacing.
type RetryableError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *RetryableError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("HTTP %d: %s (retry after %v)", e.StatusCode, e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}
