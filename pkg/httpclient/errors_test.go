package httpclient

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestRetryableError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *RetryableError
		want string
	}{
		{
			name: "with_retry_after",
			err: &RetryableError{
				StatusCode: 429,
				Message:    "max HTTP retries (5) exceeded",
				RetryAfter: 30 * time.Second,
			},
			want: "HTTP 429: max HTTP retries (5) exceeded (retry after 30s)",
		},
		{
			name: "without_retry_after",
			err: &RetryableError{
				StatusCode: 500,
				Message:    "max HTTP retries (3) exceeded",
			},
			want: "HTTP 500: max HTTP retries (3) exceeded",
		},
		{
			name: "sub_second_retry_after",
			err: &RetryableError{
				StatusCode: 503,
				Message:    "overloaded",
				RetryAfter: 1500 * time.Millisecond,
			},
			want: "HTTP 503: overloaded (retry after 1.5s)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRetryableError_Unwrap(t *testing.T) {
	cause := errors.New("HTTP 429")
	err := fmt.Errorf("request failed: %w", &RetryableError{
		StatusCode: 429,
		Message:    "max HTTP retries (5) exceeded",
		RetryAfter: time.Minute,
		Err:        cause,
	})

	if !errors.Is(err, cause) {
		t.Error("errors.Is() should reach the underlying cause")
	}

	var retryErr *RetryableError
	if !errors.As(err, &retryErr) {
		t.Fatal("errors.As() should find the RetryableError in the chain")
	}
	if retryErr.RetryAfter != time.Minute {
		t.Errorf("RetryAfter = %v, want 1m", retryErr.RetryAfter)
	}

	bare := &RetryableError{StatusCode: 500, Message: "boom"}
	if bare.Unwrap() != nil {
		t.Errorf("Unwrap() = %v, want nil", bare.Unwrap())
	}
}
