package httpclient

import (
	"net/http"
	"testing"
	"time"
)

func TestParseRetryHeaders_DelaySeconds(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"missing", "", 0},
		{"seconds", "30", 30 * time.Second},
		{"one_second", "1", time.Second},
		{"zero", "0", 0},
		{"negative", "-5", 0},
		{"garbage", "soon", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.value != "" {
				h.Set("Retry-After", tt.value)
			}
			if info := ParseRetryHeaders(h); info.RetryAfter != tt.want {
				t.Errorf("ParseRetryHeaders() RetryAfter = %v, want %v", info.RetryAfter, tt.want)
			}
		})
	}
}

func TestParseRetryHeaders_HTTPDate(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", time.Now().Add(5*time.Second).UTC().Format(http.TimeFormat))

	info := ParseRetryHeaders(h)
	if info.RetryAfter <= 0 || info.RetryAfter > 5*time.Second {
		t.Errorf("ParseRetryHeaders() RetryAfter = %v, want in (0, 5s]", info.RetryAfter)
	}
}

func TestParseRetryHeaders_PastDate(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", time.Now().Add(-time.Minute).UTC().Format(http.TimeFormat))

	if info := ParseRetryHeaders(h); info.RetryAfter != 0 {
		t.Errorf("ParseRetryHeaders() RetryAfter = %v, want 0 for a past date", info.RetryAfter)
	}
}
