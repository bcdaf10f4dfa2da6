package httpclient

import (
	"net/http"
	"strconv"
	"time"
)

// ParseRetryHeaders reads the standard Retry-After header, accepting both
// delay-seconds and HTTP-date forms.
func ParseRetryHeaders(h http.Header) RateLimitInfo {
	var info RateLimitInfo

	retryAfter := h.Get("Retry-After")
	if retryAfter == "" {
		return info
	}

	if secs, err := strconv.Atoi(retryAfter); err == nil && secs > 0 {
		info.RetryAfter = time.Duration(secs) * time.Second
		return info
	}

	if t, err := http.ParseTime(retryAfter); err == nil {
		if d := time.Until(t); d > 0 {
			info.RetryAfter = d
		}
	}

	return info
}
