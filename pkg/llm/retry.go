package llm

import (
	"context"
	"errors"
	"strings"
	"time"
)

// IsRetryable reports whether a provider error is transient (network
// trouble, rate limiting, or a 5xx) and worth retrying with the same
// history. Cancellation is never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "reset") ||
		strings.Contains(errStr, "temporary") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "529") ||
		strings.Contains(errStr, "overloaded")
}

// Backoff returns the wait before retry attempt n (0-based), doubling
// from one second.
func Backoff(attempt int) time.Duration {
	return time.Second * time.Duration(1<<attempt)
}
