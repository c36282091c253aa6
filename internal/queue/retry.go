package queue

import "time"

var retryBackoff = []time.Duration{
	2000 * time.Millisecond,
	5000 * time.Millisecond,
	10000 * time.Millisecond,
	15000 * time.Millisecond,
}

// RetryDelay returns the wait before the retry that follows the failed
// attempt with the given 0-based index. Indices past the table reuse the
// last entry.
func RetryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= len(retryBackoff) {
		return retryBackoff[len(retryBackoff)-1]
	}
	return retryBackoff[attempt]
}

// ShouldRetry reports whether another attempt is allowed after attempt
// (0-based) failed, given at most maxRetries retries.
func ShouldRetry(attempt, maxRetries int) bool {
	return attempt < ClampRetries(maxRetries)
}
