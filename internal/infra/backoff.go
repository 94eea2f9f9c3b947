package infra

import (
	"time"
)

const (
	backoffBase = 500 * time.Millisecond
	backoffMax  = 30 * time.Second
)

// Backoff returns the capped exponential delay for a REST retry attempt:
// backoffBase * 2^attempt, capped at backoffMax. Stream reconnects do not
// use this — they run on a fixed delay.
func Backoff(attempt int) time.Duration {
	if attempt < 0 {
		return backoffBase
	}

	// 2^31 shifts already exceed the cap by orders of magnitude.
	if attempt > 30 {
		return backoffMax
	}

	d := backoffBase * time.Duration(1<<attempt)
	if d > backoffMax {
		return backoffMax
	}

	return d
}
