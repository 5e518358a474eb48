package controller

import "time"

// backoffDelay returns the wait before discovery attempt n+1. It doubles from
// base and is capped at max. A zero base retries immediately.
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	if max < base {
		max = base
	}
	if attempt >= 32 {
		return max
	}
	delay := base << uint(attempt)
	if delay > max || delay <= 0 {
		return max
	}
	return delay
}
