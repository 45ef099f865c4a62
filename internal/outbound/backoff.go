package outbound

import (
	"strconv"
	"time"
)

// Backoff delays indexed by attempt number (1-based). The first attempt is
// immediate; each retry waits geometrically longer. The attempt cap is
// enforced by the delivery row's max_attempts, not by this table.
var backoffDelays = []time.Duration{
	0,                // attempt 1: immediate
	30 * time.Second, // attempt 2
	2 * time.Minute,  // attempt 3
	8 * time.Minute,  // clamp for anything beyond
}

// CalculateBackoffDelay returns the wait before the given attempt number.
func CalculateBackoffDelay(attemptNumber int) time.Duration {
	index := attemptNumber - 1
	if index < 0 {
		index = 0
	}
	if index >= len(backoffDelays) {
		index = len(backoffDelays) - 1
	}
	return backoffDelays[index]
}

// ParseRetryAfterHeader parses a Retry-After header value given in seconds.
// HTTP-date values are not supported and report false.
func ParseRetryAfterHeader(retryAfter string) (time.Duration, bool) {
	if retryAfter == "" {
		return 0, false
	}

	seconds, err := strconv.Atoi(retryAfter)
	if err != nil || seconds < 0 {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}
