package task

import "time"

// RetryDelay computes the backoff before retry attempt (1-based): the
// base delay doubled for each prior attempt, capped at maxDelay. The
// doubling is iterative so a large attempt number cannot overflow.
func RetryDelay(baseDelay, maxDelay time.Duration, attempt int) time.Duration {
	if baseDelay <= 0 {
		return 0
	}

	delay := baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if maxDelay > 0 && delay >= maxDelay {
			return maxDelay
		}
	}

	if maxDelay > 0 && delay > maxDelay {
		return maxDelay
	}
	return delay
}
