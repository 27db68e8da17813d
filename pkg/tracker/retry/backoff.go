package retry

import (
	"math/rand/v2"
	"time"
)

const (
	baseDelay = time.Second
	maxDelay  = 30 * time.Second
	maxJitter = time.Second
)

// Backoff computes the redrive delay for a given retry count: exponential
// growth capped at 30s, plus up to 1s of jitter so simultaneously-queued
// items do not redrive in lockstep.
func Backoff(retryCount int) time.Duration {
	delay := maxDelay
	if retryCount < 15 {
		if d := baseDelay << uint(retryCount); d < maxDelay {
			delay = d
		}
	}
	return delay + rand.N(maxJitter)
}
