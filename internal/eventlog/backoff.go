package eventlog

import (
	"math/rand"
	"time"
)

// Backoff computes the wait before retrying a failed event.
type Backoff struct {
	Min    time.Duration
	Max    time.Duration
	Factor float64
	Jitter float64
}

// DefaultBackoff retries quickly at first and settles at a few seconds.
func DefaultBackoff() Backoff {
	return Backoff{
		Min:    100 * time.Millisecond,
		Max:    5 * time.Second,
		Factor: 2.0,
		Jitter: 0.2,
	}
}

// Next returns the wait for the given attempt (1-based).
func (b Backoff) Next(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	floor := b.Min
	if floor <= 0 {
		floor = 100 * time.Millisecond
	}
	ceil := b.Max
	if ceil <= 0 {
		ceil = 5 * time.Second
	}
	factor := b.Factor
	if factor <= 1 {
		factor = 2.0
	}

	wait := floor
	for i := 1; i < attempt; i++ {
		next := time.Duration(float64(wait) * factor)
		if next > ceil {
			wait = ceil
			break
		}
		wait = next
	}

	if b.Jitter <= 0 {
		return wait
	}
	jitter := min(b.Jitter, 1)
	delta := float64(wait) * jitter
	return wait - time.Duration(delta) + time.Duration(rand.Float64()*2*delta)
}
