package httpx

import (
	"math"
	"math/rand"
	"time"
)

// Backoff computes exponential delays with optional jitter. The zero value
// is not usable; construct one with NewBackoff.
type Backoff struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Jitter    float64
}

// NewBackoff returns a Backoff, substituting defaults for non-positive values.
func NewBackoff(base, max time.Duration, jitter float64) Backoff {
	if base <= 0 {
		base = 50 * time.Millisecond
	}
	if max <= 0 {
		max = time.Second
	}
	return Backoff{
		BaseDelay: base,
		MaxDelay:  max,
		Jitter:    math.Max(0, math.Min(jitter, 1)),
	}
}

// ForAttempt returns the delay before retry number attempt (0-indexed).
func (b Backoff) ForAttempt(attempt int) time.Duration {
	delay := b.BaseDelay
	if attempt > 0 {
		// Shifts past 30 would overflow long before MaxDelay matters.
		shift := min(attempt, 30)
		delay = b.BaseDelay << uint(shift)
		if delay <= 0 || delay > b.MaxDelay {
			delay = b.MaxDelay
		}
	}
	return b.addJitter(delay)
}

func (b Backoff) addJitter(delay time.Duration) time.Duration {
	if b.Jitter == 0 || delay <= 0 {
		return delay
	}
	factor := 1 + (rand.Float64()*2-1)*b.Jitter
	return time.Duration(float64(delay) * factor)
}
