package resilience

import (
	"math"
	"time"
)

// Backoff describes an exponential delay schedule.
type Backoff struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	Jitter     float64 // Fraction of the delay, e.g. 0.1 for +/-10%
}

// Delay returns the delay before attempt n (1-based):
// min(MaxDelay, BaseDelay * Multiplier^(n-1)). It is non-decreasing in n.
func (b Backoff) Delay(attempt int) time.Duration {
	if b.BaseDelay <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(b.BaseDelay) * math.Pow(mult, float64(attempt-1))
	if b.MaxDelay > 0 && d > float64(b.MaxDelay) {
		d = float64(b.MaxDelay)
	}
	return time.Duration(d)
}

// Jittered returns Delay(attempt) spread by +/-Jitter. r must return a value
// in [0, 1).
func (b Backoff) Jittered(attempt int, r func() float64) time.Duration {
	d := b.Delay(attempt)
	if b.Jitter <= 0 || r == nil || d == 0 {
		return d
	}
	spread := float64(d) * b.Jitter
	return time.Duration(float64(d) - spread + 2*spread*r())
}
