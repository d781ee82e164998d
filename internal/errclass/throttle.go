package errclass

import (
	"sync"
	"time"
)

// Default throttle settings.
const (
	DefaultThrottleThreshold = 3
	DefaultThrottleWindow    = 5 * time.Second
)

type throttleKey struct {
	kind    Kind
	message string
}

// Throttler suppresses repeated error notifications. It only decides
// whether a callback fires; callers still apply the underlying state change.
type Throttler struct {
	threshold int
	window    time.Duration
	now       func() time.Time

	mu   sync.Mutex
	seen map[throttleKey][]time.Time
}

// NewThrottler creates a throttler. Non-positive arguments use the defaults.
func NewThrottler(threshold int, window time.Duration) *Throttler {
	if threshold <= 0 {
		threshold = DefaultThrottleThreshold
	}
	if window <= 0 {
		window = DefaultThrottleWindow
	}
	return &Throttler{
		threshold: threshold,
		window:    window,
		now:       time.Now,
		seen:      make(map[throttleKey][]time.Time),
	}
}

// ShouldThrottle records an occurrence of (kind, message) and reports whether
// the pair has now recurred more than threshold times within the window.
func (t *Throttler) ShouldThrottle(kind Kind, message string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	cutoff := now.Add(-t.window)
	key := throttleKey{kind: kind, message: message}

	hits := t.seen[key]
	kept := hits[:0]
	for _, at := range hits {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	kept = append(kept, now)
	t.seen[key] = kept

	// Opportunistic cleanup of other keys whose window has fully passed.
	if len(t.seen) > 64 {
		for k, v := range t.seen {
			if len(v) == 0 || !v[len(v)-1].After(cutoff) {
				delete(t.seen, k)
			}
		}
	}

	return len(kept) > t.threshold
}

// Reset forgets all recorded occurrences.
func (t *Throttler) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen = make(map[throttleKey][]time.Time)
}
