package resilience

import (
	"sync"
	"time"

	"github.com/rickgao/sketchduel/internal/errclass"
)

// healthAlpha weights the newest latency sample in the moving average.
const healthAlpha = 0.2

// Health summarizes recent request outcomes.
type Health struct {
	Breaker             string
	LastLatency         time.Duration
	AvgLatency          time.Duration // Exponentially weighted
	ConsecutiveFailures int
	TotalRequests       int64
	TotalFailures       int64
	LastFailure         time.Time
	LastErrorKind       errclass.Kind
}

// Healthy reports whether the last request succeeded and the breaker is closed.
func (h Health) Healthy() bool {
	return h.ConsecutiveFailures == 0 && h.Breaker == BreakerClosed.String()
}

type healthTracker struct {
	mu sync.Mutex
	h  Health
}

func newHealthTracker() *healthTracker {
	return &healthTracker{}
}

func (t *healthTracker) record(latency time.Duration) {
	t.h.TotalRequests++
	t.h.LastLatency = latency
	if t.h.AvgLatency == 0 {
		t.h.AvgLatency = latency
		return
	}
	t.h.AvgLatency = time.Duration(healthAlpha*float64(latency) + (1-healthAlpha)*float64(t.h.AvgLatency))
}

func (t *healthTracker) success(latency time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record(latency)
	t.h.ConsecutiveFailures = 0
}

func (t *healthTracker) failure(latency time.Duration, err *errclass.Error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record(latency)
	t.h.ConsecutiveFailures++
	t.h.TotalFailures++
	t.h.LastFailure = time.Now()
	t.h.LastErrorKind = err.Kind
}

func (t *healthTracker) snapshot() Health {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.h
}
