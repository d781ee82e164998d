package resilience

import (
	"sync"
	"time"
)

// BreakerState is the circuit breaker state.
type BreakerState int

const (
	// BreakerClosed lets requests through.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects requests until the cooldown elapses.
	BreakerOpen
	// BreakerHalfOpen lets a single trial request through.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures a circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the breaker (default: 5).
	FailureThreshold int

	// Cooldown is how long the breaker stays open before a trial (default: 30s).
	Cooldown time.Duration
}

// DefaultBreakerConfig returns the default breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
	}
}

// BreakerStats is a snapshot of breaker counters.
type BreakerStats struct {
	State           string    `json:"state"`
	TotalCalls      int64     `json:"total_calls"`
	TotalFailures   int64     `json:"total_failures"`
	TotalRejections int64     `json:"total_rejections"`
	CurrentFailures int       `json:"current_failures"`
	LastFailure     time.Time `json:"last_failure"`
	LastStateChange time.Time `json:"last_state_change"`
}

// Breaker is a three-state circuit breaker. Half-open admits exactly one
// trial; its success closes the breaker and its failure re-opens it.
type Breaker struct {
	config   BreakerConfig
	now      func() time.Time
	onChange func(BreakerState)

	mu              sync.Mutex
	state           BreakerState
	failures        int
	lastFailure     time.Time
	lastStateChange time.Time
	trialActive     bool

	totalCalls      int64
	totalFailures   int64
	totalRejections int64
}

// NewBreaker creates a closed breaker. Zero config fields use defaults.
func NewBreaker(config BreakerConfig) *Breaker {
	def := DefaultBreakerConfig()
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = def.FailureThreshold
	}
	if config.Cooldown <= 0 {
		config.Cooldown = def.Cooldown
	}
	b := &Breaker{
		config: config,
		now:    time.Now,
		state:  BreakerClosed,
	}
	b.lastStateChange = b.now()
	return b
}

// State returns the current state. An open breaker whose cooldown has
// elapsed still reports open until the next Allow.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a request may proceed. When it returns true the
// caller must report the outcome with RecordSuccess or RecordFailure.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalCalls++

	switch b.state {
	case BreakerClosed:
		return true

	case BreakerOpen:
		if b.now().Sub(b.lastFailure) < b.config.Cooldown {
			b.totalRejections++
			return false
		}
		b.transitionTo(BreakerHalfOpen)
		b.trialActive = true
		return true

	case BreakerHalfOpen:
		if b.trialActive {
			b.totalRejections++
			return false
		}
		b.trialActive = true
		return true
	}

	return false
}

// RecordSuccess reports a successful request.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.state == BreakerHalfOpen {
		b.trialActive = false
		b.transitionTo(BreakerClosed)
	}
}

// RecordFailure reports a failed request.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalFailures++
	b.failures++
	b.lastFailure = b.now()

	switch b.state {
	case BreakerClosed:
		if b.failures >= b.config.FailureThreshold {
			b.transitionTo(BreakerOpen)
		}
	case BreakerHalfOpen:
		b.trialActive = false
		b.transitionTo(BreakerOpen)
	}
}

// abandon releases a half-open trial whose outcome is unknown.
func (b *Breaker) abandon() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trialActive = false
}

// transitionTo must be called with the lock held.
func (b *Breaker) transitionTo(state BreakerState) {
	if b.state == state {
		return
	}
	b.state = state
	b.lastStateChange = b.now()
	if state == BreakerClosed {
		b.failures = 0
	}
	if b.onChange != nil {
		b.onChange(state)
	}
}

// Stats returns breaker counters.
func (b *Breaker) Stats() BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return BreakerStats{
		State:           b.state.String(),
		TotalCalls:      b.totalCalls,
		TotalFailures:   b.totalFailures,
		TotalRejections: b.totalRejections,
		CurrentFailures: b.failures,
		LastFailure:     b.lastFailure,
		LastStateChange: b.lastStateChange,
	}
}

// Reset closes the breaker and clears failures.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.trialActive = false
	b.transitionTo(BreakerClosed)
}
