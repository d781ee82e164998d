package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rickgao/sketchduel/internal/errclass"
	"github.com/rickgao/sketchduel/internal/metrics"
)

// Config configures an Executor.
type Config struct {
	Timeout    time.Duration // Per-attempt timeout (default: 10s)
	MaxRetries int           // Retries after the first attempt (default: 3)
	Backoff    Backoff
	Breaker    BreakerConfig
}

// DefaultConfig returns the default executor settings.
func DefaultConfig() Config {
	return Config{
		Timeout:    10 * time.Second,
		MaxRetries: 3,
		Backoff: Backoff{
			BaseDelay:  time.Second,
			MaxDelay:   10 * time.Second,
			Multiplier: 2,
			Jitter:     0.1,
		},
		Breaker: DefaultBreakerConfig(),
	}
}

// RequestOptions tunes a single Execute call. Zero values use the executor
// defaults.
type RequestOptions struct {
	Name       string        // Label for logs and metrics
	RequestID  string        // Attached to returned errors
	Timeout    time.Duration // Per-attempt timeout override
	MaxRetries int           // Retry budget override; ignored when NoRetry
	NoRetry    bool          // Make exactly one attempt
}

// Executor runs requests with timeout, retry and circuit breaking.
type Executor struct {
	config  Config
	breaker *Breaker
	health  *healthTracker
	metrics *metrics.Metrics
	logger  *slog.Logger
	rand    func() float64
}

// NewExecutor creates an executor. m and logger may be nil.
func NewExecutor(cfg Config, m *metrics.Metrics, logger *slog.Logger) *Executor {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Backoff.BaseDelay <= 0 {
		cfg.Backoff = def.Backoff
	}
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.New(nil)
	}

	e := &Executor{
		config:  cfg,
		breaker: NewBreaker(cfg.Breaker),
		health:  newHealthTracker(),
		metrics: m,
		logger:  logger.With("component", "executor"),
		rand:    rand.Float64,
	}
	e.breaker.onChange = func(s BreakerState) {
		switch s {
		case BreakerClosed:
			m.BreakerState.Set(metrics.BreakerClosed)
		case BreakerHalfOpen:
			m.BreakerState.Set(metrics.BreakerHalfOpen)
		case BreakerOpen:
			m.BreakerState.Set(metrics.BreakerOpen)
		}
		e.logger.Info("circuit breaker state changed", "state", s.String())
	}
	return e
}

// Breaker returns the executor's circuit breaker.
func (e *Executor) Breaker() *Breaker {
	return e.breaker
}

// Execute runs fn until it succeeds, fails with a non-retryable error or the
// retry budget is spent. Each attempt gets its own timeout; an attempt that
// outlives it fails with connection_timeout. An open breaker fails fast with
// server_unreachable without calling fn.
func (e *Executor) Execute(ctx context.Context, fn func(ctx context.Context) error, opts RequestOptions) error {
	timeout := e.config.Timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	maxRetries := e.config.MaxRetries
	if opts.MaxRetries > 0 {
		maxRetries = opts.MaxRetries
	}
	if opts.NoRetry {
		maxRetries = 0
	}
	name := opts.Name
	if name == "" {
		name = "request"
	}

	start := time.Now()
	for attempt := 1; ; attempt++ {
		if !e.breaker.Allow() {
			e.metrics.BreakerRejections.Inc()
			e.observe(name, "rejected", start)
			return e.tag(errclass.New(errclass.KindServerUnreachable, "circuit breaker open"), opts.RequestID)
		}

		attemptStart := time.Now()
		err := e.attempt(ctx, fn, timeout)
		latency := time.Since(attemptStart)

		if err == nil {
			e.breaker.RecordSuccess()
			e.health.success(latency)
			e.observe(name, "success", start)
			return nil
		}

		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			e.breaker.abandon()
			e.observe(name, "canceled", start)
			return err
		}

		cerr := e.tag(errclass.From(err), opts.RequestID)
		if countsAgainstServer(cerr.Kind) {
			e.breaker.RecordFailure()
		} else {
			// The server answered; its health is fine.
			e.breaker.RecordSuccess()
		}
		e.health.failure(latency, cerr)

		if attempt > maxRetries || !errclass.IsRetryable(cerr) {
			e.observe(name, "failure", start)
			return cerr
		}

		delay := e.config.Backoff.Jittered(attempt, e.rand)
		e.metrics.RequestRetries.WithLabelValues(name).Inc()
		e.logger.Debug("retrying request",
			"request", name,
			"attempt", attempt,
			"backoff", delay,
			"error", cerr,
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			e.observe(name, "canceled", start)
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// attempt runs fn once, racing it against timeout.
func (e *Executor) attempt(ctx context.Context, fn func(ctx context.Context) error, timeout time.Duration) error {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(actx)
	}()

	select {
	case err := <-done:
		if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return errclass.Wrap(errclass.KindConnectionTimeout, fmt.Errorf("request timed out after %s: %w", timeout, err))
		}
		return err
	case <-actx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errclass.Newf(errclass.KindConnectionTimeout, "request timed out after %s", timeout)
	}
}

func (e *Executor) tag(err *errclass.Error, requestID string) *errclass.Error {
	if requestID == "" || err.RequestID != "" {
		return err
	}
	tagged := *err
	tagged.RequestID = requestID
	return &tagged
}

func (e *Executor) observe(name, outcome string, start time.Time) {
	e.metrics.RequestDuration.WithLabelValues(name, outcome).Observe(time.Since(start).Seconds())
}

// countsAgainstServer reports whether a failure kind says something about
// server health. Game-logic and validation replies do not.
func countsAgainstServer(kind errclass.Kind) bool {
	switch errclass.Classify(kind).Category {
	case errclass.CategoryConnection, errclass.CategoryUnknown:
		return true
	}
	return false
}

// Do runs fn through e and returns its value.
func Do[T any](ctx context.Context, e *Executor, fn func(ctx context.Context) (T, error), opts RequestOptions) (T, error) {
	var (
		mu  sync.Mutex
		out T
	)
	err := e.Execute(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		mu.Lock()
		out = v
		mu.Unlock()
		return nil
	}, opts)
	if err != nil {
		var zero T
		return zero, err
	}
	mu.Lock()
	defer mu.Unlock()
	return out, nil
}

// Health returns the executor's connection health.
func (e *Executor) Health() Health {
	h := e.health.snapshot()
	h.Breaker = e.breaker.State().String()
	return h
}

// Stats returns breaker counters.
func (e *Executor) Stats() BreakerStats {
	return e.breaker.Stats()
}
