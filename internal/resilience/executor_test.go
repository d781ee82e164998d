package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/sketchduel/internal/errclass"
)

func testConfig() Config {
	return Config{
		Timeout:    50 * time.Millisecond,
		MaxRetries: 3,
		Backoff:    Backoff{BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2, Jitter: 0.1},
		Breaker:    BreakerConfig{FailureThreshold: 5, Cooldown: time.Hour},
	}
}

func TestExecutor_SuccessFirstAttempt(t *testing.T) {
	e := NewExecutor(testConfig(), nil, nil)
	var calls int32

	err := e.Execute(context.Background(), func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, RequestOptions{Name: "ping"})

	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.True(t, e.Health().Healthy())
}

func TestExecutor_RetriesRetryable(t *testing.T) {
	e := NewExecutor(testConfig(), nil, nil)
	var calls int32

	err := e.Execute(context.Background(), func(ctx context.Context) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errclass.New(errclass.KindConnectionTimeout, "slow")
		}
		return nil
	}, RequestOptions{})

	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestExecutor_NonRetryableStops(t *testing.T) {
	e := NewExecutor(testConfig(), nil, nil)
	var calls int32

	err := e.Execute(context.Background(), func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return errclass.New(errclass.KindRoomFull, "full")
	}, RequestOptions{RequestID: "req-9"})

	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	var ce *errclass.Error
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, errclass.KindRoomFull, ce.Kind)
	assert.Equal(t, "req-9", ce.RequestID)
	assert.Equal(t, BreakerClosed, e.Breaker().State(), "game-logic replies do not trip the breaker")
}

func TestExecutor_ExhaustsRetries(t *testing.T) {
	cfg := testConfig()
	cfg.Breaker.FailureThreshold = 100
	e := NewExecutor(cfg, nil, nil)
	var calls int32

	err := e.Execute(context.Background(), func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return errclass.New(errclass.KindConnectionLost, "gone")
	}, RequestOptions{MaxRetries: 2})

	require.Error(t, err)
	assert.Equal(t, errclass.KindConnectionLost, errclass.KindOf(err))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls), "first attempt plus two retries")
	assert.Equal(t, 3, e.Health().ConsecutiveFailures)
}

func TestExecutor_NoRetry(t *testing.T) {
	e := NewExecutor(testConfig(), nil, nil)
	var calls int32

	_ = e.Execute(context.Background(), func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return errclass.New(errclass.KindConnectionTimeout, "slow")
	}, RequestOptions{NoRetry: true})

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestExecutor_Timeout(t *testing.T) {
	e := NewExecutor(testConfig(), nil, nil)

	start := time.Now()
	err := e.Execute(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(5 * time.Millisecond)
		return ctx.Err()
	}, RequestOptions{Timeout: 10 * time.Millisecond, NoRetry: true})

	require.Error(t, err)
	assert.Equal(t, errclass.KindConnectionTimeout, errclass.KindOf(err))
	assert.Less(t, time.Since(start), time.Second)
}

func TestExecutor_TimeoutIgnoringContext(t *testing.T) {
	e := NewExecutor(testConfig(), nil, nil)
	release := make(chan struct{})
	defer close(release)

	err := e.Execute(context.Background(), func(ctx context.Context) error {
		<-release
		return nil
	}, RequestOptions{Timeout: 10 * time.Millisecond, NoRetry: true})

	assert.Equal(t, errclass.KindConnectionTimeout, errclass.KindOf(err))
}

func TestExecutor_BreakerFailsFast(t *testing.T) {
	cfg := testConfig()
	cfg.Breaker.FailureThreshold = 2
	e := NewExecutor(cfg, nil, nil)

	for i := 0; i < 2; i++ {
		_ = e.Execute(context.Background(), func(ctx context.Context) error {
			return errclass.New(errclass.KindConnectionFailed, "refused")
		}, RequestOptions{NoRetry: true})
	}
	require.Equal(t, BreakerOpen, e.Breaker().State())

	var called bool
	err := e.Execute(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	}, RequestOptions{})

	assert.False(t, called, "fn must not run while the breaker is open")
	assert.Equal(t, errclass.KindServerUnreachable, errclass.KindOf(err))
	assert.Equal(t, "open", e.Health().Breaker)
}

func TestExecutor_ContextCanceledDuringBackoff(t *testing.T) {
	cfg := testConfig()
	cfg.Backoff = Backoff{BaseDelay: time.Second, MaxDelay: time.Second, Multiplier: 1}
	e := NewExecutor(cfg, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := e.Execute(ctx, func(ctx context.Context) error {
		return errclass.New(errclass.KindConnectionTimeout, "slow")
	}, RequestOptions{})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestDo_ReturnsValue(t *testing.T) {
	e := NewExecutor(testConfig(), nil, nil)
	var calls int32

	got, err := Do(context.Background(), e, func(ctx context.Context) (string, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return "", errclass.New(errclass.KindRateLimited, "slow down")
		}
		return "ABC123", nil
	}, RequestOptions{Name: "create-room"})

	require.NoError(t, err)
	assert.Equal(t, "ABC123", got)
}

func TestDo_ErrorReturnsZero(t *testing.T) {
	e := NewExecutor(testConfig(), nil, nil)

	got, err := Do(context.Background(), e, func(ctx context.Context) (int, error) {
		return 42, errclass.New(errclass.KindInvalidVote, "nope")
	}, RequestOptions{})

	require.Error(t, err)
	assert.Zero(t, got)
}
