package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(threshold int, cooldown time.Duration) (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	b := NewBreaker(BreakerConfig{FailureThreshold: threshold, Cooldown: cooldown})
	b.now = clock.now
	return b, clock
}

func failN(b *Breaker, n int) {
	for i := 0; i < n; i++ {
		if b.Allow() {
			b.RecordFailure()
		}
	}
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(5, 30*time.Second)

	failN(b, 4)
	assert.Equal(t, BreakerClosed, b.State())

	failN(b, 1)
	assert.Equal(t, BreakerOpen, b.State())
	assert.False(t, b.Allow(), "open breaker should reject while cooling")
	assert.Equal(t, int64(1), b.Stats().TotalRejections)
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b, _ := newTestBreaker(3, time.Second)

	failN(b, 2)
	require.True(t, b.Allow())
	b.RecordSuccess()
	failN(b, 2)

	assert.Equal(t, BreakerClosed, b.State(), "failures must be consecutive")
}

func TestBreaker_HalfOpenSingleTrial(t *testing.T) {
	b, clock := newTestBreaker(2, 30*time.Second)
	failN(b, 2)
	require.Equal(t, BreakerOpen, b.State())

	clock.advance(29 * time.Second)
	assert.False(t, b.Allow())

	clock.advance(time.Second)
	assert.True(t, b.Allow(), "cooldown elapsed, trial should be admitted")
	assert.Equal(t, BreakerHalfOpen, b.State())
	assert.False(t, b.Allow(), "only one trial in half-open")
}

func TestBreaker_HalfOpenSuccessCloses(t *testing.T) {
	b, clock := newTestBreaker(2, time.Second)
	failN(b, 2)
	clock.advance(time.Second)

	require.True(t, b.Allow())
	b.RecordSuccess()

	assert.Equal(t, BreakerClosed, b.State())
	assert.Equal(t, 0, b.Stats().CurrentFailures)
	assert.True(t, b.Allow())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b, clock := newTestBreaker(2, time.Second)
	failN(b, 2)
	clock.advance(time.Second)

	require.True(t, b.Allow())
	b.RecordFailure()

	assert.Equal(t, BreakerOpen, b.State())
	assert.False(t, b.Allow(), "re-opened breaker starts a new cooldown")
}

func TestBreaker_Reset(t *testing.T) {
	b, _ := newTestBreaker(1, time.Hour)
	failN(b, 1)
	b.Reset()
	assert.Equal(t, BreakerClosed, b.State())
	assert.True(t, b.Allow())
}

func TestBreakerState_String(t *testing.T) {
	assert.Equal(t, "closed", BreakerClosed.String())
	assert.Equal(t, "open", BreakerOpen.String())
	assert.Equal(t, "half-open", BreakerHalfOpen.String())
	assert.Equal(t, "unknown", BreakerState(9).String())
}
