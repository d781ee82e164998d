package errclass

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestThrottler(clock *fakeClock) *Throttler {
	th := NewThrottler(0, 0)
	th.now = clock.now
	return th
}

func TestThrottler_FourthWithinWindow(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	th := newTestThrottler(clock)

	for i := 1; i <= 3; i++ {
		if th.ShouldThrottle(KindConnectionLost, "socket closed") {
			t.Fatalf("call %d throttled, want allowed", i)
		}
		clock.advance(time.Second)
	}
	if !th.ShouldThrottle(KindConnectionLost, "socket closed") {
		t.Error("fourth identical error within window should be throttled")
	}
}

func TestThrottler_DistinctPairs(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	th := newTestThrottler(clock)

	for i := 0; i < 3; i++ {
		th.ShouldThrottle(KindConnectionLost, "a")
	}
	if th.ShouldThrottle(KindConnectionLost, "b") {
		t.Error("different message should have its own counter")
	}
	if th.ShouldThrottle(KindConnectionTimeout, "a") {
		t.Error("different kind should have its own counter")
	}
}

func TestThrottler_WindowSlides(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	th := newTestThrottler(clock)

	for i := 0; i < 3; i++ {
		th.ShouldThrottle(KindRateLimited, "slow")
	}
	clock.advance(DefaultThrottleWindow + time.Millisecond)
	if th.ShouldThrottle(KindRateLimited, "slow") {
		t.Error("occurrences outside the window should not count")
	}
}

func TestThrottler_Reset(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	th := newTestThrottler(clock)
	for i := 0; i < 4; i++ {
		th.ShouldThrottle(KindUnknown, "x")
	}
	th.Reset()
	if th.ShouldThrottle(KindUnknown, "x") {
		t.Error("Reset should clear counters")
	}
}
