package resilience

import (
	"testing"
	"time"
)

func TestBackoff_Delay(t *testing.T) {
	b := Backoff{BaseDelay: time.Second, MaxDelay: 10 * time.Second, Multiplier: 2}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{20, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := b.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestBackoff_NonDecreasingAndCapped(t *testing.T) {
	b := Backoff{BaseDelay: 300 * time.Millisecond, MaxDelay: 7 * time.Second, Multiplier: 1.7}

	prev := time.Duration(0)
	for n := 1; n <= 50; n++ {
		d := b.Delay(n)
		if d < prev {
			t.Fatalf("Delay(%d) = %v decreased from %v", n, d, prev)
		}
		if d > b.MaxDelay {
			t.Fatalf("Delay(%d) = %v exceeds max %v", n, d, b.MaxDelay)
		}
		prev = d
	}
}

func TestBackoff_Jittered(t *testing.T) {
	b := Backoff{BaseDelay: time.Second, MaxDelay: 10 * time.Second, Multiplier: 2, Jitter: 0.1}

	low := b.Jittered(1, func() float64 { return 0 })
	if low != 900*time.Millisecond {
		t.Errorf("Jittered low = %v, want 900ms", low)
	}
	mid := b.Jittered(1, func() float64 { return 0.5 })
	if mid != time.Second {
		t.Errorf("Jittered mid = %v, want 1s", mid)
	}
	high := b.Jittered(1, func() float64 { return 0.999999 })
	if high > 1100*time.Millisecond || high < 1099*time.Millisecond {
		t.Errorf("Jittered high = %v, want ~1.1s", high)
	}
	if got := b.Jittered(2, nil); got != 2*time.Second {
		t.Errorf("Jittered without source = %v, want 2s", got)
	}
}

func TestBackoff_ZeroBase(t *testing.T) {
	if got := (Backoff{}).Delay(3); got != 0 {
		t.Errorf("Delay() = %v, want 0", got)
	}
}
