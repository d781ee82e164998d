package errclass

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestClassify_Total(t *testing.T) {
	for _, k := range Kinds() {
		c := Classify(k)
		if c.Kind != k {
			t.Errorf("Classify(%s).Kind = %s", k, c.Kind)
		}
		if c.UserMessage == "" {
			t.Errorf("Classify(%s) has empty user message", k)
		}
		if c.Strategy == StrategyUserAction && c.Retryable {
			t.Errorf("Classify(%s): user_action must not be retryable", k)
		}
	}

	c := Classify(Kind("made_up"))
	if c.Strategy != StrategyFallback || c.Category != CategoryUnknown {
		t.Errorf("unmapped kind = %+v, want unknown classification", c)
	}
	if c.Kind != "made_up" {
		t.Errorf("unmapped kind should keep its name, got %s", c.Kind)
	}
}

func TestClassify_Strategies(t *testing.T) {
	tests := []struct {
		kind        Kind
		category    Category
		strategy    Strategy
		recoverable bool
	}{
		{KindConnectionFailed, CategoryConnection, StrategyReconnect, true},
		{KindConnectionTimeout, CategoryConnection, StrategyRetry, true},
		{KindConnectionLost, CategoryConnection, StrategyReconnect, true},
		{KindServerUnreachable, CategoryConnection, StrategyReconnect, false},
		{KindRoomNotFound, CategoryGameLogic, StrategyUserAction, false},
		{KindRoomFull, CategoryGameLogic, StrategyUserAction, false},
		{KindPlayerNotFound, CategoryGameLogic, StrategyRestoreState, true},
		{KindInvalidGameState, CategoryGameLogic, StrategyRestoreState, true},
		{KindInvalidName, CategoryValidation, StrategyUserAction, false},
		{KindRateLimited, CategoryRateLimiting, StrategyRetry, true},
		{KindUnknown, CategoryUnknown, StrategyFallback, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			c := Classify(tt.kind)
			if c.Category != tt.category {
				t.Errorf("category = %s, want %s", c.Category, tt.category)
			}
			if c.Strategy != tt.strategy {
				t.Errorf("strategy = %s, want %s", c.Strategy, tt.strategy)
			}
			if c.Recoverable() != tt.recoverable {
				t.Errorf("recoverable = %v, want %v", c.Recoverable(), tt.recoverable)
			}
		})
	}
}

func TestClassify_ReturnsCopy(t *testing.T) {
	c := Classify(KindRoomFull)
	c.Suggestions[0] = "mutated"
	if Classify(KindRoomFull).Suggestions[0] == "mutated" {
		t.Error("Classify leaked the table's suggestion slice")
	}
}

func TestParseKind(t *testing.T) {
	tests := map[string]Kind{
		"room-not-found": KindRoomNotFound,
		"ROOM_FULL":      KindRoomFull,
		"rate_limited":   KindRateLimited,
		"nonsense":       KindUnknown,
		"":               KindUnknown,
	}
	for in, want := range tests {
		if got := ParseKind(in); got != want {
			t.Errorf("ParseKind(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("join: %w", New(KindRoomFull, "room ABC123 is full"))

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"classified", New(KindRoomNotFound, "x"), KindRoomNotFound},
		{"wrapped", wrapped, KindRoomFull},
		{"deadline", fmt.Errorf("dial: %w", context.DeadlineExceeded), KindConnectionTimeout},
		{"plain", errors.New("boom"), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestError_IsMatchesKind(t *testing.T) {
	err := fmt.Errorf("ctx: %w", Newf(KindRoomFull, "room %s", "ABC123"))
	if !errors.Is(err, New(KindRoomFull, "")) {
		t.Error("errors.Is should match on kind")
	}
	if errors.Is(err, New(KindRoomNotFound, "")) {
		t.Error("errors.Is matched a different kind")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(New(KindConnectionTimeout, "")) {
		t.Error("timeout should be retryable")
	}
	if IsRetryable(New(KindInvalidVote, "")) {
		t.Error("validation error should not be retryable")
	}
	terminal := New(KindConnectionFailed, "exhausted")
	terminal.Terminal = true
	if IsRetryable(terminal) {
		t.Error("terminal error should never be retryable")
	}
	if IsRetryable(nil) {
		t.Error("nil should not be retryable")
	}
}

func TestWrap_Nil(t *testing.T) {
	if Wrap(KindUnknown, nil) != nil {
		t.Error("Wrap(nil) should be nil")
	}
	if From(nil) != nil {
		t.Error("From(nil) should be nil")
	}
}

func TestError_RetryDelaysPositive(t *testing.T) {
	for _, k := range Kinds() {
		c := Classify(k)
		if c.Retryable && c.RetryDelay <= 0 {
			t.Errorf("%s is retryable but has delay %v", k, c.RetryDelay)
		}
		if c.Retryable && c.RetryDelay > time.Minute {
			t.Errorf("%s delay %v is unreasonably long", k, c.RetryDelay)
		}
	}
}
