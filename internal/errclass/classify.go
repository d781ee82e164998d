package errclass

import "time"

// Kind identifies a specific failure.
type Kind string

// Connection failures.
const (
	KindConnectionFailed  Kind = "connection_failed"
	KindConnectionTimeout Kind = "connection_timeout"
	KindConnectionLost    Kind = "connection_lost"
	KindServerUnreachable Kind = "server_unreachable"
)

// Game-logic failures.
const (
	KindRoomNotFound       Kind = "room_not_found"
	KindRoomFull           Kind = "room_full"
	KindInvalidRoomCode    Kind = "invalid_room_code"
	KindPlayerNotFound     Kind = "player_not_found"
	KindInvalidGameState   Kind = "invalid_game_state"
	KindUnauthorizedAction Kind = "unauthorized_action"
)

// Validation failures.
const (
	KindInvalidName        Kind = "invalid_name"
	KindInvalidDrawingData Kind = "invalid_drawing_data"
	KindInvalidVote        Kind = "invalid_vote"
)

// Rate limiting.
const (
	KindRateLimited     Kind = "rate_limited"
	KindTooManyRequests Kind = "too_many_requests"
)

// KindUnknown is the fallback for anything unmapped.
const KindUnknown Kind = "unknown_error"

// Category groups kinds.
type Category string

const (
	CategoryConnection   Category = "connection"
	CategoryValidation   Category = "validation"
	CategoryGameLogic    Category = "game_logic"
	CategoryRateLimiting Category = "rate_limiting"
	CategoryUnknown      Category = "unknown"
)

// Severity ranks how disruptive a failure is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Strategy is the recovery approach for a kind.
type Strategy string

const (
	StrategyReconnect    Strategy = "reconnect"
	StrategyRetry        Strategy = "retry"
	StrategyRestoreState Strategy = "restore_state"
	StrategyUserAction   Strategy = "user_action"
	StrategyFallback     Strategy = "fallback"
)

// Classification is the handling metadata for a kind.
type Classification struct {
	Kind        Kind
	Category    Category
	Severity    Severity
	Strategy    Strategy
	UserMessage string
	Suggestions []string
	Retryable   bool
	AutoRetry   bool
	MaxRetries  int
	RetryDelay  time.Duration
}

// Recoverable reports whether the failure should be handed to automated
// recovery.
func (c Classification) Recoverable() bool {
	return c.Retryable && c.AutoRetry
}

// table is the versioned classification table. Entries are never mutated;
// Classify hands out copies.
var table = map[Kind]Classification{
	KindConnectionFailed: {
		Category:    CategoryConnection,
		Severity:    SeverityHigh,
		Strategy:    StrategyReconnect,
		UserMessage: "Could not connect to the game server.",
		Suggestions: []string{"Check your internet connection", "Try again in a moment"},
		Retryable:   true,
		AutoRetry:   true,
		MaxRetries:  3,
		RetryDelay:  2 * time.Second,
	},
	KindConnectionTimeout: {
		Category:    CategoryConnection,
		Severity:    SeverityMedium,
		Strategy:    StrategyRetry,
		UserMessage: "The server is taking too long to respond.",
		Suggestions: []string{"Wait a moment", "Check your internet connection"},
		Retryable:   true,
		AutoRetry:   true,
		MaxRetries:  3,
		RetryDelay:  time.Second,
	},
	KindConnectionLost: {
		Category:    CategoryConnection,
		Severity:    SeverityHigh,
		Strategy:    StrategyReconnect,
		UserMessage: "Connection lost. Reconnecting...",
		Suggestions: []string{"Stay on this page while we reconnect"},
		Retryable:   true,
		AutoRetry:   true,
		MaxRetries:  5,
		RetryDelay:  time.Second,
	},
	KindServerUnreachable: {
		Category:    CategoryConnection,
		Severity:    SeverityCritical,
		Strategy:    StrategyReconnect,
		UserMessage: "The game server is unreachable.",
		Suggestions: []string{"Try again later", "Check the server status"},
		Retryable:   true,
		AutoRetry:   false,
		MaxRetries:  2,
		RetryDelay:  5 * time.Second,
	},
	KindRoomNotFound: {
		Category:    CategoryGameLogic,
		Severity:    SeverityHigh,
		Strategy:    StrategyUserAction,
		UserMessage: "That room does not exist.",
		Suggestions: []string{"Check the room code", "Create a new room"},
	},
	KindRoomFull: {
		Category:    CategoryGameLogic,
		Severity:    SeverityMedium,
		Strategy:    StrategyUserAction,
		UserMessage: "That room is full.",
		Suggestions: []string{"Join a different room", "Create a new room"},
	},
	KindInvalidRoomCode: {
		Category:    CategoryGameLogic,
		Severity:    SeverityLow,
		Strategy:    StrategyUserAction,
		UserMessage: "Room codes are 6 letters or digits.",
		Suggestions: []string{"Check the room code"},
	},
	KindPlayerNotFound: {
		Category:    CategoryGameLogic,
		Severity:    SeverityMedium,
		Strategy:    StrategyRestoreState,
		UserMessage: "You are no longer in this room. Rejoining...",
		Suggestions: []string{"Rejoin the room"},
		Retryable:   true,
		AutoRetry:   true,
		MaxRetries:  2,
		RetryDelay:  time.Second,
	},
	KindInvalidGameState: {
		Category:    CategoryGameLogic,
		Severity:    SeverityMedium,
		Strategy:    StrategyRestoreState,
		UserMessage: "The game got out of sync. Resynchronizing...",
		Suggestions: []string{"Refresh if this keeps happening"},
		Retryable:   true,
		AutoRetry:   true,
		MaxRetries:  1,
		RetryDelay:  500 * time.Millisecond,
	},
	KindUnauthorizedAction: {
		Category:    CategoryGameLogic,
		Severity:    SeverityLow,
		Strategy:    StrategyUserAction,
		UserMessage: "Only the host can do that.",
		Suggestions: []string{"Ask the host"},
	},
	KindInvalidName: {
		Category:    CategoryValidation,
		Severity:    SeverityLow,
		Strategy:    StrategyUserAction,
		UserMessage: "Please choose a different name.",
		Suggestions: []string{"Use 1-20 characters", "Avoid < > & \" '"},
	},
	KindInvalidDrawingData: {
		Category:    CategoryValidation,
		Severity:    SeverityLow,
		Strategy:    StrategyUserAction,
		UserMessage: "Your drawing could not be submitted.",
		Suggestions: []string{"Try drawing again", "Keep the image under 5MB"},
	},
	KindInvalidVote: {
		Category:    CategoryValidation,
		Severity:    SeverityLow,
		Strategy:    StrategyUserAction,
		UserMessage: "That word is not one of the options.",
		Suggestions: []string{"Pick one of the offered words"},
	},
	KindRateLimited: {
		Category:    CategoryRateLimiting,
		Severity:    SeverityMedium,
		Strategy:    StrategyRetry,
		UserMessage: "Slow down a little.",
		Suggestions: []string{"Wait a few seconds"},
		Retryable:   true,
		AutoRetry:   true,
		MaxRetries:  3,
		RetryDelay:  5 * time.Second,
	},
	KindTooManyRequests: {
		Category:    CategoryRateLimiting,
		Severity:    SeverityMedium,
		Strategy:    StrategyRetry,
		UserMessage: "Too many requests. Retrying shortly...",
		Suggestions: []string{"Wait a few seconds"},
		Retryable:   true,
		AutoRetry:   true,
		MaxRetries:  3,
		RetryDelay:  10 * time.Second,
	},
	KindUnknown: {
		Category:    CategoryUnknown,
		Severity:    SeverityMedium,
		Strategy:    StrategyFallback,
		UserMessage: "Something went wrong.",
		Suggestions: []string{"Try again", "Refresh if this keeps happening"},
		Retryable:   true,
		AutoRetry:   false,
		MaxRetries:  1,
		RetryDelay:  2 * time.Second,
	},
}

// Classify returns the classification for kind. Unmapped kinds get the
// unknown classification, with Kind still set to the input.
func Classify(kind Kind) Classification {
	c, ok := table[kind]
	if !ok {
		c = table[KindUnknown]
	}
	c.Kind = kind
	c.Suggestions = append([]string(nil), c.Suggestions...)
	return c
}

// Kinds returns every mapped kind.
func Kinds() []Kind {
	out := make([]Kind, 0, len(table))
	for k := range table {
		out = append(out, k)
	}
	return out
}

// ParseKind maps a server error code onto a Kind. Codes are matched
// case-insensitively with '-' and '_' treated alike.
func ParseKind(code string) Kind {
	k := Kind(normalizeCode(code))
	if _, ok := table[k]; ok {
		return k
	}
	return KindUnknown
}

func normalizeCode(code string) string {
	b := []byte(code)
	for i, c := range b {
		switch {
		case c == '-':
			b[i] = '_'
		case c >= 'A' && c <= 'Z':
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
