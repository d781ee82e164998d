package connection

import (
	"errors"
	"time"

	"github.com/rickgao/sketchduel/internal/history"
	"github.com/rickgao/sketchduel/internal/model"
	"github.com/rickgao/sketchduel/internal/optimizer"
	"github.com/rickgao/sketchduel/internal/resilience"
)

// Errors
var (
	ErrDestroyed         = errors.New("connection manager destroyed")
	ErrNoIdentity        = errors.New("no session identity to rejoin")
	ErrReconnectCanceled = errors.New("reconnect canceled")
)

// ReconnectConfig configures automatic reconnection.
type ReconnectConfig struct {
	MaxAttempts int           // Attempts before the terminal failure (default: 3)
	BaseDelay   time.Duration // Delay before the first attempt (default: 1s)
	Multiplier  float64       // Growth per attempt (default: 2)
	MaxDelay    time.Duration // Delay cap (default: 10s)
}

// Backoff returns the reconnect delay schedule.
func (c ReconnectConfig) Backoff() resilience.Backoff {
	return resilience.Backoff{
		BaseDelay:  c.BaseDelay,
		MaxDelay:   c.MaxDelay,
		Multiplier: c.Multiplier,
	}
}

// Config configures a Manager.
type Config struct {
	Reconnect   ReconnectConfig
	Executor    resilience.Config
	Optimizer   optimizer.Config
	HistorySize int // Network history entries kept (default: 100)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Reconnect: ReconnectConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			Multiplier:  2,
			MaxDelay:    10 * time.Second,
		},
		Executor:    resilience.DefaultConfig(),
		Optimizer:   optimizer.DefaultConfig(),
		HistorySize: history.DefaultCapacity,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Reconnect.MaxAttempts <= 0 {
		c.Reconnect.MaxAttempts = def.Reconnect.MaxAttempts
	}
	if c.Reconnect.BaseDelay <= 0 {
		c.Reconnect.BaseDelay = def.Reconnect.BaseDelay
	}
	if c.Reconnect.Multiplier < 1 {
		c.Reconnect.Multiplier = def.Reconnect.Multiplier
	}
	if c.Reconnect.MaxDelay <= 0 {
		c.Reconnect.MaxDelay = def.Reconnect.MaxDelay
	}
	if c.HistorySize <= 0 {
		c.HistorySize = def.HistorySize
	}
	return c
}

// StateChange describes a connection status transition.
type StateChange struct {
	Previous model.ConnectionStatus
	Status   model.ConnectionStatus
	Identity model.SessionIdentity
	Attempt  int   // Reconnect attempt, 0 outside reconnection
	Err      error // Cause, if the change was caused by a failure
	At       time.Time
}

// Stats provides statistics about the connection manager.
type Stats struct {
	Status            model.ConnectionStatus
	Connected         bool
	ReconnectAttempts int   // Attempts in the current reconnect cycle
	Reconnects        int64 // Successful reconnects since creation
	PendingRequests   int
	AuxiliaryConns    int
	History           history.Stats
	Optimizer         optimizer.Stats
	Health            resilience.Health
}
