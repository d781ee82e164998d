package config

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/rickgao/sketchduel/internal/connection"
	"github.com/rickgao/sketchduel/internal/optimizer"
	"github.com/rickgao/sketchduel/internal/recovery"
	"github.com/rickgao/sketchduel/internal/resilience"
	"github.com/rickgao/sketchduel/internal/transport"
	"github.com/rickgao/sketchduel/internal/version"
)

// Transport returns the websocket transport settings. The handshake carries
// the client's User-Agent.
func (c *ClientConfig) Transport() transport.Config {
	return transport.Config{
		URL:              c.Server.URL,
		Header:           http.Header{"User-Agent": {version.UserAgent()}},
		HandshakeTimeout: c.Server.HandshakeTimeout,
		PingInterval:     c.Server.PingInterval,
		PingTimeout:      c.Server.PingTimeout,
		WriteTimeout:     c.Server.WriteTimeout,
		BufferSize:       c.Server.BufferSize,
	}
}

// Connection returns the connection manager settings.
func (c *ClientConfig) Connection() connection.Config {
	opt := optimizer.DefaultConfig()
	opt.BatchSize = c.Optimizer.BatchSize
	opt.BatchDelay = c.Optimizer.BatchDelay
	opt.CompressionThreshold = c.Optimizer.CompressionThreshold
	opt.CompressionRatio = c.Optimizer.CompressionRatio
	opt.QueueSize = c.Optimizer.QueueSize
	opt.QueueInterval = c.Optimizer.QueueInterval
	opt.PoolSize = c.Optimizer.PoolSize
	opt.PoolKeepAlive = c.Optimizer.PoolKeepAlive
	if c.Optimizer.MaxDecompressedSize > 0 {
		opt.MaxDecompressedSize = c.Optimizer.MaxDecompressedSize
	}

	return connection.Config{
		Reconnect: connection.ReconnectConfig{
			MaxAttempts: c.Reconnect.MaxAttempts,
			BaseDelay:   c.Reconnect.BaseDelay,
			Multiplier:  c.Reconnect.Multiplier,
			MaxDelay:    c.Reconnect.MaxDelay,
		},
		Executor: resilience.Config{
			Timeout:    c.Requests.Timeout,
			MaxRetries: c.Requests.MaxRetries,
			Backoff: resilience.Backoff{
				BaseDelay:  c.Requests.BaseDelay,
				MaxDelay:   c.Requests.MaxDelay,
				Multiplier: c.Requests.Multiplier,
				Jitter:     c.Requests.Jitter,
			},
			Breaker: resilience.BreakerConfig{
				FailureThreshold: c.Requests.BreakerThreshold,
				Cooldown:         c.Requests.BreakerCooldown,
			},
		},
		Optimizer:   opt,
		HistorySize: c.Reconnect.HistorySize,
	}
}

// RecoveryConfig returns the recovery orchestrator settings.
func (c *ClientConfig) RecoveryConfig() recovery.Config {
	return recovery.Config{
		ActionDelay: c.Recovery.ActionDelay,
		Staleness:   c.Recovery.Staleness,
		SnapshotKey: c.Recovery.SnapshotKey,
	}
}

// LogLevel returns the configured slog level, defaulting to info.
func (c *ClientConfig) LogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
