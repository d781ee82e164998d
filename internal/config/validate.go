package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
)

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json"}
	backends   = []string{BackendMemory, BackendBadger, BackendPostgres}
)

// Validate checks that all required fields are set and values are valid.
func (c *ClientConfig) Validate() error {
	u, err := url.Parse(c.Server.URL)
	if err != nil || c.Server.URL == "" {
		return errors.New("server.url must be a valid URL")
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("server.url scheme must be ws or wss, got %q", u.Scheme)
	}
	if c.Server.BufferSize < 1 {
		return errors.New("server.buffer_size must be >= 1")
	}

	if c.Reconnect.MaxAttempts < 1 {
		return errors.New("reconnect.max_attempts must be >= 1")
	}
	if c.Reconnect.Multiplier < 1 {
		return errors.New("reconnect.multiplier must be >= 1")
	}
	if c.Reconnect.BaseDelay > c.Reconnect.MaxDelay {
		return fmt.Errorf("reconnect.base_delay (%s) cannot exceed max_delay (%s)", c.Reconnect.BaseDelay, c.Reconnect.MaxDelay)
	}

	if c.Requests.Timeout <= 0 {
		return errors.New("requests.timeout must be > 0")
	}
	if c.Requests.MaxRetries < 0 {
		return errors.New("requests.max_retries must be >= 0")
	}
	if c.Requests.Jitter < 0 || c.Requests.Jitter > 1 {
		return fmt.Errorf("requests.jitter must be between 0 and 1, got %g", c.Requests.Jitter)
	}
	if c.Requests.BreakerThreshold < 1 {
		return errors.New("requests.breaker_threshold must be >= 1")
	}

	if c.Optimizer.BatchSize < 1 {
		return errors.New("optimizer.batch_size must be >= 1")
	}
	if c.Optimizer.CompressionRatio <= 0 || c.Optimizer.CompressionRatio > 1 {
		return fmt.Errorf("optimizer.compression_ratio must be in (0, 1], got %g", c.Optimizer.CompressionRatio)
	}
	if c.Optimizer.MaxDecompressedSize < 0 {
		return errors.New("optimizer.max_decompressed_size must be >= 0")
	}
	if c.Optimizer.QueueSize < 1 {
		return errors.New("optimizer.queue_size must be >= 1")
	}
	if c.Optimizer.PoolSize < 1 {
		return errors.New("optimizer.pool_size must be >= 1")
	}

	if c.Errors.ThrottleThreshold < 1 {
		return errors.New("errors.throttle_threshold must be >= 1")
	}

	if c.Recovery.Staleness <= 0 {
		return errors.New("recovery.staleness must be > 0")
	}

	if !slices.Contains(backends, c.Storage.Backend) {
		return fmt.Errorf("storage.backend must be one of %v, got %q", backends, c.Storage.Backend)
	}
	switch c.Storage.Backend {
	case BackendBadger:
		if c.Storage.Badger.Path == "" {
			return errors.New("storage.badger.path is required")
		}
	case BackendPostgres:
		if err := c.Storage.Postgres.validate("storage.postgres"); err != nil {
			return err
		}
	}

	if !slices.Contains(logLevels, c.Log.Level) {
		return fmt.Errorf("log.level must be one of %v, got %q", logLevels, c.Log.Level)
	}
	if !slices.Contains(logFormats, c.Log.Format) {
		return fmt.Errorf("log.format must be one of %v, got %q", logFormats, c.Log.Format)
	}

	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
