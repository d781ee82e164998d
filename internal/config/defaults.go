package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultServerURL          = "ws://localhost:3001/ws"
	DefaultHandshakeTimeout   = 10 * time.Second
	DefaultPingInterval       = 25 * time.Second
	DefaultPingTimeout        = 60 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultBufferSize         = 256
	DefaultReconnectAttempts  = 3
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 10 * time.Second
	DefaultMultiplier         = 2.0
	DefaultHistorySize        = 100
	DefaultRequestTimeout     = 10 * time.Second
	DefaultMaxRetries         = 3
	DefaultRetryJitter        = 0.1
	DefaultBreakerThreshold   = 5
	DefaultBreakerCooldown    = 30 * time.Second
	DefaultBatchSize          = 10
	DefaultBatchDelay         = 100 * time.Millisecond
	DefaultCompressionMin     = 1024
	DefaultCompressionRatio   = 0.9
	DefaultQueueSize          = 50
	DefaultQueueInterval      = 50 * time.Millisecond
	DefaultPoolSize           = 4
	DefaultPoolKeepAlive      = 60 * time.Second
	DefaultThrottleThreshold  = 3
	DefaultThrottleWindow     = 5 * time.Second
	DefaultActionDelay        = 1 * time.Second
	DefaultStaleness          = 1 * time.Hour
	DefaultSnapshotKey        = "sketchduel.session"
	DefaultStorageBackend     = BackendMemory
	DefaultBadgerPath         = ".sketchduel"
	DefaultBadgerTTL          = 24 * time.Hour
	DefaultBadgerGCInterval   = 10 * time.Minute
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 4
	DefaultMinConns           = 1
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
	DefaultMetricsPort        = 9090
	DefaultMetricsPath        = "/metrics"
)

func (c *ClientConfig) applyDefaults() {
	// Server defaults
	if c.Server.URL == "" {
		c.Server.URL = DefaultServerURL
	}
	if c.Server.HandshakeTimeout == 0 {
		c.Server.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Server.PingInterval == 0 {
		c.Server.PingInterval = DefaultPingInterval
	}
	if c.Server.PingTimeout == 0 {
		c.Server.PingTimeout = DefaultPingTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.BufferSize == 0 {
		c.Server.BufferSize = DefaultBufferSize
	}

	// Reconnect defaults
	if c.Reconnect.MaxAttempts == 0 {
		c.Reconnect.MaxAttempts = DefaultReconnectAttempts
	}
	if c.Reconnect.BaseDelay == 0 {
		c.Reconnect.BaseDelay = DefaultReconnectBaseDelay
	}
	if c.Reconnect.Multiplier == 0 {
		c.Reconnect.Multiplier = DefaultMultiplier
	}
	if c.Reconnect.MaxDelay == 0 {
		c.Reconnect.MaxDelay = DefaultReconnectMaxDelay
	}
	if c.Reconnect.HistorySize == 0 {
		c.Reconnect.HistorySize = DefaultHistorySize
	}

	// Request defaults
	if c.Requests.Timeout == 0 {
		c.Requests.Timeout = DefaultRequestTimeout
	}
	if c.Requests.MaxRetries == 0 {
		c.Requests.MaxRetries = DefaultMaxRetries
	}
	if c.Requests.BaseDelay == 0 {
		c.Requests.BaseDelay = DefaultReconnectBaseDelay
	}
	if c.Requests.MaxDelay == 0 {
		c.Requests.MaxDelay = DefaultReconnectMaxDelay
	}
	if c.Requests.Multiplier == 0 {
		c.Requests.Multiplier = DefaultMultiplier
	}
	if c.Requests.Jitter == 0 {
		c.Requests.Jitter = DefaultRetryJitter
	}
	if c.Requests.BreakerThreshold == 0 {
		c.Requests.BreakerThreshold = DefaultBreakerThreshold
	}
	if c.Requests.BreakerCooldown == 0 {
		c.Requests.BreakerCooldown = DefaultBreakerCooldown
	}

	// Optimizer defaults
	if c.Optimizer.BatchSize == 0 {
		c.Optimizer.BatchSize = DefaultBatchSize
	}
	if c.Optimizer.BatchDelay == 0 {
		c.Optimizer.BatchDelay = DefaultBatchDelay
	}
	if c.Optimizer.CompressionThreshold == 0 {
		c.Optimizer.CompressionThreshold = DefaultCompressionMin
	}
	if c.Optimizer.CompressionRatio == 0 {
		c.Optimizer.CompressionRatio = DefaultCompressionRatio
	}
	if c.Optimizer.QueueSize == 0 {
		c.Optimizer.QueueSize = DefaultQueueSize
	}
	if c.Optimizer.QueueInterval == 0 {
		c.Optimizer.QueueInterval = DefaultQueueInterval
	}
	if c.Optimizer.PoolSize == 0 {
		c.Optimizer.PoolSize = DefaultPoolSize
	}
	if c.Optimizer.PoolKeepAlive == 0 {
		c.Optimizer.PoolKeepAlive = DefaultPoolKeepAlive
	}

	// Error defaults
	if c.Errors.ThrottleThreshold == 0 {
		c.Errors.ThrottleThreshold = DefaultThrottleThreshold
	}
	if c.Errors.ThrottleWindow == 0 {
		c.Errors.ThrottleWindow = DefaultThrottleWindow
	}

	// Recovery defaults
	if c.Recovery.ActionDelay == 0 {
		c.Recovery.ActionDelay = DefaultActionDelay
	}
	if c.Recovery.Staleness == 0 {
		c.Recovery.Staleness = DefaultStaleness
	}
	if c.Recovery.SnapshotKey == "" {
		c.Recovery.SnapshotKey = DefaultSnapshotKey
	}

	// Storage defaults
	if c.Storage.Backend == "" {
		c.Storage.Backend = DefaultStorageBackend
	}
	if c.Storage.Badger.Path == "" {
		c.Storage.Badger.Path = DefaultBadgerPath
	}
	if c.Storage.Badger.TTL == 0 {
		c.Storage.Badger.TTL = DefaultBadgerTTL
	}
	if c.Storage.Badger.GCInterval == 0 {
		c.Storage.Badger.GCInterval = DefaultBadgerGCInterval
	}
	applyDBDefaults(&c.Storage.Postgres)

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
