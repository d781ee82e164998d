package optimizer

import (
	"time"

	"github.com/rickgao/sketchduel/internal/validation"
	"github.com/rickgao/sketchduel/internal/wire"
)

// Config configures an Optimizer.
type Config struct {
	// Batching
	BatchSize  int           // Flush when a type has this many pending (default: 10)
	BatchDelay time.Duration // Flush this long after the first pending (default: 100ms)
	BatchTypes []string      // Envelope types eligible for batching

	// Compression
	CompressionThreshold int      // Minimum payload bytes to try (default: 1024)
	CompressionRatio     float64  // Keep only if compressed < ratio * original (default: 0.9)
	CompressTypes        []string // Envelope types eligible for compression
	MaxDecompressedSize  int64    // Inflated payload cap for inbound envelopes (default: 4x MaxImageBytes)

	// Request queue
	QueueSize     int           // Maximum waiting requests (default: 50)
	QueueInterval time.Duration // Minimum spacing between requests (default: 50ms)

	// Connection pool
	PoolSize      int           // Maximum pooled connections (default: 4)
	PoolKeepAlive time.Duration // Idle time before a pooled connection is closed (default: 60s)
}

// DefaultConfig returns the default optimizer settings.
func DefaultConfig() Config {
	return Config{
		BatchSize:            10,
		BatchDelay:           100 * time.Millisecond,
		BatchTypes:           []string{wire.TypeDrawingProgress},
		CompressionThreshold: 1024,
		CompressionRatio:     0.9,
		CompressTypes:        []string{wire.TypeSubmitDrawing, wire.TypeDrawingProgress, wire.TypeBatch},
		MaxDecompressedSize:  4 * validation.MaxImageBytes,
		QueueSize:            50,
		QueueInterval:        50 * time.Millisecond,
		PoolSize:             4,
		PoolKeepAlive:        60 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.BatchDelay <= 0 {
		c.BatchDelay = def.BatchDelay
	}
	if c.BatchTypes == nil {
		c.BatchTypes = def.BatchTypes
	}
	if c.CompressionThreshold <= 0 {
		c.CompressionThreshold = def.CompressionThreshold
	}
	if c.CompressionRatio <= 0 || c.CompressionRatio > 1 {
		c.CompressionRatio = def.CompressionRatio
	}
	if c.CompressTypes == nil {
		c.CompressTypes = def.CompressTypes
	}
	if c.MaxDecompressedSize <= 0 {
		c.MaxDecompressedSize = def.MaxDecompressedSize
	}
	if c.QueueSize <= 0 {
		c.QueueSize = def.QueueSize
	}
	if c.QueueInterval < 0 {
		c.QueueInterval = 0
	}
	if c.PoolSize <= 0 {
		c.PoolSize = def.PoolSize
	}
	if c.PoolKeepAlive <= 0 {
		c.PoolKeepAlive = def.PoolKeepAlive
	}
	return c
}
