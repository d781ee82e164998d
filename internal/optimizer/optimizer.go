package optimizer

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/rickgao/sketchduel/internal/metrics"
	"github.com/rickgao/sketchduel/internal/wire"
)

// Errors
var (
	ErrDestroyed       = errors.New("optimizer destroyed")
	ErrPayloadTooLarge = errors.New("decompressed payload too large")
)

// SendFunc writes an envelope to the transport.
type SendFunc func(env wire.Envelope) error

// Stats summarizes optimizer activity.
type Stats struct {
	Sent           int64
	Batches        int64
	Batched        int64
	Compressed     int64
	BytesSaved     int64
	Pending        int
	QueueLength    int
	PassThrough    bool
	LastFlushError string
}

// Optimizer batches and compresses outbound envelopes and decodes inbound
// frames.
type Optimizer struct {
	config     Config
	send       SendFunc
	batcher    *Batcher
	compressor *Compressor
	queue      *Queue
	batchTypes map[string]bool
	metrics    *metrics.Metrics
	logger     *slog.Logger

	passThrough atomic.Bool
	destroyed   atomic.Bool
	destroyOnce sync.Once

	sent       atomic.Int64
	batches    atomic.Int64
	batched    atomic.Int64
	compressed atomic.Int64
	saved      atomic.Int64

	mu           sync.Mutex
	lastFlushErr error
}

// New creates an optimizer that writes through send. m and logger may be nil.
func New(cfg Config, send SendFunc, m *metrics.Metrics, logger *slog.Logger) *Optimizer {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.New(nil)
	}

	o := &Optimizer{
		config:     cfg,
		send:       send,
		compressor: NewCompressor(cfg.CompressionThreshold, cfg.CompressionRatio, cfg.CompressTypes),
		queue:      NewQueue(cfg.QueueSize, cfg.QueueInterval, m),
		batchTypes: make(map[string]bool, len(cfg.BatchTypes)),
		metrics:    m,
		logger:     logger.With("component", "optimizer"),
	}
	for _, t := range cfg.BatchTypes {
		o.batchTypes[t] = true
	}
	o.batcher = NewBatcher(cfg.BatchSize, cfg.BatchDelay, o.flushBatch)
	return o
}

// Queue returns the request queue.
func (o *Optimizer) Queue() *Queue {
	return o.queue
}

// Config returns the effective configuration.
func (o *Optimizer) Config() Config {
	return o.config
}

// ProcessOutgoing sends env, batching it if its type is batchable and
// compressing it if worthwhile. Batched envelopes are sent later; flush
// errors are logged and reported by Stats.
func (o *Optimizer) ProcessOutgoing(env wire.Envelope) error {
	if o.destroyed.Load() {
		return ErrDestroyed
	}
	if !o.passThrough.Load() && o.batchTypes[env.Type] {
		if !o.batcher.Add(env) {
			return ErrDestroyed
		}
		return nil
	}
	return o.write(env)
}

// ProcessIncoming decodes a frame into envelopes, expanding batches and
// decompressing payloads.
func (o *Optimizer) ProcessIncoming(frame []byte) ([]wire.Envelope, error) {
	env, err := wire.Unmarshal(frame)
	if err != nil {
		return nil, err
	}
	return expand(env, o.config.MaxDecompressedSize, 0)
}

// maxBatchDepth bounds nested batches in inbound frames.
const maxBatchDepth = 4

func expand(env wire.Envelope, limit int64, depth int) ([]wire.Envelope, error) {
	env, err := Decompress(env, limit)
	if err != nil {
		return nil, err
	}
	if env.Type != wire.TypeBatch {
		return []wire.Envelope{env}, nil
	}
	if depth >= maxBatchDepth {
		return nil, fmt.Errorf("batch nested deeper than %d", maxBatchDepth)
	}

	inner, err := wire.SplitBatch(env)
	if err != nil {
		return nil, err
	}
	out := make([]wire.Envelope, 0, len(inner))
	for _, e := range inner {
		expanded, err := expand(e, limit, depth+1)
		if err != nil {
			return nil, err
		}
		out = append(out, expanded...)
	}
	return out, nil
}

// Flush sends every pending batch.
func (o *Optimizer) Flush() {
	o.batcher.Flush()
}

// SetPassThrough disables batching and compression when on. Pending
// batches are flushed first.
func (o *Optimizer) SetPassThrough(on bool) {
	if on {
		o.batcher.Flush()
	}
	if o.passThrough.Swap(on) != on {
		o.logger.Info("optimizer pass-through changed", "enabled", on)
	}
}

// PassThrough reports whether batching and compression are disabled.
func (o *Optimizer) PassThrough() bool {
	return o.passThrough.Load()
}

// Destroy discards pending batches, stops timers and closes the queue.
// Idempotent.
func (o *Optimizer) Destroy() {
	o.destroyOnce.Do(func() {
		o.destroyed.Store(true)
		o.batcher.Close()
		o.queue.Close()
	})
}

// Stats returns optimizer counters.
func (o *Optimizer) Stats() Stats {
	o.mu.Lock()
	lastErr := ""
	if o.lastFlushErr != nil {
		lastErr = o.lastFlushErr.Error()
	}
	o.mu.Unlock()

	return Stats{
		Sent:           o.sent.Load(),
		Batches:        o.batches.Load(),
		Batched:        o.batched.Load(),
		Compressed:     o.compressed.Load(),
		BytesSaved:     o.saved.Load(),
		Pending:        o.batcher.Pending(),
		QueueLength:    o.queue.Len(),
		PassThrough:    o.passThrough.Load(),
		LastFlushError: lastErr,
	}
}

func (o *Optimizer) flushBatch(typ string, envs []wire.Envelope) {
	var out wire.Envelope
	if len(envs) == 1 {
		out = envs[0]
	} else {
		batch, err := wire.NewBatch(uuid.NewString(), slices.Clone(envs), time.Now())
		if err != nil {
			o.recordFlushErr(err)
			return
		}
		out = batch
	}

	o.batches.Add(1)
	o.batched.Add(int64(len(envs)))
	o.metrics.BatchesFlushed.Inc()
	o.metrics.BatchSize.Observe(float64(len(envs)))

	if err := o.write(out); err != nil {
		o.recordFlushErr(err)
		return
	}
	o.logger.Debug("flushed batch", "type", typ, "count", len(envs))
}

func (o *Optimizer) write(env wire.Envelope) error {
	if !o.passThrough.Load() {
		compressed, saved, err := o.compressor.Compress(env)
		if err != nil {
			o.logger.Warn("compression failed, sending uncompressed", "type", env.Type, "error", err)
		} else if saved > 0 {
			o.logger.Debug("compressed payload",
				"type", env.Type,
				"original", humanize.Bytes(uint64(len(env.Data))),
				"saved", humanize.Bytes(uint64(saved)),
			)
			o.compressed.Add(1)
			o.saved.Add(int64(saved))
			o.metrics.CompressedFrames.Inc()
			o.metrics.CompressionSaved.Add(float64(saved))
			env = compressed
		}
	}

	if err := o.send(env); err != nil {
		return err
	}
	o.sent.Add(1)
	return nil
}

func (o *Optimizer) recordFlushErr(err error) {
	o.logger.Warn("batch flush failed", "error", err)
	o.mu.Lock()
	o.lastFlushErr = err
	o.mu.Unlock()
}
