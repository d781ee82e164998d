package optimizer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rickgao/sketchduel/internal/metrics"
)

// Errors
var (
	ErrPoolClosed = errors.New("connection pool closed")
)

// Factory opens a pooled connection for key.
type Factory[C io.Closer] func(ctx context.Context, key string) (C, error)

type poolEntry[C io.Closer] struct {
	conn     C
	lastUsed time.Time
}

// Pool keeps up to size connections keyed by purpose. The least recently
// used connection is closed when a new one would exceed size, and
// connections idle longer than keepAlive are closed by a background pruner.
type Pool[C io.Closer] struct {
	factory   Factory[C]
	keepAlive time.Duration
	now       func() time.Time
	metrics   *metrics.Metrics
	logger    *slog.Logger

	mu     sync.Mutex // Serializes Get so a key is dialed once
	cache  *lru.Cache[string, *poolEntry[C]]
	closed bool

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewPool creates a pool and starts its idle pruner.
func NewPool[C io.Closer](size int, keepAlive time.Duration, factory Factory[C], m *metrics.Metrics, logger *slog.Logger) (*Pool[C], error) {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.New(nil)
	}
	p := &Pool[C]{
		factory:   factory,
		keepAlive: keepAlive,
		now:       time.Now,
		metrics:   m,
		logger:    logger.With("component", "pool"),
		stop:      make(chan struct{}),
	}

	cache, err := lru.NewWithEvict(size, p.onEvict)
	if err != nil {
		return nil, fmt.Errorf("create pool cache: %w", err)
	}
	p.cache = cache

	if keepAlive > 0 {
		p.wg.Add(1)
		go p.pruneLoop()
	}
	return p, nil
}

// Get returns the pooled connection for key, dialing one if needed.
func (p *Pool[C]) Get(ctx context.Context, key string) (C, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var zero C
	if p.closed {
		return zero, ErrPoolClosed
	}

	if e, ok := p.cache.Get(key); ok {
		e.lastUsed = p.now()
		return e.conn, nil
	}

	conn, err := p.factory(ctx, key)
	if err != nil {
		return zero, fmt.Errorf("dial pooled connection %q: %w", key, err)
	}
	p.cache.Add(key, &poolEntry[C]{conn: conn, lastUsed: p.now()})
	p.metrics.PoolEntries.Set(float64(p.cache.Len()))
	return conn, nil
}

// Remove closes and drops the connection for key, e.g. after it failed.
func (p *Pool[C]) Remove(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache.Remove(key)
	p.metrics.PoolEntries.Set(float64(p.cache.Len()))
}

// Prune closes connections idle for longer than keepAlive and returns how
// many were closed.
func (p *Pool[C]) Prune() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := p.now().Add(-p.keepAlive)
	pruned := 0
	for _, key := range p.cache.Keys() {
		e, ok := p.cache.Peek(key)
		if ok && e.lastUsed.Before(cutoff) {
			p.cache.Remove(key)
			pruned++
		}
	}
	if pruned > 0 {
		p.logger.Debug("pruned idle connections", "count", pruned)
	}
	p.metrics.PoolEntries.Set(float64(p.cache.Len()))
	return pruned
}

// Len returns the number of pooled connections.
func (p *Pool[C]) Len() int {
	return p.cache.Len()
}

// Close stops the pruner and closes every pooled connection. Idempotent.
func (p *Pool[C]) Close() {
	p.stopOnce.Do(func() {
		close(p.stop)
		p.wg.Wait()

		p.mu.Lock()
		defer p.mu.Unlock()
		p.closed = true
		p.cache.Purge()
		p.metrics.PoolEntries.Set(0)
	})
}

func (p *Pool[C]) onEvict(key string, e *poolEntry[C]) {
	p.metrics.PoolEvictions.Inc()
	if err := e.conn.Close(); err != nil {
		p.logger.Warn("close pooled connection", "key", key, "error", err)
	}
}

func (p *Pool[C]) pruneLoop() {
	defer p.wg.Done()

	interval := p.keepAlive / 2
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.Prune()
		}
	}
}
