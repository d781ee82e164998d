package optimizer

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/rickgao/sketchduel/internal/metrics"
)

// Errors
var (
	ErrQueueFull   = errors.New("request queue full")
	ErrQueueClosed = errors.New("request queue closed")
)

// Queue runs requests one at a time in arrival order, spaced at least
// interval apart. At most size requests may wait; more are rejected.
type Queue struct {
	size    int
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	metrics *metrics.Metrics

	mu      sync.Mutex
	waiting int
	closed  bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewQueue creates a queue. A zero interval disables spacing.
func NewQueue(size int, interval time.Duration, m *metrics.Metrics) *Queue {
	if m == nil {
		m = metrics.New(nil)
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		size:    size,
		sem:     semaphore.NewWeighted(1),
		limiter: rate.NewLimiter(limit, 1),
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Do waits for its turn and runs fn. It fails with ErrQueueFull when size
// requests are already waiting and with ErrQueueClosed once Close was called,
// including for requests that were still waiting.
func (q *Queue) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.metrics.QueueRejections.Inc()
		return ErrQueueClosed
	}
	if q.waiting >= q.size {
		q.mu.Unlock()
		q.metrics.QueueRejections.Inc()
		return ErrQueueFull
	}
	q.waiting++
	q.metrics.QueueDepth.Set(float64(q.waiting))
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.waiting--
		q.metrics.QueueDepth.Set(float64(q.waiting))
		q.mu.Unlock()
	}()

	wctx, stop := q.waitContext(ctx)
	defer stop()

	if err := q.sem.Acquire(wctx, 1); err != nil {
		return q.waitErr(ctx, err)
	}
	defer q.sem.Release(1)

	if err := q.limiter.Wait(wctx); err != nil {
		return q.waitErr(ctx, err)
	}
	if q.isClosed() {
		return ErrQueueClosed
	}

	return fn(ctx)
}

// Len returns the number of requests waiting or running.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.waiting
}

// Close rejects new requests and releases waiting ones with ErrQueueClosed.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.cancel()
}

func (q *Queue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// waitContext is ctx, additionally canceled when the queue closes.
func (q *Queue) waitContext(ctx context.Context) (context.Context, func()) {
	wctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(q.ctx, cancel)
	return wctx, func() {
		stop()
		cancel()
	}
}

func (q *Queue) waitErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if q.isClosed() {
		return ErrQueueClosed
	}
	return err
}
