package optimizer

import (
	"sync"
	"time"

	"github.com/rickgao/sketchduel/internal/wire"
)

// Batcher accumulates envelopes per type and hands them to flush in enqueue
// order, either when a type reaches maxSize or maxDelay after its first
// pending envelope.
type Batcher struct {
	maxSize  int
	maxDelay time.Duration
	flush    func(typ string, envs []wire.Envelope)

	// emitMu is held from taking a batch until it has been flushed so that
	// batches leave in the order they were taken. Acquired before mu.
	emitMu sync.Mutex

	mu      sync.Mutex
	pending map[string][]wire.Envelope
	timers  map[string]*time.Timer
	order   []string // Types in order of their oldest pending envelope
	closed  bool
}

// NewBatcher creates a batcher. flush is never called concurrently and must
// not call back into the batcher.
func NewBatcher(maxSize int, maxDelay time.Duration, flush func(typ string, envs []wire.Envelope)) *Batcher {
	return &Batcher{
		maxSize:  maxSize,
		maxDelay: maxDelay,
		flush:    flush,
		pending:  make(map[string][]wire.Envelope),
		timers:   make(map[string]*time.Timer),
	}
}

// Add enqueues env. It returns false once the batcher is closed.
func (b *Batcher) Add(env wire.Envelope) bool {
	b.emitMu.Lock()
	defer b.emitMu.Unlock()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}

	typ := env.Type
	if len(b.pending[typ]) == 0 {
		b.order = append(b.order, typ)
		b.timers[typ] = time.AfterFunc(b.maxDelay, func() { b.flushType(typ) })
	}
	b.pending[typ] = append(b.pending[typ], env)

	var ready []wire.Envelope
	if len(b.pending[typ]) >= b.maxSize {
		ready = b.takeLocked(typ)
	}
	b.mu.Unlock()

	if ready != nil {
		b.flush(typ, ready)
	}
	return true
}

// Flush emits every pending batch, oldest type first.
func (b *Batcher) Flush() {
	b.emitMu.Lock()
	defer b.emitMu.Unlock()

	b.mu.Lock()
	types := append([]string(nil), b.order...)
	batches := make([][]wire.Envelope, 0, len(types))
	for _, typ := range types {
		batches = append(batches, b.takeLocked(typ))
	}
	b.mu.Unlock()

	for i, typ := range types {
		if len(batches[i]) > 0 {
			b.flush(typ, batches[i])
		}
	}
}

// Pending returns the number of envelopes waiting to be flushed.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, envs := range b.pending {
		n += len(envs)
	}
	return n
}

// Close stops all timers and discards pending envelopes.
func (b *Batcher) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for typ, t := range b.timers {
		t.Stop()
		delete(b.timers, typ)
	}
	clear(b.pending)
	b.order = nil
}

func (b *Batcher) flushType(typ string) {
	b.emitMu.Lock()
	defer b.emitMu.Unlock()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	ready := b.takeLocked(typ)
	b.mu.Unlock()

	if len(ready) > 0 {
		b.flush(typ, ready)
	}
}

// takeLocked removes and returns the pending envelopes of typ.
func (b *Batcher) takeLocked(typ string) []wire.Envelope {
	envs := b.pending[typ]
	delete(b.pending, typ)
	if t, ok := b.timers[typ]; ok {
		t.Stop()
		delete(b.timers, typ)
	}
	for i, o := range b.order {
		if o == typ {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return envs
}
