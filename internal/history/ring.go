// Package history keeps a bounded, append-only record of recent items.
package history

import "sync"

// DefaultCapacity is the message history size used by the connection manager.
const DefaultCapacity = 100

// Ring is a thread-safe fixed-capacity buffer. When full, Push evicts the
// oldest item.
type Ring[T any] struct {
	mu    sync.Mutex
	buf   []T
	head  int // oldest item
	count int

	// Stats
	totalPushed int64
	evicted     int64
}

// NewRing creates a ring holding at most capacity items.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends item, evicting the oldest item if the ring is full.
func (r *Ring[T]) Push(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.totalPushed++
	capacity := len(r.buf)
	if r.count < capacity {
		r.buf[(r.head+r.count)%capacity] = item
		r.count++
		return
	}

	r.buf[r.head] = item
	r.head = (r.head + 1) % capacity
	r.evicted++
}

// Snapshot returns the items oldest first. The returned slice is a copy.
func (r *Ring[T]) Snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]T, r.count)
	if r.count == 0 {
		return out
	}
	capacity := len(r.buf)
	if r.head+r.count <= capacity {
		copy(out, r.buf[r.head:r.head+r.count])
	} else {
		n := copy(out, r.buf[r.head:])
		copy(out[n:], r.buf[:r.count-n])
	}
	return out
}

// Last returns the most recent n items, oldest first.
func (r *Ring[T]) Last(n int) []T {
	all := r.Snapshot()
	if n <= 0 || n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}

// Clear drops every item. Stats are preserved.
func (r *Ring[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.head = 0
	r.count = 0
}

// Len returns the current number of items.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}

// Stats returns ring statistics.
func (r *Ring[T]) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Count:       r.count,
		Capacity:    len(r.buf),
		TotalPushed: r.totalPushed,
		Evicted:     r.evicted,
	}
}

// Stats contains ring statistics.
type Stats struct {
	Count       int
	Capacity    int
	TotalPushed int64
	Evicted     int64
}
