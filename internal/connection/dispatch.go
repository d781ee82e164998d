package connection

import (
	"log/slog"
	"sync"
)

// dispatchQueue is an unbounded FIFO of callback jobs. It doubles its
// capacity when full so producers never block, which lets callbacks call
// back into the manager without deadlocking the read loop.
type dispatchQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []func()
	head   int
	count  int
	closed bool
	done   chan struct{}
}

func newDispatchQueue(initialCapacity int) *dispatchQueue {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	q := &dispatchQueue{
		buf:  make([]func(), initialCapacity),
		done: make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push enqueues job. Returns false once the queue is closed.
func (q *dispatchQueue) push(job func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if q.count == len(q.buf) {
		q.grow()
	}
	q.buf[(q.head+q.count)%len(q.buf)] = job
	q.count++
	q.cond.Signal()
	return true
}

// pop blocks until a job is available. Returns false when closed and drained.
func (q *dispatchQueue) pop() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.count == 0 {
		return nil, false
	}
	job := q.buf[q.head]
	q.buf[q.head] = nil
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	return job, true
}

// grow doubles capacity. Must be called with mu held.
func (q *dispatchQueue) grow() {
	buf := make([]func(), len(q.buf)*2)
	for i := 0; i < q.count; i++ {
		buf[i] = q.buf[(q.head+i)%len(q.buf)]
	}
	q.buf = buf
	q.head = 0
}

// close stops accepting jobs. Queued jobs still run.
func (q *dispatchQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

func (q *dispatchQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// run executes jobs in order until the queue is closed and drained.
// A panicking callback is logged and does not stop later jobs.
func (q *dispatchQueue) run(logger *slog.Logger) {
	defer close(q.done)
	for {
		job, ok := q.pop()
		if !ok {
			return
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("subscriber panicked", "panic", r)
				}
			}()
			job()
		}()
	}
}
