package sequence

import (
	"sync"
)

// mutationKind distinguishes durable mutations.
type mutationKind string

const (
	mutationInsert mutationKind = "insert"
	mutationDelete mutationKind = "delete"
	mutationMove   mutationKind = "move"
	mutationRename mutationKind = "rename"
)

// mutation is one unit of work for the writer loop.
type mutation struct {
	kind   mutationKind
	id     string
	index  int
	name   string
	ticket *Ticket
}

// mutationQueue is a thread-safe FIFO queue for mutations.
//
// The queue is unbounded so UI callers never block on enqueue. The Run loop
// is the only consumer. A buffered signal channel enables context-aware
// waiting in the loop.
type mutationQueue struct {
	mu     sync.Mutex
	items  []mutation
	closed bool
	signal chan struct{} // Signals availability (buffered, size 1)
}

func newMutationQueue() *mutationQueue {
	return &mutationQueue{
		items:  make([]mutation, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds m to the back of the queue.
// Returns false if the queue is closed.
func (q *mutationQueue) Enqueue(m mutation) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, m)

	// Non-blocking: the buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes and returns the front mutation without blocking.
func (q *mutationQueue) TryDequeue() (mutation, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return mutation{}, false
	}
	m := q.items[0]

	// Drop the ticket reference so it can be collected.
	q.items[0] = mutation{}
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return m, true
}

// Wait returns a channel that signals when mutations may be available.
// It is closed by Close.
func (q *mutationQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *mutationQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Closed reports whether Close was called.
func (q *mutationQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close stops further enqueues and wakes the waiter. Returns the mutations
// still queued so the caller can fail them.
func (q *mutationQueue) Close() []mutation {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	close(q.signal)

	rest := q.items
	q.items = nil
	return rest
}
