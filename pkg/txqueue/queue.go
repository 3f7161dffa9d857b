package txqueue

import (
	"context"
	"sync"

	"github.com/aretw0/gamestate/pkg/ports"
)

// Request is a unit of transactional work waiting for the executor.
type Request interface {
	// ID identifies the submission in logs and traces.
	ID() string

	// Name is used as the transaction name.
	Name() string

	// FireDelayedTransaction runs the work inside tx. A non-nil error rolls tx back.
	FireDelayedTransaction(ctx context.Context, tx ports.Transaction) error

	// Closed reports how the executor closed the transaction (nil when committed).
	Closed(err error)

	// Cancel drops the request without firing it.
	Cancel()
}

// Queue is a FIFO of requests, safe for concurrent use.
type Queue struct {
	mu     sync.Mutex
	items  []Request
	ready  chan struct{}
	closed bool
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{ready: make(chan struct{}, 1)}
}

// Enqueue appends r and wakes the executor. It returns false once the queue is closed.
func (q *Queue) Enqueue(r Request) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, r)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

// Dequeue pops the oldest request.
func (q *Queue) Dequeue() (Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	r := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return r, true
}

// Ready fires after a submission arrives. Signals coalesce, so drain fully on wake.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}

// Len returns the number of waiting requests.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// CancelAll closes the queue and cancels every waiting request. It returns how many were canceled.
func (q *Queue) CancelAll() int {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.closed = true
	q.mu.Unlock()

	for _, r := range items {
		r.Cancel()
	}
	return len(items)
}
