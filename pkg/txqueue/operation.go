package txqueue

import (
	"context"
	"errors"
	"sync"

	"github.com/aretw0/gamestate/pkg/domain"
	"github.com/aretw0/gamestate/pkg/ports"
	"github.com/google/uuid"
)

// OperationFunc is the work run inside a queued transaction.
type OperationFunc func(ctx context.Context, tx ports.Transaction) error

// QueuedOperation submits fire-and-forget work. One instance carries at most one
// outstanding submission; reuse it once the previous one has fired.
type QueuedOperation struct {
	name  string
	queue *Queue

	mu      sync.Mutex
	fn      OperationFunc
	pending bool
	id      string
	onClose func(err error)
}

// NewQueuedOperation creates an operation that submits to queue under name.
func NewQueuedOperation(name string, queue *Queue) *QueuedOperation {
	return &QueuedOperation{name: name, queue: queue}
}

// OnClose registers a callback receiving the outcome of each fired submission.
func (o *QueuedOperation) OnClose(fn func(err error)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onClose = fn
}

// Submit enqueues fn. It returns false if a previous submission has not fired yet
// or the queue is closed.
func (o *QueuedOperation) Submit(fn OperationFunc) bool {
	o.mu.Lock()
	if o.pending {
		o.mu.Unlock()
		return false
	}
	o.pending = true
	o.fn = fn
	o.id = uuid.NewString()
	o.mu.Unlock()

	if !o.queue.Enqueue(o) {
		o.mu.Lock()
		o.pending = false
		o.fn = nil
		o.mu.Unlock()
		return false
	}
	return true
}

// Pending reports whether a submission is waiting to fire.
func (o *QueuedOperation) Pending() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pending
}

func (o *QueuedOperation) ID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.id
}

func (o *QueuedOperation) Name() string { return o.name }

// FireDelayedTransaction runs the submitted function. The instance accepts a new
// submission as soon as it fires.
func (o *QueuedOperation) FireDelayedTransaction(ctx context.Context, tx ports.Transaction) error {
	o.mu.Lock()
	fn := o.fn
	o.fn = nil
	o.pending = false
	o.mu.Unlock()

	if fn == nil {
		return domain.ErrNoOperation
	}
	return fn(ctx, tx)
}

func (o *QueuedOperation) Closed(err error) {
	o.mu.Lock()
	cb := o.onClose
	o.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

// Cancel drops the outstanding submission.
func (o *QueuedOperation) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fn = nil
	o.pending = false
}

// TransactionalOperation runs work synchronously on the caller's goroutine inside a
// transaction opened by the executor.
type TransactionalOperation struct {
	name  string
	queue *Queue
}

// NewTransactionalOperation creates a blocking operation submitting to queue under name.
func NewTransactionalOperation(name string, queue *Queue) *TransactionalOperation {
	return &TransactionalOperation{name: name, queue: queue}
}

// Execute blocks until the executor opens a transaction, runs fn with it, and returns
// once the executor closed it. An error from fn rolls the transaction back and is returned.
// It returns domain.ErrCanceled if the request is canceled on shutdown, the executor's
// error if it failed to open the transaction, or ctx.Err() if ctx ends first.
func (o *TransactionalOperation) Execute(ctx context.Context, fn func(tx ports.Transaction) error) error {
	req := newBlockingRequest(o.name)
	if !o.queue.Enqueue(req) {
		return domain.ErrCanceled
	}

	select {
	case tx := <-req.open:
		req.ready <- fn(tx)
		select {
		case err := <-req.result:
			return err
		case <-req.canceled:
			return domain.ErrCanceled
		}
	case err := <-req.result:
		// Closed before the transaction was handed over.
		if err == nil || errors.Is(err, domain.ErrForcedExit) {
			return domain.ErrCanceled
		}
		return err
	case <-req.canceled:
		return domain.ErrCanceled
	case <-ctx.Done():
		req.abandon()
		return ctx.Err()
	}
}

// blockingRequest is the rendezvous between a blocked caller and the executor:
// open hands the transaction over, ready asks the executor to close it, result
// reports the close outcome.
type blockingRequest struct {
	id   string
	name string

	open   chan ports.Transaction
	ready  chan error
	result chan error

	canceled    chan struct{}
	cancelOnce  sync.Once
	abandoned   chan struct{}
	abandonOnce sync.Once
}

func newBlockingRequest(name string) *blockingRequest {
	return &blockingRequest{
		id:        uuid.NewString(),
		name:      name,
		open:      make(chan ports.Transaction),
		ready:     make(chan error, 1),
		result:    make(chan error, 1),
		canceled:  make(chan struct{}),
		abandoned: make(chan struct{}),
	}
}

func (r *blockingRequest) ID() string   { return r.id }
func (r *blockingRequest) Name() string { return r.name }

func (r *blockingRequest) FireDelayedTransaction(ctx context.Context, tx ports.Transaction) error {
	select {
	case r.open <- tx:
	case <-r.abandoned:
		return domain.ErrCanceled
	case <-ctx.Done():
		return domain.ErrForcedExit
	}

	select {
	case err := <-r.ready:
		return err
	case <-ctx.Done():
		return domain.ErrForcedExit
	}
}

func (r *blockingRequest) Closed(err error) {
	r.result <- err
}

func (r *blockingRequest) Cancel() {
	r.cancelOnce.Do(func() { close(r.canceled) })
}

func (r *blockingRequest) abandon() {
	r.abandonOnce.Do(func() { close(r.abandoned) })
}
