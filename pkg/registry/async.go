package registry

import (
	"sync"

	"github.com/aretw0/gamestate/pkg/domain"
)

// AsyncUpdate is the consolidated asynchronous data of one state.
type AsyncUpdate struct {
	State string
	Data  domain.DataBag
}

// asyncBuffer collects updates raised off the executor goroutine until the next flush.
type asyncBuffer struct {
	mu      sync.Mutex
	order   []string
	pending map[string]domain.DataBag
	signal  chan struct{}
}

func newAsyncBuffer() *asyncBuffer {
	return &asyncBuffer{
		pending: make(map[string]domain.DataBag),
		signal:  make(chan struct{}, 1),
	}
}

// PostAsynchronousUpdate buffers data for state. Safe to call from any goroutine.
// Values posted for the same state before the next flush are merged, later ones win.
func (r *Registry) PostAsynchronousUpdate(state string, data domain.DataBag) {
	b := r.async
	b.mu.Lock()
	bag, ok := b.pending[state]
	if !ok {
		bag = domain.DataBag{}
		b.pending[state] = bag
		b.order = append(b.order, state)
	}
	bag.Merge(data)
	b.mu.Unlock()

	select {
	case b.signal <- struct{}{}:
	default:
	}
}

// AsyncPending fires after an update is posted. Signals coalesce.
func (r *Registry) AsyncPending() <-chan struct{} {
	return r.async.signal
}

// TakeAsynchronousUpdates returns the buffered updates, one per state in the order the
// states first posted, and empties the buffer.
func (r *Registry) TakeAsynchronousUpdates() []AsyncUpdate {
	b := r.async
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.order) == 0 {
		return nil
	}
	out := make([]AsyncUpdate, 0, len(b.order))
	for _, state := range b.order {
		out = append(out, AsyncUpdate{State: state, Data: b.pending[state]})
	}
	b.order = nil
	b.pending = make(map[string]domain.DataBag)
	return out
}
