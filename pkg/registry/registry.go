package registry

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/aretw0/gamestate/internal/logging"
	"github.com/aretw0/gamestate/pkg/domain"
	"github.com/aretw0/gamestate/pkg/history"
	"github.com/aretw0/gamestate/pkg/ports"
)

// State is a registered two-stage state.
type State struct {
	Name string

	// Processing is nil for states that only have a Committed stage.
	Processing ports.StageHandler
	Committed  ports.StageHandler

	History *history.Policy
}

// WrittenStep is a history step flushed by WriteCachedHistory.
type WrittenStep struct {
	State string
	domain.HistoryEntry
}

type cachedStep struct {
	state  string
	record *domain.HistoryStepRecord
}

// Registry maps state names to handlers and owns the history cache.
type Registry struct {
	mu     sync.RWMutex
	states map[string]*State
	order  []string

	// cache is touched by the executor goroutine only.
	cache map[uint]*cachedStep

	async  *asyncBuffer
	logger *slog.Logger
}

// Option configures the Registry.
type Option func(*Registry)

// WithLogger configures a logger for the Registry.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		states: make(map[string]*State),
		cache:  make(map[uint]*cachedStep),
		async:  newAsyncBuffer(),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateState registers a state with both stages. A nil policy records no history.
func (r *Registry) CreateState(name string, processing, committed ports.StageHandler, policy *history.Policy) error {
	if processing == nil || committed == nil {
		return fmt.Errorf("%w: %q", domain.ErrNilHandler, name)
	}
	return r.add(&State{Name: name, Processing: processing, Committed: committed, History: policy})
}

// CreateCommittedState registers a state without a Processing stage. The executor flips
// it straight to Committed.
func (r *Registry) CreateCommittedState(name string, committed ports.StageHandler, policy *history.Policy) error {
	if committed == nil {
		return fmt.Errorf("%w: %q", domain.ErrNilHandler, name)
	}
	return r.add(&State{Name: name, Committed: committed, History: policy})
}

func (r *Registry) add(st *State) error {
	if st.Name == domain.InvalidState {
		return fmt.Errorf("%w: empty state name", domain.ErrUnknownState)
	}
	if st.History == nil {
		st.History = history.None()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.states[st.Name]; exists {
		return fmt.Errorf("%w: %q", domain.ErrDuplicateState, st.Name)
	}
	r.states[st.Name] = st
	r.order = append(r.order, st.Name)
	return nil
}

// State returns a registered state.
func (r *Registry) State(name string) (*State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.states[name]
	return st, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.State(name)
	return ok
}

// Names lists registered states in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// WriteStartStateHistory caches the record of a presentation start for step.
// owner is the running state whose policy applies; presented is the name shown.
func (r *Registry) WriteStartStateHistory(owner, presented string, data domain.DataBag, step uint) error {
	st, ok := r.State(owner)
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnknownState, owner)
	}
	if !st.History.Records() {
		return nil
	}

	rec, err := st.History.StartRecord(presented, data)
	if err != nil {
		return err
	}
	r.cache[step] = &cachedStep{state: owner, record: rec}
	r.logger.Debug("history step cached", "state", owner, "presented", presented, "step", step)
	return nil
}

// WriteUpdateHistory folds an asynchronous update into the record cached for step.
// It does nothing when no record exists for step.
func (r *Registry) WriteUpdateHistory(owner string, data domain.DataBag, step uint) error {
	c, ok := r.cache[step]
	if !ok || c.state != owner {
		return nil
	}
	st, ok := r.State(c.state)
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnknownState, c.state)
	}
	return st.History.ApplyUpdate(c.record, data)
}

// CachedSteps returns the number of records waiting to be flushed.
func (r *Registry) CachedSteps() int {
	return len(r.cache)
}

// WriteCachedHistory persists every cached record in step order and appends it to the
// HistoryList, unless excluded is set. The cache is cleared in both cases.
func (r *Registry) WriteCachedHistory(tx ports.Transaction, excluded bool) ([]WrittenStep, error) {
	defer r.DiscardCachedHistory()

	if len(r.cache) == 0 {
		return nil, nil
	}
	if excluded {
		r.logger.Debug("history step excluded", "steps", len(r.cache))
		return nil, nil
	}

	steps := make([]uint, 0, len(r.cache))
	for step := range r.cache {
		steps = append(steps, step)
	}
	slices.Sort(steps)

	written := make([]WrittenStep, 0, len(steps))
	entries := make([]domain.HistoryEntry, 0, len(steps))
	for _, step := range steps {
		c := r.cache[step]
		st, ok := r.State(c.state)
		if !ok {
			return nil, fmt.Errorf("%w: %q", domain.ErrUnknownState, c.state)
		}

		data, err := st.History.Flatten(c.record)
		if err != nil {
			return nil, fmt.Errorf("failed to flatten history step %d: %w", step, err)
		}
		if err := history.WriteBlock(tx, step, data); err != nil {
			return nil, fmt.Errorf("failed to write history step %d: %w", step, err)
		}

		entry := domain.HistoryEntry{Step: step, Priority: c.record.Priority}
		entries = append(entries, entry)
		written = append(written, WrittenStep{State: c.state, HistoryEntry: entry})
	}

	if err := history.AppendEntries(tx, entries...); err != nil {
		return nil, fmt.Errorf("failed to append history list: %w", err)
	}
	return written, nil
}

// DiscardCachedHistory drops every cached record.
func (r *Registry) DiscardCachedHistory() {
	clear(r.cache)
}
