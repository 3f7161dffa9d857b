package memory

import (
	"context"
	"sync"

	"github.com/aretw0/gamestate/pkg/adapters/txbuf"
	"github.com/aretw0/gamestate/pkg/domain"
	"github.com/aretw0/gamestate/pkg/ports"
)

// Store implements ports.CriticalDataStore in memory.
// Safe for concurrent use. Data outlives executors sharing the Store, which is
// what tests use to simulate a restart.
type Store struct {
	data map[txbuf.Key][]byte
	mu   sync.RWMutex
}

var _ ports.CriticalDataStore = (*Store)(nil)

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[txbuf.Key][]byte),
	}
}

// Begin opens a transaction.
func (s *Store) Begin(ctx context.Context, name string) (ports.Transaction, error) {
	return &transaction{store: s, name: name, buf: txbuf.New()}, nil
}

func (s *Store) load(k txbuf.Key) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[k]
	if !ok {
		return nil, domain.ErrNotFound
	}
	// Copy on read so callers can't mutate the store through the slice
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

func (s *Store) apply(ops []txbuf.Op) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range ops {
		if op.Removed {
			delete(s.data, op.Key)
			continue
		}
		s.data[op.Key] = op.Data
	}
}

// Keys lists committed keys of a scope.
func (s *Store) Keys(scope domain.Scope) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]txbuf.Key, 0)
	for k := range s.data {
		if k.Scope == scope {
			keys = append(keys, k)
		}
	}
	paths := make([]string, 0, len(keys))
	for _, k := range txbuf.SortedKeys(keys) {
		paths = append(paths, k.Path)
	}
	return paths
}

type transaction struct {
	store *Store
	name  string
	buf   *txbuf.Buffer
}

func (t *transaction) Name() string { return t.name }

func (t *transaction) Read(scope domain.Scope, path string) ([]byte, error) {
	return t.buf.Read(scope, path, t.store.load)
}

func (t *transaction) Write(scope domain.Scope, path string, data []byte) error {
	return t.buf.Write(scope, path, data)
}

func (t *transaction) Remove(scope domain.Scope, path string) error {
	return t.buf.Remove(scope, path)
}

func (t *transaction) Commit(ctx context.Context) error {
	if t.buf.Closed() {
		return domain.ErrTransactionClosed
	}
	t.store.apply(t.buf.Ops())
	t.buf.Close()
	return nil
}

func (t *transaction) Rollback(ctx context.Context) error {
	t.buf.Close()
	return nil
}
