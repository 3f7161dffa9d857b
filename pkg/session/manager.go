package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/gamestate/internal/logging"
	"github.com/aretw0/gamestate/pkg/domain"
	"github.com/aretw0/gamestate/pkg/ports"
)

// DefaultLockTTL bounds how long a crashed owner can block a scope.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager serializes transactions per game-mode scope.
// It uses reference counting to garbage collect unused locks.
type Manager struct {
	store ports.CriticalDataStore

	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Map of active locks

	locker ports.DistributedLocker // Optional distributed locker
	ttl    time.Duration
	logger *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the distributed lock TTL. Non-positive values keep the default.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a Manager over store.
func NewManager(store ports.CriticalDataStore, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		locks:  make(map[string]*lockEntry),
		ttl:    DefaultLockTTL,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
func (m *Manager) acquire(scope string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[scope]
	if !exists {
		entry = &lockEntry{}
		m.locks[scope] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(scope string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[scope]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, scope)
	}
}

// Lock takes the scope lock and returns the function that releases it.
func (m *Manager) Lock(ctx context.Context, scope string) (func(), error) {
	entry := m.acquire(scope)
	entry.mu.Lock()
	local := func() {
		entry.mu.Unlock()
		m.release(scope)
	}

	if m.locker == nil {
		return local, nil
	}

	unlock, err := m.locker.Lock(ctx, scope, m.ttl)
	if err != nil {
		local()
		return nil, fmt.Errorf("failed to acquire distributed lock: %w", err)
	}
	return func() {
		// The caller's context may be gone by now; the release must still reach the locker.
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
				"scope", scope,
				"err", err,
			)
		}
		local()
	}, nil
}

// WithLock executes fn while holding the scope lock.
func (m *Manager) WithLock(ctx context.Context, scope string, fn func(context.Context) error) error {
	unlock, err := m.Lock(ctx, scope)
	if err != nil {
		return err
	}
	defer unlock()
	return fn(ctx)
}

// Begin opens a transaction on the underlying store while holding the scope lock.
// The lock is released when the transaction is committed or rolled back.
func (m *Manager) Begin(ctx context.Context, scope, name string) (ports.Transaction, error) {
	unlock, err := m.Lock(ctx, scope)
	if err != nil {
		return nil, err
	}
	tx, err := m.store.Begin(ctx, name)
	if err != nil {
		unlock()
		return nil, err
	}
	return &guardedTx{Transaction: tx, unlock: unlock}, nil
}

// Store returns a view of the store whose transactions are guarded by the scope lock.
func (m *Manager) Store(scope string) ports.CriticalDataStore {
	return scopedStore{m: m, scope: scope}
}

// Active returns the number of scopes with a live lock entry.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

type scopedStore struct {
	m     *Manager
	scope string
}

func (s scopedStore) Begin(ctx context.Context, name string) (ports.Transaction, error) {
	return s.m.Begin(ctx, s.scope, name)
}

// guardedTx releases the scope lock exactly once, on the first Commit or Rollback.
type guardedTx struct {
	ports.Transaction
	unlock func()
	once   sync.Once
}

func (g *guardedTx) Commit(ctx context.Context) error {
	err := g.Transaction.Commit(ctx)
	if err == nil || errors.Is(err, domain.ErrTransactionClosed) {
		g.once.Do(g.unlock)
	}
	return err
}

func (g *guardedTx) Rollback(ctx context.Context) error {
	err := g.Transaction.Rollback(ctx)
	g.once.Do(g.unlock)
	return err
}
