package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/gamestate/pkg/adapters/txbuf"
	"github.com/aretw0/gamestate/pkg/domain"
	"github.com/aretw0/gamestate/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

// Store implements ports.CriticalDataStore using Redis.
// Writes are buffered per transaction and applied with MULTI/EXEC on commit.
type Store struct {
	client *backend.Client
	prefix string
}

var _ ports.CriticalDataStore = (*Store)(nil)

type Option func(*Store)

// WithPrefix sets the key prefix for critical data.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "gamestate:",
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

// Client returns the underlying redis client, shared with the Locker.
func (s *Store) Client() *backend.Client {
	return s.client
}

func (s *Store) key(k txbuf.Key) string {
	return s.prefix + string(k.Scope) + ":" + k.Path
}

// Begin opens a transaction. The context is kept for reads issued by the transaction.
func (s *Store) Begin(ctx context.Context, name string) (ports.Transaction, error) {
	return &transaction{store: s, ctx: ctx, name: name, buf: txbuf.New()}, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

type transaction struct {
	store *Store
	ctx   context.Context
	name  string
	buf   *txbuf.Buffer
}

func (t *transaction) Name() string { return t.name }

func (t *transaction) Read(scope domain.Scope, path string) ([]byte, error) {
	return t.buf.Read(scope, path, func(k txbuf.Key) ([]byte, error) {
		val, err := t.store.client.Get(t.ctx, t.store.key(k)).Bytes()
		if err != nil {
			if errors.Is(err, backend.Nil) {
				return nil, domain.ErrNotFound
			}
			return nil, fmt.Errorf("failed to get from redis: %w", err)
		}
		return val, nil
	})
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
	defer t.buf.Close()
	if t.buf.Len() == 0 {
		return nil
	}

	_, err := t.store.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		for _, op := range t.buf.Ops() {
			if op.Removed {
				pipe.Del(ctx, t.store.key(op.Key))
				continue
			}
			pipe.Set(ctx, t.store.key(op.Key), op.Data, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to commit transaction %q to redis: %w", t.name, err)
	}
	return nil
}

func (t *transaction) Rollback(ctx context.Context) error {
	t.buf.Close()
	return nil
}
