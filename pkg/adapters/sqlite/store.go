// Package sqlite implements a critical-data store on SQLite (pure Go driver).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/gamestate/internal/logging"
	"github.com/aretw0/gamestate/pkg/adapters/txbuf"
	"github.com/aretw0/gamestate/pkg/domain"
	"github.com/aretw0/gamestate/pkg/ports"
	_ "modernc.org/sqlite"
)

// Store implements ports.CriticalDataStore using SQLite.
// Each store transaction is applied as one SQL transaction on commit.
type Store struct {
	db          *sql.DB
	logger      *slog.Logger
	busyTimeout time.Duration

	readStmt *sql.Stmt
}

var _ ports.CriticalDataStore = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithLogger configures a logger for the Store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithBusyTimeout sets how long SQLite waits on a locked database.
func WithBusyTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.busyTimeout = d
	}
}

// New opens (and migrates) the database at path. ":memory:" opens a private in-memory database.
func New(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite: path is required")
	}
	// Prevent URI parameter injection
	if path != ":memory:" && (strings.Contains(path, "?") || strings.Contains(path, "#")) {
		return nil, errors.New("sqlite: path cannot contain '?' or '#' characters")
	}

	s := &Store{
		logger:      logging.NewNop(),
		busyTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)", path, s.busyTimeout.Milliseconds())
	if path == ":memory:" {
		dsn = "file::memory:?mode=memory"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}
	if path == ":memory:" {
		// Every connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}
	s.db = db

	if err := s.applyPragmas(path); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: apply pragmas: %w", err)
	}
	if err := migrate(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}

	s.readStmt, err = db.Prepare("SELECT data FROM critical_data WHERE scope = ? AND path = ?")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: prepare statements: %w", err)
	}
	return s, nil
}

func (s *Store) applyPragmas(path string) error {
	pragmas := []string{
		"PRAGMA synchronous = FULL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", s.busyTimeout.Milliseconds()),
	}
	if path != ":memory:" {
		pragmas = append([]string{"PRAGMA journal_mode = WAL"}, pragmas...)
	}
	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("exec %q: %w", pragma, err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.readStmt != nil {
		s.readStmt.Close()
	}
	return s.db.Close()
}

// Begin opens a transaction. The context is kept for reads issued by the transaction.
func (s *Store) Begin(ctx context.Context, name string) (ports.Transaction, error) {
	return &transaction{store: s, ctx: ctx, name: name, buf: txbuf.New()}, nil
}

func (s *Store) load(ctx context.Context, k txbuf.Key) ([]byte, error) {
	var data []byte
	err := s.readStmt.QueryRowContext(ctx, string(k.Scope), k.Path).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: read %s: %w", k, err)
	}
	return data, nil
}

func (s *Store) commit(ctx context.Context, name string, ops []txbuf.Op) (err error) {
	start := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for _, op := range ops {
		if op.Removed {
			_, err = tx.ExecContext(ctx, "DELETE FROM critical_data WHERE scope = ? AND path = ?",
				string(op.Key.Scope), op.Key.Path)
		} else {
			_, err = tx.ExecContext(ctx, `INSERT INTO critical_data (scope, path, data, updated_at)
				VALUES (?, ?, ?, CURRENT_TIMESTAMP)
				ON CONFLICT(scope, path) DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP`,
				string(op.Key.Scope), op.Key.Path, op.Data)
		}
		if err != nil {
			return fmt.Errorf("sqlite: apply %s: %w", op.Key, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	s.logger.Debug("committed transaction", "name", name, "ops", len(ops), "duration", time.Since(start))
	return nil
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
		return t.store.load(t.ctx, k)
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
	return t.store.commit(ctx, t.name, t.buf.Ops())
}

func (t *transaction) Rollback(ctx context.Context) error {
	t.buf.Close()
	return nil
}
