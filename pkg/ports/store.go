package ports

import (
	"context"

	"github.com/aretw0/gamestate/pkg/domain"
)

// CriticalDataStore is the durable, scoped key/value store that survives restarts.
// It is the executor's only source of truth across power-hits.
type CriticalDataStore interface {
	// Begin opens a transaction. The name is used for logs and diagnostics.
	Begin(ctx context.Context, name string) (Transaction, error)
}

// Transaction is an atomic unit of reads and writes against the CriticalDataStore.
// Writes are invisible to other transactions and lost on restart until Commit succeeds.
type Transaction interface {
	// Name returns the name the transaction was opened with.
	Name() string

	// Read returns the data stored at (scope, path), including writes made by this transaction.
	// Returns domain.ErrNotFound if the key does not exist.
	Read(scope domain.Scope, path string) ([]byte, error)

	// Write stores data at (scope, path).
	Write(scope domain.Scope, path string, data []byte) error

	// Remove deletes (scope, path). Removing a missing key is not an error.
	Remove(scope domain.Scope, path string) error

	// Commit applies every write atomically.
	Commit(ctx context.Context) error

	// Rollback discards every write. It is a no-op after Commit.
	Rollback(ctx context.Context) error
}
