package tests

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/gamestate/pkg/domain"
	"github.com/aretw0/gamestate/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunCriticalDataContract runs a suite of tests to verify that a CriticalDataStore
// implementation adheres to the transactional contract expected by the executor.
func RunCriticalDataContract(t *testing.T, store ports.CriticalDataStore) {
	t.Helper()
	ctx := context.Background()
	prefix := "contract-" + time.Now().Format("20060102150405") + "/"

	t.Run("Read Non-Existent", func(t *testing.T) {
		tx, err := store.Begin(ctx, "read-missing")
		require.NoError(t, err)
		defer tx.Rollback(ctx)

		_, err = tx.Read(domain.ScopeGameMode, prefix+"missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Commit Persists", func(t *testing.T) {
		tx, err := store.Begin(ctx, "write")
		require.NoError(t, err)
		assert.Equal(t, "write", tx.Name())
		require.NoError(t, tx.Write(domain.ScopeGameMode, prefix+"pointer", []byte("v1")))

		// Read your own writes
		data, err := tx.Read(domain.ScopeGameMode, prefix+"pointer")
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), data)
		require.NoError(t, tx.Commit(ctx))

		tx2, err := store.Begin(ctx, "read")
		require.NoError(t, err)
		defer tx2.Rollback(ctx)
		data, err = tx2.Read(domain.ScopeGameMode, prefix+"pointer")
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), data)
	})

	t.Run("Rollback Discards", func(t *testing.T) {
		tx, err := store.Begin(ctx, "discard")
		require.NoError(t, err)
		require.NoError(t, tx.Write(domain.ScopeGameMode, prefix+"discarded", []byte("x")))
		require.NoError(t, tx.Rollback(ctx))

		tx2, err := store.Begin(ctx, "check")
		require.NoError(t, err)
		defer tx2.Rollback(ctx)
		_, err = tx2.Read(domain.ScopeGameMode, prefix+"discarded")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Uncommitted Writes Are Invisible", func(t *testing.T) {
		tx, err := store.Begin(ctx, "writer")
		require.NoError(t, err)
		require.NoError(t, tx.Write(domain.ScopeGameCycle, prefix+"pending", []byte("x")))

		other, err := store.Begin(ctx, "reader")
		require.NoError(t, err)
		_, err = other.Read(domain.ScopeGameCycle, prefix+"pending")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		require.NoError(t, other.Rollback(ctx))
		require.NoError(t, tx.Rollback(ctx))
	})

	t.Run("Scopes Are Isolated", func(t *testing.T) {
		tx, err := store.Begin(ctx, "scopes")
		require.NoError(t, err)
		require.NoError(t, tx.Write(domain.ScopeHistory, prefix+"shared", []byte("history")))
		require.NoError(t, tx.Write(domain.ScopeGameCycle, prefix+"shared", []byte("cycle")))
		require.NoError(t, tx.Commit(ctx))

		tx2, err := store.Begin(ctx, "scopes-read")
		require.NoError(t, err)
		defer tx2.Rollback(ctx)
		h, err := tx2.Read(domain.ScopeHistory, prefix+"shared")
		require.NoError(t, err)
		c, err := tx2.Read(domain.ScopeGameCycle, prefix+"shared")
		require.NoError(t, err)
		assert.Equal(t, "history", string(h))
		assert.Equal(t, "cycle", string(c))
		_, err = tx2.Read(domain.ScopeGameMode, prefix+"shared")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Remove", func(t *testing.T) {
		tx, err := store.Begin(ctx, "remove-setup")
		require.NoError(t, err)
		require.NoError(t, tx.Write(domain.ScopeHistory, prefix+"gone", []byte("x")))
		require.NoError(t, tx.Commit(ctx))

		tx, err = store.Begin(ctx, "remove")
		require.NoError(t, err)
		require.NoError(t, tx.Remove(domain.ScopeHistory, prefix+"gone"))
		require.NoError(t, tx.Remove(domain.ScopeHistory, prefix+"never-existed"))
		_, err = tx.Read(domain.ScopeHistory, prefix+"gone")
		assert.ErrorIs(t, err, domain.ErrNotFound, "removal must be visible inside the transaction")
		require.NoError(t, tx.Commit(ctx))

		tx2, err := store.Begin(ctx, "remove-check")
		require.NoError(t, err)
		defer tx2.Rollback(ctx)
		_, err = tx2.Read(domain.ScopeHistory, prefix+"gone")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Closed Transaction", func(t *testing.T) {
		tx, err := store.Begin(ctx, "closed")
		require.NoError(t, err)
		require.NoError(t, tx.Commit(ctx))

		assert.NoError(t, tx.Rollback(ctx), "Rollback after Commit must be a no-op")
		assert.ErrorIs(t, tx.Write(domain.ScopeGameMode, prefix+"late", []byte("x")), domain.ErrTransactionClosed)
		_, err = tx.Read(domain.ScopeGameMode, prefix+"late")
		assert.ErrorIs(t, err, domain.ErrTransactionClosed)
		assert.ErrorIs(t, tx.Commit(ctx), domain.ErrTransactionClosed)
	})
}
