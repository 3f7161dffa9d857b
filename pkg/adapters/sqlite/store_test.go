package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aretw0/gamestate/pkg/adapters/sqlite"
	"github.com/aretw0/gamestate/pkg/domain"
	"github.com/aretw0/gamestate/pkg/ports/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore_Contract(t *testing.T) {
	store, err := sqlite.New(filepath.Join(t.TempDir(), "critical.db"))
	require.NoError(t, err)
	defer store.Close()

	tests.RunCriticalDataContract(t, store)
}

func TestSQLiteStore_InMemory(t *testing.T) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	defer store.Close()

	tests.RunCriticalDataContract(t, store)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "critical.db")
	ctx := context.Background()

	store, err := sqlite.New(path)
	require.NoError(t, err)
	tx, err := store.Begin(ctx, "write")
	require.NoError(t, err)
	require.NoError(t, tx.Write(domain.ScopeGameCycle, "CurrentHistoryRecordNumber", []byte{0x03}))
	require.NoError(t, tx.Commit(ctx))
	require.NoError(t, store.Close())

	// Reopening runs the migration again, which must be idempotent
	reopened, err := sqlite.New(path)
	require.NoError(t, err)
	defer reopened.Close()

	tx2, err := reopened.Begin(ctx, "read")
	require.NoError(t, err)
	defer tx2.Rollback(ctx)
	data, err := tx2.Read(domain.ScopeGameCycle, "CurrentHistoryRecordNumber")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x03}, data)
}

func TestSQLiteStore_RejectsBadPaths(t *testing.T) {
	_, err := sqlite.New("")
	assert.Error(t, err)

	_, err = sqlite.New("db.sqlite?mode=ro")
	assert.Error(t, err)
}
