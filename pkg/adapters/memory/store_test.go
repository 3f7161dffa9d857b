package memory_test

import (
	"context"
	"testing"

	"github.com/aretw0/gamestate/pkg/adapters/memory"
	"github.com/aretw0/gamestate/pkg/domain"
	"github.com/aretw0/gamestate/pkg/ports/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	store := memory.NewStore()
	tests.RunCriticalDataContract(t, store)
}

func TestMemoryStore_Keys(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	tx, err := store.Begin(ctx, "seed")
	require.NoError(t, err)
	require.NoError(t, tx.Write(domain.ScopeHistory, "HistoryStep/2", []byte("b")))
	require.NoError(t, tx.Write(domain.ScopeHistory, "HistoryStep/1", []byte("a")))
	require.NoError(t, tx.Write(domain.ScopeGameMode, "pointer", []byte("p")))
	require.NoError(t, tx.Commit(ctx))

	assert.Equal(t, []string{"HistoryStep/1", "HistoryStep/2"}, store.Keys(domain.ScopeHistory))
	assert.Equal(t, []string{"pointer"}, store.Keys(domain.ScopeGameMode))
}
