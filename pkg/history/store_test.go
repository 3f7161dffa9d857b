package history_test

import (
	"context"
	"testing"

	"github.com/aretw0/gamestate/pkg/adapters/memory"
	"github.com/aretw0/gamestate/pkg/domain"
	"github.com/aretw0/gamestate/pkg/history"
	"github.com/aretw0/gamestate/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func beginTx(t *testing.T, store ports.CriticalDataStore) ports.Transaction {
	t.Helper()
	tx, err := store.Begin(context.Background(), t.Name())
	require.NoError(t, err)
	t.Cleanup(func() { _ = tx.Rollback(context.Background()) })
	return tx
}

func TestList_AppendAndRead(t *testing.T) {
	tx := beginTx(t, memory.NewStore())

	entries, err := history.ReadList(tx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, history.AppendEntries(tx, domain.HistoryEntry{Step: 1, Priority: 5}))
	require.NoError(t, history.AppendEntries(tx,
		domain.HistoryEntry{Step: 2, Priority: 0},
		domain.HistoryEntry{Step: 4, Priority: 9},
	))
	require.NoError(t, history.AppendEntries(tx))

	entries, err = history.ReadList(tx)
	require.NoError(t, err)
	assert.Equal(t, []domain.HistoryEntry{
		{Step: 1, Priority: 5},
		{Step: 2, Priority: 0},
		{Step: 4, Priority: 9},
	}, entries)

	n, err := history.Count(tx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestList_CorruptLengths(t *testing.T) {
	tx := beginTx(t, memory.NewStore())
	require.NoError(t, history.AppendEntries(tx, domain.HistoryEntry{Step: 1}))
	require.NoError(t, tx.Remove(domain.ScopeHistory, history.KeyHistoryPriorityList))

	_, err := history.ReadList(tx)
	assert.ErrorIs(t, err, history.ErrCorruptList)
}

func TestRecordNumber(t *testing.T) {
	tx := beginTx(t, memory.NewStore())

	n, err := history.CurrentRecordNumber(tx)
	require.NoError(t, err)
	assert.Equal(t, uint(0), n)

	for want := uint(1); want <= 3; want++ {
		got, err := history.NextRecordNumber(tx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestBlocksAndClear(t *testing.T) {
	tx := beginTx(t, memory.NewStore())

	block := &domain.CommonHistoryBlock{StateName: "Spin", Data: domain.DataBag{"Game": {"Stops": "1,2,3"}}}
	encoded, err := history.Encode(block)
	require.NoError(t, err)

	step, err := history.NextRecordNumber(tx)
	require.NoError(t, err)
	require.NoError(t, history.WriteBlock(tx, step, encoded))
	require.NoError(t, history.AppendEntries(tx, domain.HistoryEntry{Step: step}))

	got, err := history.ReadBlock(tx, step)
	require.NoError(t, err)
	assert.Equal(t, "Spin", got.StateName)

	require.NoError(t, history.Clear(tx))

	_, err = history.ReadBlock(tx, step)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	n, err := history.Count(tx)
	require.NoError(t, err)
	assert.Zero(t, n)
	rn, err := history.CurrentRecordNumber(tx)
	require.NoError(t, err)
	assert.Zero(t, rn)
}

func TestPhase(t *testing.T) {
	tx := beginTx(t, memory.NewStore())

	_, ok, err := history.ReadPhase(tx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, history.WritePhase(tx, domain.PhaseFinalized))
	phase, ok, err := history.ReadPhase(tx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, domain.PhaseFinalized, phase)
}

func TestStepKey(t *testing.T) {
	assert.Equal(t, "HistoryStep/12", history.StepKey(12))
}
