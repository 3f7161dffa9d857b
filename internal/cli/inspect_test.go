package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/aretw0/gamestate/pkg/adapters/memory"
	"github.com/aretw0/gamestate/pkg/domain"
	"github.com/aretw0/gamestate/pkg/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedInspect(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	tx, err := store.Begin(ctx, "seed")
	require.NoError(t, err)

	ptr, err := json.Marshal(domain.StateStorage{CurrentState: StatePayout, PendingState: StatePayout, StateStage: domain.StageCommitted})
	require.NoError(t, err)
	require.NoError(t, tx.Write(domain.ScopeGameMode, domain.StateStorageKey("main"), ptr))
	require.NoError(t, history.WritePhase(tx, domain.PhaseMainPlayComplete))

	for i, name := range []string{"Reels", "Win"} {
		step, err := history.NextRecordNumber(tx)
		require.NoError(t, err)
		block, err := history.Encode(&domain.CommonHistoryBlock{StateName: name, Data: domain.DataBag{"Game": {"Win": 10}}})
		require.NoError(t, err)
		require.NoError(t, history.WriteBlock(tx, step, block))
		require.NoError(t, history.AppendEntries(tx, domain.HistoryEntry{Step: step, Priority: uint(i + 1)}))
	}
	require.NoError(t, tx.Commit(ctx))
	return store
}

func TestInspect(t *testing.T) {
	store := seedInspect(t)

	st, err := Inspect(context.Background(), store, "main")
	require.NoError(t, err)
	require.NotNil(t, st.Storage)
	assert.Equal(t, StatePayout, st.Storage.CurrentState)
	assert.Equal(t, domain.StageCommitted, st.Storage.StateStage)
	assert.Equal(t, domain.PhaseMainPlayComplete, st.Phase)
	assert.Equal(t, uint(2), st.RecordNumber)
	assert.Equal(t, 2, st.HistorySteps)

	var buf bytes.Buffer
	require.NoError(t, WriteStatus(&buf, st, false))
	assert.Contains(t, buf.String(), "Payout")
	assert.Contains(t, buf.String(), "MainPlayComplete")

	buf.Reset()
	require.NoError(t, WriteStatus(&buf, st, true))
	var decoded Status
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, 2, decoded.HistorySteps)
}

func TestInspect_NotStarted(t *testing.T) {
	st, err := Inspect(context.Background(), memory.NewStore(), "main")
	require.NoError(t, err)
	assert.Nil(t, st.Storage)
	assert.Zero(t, st.HistorySteps)

	var buf bytes.Buffer
	require.NoError(t, WriteStatus(&buf, st, false))
	assert.Contains(t, buf.String(), "(not started)")
}

func TestReadHistory(t *testing.T) {
	store := seedInspect(t)

	rows, err := ReadHistory(context.Background(), store, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Reels", rows[0].State)
	assert.Equal(t, uint(1), rows[0].Step)

	rows, err = ReadHistory(context.Background(), store, 2)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Win", rows[0].State)

	var buf bytes.Buffer
	require.NoError(t, WriteHistory(&buf, rows, false))
	assert.Contains(t, buf.String(), "STEP")
	assert.Contains(t, buf.String(), "Win")
}
