package cli

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/gamestate"
	httpadapter "github.com/aretw0/gamestate/pkg/adapters/http"
	"github.com/aretw0/gamestate/pkg/adapters/memory"
	"github.com/aretw0/gamestate/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var complete = domain.PresentationMessage{Type: domain.MessagePresentationStateComplete}

func startDemo(t *testing.T, store *memory.Store, bridge *httpadapter.Bridge, opts ...gamestate.Option) *gamestate.Machine {
	t.Helper()
	opts = append([]gamestate.Option{
		gamestate.WithPresentation(bridge),
		gamestate.WithInitialState(StateIdle),
	}, opts...)
	m, err := gamestate.New(store, opts...)
	require.NoError(t, err)
	require.NoError(t, RegisterDemo(m))

	done := make(chan error, 1)
	go func() { done <- m.Run(context.Background()) }()
	t.Cleanup(func() {
		m.Stop()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("machine did not stop")
		}
	})
	return m
}

func waitStatus(t *testing.T, store *memory.Store, cond func(*Status) bool) *Status {
	t.Helper()
	var st *Status
	require.Eventually(t, func() bool {
		var err error
		st, err = Inspect(context.Background(), store, "main")
		return err == nil && cond(st)
	}, 2*time.Second, 5*time.Millisecond)
	return st
}

func TestDemoWin(t *testing.T) {
	assert.Equal(t, 10, DemoWin(1))
	assert.Equal(t, 0, DemoWin(2))
	assert.Equal(t, 10, DemoWin(3))
}

func TestDemo_WinningRound(t *testing.T) {
	store := memory.NewStore()
	bridge := httpadapter.NewBridge()
	for range 3 {
		require.NoError(t, bridge.Send(complete))
	}
	startDemo(t, store, bridge)

	st := waitStatus(t, store, func(st *Status) bool {
		return st.Phase == domain.PhaseIdle && st.HistorySteps == 2
	})
	assert.Equal(t, StateIdle, st.Storage.CurrentState)
	assert.Equal(t, uint(2), st.RecordNumber)

	rows, err := ReadHistory(context.Background(), store, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Reels", rows[0].State)
	assert.Equal(t, "Win", rows[1].State)
	assert.Equal(t, uint(2), rows[1].Priority)

	shown, err := DemoOutcome(rows[0].Data)
	require.NoError(t, err)
	assert.Equal(t, Outcome{Round: 1, Win: 10}, shown)
	paid, err := DemoOutcome(rows[1].Data)
	require.NoError(t, err)
	assert.Equal(t, 10, paid.Win, "the payout pays what the reels showed")

	assert.Equal(t, "Attract", bridge.Current().State)
}

func TestDemoOutcome(t *testing.T) {
	o, err := DemoOutcome(domain.DataBag{"Game": {"Round": uint64(3), "Win": uint64(10), "Extra": "x"}})
	require.NoError(t, err)
	assert.Equal(t, Outcome{Round: 3, Win: 10}, o)

	_, err = DemoOutcome(domain.DataBag{"Meters": {"Win": uint64(10)}})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDemo_LosingRoundSkipsPayout(t *testing.T) {
	store := memory.NewStore()
	tx, err := store.Begin(context.Background(), "seed")
	require.NoError(t, err)
	require.NoError(t, writeInt(tx, keyRound, 1))
	require.NoError(t, tx.Commit(context.Background()))

	bridge := httpadapter.NewBridge()
	require.NoError(t, bridge.Send(complete))
	require.NoError(t, bridge.Send(complete))
	startDemo(t, store, bridge)

	st := waitStatus(t, store, func(st *Status) bool {
		return st.Phase == domain.PhaseIdle && st.HistorySteps == 1
	})
	assert.Equal(t, StateIdle, st.Storage.CurrentState)

	rows, err := ReadHistory(context.Background(), store, 2)
	require.NoError(t, err)
	assert.Empty(t, rows, "the losing round records no payout")
}

func TestDemo_RecoversPayout(t *testing.T) {
	store := memory.NewStore()

	// Interrupted while the prize is shown.
	bridge := httpadapter.NewBridge()
	require.NoError(t, bridge.Send(complete))
	require.NoError(t, bridge.Send(complete))
	first := startDemo(t, store, bridge)
	waitStatus(t, store, func(st *Status) bool {
		return st.Phase == domain.PhaseMainPlayComplete
	})
	require.Eventually(t, func() bool {
		snap := bridge.Current()
		return snap != nil && snap.State == "Win"
	}, 2*time.Second, 5*time.Millisecond)
	first.Stop()
	require.Eventually(t, func() bool { return !first.Running() }, 2*time.Second, 5*time.Millisecond)

	// The reels are replayed, then the payout resumes.
	bridge = httpadapter.NewBridge()
	second := startDemo(t, store, bridge, gamestate.WithPowerHitRecovery(StateReplay))
	require.Eventually(t, func() bool {
		snap := bridge.Current()
		return snap != nil && snap.State == "Reels"
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, second.Recovering())

	require.NoError(t, bridge.Send(domain.PresentationMessage{
		Type:   domain.MessagePresentationStateComplete,
		Action: domain.ActionNextStep,
	}))
	require.Eventually(t, func() bool {
		snap := bridge.Current()
		return !second.Recovering() && snap != nil && snap.State == "Win"
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, StatePayout, second.Storage().CurrentState)
}

func TestDemoGraph(t *testing.T) {
	g, err := DemoGraph()
	require.NoError(t, err)
	assert.Equal(t, StateIdle, g.Initial)

	play, ok := g.State(StatePlay)
	require.True(t, ok)
	assert.False(t, play.CommittedOnly())
	assert.ElementsMatch(t, []string{StatePayout, StateIdle}, play.Next)

	_, ok = g.State(StateReplay)
	assert.False(t, ok, "the recovery segment is registered by the machine")
}
