package gamestate_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/aretw0/gamestate"
	"github.com/aretw0/gamestate/pkg/adapters/http"
	"github.com/aretw0/gamestate/pkg/adapters/memory"
	"github.com/aretw0/gamestate/pkg/domain"
	"github.com/aretw0/gamestate/pkg/history"
	"github.com/aretw0/gamestate/pkg/persistence/middleware"
	"github.com/aretw0/gamestate/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var nextStep = domain.PresentationMessage{Type: domain.MessagePresentationStateComplete, Action: domain.ActionNextStep}

// registerGame installs Idle -> Game -> Idle. Game waits for the presentation to complete.
func registerGame(t *testing.T, m *gamestate.Machine) {
	t.Helper()
	round := 0
	require.NoError(t, m.CreateCommittedState("Idle", func(sc gamestate.StageContext) error {
		return sc.SetNextState("Game")
	}, nil))
	require.NoError(t, m.CreateState("Game",
		func(sc gamestate.StageContext) error { return nil },
		func(sc gamestate.StageContext) error {
			round++
			if err := sc.StartState("Game", gamestate.DataBag{"Game": {"Round": round}}); err != nil {
				return err
			}
			if _, _, err := sc.GetPresentationEvent(0, domain.MessagePresentationStateComplete); err != nil {
				return err
			}
			return sc.SetNextState("Idle")
		}, history.Default(1)))
}

type running struct {
	done chan struct{}
	err  error
}

func (r *running) Wait() error {
	<-r.done
	return r.err
}

func run(t *testing.T, ctx context.Context, m *gamestate.Machine) *running {
	t.Helper()
	r := &running{done: make(chan struct{})}
	go func() {
		defer close(r.done)
		r.err = m.Run(ctx)
	}()
	t.Cleanup(func() {
		m.Stop()
		select {
		case <-r.done:
		case <-time.After(5 * time.Second):
			t.Error("machine did not stop")
		}
	})
	return r
}

// shownRound reads the round on screen. Recorded starts are shown in their
// replayed form, so live and replayed rounds are both uint64.
func shownRound(b *http.Bridge) uint64 {
	snap := b.Current()
	if snap == nil {
		return 0
	}
	v, _ := snap.Data.Get("Game", "Round")
	n, _ := v.(uint64)
	return n
}

func TestNew_RequiresStore(t *testing.T) {
	_, err := gamestate.New(nil)
	assert.ErrorIs(t, err, gamestate.ErrNoStore)
}

func TestNew_RecoveryStateIsRegistered(t *testing.T) {
	m, err := gamestate.New(memory.NewStore(), gamestate.WithPowerHitRecovery("Replay"))
	require.NoError(t, err)
	require.NotNil(t, m.Segment())
	assert.Equal(t, "Replay", m.Segment().Name())

	// The name is taken.
	err = m.CreateCommittedState("Replay", func(gamestate.StageContext) error { return nil }, nil)
	assert.ErrorIs(t, err, domain.ErrDuplicateState)
}

func TestMachine_PowerHitRecovery(t *testing.T) {
	store := memory.NewStore()

	// First boot: one game completes, the second is interrupted while shown.
	bridge := http.NewBridge()
	m, err := gamestate.New(store,
		gamestate.WithPresentation(bridge),
		gamestate.WithInitialState("Idle"),
		gamestate.WithPowerHitRecovery("Replay"),
	)
	require.NoError(t, err)
	registerGame(t, m)
	require.NoError(t, bridge.Send(nextStep))

	ctx, powerHit := context.WithCancel(context.Background())
	r := run(t, ctx, m)
	require.Eventually(t, func() bool { return shownRound(bridge) == 2 }, 2*time.Second, 5*time.Millisecond)
	powerHit()
	require.NoError(t, r.Wait())

	// Second boot: the recorded game is replayed before Game resumes.
	bridge = http.NewBridge()
	m, err = gamestate.New(store,
		gamestate.WithPresentation(bridge),
		gamestate.WithInitialState("Idle"),
		gamestate.WithPowerHitRecovery("Replay"),
	)
	require.NoError(t, err)
	registerGame(t, m)

	run(t, context.Background(), m)
	require.Eventually(t, func() bool {
		snap := bridge.Current()
		if snap == nil {
			return false
		}
		v, _ := snap.Data.Get(domain.ProviderHistory, domain.ServiceRecoveryMode)
		return v == true
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, m.Recovering())
	assert.EqualValues(t, 1, shownRound(bridge), "the completed game is replayed")

	require.NoError(t, bridge.Send(nextStep))
	require.Eventually(t, func() bool {
		return !m.Recovering() && shownRound(bridge) == 1 && !stamped(bridge)
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "Game", m.Storage().CurrentState)
}

func stamped(b *http.Bridge) bool {
	_, ok := b.Current().Data.Get(domain.ProviderHistory, domain.ServiceRecoveryMode)
	return ok
}

func TestMachine_MetricsAndEncryptedStore(t *testing.T) {
	underlying := memory.NewStore()
	reg := prometheus.NewRegistry()
	bridge := http.NewBridge()

	m, err := gamestate.New(underlying,
		gamestate.WithPresentation(bridge),
		gamestate.WithInitialState("Idle"),
		gamestate.WithMetrics(reg),
		gamestate.WithStoreMiddleware(middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey: make([]byte, 32),
		})),
	)
	require.NoError(t, err)
	registerGame(t, m)
	require.NoError(t, bridge.Send(nextStep))

	run(t, context.Background(), m)
	require.Eventually(t, func() bool { return shownRound(bridge) == 2 }, 2*time.Second, 5*time.Millisecond)

	n, err := testutil.GatherAndCount(reg, "gamestate_stage_runs_total", "gamestate_transactions_total", "gamestate_history_steps_total")
	require.NoError(t, err)
	assert.Positive(t, n)

	// The pointer is not readable without the key.
	ctx := context.Background()
	tx, err := underlying.Begin(ctx, "raw")
	require.NoError(t, err)
	defer tx.Rollback(ctx)
	raw, err := tx.Read(domain.ScopeGameMode, domain.StateStorageKey(m.Name()))
	require.NoError(t, err)
	var s domain.StateStorage
	assert.Error(t, json.Unmarshal(raw, &s))
}

func TestMachine_QueuedOperation(t *testing.T) {
	store := memory.NewStore()
	m, err := gamestate.New(store, gamestate.WithInitialState("Idle"))
	require.NoError(t, err)

	require.NoError(t, m.CreateCommittedState("Idle", func(sc gamestate.StageContext) error {
		var credits []byte
		if err := sc.ProcessEvents(func(tx gamestate.Transaction) bool {
			v, err := tx.Read(domain.ScopeGameCycle, "Credits")
			credits = v
			return err == nil
		}); err != nil {
			return err
		}
		if err := sc.Tx().Remove(domain.ScopeGameCycle, "Credits"); err != nil {
			return err
		}
		if err := sc.Tx().Write(domain.ScopeGameCycle, "Bank", credits); err != nil {
			return err
		}
		return sc.SetNextState("Idle")
	}, nil))

	run(t, context.Background(), m)

	op := m.NewTransactionalOperation("add-credits")
	err = op.Execute(context.Background(), func(tx ports.Transaction) error {
		return tx.Write(domain.ScopeGameCycle, "Credits", []byte("100"))
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		tx, err := store.Begin(context.Background(), "check")
		if err != nil {
			return false
		}
		defer tx.Rollback(context.Background())
		v, err := tx.Read(domain.ScopeGameCycle, "Bank")
		return err == nil && string(v) == "100"
	}, 2*time.Second, 5*time.Millisecond)
}
