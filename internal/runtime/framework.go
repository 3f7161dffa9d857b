package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/gamestate/internal/logging"
	"github.com/aretw0/gamestate/pkg/domain"
	"github.com/aretw0/gamestate/pkg/history"
	"github.com/aretw0/gamestate/pkg/monitor"
	"github.com/aretw0/gamestate/pkg/ports"
	"github.com/aretw0/gamestate/pkg/registry"
	"github.com/aretw0/gamestate/pkg/session"
	"github.com/aretw0/gamestate/pkg/txqueue"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/aretw0/gamestate"

// ErrAlreadyRunning is returned when Run is called on a running Framework.
var ErrAlreadyRunning = errors.New("executor already running")

// startedState links a presentation state to the history step recorded for it.
type startedState struct {
	owner string
	step  uint
}

// Framework is the executor. It runs the Processing and Committed stages of the
// registered states on a single goroutine, and is the only component that opens
// transactions against the store.
type Framework struct {
	registry     *registry.Registry
	store        ports.CriticalDataStore
	presentation ports.Presentation
	host         ports.Host

	machine      string
	initial      string
	recovery     ports.RecoveryState
	historyState ports.RecoveryState
	phaseCheck   CyclePhaseCheck
	locker       ports.DistributedLocker
	lockTTL      time.Duration
	logger       *slog.Logger
	hooks        domain.LifecycleHooks
	hostHandlers []ports.HostEventHandler
	tracer       trace.Tracer

	queue    *txqueue.Queue
	monitors *monitor.Set

	// Owned by the executor goroutine.
	ctx        context.Context
	storage    *domain.StateStorage
	tx         ports.Transaction
	txName     string
	txStart    time.Time
	stage      domain.StateStage
	excluded   bool
	inbox      []domain.PresentationMessage
	started    map[string]startedState
	hostEvents <-chan domain.HostEvent
	messages   <-chan domain.PresentationMessage

	snapshot   atomic.Pointer[domain.StateStorage]
	recovering atomic.Bool
	running    atomic.Bool
	done       chan struct{}
	stopOnce   sync.Once
}

// NewFramework creates an executor over a populated registry.
// host may be nil when the platform sends no events.
func NewFramework(reg *registry.Registry, store ports.CriticalDataStore, presentation ports.Presentation, host ports.Host, opts ...Option) *Framework {
	f := &Framework{
		registry:     reg,
		store:        store,
		presentation: presentation,
		host:         host,
		machine:      DefaultMachineName,
		phaseCheck:   DefaultCyclePhaseCheck,
		logger:       logging.NewNop(),
		tracer:       otel.Tracer(instrumentationName),
		queue:        txqueue.NewQueue(),
		monitors:     monitor.NewSet(),
		started:      make(map[string]startedState),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.locker != nil {
		f.store = session.NewManager(f.store,
			session.WithLocker(f.locker),
			session.WithLockTTL(f.lockTTL),
			session.WithLogger(f.logger),
		).Store(f.machine)
	}
	f.logger = f.logger.With("machine", f.machine)
	return f
}

// DefaultCyclePhaseCheck permits recovery when no phase is stored or the cycle is in play.
func DefaultCyclePhaseCheck(tx ports.Transaction) (bool, error) {
	phase, ok, err := history.ReadPhase(tx)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	return phase.AllowsHistoryRead(), nil
}

// Queue returns the queue other goroutines submit transactional work to.
func (f *Framework) Queue() *txqueue.Queue { return f.queue }

// Registry returns the state registry.
func (f *Framework) Registry() *registry.Registry { return f.registry }

// Machine returns the game-mode scope name.
func (f *Framework) Machine() string { return f.machine }

// Running reports whether Run is in progress.
func (f *Framework) Running() bool { return f.running.Load() }

// Recovering reports whether the executor is replaying history after a power-hit.
func (f *Framework) Recovering() bool { return f.recovering.Load() }

// Storage returns a copy of the in-memory state pointer, or nil before startup.
// During recovery it shows the replay state, not the persisted pointer.
func (f *Framework) Storage() *domain.StateStorage {
	return f.snapshot.Load().Clone()
}

// Stop requests shutdown. The executor unwinds at its next suspension point and
// Run returns nil. Safe to call from any goroutine, more than once.
func (f *Framework) Stop() {
	f.stopOnce.Do(func() { close(f.done) })
}

// Run executes states until Stop is called, ctx is canceled, or a fatal error occurs.
// Cooperative shutdown returns nil; fatal conditions are returned as errors.
func (f *Framework) Run(ctx context.Context) error {
	if !f.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer f.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-f.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	f.ctx = ctx
	defer f.shutdown()

	if f.host != nil {
		f.hostEvents = f.host.Events()
	}
	if f.presentation != nil {
		f.messages = f.presentation.Messages()
	}

	err := f.startup(ctx)
	for err == nil {
		if ctx.Err() != nil {
			err = domain.ErrForcedExit
			break
		}
		err = f.step(ctx)
	}

	if errors.Is(err, domain.ErrForcedExit) {
		f.logger.Info("executor stopped", "state", f.currentName())
		return nil
	}
	f.logger.Error("executor failed", "state", f.currentName(), "err", err)
	return err
}

func (f *Framework) currentName() string {
	if f.storage == nil {
		return ""
	}
	return f.storage.CurrentState
}

func (f *Framework) shutdown() {
	if f.tx != nil {
		f.rollbackTx(context.WithoutCancel(f.ctx))
	}
	if n := f.queue.CancelAll(); n > 0 {
		f.logger.Info("canceled queued transactions", "count", n)
	}
}

func (f *Framework) setStorage(s *domain.StateStorage) {
	f.storage = s
	f.snapshot.Store(s.Clone())
}

// persists reports whether stage results are written to the store.
func (f *Framework) persists() bool {
	return f.historyState == nil && !f.recovering.Load()
}

func (f *Framework) startup(ctx context.Context) error {
	if f.historyState != nil {
		if !f.registry.Has(f.historyState.Name()) {
			return fmt.Errorf("%w: history state %q", domain.ErrUnknownState, f.historyState.Name())
		}
		f.historyState.Reset()
		f.setStorage(domain.NewStateStorage(f.historyState.Name()))
		f.logger.Info("executor started in history mode", "state", f.historyState.Name())
		return nil
	}

	if !f.registry.Has(f.initial) {
		return fmt.Errorf("%w: initial state %q", domain.ErrUnknownState, f.initial)
	}
	if f.recovery != nil && !f.registry.Has(f.recovery.Name()) {
		return fmt.Errorf("%w: recovery state %q", domain.ErrUnknownState, f.recovery.Name())
	}

	if err := f.beginTx(ctx, "startup"); err != nil {
		return err
	}
	defer f.rollbackTx(ctx)

	storage, err := f.readStorage(f.tx)
	cold := errors.Is(err, domain.ErrNotFound)
	switch {
	case cold:
		storage = domain.NewStateStorage(f.initial)
		if err := f.writeStorage(f.tx, storage); err != nil {
			return err
		}
	case err != nil:
		return err
	}

	if !f.registry.Has(storage.CurrentState) {
		return fmt.Errorf("%w: persisted state %q", domain.ErrUnknownState, storage.CurrentState)
	}

	enter, steps, err := f.canEnterPowerHitRecoveryMode(storage, cold)
	if err != nil {
		return err
	}
	if err := f.commitTx(ctx); err != nil {
		return err
	}

	f.setStorage(storage)
	f.logger.Info("executor started",
		"state", storage.CurrentState,
		"stage", storage.StateStage,
		"cold_start", cold,
	)

	if enter {
		f.recovery.Reset()
		f.recovering.Store(true)
		f.setStorage(domain.NewStateStorage(f.recovery.Name()))
		f.logger.Info("entering power-hit recovery", "resume_state", storage.CurrentState, "history_steps", steps)
		f.emitRecovery(ctx, true, storage.CurrentState, steps)
	}
	return nil
}

// canEnterPowerHitRecoveryMode decides recovery with the startup transaction open.
// The override it leads to is never persisted.
func (f *Framework) canEnterPowerHitRecoveryMode(storage *domain.StateStorage, cold bool) (bool, int, error) {
	if f.recovery == nil || cold || f.tx == nil {
		return false, 0, nil
	}
	if storage.CurrentState == f.initial {
		return false, 0, nil
	}

	permitted, err := f.phaseCheck(f.tx)
	if err != nil {
		return false, 0, fmt.Errorf("failed to check game cycle phase: %w", err)
	}
	if !permitted {
		return false, 0, nil
	}

	steps, err := history.Count(f.tx)
	if err != nil {
		return false, 0, err
	}
	return steps > 0, steps, nil
}

func (f *Framework) readStorage(tx ports.Transaction) (*domain.StateStorage, error) {
	data, err := tx.Read(domain.ScopeGameMode, domain.StateStorageKey(f.machine))
	if err != nil {
		return nil, err
	}
	var s domain.StateStorage
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode state storage: %w", err)
	}
	return &s, nil
}

func (f *Framework) writeStorage(tx ports.Transaction, s *domain.StateStorage) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode state storage: %w", err)
	}
	return tx.Write(domain.ScopeGameMode, domain.StateStorageKey(f.machine), data)
}

func (f *Framework) step(ctx context.Context) error {
	st, ok := f.registry.State(f.storage.CurrentState)
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnknownState, f.storage.CurrentState)
	}

	var err error
	switch f.storage.StateStage {
	case domain.StageProcessing:
		err = f.runProcessing(ctx, st)
	case domain.StageCommitted:
		err = f.runCommitted(ctx, st)
	default:
		return fmt.Errorf("%w: unknown stage %q", domain.ErrStageSequence, f.storage.StateStage)
	}
	if err != nil {
		return err
	}
	return f.drainQueue(ctx)
}

func (f *Framework) runProcessing(ctx context.Context, st *registry.State) (err error) {
	ctx, span := f.startSpan(ctx, st.Name, domain.StageProcessing)
	defer func() { endSpan(span, err) }()

	if err := f.beginTx(ctx, st.Name+"/processing"); err != nil {
		return err
	}
	defer f.rollbackTx(ctx)

	f.stage = domain.StageProcessing
	f.emitStage(ctx, domain.EventStageEnter, st.Name, nil)

	if st.Processing != nil {
		sc := newStageContext(ctx, f, st)
		if err := st.Processing(sc); err != nil {
			f.emitStage(ctx, domain.EventStageLeave, st.Name, err)
			return stageError(st.Name, domain.StageProcessing, err)
		}
	}
	if ctx.Err() != nil {
		return domain.ErrForcedExit
	}

	next := f.storage.Clone()
	next.StateStage = domain.StageCommitted
	if f.persists() {
		if err := f.writeStorage(f.tx, next); err != nil {
			return err
		}
	}
	if err := f.commitTx(ctx); err != nil {
		return err
	}
	f.setStorage(next)
	f.emitStage(ctx, domain.EventStageLeave, st.Name, nil)
	return nil
}

func (f *Framework) runCommitted(ctx context.Context, st *registry.State) (err error) {
	ctx, span := f.startSpan(ctx, st.Name, domain.StageCommitted)
	defer func() { endSpan(span, err) }()

	if err := f.beginTx(ctx, st.Name+"/committed"); err != nil {
		return err
	}
	defer f.rollbackTx(ctx)

	f.stage = domain.StageCommitted
	f.excluded = false
	clear(f.started)
	f.emitStage(ctx, domain.EventStageEnter, st.Name, nil)

	sc := newStageContext(ctx, f, st)
	herr := st.Committed(sc)
	if herr == nil && ctx.Err() != nil {
		herr = domain.ErrForcedExit
	}
	if herr == nil && sc.next == domain.InvalidState {
		herr = fmt.Errorf("%w: state %q", domain.ErrNoNextState, st.Name)
	}
	if herr != nil {
		f.registry.DiscardCachedHistory()
		f.emitStage(ctx, domain.EventStageLeave, st.Name, herr)
		return stageError(st.Name, domain.StageCommitted, herr)
	}

	var written []registry.WrittenStep
	if f.historyState != nil {
		f.registry.DiscardCachedHistory()
	} else {
		written, err = f.registry.WriteCachedHistory(f.tx, f.excluded)
		if err != nil {
			return err
		}
	}
	f.excluded = false

	var next *domain.StateStorage
	if f.recovering.Load() && !f.recovery.IsRecovering() {
		next, err = f.readStorage(f.tx)
		if err != nil {
			return fmt.Errorf("failed to reload state storage after recovery: %w", err)
		}
		f.recovering.Store(false)
		f.logger.Info("power-hit recovery complete", "resume_state", next.CurrentState, "stage", next.StateStage)
		f.emitRecovery(ctx, false, next.CurrentState, 0)
	} else {
		next = f.storage.Clone()
		next.PendingState = sc.next
		next.Advance()
		if f.persists() {
			if err := f.writeStorage(f.tx, next); err != nil {
				return err
			}
		}
	}

	if err := f.commitTx(ctx); err != nil {
		return err
	}
	f.setStorage(next)

	for _, w := range written {
		f.emitHistory(ctx, w)
	}
	f.emitStage(ctx, domain.EventStageLeave, st.Name, nil)
	return nil
}

func stageError(state string, stage domain.StateStage, err error) error {
	if errors.Is(err, domain.ErrForcedExit) {
		return err
	}
	return fmt.Errorf("%s stage of %q failed: %w", stage, state, err)
}

func (f *Framework) beginTx(ctx context.Context, name string) error {
	tx, err := f.store.Begin(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to begin transaction %q: %w", name, err)
	}
	f.tx = tx
	f.txName = name
	f.txStart = time.Now()
	return nil
}

func (f *Framework) commitTx(ctx context.Context) error {
	if f.tx == nil {
		return domain.ErrForcedExit
	}
	tx := f.tx
	f.tx = nil
	if err := tx.Commit(context.WithoutCancel(ctx)); err != nil {
		_ = tx.Rollback(ctx)
		f.emitTransaction(ctx, f.txName, false, false, time.Since(f.txStart))
		return fmt.Errorf("failed to commit transaction %q: %w", f.txName, err)
	}
	f.emitTransaction(ctx, f.txName, false, true, time.Since(f.txStart))
	return nil
}

// rollbackTx closes an open transaction without applying it. No-op when none is open.
func (f *Framework) rollbackTx(ctx context.Context) {
	if f.tx == nil {
		return
	}
	tx := f.tx
	f.tx = nil
	if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil {
		f.logger.Warn("rollback failed", "transaction", f.txName, "err", err)
	}
	f.emitTransaction(ctx, f.txName, false, false, time.Since(f.txStart))
}

func (f *Framework) startSpan(ctx context.Context, state string, stage domain.StateStage) (context.Context, trace.Span) {
	return f.tracer.Start(ctx, "stage."+string(stage),
		trace.WithAttributes(
			attribute.String("gamestate.machine", f.machine),
			attribute.String("gamestate.state", state),
			attribute.Bool("gamestate.recovering", f.recovering.Load()),
		),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, domain.ErrForcedExit) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
