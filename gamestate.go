package gamestate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/gamestate/internal/logging"
	"github.com/aretw0/gamestate/internal/runtime"
	"github.com/aretw0/gamestate/pkg/domain"
	"github.com/aretw0/gamestate/pkg/history"
	"github.com/aretw0/gamestate/pkg/observability"
	"github.com/aretw0/gamestate/pkg/persistence/middleware"
	"github.com/aretw0/gamestate/pkg/ports"
	"github.com/aretw0/gamestate/pkg/recovery"
	"github.com/aretw0/gamestate/pkg/registry"
	"github.com/aretw0/gamestate/pkg/txqueue"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// Re-exported types so that most programs only import this package.
type (
	StageContext   = ports.StageContext
	StageHandler   = ports.StageHandler
	Transaction    = ports.Transaction
	DataBag        = domain.DataBag
	StateStorage   = domain.StateStorage
	HistoryPolicy  = history.Policy
	LifecycleHooks = domain.LifecycleHooks
)

// ErrNoStore is returned by New when no store is given.
var ErrNoStore = errors.New("a critical data store is required")

// Machine is the high-level entry point: a state registry bound to an executor.
// Register states, then call Run.
type Machine struct {
	framework *runtime.Framework
	registry  *registry.Registry
	segment   *recovery.Segment
	logger    *slog.Logger
}

type config struct {
	presentation ports.Presentation
	host         ports.Host
	logger       *slog.Logger
	hooks        []domain.LifecycleHooks
	middlewares  []middleware.Middleware
	metrics      prometheus.Registerer
	runtimeOpts  []runtime.Option

	recoveryName  string
	recoveryMode  recovery.Mode
	recoveryOpts  []recovery.Option
	recoveryState bool
}

// Option defines a functional option for configuring the Machine.
type Option func(*config)

// WithPresentation sets the presentation states are shown on. Without one,
// states are recorded but never shown.
func WithPresentation(p ports.Presentation) Option {
	return func(c *config) {
		c.presentation = p
	}
}

// WithHost sets the host platform event source.
func WithHost(h ports.Host) Option {
	return func(c *config) {
		c.host = h
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks. Repeated calls add hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(c *config) {
		c.hooks = append(c.hooks, hooks)
	}
}

// WithMachineName sets the game-mode scope of the state pointer.
func WithMachineName(name string) Option {
	return func(c *config) {
		c.runtimeOpts = append(c.runtimeOpts, runtime.WithMachineName(name))
	}
}

// WithInitialState sets the state entered on a cold start.
func WithInitialState(name string) Option {
	return func(c *config) {
		c.runtimeOpts = append(c.runtimeOpts, runtime.WithInitialState(name))
	}
}

// WithPowerHitRecovery registers a replay state under name and replays recorded
// history through it when the machine restarts in the middle of a game cycle.
func WithPowerHitRecovery(name string, opts ...recovery.Option) Option {
	return func(c *config) {
		c.recoveryName = name
		c.recoveryMode = recovery.ModeRecovery
		c.recoveryOpts = opts
		c.recoveryState = true
	}
}

// WithHistoryMode runs the machine as a history browser. Nothing is persisted.
func WithHistoryMode(name string, opts ...recovery.Option) Option {
	return func(c *config) {
		c.recoveryName = name
		c.recoveryMode = recovery.ModeHistory
		c.recoveryOpts = opts
		c.recoveryState = true
	}
}

// WithCyclePhaseCheck replaces the check deciding whether recovery may replay history.
func WithCyclePhaseCheck(check runtime.CyclePhaseCheck) Option {
	return func(c *config) {
		c.runtimeOpts = append(c.runtimeOpts, runtime.WithCyclePhaseCheck(check))
	}
}

// WithLocker serializes the machine's transactions with other executors sharing the store.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(c *config) {
		c.runtimeOpts = append(c.runtimeOpts, runtime.WithLocker(locker))
	}
}

// WithLockTTL sets how long a distributed lock survives a crashed owner.
func WithLockTTL(ttl time.Duration) Option {
	return func(c *config) {
		c.runtimeOpts = append(c.runtimeOpts, runtime.WithLockTTL(ttl))
	}
}

// WithHostEventHandler adds a handler for transactional host events.
func WithHostEventHandler(h ports.HostEventHandler) Option {
	return func(c *config) {
		c.runtimeOpts = append(c.runtimeOpts, runtime.WithHostEventHandler(h))
	}
}

// WithTracer sets the OpenTelemetry tracer for stage and transaction spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *config) {
		c.runtimeOpts = append(c.runtimeOpts, runtime.WithTracer(tracer))
	}
}

// WithStoreMiddleware wraps the store, first listed outermost.
func WithStoreMiddleware(mws ...middleware.Middleware) Option {
	return func(c *config) {
		c.middlewares = append(c.middlewares, mws...)
	}
}

// WithMetrics registers Prometheus collectors for the machine with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *config) {
		c.metrics = reg
	}
}

// New creates a Machine over store.
func New(store ports.CriticalDataStore, opts ...Option) (*Machine, error) {
	if store == nil {
		return nil, ErrNoStore
	}
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logging.NewNop()
	}

	m := &Machine{
		registry: registry.New(registry.WithLogger(cfg.logger)),
		logger:   cfg.logger,
	}

	runtimeOpts := []runtime.Option{runtime.WithLogger(cfg.logger)}

	if cfg.recoveryState {
		m.segment = recovery.New(cfg.recoveryName, cfg.recoveryMode,
			append([]recovery.Option{recovery.WithLogger(cfg.logger)}, cfg.recoveryOpts...)...)
		if err := m.segment.Register(m.registry); err != nil {
			return nil, fmt.Errorf("failed to register %s state: %w", cfg.recoveryMode, err)
		}
		if cfg.recoveryMode == recovery.ModeHistory {
			runtimeOpts = append(runtimeOpts, runtime.WithHistoryMode(m.segment))
		} else {
			runtimeOpts = append(runtimeOpts, runtime.WithRecovery(m.segment))
		}
	}

	hooks := cfg.hooks
	if cfg.metrics != nil {
		metrics, err := observability.NewMetrics(cfg.metrics)
		if err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
		hooks = append(hooks, metrics.Hooks(), domain.LifecycleHooks{
			OnTransaction: func(ctx context.Context, e *domain.TransactionEvent) {
				metrics.ObserveQueue(e.Machine, m.framework.Queue().Len())
			},
		})
	}
	if len(hooks) > 0 {
		runtimeOpts = append(runtimeOpts, runtime.WithLifecycleHooks(observability.Combine(hooks...)))
	}

	runtimeOpts = append(runtimeOpts, cfg.runtimeOpts...)

	m.framework = runtime.NewFramework(m.registry,
		middleware.Chain(store, cfg.middlewares...),
		cfg.presentation, cfg.host, runtimeOpts...)
	return m, nil
}

// CreateState registers a state with both stages and a history policy.
// A nil policy records no history.
func (m *Machine) CreateState(name string, processing, committed StageHandler, policy *HistoryPolicy) error {
	return m.registry.CreateState(name, processing, committed, policy)
}

// CreateCommittedState registers a state that only has a Committed stage.
func (m *Machine) CreateCommittedState(name string, committed StageHandler, policy *HistoryPolicy) error {
	return m.registry.CreateCommittedState(name, committed, policy)
}

// PostAsynchronousUpdate hands data for a shown state to the executor. Safe from any goroutine.
func (m *Machine) PostAsynchronousUpdate(state string, data DataBag) {
	m.registry.PostAsynchronousUpdate(state, data)
}

// NewQueuedOperation returns a fire-and-forget operation bound to the machine's queue.
func (m *Machine) NewQueuedOperation(name string) *txqueue.QueuedOperation {
	return txqueue.NewQueuedOperation(name, m.framework.Queue())
}

// NewTransactionalOperation returns a blocking operation bound to the machine's queue.
func (m *Machine) NewTransactionalOperation(name string) *txqueue.TransactionalOperation {
	return txqueue.NewTransactionalOperation(name, m.framework.Queue())
}

// Run executes the machine until ctx is canceled, Stop is called, or a fatal error occurs.
func (m *Machine) Run(ctx context.Context) error {
	return m.framework.Run(ctx)
}

// Stop asks a running machine to exit. Blocked submitters receive ErrCanceled.
func (m *Machine) Stop() { m.framework.Stop() }

// Running reports whether Run is in progress.
func (m *Machine) Running() bool { return m.framework.Running() }

// Recovering reports whether the machine is replaying history after a power-hit.
func (m *Machine) Recovering() bool { return m.framework.Recovering() }

// Storage returns a copy of the in-memory state pointer.
func (m *Machine) Storage() *StateStorage { return m.framework.Storage() }

// Segment returns the recovery or history state, or nil when none is configured.
func (m *Machine) Segment() *recovery.Segment { return m.segment }

// Name returns the machine name.
func (m *Machine) Name() string { return m.framework.Machine() }
