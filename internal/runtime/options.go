package runtime

import (
	"log/slog"
	"time"

	"github.com/aretw0/gamestate/pkg/domain"
	"github.com/aretw0/gamestate/pkg/ports"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMachineName is used when no machine name is configured.
const DefaultMachineName = "main"

// CyclePhaseCheck reports whether the current game cycle permits replaying history.
type CyclePhaseCheck func(tx ports.Transaction) (bool, error)

// Option configures the Framework.
type Option func(*Framework)

// WithMachineName sets the game-mode scope the pointer is stored under.
func WithMachineName(name string) Option {
	return func(f *Framework) {
		f.machine = name
	}
}

// WithInitialState sets the state used on a cold start.
func WithInitialState(name string) Option {
	return func(f *Framework) {
		f.initial = name
	}
}

// WithRecovery enables power-hit recovery through a registered replay state.
func WithRecovery(state ports.RecoveryState) Option {
	return func(f *Framework) {
		f.recovery = state
	}
}

// WithHistoryMode runs the machine as a history browser starting at state.
// Neither the state pointer nor new history is persisted.
func WithHistoryMode(state ports.RecoveryState) Option {
	return func(f *Framework) {
		f.historyState = state
	}
}

// WithCyclePhaseCheck replaces the default game-cycle phase check used before entering recovery.
func WithCyclePhaseCheck(check CyclePhaseCheck) Option {
	return func(f *Framework) {
		f.phaseCheck = check
	}
}

// WithLocker serializes the machine's transactions with other executors sharing the store.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(f *Framework) {
		f.locker = locker
	}
}

// WithLockTTL sets how long a distributed lock survives a crashed owner.
func WithLockTTL(ttl time.Duration) Option {
	return func(f *Framework) {
		f.lockTTL = ttl
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Framework) {
		f.logger = logger
	}
}

// WithLifecycleHooks registers observability callbacks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(f *Framework) {
		f.hooks = hooks
	}
}

// WithHostEventHandler adds a handler for transactional host events.
// Handlers run in registration order inside one transaction per event.
func WithHostEventHandler(h ports.HostEventHandler) Option {
	return func(f *Framework) {
		f.hostHandlers = append(f.hostHandlers, h)
	}
}

// WithTracer sets the tracer used for stage and queued transaction spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(f *Framework) {
		f.tracer = tracer
	}
}
