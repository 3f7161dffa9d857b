package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/gamestate/pkg/domain"
)

// Combine returns hooks that call every non-nil hook of each set, in order.
func Combine(sets ...domain.LifecycleHooks) domain.LifecycleHooks {
	var out domain.LifecycleHooks
	for _, s := range sets {
		out.OnStageEnter = chain(out.OnStageEnter, s.OnStageEnter)
		out.OnStageLeave = chain(out.OnStageLeave, s.OnStageLeave)
		out.OnTransaction = chain(out.OnTransaction, s.OnTransaction)
		out.OnRecovery = chain(out.OnRecovery, s.OnRecovery)
		out.OnHistoryWritten = chain(out.OnHistoryWritten, s.OnHistoryWritten)
	}
	return out
}

func chain[E any](a, b func(context.Context, *E)) func(context.Context, *E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e *E) {
		a(ctx, e)
		b(ctx, e)
	}
}

// LogHooks logs stage transitions and recovery at debug and info level.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStageEnter: func(ctx context.Context, e *domain.StageEvent) {
			logger.DebugContext(ctx, "stage_enter", "state", e.State, "stage", e.Stage)
		},
		OnStageLeave: func(ctx context.Context, e *domain.StageEvent) {
			if e.Err != nil {
				logger.DebugContext(ctx, "stage_abort", "state", e.State, "stage", e.Stage, "err", e.Err)
				return
			}
			logger.DebugContext(ctx, "stage_leave", "state", e.State, "stage", e.Stage)
		},
		OnRecovery: func(ctx context.Context, e *domain.RecoveryEvent) {
			logger.InfoContext(ctx, "recovery",
				"entered", e.Entered,
				"resume_state", e.ResumeState,
				"history_steps", e.HistorySteps,
			)
		},
		OnHistoryWritten: func(ctx context.Context, e *domain.HistoryEvent) {
			logger.DebugContext(ctx, "history_written", "state", e.State, "step", e.Step, "priority", e.Priority)
		},
	}
}
