package runtime

import (
	"context"
	"time"

	"github.com/aretw0/gamestate/pkg/domain"
	"github.com/aretw0/gamestate/pkg/registry"
)

func (f *Framework) base(t domain.EventType) domain.EventBase {
	return domain.EventBase{Timestamp: time.Now(), Type: t, Machine: f.machine}
}

func (f *Framework) emitStage(ctx context.Context, t domain.EventType, state string, err error) {
	hook := f.hooks.OnStageEnter
	if t == domain.EventStageLeave {
		hook = f.hooks.OnStageLeave
	}
	if hook == nil {
		return
	}
	hook(ctx, &domain.StageEvent{
		EventBase: f.base(t),
		State:     state,
		Stage:     f.stage,
		Err:       err,
	})
}

func (f *Framework) emitTransaction(ctx context.Context, name string, queued, committed bool, d time.Duration) {
	if f.hooks.OnTransaction == nil {
		return
	}
	f.hooks.OnTransaction(ctx, &domain.TransactionEvent{
		EventBase: f.base(domain.EventTransaction),
		Name:      name,
		Queued:    queued,
		Committed: committed,
		Duration:  d,
	})
}

func (f *Framework) emitRecovery(ctx context.Context, entered bool, resume string, steps int) {
	if f.hooks.OnRecovery == nil {
		return
	}
	f.hooks.OnRecovery(ctx, &domain.RecoveryEvent{
		EventBase:    f.base(domain.EventRecovery),
		Entered:      entered,
		ResumeState:  resume,
		HistorySteps: steps,
	})
}

func (f *Framework) emitHistory(ctx context.Context, w registry.WrittenStep) {
	if f.hooks.OnHistoryWritten == nil {
		return
	}
	f.hooks.OnHistoryWritten(ctx, &domain.HistoryEvent{
		EventBase: f.base(domain.EventHistoryWritten),
		State:     w.State,
		Step:      w.Step,
		Priority:  w.Priority,
	})
}
