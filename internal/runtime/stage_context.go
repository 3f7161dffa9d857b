package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/gamestate/pkg/domain"
	"github.com/aretw0/gamestate/pkg/history"
	"github.com/aretw0/gamestate/pkg/monitor"
	"github.com/aretw0/gamestate/pkg/ports"
	"github.com/aretw0/gamestate/pkg/registry"
)

// stageContext is the ports.StageContext of one stage invocation.
type stageContext struct {
	f      *Framework
	ctx    context.Context
	state  *registry.State
	logger *slog.Logger
	next   string
}

var _ ports.StageContext = (*stageContext)(nil)

func newStageContext(ctx context.Context, f *Framework, st *registry.State) *stageContext {
	return &stageContext{
		f:      f,
		ctx:    ctx,
		state:  st,
		logger: f.logger.With("state", st.Name, "stage", f.stage),
	}
}

func (sc *stageContext) Context() context.Context { return sc.ctx }
func (sc *stageContext) Tx() ports.Transaction    { return sc.f.tx }
func (sc *stageContext) Stage() domain.StateStage { return sc.f.stage }
func (sc *stageContext) StateName() string        { return sc.state.Name }
func (sc *stageContext) Logger() *slog.Logger     { return sc.logger }

func (sc *stageContext) requireCommitted(op string) error {
	if sc.f.stage != domain.StageCommitted {
		return fmt.Errorf("%w: %s called during %s stage of %q", domain.ErrStageSequence, op, sc.f.stage, sc.state.Name)
	}
	return nil
}

func (sc *stageContext) SetNextState(name string) error {
	if err := sc.requireCommitted("SetNextState"); err != nil {
		return err
	}
	if name == domain.InvalidState {
		return fmt.Errorf("%w: empty next state for %q", domain.ErrNoNextState, sc.state.Name)
	}
	if !sc.f.registry.Has(name) {
		return fmt.Errorf("%w: next state %q", domain.ErrUnknownState, name)
	}
	sc.next = name
	return nil
}

func (sc *stageContext) ExcludeCurrentHistoryStep() error {
	if err := sc.requireCommitted("ExcludeCurrentHistoryStep"); err != nil {
		return err
	}
	sc.f.excluded = true
	return nil
}

func (sc *stageContext) StartState(name string, data domain.DataBag) error {
	if err := sc.requireCommitted("StartState"); err != nil {
		return err
	}
	if sc.f.tx == nil {
		return domain.ErrForcedExit
	}

	step, err := history.NextRecordNumber(sc.f.tx)
	if err != nil {
		return fmt.Errorf("failed to allocate history step: %w", err)
	}
	// Recorded starts present the bag as replay will see it.
	if sc.state.History.Records() {
		if data, err = history.Normalize(data); err != nil {
			return err
		}
	}
	if err := sc.f.registry.WriteStartStateHistory(sc.state.Name, name, data, step); err != nil {
		return err
	}
	if err := sc.present(name, data); err != nil {
		return err
	}
	sc.f.started[name] = startedState{owner: sc.state.Name, step: step}
	return nil
}

func (sc *stageContext) Present(name string, data domain.DataBag) error {
	if err := sc.requireCommitted("Present"); err != nil {
		return err
	}
	return sc.present(name, data)
}

func (sc *stageContext) present(name string, data domain.DataBag) error {
	if sc.f.presentation == nil {
		return nil
	}
	if err := sc.f.presentation.StartState(sc.ctx, name, data); err != nil {
		return fmt.Errorf("presentation failed to start %q: %w", name, err)
	}
	sc.logger.Debug("presentation state started", "presented", name)
	return nil
}

func (sc *stageContext) ProcessEvents(pred func(tx ports.Transaction) bool) error {
	if err := sc.requireCommitted("ProcessEvents"); err != nil {
		return err
	}
	for {
		if sc.f.tx == nil {
			return domain.ErrForcedExit
		}
		if pred(sc.f.tx) {
			return nil
		}
		if err := sc.f.suspend(sc.ctx, func() error {
			_, err := sc.f.waitAny(sc.ctx, nil)
			return err
		}); err != nil {
			return err
		}
	}
}

func (sc *stageContext) WaitForNonTransactionalEvents(pred func() bool) error {
	if err := sc.requireCommitted("WaitForNonTransactionalEvents"); err != nil {
		return err
	}

	m := monitor.New()
	remove := sc.f.monitors.Add(m)
	defer remove()

	return sc.f.suspend(sc.ctx, func() error {
		for !pred() {
			// pred is only re-checked once an event was processed.
			for !signaled(m) {
				if _, err := sc.f.waitAny(sc.ctx, nil); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func signaled(m *monitor.Monitor) bool {
	select {
	case <-m.Signaled():
		return true
	default:
		return false
	}
}

func (sc *stageContext) GetPresentationEvent(timeout time.Duration, types ...domain.MessageType) (domain.PresentationMessage, bool, error) {
	if err := sc.requireCommitted("GetPresentationEvent"); err != nil {
		return domain.PresentationMessage{}, false, err
	}
	if msg, ok := sc.f.takeMessage(types); ok {
		return msg, true, nil
	}

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	var msg domain.PresentationMessage
	var found bool
	err := sc.f.suspend(sc.ctx, func() error {
		for {
			timedOut, err := sc.f.waitAny(sc.ctx, timer)
			if err != nil {
				return err
			}
			if msg, found = sc.f.takeMessage(types); found || timedOut {
				return nil
			}
		}
	})
	return msg, found, err
}
