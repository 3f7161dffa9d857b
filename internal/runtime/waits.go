package runtime

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/aretw0/gamestate/pkg/domain"
	"github.com/aretw0/gamestate/pkg/history"
	"github.com/aretw0/gamestate/pkg/txqueue"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// suspend closes the stage transaction, blocks in wait and opens a fresh transaction
// for the rest of the stage. Nothing is reopened when wait fails.
func (f *Framework) suspend(ctx context.Context, wait func() error) error {
	if f.tx == nil {
		return domain.ErrForcedExit
	}
	name := f.txName
	if err := f.commitTx(ctx); err != nil {
		return err
	}
	if err := wait(); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return domain.ErrForcedExit
	}
	return f.beginTx(ctx, name)
}

// waitAny blocks until one source has work, handles it, and returns.
// timedOut is set when timer fired first.
func (f *Framework) waitAny(ctx context.Context, timer <-chan time.Time) (timedOut bool, err error) {
	if ctx.Err() != nil {
		return false, domain.ErrForcedExit
	}

	// Without a host, nothing else triggers the asynchronous flush.
	var async <-chan struct{}
	if f.hostEvents == nil {
		async = f.registry.AsyncPending()
	}

	select {
	case <-ctx.Done():
		return false, domain.ErrForcedExit

	case <-f.queue.Ready():
		return false, f.drainQueue(ctx)

	case ev, ok := <-f.hostEvents:
		if !ok {
			f.hostEvents = nil
			return false, nil
		}
		return false, f.handleHostEvent(ctx, ev)

	case msg, ok := <-f.messages:
		if !ok {
			f.messages = nil
			return false, nil
		}
		f.inbox = append(f.inbox, msg)
		f.monitors.NotifyAll()
		return false, nil

	case <-async:
		return false, f.flushAsync(ctx)

	case <-timer:
		return true, nil
	}
}

// takeMessage removes the oldest queued presentation message matching types.
// Messages of other types stay queued.
func (f *Framework) takeMessage(types []domain.MessageType) (domain.PresentationMessage, bool) {
	for i, msg := range f.inbox {
		if msg.Is(types...) {
			f.inbox = slices.Delete(f.inbox, i, i+1)
			return msg, true
		}
	}
	return domain.PresentationMessage{}, false
}

// drainQueue fires every queued request, each in its own transaction.
func (f *Framework) drainQueue(ctx context.Context) error {
	fired := 0
	for {
		if ctx.Err() != nil {
			return domain.ErrForcedExit
		}
		req, ok := f.queue.Dequeue()
		if !ok {
			break
		}
		if err := f.fire(ctx, req); err != nil {
			return err
		}
		fired++
	}
	if fired == 0 {
		return nil
	}
	f.monitors.NotifyAll()
	return f.flushAsync(ctx)
}

func (f *Framework) fire(ctx context.Context, req txqueue.Request) (err error) {
	ctx, span := f.tracer.Start(ctx, "txqueue.fire",
		trace.WithAttributes(
			attribute.String("gamestate.machine", f.machine),
			attribute.String("gamestate.request.name", req.Name()),
			attribute.String("gamestate.request.id", req.ID()),
		),
	)
	defer func() { endSpan(span, err) }()

	start := time.Now()
	tx, err := f.store.Begin(ctx, req.Name())
	if err != nil {
		req.Closed(err)
		return fmt.Errorf("failed to begin queued transaction %q: %w", req.Name(), err)
	}

	ferr := req.FireDelayedTransaction(ctx, tx)
	if ferr != nil {
		if rerr := tx.Rollback(context.WithoutCancel(ctx)); rerr != nil {
			f.logger.Warn("rollback failed", "transaction", req.Name(), "err", rerr)
		}
		req.Closed(ferr)
		f.emitTransaction(ctx, req.Name(), true, false, time.Since(start))

		switch {
		case errors.Is(ferr, domain.ErrNoOperation), errors.Is(ferr, domain.ErrForcedExit):
			return ferr
		case errors.Is(ferr, domain.ErrCanceled):
			f.logger.Debug("queued transaction abandoned", "transaction", req.Name(), "id", req.ID())
		default:
			f.logger.Warn("queued transaction rolled back", "transaction", req.Name(), "id", req.ID(), "err", ferr)
		}
		return nil
	}

	if err := tx.Commit(context.WithoutCancel(ctx)); err != nil {
		req.Closed(err)
		f.emitTransaction(ctx, req.Name(), true, false, time.Since(start))
		return fmt.Errorf("failed to commit queued transaction %q: %w", req.Name(), err)
	}
	req.Closed(nil)
	f.emitTransaction(ctx, req.Name(), true, true, time.Since(start))
	return nil
}

// handleHostEvent dispatches a host event. Transactional events run through the host
// handlers in their own transaction; a failing handler rolls the event back.
func (f *Framework) handleHostEvent(ctx context.Context, ev domain.HostEvent) error {
	if ev.Transactional && len(f.hostHandlers) > 0 {
		name := "host/" + ev.Name
		start := time.Now()
		tx, err := f.store.Begin(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to begin transaction %q: %w", name, err)
		}

		var herr error
		for _, h := range f.hostHandlers {
			if herr = h(ctx, tx, ev); herr != nil {
				break
			}
		}

		if herr != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			f.emitTransaction(ctx, name, false, false, time.Since(start))
			f.logger.Warn("host event rolled back", "event", ev.Name, "err", herr)
		} else {
			if err := tx.Commit(context.WithoutCancel(ctx)); err != nil {
				f.emitTransaction(ctx, name, false, false, time.Since(start))
				return fmt.Errorf("failed to commit transaction %q: %w", name, err)
			}
			f.emitTransaction(ctx, name, false, true, time.Since(start))
		}
	}

	f.monitors.NotifyAll()
	return f.flushAsync(ctx)
}

// flushAsync sends the consolidated asynchronous updates to the presentation and folds
// them into the history cached for the presentation states started this stage.
func (f *Framework) flushAsync(ctx context.Context) error {
	updates := f.registry.TakeAsynchronousUpdates()
	for _, u := range updates {
		if s, ok := f.started[u.State]; ok {
			if st, ok := f.registry.State(s.owner); ok && st.History.Records() {
				normalized, err := history.Normalize(u.Data)
				if err != nil {
					return fmt.Errorf("failed to update history of %q: %w", u.State, err)
				}
				u.Data = normalized
			}
			if err := f.registry.WriteUpdateHistory(s.owner, u.Data, s.step); err != nil {
				return fmt.Errorf("failed to update history of %q: %w", u.State, err)
			}
		}
		if f.presentation == nil {
			continue
		}
		if err := f.presentation.UpdateAsynchronousData(ctx, u.State, u.Data); err != nil {
			f.logger.Warn("asynchronous update not delivered", "presented", u.State, "err", err)
		}
	}
	return nil
}
