package txqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/gamestate/pkg/adapters/memory"
	"github.com/aretw0/gamestate/pkg/domain"
	"github.com/aretw0/gamestate/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drain mimics the executor: one transaction per request, committed unless the request fails.
func drain(t *testing.T, ctx context.Context, store ports.CriticalDataStore, q *Queue) int {
	t.Helper()
	n := 0
	for {
		req, ok := q.Dequeue()
		if !ok {
			return n
		}
		tx, err := store.Begin(ctx, req.Name())
		require.NoError(t, err)
		if err := req.FireDelayedTransaction(ctx, tx); err != nil {
			_ = tx.Rollback(ctx)
			req.Closed(err)
		} else {
			req.Closed(tx.Commit(ctx))
		}
		n++
	}
}

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue()
	a := NewQueuedOperation("a", q)
	b := NewQueuedOperation("b", q)

	require.True(t, a.Submit(func(context.Context, ports.Transaction) error { return nil }))
	require.True(t, b.Submit(func(context.Context, ports.Transaction) error { return nil }))
	assert.Equal(t, 2, q.Len())

	select {
	case <-q.Ready():
	default:
		t.Fatal("queue must signal readiness after submit")
	}

	first, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "a", first.Name())
	second, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "b", second.Name())
	_, ok = q.Dequeue()
	assert.False(t, ok)
}

func TestQueuedOperation_AtMostOneOutstanding(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	q := NewQueue()
	op := NewQueuedOperation("credit", q)

	write := func(v string) OperationFunc {
		return func(ctx context.Context, tx ports.Transaction) error {
			return tx.Write(domain.ScopeGameCycle, "credit", []byte(v))
		}
	}

	require.True(t, op.Submit(write("first")))
	assert.True(t, op.Pending())
	assert.NotEmpty(t, op.ID())
	assert.False(t, op.Submit(write("second")), "a second submit before firing must be rejected")
	assert.Equal(t, 1, q.Len())

	assert.Equal(t, 1, drain(t, ctx, store, q))
	assert.False(t, op.Pending())

	require.True(t, op.Submit(write("third")), "the instance accepts work again after firing")
	assert.Equal(t, 1, drain(t, ctx, store, q))

	tx, err := store.Begin(ctx, "check")
	require.NoError(t, err)
	defer tx.Rollback(ctx)
	v, err := tx.Read(domain.ScopeGameCycle, "credit")
	require.NoError(t, err)
	assert.Equal(t, "third", string(v))
}

func TestQueuedOperation_FireWithoutFunction(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	q := NewQueue()
	op := NewQueuedOperation("empty", q)

	tx, err := store.Begin(ctx, op.Name())
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	assert.ErrorIs(t, op.FireDelayedTransaction(ctx, tx), domain.ErrNoOperation)
}

func TestQueuedOperation_OnClose(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	q := NewQueue()
	op := NewQueuedOperation("failing", q)

	boom := errors.New("boom")
	var closed error
	op.OnClose(func(err error) { closed = err })

	require.True(t, op.Submit(func(ctx context.Context, tx ports.Transaction) error {
		require.NoError(t, tx.Write(domain.ScopeGameCycle, "x", []byte("1")))
		return boom
	}))
	drain(t, ctx, store, q)
	assert.ErrorIs(t, closed, boom)

	tx, err := store.Begin(ctx, "check")
	require.NoError(t, err)
	defer tx.Rollback(ctx)
	_, err = tx.Read(domain.ScopeGameCycle, "x")
	assert.ErrorIs(t, err, domain.ErrNotFound, "a failed operation must be rolled back")
}

func TestQueue_CancelAll(t *testing.T) {
	q := NewQueue()
	op := NewQueuedOperation("late", q)
	require.True(t, op.Submit(func(context.Context, ports.Transaction) error { return nil }))

	assert.Equal(t, 1, q.CancelAll())
	assert.False(t, op.Pending())
	assert.Equal(t, 0, q.Len())
	assert.False(t, op.Submit(func(context.Context, ports.Transaction) error { return nil }),
		"a closed queue rejects submissions")
}

func TestTransactionalOperation_Execute(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	q := NewQueue()
	op := NewTransactionalOperation("bet", q)

	done := make(chan error, 1)
	go func() {
		done <- op.Execute(ctx, func(tx ports.Transaction) error {
			return tx.Write(domain.ScopeGameCycle, "bet", []byte("5"))
		})
	}()

	select {
	case <-q.Ready():
	case <-time.After(time.Second):
		t.Fatal("request never reached the queue")
	}
	assert.Equal(t, 1, drain(t, ctx, store, q))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Execute did not return after commit")
	}

	tx, err := store.Begin(ctx, "check")
	require.NoError(t, err)
	defer tx.Rollback(ctx)
	v, err := tx.Read(domain.ScopeGameCycle, "bet")
	require.NoError(t, err)
	assert.Equal(t, "5", string(v))
}

func TestTransactionalOperation_FunctionErrorRollsBack(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	q := NewQueue()
	op := NewTransactionalOperation("bet", q)

	boom := errors.New("insufficient credit")
	done := make(chan error, 1)
	go func() {
		done <- op.Execute(ctx, func(tx ports.Transaction) error {
			_ = tx.Write(domain.ScopeGameCycle, "bet", []byte("5"))
			return boom
		})
	}()

	<-q.Ready()
	drain(t, ctx, store, q)
	assert.ErrorIs(t, <-done, boom)

	tx, err := store.Begin(ctx, "check")
	require.NoError(t, err)
	defer tx.Rollback(ctx)
	_, err = tx.Read(domain.ScopeGameCycle, "bet")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTransactionalOperation_CanceledOnShutdown(t *testing.T) {
	q := NewQueue()
	op := NewTransactionalOperation("bet", q)

	done := make(chan error, 1)
	go func() {
		done <- op.Execute(context.Background(), func(ports.Transaction) error {
			t.Error("function must not run after cancel")
			return nil
		})
	}()

	<-q.Ready()
	assert.Equal(t, 1, q.CancelAll())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, domain.ErrCanceled)
	case <-time.After(time.Second):
		t.Fatal("Execute did not unblock on cancel")
	}

	assert.ErrorIs(t, op.Execute(context.Background(), func(ports.Transaction) error { return nil }), domain.ErrCanceled)
}

func TestTransactionalOperation_AbandonedByCaller(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	q := NewQueue()
	op := NewTransactionalOperation("bet", q)

	callerCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- op.Execute(callerCtx, func(ports.Transaction) error { return nil })
	}()

	<-q.Ready()
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	// The executor must not block on an abandoned request.
	req, ok := q.Dequeue()
	require.True(t, ok)
	tx, err := store.Begin(ctx, req.Name())
	require.NoError(t, err)
	defer tx.Rollback(ctx)
	assert.ErrorIs(t, req.FireDelayedTransaction(ctx, tx), domain.ErrCanceled)
}

func TestTransactionalOperation_ClosedBeforeHandover(t *testing.T) {
	tests := []struct {
		name   string
		closed error
		want   error
	}{
		{name: "BeginFailed", closed: errors.New("store unavailable")},
		{name: "ForcedExit", closed: domain.ErrForcedExit, want: domain.ErrCanceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewQueue()
			op := NewTransactionalOperation("late", q)

			done := make(chan error, 1)
			go func() {
				done <- op.Execute(context.Background(), func(ports.Transaction) error {
					t.Error("function must not run without a transaction")
					return nil
				})
			}()

			<-q.Ready()
			req, ok := q.Dequeue()
			require.True(t, ok)
			// The executor failed before handing a transaction over.
			req.Closed(tt.closed)

			select {
			case err := <-done:
				want := tt.want
				if want == nil {
					want = tt.closed
				}
				assert.ErrorIs(t, err, want)
			case <-time.After(time.Second):
				t.Fatal("Execute did not observe the failure")
			}
		})
	}
}
