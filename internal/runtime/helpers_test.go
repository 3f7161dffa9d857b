package runtime_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/gamestate/internal/runtime"
	"github.com/aretw0/gamestate/pkg/domain"
	"github.com/aretw0/gamestate/pkg/history"
	"github.com/aretw0/gamestate/pkg/ports"
	"github.com/stretchr/testify/require"
)

const machine = runtime.DefaultMachineName

type fakePresentation struct {
	mu      sync.Mutex
	started []string
	data    []domain.DataBag
	updates []domain.DataBag
	msgs    chan domain.PresentationMessage
}

func newFakePresentation(msgs ...domain.PresentationMessage) *fakePresentation {
	p := &fakePresentation{msgs: make(chan domain.PresentationMessage, 16)}
	for _, m := range msgs {
		p.msgs <- m
	}
	return p
}

func (p *fakePresentation) StartState(ctx context.Context, name string, data domain.DataBag) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = append(p.started, name)
	p.data = append(p.data, data)
	return nil
}

func (p *fakePresentation) UpdateAsynchronousData(ctx context.Context, name string, data domain.DataBag) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, data)
	return nil
}

func (p *fakePresentation) Messages() <-chan domain.PresentationMessage { return p.msgs }

func (p *fakePresentation) Started() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.started...)
}

func (p *fakePresentation) StartedData(i int) domain.DataBag {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.data[i]
}

func (p *fakePresentation) UpdatedData(i int) domain.DataBag {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.updates[i]
}

func (p *fakePresentation) Updates() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.updates)
}

type fakeHost struct {
	events chan domain.HostEvent
}

func newFakeHost() *fakeHost {
	return &fakeHost{events: make(chan domain.HostEvent, 16)}
}

func (h *fakeHost) Events() <-chan domain.HostEvent { return h.events }

func noop(ports.StageContext) error { return nil }

// stopAndWait stops fw and parks the handler in a blocking wait until the stop lands.
func stopAndWait(fw *runtime.Framework, sc ports.StageContext) error {
	fw.Stop()
	_, _, err := sc.GetPresentationEvent(0, "Never")
	return err
}

func runFramework(t *testing.T, ctx context.Context, fw *runtime.Framework) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- fw.Run(ctx) }()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		fw.Stop()
		t.Fatal("executor did not stop")
		return nil
	}
}

func withTx(t *testing.T, store ports.CriticalDataStore, fn func(tx ports.Transaction)) {
	t.Helper()
	ctx := context.Background()
	tx, err := store.Begin(ctx, "test")
	require.NoError(t, err)
	fn(tx)
	require.NoError(t, tx.Commit(ctx))
}

func seedPointer(t *testing.T, store ports.CriticalDataStore, s domain.StateStorage) {
	t.Helper()
	data, err := json.Marshal(s)
	require.NoError(t, err)
	withTx(t, store, func(tx ports.Transaction) {
		require.NoError(t, tx.Write(domain.ScopeGameMode, domain.StateStorageKey(machine), data))
	})
}

func readPointer(t *testing.T, store ports.CriticalDataStore) domain.StateStorage {
	t.Helper()
	var s domain.StateStorage
	withTx(t, store, func(tx ports.Transaction) {
		data, err := tx.Read(domain.ScopeGameMode, domain.StateStorageKey(machine))
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, &s))
	})
	return s
}

func seedHistory(t *testing.T, store ports.CriticalDataStore, names ...string) {
	t.Helper()
	withTx(t, store, func(tx ports.Transaction) {
		for _, name := range names {
			step, err := history.NextRecordNumber(tx)
			require.NoError(t, err)
			data, err := history.Encode(&domain.CommonHistoryBlock{StateName: name})
			require.NoError(t, err)
			require.NoError(t, history.WriteBlock(tx, step, data))
			require.NoError(t, history.AppendEntries(tx, domain.HistoryEntry{Step: step, Priority: 1}))
		}
	})
}

func historyCount(t *testing.T, store ports.CriticalDataStore) int {
	t.Helper()
	var n int
	withTx(t, store, func(tx ports.Transaction) {
		var err error
		n, err = history.Count(tx)
		require.NoError(t, err)
	})
	return n
}

func recordNumber(t *testing.T, store ports.CriticalDataStore) uint {
	t.Helper()
	var n uint
	withTx(t, store, func(tx ports.Transaction) {
		var err error
		n, err = history.CurrentRecordNumber(tx)
		require.NoError(t, err)
	})
	return n
}

func hasKey(store ports.CriticalDataStore, path string) bool {
	ctx := context.Background()
	tx, err := store.Begin(ctx, "check")
	if err != nil {
		return false
	}
	defer tx.Rollback(ctx)
	_, err = tx.Read(domain.ScopeGameCycle, path)
	return err == nil
}

const (
	runWait = 2 * time.Second
	tick    = 5 * time.Millisecond
)
