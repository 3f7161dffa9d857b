package cli

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// SignalContext wraps a context and captures the signal that cancelled it.
// The first SIGINT or SIGTERM cancels the context so the machine unwinds at its
// next suspension point. A second signal calls the force handler.
type SignalContext struct {
	context.Context
	cancel context.CancelFunc

	sigCh    chan os.Signal
	done     chan struct{}
	stopOnce sync.Once
	onForce  func(os.Signal)

	mu     sync.Mutex
	sigVal os.Signal
}

// NewSignalContext creates a context that is cancelled on SIGINT or SIGTERM.
// onForce may be nil.
func NewSignalContext(parent context.Context, onForce func(os.Signal)) *SignalContext {
	sc := newSignalContext(parent, onForce)
	signal.Notify(sc.sigCh, os.Interrupt, syscall.SIGTERM)
	return sc
}

func newSignalContext(parent context.Context, onForce func(os.Signal)) *SignalContext {
	ctx, cancel := context.WithCancel(parent)
	sc := &SignalContext{
		Context: ctx,
		cancel:  cancel,
		sigCh:   make(chan os.Signal, 2),
		done:    make(chan struct{}),
		onForce: onForce,
	}
	go sc.watch()
	return sc
}

func (sc *SignalContext) watch() {
	select {
	case sig := <-sc.sigCh:
		sc.mu.Lock()
		sc.sigVal = sig
		sc.mu.Unlock()
		sc.cancel()
	case <-sc.done:
		return
	}

	select {
	case sig := <-sc.sigCh:
		if sc.onForce != nil {
			sc.onForce(sig)
		}
	case <-sc.done:
	}
}

// Cancel cancels the context without a signal.
func (sc *SignalContext) Cancel() { sc.cancel() }

// Stop cancels the context and releases the signal listener.
func (sc *SignalContext) Stop() {
	sc.stopOnce.Do(func() {
		signal.Stop(sc.sigCh)
		close(sc.done)
	})
	sc.cancel()
}

// Signal returns the signal that caused the context to be cancelled, or nil.
func (sc *SignalContext) Signal() os.Signal {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.sigVal
}
