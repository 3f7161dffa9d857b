// Package monitor turns "an event was processed" notifications into wait signals.
package monitor

import "sync"

// Monitor is a short-lived observer of processed events.
// Notifications coalesce: any number of Notify calls before a receive yield one signal.
type Monitor struct {
	ch chan struct{}
}

// New creates a monitor.
func New() *Monitor {
	return &Monitor{ch: make(chan struct{}, 1)}
}

// Notify records that an event was processed. It never blocks.
func (m *Monitor) Notify() {
	select {
	case m.ch <- struct{}{}:
	default:
	}
}

// Signaled fires once per batch of notifications.
func (m *Monitor) Signaled() <-chan struct{} {
	return m.ch
}

// Set holds the monitors registered for the duration of a wait.
type Set struct {
	mu       sync.Mutex
	monitors map[*Monitor]struct{}
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{monitors: make(map[*Monitor]struct{})}
}

// Add registers m and returns the function that unregisters it.
func (s *Set) Add(m *Monitor) (remove func()) {
	s.mu.Lock()
	s.monitors[m] = struct{}{}
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.monitors, m)
		s.mu.Unlock()
	}
}

// NotifyAll notifies every registered monitor.
func (s *Set) NotifyAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for m := range s.monitors {
		m.Notify()
	}
}

// Len returns the number of registered monitors.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.monitors)
}
