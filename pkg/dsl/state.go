package dsl

import (
	"github.com/aretw0/gamestate/pkg/history"
	"github.com/aretw0/gamestate/pkg/ports"
)

// StateBuilder provides a fluent API for configuring a state.
type StateBuilder struct {
	state State
}

// Processing sets the handler of the Processing stage.
// States without one are registered as committed-only.
func (s *StateBuilder) Processing(h ports.StageHandler) *StateBuilder {
	s.state.Processing = h
	return s
}

// Committed sets the handler of the Committed stage. Required.
func (s *StateBuilder) Committed(h ports.StageHandler) *StateBuilder {
	s.state.Committed = h
	return s
}

// History sets the policy applied to presentation states started by this state.
func (s *StateBuilder) History(p *history.Policy) *StateBuilder {
	s.state.Policy = p
	return s
}

// Go declares a state the Committed stage may choose as next.
func (s *StateBuilder) Go(target string) *StateBuilder {
	for _, n := range s.state.Next {
		if n == target {
			return s
		}
	}
	s.state.Next = append(s.state.Next, target)
	return s
}

// Terminal clears the declared transitions.
func (s *StateBuilder) Terminal() *StateBuilder {
	s.state.Next = nil
	return s
}

// Build returns the declared state.
func (s *StateBuilder) Build() State {
	return s.state
}
