package dsl

import (
	"errors"
	"fmt"

	"github.com/aretw0/gamestate/pkg/domain"
	"github.com/aretw0/gamestate/pkg/history"
	"github.com/aretw0/gamestate/pkg/ports"
)

var (
	// ErrEmptyGraph is returned when Build is called before any state was added.
	ErrEmptyGraph = errors.New("graph has no states")

	// ErrUndeclaredTransition is returned by a guarded SetNextState when the target
	// was not declared with Go.
	ErrUndeclaredTransition = errors.New("transition not declared")
)

// Registrar receives the declared states. *gamestate.Machine and *registry.Registry
// both satisfy it.
type Registrar interface {
	CreateState(name string, processing, committed ports.StageHandler, policy *history.Policy) error
	CreateCommittedState(name string, committed ports.StageHandler, policy *history.Policy) error
}

// Builder manages the graph construction.
type Builder struct {
	states  map[string]*StateBuilder
	order   []string
	initial string
}

// New creates a new graph builder.
func New() *Builder {
	return &Builder{
		states: make(map[string]*StateBuilder),
	}
}

// Add creates a new state in the graph.
// If the state already exists, it returns the existing builder.
func (b *Builder) Add(name string) *StateBuilder {
	if sb, ok := b.states[name]; ok {
		return sb
	}
	sb := &StateBuilder{state: State{Name: name}}
	b.states[name] = sb
	b.order = append(b.order, name)
	return sb
}

// Initial sets the state entered on a cold start. Defaults to the first added state.
func (b *Builder) Initial(name string) *Builder {
	b.initial = name
	return b
}

// Build checks the declarations and returns the graph.
// Reachability and dangling targets are checked by the validator, not here.
func (b *Builder) Build() (*Graph, error) {
	if len(b.order) == 0 {
		return nil, ErrEmptyGraph
	}

	g := &Graph{Initial: b.initial, States: make([]State, 0, len(b.order))}
	if g.Initial == "" {
		g.Initial = b.order[0]
	}
	if _, ok := b.states[g.Initial]; !ok {
		return nil, fmt.Errorf("%w: initial state %q", domain.ErrUnknownState, g.Initial)
	}

	for _, name := range b.order {
		st := b.states[name].state
		if st.Committed == nil {
			return nil, fmt.Errorf("%w: %s has no committed stage", domain.ErrNilHandler, name)
		}
		g.States = append(g.States, st)
	}
	return g, nil
}

// State is one declared state.
type State struct {
	Name       string
	Processing ports.StageHandler
	Committed  ports.StageHandler
	Policy     *history.Policy
	Next       []string
}

// CommittedOnly reports whether the state skips the Processing stage.
func (s State) CommittedOnly() bool { return s.Processing == nil }

// Graph is a built state machine declaration.
type Graph struct {
	Initial string
	States  []State
}

// State looks up a declared state by name.
func (g *Graph) State(name string) (State, bool) {
	for _, st := range g.States {
		if st.Name == name {
			return st, true
		}
	}
	return State{}, false
}

// Install registers every state on r in declaration order.
func (g *Graph) Install(r Registrar) error {
	for _, st := range g.States {
		committed := guard(st, st.Committed)
		var err error
		if st.CommittedOnly() {
			err = r.CreateCommittedState(st.Name, committed, st.Policy)
		} else {
			err = r.CreateState(st.Name, st.Processing, committed, st.Policy)
		}
		if err != nil {
			return fmt.Errorf("failed to install state %s: %w", st.Name, err)
		}
	}
	return nil
}

func guard(st State, h ports.StageHandler) ports.StageHandler {
	allowed := make(map[string]bool, len(st.Next))
	for _, n := range st.Next {
		allowed[n] = true
	}
	return func(sc ports.StageContext) error {
		return h(&guardedContext{StageContext: sc, from: st.Name, allowed: allowed})
	}
}

type guardedContext struct {
	ports.StageContext
	from    string
	allowed map[string]bool
}

func (c *guardedContext) SetNextState(name string) error {
	if !c.allowed[name] {
		return fmt.Errorf("%w: %s -> %s", ErrUndeclaredTransition, c.from, name)
	}
	return c.StageContext.SetNextState(name)
}
