// Package recovery replays recorded history steps through the presentation.
//
// A Segment is a single self-transitioning state. In ModeHistory it lets a player browse
// the steps of the current game cycle; in ModeRecovery the executor runs it after a
// power-hit so the presentation can rebuild what was on screen before play resumes.
package recovery

import (
	"fmt"
	"log/slog"

	"github.com/aretw0/gamestate/internal/logging"
	"github.com/aretw0/gamestate/pkg/domain"
	"github.com/aretw0/gamestate/pkg/history"
	"github.com/aretw0/gamestate/pkg/ports"
	"github.com/aretw0/gamestate/pkg/registry"
)

// Mode selects how a Segment reports progress to the executor.
type Mode int

const (
	// ModeHistory browses history on request. It never reports as recovering.
	ModeHistory Mode = iota
	// ModeRecovery replays history after a power-hit until the last step is acknowledged.
	ModeRecovery
)

func (m Mode) String() string {
	if m == ModeRecovery {
		return "recovery"
	}
	return "history"
}

// Segment is the replay state.
// It runs on the executor goroutine only.
type Segment struct {
	name        string
	mode        Mode
	exit        string
	minPriority uint
	logger      *slog.Logger

	loaded bool
	steps  []domain.HistoryEntry
	index  int
	ended  bool
}

var _ ports.RecoveryState = (*Segment)(nil)

// Option configures a Segment.
type Option func(*Segment)

// WithExitState sets the state chosen once replay ends. Defaults to the segment itself.
func WithExitState(name string) Option {
	return func(s *Segment) {
		s.exit = name
	}
}

// WithMinimumPriority hides steps recorded below priority.
func WithMinimumPriority(priority uint) Option {
	return func(s *Segment) {
		s.minPriority = priority
	}
}

// WithLogger configures a logger for the Segment.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Segment) {
		s.logger = logger
	}
}

// New creates a replay segment registered under name.
func New(name string, mode Mode, opts ...Option) *Segment {
	s := &Segment{
		name:   name,
		mode:   mode,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.exit == "" {
		s.exit = name
	}
	return s
}

// Register adds the segment to reg as a Committed-only state that records no history.
func (s *Segment) Register(reg *registry.Registry) error {
	return reg.CreateCommittedState(s.name, s.Committed, history.None())
}

// Name returns the registered state name.
func (s *Segment) Name() string { return s.name }

// Mode returns the construction mode.
func (s *Segment) Mode() Mode { return s.mode }

// IsRecovering reports whether power-hit replay is still running.
func (s *Segment) IsRecovering() bool {
	return s.mode == ModeRecovery && !s.ended
}

// Ended reports whether the last step was acknowledged.
func (s *Segment) Ended() bool { return s.ended }

// StepIndex returns the position of the step presented next (or last).
func (s *Segment) StepIndex() int { return s.index }

// TotalSteps returns the number of replayable steps, once loaded.
func (s *Segment) TotalSteps() int { return len(s.steps) }

// Reset rewinds the segment and forgets the loaded step list.
func (s *Segment) Reset() {
	s.loaded = false
	s.steps = nil
	s.index = 0
	s.ended = false
}

// Committed presents one step and waits for the presentation to navigate.
func (s *Segment) Committed(sc ports.StageContext) error {
	if s.ended {
		s.Reset()
	}
	if !s.loaded {
		if err := s.load(sc.Tx()); err != nil {
			return err
		}
	}
	if len(s.steps) == 0 {
		s.logger.Info("no history to replay", "segment", s.name, "mode", s.mode)
		s.ended = true
		return sc.SetNextState(s.exit)
	}

	entry := s.steps[s.index]
	block, err := history.ReadBlock(sc.Tx(), entry.Step)
	if err != nil {
		return err
	}
	data := s.stamp(block.Data)

	if err := sc.Present(block.StateName, data); err != nil {
		return fmt.Errorf("failed to present history step %d: %w", entry.Step, err)
	}

	msg, _, err := sc.GetPresentationEvent(0, domain.MessagePresentationStateComplete)
	if err != nil {
		return err
	}

	switch msg.Action {
	case domain.ActionNextStep:
		if s.index+1 >= len(s.steps) {
			s.ended = true
		} else {
			s.index++
		}
	case domain.ActionFirstStep:
		s.index = 0
	default:
		return fmt.Errorf("%w: %q", domain.ErrInvalidAction, msg.Action)
	}

	if s.ended {
		s.logger.Info("history replay ended", "segment", s.name, "mode", s.mode, "steps", len(s.steps))
		return sc.SetNextState(s.exit)
	}
	return sc.SetNextState(s.name)
}

func (s *Segment) load(tx ports.Transaction) error {
	entries, err := history.ReadList(tx)
	if err != nil {
		return fmt.Errorf("failed to load history list: %w", err)
	}
	s.steps = s.steps[:0]
	for _, e := range entries {
		if e.Priority >= s.minPriority {
			s.steps = append(s.steps, e)
		}
	}
	s.loaded = true
	s.index = 0
	return nil
}

// stamp returns a copy of data annotated with the replay position.
func (s *Segment) stamp(data domain.DataBag) domain.DataBag {
	out := data.Clone()
	if out == nil {
		out = domain.DataBag{}
	}
	out.Set(domain.ProviderHistory, domain.ServiceStepIndex, s.index)
	out.Set(domain.ProviderHistory, domain.ServiceTotalSteps, len(s.steps))
	out.Set(domain.ProviderHistory, domain.ServiceHistoryMode, true)
	out.Set(domain.ProviderHistory, domain.ServiceRecoveryMode, s.mode == ModeRecovery)

	if s.mode == ModeHistory {
		for _, services := range out {
			if _, ok := services[domain.ServiceDisplaySuspend]; ok {
				services[domain.ServiceDisplaySuspend] = domain.DisplayNormal
			}
		}
	}
	return out
}
