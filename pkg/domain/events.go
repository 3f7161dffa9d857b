package domain

import (
	"context"
	"time"
)

// EventType defines the category of a lifecycle event.
type EventType string

const (
	EventStageEnter     EventType = "stage_enter"
	EventStageLeave     EventType = "stage_leave"
	EventTransaction    EventType = "transaction"
	EventRecovery       EventType = "recovery"
	EventHistoryWritten EventType = "history_written"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Machine   string    `json:"machine"`
}

// StageEvent represents entry or exit from a state stage.
type StageEvent struct {
	EventBase
	State string     `json:"state"`
	Stage StateStage `json:"stage"`

	// Err is set on leave when the stage did not complete.
	Err error `json:"-"`
}

// TransactionEvent represents a closed transaction.
type TransactionEvent struct {
	EventBase
	Name      string        `json:"name"`
	Queued    bool          `json:"queued"`
	Committed bool          `json:"committed"`
	Duration  time.Duration `json:"duration"`
}

// RecoveryEvent represents entry into or exit from power-hit recovery.
type RecoveryEvent struct {
	EventBase
	Entered      bool   `json:"entered"`
	ResumeState  string `json:"resume_state"`
	HistorySteps int    `json:"history_steps"`
}

// HistoryEvent represents a flushed history step.
type HistoryEvent struct {
	EventBase
	State    string `json:"state"`
	Step     uint   `json:"step"`
	Priority uint   `json:"priority"`
}

// LifecycleHooks defines callbacks for executor observability.
// Hooks run on the executor goroutine and must not block.
type LifecycleHooks struct {
	OnStageEnter     func(context.Context, *StageEvent)
	OnStageLeave     func(context.Context, *StageEvent)
	OnTransaction    func(context.Context, *TransactionEvent)
	OnRecovery       func(context.Context, *RecoveryEvent)
	OnHistoryWritten func(context.Context, *HistoryEvent)
}
