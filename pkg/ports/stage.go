package ports

import (
	"context"
	"log/slog"
	"time"

	"github.com/aretw0/gamestate/pkg/domain"
)

// StageHandler runs one stage of a state.
type StageHandler func(sc StageContext) error

// StageContext is handed to state handlers while a stage runs on the executor goroutine.
// It is only valid for the duration of the handler call.
type StageContext interface {
	// Context is canceled when the executor shuts down.
	Context() context.Context

	// Tx returns the transaction currently open for the stage.
	// Blocking waits close it and open a new one, so handlers must not cache it across waits.
	Tx() Transaction

	// Stage returns the running stage.
	Stage() domain.StateStage

	// StateName returns the running state.
	StateName() string

	// SetNextState chooses the state that runs after this one. Committed stage only.
	SetNextState(name string) error

	// ExcludeCurrentHistoryStep drops the history cached during this Committed stage.
	ExcludeCurrentHistoryStep() error

	// StartState starts a presentation state and records its history step.
	StartState(name string, data domain.DataBag) error

	// Present starts a presentation state without recording history.
	Present(name string, data domain.DataBag) error

	// ProcessEvents processes host events and queued transactions until pred returns true.
	// pred runs inside a transaction, which is left open for the caller on success.
	ProcessEvents(pred func(tx Transaction) bool) error

	// WaitForNonTransactionalEvents blocks until pred returns true, re-checking after every
	// processed event. pred runs outside any transaction.
	WaitForNonTransactionalEvents(pred func() bool) error

	// GetPresentationEvent waits for a presentation message of one of the given types.
	// A zero timeout waits forever; ok is false when the timeout expired.
	GetPresentationEvent(timeout time.Duration, types ...domain.MessageType) (msg domain.PresentationMessage, ok bool, err error)

	// Logger returns the executor logger enriched with the state name.
	Logger() *slog.Logger
}

// RecoveryState is a registered state that replays recorded history.
type RecoveryState interface {
	// Name is the registered state name.
	Name() string

	// IsRecovering reports whether power-hit replay is still in progress.
	IsRecovering() bool

	// Reset rewinds the replay so it can be entered again.
	Reset()
}
