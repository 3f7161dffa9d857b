package domain

import "errors"

// Configuration and sequencing errors. They are fatal: the executor stops and
// returns them from Run without retrying.
var (
	// ErrDuplicateState is returned when a state name is registered twice.
	ErrDuplicateState = errors.New("state already registered")

	// ErrNilHandler is returned when a state is registered without one of its handlers.
	ErrNilHandler = errors.New("state handler is nil")

	// ErrUnknownState is returned when an initial, pending or recovery state is not registered.
	ErrUnknownState = errors.New("state not registered")

	// ErrStageSequence is returned when an operation is invoked from the wrong stage,
	// such as a blocking wait during the Processing stage.
	ErrStageSequence = errors.New("stage sequencing violation")

	// ErrNoNextState is returned when a Committed handler returns without choosing a next state.
	ErrNoNextState = errors.New("no next state configured")

	// ErrInvalidAction is returned when a replay navigation message carries an unknown action.
	ErrInvalidAction = errors.New("invalid navigation action")

	// ErrNoOperation is returned when a queued transaction fires without a function attached.
	ErrNoOperation = errors.New("queued transaction has no operation")
)

// ErrNotFound is returned by stores when a key does not exist.
var ErrNotFound = errors.New("critical data not found")

// ErrTransactionClosed is returned when a transaction is used after Commit or Rollback.
var ErrTransactionClosed = errors.New("transaction closed")

// ErrForcedExit unwinds a blocked executor once shutdown is requested.
// It aborts the current stage without persisting it and is not reported as a failure.
var ErrForcedExit = errors.New("forced exit")

// ErrCanceled is returned to a blocking submitter whose request was canceled on shutdown.
var ErrCanceled = errors.New("transaction request canceled")
