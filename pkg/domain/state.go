package domain

// StateStage identifies which half of a state is due to run next.
type StateStage string

const (
	// StageProcessing computes and persists results without touching the presentation.
	StageProcessing StateStage = "processing"
	// StageCommitted acts on the presentation and decides the next state.
	StageCommitted StateStage = "committed"
)

// InvalidState marks an unset PendingState.
const InvalidState = ""

// StateStorage is the persisted pointer of a state machine.
// One instance is stored per game-mode scope.
type StateStorage struct {
	// CurrentState is the state whose stage runs next.
	CurrentState string `json:"current_state"`

	// PendingState is the state chosen by the last Committed stage.
	// It is InvalidState only while a Committed stage is running.
	PendingState string `json:"pending_state"`

	// StateStage is the stage of CurrentState that runs next.
	StateStage StateStage `json:"state_stage"`
}

// NewStateStorage creates the pointer used on a cold start.
func NewStateStorage(initialState string) *StateStorage {
	return &StateStorage{
		CurrentState: initialState,
		PendingState: InvalidState,
		StateStage:   StageProcessing,
	}
}

// Advance moves the pointer to the pending state, ready for its Processing stage.
func (s *StateStorage) Advance() {
	s.CurrentState = s.PendingState
	s.StateStage = StageProcessing
}

// Clone returns an independent copy.
func (s *StateStorage) Clone() *StateStorage {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// StateStorageKey returns the ScopeGameMode path of a machine's pointer.
func StateStorageKey(machine string) string {
	return "StateMachine/" + machine + "/StateStorage"
}
