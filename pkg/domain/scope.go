package domain

// Scope partitions the persisted store.
type Scope string

const (
	// ScopeGameMode holds data that lives as long as the game mode (the state pointer).
	ScopeGameMode Scope = "game_mode"
	// ScopeGameCycle holds data reset at each game cycle (record counter, cycle phase).
	ScopeGameCycle Scope = "game_cycle"
	// ScopeHistory holds the HistoryList and the recorded step blocks.
	ScopeHistory Scope = "history"
)

// GameCyclePhase is the phase of the current game cycle as tracked by the host.
type GameCyclePhase string

const (
	PhaseIdle             GameCyclePhase = "Idle"
	PhasePlaying          GameCyclePhase = "Playing"
	PhaseMainPlayComplete GameCyclePhase = "MainPlayComplete"
	PhaseFinalized        GameCyclePhase = "Finalized"
)

// AllowsHistoryRead reports whether recorded steps of the cycle may be replayed.
func (p GameCyclePhase) AllowsHistoryRead() bool {
	switch p {
	case PhasePlaying, PhaseMainPlayComplete:
		return true
	default:
		return false
	}
}
