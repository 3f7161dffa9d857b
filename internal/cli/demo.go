package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/aretw0/gamestate"
	"github.com/aretw0/gamestate/internal/validator"
	"github.com/aretw0/gamestate/pkg/domain"
	"github.com/aretw0/gamestate/pkg/dsl"
	"github.com/aretw0/gamestate/pkg/history"
	"github.com/aretw0/gamestate/pkg/ports"
)

// Demo state and key names.
const (
	StateIdle   = "Idle"
	StatePlay   = "Play"
	StatePayout = "Payout"
	StateReplay = "Replay"

	providerGame = "Game"
	keyRound     = "Round"
	keyWin       = "Win"

	shownReels = "Reels"
)

// Outcome is the game provider of the demo's shown states.
type Outcome struct {
	Round int `mapstructure:"Round"`
	Win   int `mapstructure:"Win"`
}

// DemoOutcome decodes the outcome carried by a shown or recorded bag.
func DemoOutcome(data domain.DataBag) (Outcome, error) {
	var o Outcome
	if err := data.DecodeProvider(providerGame, &o); err != nil {
		return Outcome{}, err
	}
	return o, nil
}

// DemoWin returns the prize of a round. Even rounds lose.
func DemoWin(round int) int {
	return (round % 2) * 10
}

// DemoGraph declares a small game:
//
//	Idle --(play)--> Play --(win)--> Payout --> Idle
//	                   \--(lose)-------------> Idle
//
// Every shown state waits for the presentation to complete it.
func DemoGraph() (*dsl.Graph, error) {
	b := dsl.New().Initial(StateIdle)

	b.Add(StateIdle).
		Committed(idle).
		Go(StatePlay)

	b.Add(StatePlay).
		Processing(drawRound).
		Committed(play).
		History(history.Default(1)).
		Go(StatePayout).
		Go(StateIdle)

	b.Add(StatePayout).
		Committed(payout).
		History(history.Default(2)).
		Go(StateIdle)

	g, err := b.Build()
	if err != nil {
		return nil, err
	}
	if err := validator.ValidateGraph(g); err != nil {
		return nil, err
	}
	return g, nil
}

// RegisterDemo installs the demo graph on m.
func RegisterDemo(m *gamestate.Machine) error {
	g, err := DemoGraph()
	if err != nil {
		return err
	}
	return g.Install(m)
}

func idle(sc gamestate.StageContext) error {
	if err := history.WritePhase(sc.Tx(), domain.PhaseIdle); err != nil {
		return err
	}
	if err := sc.Present("Attract", nil); err != nil {
		return err
	}
	if err := waitComplete(sc); err != nil {
		return err
	}

	// New game cycle.
	tx := sc.Tx()
	if err := history.Clear(tx); err != nil {
		return err
	}
	if err := history.WritePhase(tx, domain.PhasePlaying); err != nil {
		return err
	}
	return sc.SetNextState(StatePlay)
}

// drawRound runs in Processing, so a power-hit before commit draws the same round again.
func drawRound(sc gamestate.StageContext) error {
	round, err := readInt(sc.Tx(), keyRound)
	if err != nil {
		return err
	}
	round++
	if err := writeInt(sc.Tx(), keyRound, round); err != nil {
		return err
	}
	return writeInt(sc.Tx(), keyWin, DemoWin(round))
}

func play(sc gamestate.StageContext) error {
	round, err := readInt(sc.Tx(), keyRound)
	if err != nil {
		return err
	}
	win, err := readInt(sc.Tx(), keyWin)
	if err != nil {
		return err
	}

	if err := sc.StartState(shownReels, gamestate.DataBag{providerGame: {keyRound: round, keyWin: win}}); err != nil {
		return err
	}
	if err := waitComplete(sc); err != nil {
		return err
	}

	if win > 0 {
		return sc.SetNextState(StatePayout)
	}
	if err := history.WritePhase(sc.Tx(), domain.PhaseFinalized); err != nil {
		return err
	}
	return sc.SetNextState(StateIdle)
}

func payout(sc gamestate.StageContext) error {
	if err := history.WritePhase(sc.Tx(), domain.PhaseMainPlayComplete); err != nil {
		return err
	}
	// Pay what the reels showed.
	shown, err := recordedOutcome(sc.Tx())
	if err != nil {
		return err
	}
	if err := sc.StartState("Win", gamestate.DataBag{providerGame: {keyWin: shown.Win}}); err != nil {
		return err
	}
	if err := waitComplete(sc); err != nil {
		return err
	}
	if err := history.WritePhase(sc.Tx(), domain.PhaseFinalized); err != nil {
		return err
	}
	return sc.SetNextState(StateIdle)
}

// recordedOutcome decodes the newest recorded reels step of the game cycle.
func recordedOutcome(tx ports.Transaction) (Outcome, error) {
	entries, err := history.ReadList(tx)
	if err != nil {
		return Outcome{}, err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		block, err := history.ReadBlock(tx, entries[i].Step)
		if err != nil {
			return Outcome{}, err
		}
		if block.StateName == shownReels {
			return DemoOutcome(block.Data)
		}
	}
	return Outcome{}, fmt.Errorf("%w: no recorded %s step", domain.ErrNotFound, shownReels)
}

func waitComplete(sc gamestate.StageContext) error {
	_, _, err := sc.GetPresentationEvent(0, domain.MessagePresentationStateComplete)
	return err
}

func readInt(tx ports.Transaction, key string) (int, error) {
	data, err := tx.Read(domain.ScopeGameCycle, key)
	if errors.Is(err, domain.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(string(data))
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, data, err)
	}
	return n, nil
}

func writeInt(tx ports.Transaction, key string, n int) error {
	return tx.Write(domain.ScopeGameCycle, key, []byte(strconv.Itoa(n)))
}
