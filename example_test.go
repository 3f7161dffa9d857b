package gamestate_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/gamestate"
	"github.com/aretw0/gamestate/pkg/adapters/memory"
	"github.com/aretw0/gamestate/pkg/history"
)

func Example() {
	store := memory.NewStore()
	m, err := gamestate.New(store, gamestate.WithInitialState("Idle"))
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	played := 0
	_ = m.CreateCommittedState("Idle", func(sc gamestate.StageContext) error {
		if played == 3 {
			// Power off: the stage is rolled back and Run returns.
			cancel()
		}
		return sc.SetNextState("Game")
	}, nil)
	_ = m.CreateCommittedState("Game", func(sc gamestate.StageContext) error {
		played++
		if err := sc.StartState("Game", gamestate.DataBag{"Game": {"Round": played}}); err != nil {
			return err
		}
		return sc.SetNextState("Idle")
	}, history.Default(1))

	if err := m.Run(ctx); err != nil {
		log.Fatal(err)
	}

	tx, _ := store.Begin(context.Background(), "inspect")
	defer tx.Rollback(context.Background())
	steps, _ := history.Count(tx)

	fmt.Println("state:", m.Storage().CurrentState)
	fmt.Println("games:", played)
	fmt.Println("history steps:", steps)
	// Output:
	// state: Idle
	// games: 3
	// history steps: 3
}
