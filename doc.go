/*
Package gamestate is a transactional state machine executor built to survive power loss.

Every state runs in two stages. The Processing stage computes and persists results
without touching the presentation. The Committed stage shows results and chooses the
next state, waiting on the presentation or the host in between. Each stage runs inside a store
transaction, and the persisted state pointer only moves when that transaction commits,
so a machine interrupted at any instant restarts at the last committed point.

# Concept

The executor owns a single goroutine. Handlers never block on their own; they call the
blocking waits of their StageContext instead. A wait commits the open transaction and
keeps serving host events and queued work while suspended. A fresh transaction is open
again when it returns.

Presentation states started from a Committed stage are recorded as history steps
according to the state's history policy. When a machine restarts in the middle of a
game cycle, the recovery segment replays those steps before execution resumes at the
persisted pointer.

# Key Features

  - Power-hit safety: stage results and the state pointer commit atomically.
  - Transaction queue: external code submits work that runs on the executor goroutine.
  - History policies: none, default, custom serializers or a resolved service list.
  - Pluggable stores: memory, file, SQLite and Redis, with encryption and PII masking middleware.
  - Forced exit: shutdown unwinds any blocking wait without persisting the aborted stage.

# Usage

	package main

	import (
		"context"
		"log"

		"github.com/aretw0/gamestate"
		"github.com/aretw0/gamestate/pkg/adapters/memory"
		"github.com/aretw0/gamestate/pkg/history"
	)

	func main() {
		m, err := gamestate.New(memory.NewStore(),
			gamestate.WithInitialState("Idle"),
			gamestate.WithPowerHitRecovery("Replay"),
		)
		if err != nil {
			log.Fatal(err)
		}

		_ = m.CreateCommittedState("Idle", func(sc gamestate.StageContext) error {
			return sc.SetNextState("Spin")
		}, nil)

		_ = m.CreateState("Spin",
			func(sc gamestate.StageContext) error {
				// Processing: draw and persist the outcome.
				return nil
			},
			func(sc gamestate.StageContext) error {
				// Committed: show the outcome and wait for the presentation.
				if err := sc.StartState("Reels", gamestate.DataBag{"Game": {"Win": 10}}); err != nil {
					return err
				}
				return sc.SetNextState("Idle")
			},
			history.Default(1),
		)

		if err := m.Run(context.Background()); err != nil {
			log.Fatal(err)
		}
	}

Larger machines can be declared with the fluent builder in pkg/dsl, which also guards
transitions to undeclared states.
*/
package gamestate
