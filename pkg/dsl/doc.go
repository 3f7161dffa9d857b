/*
Package dsl provides a fluent builder for declaring a state machine before it is
registered on an executor.

A declared graph names every state, its stage handlers, its history policy and the
states it may move to. Installing the graph registers the states and guards
SetNextState so a Committed stage can only choose a declared successor.

Example usage:

	b := dsl.New()

	b.Add("Idle").
		Committed(idle).
		Go("Play")

	b.Add("Play").
		Processing(draw).
		Committed(play).
		History(history.Default(1)).
		Go("Idle")

	g, err := b.Build()
	if err != nil {
		return err
	}
	// m is a *gamestate.Machine or a *registry.Registry.
	return g.Install(m)
*/
package dsl
