package validator

import (
	"fmt"
	"strings"

	"github.com/aretw0/gamestate/pkg/dsl"
)

// ValidateGraph checks for transitions to undeclared states and states that cannot be
// reached from the initial state. States listed in external are entered by the
// executor itself, such as the recovery segment, and are accepted as targets.
func ValidateGraph(g *dsl.Graph, external ...string) error {
	declared := make(map[string]dsl.State, len(g.States))
	for _, st := range g.States {
		declared[st.Name] = st
	}
	known := make(map[string]bool, len(external))
	for _, name := range external {
		known[name] = true
	}

	var errors []string

	if _, ok := declared[g.Initial]; !ok {
		return fmt.Errorf("initial state '%s' not declared", g.Initial)
	}

	// Crawl from the initial state.
	visited := make(map[string]bool)
	queue := []string{g.Initial}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if visited[current] {
			continue
		}
		visited[current] = true

		for _, target := range declared[current].Next {
			if _, ok := declared[target]; !ok {
				if !known[target] {
					errors = append(errors, fmt.Sprintf("'%s' moves to undeclared state '%s'", current, target))
				}
				continue
			}
			if !visited[target] {
				queue = append(queue, target)
			}
		}
	}

	for _, st := range g.States {
		if !visited[st.Name] {
			errors = append(errors, fmt.Sprintf("Unreachable state: '%s'", st.Name))
		}
		if len(st.Next) == 0 {
			errors = append(errors, fmt.Sprintf("Dead end: '%s' declares no next state", st.Name))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("found %d errors:\n- %s", len(errors), strings.Join(errors, "\n- "))
	}

	return nil
}
