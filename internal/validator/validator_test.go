package validator

import (
	"strings"
	"testing"

	"github.com/aretw0/gamestate/pkg/dsl"
	"github.com/aretw0/gamestate/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(ports.StageContext) error { return nil }

func build(t *testing.T, edges map[string][]string, order ...string) *dsl.Graph {
	t.Helper()
	b := dsl.New()
	for _, name := range order {
		sb := b.Add(name).Committed(noop)
		for _, to := range edges[name] {
			sb.Go(to)
		}
	}
	g, err := b.Build()
	require.NoError(t, err)
	return g
}

func TestValidateGraph(t *testing.T) {
	tests := []struct {
		name     string
		edges    map[string][]string
		order    []string
		external []string
		errs     []string
	}{
		{
			name:  "Valid cycle",
			edges: map[string][]string{"Idle": {"Play"}, "Play": {"Payout", "Idle"}, "Payout": {"Idle"}},
			order: []string{"Idle", "Play", "Payout"},
		},
		{
			name:  "Broken link",
			edges: map[string][]string{"Idle": {"Play"}, "Play": {"Bonus"}},
			order: []string{"Idle", "Play"},
			errs:  []string{"'Play' moves to undeclared state 'Bonus'"},
		},
		{
			name:     "External target",
			edges:    map[string][]string{"Idle": {"Replay"}},
			order:    []string{"Idle"},
			external: []string{"Replay"},
		},
		{
			name:  "Unreachable and dead end",
			edges: map[string][]string{"Idle": {"Idle"}},
			order: []string{"Idle", "Orphan"},
			errs:  []string{"Unreachable state: 'Orphan'", "Dead end: 'Orphan'", "found 2 errors"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateGraph(build(t, tt.edges, tt.order...), tt.external...)
			if len(tt.errs) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, want := range tt.errs {
				assert.True(t, strings.Contains(err.Error(), want), "missing %q in %q", want, err.Error())
			}
		})
	}
}

func TestValidateGraph_UnknownInitial(t *testing.T) {
	g := &dsl.Graph{Initial: "Nope"}
	assert.ErrorContains(t, ValidateGraph(g), "initial state 'Nope' not declared")
}
