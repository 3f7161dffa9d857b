package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/gamestate/pkg/domain"
	"github.com/aretw0/gamestate/pkg/dsl"
)

// GraphOverlay contains persisted pointer data to visualize on the graph.
type GraphOverlay struct {
	CurrentState string
	PendingState string
	Stage        domain.StateStage
}

// OverlayFromStorage builds an overlay from a persisted pointer. It returns nil for a cold start.
func OverlayFromStorage(s *domain.StateStorage) *GraphOverlay {
	if s == nil {
		return nil
	}
	return &GraphOverlay{CurrentState: s.CurrentState, PendingState: s.PendingState, Stage: s.StateStage}
}

// GenerateMermaid produces a Mermaid flowchart syntax string from a declared graph.
// It applies semantic styling:
// - Initial: ((Circle))
// - Processing and Committed stages: [[Subroutine]]
// - Committed only: [Rectangle]
// Targets that are not declared get a dotted arrow.
func GenerateMermaid(g *dsl.Graph, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	declared := make(map[string]bool, len(g.States))
	for _, st := range g.States {
		declared[st.Name] = true
	}

	for _, st := range g.States {
		safeID := sanitizeMermaidID(st.Name)

		opener, closer := "[", "]"
		switch {
		case st.Name == g.Initial:
			opener, closer = "((", "))"
		case !st.CommittedOnly():
			opener, closer = "[[", "]]"
		}

		label := st.Name
		if st.Policy.Records() {
			label = fmt.Sprintf("%s <br/> history p%d", st.Name, st.Policy.Priority())
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", safeID, opener, label, closer))

		for _, target := range st.Next {
			arrow := "-->"
			if !declared[target] {
				arrow = "-.->"
			}
			sb.WriteString(fmt.Sprintf("    %s %s %s\n", safeID, arrow, sanitizeMermaidID(target)))
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		sb.WriteString("    classDef pending fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		if overlay.PendingState != domain.InvalidState && overlay.PendingState != overlay.CurrentState {
			sb.WriteString(fmt.Sprintf("    class %s pending;\n", sanitizeMermaidID(overlay.PendingState)))
		}
		if overlay.CurrentState != "" {
			sb.WriteString(fmt.Sprintf("    class %s current;\n", sanitizeMermaidID(overlay.CurrentState)))
		}
	}

	return sb.String()
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
