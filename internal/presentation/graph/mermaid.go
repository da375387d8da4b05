package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/parley/pkg/domain"
)

// Overlay marks the states a session has visited and the one it is in.
type Overlay struct {
	Visited []string
	Current string
}

// GenerateMermaid renders the execution graph as a Mermaid flowchart.
// Shapes:
//   - Init: ((circle))
//   - Default_Fallback: {{hexagon}}
//   - states without outgoing transitions: ([stadium])
//   - everything else: [rectangle]
//
// Wildcard transitions are drawn dotted; guarded ones carry the guard as label.
func GenerateMermaid(g *domain.Graph, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")
	if g == nil {
		return sb.String()
	}

	for i := range g.States {
		s := &g.States[i]
		safeID := sanitizeMermaidID(s.Name)

		opener, closer := "[", "]"
		switch {
		case s.ID == g.Init:
			opener, closer = "((", "))"
		case s.ID == g.Fallback:
			opener, closer = "{{", "}}"
		case len(s.Transitions) == 0:
			opener, closer = "([", "])"
		}

		label := s.Name
		if n := len(s.Actions); n > 0 {
			label = fmt.Sprintf("%s <br/> %d action(s)", s.Name, n)
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", safeID, opener, label, closer)

		for _, t := range s.Transitions {
			target := g.State(t.Target)
			if target == nil {
				continue
			}
			safeTo := sanitizeMermaidID(target.Name)
			if t.IsWildcard() {
				fmt.Fprintf(&sb, "    %s -.-> %s\n", safeID, safeTo)
				continue
			}
			// Mermaid labels cannot hold double quotes.
			cond := strings.ReplaceAll(t.Guard.String(), "\"", "'")
			fmt.Fprintf(&sb, "    %s -- \"%s\" --> %s\n", safeID, cond, safeTo)
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		seen := make(map[string]bool)
		for _, name := range overlay.Visited {
			if _, ok := g.StateByName(name); !ok {
				continue
			}
			safeID := sanitizeMermaidID(name)
			if !seen[safeID] {
				seen[safeID] = true
				fmt.Fprintf(&sb, "    class %s visited;\n", safeID)
			}
		}
		if _, ok := g.StateByName(overlay.Current); ok {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(overlay.Current))
		}
	}

	return sb.String()
}

func sanitizeMermaidID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", " ", "_")
	return r.Replace(id)
}
