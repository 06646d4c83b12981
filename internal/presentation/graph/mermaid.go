package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/sqlgraph/internal/runtime"
)

// Graph is the compiled workflow as seen by the renderer.
type Graph interface {
	Nodes() []runtime.NodeID
	Entry() runtime.NodeID
	Edges() []runtime.Edge
	Interrupts(id runtime.NodeID) bool
}

// GraphOverlay contains dynamic run data to visualize on the graph.
type GraphOverlay struct {
	VisitedNodes []runtime.NodeID
	CurrentNode  runtime.NodeID
}

// GenerateMermaid produces a Mermaid flowchart of g.
// Shapes:
// - Entry: ((Circle))
// - Review interrupt: [/Parallelogram/]
// - End: (((Double circle)))
// - Default: [Rectangle]
// Conditional transitions are dotted.
func GenerateMermaid(g Graph, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, id := range g.Nodes() {
		opener, closer := "[", "]"
		switch {
		case id == g.Entry():
			opener, closer = "((", "))"
		case g.Interrupts(id):
			opener, closer = "[/", "/]"
		}
		label := string(id)
		if g.Interrupts(id) {
			label += " <br/> ⏸ review"
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", sanitizeMermaidID(string(id)), opener, label, closer)
	}
	fmt.Fprintf(&sb, "    %s(((\"end\")))\n", sanitizeMermaidID(string(runtime.End)))

	for _, e := range g.Edges() {
		arrow := "-->"
		if e.Conditional {
			arrow = "-.->"
		}
		fmt.Fprintf(&sb, "    %s %s %s\n", sanitizeMermaidID(string(e.From)), arrow, sanitizeMermaidID(string(e.To)))
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text for contrast on both light and dark themes.
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		seen := make(map[string]bool)
		for _, id := range overlay.VisitedNodes {
			safe := sanitizeMermaidID(string(id))
			if safe != "" && !seen[safe] {
				seen[safe] = true
				fmt.Fprintf(&sb, "    class %s visited;\n", safe)
			}
		}
		if overlay.CurrentNode != "" {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(string(overlay.CurrentNode)))
		}
	}
	return sb.String()
}

func sanitizeMermaidID(id string) string {
	return strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", " ", "_").Replace(id)
}
