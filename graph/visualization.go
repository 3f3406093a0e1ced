package graph

import (
	"fmt"
	"strings"
)

// Exporter renders a graph as a diagram.
type Exporter[S any] struct {
	graph *StateGraph[S]
}

// NewExporter creates a new graph exporter for the given graph
func NewExporter[S any](graph *StateGraph[S]) *Exporter[S] {
	return &Exporter[S]{graph: graph}
}

// MermaidOptions defines configuration for Mermaid diagram generation
type MermaidOptions struct {
	// Direction of the flowchart (e.g., "TD", "LR")
	Direction string
}

// DrawMermaid generates a top-down Mermaid flowchart.
func (ge *Exporter[S]) DrawMermaid() string {
	return ge.DrawMermaidWithOptions(MermaidOptions{Direction: "TD"})
}

// DrawMermaidWithOptions generates a Mermaid diagram with custom options.
// Conditional edges are drawn dashed to each declared target.
func (ge *Exporter[S]) DrawMermaidWithOptions(opts MermaidOptions) string {
	var sb strings.Builder

	direction := opts.Direction
	if direction == "" {
		direction = "TD"
	}
	fmt.Fprintf(&sb, "flowchart %s\n", direction)

	g := ge.graph
	if g.entryPoint != "" {
		sb.WriteString("    START([\"START\"])\n")
		sb.WriteString("    style START fill:#90EE90\n")
	}

	for _, name := range g.order {
		fmt.Fprintf(&sb, "    %s[\"%s\"]\n", name, name)
	}

	if ge.referencesEnd() {
		sb.WriteString("    END([\"END\"])\n")
		sb.WriteString("    style END fill:#FFB6C1\n")
	}

	if g.entryPoint != "" {
		fmt.Fprintf(&sb, "    START --> %s\n", g.entryPoint)
	}

	for _, edge := range g.edges {
		fmt.Fprintf(&sb, "    %s --> %s\n", edge.From, edge.To)
	}

	for _, from := range g.order {
		ce, ok := g.conditionalEdges[from]
		if !ok {
			continue
		}
		if len(ce.targets) == 0 {
			fmt.Fprintf(&sb, "    %s -.-> %s_condition((?))\n", from, from)
			continue
		}
		for _, to := range ce.targets {
			fmt.Fprintf(&sb, "    %s -.-> %s\n", from, to)
		}
	}

	if g.entryPoint != "" {
		fmt.Fprintf(&sb, "    style %s fill:#87CEEB\n", g.entryPoint)
	}

	return sb.String()
}

func (ge *Exporter[S]) referencesEnd() bool {
	for _, edge := range ge.graph.edges {
		if edge.To == END {
			return true
		}
	}
	for _, ce := range ge.graph.conditionalEdges {
		for _, to := range ce.targets {
			if to == END {
				return true
			}
		}
	}
	return false
}
