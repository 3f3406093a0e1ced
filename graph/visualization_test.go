package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVisualization(t *testing.T) {
	pass := func(ctx context.Context, state map[string]any) (map[string]any, error) { return state, nil }

	g := NewStateGraph[map[string]any]()
	g.AddNode("A", "A", pass)
	g.AddNode("B", "B", pass)
	g.AddNode("C", "C", pass)
	g.AddNode("D", "D", pass)

	g.SetEntryPoint("A")
	g.AddEdge("A", "B")
	g.AddConditionalEdge("B", func(ctx context.Context, state map[string]any) string { return "C" }, "C", END)
	g.AddConditionalEdge("C", func(ctx context.Context, state map[string]any) string { return "D" })
	g.AddEdge("D", END)

	_, err := g.Compile()
	require.NoError(t, err)

	mermaid := NewExporter(g).DrawMermaid()
	assert.Contains(t, mermaid, "flowchart TD")
	assert.Contains(t, mermaid, "START --> A")
	assert.Contains(t, mermaid, "A --> B")
	assert.Contains(t, mermaid, "B -.-> C")
	assert.Contains(t, mermaid, "B -.-> END")
	assert.Contains(t, mermaid, "C -.-> C_condition((?))")
	assert.Contains(t, mermaid, "D --> END")

	mermaidLR := NewExporter(g).DrawMermaidWithOptions(MermaidOptions{Direction: "LR"})
	assert.Contains(t, mermaidLR, "flowchart LR")
}
