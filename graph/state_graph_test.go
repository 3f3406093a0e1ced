package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counterState struct {
	Count int
	Path  []string
	Err   error
}

func step(name string) NodeFunc[*counterState] {
	return func(ctx context.Context, s *counterState) (*counterState, error) {
		s.Count++
		s.Path = append(s.Path, name)
		return s, nil
	}
}

func TestStateGraph_Sequential(t *testing.T) {
	g := NewStateGraph[*counterState]()
	g.AddNode("a", "first", step("a"))
	g.AddNode("b", "second", step("b"))
	g.AddNode("c", "third", step("c"))
	g.AddEdge("a", "b")
	g.AddEdge("b", "c")
	g.AddEdge("c", END)
	g.SetEntryPoint("a")

	app, err := g.Compile()
	require.NoError(t, err)

	final, err := app.Invoke(context.Background(), &counterState{})
	require.NoError(t, err)
	assert.Equal(t, 3, final.Count)
	assert.Equal(t, []string{"a", "b", "c"}, final.Path)
}

func TestStateGraph_ConditionalShortCircuit(t *testing.T) {
	g := NewStateGraph[*counterState]()
	g.AddNode("a", "first", func(ctx context.Context, s *counterState) (*counterState, error) {
		s.Path = append(s.Path, "a")
		s.Err = errors.New("boom")
		return s, nil
	})
	g.AddNode("b", "second", step("b"))
	g.AddConditionalEdge("a", func(ctx context.Context, s *counterState) string {
		if s.Err != nil {
			return END
		}
		return "b"
	}, "b", END)
	g.AddEdge("b", END)
	g.SetEntryPoint("a")

	app, err := g.Compile()
	require.NoError(t, err)

	final, err := app.Invoke(context.Background(), &counterState{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, final.Path)
	assert.EqualError(t, final.Err, "boom")
}

func TestStateGraph_CompileErrors(t *testing.T) {
	t.Run("entry point not set", func(t *testing.T) {
		g := NewStateGraph[*counterState]()
		g.AddNode("a", "", step("a"))
		_, err := g.Compile()
		assert.ErrorIs(t, err, ErrEntryPointNotSet)
	})

	t.Run("unknown edge target", func(t *testing.T) {
		g := NewStateGraph[*counterState]()
		g.AddNode("a", "", step("a"))
		g.AddEdge("a", "missing")
		g.SetEntryPoint("a")
		_, err := g.Compile()
		assert.ErrorIs(t, err, ErrNodeNotFound)
	})

	t.Run("unknown conditional target", func(t *testing.T) {
		g := NewStateGraph[*counterState]()
		g.AddNode("a", "", step("a"))
		g.AddConditionalEdge("a", func(ctx context.Context, s *counterState) string { return END }, "nowhere")
		g.SetEntryPoint("a")
		_, err := g.Compile()
		assert.ErrorIs(t, err, ErrNodeNotFound)
	})
}

func TestStateGraph_NodeErrorKeepsLastState(t *testing.T) {
	g := NewStateGraph[*counterState]()
	g.AddNode("a", "", step("a"))
	g.AddNode("b", "", func(ctx context.Context, s *counterState) (*counterState, error) {
		return s, errors.New("node failed")
	})
	g.AddEdge("a", "b")
	g.AddEdge("b", END)
	g.SetEntryPoint("a")

	app, err := g.Compile()
	require.NoError(t, err)

	final, err := app.Invoke(context.Background(), &counterState{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error in node b")
	assert.Equal(t, []string{"a"}, final.Path)
}

func TestStateGraph_PanicBecomesError(t *testing.T) {
	g := NewStateGraph[*counterState]()
	g.AddNode("a", "", func(ctx context.Context, s *counterState) (*counterState, error) {
		panic("bad input")
	})
	g.AddEdge("a", END)
	g.SetEntryPoint("a")

	app, err := g.Compile()
	require.NoError(t, err)

	_, err = app.Invoke(context.Background(), &counterState{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic in node a: bad input")
}

func TestStateGraph_NoOutgoingEdge(t *testing.T) {
	g := NewStateGraph[*counterState]()
	g.AddNode("a", "", step("a"))
	g.SetEntryPoint("a")

	app, err := g.Compile()
	require.NoError(t, err)

	_, err = app.Invoke(context.Background(), &counterState{})
	assert.ErrorIs(t, err, ErrNoOutgoingEdge)
}

func TestStateGraph_MaxSteps(t *testing.T) {
	g := NewStateGraph[*counterState]()
	g.AddNode("loop", "", step("loop"))
	g.AddEdge("loop", "loop")
	g.SetEntryPoint("loop")

	app, err := g.Compile()
	require.NoError(t, err)
	app.SetMaxSteps(5)

	final, err := app.Invoke(context.Background(), &counterState{})
	assert.ErrorIs(t, err, ErrMaxStepsExceeded)
	assert.Equal(t, 5, final.Count)
}

func TestStateGraph_ContextCancelled(t *testing.T) {
	g := NewStateGraph[*counterState]()
	g.AddNode("a", "", step("a"))
	g.AddEdge("a", END)
	g.SetEntryPoint("a")

	app, err := g.Compile()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	final, err := app.Invoke(ctx, &counterState{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, final.Count)
}
