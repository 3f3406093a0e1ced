package graph

import (
	"context"
	"fmt"
	"slices"
)

const defaultMaxSteps = 64

// StateGraph is a typed, sequential state machine. Each node receives the state
// produced by its predecessor; the next node is chosen by a static edge or by a
// conditional edge evaluated on the new state.
//
//	g := graph.NewStateGraph[*MyState]()
//	g.AddNode("fetch", "Fetch rows", fetch)
//	g.AddNode("render", "Render rows", render)
//	g.AddEdge("fetch", "render")
//	g.AddEdge("render", graph.END)
//	g.SetEntryPoint("fetch")
//	app, err := g.Compile()
type StateGraph[S any] struct {
	nodes            map[string]TypedNode[S]
	order            []string
	edges            []Edge
	conditionalEdges map[string]conditionalEdge[S]
	entryPoint       string
}

// TypedNode represents a typed node in the graph.
type TypedNode[S any] struct {
	Name        string
	Description string
	Function    NodeFunc[S]
}

type conditionalEdge[S any] struct {
	condition func(ctx context.Context, state S) string
	targets   []string
}

// NewStateGraph creates a new instance of StateGraph.
func NewStateGraph[S any]() *StateGraph[S] {
	return &StateGraph[S]{
		nodes:            make(map[string]TypedNode[S]),
		conditionalEdges: make(map[string]conditionalEdge[S]),
	}
}

// AddNode adds a node with the given name, description and function.
func (g *StateGraph[S]) AddNode(name string, description string, fn NodeFunc[S]) {
	if _, exists := g.nodes[name]; !exists {
		g.order = append(g.order, name)
	}
	g.nodes[name] = TypedNode[S]{
		Name:        name,
		Description: description,
		Function:    fn,
	}
}

// AddEdge adds a static edge between the "from" and "to" nodes.
func (g *StateGraph[S]) AddEdge(from, to string) {
	g.edges = append(g.edges, Edge{From: from, To: to})
}

// AddConditionalEdge adds an edge whose target is chosen at runtime. targets lists
// the nodes the condition may return; it is used for validation and diagrams.
func (g *StateGraph[S]) AddConditionalEdge(from string, condition func(ctx context.Context, state S) string, targets ...string) {
	g.conditionalEdges[from] = conditionalEdge[S]{condition: condition, targets: targets}
}

// SetEntryPoint sets the entry point node name for the state graph.
func (g *StateGraph[S]) SetEntryPoint(name string) {
	g.entryPoint = name
}

// Nodes returns the nodes in insertion order.
func (g *StateGraph[S]) Nodes() []TypedNode[S] {
	out := make([]TypedNode[S], 0, len(g.order))
	for _, name := range g.order {
		out = append(out, g.nodes[name])
	}
	return out
}

// Compile validates the graph and returns a runnable.
func (g *StateGraph[S]) Compile() (*StateRunnable[S], error) {
	if g.entryPoint == "" {
		return nil, ErrEntryPointNotSet
	}
	if _, ok := g.nodes[g.entryPoint]; !ok {
		return nil, fmt.Errorf("%w: entry point %s", ErrNodeNotFound, g.entryPoint)
	}

	for _, edge := range g.edges {
		if _, ok := g.nodes[edge.From]; !ok {
			return nil, fmt.Errorf("%w: edge source %s", ErrNodeNotFound, edge.From)
		}
		if edge.To != END {
			if _, ok := g.nodes[edge.To]; !ok {
				return nil, fmt.Errorf("%w: edge target %s", ErrNodeNotFound, edge.To)
			}
		}
	}

	for from, ce := range g.conditionalEdges {
		if _, ok := g.nodes[from]; !ok {
			return nil, fmt.Errorf("%w: conditional edge source %s", ErrNodeNotFound, from)
		}
		for _, to := range ce.targets {
			if _, ok := g.nodes[to]; !ok && to != END {
				return nil, fmt.Errorf("%w: conditional edge target %s", ErrNodeNotFound, to)
			}
		}
	}

	return &StateRunnable[S]{graph: g, maxSteps: defaultMaxSteps}, nil
}

// StateRunnable is a compiled state graph. It holds no per-run state and is safe
// for concurrent Invoke calls as long as the node functions are.
type StateRunnable[S any] struct {
	graph    *StateGraph[S]
	tracer   *Tracer
	maxSteps int
}

// SetTracer sets a tracer for observability.
func (r *StateRunnable[S]) SetTracer(tracer *Tracer) {
	r.tracer = tracer
}

// GetTracer returns the current tracer.
func (r *StateRunnable[S]) GetTracer() *Tracer {
	return r.tracer
}

// WithTracer returns a copy of the runnable using tracer.
func (r *StateRunnable[S]) WithTracer(tracer *Tracer) *StateRunnable[S] {
	return &StateRunnable[S]{graph: r.graph, tracer: tracer, maxSteps: r.maxSteps}
}

// SetMaxSteps bounds the number of node executions in a single run.
func (r *StateRunnable[S]) SetMaxSteps(n int) {
	if n > 0 {
		r.maxSteps = n
	}
}

// Graph returns the graph the runnable was compiled from.
func (r *StateRunnable[S]) Graph() *StateGraph[S] {
	return r.graph
}

// Invoke runs the graph from the entry point until END. On error the state
// produced by the last successful node is returned along with the error.
func (r *StateRunnable[S]) Invoke(ctx context.Context, initialState S) (S, error) {
	state := initialState

	var graphSpan *TraceSpan
	if r.tracer != nil {
		graphSpan = r.tracer.StartSpan(ctx, TraceEventGraphStart, "graph")
		ctx = ContextWithSpan(ctx, graphSpan)
	}

	finish := func(err error) (S, error) {
		if graphSpan != nil {
			r.tracer.EndSpan(ctx, graphSpan, state, err)
		}
		return state, err
	}

	current := r.graph.entryPoint
	for steps := 0; current != END; steps++ {
		if steps >= r.maxSteps {
			return finish(fmt.Errorf("%w: %d", ErrMaxStepsExceeded, r.maxSteps))
		}
		if err := ctx.Err(); err != nil {
			return finish(err)
		}

		node, ok := r.graph.nodes[current]
		if !ok {
			return finish(fmt.Errorf("%w: %s", ErrNodeNotFound, current))
		}

		next, err := r.runNode(ctx, node, state)
		if err != nil {
			return finish(fmt.Errorf("error in node %s: %w", node.Name, err))
		}
		state = next

		to, err := r.nextNode(ctx, current, state)
		if err != nil {
			return finish(err)
		}
		if r.tracer != nil {
			r.tracer.TraceEdgeTraversal(ctx, current, to)
		}
		current = to
	}

	return finish(nil)
}

func (r *StateRunnable[S]) runNode(ctx context.Context, node TypedNode[S], state S) (result S, err error) {
	var span *TraceSpan
	if r.tracer != nil {
		span = r.tracer.StartSpan(ctx, TraceEventNodeStart, node.Name)
		ctx = ContextWithSpan(ctx, span)
	}

	defer func() {
		if p := recover(); p != nil {
			result = state
			err = fmt.Errorf("panic in node %s: %v", node.Name, p)
		}
		if span != nil {
			r.tracer.EndSpan(ctx, span, result, err)
		}
	}()

	return node.Function(ctx, state)
}

func (r *StateRunnable[S]) nextNode(ctx context.Context, from string, state S) (string, error) {
	if ce, ok := r.graph.conditionalEdges[from]; ok {
		to := ce.condition(ctx, state)
		if to == "" {
			return "", fmt.Errorf("conditional edge returned empty next node from %s", from)
		}
		if to == END {
			return END, nil
		}
		if _, ok := r.graph.nodes[to]; !ok {
			return "", fmt.Errorf("%w: %s", ErrNodeNotFound, to)
		}
		if len(ce.targets) > 0 && !slices.Contains(ce.targets, to) {
			return "", fmt.Errorf("conditional edge from %s returned undeclared target %s", from, to)
		}
		return to, nil
	}

	for _, edge := range r.graph.edges {
		if edge.From == from {
			return edge.To, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNoOutgoingEdge, from)
}
