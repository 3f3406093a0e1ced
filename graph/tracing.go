package graph

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TraceEvent represents different types of events in graph execution
type TraceEvent string

const (
	// TraceEventGraphStart indicates the start of graph execution
	TraceEventGraphStart TraceEvent = "graph_start"

	// TraceEventGraphEnd indicates the end of graph execution
	TraceEventGraphEnd TraceEvent = "graph_end"

	// TraceEventNodeStart indicates the start of node execution
	TraceEventNodeStart TraceEvent = "node_start"

	// TraceEventNodeEnd indicates the end of node execution
	TraceEventNodeEnd TraceEvent = "node_end"

	// TraceEventNodeError indicates an error occurred in node execution
	TraceEventNodeError TraceEvent = "node_error"

	// TraceEventEdgeTraversal indicates traversal from one node to another
	TraceEventEdgeTraversal TraceEvent = "edge_traversal"
)

// TraceSpan represents a span of execution with timing and metadata
type TraceSpan struct {
	ID        string
	ParentID  string
	Event     TraceEvent
	NodeName  string
	FromNode  string
	ToNode    string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	// State is the state after the node ran (end events only)
	State any

	// Error contains any error that occurred during execution
	Error error

	// Metadata contains additional key-value pairs for observability
	Metadata map[string]any
}

// TraceHook defines the interface for trace event handlers. Hooks are called
// synchronously from the goroutine running the graph.
type TraceHook interface {
	OnEvent(ctx context.Context, span *TraceSpan)
}

// TraceHookFunc is a function adapter for TraceHook
type TraceHookFunc func(ctx context.Context, span *TraceSpan)

// OnEvent implements the TraceHook interface
func (f TraceHookFunc) OnEvent(ctx context.Context, span *TraceSpan) {
	f(ctx, span)
}

// Tracer fans trace events out to its hooks. It keeps no spans itself; use a
// SpanRecorder hook to collect them.
type Tracer struct {
	mu    sync.RWMutex
	hooks []TraceHook
}

// NewTracer creates a new tracer instance
func NewTracer(hooks ...TraceHook) *Tracer {
	return &Tracer{hooks: hooks}
}

// AddHook registers a new trace hook
func (t *Tracer) AddHook(hook TraceHook) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hooks = append(t.hooks, hook)
}

func (t *Tracer) notify(ctx context.Context, span *TraceSpan) {
	t.mu.RLock()
	hooks := t.hooks
	t.mu.RUnlock()

	for _, hook := range hooks {
		hook.OnEvent(ctx, span)
	}
}

// StartSpan creates a new trace span
func (t *Tracer) StartSpan(ctx context.Context, event TraceEvent, nodeName string) *TraceSpan {
	span := &TraceSpan{
		ID:        uuid.NewString(),
		Event:     event,
		NodeName:  nodeName,
		StartTime: time.Now(),
		Metadata:  make(map[string]any),
	}

	if parentSpan := SpanFromContext(ctx); parentSpan != nil {
		span.ParentID = parentSpan.ID
	}

	t.notify(ctx, span)
	return span
}

// EndSpan completes a trace span
func (t *Tracer) EndSpan(ctx context.Context, span *TraceSpan, state any, err error) {
	span.EndTime = time.Now()
	span.Duration = span.EndTime.Sub(span.StartTime)
	span.State = state
	span.Error = err

	switch {
	case span.Event == TraceEventNodeStart && err != nil:
		span.Event = TraceEventNodeError
	case span.Event == TraceEventNodeStart:
		span.Event = TraceEventNodeEnd
	case span.Event == TraceEventGraphStart:
		span.Event = TraceEventGraphEnd
	}

	t.notify(ctx, span)
}

// TraceEdgeTraversal records an edge traversal event
func (t *Tracer) TraceEdgeTraversal(ctx context.Context, fromNode, toNode string) {
	now := time.Now()
	span := &TraceSpan{
		ID:        uuid.NewString(),
		Event:     TraceEventEdgeTraversal,
		FromNode:  fromNode,
		ToNode:    toNode,
		StartTime: now,
		EndTime:   now,
		Metadata:  make(map[string]any),
	}

	if parentSpan := SpanFromContext(ctx); parentSpan != nil {
		span.ParentID = parentSpan.ID
	}

	t.notify(ctx, span)
}

// SpanRecorder is a TraceHook that keeps a copy of every event it sees.
type SpanRecorder struct {
	mu    sync.Mutex
	spans []TraceSpan
}

// OnEvent implements TraceHook.
func (r *SpanRecorder) OnEvent(_ context.Context, span *TraceSpan) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spans = append(r.spans, *span)
}

// Spans returns the recorded events in arrival order.
func (r *SpanRecorder) Spans() []TraceSpan {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TraceSpan, len(r.spans))
	copy(out, r.spans)
	return out
}

// Clear drops the recorded events.
func (r *SpanRecorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spans = nil
}

type contextKey string

const spanContextKey contextKey = "kgqa_span"

// ContextWithSpan returns a new context with the span stored
func ContextWithSpan(ctx context.Context, span *TraceSpan) context.Context {
	return context.WithValue(ctx, spanContextKey, span)
}

// SpanFromContext extracts a span from context
func SpanFromContext(ctx context.Context) *TraceSpan {
	if span, ok := ctx.Value(spanContextKey).(*TraceSpan); ok {
		return span
	}
	return nil
}
