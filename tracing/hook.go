package tracing

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/smallnest/kgqa/graph"
)

// ScopeName is the instrumentation scope of the spans created by Hook.
const ScopeName = "github.com/smallnest/kgqa"

// failure is implemented by states that carry their own failure.
type failure interface {
	Failure() error
}

// Hook turns graph trace events into OpenTelemetry spans. A graph run becomes
// a "kgqa.ask" span with one child span per node; edge traversals are
// recorded as span events on the run span.
type Hook struct {
	tracer trace.Tracer

	mu    sync.Mutex
	spans map[string]trace.Span
	ctxs  map[string]context.Context
}

var _ graph.TraceHook = (*Hook)(nil)

// NewHook creates a hook that starts spans from tp.
func NewHook(tp trace.TracerProvider) *Hook {
	return &Hook{
		tracer: tp.Tracer(ScopeName),
		spans:  make(map[string]trace.Span),
		ctxs:   make(map[string]context.Context),
	}
}

// OnEvent implements graph.TraceHook.
func (h *Hook) OnEvent(ctx context.Context, span *graph.TraceSpan) {
	switch span.Event {
	case graph.TraceEventGraphStart:
		h.start(ctx, span, "kgqa.ask")
	case graph.TraceEventNodeStart:
		h.start(ctx, span, "kgqa."+span.NodeName)
	case graph.TraceEventNodeEnd, graph.TraceEventNodeError, graph.TraceEventGraphEnd:
		h.end(span)
	case graph.TraceEventEdgeTraversal:
		h.edge(span)
	}
}

func (h *Hook) start(ctx context.Context, span *graph.TraceSpan, name string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if parent, ok := h.ctxs[span.ParentID]; ok {
		ctx = parent
	}
	ctx, s := h.tracer.Start(ctx, name,
		trace.WithTimestamp(span.StartTime),
		trace.WithAttributes(attribute.String("kgqa.node", span.NodeName)),
	)
	h.spans[span.ID] = s
	h.ctxs[span.ID] = ctx
}

func (h *Hook) end(span *graph.TraceSpan) {
	h.mu.Lock()
	s, ok := h.spans[span.ID]
	delete(h.spans, span.ID)
	delete(h.ctxs, span.ID)
	h.mu.Unlock()
	if !ok {
		return
	}

	err := span.Error
	if err == nil {
		if f, ok := span.State.(failure); ok {
			err = f.Failure()
		}
	}
	if err != nil {
		s.RecordError(err)
		s.SetStatus(codes.Error, err.Error())
	} else {
		s.SetStatus(codes.Ok, "")
	}
	s.End(trace.WithTimestamp(span.EndTime))
}

func (h *Hook) edge(span *graph.TraceSpan) {
	h.mu.Lock()
	s, ok := h.spans[span.ParentID]
	h.mu.Unlock()
	if !ok {
		return
	}
	s.AddEvent("edge", trace.WithAttributes(
		attribute.String("from", span.FromNode),
		attribute.String("to", span.ToNode),
	))
}
