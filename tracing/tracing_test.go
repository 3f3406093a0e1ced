package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/smallnest/kgqa/graph"
)

type run struct {
	steps []string
	err   error
}

func (r *run) Failure() error { return r.err }

func newRecorder() (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	rec := tracetest.NewSpanRecorder()
	return rec, sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
}

func compile(t *testing.T, fail bool) *graph.StateRunnable[*run] {
	t.Helper()
	g := graph.NewStateGraph[*run]()
	g.AddNode("parse", "", func(_ context.Context, r *run) (*run, error) {
		r.steps = append(r.steps, "parse")
		return r, nil
	})
	g.AddNode("execute", "", func(_ context.Context, r *run) (*run, error) {
		r.steps = append(r.steps, "execute")
		if fail {
			r.err = errors.New("endpoint unreachable")
		}
		return r, nil
	})
	g.AddEdge("parse", "execute")
	g.AddEdge("execute", graph.END)
	g.SetEntryPoint("parse")
	app, err := g.Compile()
	require.NoError(t, err)
	return app
}

func TestHookBuildsSpanTree(t *testing.T) {
	rec, tp := newRecorder()
	app := compile(t, false)
	app.SetTracer(graph.NewTracer(NewHook(tp)))

	_, err := app.Invoke(context.Background(), &run{})
	require.NoError(t, err)

	ended := rec.Ended()
	require.Len(t, ended, 3)

	byName := map[string]sdktrace.ReadOnlySpan{}
	for _, s := range ended {
		byName[s.Name()] = s
	}
	root := byName["kgqa.ask"]
	require.NotNil(t, root)
	for _, name := range []string{"kgqa.parse", "kgqa.execute"} {
		s := byName[name]
		require.NotNil(t, s, name)
		assert.Equal(t, root.SpanContext().SpanID(), s.Parent().SpanID())
		assert.Equal(t, root.SpanContext().TraceID(), s.SpanContext().TraceID())
		assert.Equal(t, codes.Ok, s.Status().Code)
	}

	var edges int
	for _, ev := range root.Events() {
		if ev.Name == "edge" {
			edges++
		}
	}
	assert.Equal(t, 2, edges)
}

func TestHookMarksFailedState(t *testing.T) {
	rec, tp := newRecorder()
	app := compile(t, true)
	app.SetTracer(graph.NewTracer(NewHook(tp)))

	_, err := app.Invoke(context.Background(), &run{})
	require.NoError(t, err)

	for _, s := range rec.Ended() {
		switch s.Name() {
		case "kgqa.parse":
			assert.Equal(t, codes.Ok, s.Status().Code)
		case "kgqa.execute", "kgqa.ask":
			assert.Equal(t, codes.Error, s.Status().Code)
			assert.Equal(t, "endpoint unreachable", s.Status().Description)
		}
	}
}

func TestHookIgnoresUnknownEnd(t *testing.T) {
	rec, tp := newRecorder()
	h := NewHook(tp)
	h.OnEvent(context.Background(), &graph.TraceSpan{ID: "missing", Event: graph.TraceEventNodeEnd})
	assert.Empty(t, rec.Ended())
}

func TestHTTPClientPropagatesContext(t *testing.T) {
	var traceparent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceparent = r.Header.Get("traceparent")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	rec, tp := newRecorder()
	ctx, span := tp.Tracer("test").Start(context.Background(), "parent")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := HTTPClient(nil, tp).Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	span.End()

	assert.Contains(t, traceparent, span.SpanContext().TraceID().String())
	assert.Len(t, rec.Ended(), 2)
}

func TestMiddlewareStartsServerSpan(t *testing.T) {
	rec, tp := newRecorder()
	h := Middleware("ask", tp)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/ask", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, rec.Ended(), 1)
}

func TestNewProviderDisabled(t *testing.T) {
	tp, err := NewProvider(context.Background(), Options{})
	require.NoError(t, err)
	assert.NoError(t, tp.Shutdown(context.Background()))
}
