// Package graph provides the typed state machine that drives the question
// answering pipeline, plus the retry policy used around external calls.
//
// A StateGraph[S] is a set of named nodes, each a NodeFunc[S], connected by
// static edges or by conditional edges evaluated on the state a node returns.
// Execution is strictly sequential: exactly one node runs at a time and the run
// ends when an edge leads to END.
//
//	g := graph.NewStateGraph[*State]()
//	g.AddNode("synthesize", "Generate SPARQL", synthesize)
//	g.AddNode("execute", "Run the query", execute)
//	g.AddConditionalEdge("synthesize", routeOrEnd("execute"), "execute", graph.END)
//	g.AddEdge("execute", graph.END)
//	g.SetEntryPoint("synthesize")
//
//	app, err := g.Compile()
//	final, err := app.Invoke(ctx, &State{Question: q})
//
// # Tracing
//
// A Tracer attached with SetTracer emits graph, node and edge events to its
// TraceHooks. Metrics, OpenTelemetry spans and CLI step printing are all hooks.
// SpanRecorder collects events for tests.
//
// # Retry
//
// Retry wraps a single external call with bounded attempts and exponential
// backoff with jitter. Graph nodes are never retried by the runnable itself.
//
// # Visualization
//
// Exporter.DrawMermaid renders the compiled graph as a Mermaid flowchart.
package graph
