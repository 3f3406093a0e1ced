package tracing

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var propagator = propagation.NewCompositeTextMapPropagator(
	propagation.TraceContext{},
	propagation.Baggage{},
)

// HTTPClient returns a copy of base whose transport records client spans
// and propagates the trace context. A nil base starts from a zero client.
func HTTPClient(base *http.Client, tp trace.TracerProvider) *http.Client {
	c := &http.Client{}
	if base != nil {
		*c = *base
	}
	rt := c.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	c.Transport = otelhttp.NewTransport(rt,
		otelhttp.WithTracerProvider(tp),
		otelhttp.WithPropagators(propagator),
	)
	return c
}

// Middleware wraps a handler so each request runs in a server span.
func Middleware(operation string, tp trace.TracerProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(
			next,
			operation,
			otelhttp.WithPropagators(propagator),
			otelhttp.WithTracerProvider(tp),
		)
	}
}
