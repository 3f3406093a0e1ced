package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
)

// Options configures the tracer provider.
type Options struct {
	Enabled        bool
	OTLPEndpoint   string
	ServiceName    string
	ServiceVersion string
	SampleRate     float64
}

// NewProvider builds a tracer provider. When tracing is disabled or no OTLP
// endpoint is set the provider records nothing outside the process.
func NewProvider(ctx context.Context, opts Options) (*sdktrace.TracerProvider, error) {
	if !opts.Enabled || opts.OTLPEndpoint == "" {
		return sdktrace.NewTracerProvider(), nil
	}

	exporter, err := otlptracegrpc.New(
		ctx,
		otlptracegrpc.WithEndpoint(opts.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create otlp trace exporter: %w", err)
	}

	name := opts.ServiceName
	if name == "" {
		name = "kgqa"
	}
	res, err := resource.New(
		ctx,
		resource.WithAttributes(
			semconv.ServiceName(name),
			semconv.ServiceVersion(opts.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create trace resource: %w", err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(opts.SampleRate))),
		sdktrace.WithBatcher(exporter),
	), nil
}
