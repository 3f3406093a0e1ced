// Package tracing exports pipeline runs to OpenTelemetry. Hook maps graph
// trace events to spans, NewProvider builds an OTLP backed provider, and the
// HTTP helpers instrument the SPARQL, LLM and server traffic.
package tracing
