// Package metrics exports Prometheus metrics for the question answering
// pipeline: per-stage durations and failures (as a graph.TraceHook), and
// per-question outcomes, degraded steps, applied corrections and row counts.
package metrics
