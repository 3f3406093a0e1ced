package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/smallnest/kgqa/graph"
	"github.com/smallnest/kgqa/pipeline"
)

const namespace = "kgqa"

// Collector exports pipeline metrics. It is a graph.TraceHook for per-stage
// timings and observes finished records for outcomes.
type Collector struct {
	stageDuration *prometheus.HistogramVec
	stageFailures *prometheus.CounterVec
	questions     *prometheus.CounterVec
	degraded      *prometheus.CounterVec
	corrections   *prometheus.CounterVec
	resultRows    prometheus.Histogram
	runDuration   prometheus.Histogram
}

var _ graph.TraceHook = (*Collector)(nil)

// New registers the metrics with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of each pipeline stage in seconds",
				Buckets:   []float64{.005, .025, .1, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"node"},
		),
		stageFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_failures_total",
				Help:      "Total number of runs that failed in a stage",
			},
			[]string{"node"},
		),
		questions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "questions_total",
				Help:      "Total number of answered questions by outcome",
			},
			[]string{"outcome", "language"},
		),
		degraded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "degraded_total",
				Help:      "Total number of degraded steps (non-JSON parse, templated answer)",
			},
			[]string{"kind"},
		),
		corrections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "corrections_total",
				Help:      "Total number of applied query corrections by rule",
			},
			[]string{"rule"},
		),
		resultRows: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "result_rows",
			Help:      "Number of rows returned by the graph store per question",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 6),
		}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "question_duration_seconds",
			Help:      "End-to-end duration of a question in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// OnEvent implements graph.TraceHook.
func (c *Collector) OnEvent(_ context.Context, span *graph.TraceSpan) {
	switch span.Event {
	case graph.TraceEventNodeEnd, graph.TraceEventNodeError:
	default:
		return
	}
	c.stageDuration.WithLabelValues(span.NodeName).Observe(span.Duration.Seconds())

	failed := span.Error != nil
	if s, ok := span.State.(*pipeline.State); ok && s.Err != nil {
		failed = true
	}
	if failed {
		c.stageFailures.WithLabelValues(span.NodeName).Inc()
	}
}

// ObserveRecord counts a finished question.
func (c *Collector) ObserveRecord(rec *pipeline.AnswerRecord) {
	if rec == nil {
		return
	}
	outcome := "success"
	if !rec.Success {
		outcome = "failed"
	}
	c.questions.WithLabelValues(outcome, rec.Language.String()).Inc()
	c.runDuration.Observe(rec.Duration.Seconds())

	if rec.Query != "" && !rec.Parsed {
		c.degraded.WithLabelValues("parse").Inc()
	}
	if rec.AnswerDegraded {
		c.degraded.WithLabelValues("answer").Inc()
	}
	for _, rule := range rec.Corrections {
		c.corrections.WithLabelValues(rule).Inc()
	}
	if rec.Success {
		c.resultRows.Observe(float64(rec.ResultCount))
	}
}
