// Package telemetry wires structured logging and metrics for the query
// pipeline: tint-backed slog console output and Prometheus counters and
// latency histograms.
package telemetry

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
)

// NewLogger builds the process-wide slog.Logger. debug enables Debug-level
// output; when false the minimum level is Info.
func NewLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	h := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	})
	return slog.New(h)
}

// Metrics groups the Prometheus collectors the pipeline publishes. A single
// Metrics is constructed at process startup and threaded through the
// coordinator; per-request code only calls the recording methods below.
type Metrics struct {
	PipelineRequests   *prometheus.CounterVec
	PipelineLatency    *prometheus.HistogramVec
	GenerationAttempts prometheus.Histogram
	TrainingRuns       *prometheus.CounterVec
	ValidationRejects  *prometheus.CounterVec
}

// NewMetrics registers the pipeline's collectors against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PipelineRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "queryengine",
			Name:      "pipeline_requests_total",
			Help:      "Pipeline runs by terminal outcome kind.",
		}, []string{"outcome"}),
		PipelineLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "queryengine",
			Name:      "pipeline_latency_seconds",
			Help:      "End-to-end pipeline latency by outcome.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"outcome"}),
		GenerationAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "queryengine",
			Name:      "generation_attempts",
			Help:      "Number of self-correction attempts per request.",
			Buckets:   prometheus.LinearBuckets(1, 1, 5),
		}),
		TrainingRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "queryengine",
			Name:      "schema_training_runs_total",
			Help:      "Schema training runs by kind (full, incremental, skipped).",
		}, []string{"kind"}),
		ValidationRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "queryengine",
			Name:      "validation_rejections_total",
			Help:      "Validator rejections by layer.",
		}, []string{"layer"}),
	}
	reg.MustRegister(m.PipelineRequests, m.PipelineLatency, m.GenerationAttempts, m.TrainingRuns, m.ValidationRejects)
	return m
}

// ObservePipeline records one terminal pipeline outcome.
func (m *Metrics) ObservePipeline(outcome string, elapsed time.Duration, attempts int) {
	if m == nil {
		return
	}
	m.PipelineRequests.WithLabelValues(outcome).Inc()
	m.PipelineLatency.WithLabelValues(outcome).Observe(elapsed.Seconds())
	m.GenerationAttempts.Observe(float64(attempts))
}

// ObserveTraining records one schema-training run.
func (m *Metrics) ObserveTraining(kind string) {
	if m == nil {
		return
	}
	m.TrainingRuns.WithLabelValues(kind).Inc()
}

// ObserveValidationReject records one validator rejection.
func (m *Metrics) ObserveValidationReject(layer string) {
	if m == nil {
		return
	}
	m.ValidationRejects.WithLabelValues(layer).Inc()
}
