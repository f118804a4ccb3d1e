// Package metrics exposes Prometheus instrumentation for the interview
// coordinator, following the MetricsRegistry-plus-MustRegister pattern used
// across the example pack's HTTP-facing services.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric the coordinator exposes on /metrics.
type Registry struct {
	DirectivesTotal      *prometheus.CounterVec
	CollectionWindow     prometheus.Histogram
	LLMCallDuration      *prometheus.HistogramVec
	LLMCallFailuresTotal *prometheus.CounterVec
	ActiveSessions       prometheus.Gauge
	TopicsCompletedTotal prometheus.Counter
}

// NewRegistry builds and registers every metric with reg. Pass
// prometheus.NewRegistry() in tests to avoid colliding with the global
// default registry across parallel test runs.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		DirectivesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "interview_directives_total",
				Help: "Total number of coordinator directives by kind and decision source",
			},
			[]string{"directive", "source"},
		),
		CollectionWindow: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "interview_collection_window_seconds",
				Help:    "Duration from a student response opening a collection window to its close",
				Buckets: []float64{0.1, 0.25, 0.5, 0.75, 0.8, 0.9, 1.0, 1.5, 2.0},
			},
		),
		LLMCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "interview_llm_call_duration_seconds",
				Help:    "Duration of LLM provider calls by requesting agent",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"agent"},
		),
		LLMCallFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "interview_llm_call_failures_total",
				Help: "Total LLM call failures by requesting agent and reason",
			},
			[]string{"agent", "reason"},
		),
		ActiveSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "interview_active_sessions",
				Help: "Number of interview sessions currently in progress (0 or 1 for this single-session process)",
			},
		),
		TopicsCompletedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "interview_topics_completed_total",
				Help: "Total number of topics completed across all sessions",
			},
		),
	}

	reg.MustRegister(
		r.DirectivesTotal,
		r.CollectionWindow,
		r.LLMCallDuration,
		r.LLMCallFailuresTotal,
		r.ActiveSessions,
		r.TopicsCompletedTotal,
	)

	return r
}

// RecordDirective records one coordinator directive by kind and source.
func (r *Registry) RecordDirective(directive, source string) {
	r.DirectivesTotal.WithLabelValues(directive, source).Inc()
}

// RecordCollectionWindow records how long a collection window stayed open.
func (r *Registry) RecordCollectionWindow(d time.Duration) {
	r.CollectionWindow.Observe(d.Seconds())
}

// RecordLLMCall records the latency of one LLM call.
func (r *Registry) RecordLLMCall(agent string, d time.Duration) {
	r.LLMCallDuration.WithLabelValues(agent).Observe(d.Seconds())
}

// RecordLLMFailure records one failed LLM call.
func (r *Registry) RecordLLMFailure(agent, reason string) {
	r.LLMCallFailuresTotal.WithLabelValues(agent, reason).Inc()
}

// Handler returns the HTTP handler serving this registry's metrics in the
// Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
