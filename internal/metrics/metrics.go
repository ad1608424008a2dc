// Package metrics provides Prometheus-based metrics recording for the chat
// engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder records counters and histograms for message generation, quota
// decisions, the side-effect pipeline, and gateway connections.
type Recorder struct {
	generationsTotal   *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	generationTokens   *prometheus.CounterVec
	quotaRejections    *prometheus.CounterVec
	pipelineJobs       *prometheus.CounterVec
	pipelineDuration   *prometheus.HistogramVec
	wsConnections      prometheus.Gauge
	wsEvents           *prometheus.CounterVec
}

// NewRecorder registers all collectors on reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		generationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chat_generations_total",
				Help: "Total number of reply generations by provider, model, and status",
			},
			[]string{"provider", "model", "status", "error_type"},
		),
		generationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chat_generation_duration_seconds",
				Help:    "Duration of reply generations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "model"},
		),
		generationTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chat_generation_tokens_total",
				Help: "Total tokens reported by providers for completed generations",
			},
			[]string{"provider", "model"},
		),
		quotaRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chat_quota_rejections_total",
				Help: "Total messages rejected before generation, by reason",
			},
			[]string{"reason"},
		),
		pipelineJobs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_jobs_total",
				Help: "Total side-effect jobs processed by kind and status",
			},
			[]string{"kind", "status"},
		),
		pipelineDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_job_duration_seconds",
				Help:    "Duration of side-effect jobs in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		wsConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ws_connections",
				Help: "Currently open gateway connections",
			},
		),
		wsEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ws_events_total",
				Help: "Total gateway events pushed to clients by type",
			},
			[]string{"type"},
		),
	}
}

// ObserveGeneration records one generation attempt outcome.
func (r *Recorder) ObserveGeneration(provider, model, status, errorType string, tokens int, duration time.Duration) {
	r.generationsTotal.WithLabelValues(provider, model, status, errorType).Inc()
	r.generationDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	if tokens > 0 {
		r.generationTokens.WithLabelValues(provider, model).Add(float64(tokens))
	}
}

// IncQuotaRejection counts a message rejected before generation.
func (r *Recorder) IncQuotaRejection(reason string) {
	r.quotaRejections.WithLabelValues(reason).Inc()
}

// ObserveJob records a completed side-effect job.
func (r *Recorder) ObserveJob(kind, status string, duration time.Duration) {
	r.pipelineJobs.WithLabelValues(kind, status).Inc()
	r.pipelineDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// ConnOpened and ConnClosed track the gateway connection gauge.
func (r *Recorder) ConnOpened() { r.wsConnections.Inc() }

func (r *Recorder) ConnClosed() { r.wsConnections.Dec() }

// IncEvent counts an event pushed to a gateway client.
func (r *Recorder) IncEvent(eventType string) {
	r.wsEvents.WithLabelValues(eventType).Inc()
}
