package metrics

import (
	"ProbDesk/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	samplesIngested *prometheus.CounterVec
	samplesRejected *prometheus.CounterVec
	alertsTotal     *prometheus.CounterVec
	divergence      *prometheus.GaugeVec
	errorsTotal     *prometheus.CounterVec
	latency         *prometheus.HistogramVec
}

// New creates a recorder on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the collectors on reg; tests pass a fresh registry.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		samplesIngested: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "probdesk_samples_ingested_total",
				Help: "Total number of probability samples accepted",
			},
			[]string{"source"},
		),
		samplesRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "probdesk_samples_rejected_total",
				Help: "Total number of probability samples rejected",
			},
			[]string{"source", "reason"},
		),
		alertsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "probdesk_alerts_total",
				Help: "Divergence alerts produced by severity",
			},
			[]string{"severity"},
		),
		divergence: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "probdesk_market_divergence",
				Help: "Latest signed divergence (ai - implied) per market",
			},
			[]string{"market_id"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "probdesk_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "probdesk_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordSampleIngested(source string) {
	r.samplesIngested.WithLabelValues(source).Inc()
}

func (r *Recorder) RecordSampleRejected(source, reason string) {
	r.samplesRejected.WithLabelValues(source, reason).Inc()
}

func (r *Recorder) RecordAlert(severity models.Severity) {
	r.alertsTotal.WithLabelValues(string(severity)).Inc()
}

// RecordDivergence records the latest divergence for a market.
func (r *Recorder) RecordDivergence(marketID string, divergence float64) {
	r.divergence.WithLabelValues(marketID).Set(divergence)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
