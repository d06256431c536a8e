package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	RelayRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "probdesk",
			Subsystem: "relay",
			Name:      "requests_total",
			Help:      "Relay requests by outcome (streamed, passthrough, failed, limited)",
		},
		[]string{"outcome"},
	)

	RelayBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "probdesk",
			Subsystem: "relay",
			Name:      "bytes_total",
			Help:      "Bytes piped from upstream to clients",
		},
	)

	RelayInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "probdesk",
			Subsystem: "relay",
			Name:      "in_flight",
			Help:      "Relays currently streaming",
		},
	)

	RelayDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "probdesk",
			Subsystem: "relay",
			Name:      "duration_seconds",
			Help:      "Relay duration from request to end of stream",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"outcome"},
	)

	DashboardLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "probdesk",
			Subsystem: "dashboard",
			Name:      "latency_seconds",
			Help:      "Latency of dashboard endpoints",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	DashboardErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "probdesk",
			Subsystem: "dashboard",
			Name:      "errors_total",
			Help:      "Errors by dashboard endpoint",
		},
		[]string{"endpoint"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(RelayRequests, RelayBytes, RelayInFlight, RelayDuration, DashboardLatency, DashboardErrors)
	})
}
