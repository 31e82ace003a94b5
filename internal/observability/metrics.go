package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the gateway.
type Metrics struct {
	UpstreamRequests *prometheus.CounterVec   // labels: provider, outcome={success,error,circuit_open}
	UpstreamDuration *prometheus.HistogramVec // labels: provider
	CircuitState     *prometheus.GaugeVec     // labels: provider; 0 closed, 1 half-open, 2 open

	SnapshotsStored prometheus.Counter
	SchedulerRuns   prometheus.Counter
}

// NewMetrics creates and registers all gateway metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.UpstreamRequests,
		m.UpstreamDuration,
		m.CircuitState,
		m.SnapshotsStored,
		m.SchedulerRuns,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "karwanua",
			Name:      "upstream_requests_total",
			Help:      "Upstream API requests by provider and outcome.",
		}, []string{"provider", "outcome"}),
		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "karwanua",
			Name:      "upstream_request_duration_seconds",
			Help:      "Upstream API request duration in seconds, retries included.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"provider"}),
		CircuitState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "karwanua",
			Name:      "circuit_state",
			Help:      "Circuit breaker state per provider: 0 closed, 1 half-open, 2 open.",
		}, []string{"provider"}),
		SnapshotsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "karwanua",
			Name:      "snapshots_stored_total",
			Help:      "Tracked-location snapshots written to the store.",
		}),
		SchedulerRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "karwanua",
			Name:      "scheduler_runs_total",
			Help:      "Completed tracked-location fetch jobs.",
		}),
	}
}

// ObserveUpstream records one upstream call. Safe on a nil receiver.
func (m *Metrics) ObserveUpstream(provider, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamRequests.WithLabelValues(provider, outcome).Inc()
	m.UpstreamDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// SetCircuitState records a breaker transition. Safe on a nil receiver.
func (m *Metrics) SetCircuitState(provider string, state float64) {
	if m == nil {
		return
	}
	m.CircuitState.WithLabelValues(provider).Set(state)
}
