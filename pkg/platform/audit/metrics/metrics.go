package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the audit publisher.
type Metrics struct {
	EventsEmitted   *prometheus.CounterVec
	EventsDropped   prometheus.Counter
	PersistFailures prometheus.Counter
	EmitDuration    prometheus.Histogram
}

// New registers the audit publisher metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EventsEmitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_audit_events_total",
			Help: "Audit events accepted by the publisher, by action",
		}, []string{"action"}),
		EventsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_audit_events_dropped_total",
			Help: "Audit events dropped because the async buffer was full",
		}),
		PersistFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_audit_persist_failures_total",
			Help: "Audit events the store failed to persist",
		}),
		EmitDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "gatekeeper_audit_emit_duration_seconds",
			Help:    "Time taken to emit an audit event (enqueue or sync write)",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
	}
}

func (m *Metrics) IncEmitted(action string) {
	if m != nil {
		m.EventsEmitted.WithLabelValues(action).Inc()
	}
}

func (m *Metrics) IncDropped() {
	if m != nil {
		m.EventsDropped.Inc()
	}
}

func (m *Metrics) IncPersistFailures() {
	if m != nil {
		m.PersistFailures.Inc()
	}
}

func (m *Metrics) ObserveEmitDuration(seconds float64) {
	if m != nil {
		m.EmitDuration.Observe(seconds)
	}
}
