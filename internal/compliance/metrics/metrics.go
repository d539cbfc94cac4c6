package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds compliance engine metrics.
type Metrics struct {
	Checks         *prometheus.CounterVec
	CheckDuration  *prometheus.HistogramVec
	NotifyDuration *prometheus.HistogramVec
	TxDuration     *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Checks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_compliance_checks_total",
			Help: "Pre-transfer check outcomes by deciding module",
		}, []string{"module", "result"}),
		CheckDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gatekeeper_compliance_check_duration_seconds",
			Help:    "Latency of a full pre-transfer check",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		}, []string{"kind"}),
		NotifyDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gatekeeper_compliance_notify_duration_seconds",
			Help:    "Latency of post-operation module notification",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		}, []string{"hook"}),
		TxDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gatekeeper_ledger_tx_duration_seconds",
			Help:    "Duration of ledger units of work by operation and outcome",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "outcome"}),
	}
}

// ObserveCheck records the outcome. module is empty for an allowed check.
func (m *Metrics) ObserveCheck(kind, module string, allowed bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "denied"
	if allowed {
		result, module = "allowed", "all"
	}
	m.Checks.WithLabelValues(module, result).Inc()
	m.CheckDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Metrics) ObserveNotify(hook string, d time.Duration) {
	if m != nil {
		m.NotifyDuration.WithLabelValues(hook).Observe(d.Seconds())
	}
}

func (m *Metrics) ObserveTx(operation, outcome string, d time.Duration) {
	if m != nil {
		m.TxDuration.WithLabelValues(operation, outcome).Observe(d.Seconds())
	}
}
