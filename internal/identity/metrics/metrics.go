package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds identity registry metrics.
type Metrics struct {
	Verifications *prometheus.CounterVec
	ClaimChanges  *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_identity_verifications_total",
			Help: "Identity verification evaluations by result",
		}, []string{"result"}),
		ClaimChanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_identity_claim_changes_total",
			Help: "Claim store mutations by operation",
		}, []string{"operation"}),
	}
}

func (m *Metrics) ObserveVerification(verified bool) {
	if m == nil {
		return
	}
	result := "unverified"
	if verified {
		result = "verified"
	}
	m.Verifications.WithLabelValues(result).Inc()
}

func (m *Metrics) IncClaimChange(operation string) {
	if m != nil {
		m.ClaimChanges.WithLabelValues(operation).Inc()
	}
}
