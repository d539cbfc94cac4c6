// Package metrics exposes gauges describing the configured compliance state,
// refreshed periodically from the services that own it.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"gatekeeper/pkg/domain"
)

// StateSource is the read side of the orchestrator and identity services.
type StateSource interface {
	ListBoundAssets(ctx context.Context) ([]domain.AssetID, error)
	EnabledModules(ctx context.Context) ([]domain.ModuleID, error)
	Available() []domain.ModuleID
	RequiredTopics(ctx context.Context) ([]domain.TopicID, error)
	ListIssuers(ctx context.Context) ([]domain.Address, error)
}

// Metrics holds the compliance state gauges.
type Metrics struct {
	BoundAssets    prometheus.Gauge
	ModuleEnabled  *prometheus.GaugeVec
	RequiredTopics prometheus.Gauge
	TrustedIssuers prometheus.Gauge
	RefreshErrors  prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		BoundAssets: f.NewGauge(prometheus.GaugeOpts{
			Name: "gatekeeper_bound_assets",
			Help: "Number of assets bound to the compliance engine",
		}),
		ModuleEnabled: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gatekeeper_module_enabled",
			Help: "1 if the rule module is enabled, 0 if only available",
		}, []string{"module"}),
		RequiredTopics: f.NewGauge(prometheus.GaugeOpts{
			Name: "gatekeeper_required_topics",
			Help: "Number of claim topics every holder must satisfy",
		}),
		TrustedIssuers: f.NewGauge(prometheus.GaugeOpts{
			Name: "gatekeeper_trusted_issuers",
			Help: "Number of trusted claim issuers",
		}),
		RefreshErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_state_refresh_errors_total",
			Help: "Failed state gauge refreshes",
		}),
	}
}

// Refresh reads the current state once and updates every gauge.
func (m *Metrics) Refresh(ctx context.Context, src StateSource) error {
	assets, err := src.ListBoundAssets(ctx)
	if err != nil {
		return m.fail(err)
	}
	enabled, err := src.EnabledModules(ctx)
	if err != nil {
		return m.fail(err)
	}
	topics, err := src.RequiredTopics(ctx)
	if err != nil {
		return m.fail(err)
	}
	issuers, err := src.ListIssuers(ctx)
	if err != nil {
		return m.fail(err)
	}

	m.BoundAssets.Set(float64(len(assets)))
	m.RequiredTopics.Set(float64(len(topics)))
	m.TrustedIssuers.Set(float64(len(issuers)))

	on := make(map[domain.ModuleID]bool, len(enabled))
	for _, id := range enabled {
		on[id] = true
	}
	for _, id := range src.Available() {
		v := 0.0
		if on[id] {
			v = 1
		}
		m.ModuleEnabled.WithLabelValues(id.String()).Set(v)
	}
	return nil
}

func (m *Metrics) fail(err error) error {
	m.RefreshErrors.Inc()
	return err
}

// Run refreshes the gauges every interval until ctx is cancelled.
func (m *Metrics) Run(ctx context.Context, src StateSource, interval time.Duration, logger *slog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := m.Refresh(ctx, src); err != nil && ctx.Err() == nil {
			logger.WarnContext(ctx, "state metrics refresh failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
