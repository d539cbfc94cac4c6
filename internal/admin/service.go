package admin

import (
	"context"
	"time"

	"gatekeeper/pkg/domain"
	"gatekeeper/pkg/platform/audit"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// StateReader is the read side of the orchestrator and identity registries.
type StateReader interface {
	ListBoundAssets(ctx context.Context) ([]domain.AssetID, error)
	EnabledModules(ctx context.Context) ([]domain.ModuleID, error)
	RequiredTopics(ctx context.Context) ([]domain.TopicID, error)
	ListIssuers(ctx context.Context) ([]domain.Address, error)
}

// PendingCounter reports undelivered outbox entries.
type PendingCounter interface {
	CountPending(ctx context.Context) (int64, error)
}

// Service provides operator-level monitoring of the engine.
type Service struct {
	state  StateReader
	events audit.Store
	outbox PendingCounter
}

// NewService creates the operator service. outbox may be nil when audit
// events are not relayed through a transactional outbox.
func NewService(state StateReader, events audit.Store, outbox PendingCounter) *Service {
	return &Service{
		state:  state,
		events: events,
		outbox: outbox,
	}
}

// Stats summarizes the configured compliance state.
type Stats struct {
	BoundAssets    []domain.AssetID  `json:"bound_assets"`
	EnabledModules []domain.ModuleID `json:"enabled_modules"`
	RequiredTopics []domain.TopicID  `json:"required_topics"`
	TrustedIssuers int               `json:"trusted_issuers"`
	OutboxPending  *int64            `json:"outbox_pending,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
}

func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	assets, err := s.state.ListBoundAssets(ctx)
	if err != nil {
		return nil, err
	}
	modules, err := s.state.EnabledModules(ctx)
	if err != nil {
		return nil, err
	}
	topics, err := s.state.RequiredTopics(ctx)
	if err != nil {
		return nil, err
	}
	issuers, err := s.state.ListIssuers(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		BoundAssets:    assets,
		EnabledModules: modules,
		RequiredTopics: topics,
		TrustedIssuers: len(issuers),
		Timestamp:      time.Now().UTC(),
	}
	if s.outbox != nil {
		pending, err := s.outbox.CountPending(ctx)
		if err != nil {
			return nil, err
		}
		stats.OutboxPending = &pending
	}
	return stats, nil
}

// OutboxStatus reports relay backlog. Enabled is false without an outbox.
type OutboxStatus struct {
	Enabled bool  `json:"enabled"`
	Pending int64 `json:"pending"`
}

func (s *Service) GetOutboxStatus(ctx context.Context) (*OutboxStatus, error) {
	if s.outbox == nil {
		return &OutboxStatus{}, nil
	}
	pending, err := s.outbox.CountPending(ctx)
	if err != nil {
		return nil, err
	}
	return &OutboxStatus{Enabled: true, Pending: pending}, nil
}

// GetRecentAuditEvents returns the newest events matching filter. The limit
// is clamped to a sane page size.
func (s *Service) GetRecentAuditEvents(ctx context.Context, filter audit.Filter) ([]audit.Event, error) {
	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultAuditLimit
	case filter.Limit > maxAuditLimit:
		filter.Limit = maxAuditLimit
	}
	return s.events.ListRecent(ctx, filter)
}
