// Package issuers tracks which issuers are trusted for which claim topics.
package issuers

import (
	"context"
	"log/slog"
	"strings"

	"gatekeeper/internal/admin"
	"gatekeeper/internal/identity/models"
	"gatekeeper/internal/platform/kv"
	"gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/audit"
)

const (
	nsTrusted      = "trusted"
	nsIssuerTopics = "issuer_topics"
	nsTopicIssuers = "topic_issuers"
	nsIssuers      = "issuers"
)

type Service struct {
	store   kv.Store
	guard   *admin.Guard
	auditor *audit.Logger
	logger  *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func New(store kv.Store, guard *admin.Guard, auditor *audit.Logger, opts ...Option) *Service {
	s := &Service{store: store, guard: guard, auditor: auditor, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func trustKey(issuer domain.Address, topic domain.TopicID) string {
	return kv.Key(nsTrusted, issuer, topic)
}

// AddTrustedIssuer trusts issuer for topics, in addition to any topics it is
// already trusted for.
func (s *Service) AddTrustedIssuer(ctx context.Context, issuer domain.Address, topics []domain.TopicID) error {
	if issuer.IsNil() || len(topics) == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "issuer and at least one topic are required")
	}
	return s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.guard.Require(ctx); err != nil {
			return err
		}
		added, err := s.trust(ctx, issuer, topics)
		if err != nil {
			return err
		}
		if len(added) == 0 {
			return nil
		}
		return s.auditor.Record(ctx, audit.Event{
			Action:     string(audit.EventIssuerAdded),
			Subject:    issuer.String(),
			Attributes: map[string]string{"topics": joinTopics(added)},
		})
	})
}

// RemoveTrustedIssuer drops issuer and every topic it was trusted for.
func (s *Service) RemoveTrustedIssuer(ctx context.Context, issuer domain.Address) error {
	return s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.guard.Require(ctx); err != nil {
			return err
		}
		current, err := s.IssuerTopics(ctx, issuer)
		if err != nil {
			return err
		}
		if len(current) == 0 {
			return dErrors.New(dErrors.CodeNotFound, "issuer not found")
		}
		if err := s.distrust(ctx, issuer, current); err != nil {
			return err
		}
		return s.auditor.Record(ctx, audit.Event{
			Action:     string(audit.EventIssuerRemoved),
			Subject:    issuer.String(),
			Attributes: map[string]string{"topics": joinTopics(current)},
		})
	})
}

// UpdateIssuerTopics replaces the topic set of an existing issuer.
func (s *Service) UpdateIssuerTopics(ctx context.Context, issuer domain.Address, topics []domain.TopicID) error {
	if len(topics) == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "at least one topic is required; remove the issuer instead")
	}
	return s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.guard.Require(ctx); err != nil {
			return err
		}
		current, err := s.IssuerTopics(ctx, issuer)
		if err != nil {
			return err
		}
		if len(current) == 0 {
			return dErrors.New(dErrors.CodeNotFound, "issuer not found")
		}
		want := make(map[domain.TopicID]bool, len(topics))
		for _, t := range topics {
			want[t] = true
		}
		var drop []domain.TopicID
		for _, t := range current {
			if !want[t] {
				drop = append(drop, t)
			}
		}
		if err := s.distrust(ctx, issuer, drop); err != nil {
			return err
		}
		if _, err := s.trust(ctx, issuer, topics); err != nil {
			return err
		}
		return s.auditor.Record(ctx, audit.Event{
			Action:     string(audit.EventIssuerUpdated),
			Subject:    issuer.String(),
			Attributes: map[string]string{"topics": joinTopics(topics)},
		})
	})
}

func (s *Service) trust(ctx context.Context, issuer domain.Address, topics []domain.TopicID) ([]domain.TopicID, error) {
	var added []domain.TopicID
	for _, t := range topics {
		if t == 0 {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "topic cannot be zero")
		}
		isNew, err := kv.SetAdd(ctx, s.store, kv.Key(nsIssuerTopics, issuer), t.String())
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to index issuer topics")
		}
		if !isNew {
			continue
		}
		if err := s.store.Put(ctx, trustKey(issuer, t), []byte{1}); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store trust entry")
		}
		if _, err := kv.SetAdd(ctx, s.store, kv.Key(nsTopicIssuers, t), issuer.String()); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to index topic issuers")
		}
		added = append(added, t)
	}
	if _, err := kv.SetAdd(ctx, s.store, kv.Key(nsIssuers), issuer.String()); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to index issuers")
	}
	return added, nil
}

func (s *Service) distrust(ctx context.Context, issuer domain.Address, topics []domain.TopicID) error {
	for _, t := range topics {
		if err := s.store.Delete(ctx, trustKey(issuer, t)); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete trust entry")
		}
		if _, err := kv.SetRemove(ctx, s.store, kv.Key(nsIssuerTopics, issuer), t.String()); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to index issuer topics")
		}
		if _, err := kv.SetRemove(ctx, s.store, kv.Key(nsTopicIssuers, t), issuer.String()); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to index topic issuers")
		}
	}
	remaining, err := kv.Has(ctx, s.store, kv.Key(nsIssuerTopics, issuer))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read issuer topics")
	}
	if !remaining {
		if _, err := kv.SetRemove(ctx, s.store, kv.Key(nsIssuers), issuer.String()); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to index issuers")
		}
	}
	return nil
}

// IsTrustedIssuer reports whether issuer is trusted for topic.
func (s *Service) IsTrustedIssuer(ctx context.Context, issuer domain.Address, topic domain.TopicID) (bool, error) {
	ok, err := kv.Has(ctx, s.store, trustKey(issuer, topic))
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read trust entry")
	}
	return ok, nil
}

// IssuerTopics returns the topics issuer is trusted for, ascending.
func (s *Service) IssuerTopics(ctx context.Context, issuer domain.Address) ([]domain.TopicID, error) {
	members, err := kv.SetMembers(ctx, s.store, kv.Key(nsIssuerTopics, issuer))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read issuer topics")
	}
	topics, err := models.TopicsFromMembers(members)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "corrupt issuer topic index")
	}
	return topics, nil
}

// IssuersForTopic returns the issuers trusted for topic, sorted.
func (s *Service) IssuersForTopic(ctx context.Context, topic domain.TopicID) ([]domain.Address, error) {
	return s.addresses(ctx, kv.Key(nsTopicIssuers, topic))
}

// ListIssuers returns every issuer trusted for at least one topic.
func (s *Service) ListIssuers(ctx context.Context) ([]domain.Address, error) {
	return s.addresses(ctx, kv.Key(nsIssuers))
}

func (s *Service) addresses(ctx context.Context, key string) ([]domain.Address, error) {
	members, err := kv.SetMembers(ctx, s.store, key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read issuer index")
	}
	out := make([]domain.Address, len(members))
	for i, m := range members {
		out[i] = domain.Address(m)
	}
	return out, nil
}

func joinTopics(topics []domain.TopicID) string {
	parts := make([]string, len(topics))
	for i, t := range topics {
		parts[i] = t.String()
	}
	return strings.Join(parts, ",")
}
