// Package registry derives holder verification from claims, trusted issuers
// and the required topic list, and keeps a cached identity record per holder.
package registry

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"gatekeeper/internal/admin"
	"gatekeeper/internal/identity/metrics"
	"gatekeeper/internal/identity/models"
	"gatekeeper/internal/platform/kv"
	"gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/audit"
	"gatekeeper/pkg/requestcontext"
)

const nsIdentity = "identity"

type Service struct {
	store   kv.Store
	guard   *admin.Guard
	claims  ClaimReader
	issuers IssuerTrust
	topics  TopicSource
	auditor *audit.Logger
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func New(
	store kv.Store,
	guard *admin.Guard,
	claims ClaimReader,
	issuers IssuerTrust,
	topics TopicSource,
	auditor *audit.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		store:   store,
		guard:   guard,
		claims:  claims,
		issuers: issuers,
		topics:  topics,
		auditor: auditor,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func identityKey(holder domain.Address) string {
	return kv.Key(nsIdentity, holder)
}

// IsVerified requires a valid claim from a trusted issuer for every required
// topic, in list order, and stops at the first topic that fails. With no
// required topics every holder is verified.
func (s *Service) IsVerified(ctx context.Context, holder domain.Address) (bool, error) {
	required, err := s.topics.RequiredTopics(ctx)
	if err != nil {
		return false, err
	}
	for _, topic := range required {
		ok, err := s.HasValidClaim(ctx, holder, topic)
		if err != nil {
			return false, err
		}
		if !ok {
			s.logger.DebugContext(ctx, "holder missing required claim",
				"holder", holder.String(), "topic", topic.String())
			s.metrics.ObserveVerification(false)
			return false, nil
		}
	}
	s.metrics.ObserveVerification(true)
	return true, nil
}

// HasValidClaim reports whether holder has a valid claim for topic from an
// issuer currently trusted for that topic.
func (s *Service) HasValidClaim(ctx context.Context, holder domain.Address, topic domain.TopicID) (bool, error) {
	_, err := s.ValidClaim(ctx, holder, topic)
	if dErrors.HasCode(err, dErrors.CodeNotFound) {
		return false, nil
	}
	return err == nil, err
}

// ValidClaim returns the trusted, valid claim for (holder, topic), or
// NotFound when there is none.
func (s *Service) ValidClaim(ctx context.Context, holder domain.Address, topic domain.TopicID) (*models.Claim, error) {
	claim, err := s.claims.GetClaim(ctx, holder, topic)
	if err != nil {
		return nil, err
	}
	if !claim.IsValid(requestcontext.Now(ctx)) {
		return nil, dErrors.New(dErrors.CodeNotFound, "no valid claim")
	}
	trusted, err := s.issuers.IsTrustedIssuer(ctx, claim.Issuer, topic)
	if err != nil {
		return nil, err
	}
	if !trusted {
		return nil, dErrors.New(dErrors.CodeNotFound, "claim issuer not trusted")
	}
	return claim, nil
}

// Register records holder's identity, replacing any existing record. An
// empty identityID is generated.
func (s *Service) Register(ctx context.Context, holder domain.Address, identityID string) (*models.Identity, error) {
	if holder.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "holder is required")
	}
	if identityID == "" {
		identityID = uuid.NewString()
	}
	var record *models.Identity
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.guard.Require(ctx); err != nil {
			return err
		}
		verified, err := s.IsVerified(ctx, holder)
		if err != nil {
			return err
		}
		record = &models.Identity{
			Holder:     holder,
			IdentityID: identityID,
			Verified:   verified,
			VerifiedAt: requestcontext.Now(ctx),
		}
		if err := kv.PutJSON(ctx, s.store, identityKey(holder), record); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store identity")
		}
		return s.auditor.Record(ctx, audit.Event{
			Action:  string(audit.EventIdentityRegistered),
			Subject: holder.String(),
			Attributes: map[string]string{
				"identity_id": identityID,
				"verified":    strconv.FormatBool(verified),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Revoke deletes holder's identity record. Unknown holders are ignored.
func (s *Service) Revoke(ctx context.Context, holder domain.Address) error {
	return s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.guard.Require(ctx); err != nil {
			return err
		}
		exists, err := kv.Has(ctx, s.store, identityKey(holder))
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read identity")
		}
		if !exists {
			return nil
		}
		if err := s.store.Delete(ctx, identityKey(holder)); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete identity")
		}
		return s.auditor.Record(ctx, audit.Event{
			Action:  string(audit.EventIdentityRevoked),
			Subject: holder.String(),
		})
	})
}

// UpdateVerificationStatus recomputes and caches holder's verification.
func (s *Service) UpdateVerificationStatus(ctx context.Context, holder domain.Address) (bool, error) {
	var verified bool
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.guard.Require(ctx); err != nil {
			return err
		}
		record, err := s.Identity(ctx, holder)
		if err != nil {
			return err
		}
		verified, err = s.IsVerified(ctx, holder)
		if err != nil {
			return err
		}
		record.Verified = verified
		record.VerifiedAt = requestcontext.Now(ctx)
		if err := kv.PutJSON(ctx, s.store, identityKey(holder), record); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store identity")
		}
		return s.auditor.Record(ctx, audit.Event{
			Action:     string(audit.EventIdentityRefreshed),
			Subject:    holder.String(),
			Attributes: map[string]string{"verified": strconv.FormatBool(verified)},
		})
	})
	return verified, err
}

// Identity returns the cached record for holder, or NotFound.
func (s *Service) Identity(ctx context.Context, holder domain.Address) (*models.Identity, error) {
	var record models.Identity
	found, err := kv.GetJSON(ctx, s.store, identityKey(holder), &record)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read identity")
	}
	if !found {
		return nil, dErrors.New(dErrors.CodeNotFound, "identity not registered")
	}
	return &record, nil
}
