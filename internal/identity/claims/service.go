// Package claims stores issuer attestations about holders, one claim per
// (subject, topic).
package claims

import (
	"context"
	"log/slog"
	"time"

	"gatekeeper/internal/admin"
	"gatekeeper/internal/identity/metrics"
	"gatekeeper/internal/identity/models"
	"gatekeeper/internal/platform/kv"
	"gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/audit"
	"gatekeeper/pkg/requestcontext"
)

const (
	nsClaim     = "claims"
	nsBySubject = "claims_by_subject"
)

// NewClaim is the input to AddClaim. Payload is the full attestation
// document; only its digest is stored. Attributes is the public projection
// other components read (e.g. "jurisdiction" on a Residency claim).
type NewClaim struct {
	Subject    domain.Address
	Topic      domain.TopicID
	Issuer     domain.Address
	Payload    []byte
	Attributes map[string]string
	ValidUntil time.Time
}

type Service struct {
	store   kv.Store
	guard   *admin.Guard
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

func New(store kv.Store, guard *admin.Guard, auditor *audit.Logger, opts ...Option) *Service {
	s := &Service{store: store, guard: guard, auditor: auditor, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func claimKey(subject domain.Address, topic domain.TopicID) string {
	return kv.Key(nsClaim, subject, topic)
}

func subjectKey(subject domain.Address) string {
	return kv.Key(nsBySubject, subject)
}

// AddClaim stores a claim, replacing any existing claim for the same
// (subject, topic).
func (s *Service) AddClaim(ctx context.Context, in NewClaim) (*models.Claim, error) {
	if in.Subject.IsNil() || in.Issuer.IsNil() || in.Topic == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "subject, topic and issuer are required")
	}
	now := requestcontext.Now(ctx)
	if !in.ValidUntil.After(now) {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "valid_until must be in the future")
	}

	claim := &models.Claim{
		Subject:    in.Subject,
		Topic:      in.Topic,
		Issuer:     in.Issuer,
		DataHash:   models.HashPayload(in.Payload),
		Attributes: in.Attributes,
		IssuedAt:   now,
		ValidUntil: in.ValidUntil,
	}

	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.guard.Require(ctx); err != nil {
			return err
		}
		if err := kv.PutJSON(ctx, s.store, claimKey(in.Subject, in.Topic), claim); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store claim")
		}
		if _, err := kv.SetAdd(ctx, s.store, subjectKey(in.Subject), in.Topic.String()); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to index claim")
		}
		return s.auditor.Record(ctx, audit.Event{
			Action:  string(audit.EventClaimAdded),
			Subject: in.Subject.String(),
			Attributes: map[string]string{
				"topic":     in.Topic.String(),
				"issuer":    in.Issuer.String(),
				"data_hash": claim.DataHash.String(),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncClaimChange("add")
	return claim, nil
}

// GetClaim returns the claim for (subject, topic) or NotFound.
func (s *Service) GetClaim(ctx context.Context, subject domain.Address, topic domain.TopicID) (*models.Claim, error) {
	var claim models.Claim
	found, err := kv.GetJSON(ctx, s.store, claimKey(subject, topic), &claim)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read claim")
	}
	if !found {
		return nil, dErrors.New(dErrors.CodeNotFound, "claim not found")
	}
	return &claim, nil
}

// RevokeClaim marks a claim revoked. Revocation is one-way; revoking an
// already revoked claim changes nothing and emits nothing.
func (s *Service) RevokeClaim(ctx context.Context, subject domain.Address, topic domain.TopicID, ref string) error {
	revoked := false
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.guard.Require(ctx); err != nil {
			return err
		}
		claim, err := s.GetClaim(ctx, subject, topic)
		if err != nil {
			return err
		}
		if claim.Revoked {
			s.logger.DebugContext(ctx, "claim already revoked", "subject", subject, "topic", topic)
			return nil
		}
		claim.Revoked = true
		claim.RevocationRef = ref
		if err := kv.PutJSON(ctx, s.store, claimKey(subject, topic), claim); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store claim")
		}
		revoked = true
		return s.auditor.Record(ctx, audit.Event{
			Action:  string(audit.EventClaimRevoked),
			Subject: subject.String(),
			Reason:  ref,
			Attributes: map[string]string{
				"topic":  topic.String(),
				"issuer": claim.Issuer.String(),
			},
		})
	})
	if err == nil && revoked {
		s.metrics.IncClaimChange("revoke")
	}
	return err
}

// ListClaimsBySubject returns every claim held by subject, ordered by topic.
func (s *Service) ListClaimsBySubject(ctx context.Context, subject domain.Address) ([]*models.Claim, error) {
	members, err := kv.SetMembers(ctx, s.store, subjectKey(subject))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read claim index")
	}
	topics, err := models.TopicsFromMembers(members)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "corrupt claim index")
	}

	claims := make([]*models.Claim, 0, len(topics))
	for _, t := range topics {
		claim, err := s.GetClaim(ctx, subject, t)
		if err != nil {
			return nil, err
		}
		claims = append(claims, claim)
	}
	return claims, nil
}

// IsClaimValid reports whether (subject, topic) has an unrevoked, unexpired
// claim. It does not check issuer trust; see registry.HasValidClaim.
func (s *Service) IsClaimValid(ctx context.Context, subject domain.Address, topic domain.TopicID) (bool, error) {
	claim, err := s.GetClaim(ctx, subject, topic)
	if dErrors.HasCode(err, dErrors.CodeNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return claim.IsValid(requestcontext.Now(ctx)), nil
}
