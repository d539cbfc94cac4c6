package issuers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"gatekeeper/internal/admin"
	"gatekeeper/internal/platform/kv"
	"gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/audit"
	"gatekeeper/pkg/platform/audit/publisher"
	"gatekeeper/pkg/platform/audit/store/memory"
	"gatekeeper/pkg/requestcontext"
)

type IssuersSuite struct {
	suite.Suite
	events  *memory.InMemoryStore
	service *Service
	ctx     context.Context
}

func TestIssuersSuite(t *testing.T) {
	suite.Run(t, new(IssuersSuite))
}

func (s *IssuersSuite) SetupTest() {
	store := kv.NewMemory()
	s.events = memory.NewInMemoryStore()
	auditor := audit.NewLogger(nil, publisher.NewPublisher(s.events), "issuers")
	guard := admin.NewGuard(store, "issuers", auditor)
	s.Require().NoError(guard.Initialize(context.Background(), "GADMIN"))

	s.service = New(store, guard, auditor)
	s.ctx = requestcontext.WithCaller(context.Background(), "GADMIN")
}

func (s *IssuersSuite) trusted(issuer domain.Address, topic domain.TopicID) bool {
	ok, err := s.service.IsTrustedIssuer(s.ctx, issuer, topic)
	s.Require().NoError(err)
	return ok
}

func (s *IssuersSuite) TestAddTrustedIssuer() {
	s.Require().NoError(s.service.AddTrustedIssuer(s.ctx, "GKYC", []domain.TopicID{domain.TopicKYC, domain.TopicAML}))
	s.Require().NoError(s.service.AddTrustedIssuer(s.ctx, "GRES", []domain.TopicID{domain.TopicResidency, domain.TopicKYC}))

	s.True(s.trusted("GKYC", domain.TopicAML))
	s.False(s.trusted("GKYC", domain.TopicResidency))

	topics, err := s.service.IssuerTopics(s.ctx, "GKYC")
	s.Require().NoError(err)
	s.Equal([]domain.TopicID{domain.TopicKYC, domain.TopicAML}, topics)

	forKYC, err := s.service.IssuersForTopic(s.ctx, domain.TopicKYC)
	s.Require().NoError(err)
	s.Equal([]domain.Address{"GKYC", "GRES"}, forKYC)

	all, err := s.service.ListIssuers(s.ctx)
	s.Require().NoError(err)
	s.Len(all, 2)
}

func (s *IssuersSuite) TestAddIsIdempotent() {
	s.Require().NoError(s.service.AddTrustedIssuer(s.ctx, "GKYC", []domain.TopicID{domain.TopicKYC}))
	s.Require().NoError(s.service.AddTrustedIssuer(s.ctx, "GKYC", []domain.TopicID{domain.TopicKYC}))

	events, err := s.events.ListRecent(s.ctx, audit.Filter{Action: string(audit.EventIssuerAdded)})
	s.Require().NoError(err)
	s.Len(events, 1)
}

func (s *IssuersSuite) TestValidation() {
	s.Run("requires admin", func() {
		err := s.service.AddTrustedIssuer(requestcontext.WithCaller(s.ctx, "GMALLORY"), "GKYC", []domain.TopicID{1})
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
	s.Run("requires topics", func() {
		err := s.service.AddTrustedIssuer(s.ctx, "GKYC", nil)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
	s.Run("rejects zero topic without partial writes", func() {
		err := s.service.AddTrustedIssuer(s.ctx, "GKYC", []domain.TopicID{domain.TopicKYC, 0})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
		s.False(s.trusted("GKYC", domain.TopicKYC))
	})
}

func (s *IssuersSuite) TestUpdateIssuerTopics() {
	s.Require().NoError(s.service.AddTrustedIssuer(s.ctx, "GKYC", []domain.TopicID{domain.TopicKYC, domain.TopicAML}))
	s.Require().NoError(s.service.UpdateIssuerTopics(s.ctx, "GKYC", []domain.TopicID{domain.TopicAML, domain.TopicPEP}))

	s.False(s.trusted("GKYC", domain.TopicKYC))
	s.True(s.trusted("GKYC", domain.TopicPEP))

	forKYC, err := s.service.IssuersForTopic(s.ctx, domain.TopicKYC)
	s.Require().NoError(err)
	s.Empty(forKYC)

	err = s.service.UpdateIssuerTopics(s.ctx, "GUNKNOWN", []domain.TopicID{1})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *IssuersSuite) TestRemoveTrustedIssuer() {
	s.Require().NoError(s.service.AddTrustedIssuer(s.ctx, "GKYC", []domain.TopicID{domain.TopicKYC, domain.TopicAML}))
	s.Require().NoError(s.service.RemoveTrustedIssuer(s.ctx, "GKYC"))

	s.False(s.trusted("GKYC", domain.TopicKYC))
	all, err := s.service.ListIssuers(s.ctx)
	s.Require().NoError(err)
	s.Empty(all)

	err = s.service.RemoveTrustedIssuer(s.ctx, "GKYC")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	events, err := s.events.ListRecent(s.ctx, audit.Filter{Subject: "GKYC", Action: string(audit.EventIssuerRemoved)})
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal("1,2", events[0].Attributes["topics"])
}
