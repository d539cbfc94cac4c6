package jurisdiction

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"gatekeeper/internal/admin"
	"gatekeeper/internal/compliance"
	"gatekeeper/internal/compliance/mocks"
	"gatekeeper/internal/identity/models"
	"gatekeeper/internal/platform/kv"
	"gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/requestcontext"
)

const asset domain.AssetID = "EQ"

type JurisdictionSuite struct {
	suite.Suite
	claims *mocks.MockClaimLookup
	module *Module
	ctx    context.Context
}

func TestJurisdictionSuite(t *testing.T) {
	suite.Run(t, new(JurisdictionSuite))
}

func (s *JurisdictionSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.claims = mocks.NewMockClaimLookup(ctrl)
	store := kv.NewMemory()
	guard := admin.NewGuard(store, string(ID), nil)
	s.Require().NoError(guard.Initialize(context.Background(), "GADMIN"))

	s.module = New(store, guard, s.claims, nil)
	s.ctx = requestcontext.WithCaller(context.Background(), "GADMIN")

	residents := map[domain.Address]string{"GUS": "US", "GIR": "IR", "GCA": "ca", "GBAD": "???"}
	s.claims.EXPECT().ValidClaim(gomock.Any(), gomock.Any(), domain.TopicResidency).
		DoAndReturn(func(_ context.Context, holder domain.Address, _ domain.TopicID) (*models.Claim, error) {
			code, ok := residents[holder]
			if !ok {
				return nil, dErrors.New(dErrors.CodeNotFound, "no valid claim")
			}
			return &models.Claim{Subject: holder, Issuer: "GKYC", Attributes: map[string]string{AttributeJurisdiction: code}}, nil
		}).AnyTimes()
}

func (s *JurisdictionSuite) allowed(from, to domain.Address) bool {
	v, err := s.module.Check(s.ctx, compliance.TransferContext{Asset: asset, From: from, To: to, Amount: 1, Kind: compliance.KindTransfer})
	s.Require().NoError(err)
	return v.Allowed
}

func (s *JurisdictionSuite) TestDenyList() {
	s.Require().NoError(s.module.Deny(s.ctx, asset, "IR"))

	s.False(s.allowed("GUS", "GIR"))
	s.True(s.allowed("GUS", "GCA"))
	s.True(s.allowed("GUS", "GNOBODY"), "unknown parties pass when the allow list is empty")
}

func (s *JurisdictionSuite) TestAllowList() {
	s.Require().NoError(s.module.SetLists(s.ctx, asset, Lists{Allowed: []domain.Jurisdiction{"US", "CA"}}))

	s.True(s.allowed("GUS", "GCA"))
	s.False(s.allowed("GUS", "GIR"))
	s.False(s.allowed("GUS", "GNOBODY"))
	s.False(s.allowed("GBAD", "GUS"), "malformed codes do not resolve")
}

func (s *JurisdictionSuite) TestDenyWins() {
	s.Require().NoError(s.module.SetLists(s.ctx, asset, Lists{
		Allowed: []domain.Jurisdiction{"US", "IR"},
		Denied:  []domain.Jurisdiction{"IR"},
	}))
	s.False(s.allowed("GUS", "GIR"))
}

func (s *JurisdictionSuite) TestMintChecksRecipientOnly() {
	s.Require().NoError(s.module.Deny(s.ctx, asset, "IR"))
	v, err := s.module.Check(s.ctx, compliance.TransferContext{Asset: asset, To: "GUS", Amount: 1, Kind: compliance.KindMint})
	s.Require().NoError(err)
	s.True(v.Allowed)
}

func (s *JurisdictionSuite) TestListMaintenance() {
	s.Require().NoError(s.module.Allow(s.ctx, asset, "US"))
	s.Require().NoError(s.module.Allow(s.ctx, asset, "CA"))
	s.Require().NoError(s.module.Deny(s.ctx, asset, "IR"))
	s.Require().NoError(s.module.RemoveAllowed(s.ctx, asset, "US"))
	s.Require().NoError(s.module.RemoveDenied(s.ctx, asset, "KP"))

	lists, err := s.module.Lists(s.ctx, asset)
	s.Require().NoError(err)
	s.Equal([]domain.Jurisdiction{"CA"}, lists.Allowed)
	s.Equal([]domain.Jurisdiction{"IR"}, lists.Denied)

	s.Require().NoError(s.module.SetLists(s.ctx, asset, Lists{}))
	lists, err = s.module.Lists(s.ctx, asset)
	s.Require().NoError(err)
	s.Empty(lists.Allowed)
	s.Empty(lists.Denied)
}

func (s *JurisdictionSuite) TestRequiresAdmin() {
	err := s.module.Deny(requestcontext.WithCaller(s.ctx, "GMALLORY"), asset, "IR")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *JurisdictionSuite) TestResolve() {
	code, ok, err := s.module.Resolve(s.ctx, "GCA")
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(domain.Jurisdiction("CA"), code)
}
