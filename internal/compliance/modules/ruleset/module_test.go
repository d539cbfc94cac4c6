package ruleset

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"gatekeeper/internal/admin"
	"gatekeeper/internal/compliance"
	"gatekeeper/internal/compliance/mocks"
	"gatekeeper/internal/platform/kv"
	"gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/audit"
	"gatekeeper/pkg/platform/audit/publisher"
	"gatekeeper/pkg/platform/audit/store/memory"
	"gatekeeper/pkg/requestcontext"
)

const asset domain.AssetID = "REIT"

var (
	profile = AssetProfile{Region: "eu", AssetType: "Real_Estate"}
	t0      = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
)

type RulesetSuite struct {
	suite.Suite
	claims *mocks.MockClaimLookup
	events *memory.InMemoryStore
	module *Module
	ctx    context.Context
}

func TestRulesetSuite(t *testing.T) {
	suite.Run(t, new(RulesetSuite))
}

func (s *RulesetSuite) SetupTest() {
	s.claims = mocks.NewMockClaimLookup(gomock.NewController(s.T()))
	store := kv.NewMemory()
	s.events = memory.NewInMemoryStore()
	auditor := audit.NewLogger(nil, publisher.NewPublisher(s.events), string(ID))
	guard := admin.NewGuard(store, string(ID), auditor)
	s.Require().NoError(guard.Initialize(context.Background(), "GADMIN"))

	s.module = New(store, guard, s.claims, auditor)
	s.ctx = requestcontext.WithCaller(requestcontext.WithTime(context.Background(), t0), "GADMIN")
	s.Require().NoError(s.module.SetAssetProfile(s.ctx, asset, profile))
}

func (s *RulesetSuite) transfer(ctx context.Context, amount domain.Amount) compliance.Verdict {
	v, err := s.module.Check(ctx, compliance.TransferContext{Asset: asset, From: "GA", To: "GB", Amount: amount, Kind: compliance.KindTransfer})
	s.Require().NoError(err)
	return v
}

func (s *RulesetSuite) limitEvents() int {
	events, err := s.events.ListRecent(context.Background(), audit.Filter{Action: string(audit.EventLimitExceeded)})
	s.Require().NoError(err)
	return len(events)
}

func (s *RulesetSuite) TestProfileNormalization() {
	s.Require().NoError(s.module.SetRuleset(s.ctx, AssetProfile{Region: " EU ", AssetType: "real_estate"}, Ruleset{MaxTransferAmount: 5}))
	rules, err := s.module.Ruleset(s.ctx, profile)
	s.Require().NoError(err)
	s.Equal(domain.Amount(5), rules.MaxTransferAmount)
}

func (s *RulesetSuite) TestMissingRulesetDenies() {
	v := s.transfer(s.ctx, 1)
	s.False(v.Allowed)
	s.Equal("invalid ruleset", v.Reason)
}

func (s *RulesetSuite) TestAssetWithoutProfilePasses() {
	v, err := s.module.Check(s.ctx, compliance.TransferContext{Asset: "OTHER", From: "GA", To: "GB", Amount: 1, Kind: compliance.KindTransfer})
	s.Require().NoError(err)
	s.True(v.Allowed)
}

func (s *RulesetSuite) TestMaxTransferAmount() {
	s.Require().NoError(s.module.SetRuleset(s.ctx, profile, Ruleset{MaxTransferAmount: 100}))
	s.True(s.transfer(s.ctx, 100).Allowed)
	s.False(s.transfer(s.ctx, 101).Allowed)
	s.Equal(1, s.limitEvents())
}

func (s *RulesetSuite) TestDailyLimitWindow() {
	s.Require().NoError(s.module.SetRuleset(s.ctx, profile, Ruleset{DailyLimit: 1000}))

	s.True(s.transfer(s.ctx, 600).Allowed)
	s.False(s.transfer(s.ctx, 500).Allowed)

	state, err := s.module.DailyState(s.ctx, "GA")
	s.Require().NoError(err)
	s.Equal(DailyState{CumulativeAmount: 600, WindowStart: t0, TxCount: 1}, state)

	sameDay := requestcontext.WithTime(s.ctx, t0.Add(DailyWindow))
	s.False(s.transfer(sameDay, 500).Allowed, "the window resets only after it has fully elapsed")

	nextDay := requestcontext.WithTime(s.ctx, t0.Add(DailyWindow+time.Second))
	s.True(s.transfer(nextDay, 500).Allowed)
	s.Equal(2, s.limitEvents())
}

func (s *RulesetSuite) TestResetDailyLimit() {
	s.Require().NoError(s.module.SetRuleset(s.ctx, profile, Ruleset{DailyLimit: 1000}))
	s.True(s.transfer(s.ctx, 1000).Allowed)
	s.False(s.transfer(s.ctx, 1).Allowed)

	s.Require().NoError(s.module.ResetDailyLimit(s.ctx, "GA"))
	s.True(s.transfer(s.ctx, 1).Allowed)

	err := s.module.ResetDailyLimit(requestcontext.WithCaller(s.ctx, "GA"), "GA")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *RulesetSuite) TestDryRunEmitsNothing() {
	s.Require().NoError(s.module.SetRuleset(s.ctx, profile, Ruleset{MaxTransferAmount: 1}))
	s.False(s.transfer(compliance.WithDryRun(s.ctx), 2).Allowed)
	s.Zero(s.limitEvents())
}

func (s *RulesetSuite) TestWhitelistOnly() {
	s.Require().NoError(s.module.SetRuleset(s.ctx, profile, Ruleset{WhitelistOnly: true}))
	v := s.transfer(s.ctx, 1)
	s.False(v.Allowed)
	s.Equal("address not whitelisted", v.Reason)

	s.Require().NoError(s.module.AddToWhitelist(s.ctx, "GB"))
	s.True(s.transfer(s.ctx, 1).Allowed)

	s.Require().NoError(s.module.RemoveFromWhitelist(s.ctx, "GB"))
	listed, err := s.module.IsWhitelisted(s.ctx, "GB")
	s.Require().NoError(err)
	s.False(listed)
}

func (s *RulesetSuite) TestClaimRequirements() {
	s.Require().NoError(s.module.SetRuleset(s.ctx, profile, Ruleset{RequiresKYC: true, RequiresKYB: true}))
	s.claims.EXPECT().HasValidClaim(gomock.Any(), gomock.Any(), domain.TopicKYC).Return(true, nil).Times(2)
	s.claims.EXPECT().HasValidClaim(gomock.Any(), domain.Address("GA"), domain.TopicKYB).Return(true, nil)
	s.claims.EXPECT().HasValidClaim(gomock.Any(), domain.Address("GB"), domain.TopicKYB).Return(false, nil)

	v := s.transfer(s.ctx, 1)
	s.False(v.Allowed)
	s.Equal("GB lacks a valid KYB claim", v.Reason)
}

func (s *RulesetSuite) TestValidation() {
	err := s.module.SetRuleset(s.ctx, AssetProfile{Region: "EU"}, Ruleset{})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

	err = s.module.SetRuleset(s.ctx, profile, Ruleset{DailyLimit: -1})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = s.module.Ruleset(s.ctx, AssetProfile{Region: "US", AssetType: "bond"})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
