package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"gatekeeper/internal/admin"
	"gatekeeper/internal/compliance"
	"gatekeeper/internal/compliance/mocks"
	"gatekeeper/internal/compliance/modules/expression"
	"gatekeeper/internal/compliance/modules/jurisdiction"
	"gatekeeper/internal/compliance/modules/maxholders"
	"gatekeeper/internal/compliance/modules/pausefreeze"
	"gatekeeper/internal/compliance/modules/ruleset"
	"gatekeeper/internal/compliance/orchestrator"
	"gatekeeper/internal/identity/issuers"
	"gatekeeper/internal/identity/topics"
	"gatekeeper/internal/platform/kv"
	"gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/audit"
	"gatekeeper/pkg/platform/audit/publisher"
	"gatekeeper/pkg/platform/audit/store/memory"
)

type PolicySuite struct {
	suite.Suite
	ctx          context.Context
	targets      Targets
	topics       *topics.Service
	issuers      *issuers.Service
	orch         *orchestrator.Service
	holders      *maxholders.Module
	freezes      *pausefreeze.Module
	jurisdiction *jurisdiction.Module
	rules        *ruleset.Module
	expressions  *expression.Module
}

func TestPolicySuite(t *testing.T) {
	suite.Run(t, new(PolicySuite))
}

func (s *PolicySuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	claims := mocks.NewMockClaimLookup(ctrl)
	claims.EXPECT().HasValidClaim(gomock.Any(), gomock.Any(), gomock.Any()).Return(true, nil).AnyTimes()
	claims.EXPECT().ValidClaim(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()
	verifier := mocks.NewMockVerifier(ctrl)

	s.ctx = context.Background()
	store := kv.NewMemory()
	emitter := publisher.NewPublisher(memory.NewInMemoryStore())
	var guards []Initializer
	guard := func(component string) (*admin.Guard, *audit.Logger) {
		auditor := audit.NewLogger(nil, emitter, component)
		g := admin.NewGuard(store, component, auditor)
		guards = append(guards, g)
		return g, auditor
	}

	tg, ta := guard("topics")
	s.topics = topics.New(store, tg, ta)
	ig, ia := guard("issuers")
	s.issuers = issuers.New(store, ig, ia)

	mg, ma := guard(string(maxholders.ID))
	s.holders = maxholders.New(store, mg, ma)
	pg, pa := guard(string(pausefreeze.ID))
	s.freezes = pausefreeze.New(store, pg, pa)
	jg, ja := guard(string(jurisdiction.ID))
	s.jurisdiction = jurisdiction.New(store, jg, claims, ja)
	rg, ra := guard(string(ruleset.ID))
	s.rules = ruleset.New(store, rg, claims, ra)
	eg, ea := guard(string(expression.ID))
	exprs, err := expression.New(store, eg, s.jurisdiction, ea)
	s.Require().NoError(err)
	s.expressions = exprs

	og, oa := guard("compliance")
	available := []compliance.Module{s.holders, s.freezes, s.jurisdiction, s.rules, s.expressions}
	orch, err := orchestrator.New(store, og, verifier, available, oa)
	s.Require().NoError(err)
	s.orch = orch

	s.targets = Targets{
		Guards:       guards,
		Topics:       s.topics,
		Issuers:      s.issuers,
		Orchestrator: s.orch,
		Ruleset:      s.rules,
		MaxHolders:   s.holders,
		Jurisdiction: s.jurisdiction,
		Expression:   s.expressions,
		PauseFreeze:  s.freezes,
	}
}

func (s *PolicySuite) load() *Document {
	doc, err := Load("testdata/bootstrap.yaml")
	s.Require().NoError(err)
	return doc
}

func (s *PolicySuite) TestApplyConfiguresEveryComponent() {
	s.Require().NoError(Apply(s.ctx, s.load(), s.targets, nil))

	for _, g := range s.targets.Guards {
		got, err := g.(*admin.Guard).Admin(s.ctx)
		s.Require().NoError(err)
		s.Equal(domain.Address("GADMIN"), got, g.Component())
	}

	listed, err := s.topics.ListTopics(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(listed, 2)
	s.Equal("KYC", listed[0].Name)
	s.Equal("Residency (EU)", listed[1].Name)

	trusted, err := s.issuers.IssuerTopics(s.ctx, "GKYCPROVIDER")
	s.Require().NoError(err)
	s.ElementsMatch([]domain.TopicID{domain.TopicKYC, domain.TopicResidency}, trusted)

	enabled, err := s.orch.EnabledModules(s.ctx)
	s.Require().NoError(err)
	s.Equal([]domain.ModuleID{pausefreeze.ID, maxholders.ID, jurisdiction.ID, ruleset.ID, expression.ID}, enabled)

	bound, err := s.orch.ListBoundAssets(s.ctx)
	s.Require().NoError(err)
	s.ElementsMatch([]domain.AssetID{"BOND", "FROZEN"}, bound)

	rules, err := s.rules.Ruleset(s.ctx, ruleset.AssetProfile{Region: "US", AssetType: "equity"})
	s.Require().NoError(err)
	s.Equal(domain.Amount(10000), rules.MaxTransferAmount)
	s.True(rules.RequiresKYC)

	profile, ok, err := s.rules.AssetProfile(s.ctx, "BOND")
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(ruleset.AssetProfile{Region: "US", AssetType: "equity"}, profile)

	whitelisted, err := s.rules.IsWhitelisted(s.ctx, "GTREASURY")
	s.Require().NoError(err)
	s.True(whitelisted)

	limit, err := s.holders.MaxHolders(s.ctx, "BOND")
	s.Require().NoError(err)
	s.Equal(uint32(99), limit)

	lists, err := s.jurisdiction.Lists(s.ctx, "BOND")
	s.Require().NoError(err)
	s.ElementsMatch([]domain.Jurisdiction{"US", "CA"}, lists.Allowed)
	s.Equal([]domain.Jurisdiction{"KP"}, lists.Denied)

	expr, ok, err := s.expressions.Expression(s.ctx, "BOND")
	s.Require().NoError(err)
	s.True(ok)
	s.Equal("amount <= 5000", expr)

	paused, err := s.freezes.IsPaused(s.ctx, "FROZEN")
	s.Require().NoError(err)
	s.True(paused)
	paused, err = s.freezes.IsPaused(s.ctx, "BOND")
	s.Require().NoError(err)
	s.False(paused)
}

func (s *PolicySuite) TestApplyIsIdempotent() {
	doc := s.load()
	s.Require().NoError(Apply(s.ctx, doc, s.targets, nil))
	s.Require().NoError(Apply(s.ctx, doc, s.targets, nil))

	listed, err := s.topics.ListTopics(s.ctx)
	s.Require().NoError(err)
	s.Len(listed, 2)
	enabled, err := s.orch.EnabledModules(s.ctx)
	s.Require().NoError(err)
	s.Len(enabled, 5)
}

func (s *PolicySuite) TestApplyRejectsUnwiredComponent() {
	targets := s.targets
	targets.Expression = nil
	err := Apply(s.ctx, s.load(), targets, nil)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *PolicySuite) TestApplyRejectsUnknownModule() {
	doc := s.load()
	doc.Modules = append(doc.Modules, "kyc_oracle")
	err := Apply(s.ctx, doc, s.targets, nil)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestParse(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		ok   bool
	}{
		{"minimal", "admin: GADMIN\n", true},
		{"missing admin", "topics: [{id: 1}]\n", false},
		{"zero topic", "admin: GADMIN\ntopics: [{id: 0}]\n", false},
		{"issuer without topics", "admin: GADMIN\nissuers: [{address: GKYC}]\n", false},
		{"unknown key", "admin: GADMIN\nfees: 3\n", false},
		{"bad jurisdiction", "admin: GADMIN\nassets: [{id: BOND, jurisdictions: {allowed: [U1]}}]\n", false},
		{"bad asset", "admin: GADMIN\nassets: [{id: \"a/b\"}]\n", false},
		{"negative limit", "admin: GADMIN\nrulesets: [{region: US, asset_type: equity, daily_limit: -1}]\n", false},
		{"empty", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			if tc.ok {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput), err.Error())
		})
	}
}
