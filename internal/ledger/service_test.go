package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"gatekeeper/internal/admin"
	"gatekeeper/internal/compliance"
	"gatekeeper/internal/compliance/metrics"
	"gatekeeper/internal/compliance/mocks"
	"gatekeeper/internal/compliance/modules/lockup"
	"gatekeeper/internal/compliance/modules/maxholders"
	"gatekeeper/internal/compliance/modules/pausefreeze"
	"gatekeeper/internal/compliance/modules/ruleset"
	"gatekeeper/internal/compliance/orchestrator"
	"gatekeeper/internal/platform/kv"
	"gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/audit"
	"gatekeeper/pkg/platform/audit/publisher"
	"gatekeeper/pkg/platform/audit/store/memory"
	"gatekeeper/pkg/requestcontext"
	"gatekeeper/pkg/testutil"
)

const (
	asset  = domain.AssetID("BOND")
	issuer = domain.Address("GISSUER")
	alice  = domain.Address("GALICE")
	bob    = domain.Address("GBOB")
	carol  = domain.Address("GCAROL")
)

var now = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

// LedgerSuite drives the ledger through the real orchestrator and modules so
// that unit-of-work boundaries are exercised end to end.
type LedgerSuite struct {
	suite.Suite
	ctx        context.Context
	store      *kv.Memory
	events     *memory.InMemoryStore
	metrics    *metrics.Metrics
	orch       *orchestrator.Service
	lockups    *lockup.Module
	holders    *maxholders.Module
	freezes    *pausefreeze.Module
	rules      *ruleset.Module
	ledger     *Service
	unverified map[domain.Address]bool
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.unverified = map[domain.Address]bool{}
	verifier := mocks.NewMockVerifier(ctrl)
	verifier.EXPECT().IsVerified(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, addr domain.Address) (bool, error) {
			return !s.unverified[addr], nil
		}).AnyTimes()
	claims := mocks.NewMockClaimLookup(ctrl)
	claims.EXPECT().HasValidClaim(gomock.Any(), gomock.Any(), gomock.Any()).Return(true, nil).AnyTimes()

	s.ctx = requestcontext.WithCaller(requestcontext.WithTime(context.Background(), now), issuer)
	s.store = kv.NewMemory()
	s.events = memory.NewInMemoryStore()
	emitter := publisher.NewPublisher(s.events)
	guard := func(component string) (*admin.Guard, *audit.Logger) {
		auditor := audit.NewLogger(nil, emitter, component)
		g := admin.NewGuard(s.store, component, auditor)
		s.Require().NoError(g.Initialize(s.ctx, issuer))
		return g, auditor
	}

	lg, la := guard(string(lockup.ID))
	mg, ma := guard(string(maxholders.ID))
	pg, pa := guard(string(pausefreeze.ID))
	rg, ra := guard(string(ruleset.ID))
	s.lockups = lockup.New(s.store, lg, la)
	s.holders = maxholders.New(s.store, mg, ma)
	s.freezes = pausefreeze.New(s.store, pg, pa)
	s.rules = ruleset.New(s.store, rg, claims, ra)

	s.metrics = metrics.New(prometheus.NewRegistry())
	og, oa := guard("compliance")
	available := []compliance.Module{s.lockups, s.holders, s.freezes, s.rules}
	orch, err := orchestrator.New(s.store, og, verifier, available, oa, orchestrator.WithMetrics(s.metrics))
	s.Require().NoError(err)
	s.orch = orch
	s.Require().NoError(orch.BindAsset(s.ctx, asset))

	lgd, lau := guard("ledger")
	s.ledger = New(s.store, lgd, orch, lau, WithMetrics(s.metrics))
}

func (s *LedgerSuite) as(caller domain.Address) context.Context {
	return requestcontext.WithCaller(s.ctx, caller)
}

func (s *LedgerSuite) balance(holder domain.Address) domain.Amount {
	b, err := s.ledger.Balance(s.ctx, asset, holder)
	s.Require().NoError(err)
	return b
}

func (s *LedgerSuite) enable(modules ...domain.ModuleID) {
	for _, m := range modules {
		s.Require().NoError(s.orch.EnableModule(s.ctx, m))
	}
}

func (s *LedgerSuite) recorded(action audit.Action) int {
	events, err := s.events.ListRecent(s.ctx, audit.Filter{Action: string(action)})
	s.Require().NoError(err)
	return len(events)
}

func (s *LedgerSuite) TestMintTransferBurn() {
	s.Require().NoError(s.ledger.Mint(s.ctx, asset, alice, 1000))
	s.Require().NoError(s.ledger.Transfer(s.as(alice), asset, alice, bob, 400))
	s.Require().NoError(s.ledger.Burn(s.ctx, asset, bob, 100))

	s.Equal(domain.Amount(600), s.balance(alice))
	s.Equal(domain.Amount(300), s.balance(bob))
	supply, err := s.ledger.TotalSupply(s.ctx, asset)
	s.Require().NoError(err)
	s.Equal(domain.Amount(900), supply)

	s.Equal(1, s.recorded(audit.EventMint))
	s.Equal(1, s.recorded(audit.EventTransfer))
	s.Equal(1, s.recorded(audit.EventBurn))
	s.Equal(1, promtest.CollectAndCount(s.metrics.TxDuration.WithLabelValues("transfer", "committed").(prometheus.Histogram)))
}

func (s *LedgerSuite) TestAuthorization() {
	s.Run("mint and burn require the ledger admin", func() {
		err := s.ledger.Mint(s.as(alice), asset, alice, 10)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
		err = s.ledger.Burn(s.as(alice), asset, alice, 10)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("transfer requires the sender as caller", func() {
		s.Require().NoError(s.ledger.Mint(s.ctx, asset, alice, 100))
		err := s.ledger.Transfer(s.as(bob), asset, alice, bob, 10)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
		err = s.ledger.Transfer(context.Background(), asset, alice, bob, 10)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
		s.Equal(domain.Amount(100), s.balance(alice))
	})
}

func (s *LedgerSuite) TestInputValidation() {
	s.Require().NoError(s.ledger.Mint(s.ctx, asset, alice, 100))
	cases := map[string]error{
		"zero amount":          s.ledger.Mint(s.ctx, asset, alice, 0),
		"missing asset":        s.ledger.Mint(s.ctx, "", alice, 1),
		"self transfer":        s.ledger.Transfer(s.as(alice), asset, alice, alice, 1),
		"insufficient balance": s.ledger.Transfer(s.as(alice), asset, alice, bob, 101),
		"burn beyond balance":  s.ledger.Burn(s.ctx, asset, alice, 101),
	}
	for name, err := range cases {
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput), name)
	}
	s.Equal(domain.Amount(100), s.balance(alice))
}

func (s *LedgerSuite) TestDenialIsForbidden() {
	s.Require().NoError(s.ledger.Mint(s.ctx, asset, alice, 100))
	s.unverified[bob] = true

	err := s.ledger.Transfer(s.as(alice), asset, alice, bob, 10)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	var denied *DeniedError
	s.Require().True(errors.As(err, &denied))
	s.Equal("recipient not verified", denied.Verdict.Reason)

	s.Equal(domain.Amount(100), s.balance(alice))
	s.Equal(1, s.recorded(audit.EventTransferBlocked))
	s.Equal(0, s.recorded(audit.EventTransfer))
	s.Equal(1, promtest.CollectAndCount(s.metrics.TxDuration.WithLabelValues("transfer", "denied").(prometheus.Histogram)))
}

func (s *LedgerSuite) TestUnboundAssetIsDenied() {
	err := s.ledger.Mint(s.ctx, "OTHER", alice, 10)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	b, err := s.ledger.Balance(s.ctx, "OTHER", alice)
	s.Require().NoError(err)
	s.Zero(b)
}

func (s *LedgerSuite) TestDeniedTransferDiscardsModuleState() {
	profile := ruleset.AssetProfile{Region: "EU", AssetType: "bond"}
	s.Require().NoError(s.rules.SetAssetProfile(s.ctx, asset, profile))
	s.Require().NoError(s.rules.SetRuleset(s.ctx, profile, ruleset.Ruleset{DailyLimit: 1000}))
	s.enable(ruleset.ID, lockup.ID)

	s.Require().NoError(s.ledger.Mint(s.ctx, asset, alice, 1000))
	_, err := s.lockups.CreateLockup(s.ctx, asset, lockup.NewSchedule{
		Holder:      alice,
		TotalAmount: 800,
		StartTime:   now,
		CliffTime:   now.Add(time.Hour),
		EndTime:     now.Add(2 * time.Hour),
	})
	s.Require().NoError(err)

	// The ruleset consumes daily allowance before lockup denies.
	err = s.ledger.Transfer(s.as(alice), asset, alice, bob, 300)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	state, err := s.rules.DailyState(s.ctx, alice)
	s.Require().NoError(err)
	s.Zero(state.CumulativeAmount)
	s.Zero(state.TxCount)

	s.Require().NoError(s.ledger.Transfer(s.as(alice), asset, alice, bob, 200))
	state, err = s.rules.DailyState(s.ctx, alice)
	s.Require().NoError(err)
	s.Equal(domain.Amount(200), state.CumulativeAmount)
	s.Equal(uint32(1), state.TxCount)
}

func (s *LedgerSuite) TestHolderCountFollowsBalances() {
	s.Require().NoError(s.holders.SetMaxHolders(s.ctx, asset, 2))
	s.enable(maxholders.ID)

	s.Require().NoError(s.ledger.Mint(s.ctx, asset, alice, 100))
	s.Require().NoError(s.ledger.Mint(s.ctx, asset, bob, 100))
	err := s.ledger.Mint(s.ctx, asset, carol, 100)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	// Emptying bob frees a slot for carol.
	s.Require().NoError(s.ledger.Transfer(s.as(bob), asset, bob, alice, 100))
	count, err := s.holders.HolderCount(s.ctx, asset)
	s.Require().NoError(err)
	s.Equal(uint32(1), count)
	s.Require().NoError(s.ledger.Transfer(s.as(alice), asset, alice, carol, 50))

	s.Require().NoError(s.ledger.Burn(s.ctx, asset, carol, 50))
	holders, err := s.holders.Holders(s.ctx, asset)
	s.Require().NoError(err)
	s.Equal([]domain.Address{alice}, holders)
}

func (s *LedgerSuite) TestConcurrentTransfersNeverOverdraw() {
	s.Require().NoError(s.ledger.Mint(s.ctx, asset, alice, 100))

	result := testutil.RunConcurrent(50, func(int) error {
		return s.ledger.Transfer(s.as(alice), asset, alice, bob, 10)
	})

	s.Equal(int32(10), result.Successes)
	s.Equal(int32(40), result.Denied)
	s.Zero(result.Errors)
	s.Equal(domain.Amount(0), s.balance(alice))
	s.Equal(domain.Amount(100), s.balance(bob))
}

func (s *LedgerSuite) TestConcurrentMintsRespectHolderCap() {
	s.Require().NoError(s.holders.SetMaxHolders(s.ctx, asset, 3))
	s.enable(maxholders.ID)

	result := testutil.RunConcurrent(20, func(idx int) error {
		return s.ledger.Mint(s.ctx, asset, domain.Address(fmt.Sprintf("GHOLDER%d", idx)), 1)
	})

	s.Equal(int32(3), result.Successes)
	s.Equal(int32(17), result.Denied)
	count, err := s.holders.HolderCount(s.ctx, asset)
	s.Require().NoError(err)
	s.Equal(uint32(3), count)
}

func (s *LedgerSuite) TestPauseAndPartialFreeze() {
	s.enable(pausefreeze.ID)
	s.Require().NoError(s.ledger.Mint(s.ctx, asset, alice, 100))
	s.Require().NoError(s.freezes.PartialFreeze(s.ctx, asset, alice, 70))

	err := s.ledger.Transfer(s.as(alice), asset, alice, bob, 40)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	s.Require().NoError(s.ledger.Transfer(s.as(alice), asset, alice, bob, 30))

	s.Require().NoError(s.freezes.Pause(s.ctx, asset))
	err = s.ledger.Transfer(s.as(bob), asset, bob, alice, 1)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	s.Equal(domain.Amount(30), s.balance(bob))
}
