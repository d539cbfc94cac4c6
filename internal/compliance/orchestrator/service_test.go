package orchestrator

import (
	"context"
	"errors"
	"testing"

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

const asset domain.AssetID = "BOND"

type OrchestratorSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	store    *kv.Memory
	events   *memory.InMemoryStore
	verifier *mocks.MockVerifier
	first    *mocks.MockModule
	second   *mocks.MockModule
	service  *Service
	ctx      context.Context
}

func TestOrchestratorSuite(t *testing.T) {
	suite.Run(t, new(OrchestratorSuite))
}

func (s *OrchestratorSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = kv.NewMemory()
	s.events = memory.NewInMemoryStore()
	auditor := audit.NewLogger(nil, publisher.NewPublisher(s.events), "compliance")
	guard := admin.NewGuard(s.store, "compliance", auditor)
	s.Require().NoError(guard.Initialize(context.Background(), "GADMIN"))

	s.verifier = mocks.NewMockVerifier(s.ctrl)
	s.first = mocks.NewMockModule(s.ctrl)
	s.second = mocks.NewMockModule(s.ctrl)
	s.first.EXPECT().ID().Return(domain.ModuleID("first")).AnyTimes()
	s.second.EXPECT().ID().Return(domain.ModuleID("second")).AnyTimes()

	svc, err := New(s.store, guard, s.verifier, []compliance.Module{s.first, s.second}, auditor)
	s.Require().NoError(err)
	s.service = svc
	s.ctx = requestcontext.WithCaller(context.Background(), "GADMIN")

	s.Require().NoError(s.service.BindAsset(s.ctx, asset))
	s.Require().NoError(s.service.EnableModule(s.ctx, "first"))
	s.Require().NoError(s.service.EnableModule(s.ctx, "second"))
}

func transfer() compliance.TransferContext {
	return compliance.TransferContext{Asset: asset, From: "GALICE", To: "GBOB", Amount: 100, Kind: compliance.KindTransfer}
}

func (s *OrchestratorSuite) verified(holders ...domain.Address) {
	for _, h := range holders {
		s.verifier.EXPECT().IsVerified(gomock.Any(), h).Return(true, nil)
	}
}

func (s *OrchestratorSuite) TestAllowedWhenEveryModuleAllows() {
	s.verified("GALICE", "GBOB")
	gomock.InOrder(
		s.first.EXPECT().Check(gomock.Any(), transfer()).Return(compliance.Allow(), nil),
		s.second.EXPECT().Check(gomock.Any(), transfer()).Return(compliance.Allow(), nil),
	)

	v, err := s.service.PreTransferCheck(s.ctx, transfer())
	s.Require().NoError(err)
	s.True(v.Allowed)
}

func (s *OrchestratorSuite) TestUnboundAssetIsDenied() {
	tc := transfer()
	tc.Asset = "OTHER"
	v, err := s.service.PreTransferCheck(s.ctx, tc)
	s.Require().NoError(err)
	s.False(v.Allowed)
	s.Equal(DeciderOrchestrator, v.Module)
}

func (s *OrchestratorSuite) TestUnverifiedPartiesAreDenied() {
	s.Run("recipient", func() {
		s.verifier.EXPECT().IsVerified(gomock.Any(), domain.Address("GALICE")).Return(true, nil)
		s.verifier.EXPECT().IsVerified(gomock.Any(), domain.Address("GBOB")).Return(false, nil)
		v, err := s.service.PreTransferCheck(s.ctx, transfer())
		s.Require().NoError(err)
		s.Equal(compliance.Deny(DeciderIdentity, "recipient not verified"), v)
	})
	s.Run("mint checks only the recipient", func() {
		s.verifier.EXPECT().IsVerified(gomock.Any(), domain.Address("GBOB")).Return(false, nil)
		v, err := s.service.PreTransferCheck(s.ctx, compliance.TransferContext{Asset: asset, To: "GBOB", Amount: 5, Kind: compliance.KindMint})
		s.Require().NoError(err)
		s.False(v.Allowed)
	})
	s.Run("burn checks only the sender", func() {
		s.verifier.EXPECT().IsVerified(gomock.Any(), domain.Address("GALICE")).Return(false, nil)
		v, err := s.service.PreTransferCheck(s.ctx, compliance.TransferContext{Asset: asset, From: "GALICE", Amount: 5, Kind: compliance.KindBurn})
		s.Require().NoError(err)
		s.Equal("sender not verified", v.Reason)
	})
}

func (s *OrchestratorSuite) TestFirstDenialShortCircuitsAndIsAudited() {
	s.verified("GALICE", "GBOB")
	s.first.EXPECT().Check(gomock.Any(), gomock.Any()).Return(compliance.Verdict{Reason: "asset paused"}, nil)
	// second.Check must not be called; gomock fails on unexpected calls.

	v, err := s.service.PreTransferCheck(s.ctx, transfer())
	s.Require().NoError(err)
	s.False(v.Allowed)
	s.Equal(domain.ModuleID("first"), v.Module, "the orchestrator fills in the deciding module")

	events, err := s.events.ListRecent(s.ctx, audit.Filter{Action: string(audit.EventTransferBlocked)})
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal("asset paused", events[0].Reason)
	s.Equal("first", events[0].Attributes["module"])
}

func (s *OrchestratorSuite) TestDenialRollsBackModuleSideEffects() {
	s.verified("GALICE", "GBOB")
	s.first.EXPECT().Check(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ compliance.TransferContext) (compliance.Verdict, error) {
			return compliance.Allow(), s.store.Put(ctx, "counter", []byte("1"))
		})
	s.second.EXPECT().Check(gomock.Any(), gomock.Any()).Return(compliance.Deny("second", "limit"), nil)

	v, err := s.service.PreTransferCheck(s.ctx, transfer())
	s.Require().NoError(err)
	s.False(v.Allowed)

	written, err := kv.Has(s.ctx, s.store, "counter")
	s.Require().NoError(err)
	s.False(written)
}

func (s *OrchestratorSuite) TestSimulateAlwaysRollsBack() {
	s.verified("GALICE", "GBOB")
	s.first.EXPECT().Check(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ compliance.TransferContext) (compliance.Verdict, error) {
			s.True(compliance.IsDryRun(ctx))
			return compliance.Allow(), s.store.Put(ctx, "counter", []byte("1"))
		})
	s.second.EXPECT().Check(gomock.Any(), gomock.Any()).Return(compliance.Allow(), nil)

	v, err := s.service.Simulate(s.ctx, transfer())
	s.Require().NoError(err)
	s.True(v.Allowed)

	written, err := kv.Has(s.ctx, s.store, "counter")
	s.Require().NoError(err)
	s.False(written)
}

func (s *OrchestratorSuite) TestModuleErrorIsInfrastructureFailure() {
	s.verified("GALICE", "GBOB")
	s.first.EXPECT().Check(gomock.Any(), gomock.Any()).Return(compliance.Verdict{}, errors.New("redis down"))

	_, err := s.service.PreTransferCheck(s.ctx, transfer())
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *OrchestratorSuite) TestInvalidContext() {
	_, err := s.service.PreTransferCheck(s.ctx, compliance.TransferContext{Asset: asset, From: "GALICE", Kind: compliance.KindTransfer})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *OrchestratorSuite) TestEnableModuleIsIdempotent() {
	s.Require().NoError(s.service.EnableModule(s.ctx, "first"))
	enabled, err := s.service.EnabledModules(s.ctx)
	s.Require().NoError(err)
	s.Equal([]domain.ModuleID{"first", "second"}, enabled)

	events, err := s.events.ListRecent(s.ctx, audit.Filter{Action: string(audit.EventModuleEnabled)})
	s.Require().NoError(err)
	s.Len(events, 2)

	err = s.service.EnableModule(s.ctx, "nonexistent")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *OrchestratorSuite) TestDisableAndUnbind() {
	s.Require().NoError(s.service.DisableModule(s.ctx, "first"))
	s.Require().NoError(s.service.DisableModule(s.ctx, "first"))
	enabled, err := s.service.EnabledModules(s.ctx)
	s.Require().NoError(err)
	s.Equal([]domain.ModuleID{"second"}, enabled)

	s.Require().NoError(s.service.UnbindAsset(s.ctx, asset))
	assets, err := s.service.ListBoundAssets(s.ctx)
	s.Require().NoError(err)
	s.Empty(assets)
}

func (s *OrchestratorSuite) TestAdminRequired() {
	mallory := requestcontext.WithCaller(s.ctx, "GMALLORY")
	s.True(dErrors.HasCode(s.service.BindAsset(mallory, "X"), dErrors.CodeUnauthorized))
	s.True(dErrors.HasCode(s.service.EnableModule(mallory, "first"), dErrors.CodeUnauthorized))
}

func (s *OrchestratorSuite) TestPostTransferNotifiesInOrder() {
	gomock.InOrder(
		s.first.EXPECT().Transferred(gomock.Any(), transfer()).Return(nil),
		s.second.EXPECT().Transferred(gomock.Any(), transfer()).Return(nil),
	)
	s.Require().NoError(s.service.PostTransfer(s.ctx, transfer()))
}

func (s *OrchestratorSuite) TestNotifyErrorAbortsUnit() {
	s.first.EXPECT().Created(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ compliance.TransferContext) error {
			return s.store.Put(ctx, "holders", []byte("1"))
		})
	s.second.EXPECT().Created(gomock.Any(), gomock.Any()).Return(errors.New("boom"))

	err := s.service.PostIssue(s.ctx, compliance.TransferContext{Asset: asset, To: "GBOB", Amount: 1, Kind: compliance.KindMint})
	s.Require().Error(err)

	written, err := kv.Has(s.ctx, s.store, "holders")
	s.Require().NoError(err)
	s.False(written)
}

func (s *OrchestratorSuite) TestRedeemNotifiesDestroyed() {
	burn := compliance.TransferContext{Asset: asset, From: "GALICE", Amount: 1, Kind: compliance.KindBurn}
	s.first.EXPECT().Destroyed(gomock.Any(), burn).Return(nil)
	s.second.EXPECT().Destroyed(gomock.Any(), burn).Return(nil)
	s.Require().NoError(s.service.PostRedeem(s.ctx, burn))
}

func (s *OrchestratorSuite) TestCanTransfer() {
	s.verified("GALICE", "GBOB")
	s.first.EXPECT().Check(gomock.Any(), gomock.Any()).Return(compliance.Allow(), nil)
	s.second.EXPECT().Check(gomock.Any(), gomock.Any()).Return(compliance.Allow(), nil)
	ok, err := s.service.CanTransfer(s.ctx, "GALICE", "GBOB", 100, asset)
	s.Require().NoError(err)
	s.True(ok)
}

func TestDuplicateModuleIDsRejected(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := mocks.NewMockModule(ctrl)
	m.EXPECT().ID().Return(domain.ModuleID("lockup")).AnyTimes()
	_, err := New(kv.NewMemory(), nil, nil, []compliance.Module{m, m}, nil)
	if err == nil {
		t.Fatal("expected duplicate module error")
	}
}
