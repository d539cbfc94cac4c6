package main

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"gatekeeper/internal/admin"
	"gatekeeper/internal/compliance"
	compliancehandler "gatekeeper/internal/compliance/handler"
	compliancemetrics "gatekeeper/internal/compliance/metrics"
	"gatekeeper/internal/compliance/modules/expression"
	"gatekeeper/internal/compliance/modules/jurisdiction"
	"gatekeeper/internal/compliance/modules/lockup"
	"gatekeeper/internal/compliance/modules/maxholders"
	"gatekeeper/internal/compliance/modules/pausefreeze"
	"gatekeeper/internal/compliance/modules/ruleset"
	"gatekeeper/internal/compliance/orchestrator"
	"gatekeeper/internal/identity/claims"
	identityhandler "gatekeeper/internal/identity/handler"
	"gatekeeper/internal/identity/issuers"
	identitymetrics "gatekeeper/internal/identity/metrics"
	"gatekeeper/internal/identity/registry"
	"gatekeeper/internal/identity/topics"
	"gatekeeper/internal/ledger"
	"gatekeeper/internal/platform/tracer"
	"gatekeeper/internal/policy"
	"gatekeeper/internal/seeder"
	"gatekeeper/pkg/domain"
	"gatekeeper/pkg/platform/audit"
	"gatekeeper/pkg/requestcontext"
)

// app is the wired compliance engine.
type app struct {
	guards       []*admin.Guard
	claims       *claims.Service
	issuers      *issuers.Service
	topics       *topics.Service
	registry     *registry.Service
	orchestrator *orchestrator.Service
	lockup       *lockup.Module
	maxHolders   *maxholders.Module
	pauseFreeze  *pausefreeze.Module
	jurisdiction *jurisdiction.Module
	ruleset      *ruleset.Module
	expression   *expression.Module
	ledger       *ledger.Service
}

func newApp(in *infra, reg prometheus.Registerer, logger *slog.Logger) (*app, error) {
	a := &app{}
	guard := func(component string) (*admin.Guard, *audit.Logger) {
		auditor := audit.NewLogger(logger, in.emitter, component)
		g := admin.NewGuard(in.store, component, auditor)
		a.guards = append(a.guards, g)
		return g, auditor
	}
	store := in.store
	idMetrics := identitymetrics.New(reg)
	cMetrics := compliancemetrics.New(reg)
	tr := tracer.NewOTel()

	g, au := guard("claims")
	a.claims = claims.New(store, g, au, claims.WithMetrics(idMetrics), claims.WithLogger(logger))
	g, au = guard("issuers")
	a.issuers = issuers.New(store, g, au, issuers.WithLogger(logger))
	g, au = guard("topics")
	a.topics = topics.New(store, g, au, topics.WithLogger(logger))
	g, au = guard("identity_registry")
	a.registry = registry.New(store, g, a.claims, a.issuers, a.topics, au,
		registry.WithMetrics(idMetrics), registry.WithLogger(logger))

	g, au = guard(string(lockup.ID))
	a.lockup = lockup.New(store, g, au, lockup.WithLogger(logger))
	g, au = guard(string(maxholders.ID))
	a.maxHolders = maxholders.New(store, g, au, maxholders.WithLogger(logger))
	g, au = guard(string(pausefreeze.ID))
	a.pauseFreeze = pausefreeze.New(store, g, au, pausefreeze.WithLogger(logger))
	g, au = guard(string(jurisdiction.ID))
	a.jurisdiction = jurisdiction.New(store, g, a.registry, au, jurisdiction.WithLogger(logger))
	g, au = guard(string(ruleset.ID))
	a.ruleset = ruleset.New(store, g, a.registry, au, ruleset.WithLogger(logger))
	g, au = guard(string(expression.ID))
	expr, err := expression.New(store, g, a.jurisdiction, au, expression.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	a.expression = expr

	available := []compliance.Module{a.lockup, a.maxHolders, a.pauseFreeze, a.jurisdiction, a.ruleset, a.expression}
	g, au = guard("compliance")
	a.orchestrator, err = orchestrator.New(store, g, a.registry, available, au,
		orchestrator.WithMetrics(cMetrics),
		orchestrator.WithTracer(tr),
		orchestrator.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	g, au = guard("ledger")
	a.ledger = ledger.New(store, g, a.orchestrator, au,
		ledger.WithMetrics(cMetrics),
		ledger.WithTracer(tr),
		ledger.WithLogger(logger),
	)
	return a, nil
}

// bootstrap applies the policy file, if one is configured, then seeds demo
// holders when requested.
func (a *app) bootstrap(ctx context.Context, path string, seed bool, logger *slog.Logger) error {
	if path == "" {
		if seed {
			logger.WarnContext(ctx, "demo seeding skipped: no policy file")
		}
		return nil
	}
	doc, err := policy.Load(path)
	if err != nil {
		return err
	}
	guards := make([]policy.Initializer, len(a.guards))
	for i, g := range a.guards {
		guards[i] = g
	}
	err = policy.Apply(ctx, doc, policy.Targets{
		Guards:       guards,
		Topics:       a.topics,
		Issuers:      a.issuers,
		Orchestrator: a.orchestrator,
		Ruleset:      a.ruleset,
		MaxHolders:   a.maxHolders,
		Jurisdiction: a.jurisdiction,
		Expression:   a.expression,
		PauseFreeze:  a.pauseFreeze,
	}, logger)
	if err != nil || !seed {
		return err
	}
	return a.seed(ctx, doc, logger)
}

// seed mints demo balances of every unpaused asset, with claims issued by the
// first trusted issuer in the policy.
func (a *app) seed(ctx context.Context, doc *policy.Document, logger *slog.Logger) error {
	if len(doc.Issuers) == 0 {
		logger.WarnContext(ctx, "demo seeding skipped: policy declares no issuers")
		return nil
	}
	var assets []domain.AssetID
	for _, spec := range doc.Assets {
		if !spec.Paused {
			assets = append(assets, domain.AssetID(spec.ID))
		}
	}
	ctx = requestcontext.WithCaller(ctx, domain.Address(doc.Admin))
	return seeder.New(a.claims, a.registry, a.ledger, logger).
		SeedAll(ctx, domain.Address(doc.Issuers[0].Address), assets)
}

func (a *app) complianceModules() compliancehandler.Modules {
	return compliancehandler.Modules{
		Lockup:       a.lockup,
		MaxHolders:   a.maxHolders,
		PauseFreeze:  a.pauseFreeze,
		Jurisdiction: a.jurisdiction,
		Ruleset:      a.ruleset,
		Expression:   a.expression,
	}
}

func (a *app) identityHandler(logger *slog.Logger) *identityhandler.Handler {
	return identityhandler.New(a.claims, a.issuers, a.topics, a.registry, logger)
}

// engineState joins the orchestrator and identity registries for the
// operator stats and state gauges.
type engineState struct {
	*orchestrator.Service
	topics  *topics.Service
	issuers *issuers.Service
}

func (a *app) state() engineState {
	return engineState{Service: a.orchestrator, topics: a.topics, issuers: a.issuers}
}

func (s engineState) RequiredTopics(ctx context.Context) ([]domain.TopicID, error) {
	return s.topics.RequiredTopics(ctx)
}

func (s engineState) ListIssuers(ctx context.Context) ([]domain.Address, error) {
	return s.issuers.ListIssuers(ctx)
}
