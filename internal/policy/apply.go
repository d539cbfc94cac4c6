package policy

import (
	"context"
	"log/slog"

	"gatekeeper/internal/compliance/modules/jurisdiction"
	"gatekeeper/internal/compliance/modules/ruleset"
	"gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
	strutil "gatekeeper/pkg/platform/strings"
	"gatekeeper/pkg/requestcontext"
)

// Initializer is satisfied by every component admin guard.
type Initializer interface {
	Initialize(ctx context.Context, admin domain.Address) error
	Component() string
}

type TopicRegistry interface {
	AddTopic(ctx context.Context, topic domain.TopicID, name string) error
}

type IssuerRegistry interface {
	AddTrustedIssuer(ctx context.Context, issuer domain.Address, topics []domain.TopicID) error
}

type Orchestrator interface {
	BindAsset(ctx context.Context, asset domain.AssetID) error
	EnableModule(ctx context.Context, module domain.ModuleID) error
}

type RulesetConfig interface {
	SetRuleset(ctx context.Context, profile ruleset.AssetProfile, rules ruleset.Ruleset) error
	SetAssetProfile(ctx context.Context, asset domain.AssetID, profile ruleset.AssetProfile) error
	AddToWhitelist(ctx context.Context, addr domain.Address) error
}

type HolderCap interface {
	SetMaxHolders(ctx context.Context, asset domain.AssetID, limit uint32) error
}

type JurisdictionConfig interface {
	SetLists(ctx context.Context, asset domain.AssetID, lists jurisdiction.Lists) error
}

type ExpressionConfig interface {
	SetExpression(ctx context.Context, asset domain.AssetID, expr string) error
}

type PauseControl interface {
	Pause(ctx context.Context, asset domain.AssetID) error
}

// Targets are the components a policy document configures.
type Targets struct {
	Guards       []Initializer
	Topics       TopicRegistry
	Issuers      IssuerRegistry
	Orchestrator Orchestrator
	Ruleset      RulesetConfig
	MaxHolders   HolderCap
	Jurisdiction JurisdictionConfig
	Expression   ExpressionConfig
	PauseFreeze  PauseControl
}

// Apply initializes every guard with the document's admin, then performs the
// configuration as that admin. Every step is idempotent, so applying the same
// document to an already bootstrapped store converges to the same state.
func Apply(ctx context.Context, doc *Document, t Targets, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	admin, err := domain.ParseAddress(doc.Admin)
	if err != nil {
		return err
	}

	for _, g := range t.Guards {
		err := g.Initialize(ctx, admin)
		if dErrors.HasCode(err, dErrors.CodeAlreadyInitialized) {
			logger.InfoContext(ctx, "component already initialized", "component", g.Component())
			continue
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "initialize "+g.Component())
		}
	}

	ctx = requestcontext.WithCaller(ctx, admin)
	steps := []struct {
		name string
		fn   func(context.Context, *Document, Targets) error
	}{
		{"topics", applyTopics},
		{"issuers", applyIssuers},
		{"modules", applyModules},
		{"rulesets", applyRulesets},
		{"assets", applyAssets},
	}
	for _, step := range steps {
		if err := step.fn(ctx, doc, t); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "policy "+step.name)
		}
	}

	logger.InfoContext(ctx, "policy applied",
		"admin", admin.String(),
		"topics", len(doc.Topics),
		"issuers", len(doc.Issuers),
		"modules", len(doc.Modules),
		"assets", len(doc.Assets),
	)
	return nil
}

func applyTopics(ctx context.Context, doc *Document, t Targets) error {
	if len(doc.Topics) == 0 {
		return nil
	}
	if t.Topics == nil {
		return missing("topic registry")
	}
	for _, topic := range doc.Topics {
		if err := t.Topics.AddTopic(ctx, domain.TopicID(topic.ID), topic.Name); err != nil {
			return err
		}
	}
	return nil
}

func applyIssuers(ctx context.Context, doc *Document, t Targets) error {
	if len(doc.Issuers) == 0 {
		return nil
	}
	if t.Issuers == nil {
		return missing("issuer registry")
	}
	for _, is := range doc.Issuers {
		topics := make([]domain.TopicID, len(is.Topics))
		for i, id := range is.Topics {
			topics[i] = domain.TopicID(id)
		}
		if err := t.Issuers.AddTrustedIssuer(ctx, domain.Address(is.Address), topics); err != nil {
			return err
		}
	}
	return nil
}

func applyModules(ctx context.Context, doc *Document, t Targets) error {
	if len(doc.Modules) == 0 {
		return nil
	}
	if t.Orchestrator == nil {
		return missing("orchestrator")
	}
	for _, raw := range doc.Modules {
		id, err := domain.ParseModuleID(raw)
		if err != nil {
			return err
		}
		if err := t.Orchestrator.EnableModule(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func applyRulesets(ctx context.Context, doc *Document, t Targets) error {
	if len(doc.Rulesets) == 0 && len(doc.Whitelist) == 0 {
		return nil
	}
	if t.Ruleset == nil {
		return missing("ruleset module")
	}
	for _, r := range doc.Rulesets {
		if err := t.Ruleset.SetRuleset(ctx, r.AssetProfile, r.Ruleset); err != nil {
			return err
		}
	}
	for _, w := range doc.Whitelist {
		addr, err := domain.ParseAddress(w)
		if err != nil {
			return err
		}
		if err := t.Ruleset.AddToWhitelist(ctx, addr); err != nil {
			return err
		}
	}
	return nil
}

func applyAssets(ctx context.Context, doc *Document, t Targets) error {
	if len(doc.Assets) == 0 {
		return nil
	}
	if t.Orchestrator == nil {
		return missing("orchestrator")
	}
	for _, spec := range doc.Assets {
		asset, err := domain.ParseAssetID(spec.ID)
		if err != nil {
			return err
		}
		if err := t.Orchestrator.BindAsset(ctx, asset); err != nil {
			return err
		}
		if err := applyAssetModules(ctx, asset, spec, t); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "asset "+asset.String())
		}
	}
	return nil
}

func applyAssetModules(ctx context.Context, asset domain.AssetID, spec AssetSpec, t Targets) error {
	if spec.Profile != nil {
		if t.Ruleset == nil {
			return missing("ruleset module")
		}
		if err := t.Ruleset.SetAssetProfile(ctx, asset, *spec.Profile); err != nil {
			return err
		}
	}
	if spec.MaxHolders > 0 {
		if t.MaxHolders == nil {
			return missing("max holders module")
		}
		if err := t.MaxHolders.SetMaxHolders(ctx, asset, spec.MaxHolders); err != nil {
			return err
		}
	}
	if spec.Jurisdictions != nil {
		if t.Jurisdiction == nil {
			return missing("jurisdiction module")
		}
		lists, err := spec.Jurisdictions.lists()
		if err != nil {
			return err
		}
		if err := t.Jurisdiction.SetLists(ctx, asset, lists); err != nil {
			return err
		}
	}
	if spec.Expression != "" {
		if t.Expression == nil {
			return missing("expression module")
		}
		if err := t.Expression.SetExpression(ctx, asset, spec.Expression); err != nil {
			return err
		}
	}
	if spec.Paused {
		if t.PauseFreeze == nil {
			return missing("pause module")
		}
		if err := t.PauseFreeze.Pause(ctx, asset); err != nil {
			return err
		}
	}
	return nil
}

func (j JurisdictionSpec) lists() (jurisdiction.Lists, error) {
	var out jurisdiction.Lists
	for _, raw := range strutil.DedupeAndTrimUpper(j.Allowed) {
		code, err := domain.ParseJurisdiction(raw)
		if err != nil {
			return out, err
		}
		out.Allowed = append(out.Allowed, code)
	}
	for _, raw := range strutil.DedupeAndTrimUpper(j.Denied) {
		code, err := domain.ParseJurisdiction(raw)
		if err != nil {
			return out, err
		}
		out.Denied = append(out.Denied, code)
	}
	return out, nil
}

func missing(component string) error {
	return dErrors.New(dErrors.CodeInvalidInput, "policy configures the "+component+" but it is not wired")
}
