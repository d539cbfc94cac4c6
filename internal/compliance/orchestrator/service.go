// Package orchestrator is the compliance dispatcher. It owns the set of bound
// assets and the ordered list of enabled rule modules, evaluates pre-transfer
// checks and fans post-operation notifications out to every enabled module.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"gatekeeper/internal/admin"
	"gatekeeper/internal/compliance"
	"gatekeeper/internal/compliance/metrics"
	"gatekeeper/internal/platform/kv"
	"gatekeeper/internal/platform/tracer"
	"gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/audit"
)

const (
	nsBound       = "bound"
	nsBoundAssets = "bound_assets"
	nsEnabled     = "enabled_modules"
)

// Deciders reported on verdicts that are not produced by a rule module.
const (
	DeciderOrchestrator domain.ModuleID = "orchestrator"
	DeciderIdentity     domain.ModuleID = "identity"
)

var (
	errDenied    = errors.New("compliance check denied")
	errSimulated = errors.New("compliance simulation")
)

type Service struct {
	store    kv.Store
	guard    *admin.Guard
	verifier compliance.Verifier
	modules  map[domain.ModuleID]compliance.Module
	auditor  *audit.Logger
	metrics  *metrics.Metrics
	tracer   tracer.Tracer
	logger   *slog.Logger
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// New builds the orchestrator over the available module implementations.
// Enabling a module selects one of these by ID.
func New(
	store kv.Store,
	guard *admin.Guard,
	verifier compliance.Verifier,
	available []compliance.Module,
	auditor *audit.Logger,
	opts ...Option,
) (*Service, error) {
	s := &Service{
		store:    store,
		guard:    guard,
		verifier: verifier,
		modules:  make(map[domain.ModuleID]compliance.Module, len(available)),
		auditor:  auditor,
		tracer:   tracer.NewNoop(),
		logger:   slog.Default(),
	}
	for _, m := range available {
		if _, dup := s.modules[m.ID()]; dup {
			return nil, fmt.Errorf("duplicate compliance module %q", m.ID())
		}
		s.modules[m.ID()] = m
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Available returns the IDs of every module implementation that can be enabled.
func (s *Service) Available() []domain.ModuleID {
	ids := make([]domain.ModuleID, 0, len(s.modules))
	for id := range s.modules {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (s *Service) BindAsset(ctx context.Context, asset domain.AssetID) error {
	if asset.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "asset is required")
	}
	return s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.guard.Require(ctx); err != nil {
			return err
		}
		added, err := kv.SetAdd(ctx, s.store, kv.Key(nsBoundAssets), asset.String())
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to index bound asset")
		}
		if !added {
			return nil
		}
		if err := s.store.Put(ctx, kv.Key(nsBound, asset), []byte{1}); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to bind asset")
		}
		return s.auditor.Record(ctx, audit.Event{
			Action: string(audit.EventAssetBound),
			Asset:  asset.String(),
		})
	})
}

func (s *Service) UnbindAsset(ctx context.Context, asset domain.AssetID) error {
	return s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.guard.Require(ctx); err != nil {
			return err
		}
		removed, err := kv.SetRemove(ctx, s.store, kv.Key(nsBoundAssets), asset.String())
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to index bound asset")
		}
		if !removed {
			return nil
		}
		if err := s.store.Delete(ctx, kv.Key(nsBound, asset)); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to unbind asset")
		}
		return s.auditor.Record(ctx, audit.Event{
			Action: string(audit.EventAssetUnbound),
			Asset:  asset.String(),
		})
	})
}

func (s *Service) IsAssetBound(ctx context.Context, asset domain.AssetID) (bool, error) {
	ok, err := kv.Has(ctx, s.store, kv.Key(nsBound, asset))
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read asset binding")
	}
	return ok, nil
}

func (s *Service) ListBoundAssets(ctx context.Context) ([]domain.AssetID, error) {
	members, err := kv.SetMembers(ctx, s.store, kv.Key(nsBoundAssets))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read bound assets")
	}
	out := make([]domain.AssetID, len(members))
	for i, m := range members {
		out[i] = domain.AssetID(m)
	}
	return out, nil
}

// EnableModule appends module to the evaluation order. Enabling an already
// enabled module is ignored.
func (s *Service) EnableModule(ctx context.Context, module domain.ModuleID) error {
	if _, ok := s.modules[module]; !ok {
		return dErrors.New(dErrors.CodeNotFound, "unknown compliance module "+module.String())
	}
	return s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.guard.Require(ctx); err != nil {
			return err
		}
		added, err := kv.ListAppend(ctx, s.store, kv.Key(nsEnabled), module.String())
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to enable module")
		}
		if !added {
			s.logger.DebugContext(ctx, "module already enabled", "module", module.String())
			return nil
		}
		return s.auditor.Record(ctx, audit.Event{
			Action:     string(audit.EventModuleEnabled),
			Attributes: map[string]string{"module": module.String()},
		})
	})
}

// DisableModule removes module from the evaluation order. Disabling a module
// that is not enabled is ignored.
func (s *Service) DisableModule(ctx context.Context, module domain.ModuleID) error {
	return s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.guard.Require(ctx); err != nil {
			return err
		}
		removed, err := kv.ListRemove(ctx, s.store, kv.Key(nsEnabled), module.String())
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to disable module")
		}
		if !removed {
			return nil
		}
		return s.auditor.Record(ctx, audit.Event{
			Action:     string(audit.EventModuleDisabled),
			Attributes: map[string]string{"module": module.String()},
		})
	})
}

// EnabledModules returns the enabled module IDs in evaluation order.
func (s *Service) EnabledModules(ctx context.Context) ([]domain.ModuleID, error) {
	items, err := kv.List(ctx, s.store, kv.Key(nsEnabled))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read enabled modules")
	}
	out := make([]domain.ModuleID, len(items))
	for i, item := range items {
		out[i] = domain.ModuleID(item)
	}
	return out, nil
}

func (s *Service) enabled(ctx context.Context) ([]compliance.Module, error) {
	ids, err := s.EnabledModules(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]compliance.Module, 0, len(ids))
	for _, id := range ids {
		m, ok := s.modules[id]
		if !ok {
			return nil, dErrors.New(dErrors.CodeInternal, "enabled module "+id.String()+" has no implementation")
		}
		out = append(out, m)
	}
	return out, nil
}
