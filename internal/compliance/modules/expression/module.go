// Package expression lets an administrator attach a CEL predicate to an asset.
// The predicate sees the transfer and both parties' jurisdictions and must
// evaluate to true for the transfer to pass. Evaluation failures deny.
package expression

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/cel-go/cel"

	"gatekeeper/internal/admin"
	"gatekeeper/internal/compliance"
	"gatekeeper/internal/platform/kv"
	"gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/audit"
	"gatekeeper/pkg/platform/sentinel"
	"gatekeeper/pkg/platform/validation"
)

const ID domain.ModuleID = "expression"

const nsExpression = "expression"

// JurisdictionResolver resolves a holder's jurisdiction code.
type JurisdictionResolver interface {
	Resolve(ctx context.Context, holder domain.Address) (domain.Jurisdiction, bool, error)
}

type Module struct {
	compliance.NopHooks
	store         kv.Store
	guard         *admin.Guard
	jurisdictions JurisdictionResolver
	auditor       *audit.Logger
	logger        *slog.Logger
	programs      *programs
}

type Option func(*Module)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Module) { m.logger = logger }
}

func New(store kv.Store, guard *admin.Guard, jurisdictions JurisdictionResolver, auditor *audit.Logger, opts ...Option) (*Module, error) {
	env, err := newEnv()
	if err != nil {
		return nil, err
	}
	m := &Module{
		store:         store,
		guard:         guard,
		jurisdictions: jurisdictions,
		auditor:       auditor,
		logger:        slog.Default(),
		programs:      &programs{env: env, cache: make(map[string]cel.Program)},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Module) ID() domain.ModuleID { return ID }

// SetExpression compiles expr and stores it for asset. Expressions that do
// not compile are rejected before anything is written.
func (m *Module) SetExpression(ctx context.Context, asset domain.AssetID, expr string) error {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "expression is required")
	}
	if err := validation.CheckStringLength("expression", expr, validation.MaxExpressionLength); err != nil {
		return err
	}
	if _, err := m.programs.get(expr); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid expression")
	}
	return m.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := m.guard.Require(ctx); err != nil {
			return err
		}
		if err := m.store.Put(ctx, kv.Key(nsExpression, asset), []byte(expr)); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store expression")
		}
		return m.auditor.Record(ctx, audit.Event{
			Action:     string(audit.EventConfigChanged),
			Asset:      asset.String(),
			Attributes: map[string]string{"expression": expr},
		})
	})
}

func (m *Module) RemoveExpression(ctx context.Context, asset domain.AssetID) error {
	return m.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := m.guard.Require(ctx); err != nil {
			return err
		}
		if err := m.store.Delete(ctx, kv.Key(nsExpression, asset)); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove expression")
		}
		return m.auditor.Record(ctx, audit.Event{
			Action:     string(audit.EventConfigChanged),
			Asset:      asset.String(),
			Attributes: map[string]string{"expression": ""},
		})
	})
}

// Expression returns the predicate of asset; ok is false when none is set.
func (m *Module) Expression(ctx context.Context, asset domain.AssetID) (expr string, ok bool, err error) {
	raw, err := m.store.Get(ctx, kv.Key(nsExpression, asset))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return "", false, nil
		}
		return "", false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read expression")
	}
	return string(raw), true, nil
}

func (m *Module) Check(ctx context.Context, tc compliance.TransferContext) (compliance.Verdict, error) {
	expr, ok, err := m.Expression(ctx, tc.Asset)
	if err != nil || !ok {
		return compliance.Allow(), err
	}
	vars, err := m.activation(ctx, tc)
	if err != nil {
		return compliance.Verdict{}, err
	}

	allowed, err := m.eval(ctx, expr, vars)
	if err != nil {
		m.logger.WarnContext(ctx, "asset expression failed",
			"asset", tc.Asset.String(),
			"error", err,
		)
		return compliance.Deny(ID, "expression evaluation failed"), nil
	}
	if !allowed {
		return compliance.Deny(ID, "expression rejected transfer"), nil
	}
	return compliance.Allow(), nil
}

func (m *Module) eval(ctx context.Context, expr string, vars map[string]any) (bool, error) {
	prg, err := m.programs.get(expr)
	if err != nil {
		return false, err
	}
	out, _, err := prg.ContextEval(ctx, vars)
	if err != nil {
		return false, err
	}
	allowed, ok := out.Value().(bool)
	if !ok {
		return false, dErrors.New(dErrors.CodeInvalidInput, "expression result is not a bool")
	}
	return allowed, nil
}

var _ compliance.Module = (*Module)(nil)
