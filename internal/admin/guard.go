package admin

import (
	"context"
	"errors"

	"gatekeeper/internal/platform/kv"
	"gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/audit"
	"gatekeeper/pkg/platform/sentinel"
	"gatekeeper/pkg/requestcontext"
)

const namespace = "admin"

// Guard holds the single admin principal of one component namespace.
// Mutating entry points call Require before touching any state.
type Guard struct {
	store     kv.Store
	component string
	auditor   *audit.Logger
}

func NewGuard(store kv.Store, component string, auditor *audit.Logger) *Guard {
	return &Guard{store: store, component: component, auditor: auditor}
}

func (g *Guard) Component() string { return g.component }

func (g *Guard) key() string { return kv.Key(namespace, g.component) }

// Initialize sets the first admin. Later calls fail with AlreadyInitialized.
func (g *Guard) Initialize(ctx context.Context, admin domain.Address) error {
	if admin.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "admin address required")
	}
	return g.store.RunInTx(ctx, func(ctx context.Context) error {
		exists, err := kv.Has(ctx, g.store, g.key())
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read admin")
		}
		if exists {
			return dErrors.New(dErrors.CodeAlreadyInitialized, g.component+" already initialized")
		}
		if err := g.store.Put(ctx, g.key(), []byte(admin)); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store admin")
		}
		return g.auditor.Record(ctx, audit.Event{
			Action:  string(audit.EventAdminInitialized),
			Subject: admin.String(),
		})
	})
}

// Admin returns the current admin, or NotFound before Initialize.
func (g *Guard) Admin(ctx context.Context) (domain.Address, error) {
	raw, err := g.store.Get(ctx, g.key())
	if errors.Is(err, sentinel.ErrNotFound) {
		return "", dErrors.New(dErrors.CodeNotFound, g.component+" not initialized")
	}
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to read admin")
	}
	return domain.Address(raw), nil
}

// Require checks that the caller in ctx is the admin.
func (g *Guard) Require(ctx context.Context) error {
	caller := requestcontext.Caller(ctx)
	if caller.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "authorization required")
	}
	admin, err := g.Admin(ctx)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return dErrors.New(dErrors.CodeUnauthorized, g.component+" has no admin")
		}
		return err
	}
	if caller != admin {
		return dErrors.New(dErrors.CodeUnauthorized, "caller is not the "+g.component+" admin")
	}
	return nil
}

// TransferAdmin hands the role to next. Only the current admin may call it.
func (g *Guard) TransferAdmin(ctx context.Context, next domain.Address) error {
	if next.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "admin address required")
	}
	return g.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := g.Require(ctx); err != nil {
			return err
		}
		if err := g.store.Put(ctx, g.key(), []byte(next)); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store admin")
		}
		return g.auditor.Record(ctx, audit.Event{
			Action:     string(audit.EventAdminTransferred),
			Subject:    next.String(),
			Attributes: map[string]string{"previous": requestcontext.Caller(ctx).String()},
		})
	})
}
