// Package maxholders caps the number of distinct holders of an asset.
package maxholders

import (
	"context"
	"log/slog"
	"strconv"

	"gatekeeper/internal/admin"
	"gatekeeper/internal/compliance"
	"gatekeeper/internal/platform/kv"
	"gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/audit"
)

const ID domain.ModuleID = "max_holders"

const (
	nsLimit   = "max_holders"
	nsHolders = "holders"
	nsFlag    = "holder_flag"
	nsCount   = "holder_count"
)

// Module keeps a holder flag per (asset, address), a per-asset set of the
// flagged addresses for enumeration, and a counter that always equals the
// set's cardinality. Membership tests only touch the flag.
type Module struct {
	store   kv.Store
	guard   *admin.Guard
	auditor *audit.Logger
	logger  *slog.Logger
}

type Option func(*Module)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Module) { m.logger = logger }
}

func New(store kv.Store, guard *admin.Guard, auditor *audit.Logger, opts ...Option) *Module {
	m := &Module{store: store, guard: guard, auditor: auditor, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Module) ID() domain.ModuleID { return ID }

// SetMaxHolders sets the cap for asset. Zero removes the cap. Lowering the cap
// below the current count blocks new holders but never evicts existing ones.
func (m *Module) SetMaxHolders(ctx context.Context, asset domain.AssetID, limit uint32) error {
	return m.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := m.guard.Require(ctx); err != nil {
			return err
		}
		if err := kv.PutJSON(ctx, m.store, kv.Key(nsLimit, asset), limit); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store holder limit")
		}
		return m.auditor.Record(ctx, audit.Event{
			Action:     string(audit.EventConfigChanged),
			Asset:      asset.String(),
			Attributes: map[string]string{"max_holders": strconv.FormatUint(uint64(limit), 10)},
		})
	})
}

func (m *Module) MaxHolders(ctx context.Context, asset domain.AssetID) (uint32, error) {
	var limit uint32
	if _, err := kv.GetJSON(ctx, m.store, kv.Key(nsLimit, asset), &limit); err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read holder limit")
	}
	return limit, nil
}

func (m *Module) HolderCount(ctx context.Context, asset domain.AssetID) (uint32, error) {
	var count uint32
	if _, err := kv.GetJSON(ctx, m.store, kv.Key(nsCount, asset), &count); err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read holder count")
	}
	return count, nil
}

func (m *Module) IsHolder(ctx context.Context, asset domain.AssetID, addr domain.Address) (bool, error) {
	ok, err := kv.Has(ctx, m.store, kv.Key(nsFlag, asset, addr))
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read holder flag")
	}
	return ok, nil
}

// Holders returns the holders of asset in lexical order.
func (m *Module) Holders(ctx context.Context, asset domain.AssetID) ([]domain.Address, error) {
	members, err := kv.SetMembers(ctx, m.store, kv.Key(nsHolders, asset))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read holders")
	}
	out := make([]domain.Address, 0, len(members))
	for _, member := range members {
		out = append(out, domain.Address(member))
	}
	return out, nil
}

func (m *Module) Check(ctx context.Context, tc compliance.TransferContext) (compliance.Verdict, error) {
	if !tc.ChecksRecipient() {
		return compliance.Allow(), nil
	}
	limit, err := m.MaxHolders(ctx, tc.Asset)
	if err != nil || limit == 0 {
		return compliance.Allow(), err
	}
	holder, err := m.IsHolder(ctx, tc.Asset, tc.To)
	if err != nil || holder {
		return compliance.Allow(), err
	}
	count, err := m.HolderCount(ctx, tc.Asset)
	if err != nil {
		return compliance.Verdict{}, err
	}
	if count >= limit {
		return compliance.Deny(ID, "maximum number of holders reached"), nil
	}
	return compliance.Allow(), nil
}

func (m *Module) Transferred(ctx context.Context, tc compliance.TransferContext) error {
	if err := m.add(ctx, tc.Asset, tc.To, tc.Amount); err != nil {
		return err
	}
	return m.dropIfEmptied(ctx, tc)
}

func (m *Module) Created(ctx context.Context, tc compliance.TransferContext) error {
	return m.add(ctx, tc.Asset, tc.To, tc.Amount)
}

func (m *Module) Destroyed(ctx context.Context, tc compliance.TransferContext) error {
	return m.dropIfEmptied(ctx, tc)
}

func (m *Module) add(ctx context.Context, asset domain.AssetID, addr domain.Address, amount domain.Amount) error {
	if amount <= 0 || addr.IsNil() {
		return nil
	}
	holder, err := m.IsHolder(ctx, asset, addr)
	if err != nil || holder {
		return err
	}
	if err := m.store.Put(ctx, kv.Key(nsFlag, asset, addr), []byte{1}); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to flag holder")
	}
	if _, err := kv.SetAdd(ctx, m.store, kv.Key(nsHolders, asset), addr.String()); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to add holder")
	}
	return m.adjustCount(ctx, asset, 1)
}

// dropIfEmptied clears the sender's flag once its pre-operation balance is
// fully spent. Without balances holders are never removed.
func (m *Module) dropIfEmptied(ctx context.Context, tc compliance.TransferContext) error {
	if !tc.HasBalances || tc.From.IsNil() || tc.From == tc.To || tc.FromBalance > tc.Amount {
		return nil
	}
	holder, err := m.IsHolder(ctx, tc.Asset, tc.From)
	if err != nil || !holder {
		return err
	}
	if err := m.store.Delete(ctx, kv.Key(nsFlag, tc.Asset, tc.From)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to clear holder flag")
	}
	if _, err := kv.SetRemove(ctx, m.store, kv.Key(nsHolders, tc.Asset), tc.From.String()); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove holder")
	}
	return m.adjustCount(ctx, tc.Asset, -1)
}

func (m *Module) adjustCount(ctx context.Context, asset domain.AssetID, delta int) error {
	count, err := m.HolderCount(ctx, asset)
	if err != nil {
		return err
	}
	next := int(count) + delta
	if next < 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "holder count underflow")
	}
	if err := kv.PutJSON(ctx, m.store, kv.Key(nsCount, asset), next); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store holder count")
	}
	return nil
}

var _ compliance.Module = (*Module)(nil)
