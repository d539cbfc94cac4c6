// Package pausefreeze halts an asset or individual holders: an asset-wide
// pause, a full freeze per address, and a partial freeze reserving part of a
// holder's balance.
package pausefreeze

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

const ID domain.ModuleID = "pause_freeze"

const (
	nsPaused  = "paused"
	nsFrozen  = "frozen"
	nsPartial = "partial_freeze"
)

// FreezeState is the freeze status of one holder of an asset.
type FreezeState struct {
	Frozen       bool          `json:"frozen"`
	FrozenAmount domain.Amount `json:"frozen_amount"`
}

type Module struct {
	compliance.NopHooks
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

func (m *Module) Pause(ctx context.Context, asset domain.AssetID) error {
	return m.setFlag(ctx, kv.Key(nsPaused, asset), true, audit.Event{
		Action: string(audit.EventAssetPaused),
		Asset:  asset.String(),
	})
}

func (m *Module) Unpause(ctx context.Context, asset domain.AssetID) error {
	return m.setFlag(ctx, kv.Key(nsPaused, asset), false, audit.Event{
		Action: string(audit.EventAssetUnpaused),
		Asset:  asset.String(),
	})
}

func (m *Module) Freeze(ctx context.Context, asset domain.AssetID, addr domain.Address) error {
	return m.setFlag(ctx, kv.Key(nsFrozen, asset, addr), true, audit.Event{
		Action:  string(audit.EventAddressFrozen),
		Asset:   asset.String(),
		Subject: addr.String(),
	})
}

func (m *Module) Unfreeze(ctx context.Context, asset domain.AssetID, addr domain.Address) error {
	return m.setFlag(ctx, kv.Key(nsFrozen, asset, addr), false, audit.Event{
		Action:  string(audit.EventAddressUnfrozen),
		Asset:   asset.String(),
		Subject: addr.String(),
	})
}

// setFlag stores a presence flag. Setting a flag to its current value writes
// nothing and emits nothing.
func (m *Module) setFlag(ctx context.Context, key string, on bool, event audit.Event) error {
	return m.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := m.guard.Require(ctx); err != nil {
			return err
		}
		current, err := kv.Has(ctx, m.store, key)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read flag")
		}
		if current == on {
			return nil
		}
		if on {
			err = m.store.Put(ctx, key, []byte("1"))
		} else {
			err = m.store.Delete(ctx, key)
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store flag")
		}
		return m.auditor.Record(ctx, event)
	})
}

// PartialFreeze adds amount to the holder's frozen reserve.
func (m *Module) PartialFreeze(ctx context.Context, asset domain.AssetID, addr domain.Address, amount domain.Amount) error {
	if amount <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "amount must be positive")
	}
	return m.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := m.guard.Require(ctx); err != nil {
			return err
		}
		current, err := m.frozenAmount(ctx, asset, addr)
		if err != nil {
			return err
		}
		next, err := current.Add(amount)
		if err != nil {
			return err
		}
		if err := kv.PutJSON(ctx, m.store, kv.Key(nsPartial, asset, addr), next); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store frozen amount")
		}
		return m.auditor.Record(ctx, audit.Event{
			Action:     string(audit.EventPartialFreeze),
			Asset:      asset.String(),
			Subject:    addr.String(),
			Attributes: map[string]string{"amount": strconv.FormatInt(int64(amount), 10)},
		})
	})
}

// PartialUnfreeze releases up to amount from the reserve. The entry is removed
// once it reaches zero.
func (m *Module) PartialUnfreeze(ctx context.Context, asset domain.AssetID, addr domain.Address, amount domain.Amount) error {
	if amount <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "amount must be positive")
	}
	return m.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := m.guard.Require(ctx); err != nil {
			return err
		}
		current, err := m.frozenAmount(ctx, asset, addr)
		if err != nil {
			return err
		}
		key := kv.Key(nsPartial, asset, addr)
		if next := current.SubFloor(amount); next == 0 {
			err = m.store.Delete(ctx, key)
		} else {
			err = kv.PutJSON(ctx, m.store, key, next)
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store frozen amount")
		}
		return m.auditor.Record(ctx, audit.Event{
			Action:     string(audit.EventPartialUnfreeze),
			Asset:      asset.String(),
			Subject:    addr.String(),
			Attributes: map[string]string{"amount": strconv.FormatInt(int64(amount), 10)},
		})
	})
}

func (m *Module) IsPaused(ctx context.Context, asset domain.AssetID) (bool, error) {
	paused, err := kv.Has(ctx, m.store, kv.Key(nsPaused, asset))
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read pause flag")
	}
	return paused, nil
}

func (m *Module) FreezeState(ctx context.Context, asset domain.AssetID, addr domain.Address) (FreezeState, error) {
	frozen, err := kv.Has(ctx, m.store, kv.Key(nsFrozen, asset, addr))
	if err != nil {
		return FreezeState{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read freeze flag")
	}
	amount, err := m.frozenAmount(ctx, asset, addr)
	if err != nil {
		return FreezeState{}, err
	}
	return FreezeState{Frozen: frozen, FrozenAmount: amount}, nil
}

func (m *Module) frozenAmount(ctx context.Context, asset domain.AssetID, addr domain.Address) (domain.Amount, error) {
	var amount domain.Amount
	if _, err := kv.GetJSON(ctx, m.store, kv.Key(nsPartial, asset, addr), &amount); err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read frozen amount")
	}
	return amount, nil
}

func (m *Module) Check(ctx context.Context, tc compliance.TransferContext) (compliance.Verdict, error) {
	paused, err := m.IsPaused(ctx, tc.Asset)
	if err != nil {
		return compliance.Verdict{}, err
	}
	if paused {
		return compliance.Deny(ID, "asset is paused"), nil
	}

	for _, party := range []struct {
		addr domain.Address
		on   bool
	}{{tc.From, tc.ChecksSender()}, {tc.To, tc.ChecksRecipient()}} {
		if !party.on {
			continue
		}
		frozen, err := kv.Has(ctx, m.store, kv.Key(nsFrozen, tc.Asset, party.addr))
		if err != nil {
			return compliance.Verdict{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read freeze flag")
		}
		if frozen {
			return compliance.Deny(ID, "address "+party.addr.String()+" is frozen"), nil
		}
	}

	if !tc.ChecksSender() {
		return compliance.Allow(), nil
	}
	reserve, err := m.frozenAmount(ctx, tc.Asset, tc.From)
	if err != nil || reserve == 0 {
		return compliance.Allow(), err
	}
	if tc.HasBalances {
		if int64(tc.FromBalance)-int64(tc.Amount) < int64(reserve) {
			return compliance.Deny(ID, "amount exceeds unfrozen balance"), nil
		}
		return compliance.Allow(), nil
	}
	// Without a balance only the reserve itself can be compared.
	if tc.Amount > reserve {
		return compliance.Deny(ID, "amount exceeds unfrozen balance"), nil
	}
	return compliance.Allow(), nil
}

var _ compliance.Module = (*Module)(nil)
