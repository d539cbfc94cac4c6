// Package ruleset applies per-region, per-asset-type transfer limits: a
// maximum single transfer, a rolling daily limit per sender, a recipient
// whitelist and KYC/KYB requirements.
//
// Unlike the other modules, Check mutates state: an accepted transfer
// advances the sender's daily counters in the same unit of work, so a denial
// later in the chain rolls the counters back with it.
package ruleset

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
	"gatekeeper/pkg/requestcontext"
)

const ID domain.ModuleID = "ruleset"

const (
	nsRuleset   = "ruleset"
	nsProfile   = "asset_profile"
	nsWhitelist = "whitelist"
	nsDaily     = "daily_limit"
)

type Module struct {
	compliance.NopHooks
	store   kv.Store
	guard   *admin.Guard
	claims  compliance.ClaimLookup
	auditor *audit.Logger
	logger  *slog.Logger
}

type Option func(*Module)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Module) { m.logger = logger }
}

func New(store kv.Store, guard *admin.Guard, claims compliance.ClaimLookup, auditor *audit.Logger, opts ...Option) *Module {
	m := &Module{store: store, guard: guard, claims: claims, auditor: auditor, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Module) ID() domain.ModuleID { return ID }

func (m *Module) SetRuleset(ctx context.Context, profile AssetProfile, rules Ruleset) error {
	profile = profile.Normalize()
	if err := profile.Validate(); err != nil {
		return err
	}
	if err := rules.Validate(); err != nil {
		return err
	}
	return m.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := m.guard.Require(ctx); err != nil {
			return err
		}
		if err := kv.PutJSON(ctx, m.store, kv.Key(nsRuleset, profile.Region, profile.AssetType), rules); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store ruleset")
		}
		return m.auditor.Record(ctx, audit.Event{
			Action: string(audit.EventConfigChanged),
			Attributes: map[string]string{
				"region":              profile.Region,
				"asset_type":          profile.AssetType,
				"max_transfer_amount": strconv.FormatInt(int64(rules.MaxTransferAmount), 10),
				"daily_limit":         strconv.FormatInt(int64(rules.DailyLimit), 10),
			},
		})
	})
}

// Ruleset returns the rules for profile, or NotFound.
func (m *Module) Ruleset(ctx context.Context, profile AssetProfile) (*Ruleset, error) {
	profile = profile.Normalize()
	var rules Ruleset
	found, err := kv.GetJSON(ctx, m.store, kv.Key(nsRuleset, profile.Region, profile.AssetType), &rules)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read ruleset")
	}
	if !found {
		return nil, dErrors.New(dErrors.CodeNotFound, "ruleset not found")
	}
	return &rules, nil
}

func (m *Module) SetAssetProfile(ctx context.Context, asset domain.AssetID, profile AssetProfile) error {
	profile = profile.Normalize()
	if err := profile.Validate(); err != nil {
		return err
	}
	return m.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := m.guard.Require(ctx); err != nil {
			return err
		}
		if err := kv.PutJSON(ctx, m.store, kv.Key(nsProfile, asset), profile); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store asset profile")
		}
		return m.auditor.Record(ctx, audit.Event{
			Action:     string(audit.EventConfigChanged),
			Asset:      asset.String(),
			Attributes: map[string]string{"region": profile.Region, "asset_type": profile.AssetType},
		})
	})
}

// AssetProfile returns the profile of asset; ok is false when none is set.
func (m *Module) AssetProfile(ctx context.Context, asset domain.AssetID) (profile AssetProfile, ok bool, err error) {
	ok, err = kv.GetJSON(ctx, m.store, kv.Key(nsProfile, asset), &profile)
	if err != nil {
		return AssetProfile{}, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read asset profile")
	}
	return profile, ok, nil
}

func (m *Module) AddToWhitelist(ctx context.Context, addr domain.Address) error {
	return m.setWhitelisted(ctx, addr, true)
}

func (m *Module) RemoveFromWhitelist(ctx context.Context, addr domain.Address) error {
	return m.setWhitelisted(ctx, addr, false)
}

func (m *Module) setWhitelisted(ctx context.Context, addr domain.Address, on bool) error {
	if addr.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "address is required")
	}
	return m.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := m.guard.Require(ctx); err != nil {
			return err
		}
		var err error
		if on {
			err = m.store.Put(ctx, kv.Key(nsWhitelist, addr), []byte("1"))
		} else {
			err = m.store.Delete(ctx, kv.Key(nsWhitelist, addr))
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update whitelist")
		}
		return nil
	})
}

func (m *Module) IsWhitelisted(ctx context.Context, addr domain.Address) (bool, error) {
	ok, err := kv.Has(ctx, m.store, kv.Key(nsWhitelist, addr))
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read whitelist")
	}
	return ok, nil
}

// DailyState returns addr's counters as they stand at the request time.
func (m *Module) DailyState(ctx context.Context, addr domain.Address) (DailyState, error) {
	var state DailyState
	if _, err := kv.GetJSON(ctx, m.store, kv.Key(nsDaily, addr), &state); err != nil {
		return DailyState{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read daily limit state")
	}
	if state.WindowStart.IsZero() {
		return state, nil
	}
	return state.roll(requestcontext.Now(ctx)), nil
}

// ResetDailyLimit starts a fresh window for addr.
func (m *Module) ResetDailyLimit(ctx context.Context, addr domain.Address) error {
	return m.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := m.guard.Require(ctx); err != nil {
			return err
		}
		state := DailyState{WindowStart: requestcontext.Now(ctx)}
		if err := kv.PutJSON(ctx, m.store, kv.Key(nsDaily, addr), state); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to reset daily limit")
		}
		return nil
	})
}

func (m *Module) Check(ctx context.Context, tc compliance.TransferContext) (compliance.Verdict, error) {
	profile, ok, err := m.AssetProfile(ctx, tc.Asset)
	if err != nil || !ok {
		return compliance.Allow(), err
	}
	rules, err := m.Ruleset(ctx, profile)
	if dErrors.HasCode(err, dErrors.CodeNotFound) {
		return compliance.Deny(ID, "invalid ruleset"), nil
	}
	if err != nil {
		return compliance.Verdict{}, err
	}

	if rules.MaxTransferAmount > 0 && tc.Amount > rules.MaxTransferAmount {
		m.limitExceeded(ctx, tc, "max_transfer_amount", rules.MaxTransferAmount)
		return compliance.Deny(ID, "amount exceeds limit"), nil
	}
	if rules.WhitelistOnly && tc.ChecksRecipient() {
		listed, err := m.IsWhitelisted(ctx, tc.To)
		if err != nil {
			return compliance.Verdict{}, err
		}
		if !listed {
			return compliance.Deny(ID, "address not whitelisted"), nil
		}
	}
	if v, err := m.checkClaims(ctx, tc, rules); err != nil || !v.Allowed {
		return v, err
	}
	if rules.DailyLimit > 0 && tc.Kind == compliance.KindTransfer {
		return m.consumeDaily(ctx, tc, rules.DailyLimit)
	}
	return compliance.Allow(), nil
}

func (m *Module) checkClaims(ctx context.Context, tc compliance.TransferContext, rules *Ruleset) (compliance.Verdict, error) {
	var required []domain.TopicID
	if rules.RequiresKYC {
		required = append(required, domain.TopicKYC)
	}
	if rules.RequiresKYB {
		required = append(required, domain.TopicKYB)
	}
	for _, topic := range required {
		for _, party := range participants(tc) {
			ok, err := m.claims.HasValidClaim(ctx, party, topic)
			if err != nil {
				return compliance.Verdict{}, err
			}
			if !ok {
				return compliance.Deny(ID, party.String()+" lacks a valid "+topic.Name()+" claim"), nil
			}
		}
	}
	return compliance.Allow(), nil
}

// consumeDaily adds the amount to the sender's window if it fits.
func (m *Module) consumeDaily(ctx context.Context, tc compliance.TransferContext, limit domain.Amount) (compliance.Verdict, error) {
	var state DailyState
	if _, err := kv.GetJSON(ctx, m.store, kv.Key(nsDaily, tc.From), &state); err != nil {
		return compliance.Verdict{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read daily limit state")
	}
	state = state.roll(requestcontext.Now(ctx))

	total, err := state.CumulativeAmount.Add(tc.Amount)
	if err != nil || total > limit {
		m.limitExceeded(ctx, tc, "daily_limit", limit)
		return compliance.Deny(ID, "daily limit exceeded"), nil
	}
	state.CumulativeAmount = total
	state.TxCount++
	if err := kv.PutJSON(ctx, m.store, kv.Key(nsDaily, tc.From), state); err != nil {
		return compliance.Verdict{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store daily limit state")
	}
	return compliance.Allow(), nil
}

// limitExceeded emits outside the unit of work so the event survives the
// rollback of the denied transfer. Simulations emit nothing.
func (m *Module) limitExceeded(ctx context.Context, tc compliance.TransferContext, limit string, value domain.Amount) {
	if compliance.IsDryRun(ctx) {
		return
	}
	m.auditor.RecordNow(ctx, audit.Event{
		Action:   string(audit.EventLimitExceeded),
		Asset:    tc.Asset.String(),
		Subject:  tc.From.String(),
		Decision: "deny",
		Attributes: map[string]string{
			"limit":  limit,
			"value":  strconv.FormatInt(int64(value), 10),
			"amount": strconv.FormatInt(int64(tc.Amount), 10),
			"to":     tc.To.String(),
		},
	})
}

func participants(tc compliance.TransferContext) []domain.Address {
	var out []domain.Address
	if tc.ChecksSender() {
		out = append(out, tc.From)
	}
	if tc.ChecksRecipient() {
		out = append(out, tc.To)
	}
	return out
}

var _ compliance.Module = (*Module)(nil)
