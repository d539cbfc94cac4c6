// Package jurisdiction restricts counterparties by the jurisdiction recorded
// in their Residency claim.
package jurisdiction

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"gatekeeper/internal/admin"
	"gatekeeper/internal/compliance"
	"gatekeeper/internal/platform/kv"
	"gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/audit"
)

const ID domain.ModuleID = "jurisdiction"

const (
	nsAllow = "jurisdiction_allow"
	nsDeny  = "jurisdiction_deny"

	// AttributeJurisdiction is the Residency claim attribute holding the code.
	AttributeJurisdiction = "jurisdiction"
)

// Lists are the allow and deny sets of one asset, sorted.
type Lists struct {
	Allowed []domain.Jurisdiction `json:"allowed"`
	Denied  []domain.Jurisdiction `json:"denied"`
}

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

// SetLists replaces both lists of asset.
func (m *Module) SetLists(ctx context.Context, asset domain.AssetID, lists Lists) error {
	return m.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := m.guard.Require(ctx); err != nil {
			return err
		}
		for ns, codes := range map[string][]domain.Jurisdiction{nsAllow: lists.Allowed, nsDeny: lists.Denied} {
			key := kv.Key(ns, asset)
			if err := m.store.Delete(ctx, key); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to clear jurisdiction list")
			}
			for _, code := range codes {
				if _, err := kv.SetAdd(ctx, m.store, key, code.String()); err != nil {
					return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store jurisdiction list")
				}
			}
		}
		return m.auditor.Record(ctx, audit.Event{
			Action: string(audit.EventConfigChanged),
			Asset:  asset.String(),
			Attributes: map[string]string{
				"allowed": join(lists.Allowed),
				"denied":  join(lists.Denied),
			},
		})
	})
}

func (m *Module) Allow(ctx context.Context, asset domain.AssetID, code domain.Jurisdiction) error {
	return m.update(ctx, nsAllow, asset, code, true)
}

func (m *Module) Deny(ctx context.Context, asset domain.AssetID, code domain.Jurisdiction) error {
	return m.update(ctx, nsDeny, asset, code, true)
}

func (m *Module) RemoveAllowed(ctx context.Context, asset domain.AssetID, code domain.Jurisdiction) error {
	return m.update(ctx, nsAllow, asset, code, false)
}

func (m *Module) RemoveDenied(ctx context.Context, asset domain.AssetID, code domain.Jurisdiction) error {
	return m.update(ctx, nsDeny, asset, code, false)
}

func (m *Module) update(ctx context.Context, ns string, asset domain.AssetID, code domain.Jurisdiction, add bool) error {
	if code == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "jurisdiction code is required")
	}
	return m.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := m.guard.Require(ctx); err != nil {
			return err
		}
		var (
			changed bool
			err     error
		)
		if add {
			changed, err = kv.SetAdd(ctx, m.store, kv.Key(ns, asset), code.String())
		} else {
			changed, err = kv.SetRemove(ctx, m.store, kv.Key(ns, asset), code.String())
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update jurisdiction list")
		}
		if !changed {
			return nil
		}
		op := "removed"
		if add {
			op = "added"
		}
		return m.auditor.Record(ctx, audit.Event{
			Action:     string(audit.EventConfigChanged),
			Asset:      asset.String(),
			Attributes: map[string]string{strings.TrimPrefix(ns, "jurisdiction_"): code.String(), "op": op},
		})
	})
}

func (m *Module) Lists(ctx context.Context, asset domain.AssetID) (Lists, error) {
	allowed, err := m.codes(ctx, nsAllow, asset)
	if err != nil {
		return Lists{}, err
	}
	denied, err := m.codes(ctx, nsDeny, asset)
	if err != nil {
		return Lists{}, err
	}
	return Lists{Allowed: allowed, Denied: denied}, nil
}

func (m *Module) codes(ctx context.Context, ns string, asset domain.AssetID) ([]domain.Jurisdiction, error) {
	members, err := kv.SetMembers(ctx, m.store, kv.Key(ns, asset))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read jurisdiction list")
	}
	out := make([]domain.Jurisdiction, 0, len(members))
	for _, member := range members {
		out = append(out, domain.Jurisdiction(member))
	}
	return out, nil
}

// Resolve returns holder's jurisdiction from a valid, trusted Residency claim.
// ok is false when the holder has none or the attribute is malformed.
func (m *Module) Resolve(ctx context.Context, holder domain.Address) (code domain.Jurisdiction, ok bool, err error) {
	claim, err := m.claims.ValidClaim(ctx, holder, domain.TopicResidency)
	if dErrors.HasCode(err, dErrors.CodeNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	code, err = domain.ParseJurisdiction(claim.Attributes[AttributeJurisdiction])
	if err != nil {
		m.logger.WarnContext(ctx, "residency claim has no usable jurisdiction",
			"holder", holder.String(),
			"issuer", claim.Issuer.String(),
		)
		return "", false, nil
	}
	return code, true, nil
}

func (m *Module) Check(ctx context.Context, tc compliance.TransferContext) (compliance.Verdict, error) {
	lists, err := m.Lists(ctx, tc.Asset)
	if err != nil {
		return compliance.Verdict{}, err
	}
	if len(lists.Allowed) == 0 && len(lists.Denied) == 0 {
		return compliance.Allow(), nil
	}

	var parties []domain.Address
	if tc.ChecksSender() {
		parties = append(parties, tc.From)
	}
	if tc.ChecksRecipient() {
		parties = append(parties, tc.To)
	}
	for _, party := range parties {
		code, ok, err := m.Resolve(ctx, party)
		if err != nil {
			return compliance.Verdict{}, err
		}
		if ok && slices.Contains(lists.Denied, code) {
			return compliance.Deny(ID, "jurisdiction "+code.String()+" is denied"), nil
		}
		if len(lists.Allowed) == 0 {
			continue
		}
		if !ok {
			return compliance.Deny(ID, "jurisdiction of "+party.String()+" is unknown"), nil
		}
		if !slices.Contains(lists.Allowed, code) {
			return compliance.Deny(ID, "jurisdiction "+code.String()+" is not allowed"), nil
		}
	}
	return compliance.Allow(), nil
}

func join(codes []domain.Jurisdiction) string {
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = c.String()
	}
	return strings.Join(parts, ",")
}

var _ compliance.Module = (*Module)(nil)
