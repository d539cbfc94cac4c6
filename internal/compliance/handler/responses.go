package handler

import (
	"context"

	"gatekeeper/internal/compliance"
	"gatekeeper/internal/compliance/modules/lockup"
	"gatekeeper/internal/compliance/modules/ruleset"
	"gatekeeper/pkg/domain"
	"gatekeeper/pkg/requestcontext"
)

type AssetListResponse struct {
	Assets []string `json:"assets"`
}

type ModuleListResponse struct {
	Enabled   []string `json:"enabled"`
	Available []string `json:"available"`
}

type VerdictResponse struct {
	Allowed bool   `json:"allowed"`
	Module  string `json:"module,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func toVerdictResponse(v compliance.Verdict) VerdictResponse {
	return VerdictResponse{Allowed: v.Allowed, Module: v.Module.String(), Reason: v.Reason}
}

// LockupResponse is a schedule plus its derived amounts at request time.
type LockupResponse struct {
	lockup.Schedule
	Asset      string        `json:"asset"`
	Locked     domain.Amount `json:"locked"`
	Releasable domain.Amount `json:"releasable"`
}

func toLockupResponse(ctx context.Context, asset domain.AssetID, s *lockup.Schedule) LockupResponse {
	now := requestcontext.Now(ctx)
	return LockupResponse{
		Asset:      asset.String(),
		Schedule:   *s,
		Locked:     lockup.LockedAmount(s, now),
		Releasable: lockup.Releasable(s, now) + lockup.DueMilestones(s, now),
	}
}

type AmountResponse struct {
	Amount domain.Amount `json:"amount"`
}

type MaxHoldersResponse struct {
	Asset       string `json:"asset"`
	MaxHolders  uint32 `json:"max_holders"`
	HolderCount uint32 `json:"holder_count"`
}

type FlagResponse struct {
	Value bool `json:"value"`
}

type RulesetResponse struct {
	ruleset.AssetProfile
	ruleset.Ruleset
}

type ExpressionResponse struct {
	Asset      string `json:"asset"`
	Expression string `json:"expression"`
}
