package handler

import (
	"strings"
	"time"

	"gatekeeper/internal/compliance"
	"gatekeeper/internal/compliance/modules/jurisdiction"
	"gatekeeper/internal/compliance/modules/lockup"
	"gatekeeper/internal/compliance/modules/ruleset"
	"gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/validation"
)

type AssetRequest struct {
	Asset string `json:"asset"`
}

func (r *AssetRequest) Normalize() { r.Asset = strings.TrimSpace(r.Asset) }

func (r *AssetRequest) Validate() error {
	_, err := domain.ParseAssetID(r.Asset)
	return err
}

type ModuleRequest struct {
	Module string `json:"module"`
}

func (r *ModuleRequest) Normalize() { r.Module = strings.ToLower(strings.TrimSpace(r.Module)) }

func (r *ModuleRequest) Validate() error {
	_, err := domain.ParseModuleID(r.Module)
	return err
}

type CheckRequest struct {
	Asset       string          `json:"asset"`
	From        string          `json:"from"`
	To          string          `json:"to"`
	Amount      domain.Amount   `json:"amount"`
	Kind        compliance.Kind `json:"kind"`
	FromBalance *domain.Amount  `json:"from_balance,omitempty"`
	ToBalance   *domain.Amount  `json:"to_balance,omitempty"`
}

func (r *CheckRequest) Normalize() {
	r.Asset = strings.TrimSpace(r.Asset)
	r.From = strings.TrimSpace(r.From)
	r.To = strings.TrimSpace(r.To)
	if r.Kind == "" {
		r.Kind = compliance.KindTransfer
	}
}

func (r *CheckRequest) Validate() error {
	if _, err := domain.ParseAssetID(r.Asset); err != nil {
		return err
	}
	if _, err := domain.ParseAmount(int64(r.Amount)); err != nil {
		return err
	}
	switch r.Kind {
	case compliance.KindTransfer, compliance.KindMint, compliance.KindBurn:
	default:
		return dErrors.New(dErrors.CodeValidation, "kind must be transfer, mint or burn")
	}
	if r.Kind != compliance.KindMint {
		if _, err := domain.ParseAddress(r.From); err != nil {
			return err
		}
	}
	if r.Kind != compliance.KindBurn {
		if _, err := domain.ParseAddress(r.To); err != nil {
			return err
		}
	}
	if (r.FromBalance == nil) != (r.ToBalance == nil) {
		return dErrors.New(dErrors.CodeValidation, "from_balance and to_balance must be supplied together")
	}
	return nil
}

func (r *CheckRequest) TransferContext() compliance.TransferContext {
	tc := compliance.TransferContext{
		Asset:  domain.AssetID(r.Asset),
		From:   domain.Address(r.From),
		To:     domain.Address(r.To),
		Amount: r.Amount,
		Kind:   r.Kind,
	}
	if r.FromBalance != nil && r.ToBalance != nil {
		tc.FromBalance, tc.ToBalance, tc.HasBalances = *r.FromBalance, *r.ToBalance, true
	}
	return tc
}

type PeriodRequest struct {
	ReleaseTime time.Time     `json:"release_time"`
	Amount      domain.Amount `json:"amount"`
}

func (r *PeriodRequest) Validate() error {
	if r.ReleaseTime.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "release_time is required")
	}
	if r.Amount <= 0 {
		return dErrors.New(dErrors.CodeValidation, "amount must be positive")
	}
	return nil
}

type CreateLockupRequest struct {
	Holder      string          `json:"holder"`
	TotalAmount domain.Amount   `json:"total_amount"`
	StartTime   time.Time       `json:"start_time"`
	CliffTime   time.Time       `json:"cliff_time"`
	EndTime     time.Time       `json:"end_time"`
	Revocable   bool            `json:"revocable"`
	Periods     []PeriodRequest `json:"periods,omitempty"`
}

func (r *CreateLockupRequest) Normalize() { r.Holder = strings.TrimSpace(r.Holder) }

func (r *CreateLockupRequest) Validate() error {
	if _, err := domain.ParseAddress(r.Holder); err != nil {
		return err
	}
	if err := validation.CheckSliceCount("periods", len(r.Periods), validation.MaxVestingPeriods); err != nil {
		return err
	}
	for i := range r.Periods {
		if err := r.Periods[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (r *CreateLockupRequest) Schedule() lockup.NewSchedule {
	in := lockup.NewSchedule{
		Holder:      domain.Address(r.Holder),
		TotalAmount: r.TotalAmount,
		StartTime:   r.StartTime,
		CliffTime:   r.CliffTime,
		EndTime:     r.EndTime,
		Revocable:   r.Revocable,
	}
	for _, p := range r.Periods {
		in.Periods = append(in.Periods, lockup.VestingPeriod{ReleaseTime: p.ReleaseTime, Amount: p.Amount})
	}
	return in
}

type MaxHoldersRequest struct {
	MaxHolders uint32 `json:"max_holders"`
}

type AmountRequest struct {
	Amount domain.Amount `json:"amount"`
}

func (r *AmountRequest) Validate() error {
	if r.Amount <= 0 {
		return dErrors.New(dErrors.CodeValidation, "amount must be positive")
	}
	return nil
}

type JurisdictionListsRequest struct {
	Allowed []string `json:"allowed"`
	Denied  []string `json:"denied"`
}

func (r *JurisdictionListsRequest) Validate() error {
	if err := validation.CheckSliceCount("allowed", len(r.Allowed), validation.MaxJurisdictions); err != nil {
		return err
	}
	return validation.CheckSliceCount("denied", len(r.Denied), validation.MaxJurisdictions)
}

func (r *JurisdictionListsRequest) Lists() (jurisdiction.Lists, error) {
	allowed, err := parseCodes(r.Allowed)
	if err != nil {
		return jurisdiction.Lists{}, err
	}
	denied, err := parseCodes(r.Denied)
	if err != nil {
		return jurisdiction.Lists{}, err
	}
	return jurisdiction.Lists{Allowed: allowed, Denied: denied}, nil
}

func parseCodes(raw []string) ([]domain.Jurisdiction, error) {
	out := make([]domain.Jurisdiction, 0, len(raw))
	for _, s := range raw {
		code, err := domain.ParseJurisdiction(s)
		if err != nil {
			return nil, err
		}
		out = append(out, code)
	}
	return out, nil
}

type AssetProfileRequest struct {
	ruleset.AssetProfile
}

func (r *AssetProfileRequest) Normalize() { r.AssetProfile = r.AssetProfile.Normalize() }

func (r *AssetProfileRequest) Validate() error { return r.AssetProfile.Validate() }

type ExpressionRequest struct {
	Expression string `json:"expression"`
}

func (r *ExpressionRequest) Normalize() { r.Expression = strings.TrimSpace(r.Expression) }

func (r *ExpressionRequest) Validate() error {
	if r.Expression == "" {
		return dErrors.New(dErrors.CodeValidation, "expression is required")
	}
	return validation.CheckStringLength("expression", r.Expression, validation.MaxExpressionLength)
}
