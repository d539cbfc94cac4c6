package ruleset

import (
	"strings"
	"time"

	"gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
)

// DailyWindow is the length of the rolling daily-limit window.
const DailyWindow = 86400 * time.Second

// Ruleset holds the limits for one (region, asset type) pair. Zero limits are
// disabled.
type Ruleset struct {
	MaxTransferAmount domain.Amount `json:"max_transfer_amount" yaml:"max_transfer_amount"`
	DailyLimit        domain.Amount `json:"daily_limit" yaml:"daily_limit"`
	RequiresKYC       bool          `json:"requires_kyc" yaml:"requires_kyc"`
	RequiresKYB       bool          `json:"requires_kyb" yaml:"requires_kyb"`
	WhitelistOnly     bool          `json:"whitelist_only" yaml:"whitelist_only"`
}

func (r Ruleset) Validate() error {
	if r.MaxTransferAmount < 0 || r.DailyLimit < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "limits cannot be negative")
	}
	return nil
}

// AssetProfile selects the ruleset that governs an asset.
type AssetProfile struct {
	Region    string `json:"region" yaml:"region"`
	AssetType string `json:"asset_type" yaml:"asset_type"`
}

func (p AssetProfile) Normalize() AssetProfile {
	return AssetProfile{
		Region:    strings.ToUpper(strings.TrimSpace(p.Region)),
		AssetType: strings.ToLower(strings.TrimSpace(p.AssetType)),
	}
}

func (p AssetProfile) Validate() error {
	if p.Region == "" || p.AssetType == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "region and asset type are required")
	}
	return nil
}

// DailyState is an address's running total in the current window.
type DailyState struct {
	CumulativeAmount domain.Amount `json:"cumulative_amount"`
	WindowStart      time.Time     `json:"window_start"`
	TxCount          uint32        `json:"tx_count"`
}

// roll returns the state as seen at now, starting a fresh window once more
// than DailyWindow has elapsed.
func (d DailyState) roll(now time.Time) DailyState {
	if d.WindowStart.IsZero() || now.Sub(d.WindowStart) > DailyWindow {
		return DailyState{WindowStart: now}
	}
	return d
}
