package lockup

import (
	"time"

	"gatekeeper/pkg/domain"
)

// Schedule is a holder's lockup for one asset: a linear vesting curve from
// CliffTime to EndTime plus optional milestone periods.
type Schedule struct {
	Holder         domain.Address  `json:"holder"`
	TotalAmount    domain.Amount   `json:"total_amount"`
	ReleasedAmount domain.Amount   `json:"released_amount"`
	StartTime      time.Time       `json:"start_time"`
	CliffTime      time.Time       `json:"cliff_time"`
	EndTime        time.Time       `json:"end_time"`
	Revocable      bool            `json:"revocable"`
	Revoked        bool            `json:"revoked"`
	Periods        []VestingPeriod `json:"periods,omitempty"`
}

// VestingPeriod is a milestone that unlocks Amount in full at ReleaseTime.
type VestingPeriod struct {
	ReleaseTime time.Time     `json:"release_time"`
	Amount      domain.Amount `json:"amount"`
	Released    bool          `json:"released"`
}

// Releasable is the linear amount vested but not yet released at now.
// Durations are compared in whole seconds.
func Releasable(s *Schedule, now time.Time) domain.Amount {
	if s == nil || s.Revoked {
		return 0
	}
	t, cliff, end := now.Unix(), s.CliffTime.Unix(), s.EndTime.Unix()
	if t < cliff {
		return 0
	}
	if t >= end {
		return s.TotalAmount.SubFloor(s.ReleasedAmount)
	}
	vested := s.TotalAmount.MulDiv(t-cliff, end-cliff)
	return vested.SubFloor(s.ReleasedAmount)
}

// DueMilestones sums unreleased periods whose release time has passed.
func DueMilestones(s *Schedule, now time.Time) domain.Amount {
	var due domain.Amount
	for _, p := range s.Periods {
		if !p.Released && !now.Before(p.ReleaseTime) {
			due += p.Amount
		}
	}
	return due
}

// LockedAmount is what the holder may not move at now: the unvested linear
// remainder plus every milestone still in the future. A revoked schedule
// locks nothing on the linear curve.
func LockedAmount(s *Schedule, now time.Time) domain.Amount {
	if s == nil {
		return 0
	}
	var locked domain.Amount
	if !s.Revoked {
		locked = s.TotalAmount.SubFloor(s.ReleasedAmount).SubFloor(Releasable(s, now))
	}
	for _, p := range s.Periods {
		if !p.Released && now.Before(p.ReleaseTime) {
			locked += p.Amount
		}
	}
	return locked
}
