package lockup

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"gatekeeper/pkg/domain"
)

func at(sec int64) time.Time { return time.Unix(sec, 0).UTC() }

func linear(total domain.Amount) *Schedule {
	return &Schedule{TotalAmount: total, StartTime: at(0), CliffTime: at(100), EndTime: at(1100)}
}

func TestReleasable(t *testing.T) {
	tests := []struct {
		name     string
		now      int64
		released domain.Amount
		revoked  bool
		want     domain.Amount
	}{
		{name: "before cliff", now: 50, want: 0},
		{name: "at cliff", now: 100, want: 0},
		{name: "halfway", now: 600, want: 500},
		{name: "halfway after partial release", now: 600, released: 200, want: 300},
		{name: "released ahead of the curve", now: 600, released: 700, want: 0},
		{name: "at end", now: 1100, want: 1000},
		{name: "after end", now: 1200, released: 250, want: 750},
		{name: "revoked", now: 600, revoked: true, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := linear(1000)
			s.ReleasedAmount = tt.released
			s.Revoked = tt.revoked
			assert.Equal(t, tt.want, Releasable(s, at(tt.now)))
		})
	}
}

func TestReleasableCliffEqualsEnd(t *testing.T) {
	s := &Schedule{TotalAmount: 10, StartTime: at(0), CliffTime: at(100), EndTime: at(100)}
	assert.Equal(t, domain.Amount(0), Releasable(s, at(99)))
	assert.Equal(t, domain.Amount(10), Releasable(s, at(100)))
}

func TestLockedAmount(t *testing.T) {
	s := linear(1000)
	s.Periods = []VestingPeriod{
		{ReleaseTime: at(500), Amount: 40},
		{ReleaseTime: at(2000), Amount: 60},
	}

	assert.Equal(t, domain.Amount(1100), LockedAmount(s, at(0)))
	assert.Equal(t, domain.Amount(500+60), LockedAmount(s, at(600)), "due milestones no longer lock")
	assert.Equal(t, domain.Amount(60), LockedAmount(s, at(1500)))
	assert.Equal(t, domain.Amount(0), LockedAmount(s, at(2000)))

	s.Revoked = true
	assert.Equal(t, domain.Amount(60), LockedAmount(s, at(600)), "revocation frees the linear curve only")
	assert.Equal(t, domain.Amount(0), LockedAmount(nil, at(600)))
}

func TestDueMilestones(t *testing.T) {
	s := &Schedule{Periods: []VestingPeriod{
		{ReleaseTime: at(10), Amount: 5},
		{ReleaseTime: at(20), Amount: 7, Released: true},
		{ReleaseTime: at(30), Amount: 11},
	}}
	assert.Equal(t, domain.Amount(5), DueMilestones(s, at(25)))
	assert.Equal(t, domain.Amount(16), DueMilestones(s, at(30)))
}

func TestVestingProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("releasable is monotonic in time and bounded by total", prop.ForAll(
		func(total int64, cliff, span, t1, t2 int64) bool {
			s := &Schedule{TotalAmount: domain.Amount(total), CliffTime: at(cliff), EndTime: at(cliff + span)}
			if t1 > t2 {
				t1, t2 = t2, t1
			}
			r1, r2 := Releasable(s, at(t1)), Releasable(s, at(t2))
			return r1 <= r2 && r2 <= s.TotalAmount
		},
		gen.Int64Range(1, 1<<50),
		gen.Int64Range(0, 1_000_000),
		gen.Int64Range(1, 1_000_000),
		gen.Int64Range(0, 3_000_000),
		gen.Int64Range(0, 3_000_000),
	))

	properties.Property("locked plus releasable plus released equals total", prop.ForAll(
		func(total, released, now int64) bool {
			s := linear(domain.Amount(total))
			if released > total {
				released = total
			}
			s.ReleasedAmount = domain.Amount(released)
			n := at(now)
			return LockedAmount(s, n)+Releasable(s, n)+s.ReleasedAmount == s.TotalAmount
		},
		gen.Int64Range(1, 1<<40),
		gen.Int64Range(0, 1<<40),
		gen.Int64Range(0, 2000),
	))

	properties.TestingRun(t)
}
