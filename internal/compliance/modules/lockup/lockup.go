// Package lockup enforces vesting schedules: a holder cannot transfer tokens
// that are still locked by a linear curve or a future milestone.
package lockup

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"gatekeeper/internal/admin"
	"gatekeeper/internal/compliance"
	"gatekeeper/internal/platform/kv"
	"gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/audit"
	"gatekeeper/pkg/requestcontext"
)

const (
	ID domain.ModuleID = "lockup"

	nsSchedule = "lockup"
)

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

func scheduleKey(asset domain.AssetID, holder domain.Address) string {
	return kv.Key(nsSchedule, asset, holder)
}

// NewSchedule is the input to CreateLockup.
type NewSchedule struct {
	Holder      domain.Address
	TotalAmount domain.Amount
	StartTime   time.Time
	CliffTime   time.Time
	EndTime     time.Time
	Revocable   bool
	Periods     []VestingPeriod
}

func (n NewSchedule) validate() error {
	if n.Holder.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "holder is required")
	}
	if n.TotalAmount < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "total amount cannot be negative")
	}
	if n.TotalAmount == 0 && len(n.Periods) == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "lockup must lock a linear amount or at least one period")
	}
	if n.CliffTime.Before(n.StartTime) || n.EndTime.Before(n.CliffTime) {
		return dErrors.New(dErrors.CodeInvalidInput, "schedule must satisfy start <= cliff <= end")
	}
	for _, p := range n.Periods {
		if err := validatePeriod(p); err != nil {
			return err
		}
	}
	return nil
}

func validatePeriod(p VestingPeriod) error {
	if p.Amount <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "period amount must be positive")
	}
	if p.ReleaseTime.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "period release time is required")
	}
	return nil
}

// CreateLockup installs a schedule for (asset, holder). An active schedule
// must be revoked before it can be replaced.
func (m *Module) CreateLockup(ctx context.Context, asset domain.AssetID, in NewSchedule) (*Schedule, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	schedule := &Schedule{
		Holder:      in.Holder,
		TotalAmount: in.TotalAmount,
		StartTime:   in.StartTime.UTC(),
		CliffTime:   in.CliffTime.UTC(),
		EndTime:     in.EndTime.UTC(),
		Revocable:   in.Revocable,
	}
	for _, p := range in.Periods {
		schedule.Periods = append(schedule.Periods, VestingPeriod{ReleaseTime: p.ReleaseTime.UTC(), Amount: p.Amount})
	}

	err := m.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := m.guard.Require(ctx); err != nil {
			return err
		}
		existing, err := m.Schedule(ctx, asset, in.Holder)
		if err != nil && !dErrors.HasCode(err, dErrors.CodeNotFound) {
			return err
		}
		if existing != nil && !existing.Revoked {
			return dErrors.New(dErrors.CodeConflict, "holder already has an active lockup")
		}
		if err := kv.PutJSON(ctx, m.store, scheduleKey(asset, in.Holder), schedule); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store lockup")
		}
		return m.auditor.Record(ctx, audit.Event{
			Action:  string(audit.EventLockupCreated),
			Asset:   asset.String(),
			Subject: in.Holder.String(),
			Attributes: map[string]string{
				"total_amount": formatAmount(in.TotalAmount),
				"cliff_time":   schedule.CliffTime.Format(time.RFC3339),
				"end_time":     schedule.EndTime.Format(time.RFC3339),
				"periods":      strconv.Itoa(len(schedule.Periods)),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return schedule, nil
}

// AddVestingPeriod appends a milestone to an existing schedule.
func (m *Module) AddVestingPeriod(ctx context.Context, asset domain.AssetID, holder domain.Address, period VestingPeriod) error {
	if err := validatePeriod(period); err != nil {
		return err
	}
	return m.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := m.guard.Require(ctx); err != nil {
			return err
		}
		schedule, err := m.Schedule(ctx, asset, holder)
		if err != nil {
			return err
		}
		schedule.Periods = append(schedule.Periods, VestingPeriod{ReleaseTime: period.ReleaseTime.UTC(), Amount: period.Amount})
		if err := kv.PutJSON(ctx, m.store, scheduleKey(asset, holder), schedule); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store lockup")
		}
		return nil
	})
}

// RevokeLockup stops the linear curve. Only revocable schedules can be
// revoked; revoking twice is a no-op.
func (m *Module) RevokeLockup(ctx context.Context, asset domain.AssetID, holder domain.Address) error {
	return m.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := m.guard.Require(ctx); err != nil {
			return err
		}
		schedule, err := m.Schedule(ctx, asset, holder)
		if err != nil {
			return err
		}
		if !schedule.Revocable {
			return dErrors.New(dErrors.CodeInvalidInput, "lockup is not revocable")
		}
		if schedule.Revoked {
			return nil
		}
		schedule.Revoked = true
		if err := kv.PutJSON(ctx, m.store, scheduleKey(asset, holder), schedule); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store lockup")
		}
		return m.auditor.Record(ctx, audit.Event{
			Action:  string(audit.EventLockupRevoked),
			Asset:   asset.String(),
			Subject: holder.String(),
		})
	})
}

// ReleaseVested moves the linear releasable amount and every due milestone
// into the released state and returns the total released.
func (m *Module) ReleaseVested(ctx context.Context, asset domain.AssetID, holder domain.Address) (domain.Amount, error) {
	var released domain.Amount
	err := m.store.RunInTx(ctx, func(ctx context.Context) error {
		schedule, err := m.Schedule(ctx, asset, holder)
		if err != nil {
			return err
		}
		now := requestcontext.Now(ctx)
		linear := Releasable(schedule, now)
		schedule.ReleasedAmount += linear
		released = linear
		for i := range schedule.Periods {
			p := &schedule.Periods[i]
			if !p.Released && !now.Before(p.ReleaseTime) {
				p.Released = true
				released += p.Amount
			}
		}
		if released == 0 {
			return nil
		}
		if err := kv.PutJSON(ctx, m.store, scheduleKey(asset, holder), schedule); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store lockup")
		}
		return m.auditor.Record(ctx, audit.Event{
			Action:     string(audit.EventTokensReleased),
			Asset:      asset.String(),
			Subject:    holder.String(),
			Attributes: map[string]string{"amount": formatAmount(released)},
		})
	})
	return released, err
}

// Schedule returns the lockup for (asset, holder), or NotFound.
func (m *Module) Schedule(ctx context.Context, asset domain.AssetID, holder domain.Address) (*Schedule, error) {
	var s Schedule
	found, err := kv.GetJSON(ctx, m.store, scheduleKey(asset, holder), &s)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read lockup")
	}
	if !found {
		return nil, dErrors.New(dErrors.CodeNotFound, "lockup not found")
	}
	return &s, nil
}

// LockedAmount is zero for holders without a schedule.
func (m *Module) LockedAmount(ctx context.Context, asset domain.AssetID, holder domain.Address) (domain.Amount, error) {
	s, err := m.Schedule(ctx, asset, holder)
	if dErrors.HasCode(err, dErrors.CodeNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return LockedAmount(s, requestcontext.Now(ctx)), nil
}

// Check requires the sender to keep at least the locked amount after the
// transfer. Without balances in the context the check cannot be evaluated
// and passes.
func (m *Module) Check(ctx context.Context, tc compliance.TransferContext) (compliance.Verdict, error) {
	if !tc.ChecksSender() || !tc.HasBalances {
		return compliance.Allow(), nil
	}
	locked, err := m.LockedAmount(ctx, tc.Asset, tc.From)
	if err != nil {
		return compliance.Verdict{}, err
	}
	if locked == 0 {
		return compliance.Allow(), nil
	}
	if int64(tc.FromBalance)-int64(tc.Amount) < int64(locked) {
		return compliance.Deny(ID, "amount exceeds unlocked balance"), nil
	}
	return compliance.Allow(), nil
}

func formatAmount(a domain.Amount) string { return strconv.FormatInt(int64(a), 10) }

var _ compliance.Module = (*Module)(nil)
