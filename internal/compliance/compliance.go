// Package compliance defines the contract between the orchestrator and its
// rule modules: the transfer context a module evaluates, the verdict it
// returns, and the lifecycle hooks it receives after a balance change.
package compliance

import (
	"context"

	"gatekeeper/internal/identity/models"
	"gatekeeper/pkg/domain"
)

//go:generate mockgen -source=compliance.go -destination=mocks/mocks.go -package=mocks Module,Verifier,ClaimLookup

// Kind distinguishes the balance-changing operation being checked.
type Kind string

const (
	KindTransfer Kind = "transfer"
	KindMint     Kind = "mint"
	KindBurn     Kind = "burn"
)

// TransferContext describes one balance-changing operation. For a mint From
// is empty; for a burn To is empty. Balances are the pre-operation values and
// are only meaningful when HasBalances is set.
type TransferContext struct {
	Asset       domain.AssetID `json:"asset"`
	From        domain.Address `json:"from,omitempty"`
	To          domain.Address `json:"to,omitempty"`
	Amount      domain.Amount  `json:"amount"`
	Kind        Kind           `json:"kind"`
	FromBalance domain.Amount  `json:"from_balance,omitempty"`
	ToBalance   domain.Amount  `json:"to_balance,omitempty"`
	HasBalances bool           `json:"has_balances"`
}

// ChecksSender reports whether the sending side participates (not a mint).
func (tc TransferContext) ChecksSender() bool { return tc.Kind != KindMint }

// ChecksRecipient reports whether the receiving side participates (not a burn).
func (tc TransferContext) ChecksRecipient() bool { return tc.Kind != KindBurn }

// Verdict is a policy outcome. A denial is a normal result, never an error.
type Verdict struct {
	Allowed bool            `json:"allowed"`
	Reason  string          `json:"reason,omitempty"`
	Module  domain.ModuleID `json:"module,omitempty"`
}

func Allow() Verdict { return Verdict{Allowed: true} }

func Deny(module domain.ModuleID, reason string) Verdict {
	return Verdict{Allowed: false, Module: module, Reason: reason}
}

// Module is a pluggable rule. Check must not return an error for a policy
// outcome; the error is reserved for infrastructure failure. The hooks run
// after the ledger has applied the operation and any error aborts it.
type Module interface {
	ID() domain.ModuleID
	Check(ctx context.Context, tc TransferContext) (Verdict, error)
	Transferred(ctx context.Context, tc TransferContext) error
	Created(ctx context.Context, tc TransferContext) error
	Destroyed(ctx context.Context, tc TransferContext) error
}

// Verifier answers whether a holder satisfies every required claim topic.
type Verifier interface {
	IsVerified(ctx context.Context, holder domain.Address) (bool, error)
}

// ClaimLookup resolves trusted, valid claims for modules that read claim
// attributes or require a specific topic.
type ClaimLookup interface {
	HasValidClaim(ctx context.Context, holder domain.Address, topic domain.TopicID) (bool, error)
	ValidClaim(ctx context.Context, holder domain.Address, topic domain.TopicID) (*models.Claim, error)
}

// NopHooks gives modules without bookkeeping empty lifecycle hooks.
type NopHooks struct{}

func (NopHooks) Transferred(context.Context, TransferContext) error { return nil }
func (NopHooks) Created(context.Context, TransferContext) error     { return nil }
func (NopHooks) Destroyed(context.Context, TransferContext) error   { return nil }

type dryRunKey struct{}

// WithDryRun marks ctx as a simulation. Modules must not emit events that
// outlive the unit of work when IsDryRun is set.
func WithDryRun(ctx context.Context) context.Context {
	return context.WithValue(ctx, dryRunKey{}, true)
}

func IsDryRun(ctx context.Context) bool {
	v, _ := ctx.Value(dryRunKey{}).(bool)
	return v
}
