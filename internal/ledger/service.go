// Package ledger is a reference token ledger that routes every balance change
// through the compliance orchestrator. A mint, burn or transfer is one unit of
// work: the pre-transfer check, the balance mutation and the post-operation
// notification commit together or not at all.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"gatekeeper/internal/admin"
	"gatekeeper/internal/compliance"
	"gatekeeper/internal/compliance/metrics"
	"gatekeeper/internal/platform/kv"
	"gatekeeper/internal/platform/tracer"
	"gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/audit"
	"gatekeeper/pkg/requestcontext"
)

const (
	nsBalance = "balance"
	nsSupply  = "supply"
)

// Compliance is the orchestrator surface the ledger depends on.
type Compliance interface {
	PreTransferCheck(ctx context.Context, tc compliance.TransferContext) (compliance.Verdict, error)
	PostTransfer(ctx context.Context, tc compliance.TransferContext) error
	PostIssue(ctx context.Context, tc compliance.TransferContext) error
	PostRedeem(ctx context.Context, tc compliance.TransferContext) error
}

type Service struct {
	store      kv.Store
	guard      *admin.Guard
	compliance Compliance
	auditor    *audit.Logger
	metrics    *metrics.Metrics
	tracer     tracer.Tracer
	logger     *slog.Logger
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// New builds the ledger. guard authorizes mints and burns; transfers are
// authorized by the sender.
func New(store kv.Store, guard *admin.Guard, c Compliance, auditor *audit.Logger, opts ...Option) *Service {
	s := &Service{
		store:      store,
		guard:      guard,
		compliance: c,
		auditor:    auditor,
		tracer:     tracer.NewNoop(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Balance(ctx context.Context, asset domain.AssetID, holder domain.Address) (domain.Amount, error) {
	return s.readAmount(ctx, kv.Key(nsBalance, asset, holder))
}

func (s *Service) TotalSupply(ctx context.Context, asset domain.AssetID) (domain.Amount, error) {
	return s.readAmount(ctx, kv.Key(nsSupply, asset))
}

func (s *Service) Mint(ctx context.Context, asset domain.AssetID, to domain.Address, amount domain.Amount) error {
	tc := compliance.TransferContext{Asset: asset, To: to, Amount: amount, Kind: compliance.KindMint}
	return s.run(ctx, tc, func(ctx context.Context, tc compliance.TransferContext) error {
		if err := s.guard.Require(ctx); err != nil {
			return err
		}
		if err := s.checked(ctx, tc); err != nil {
			return err
		}
		toBalance, err := tc.ToBalance.Add(amount)
		if err != nil {
			return err
		}
		supply, err := s.TotalSupply(ctx, asset)
		if err != nil {
			return err
		}
		if supply, err = supply.Add(amount); err != nil {
			return err
		}
		if err := s.writeAmount(ctx, kv.Key(nsBalance, asset, to), toBalance); err != nil {
			return err
		}
		if err := s.writeAmount(ctx, kv.Key(nsSupply, asset), supply); err != nil {
			return err
		}
		return s.compliance.PostIssue(ctx, tc)
	})
}

func (s *Service) Burn(ctx context.Context, asset domain.AssetID, from domain.Address, amount domain.Amount) error {
	tc := compliance.TransferContext{Asset: asset, From: from, Amount: amount, Kind: compliance.KindBurn}
	return s.run(ctx, tc, func(ctx context.Context, tc compliance.TransferContext) error {
		if err := s.guard.Require(ctx); err != nil {
			return err
		}
		if err := s.checked(ctx, tc); err != nil {
			return err
		}
		supply, err := s.TotalSupply(ctx, asset)
		if err != nil {
			return err
		}
		if err := s.writeAmount(ctx, kv.Key(nsBalance, asset, from), tc.FromBalance-amount); err != nil {
			return err
		}
		if err := s.writeAmount(ctx, kv.Key(nsSupply, asset), supply.SubFloor(amount)); err != nil {
			return err
		}
		return s.compliance.PostRedeem(ctx, tc)
	})
}

// Transfer moves amount from the caller's balance. The caller must be from.
func (s *Service) Transfer(ctx context.Context, asset domain.AssetID, from, to domain.Address, amount domain.Amount) error {
	tc := compliance.TransferContext{Asset: asset, From: from, To: to, Amount: amount, Kind: compliance.KindTransfer}
	return s.run(ctx, tc, func(ctx context.Context, tc compliance.TransferContext) error {
		caller := requestcontext.Caller(ctx)
		if caller.IsNil() {
			return dErrors.New(dErrors.CodeUnauthorized, "caller is required")
		}
		if caller != from {
			return dErrors.New(dErrors.CodeUnauthorized, "only the sender can transfer")
		}
		if from == to {
			return dErrors.New(dErrors.CodeInvalidInput, "sender and recipient must differ")
		}
		if err := s.checked(ctx, tc); err != nil {
			return err
		}
		toBalance, err := tc.ToBalance.Add(amount)
		if err != nil {
			return err
		}
		if err := s.writeAmount(ctx, kv.Key(nsBalance, asset, from), tc.FromBalance-amount); err != nil {
			return err
		}
		if err := s.writeAmount(ctx, kv.Key(nsBalance, asset, to), toBalance); err != nil {
			return err
		}
		return s.compliance.PostTransfer(ctx, tc)
	})
}

type operation func(ctx context.Context, tc compliance.TransferContext) error

// run validates tc, loads the pre-operation balances into it and executes op
// as one unit of work. The operation's event is staged on the same unit.
func (s *Service) run(ctx context.Context, tc compliance.TransferContext, op operation) (err error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, tracer.SpanLedgerOperation,
		tracer.String(tracer.AttrKind, string(tc.Kind)),
		tracer.String(tracer.AttrAsset, tc.Asset.String()),
		tracer.Int64(tracer.AttrAmount, int64(tc.Amount)),
	)
	defer func() {
		span.End(err)
		s.metrics.ObserveTx(string(tc.Kind), outcome(err), time.Since(start))
	}()

	if err := validate(tc); err != nil {
		return err
	}
	return s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.loadBalances(ctx, &tc); err != nil {
			return err
		}
		if err := op(ctx, tc); err != nil {
			return err
		}
		return s.auditor.Record(ctx, audit.Event{
			Action:  string(eventFor(tc.Kind)),
			Asset:   tc.Asset.String(),
			Subject: subjectOf(tc).String(),
			Attributes: map[string]string{
				"from":   tc.From.String(),
				"to":     tc.To.String(),
				"amount": strconv.FormatInt(int64(tc.Amount), 10),
			},
		})
	})
}

// checked runs the pre-transfer check. A denial becomes a DeniedError, which
// aborts the unit so module state staged by the check is discarded.
func (s *Service) checked(ctx context.Context, tc compliance.TransferContext) error {
	if tc.ChecksSender() && tc.FromBalance < tc.Amount {
		return dErrors.New(dErrors.CodeInvalidInput, "insufficient balance")
	}
	verdict, err := s.compliance.PreTransferCheck(ctx, tc)
	if err != nil {
		return err
	}
	if !verdict.Allowed {
		s.logger.InfoContext(ctx, "ledger operation denied",
			"kind", string(tc.Kind),
			"asset", tc.Asset.String(),
			"module", verdict.Module.String(),
			"reason", verdict.Reason,
		)
		return &DeniedError{Verdict: verdict}
	}
	return nil
}

func (s *Service) loadBalances(ctx context.Context, tc *compliance.TransferContext) error {
	if tc.ChecksSender() {
		b, err := s.Balance(ctx, tc.Asset, tc.From)
		if err != nil {
			return err
		}
		tc.FromBalance = b
	}
	if tc.ChecksRecipient() {
		b, err := s.Balance(ctx, tc.Asset, tc.To)
		if err != nil {
			return err
		}
		tc.ToBalance = b
	}
	tc.HasBalances = true
	return nil
}

func (s *Service) readAmount(ctx context.Context, key string) (domain.Amount, error) {
	var amount domain.Amount
	if _, err := kv.GetJSON(ctx, s.store, key, &amount); err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read balance")
	}
	return amount, nil
}

// writeAmount stores amount, deleting the key at zero so emptied balances
// leave no state behind.
func (s *Service) writeAmount(ctx context.Context, key string, amount domain.Amount) error {
	var err error
	if amount == 0 {
		err = s.store.Delete(ctx, key)
	} else {
		err = kv.PutJSON(ctx, s.store, key, amount)
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store balance")
	}
	return nil
}

func validate(tc compliance.TransferContext) error {
	if tc.Asset.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "asset is required")
	}
	if tc.Amount <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "amount must be positive")
	}
	if tc.ChecksSender() && tc.From.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "from is required")
	}
	if tc.ChecksRecipient() && tc.To.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "to is required")
	}
	return nil
}

func eventFor(kind compliance.Kind) audit.Action {
	switch kind {
	case compliance.KindMint:
		return audit.EventMint
	case compliance.KindBurn:
		return audit.EventBurn
	default:
		return audit.EventTransfer
	}
}

func subjectOf(tc compliance.TransferContext) domain.Address {
	if tc.Kind == compliance.KindMint {
		return tc.To
	}
	return tc.From
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "committed"
	case errors.As(err, new(*DeniedError)):
		return "denied"
	default:
		return "failed"
	}
}
