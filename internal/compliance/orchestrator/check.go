package orchestrator

import (
	"context"
	"errors"
	"strconv"
	"time"

	"gatekeeper/internal/compliance"
	"gatekeeper/internal/platform/tracer"
	"gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/audit"
)

// PreTransferCheck decides whether tc may proceed: the asset must be bound,
// the participating parties verified, and every enabled module must allow it,
// evaluated in order and stopping at the first denial.
//
// A denial is returned as a Verdict, never as an error. Side effects made by
// modules during a denied check are rolled back; when ctx already carries a
// unit of work the rollback is left to its owner, which must abort on denial.
func (s *Service) PreTransferCheck(ctx context.Context, tc compliance.TransferContext) (verdict compliance.Verdict, err error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, tracer.SpanPreTransferCheck,
		tracer.String(tracer.AttrAsset, tc.Asset.String()),
		tracer.String(tracer.AttrKind, string(tc.Kind)),
		tracer.Int64(tracer.AttrAmount, int64(tc.Amount)),
	)
	defer func() {
		span.SetAttributes(tracer.Bool(tracer.AttrAllowed, verdict.Allowed))
		span.End(err)
	}()

	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		var evalErr error
		verdict, evalErr = s.evaluate(ctx, tc)
		if evalErr != nil {
			return evalErr
		}
		if !verdict.Allowed {
			return errDenied
		}
		return nil
	})
	if errors.Is(err, errDenied) {
		err = nil
	}
	if err != nil {
		return compliance.Verdict{}, err
	}

	s.metrics.ObserveCheck(string(tc.Kind), verdict.Module.String(), verdict.Allowed, time.Since(start))
	if !verdict.Allowed {
		span.AddEvent("denied", tracer.String(tracer.AttrModule, verdict.Module.String()), tracer.String(tracer.AttrReason, verdict.Reason))
		s.auditor.RecordNow(ctx, audit.Event{
			Action:   string(audit.EventTransferBlocked),
			Asset:    tc.Asset.String(),
			Subject:  tc.From.String(),
			Decision: "deny",
			Reason:   verdict.Reason,
			Attributes: map[string]string{
				"module": verdict.Module.String(),
				"kind":   string(tc.Kind),
				"to":     tc.To.String(),
				"amount": strconv.FormatInt(int64(tc.Amount), 10),
			},
		})
	}
	return verdict, nil
}

// CanTransfer is the boolean form of PreTransferCheck for a plain transfer.
func (s *Service) CanTransfer(ctx context.Context, from, to domain.Address, amount domain.Amount, asset domain.AssetID) (bool, error) {
	v, err := s.PreTransferCheck(ctx, compliance.TransferContext{
		Asset:  asset,
		From:   from,
		To:     to,
		Amount: amount,
		Kind:   compliance.KindTransfer,
	})
	return v.Allowed, err
}

// Simulate evaluates tc and always discards module side effects. It emits no
// events.
func (s *Service) Simulate(ctx context.Context, tc compliance.TransferContext) (compliance.Verdict, error) {
	var verdict compliance.Verdict
	err := s.store.RunInTx(compliance.WithDryRun(ctx), func(ctx context.Context) error {
		var evalErr error
		verdict, evalErr = s.evaluate(ctx, tc)
		if evalErr != nil {
			return evalErr
		}
		return errSimulated
	})
	if !errors.Is(err, errSimulated) {
		return compliance.Verdict{}, err
	}
	return verdict, nil
}

func validateContext(tc compliance.TransferContext) error {
	if tc.Asset.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "asset is required")
	}
	if tc.Amount < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "amount cannot be negative")
	}
	switch tc.Kind {
	case compliance.KindTransfer:
		if tc.From.IsNil() || tc.To.IsNil() {
			return dErrors.New(dErrors.CodeInvalidInput, "transfer requires from and to")
		}
	case compliance.KindMint:
		if tc.To.IsNil() {
			return dErrors.New(dErrors.CodeInvalidInput, "mint requires to")
		}
	case compliance.KindBurn:
		if tc.From.IsNil() {
			return dErrors.New(dErrors.CodeInvalidInput, "burn requires from")
		}
	default:
		return dErrors.New(dErrors.CodeInvalidInput, "unknown operation kind")
	}
	return nil
}

func (s *Service) evaluate(ctx context.Context, tc compliance.TransferContext) (compliance.Verdict, error) {
	if err := validateContext(tc); err != nil {
		return compliance.Verdict{}, err
	}

	bound, err := s.IsAssetBound(ctx, tc.Asset)
	if err != nil {
		return compliance.Verdict{}, err
	}
	if !bound {
		return compliance.Deny(DeciderOrchestrator, "asset not bound"), nil
	}

	if tc.ChecksSender() {
		ok, err := s.verifier.IsVerified(ctx, tc.From)
		if err != nil {
			return compliance.Verdict{}, err
		}
		if !ok {
			return compliance.Deny(DeciderIdentity, "sender not verified"), nil
		}
	}
	if tc.ChecksRecipient() {
		ok, err := s.verifier.IsVerified(ctx, tc.To)
		if err != nil {
			return compliance.Verdict{}, err
		}
		if !ok {
			return compliance.Deny(DeciderIdentity, "recipient not verified"), nil
		}
	}

	modules, err := s.enabled(ctx)
	if err != nil {
		return compliance.Verdict{}, err
	}
	for _, m := range modules {
		v, err := s.checkModule(ctx, m, tc)
		if err != nil {
			return compliance.Verdict{}, err
		}
		if !v.Allowed {
			if v.Module.IsNil() {
				v.Module = m.ID()
			}
			return v, nil
		}
	}
	return compliance.Allow(), nil
}

func (s *Service) checkModule(ctx context.Context, m compliance.Module, tc compliance.TransferContext) (v compliance.Verdict, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanModuleCheck, tracer.String(tracer.AttrModule, m.ID().String()))
	defer func() {
		span.SetAttributes(tracer.Bool(tracer.AttrAllowed, v.Allowed))
		span.End(err)
	}()
	v, err = m.Check(ctx, tc)
	if err != nil {
		return compliance.Verdict{}, dErrors.Wrap(err, dErrors.CodeInternal, "module "+m.ID().String()+" check failed")
	}
	return v, nil
}
