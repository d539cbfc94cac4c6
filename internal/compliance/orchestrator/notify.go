package orchestrator

import (
	"context"
	"time"

	"gatekeeper/internal/compliance"
	"gatekeeper/internal/platform/tracer"
	dErrors "gatekeeper/pkg/domain-errors"
)

type hook func(m compliance.Module, ctx context.Context, tc compliance.TransferContext) error

// PostTransfer notifies every enabled module, in order, that tc was applied.
// The first module error aborts the notification and the enclosing unit.
func (s *Service) PostTransfer(ctx context.Context, tc compliance.TransferContext) error {
	return s.notify(ctx, "transferred", tc, compliance.Module.Transferred)
}

func (s *Service) PostIssue(ctx context.Context, tc compliance.TransferContext) error {
	return s.notify(ctx, "created", tc, compliance.Module.Created)
}

func (s *Service) PostRedeem(ctx context.Context, tc compliance.TransferContext) error {
	return s.notify(ctx, "destroyed", tc, compliance.Module.Destroyed)
}

func (s *Service) notify(ctx context.Context, name string, tc compliance.TransferContext, fn hook) (err error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, tracer.SpanNotify,
		tracer.String(tracer.AttrHook, name),
		tracer.String(tracer.AttrAsset, tc.Asset.String()),
	)
	defer func() {
		span.End(err)
		s.metrics.ObserveNotify(name, time.Since(start))
	}()

	return s.store.RunInTx(ctx, func(ctx context.Context) error {
		modules, err := s.enabled(ctx)
		if err != nil {
			return err
		}
		for _, m := range modules {
			if err := fn(m, ctx, tc); err != nil {
				s.logger.ErrorContext(ctx, "module notification failed",
					"module", m.ID().String(),
					"hook", name,
					"asset", tc.Asset.String(),
					"error", err,
				)
				return dErrors.Wrap(err, dErrors.CodeInternal, "module "+m.ID().String()+" "+name+" hook failed")
			}
		}
		return nil
	})
}
