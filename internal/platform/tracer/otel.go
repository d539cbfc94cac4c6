package tracer

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	dErrors "gatekeeper/pkg/domain-errors"
)

const (
	instrumentationName = "gatekeeper/compliance"
	attrPrefix          = "gatekeeper."
)

// OTelTracer exports engine spans through OpenTelemetry. Attribute keys are
// namespaced under "gatekeeper." to keep them apart from HTTP semconv keys.
type OTelTracer struct {
	tracer trace.Tracer
}

type OTelOption func(*OTelTracer)

func WithOTelTracer(t trace.Tracer) OTelOption {
	return func(o *OTelTracer) { o.tracer = t }
}

// NewOTel falls back to the global provider, which is a no-op until the
// process installs an SDK.
func NewOTel(opts ...OTelOption) *OTelTracer {
	t := &OTelTracer{tracer: nil}
	for _, opt := range opts {
		opt(t)
	}
	if t.tracer == nil {
		t.tracer = otel.Tracer(instrumentationName)
	}
	return t
}

func (t *OTelTracer) Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(convert(attrs)...),
	)
	return ctx, otelSpan{span: span}
}

type otelSpan struct {
	span trace.Span
}

// End treats a compliance refusal as an outcome, not a fault: the span gets
// a "refused" event and keeps an unset status. Everything else marks it
// as failed.
func (s otelSpan) End(err error) {
	switch {
	case err == nil:
	case dErrors.HasCode(err, dErrors.CodeForbidden):
		s.span.AddEvent("refused", trace.WithAttributes(attribute.String(attrPrefix+AttrReason, err.Error())))
	default:
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
	s.span.End()
}

func (s otelSpan) SetAttributes(attrs ...Attribute) {
	s.span.SetAttributes(convert(attrs)...)
}

func (s otelSpan) AddEvent(name string, attrs ...Attribute) {
	s.span.AddEvent(name, trace.WithAttributes(convert(attrs)...))
}

func convert(attrs []Attribute) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, a := range attrs {
		key := attrPrefix + a.Key
		switch v := a.Value.(type) {
		case string:
			out = append(out, attribute.String(key, v))
		case bool:
			out = append(out, attribute.Bool(key, v))
		case int64:
			out = append(out, attribute.Int64(key, v))
		case int:
			out = append(out, attribute.Int(key, v))
		case fmt.Stringer:
			out = append(out, attribute.String(key, v.String()))
		}
	}
	return out
}

var (
	_ Tracer = (*OTelTracer)(nil)
	_ Span   = otelSpan{}
)
