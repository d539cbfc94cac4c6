package tracer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	dErrors "gatekeeper/pkg/domain-errors"
)

type recordingSpan struct {
	noop.Span
	events []string
	errs   []error
	status codes.Code
	ended  bool
}

func (r *recordingSpan) AddEvent(name string, _ ...trace.EventOption) { r.events = append(r.events, name) }
func (r *recordingSpan) RecordError(err error, _ ...trace.EventOption) { r.errs = append(r.errs, err) }
func (r *recordingSpan) SetStatus(c codes.Code, _ string)               { r.status = c }
func (r *recordingSpan) End(...trace.SpanEndOption)                     { r.ended = true }

func TestOTelSpanEnd(t *testing.T) {
	t.Run("refusal is an event, not an error", func(t *testing.T) {
		rec := &recordingSpan{}
		otelSpan{span: rec}.End(dErrors.New(dErrors.CodeForbidden, "recipient not verified"))

		assert.True(t, rec.ended)
		assert.Equal(t, []string{"refused"}, rec.events)
		assert.Empty(t, rec.errs)
		assert.Equal(t, codes.Unset, rec.status)
	})

	t.Run("infrastructure failure marks the span", func(t *testing.T) {
		rec := &recordingSpan{}
		otelSpan{span: rec}.End(errors.New("store unavailable"))

		assert.True(t, rec.ended)
		assert.Len(t, rec.errs, 1)
		assert.Equal(t, codes.Error, rec.status)
	})

	t.Run("success leaves status unset", func(t *testing.T) {
		rec := &recordingSpan{}
		otelSpan{span: rec}.End(nil)

		assert.True(t, rec.ended)
		assert.Empty(t, rec.events)
		assert.Equal(t, codes.Unset, rec.status)
	})
}

type asset string

func (a asset) String() string { return string(a) }

func TestConvertNamespacesKeys(t *testing.T) {
	got := convert([]Attribute{
		String(AttrModule, "lockup"),
		Int64(AttrAmount, 500),
		Bool(AttrAllowed, true),
		{Key: "holders", Value: 3},
		{Key: AttrAsset, Value: asset("BOND")},
		{Key: "ignored", Value: 1.5},
	})

	assert.Equal(t, []attribute.KeyValue{
		attribute.String("gatekeeper.module", "lockup"),
		attribute.Int64("gatekeeper.amount", 500),
		attribute.Bool("gatekeeper.allowed", true),
		attribute.Int("gatekeeper.holders", 3),
		attribute.String("gatekeeper.asset", "BOND"),
	}, got)
}
