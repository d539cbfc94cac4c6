// Package tracer is the tracing abstraction used by the compliance engine.
// Services depend on Tracer; OTelTracer adapts OpenTelemetry and NoopTracer
// is the default when tracing is not configured.
package tracer

import (
	"context"
)

// Span is an active trace span. End must be called exactly once.
type Span interface {
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
//
//	ctx, span := t.Start(ctx, tracer.SpanPreTransferCheck,
//	    tracer.String(tracer.AttrAsset, tc.Asset.String()),
//	)
//	defer func() { span.End(err) }()
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Span names.
const (
	SpanPreTransferCheck = "compliance.pre_transfer_check"
	SpanModuleCheck      = "compliance.module_check"
	SpanNotify           = "compliance.notify"
	SpanLedgerOperation  = "ledger.operation"
)

// Attribute keys.
const (
	AttrAsset   = "asset"
	AttrModule  = "module"
	AttrKind    = "kind"
	AttrAmount  = "amount"
	AttrAllowed = "allowed"
	AttrReason  = "reason"
	AttrHook    = "hook"
)
