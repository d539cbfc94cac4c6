// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// Middleware sets these values; services only read them. Keeping the package free of
// net/http lets the compliance core depend on it without pulling in transport code.
//
// Usage in services (read values):
//
//	caller := requestcontext.Caller(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, time.Unix(600, 0))
//	ctx = requestcontext.WithCaller(ctx, "GADMIN")
package requestcontext

import (
	"context"
	"sync/atomic"
	"time"

	"gatekeeper/pkg/domain"
)

type (
	callerKey      struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
	sequenceKey    struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyCaller      = callerKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
	ContextKeySequence    = sequenceKey{}
)

// Caller returns the authenticated principal, or the zero Address when the
// request carries no authorization proof.
func Caller(ctx context.Context) domain.Address {
	if caller, ok := ctx.Value(ContextKeyCaller).(domain.Address); ok {
		return caller
	}
	return ""
}

// WithCaller injects the authenticated principal.
func WithCaller(ctx context.Context, caller domain.Address) context.Context {
	return context.WithValue(ctx, ContextKeyCaller, caller)
}

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (workers, CLI, policy bootstrap).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}

var sequence atomic.Uint64

// NextSequence stamps ctx with the next process-wide monotonic sequence number.
func NextSequence(ctx context.Context) context.Context {
	return context.WithValue(ctx, ContextKeySequence, sequence.Add(1))
}

// Sequence returns the sequence number stamped on ctx, or 0.
func Sequence(ctx context.Context) uint64 {
	if n, ok := ctx.Value(ContextKeySequence).(uint64); ok {
		return n
	}
	return 0
}
