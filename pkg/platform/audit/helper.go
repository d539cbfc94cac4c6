package audit

import (
	"context"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"gatekeeper/pkg/platform/tx"
	"gatekeeper/pkg/requestcontext"
)

// Emitter is the interface for audit event emission.
// Satisfied by publisher.Publisher.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// Logger provides structured audit logging with event emission for one component.
type Logger struct {
	textLogger *slog.Logger
	emitter    Emitter
	component  string
}

// NewLogger creates an audit logger. Both textLogger and emitter are optional.
func NewLogger(textLogger *slog.Logger, emitter Emitter, component string) *Logger {
	return &Logger{textLogger: textLogger, emitter: emitter, component: component}
}

// Record stages event on the enclosing unit of work so it is emitted only if
// the unit commits. Outside a unit it is emitted immediately. An emit failure
// aborts a SQL unit; buffered stores emit after commit and log the failure.
func (l *Logger) Record(ctx context.Context, event Event) error {
	if l == nil {
		return nil
	}
	event = l.enrich(ctx, event)
	if tx.Defer(ctx, func(ctx context.Context) error { return l.emit(ctx, event) }) {
		return nil
	}
	return l.emit(ctx, event)
}

// RecordNow emits event outside of any unit of work. Use it for denials,
// which must survive the rollback of the request that caused them.
func (l *Logger) RecordNow(ctx context.Context, event Event) {
	if l == nil {
		return
	}
	event = l.enrich(ctx, event)
	if err := l.emit(tx.Detach(ctx), event); err != nil && l.textLogger != nil {
		l.textLogger.ErrorContext(ctx, "failed to emit audit event",
			"error", err,
			"event", event.Action,
		)
	}
}

func (l *Logger) enrich(ctx context.Context, event Event) Event {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.Component == "" {
		event.Component = l.component
	}
	if event.ActorID == "" {
		event.ActorID = requestcontext.Caller(ctx).String()
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.Sequence == 0 {
		event.Sequence = requestcontext.Sequence(ctx)
	}
	return event
}

func (l *Logger) emit(ctx context.Context, event Event) error {
	if l.textLogger != nil {
		args := []any{
			"event", event.Action,
			"log_type", "audit",
			"component", event.Component,
		}
		if event.Asset != "" {
			args = append(args, "asset", event.Asset)
		}
		if event.Subject != "" {
			args = append(args, "subject", event.Subject)
		}
		if event.Reason != "" {
			args = append(args, "reason", event.Reason)
		}
		if event.RequestID != "" {
			args = append(args, "request_id", event.RequestID)
		}
		keys := make([]string, 0, len(event.Attributes))
		for k := range event.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			args = append(args, k, event.Attributes[k])
		}
		l.textLogger.InfoContext(ctx, event.Action, args...)
	}
	if l.emitter == nil {
		return nil
	}
	return l.emitter.Emit(ctx, event)
}
