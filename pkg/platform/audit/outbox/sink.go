package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	audit "gatekeeper/pkg/platform/audit"
)

// Sink adapts an outbox Store to audit.Store. Append serializes the event
// into an outbox entry; reads go to the materialized audit table that the
// consumer maintains.
type Sink struct {
	outbox Store
	reader audit.Store
}

func NewSink(outbox Store, reader audit.Store) *Sink {
	return &Sink{outbox: outbox, reader: reader}
}

func (s *Sink) Append(ctx context.Context, event audit.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	aggregateType, aggregateID := aggregateOf(event)
	entry := NewEntry(aggregateType, aggregateID, event.Action, payload)
	entry.ID = event.ID
	return s.outbox.Append(ctx, entry)
}

func (s *Sink) ListRecent(ctx context.Context, filter audit.Filter) ([]audit.Event, error) {
	if s.reader == nil {
		return nil, nil
	}
	return s.reader.ListRecent(ctx, filter)
}

func aggregateOf(e audit.Event) (string, string) {
	switch {
	case e.Asset != "":
		return "asset", e.Asset
	case e.Subject != "":
		return "identity", e.Subject
	default:
		return "engine", e.Component
	}
}
