package outbox

import (
	"time"

	"github.com/google/uuid"
)

// Entry is a pending audit event in the outbox table. Entries are written in
// the same transaction as the compliance state change that produced them.
type Entry struct {
	ID            uuid.UUID
	AggregateType string // "asset", "identity", "engine"
	AggregateID   string // asset ID or holder address
	EventType     string // audit action, e.g. "transfer", "claim_added"
	Payload       []byte // JSON-encoded audit.Event
	CreatedAt     time.Time
	ProcessedAt   *time.Time // nil until published to Kafka
}

// IsPending returns true if this entry has not been processed yet.
func (e *Entry) IsPending() bool {
	return e.ProcessedAt == nil
}

// NewEntry creates a new outbox entry with a generated UUID.
func NewEntry(aggregateType, aggregateID, eventType string, payload []byte) *Entry {
	return &Entry{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
		CreatedAt:     time.Now(),
	}
}
