package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"gatekeeper/internal/platform/kafka/consumer"
	audit "gatekeeper/pkg/platform/audit"
)

// Handler materializes audit events from Kafka into an audit.Store.
// It implements consumer.Handler.
type Handler struct {
	store  audit.Store
	logger *slog.Logger
}

// NewHandler creates a new audit event consumer handler. The store's Append
// must be idempotent on Event.ID since delivery is at-least-once.
func NewHandler(store audit.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: store, logger: logger}
}

// Handle stores one event. Malformed records return nil so the offset is
// committed and they do not block the partition; store failures return an
// error so the record is retried.
func (h *Handler) Handle(ctx context.Context, msg *consumer.Message) error {
	var event audit.Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		h.logger.Error("failed to unmarshal audit payload",
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}

	if event.ID == uuid.Nil {
		id, err := uuid.Parse(msg.Headers["event_id"])
		if err != nil {
			h.logger.Error("audit event without ID",
				"offset", msg.Offset,
				"action", event.Action,
			)
			return nil
		}
		event.ID = id
	}
	if event.Action == "" {
		event.Action = msg.Headers["event_type"]
	}

	if err := h.store.Append(ctx, event); err != nil {
		h.logger.Error("failed to store audit event",
			"event_id", event.ID,
			"action", event.Action,
			"error", err,
		)
		return fmt.Errorf("store audit event: %w", err)
	}

	h.logger.Debug("stored audit event", "event_id", event.ID, "action", event.Action)
	return nil
}
