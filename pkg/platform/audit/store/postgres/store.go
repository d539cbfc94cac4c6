package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	audit "gatekeeper/pkg/platform/audit"
	txcontext "gatekeeper/pkg/platform/tx"
)

const defaultListLimit = 100

// Store implements audit.Store using PostgreSQL.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Append inserts an audit event. Inserts are idempotent on the event ID so
// redelivered messages do not duplicate rows.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	attrs, err := json.Marshal(event.Attributes)
	if err != nil {
		return fmt.Errorf("marshal attributes: %w", err)
	}

	_, err = s.execer(ctx).ExecContext(ctx, `
		INSERT INTO audit_events (
			id, timestamp, sequence, component, action, asset, subject,
			actor_id, decision, reason, attributes, request_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`,
		event.ID,
		event.Timestamp,
		int64(event.Sequence), //nolint:gosec // sequences never exceed int64
		event.Component,
		event.Action,
		event.Asset,
		event.Subject,
		event.ActorID,
		event.Decision,
		event.Reason,
		attrs,
		event.RequestID,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListRecent returns matching events newest first.
func (s *Store) ListRecent(ctx context.Context, filter audit.Filter) ([]audit.Event, error) {
	var (
		where []string
		args  []any
	)
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		where = append(where, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("asset", filter.Asset)
	add("subject", filter.Subject)
	add("action", filter.Action)

	limit := clampLimit(filter.Limit)
	args = append(args, limit)

	query := `
		SELECT id, timestamp, sequence, component, action, asset, subject,
			   actor_id, decision, reason, attributes, request_id
		FROM audit_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY timestamp DESC, sequence DESC LIMIT $%d", len(args))

	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// clampLimit keeps the LIMIT argument inside int32 so the driver never
// receives a wrapped negative value.
func clampLimit(limit int) int32 {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(limit) //nolint:gosec // bounds checked above
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event

	for rows.Next() {
		var (
			event audit.Event
			seq   int64
			attrs []byte
		)
		err := rows.Scan(
			&event.ID,
			&event.Timestamp,
			&seq,
			&event.Component,
			&event.Action,
			&event.Asset,
			&event.Subject,
			&event.ActorID,
			&event.Decision,
			&event.Reason,
			&attrs,
			&event.RequestID,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Sequence = uint64(seq) //nolint:gosec // written from a uint64
		if len(attrs) > 0 && string(attrs) != "null" {
			if err := json.Unmarshal(attrs, &event.Attributes); err != nil {
				return nil, fmt.Errorf("decode audit attributes: %w", err)
			}
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}

	return events, nil
}
