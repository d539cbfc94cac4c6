// Package database opens the Postgres pool behind the durable ruleset store
// and the audit outbox.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"gatekeeper/internal/platform/config"
	"gatekeeper/migrations"
)

const pingTimeout = 5 * time.Second

var errNotConfigured = errors.New("database not configured")

type Pool struct {
	db *sql.DB
}

// New connects, migrates, and registers sql.DBStats under the gatekeeper
// namespace. An empty URL yields a nil pool and a nil error; callers fall
// back to the in-memory store.
func New(ctx context.Context, cfg config.DatabaseConfig, reg prometheus.Registerer) (*Pool, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := prepare(ctx, db); err != nil {
		db.Close() //nolint:errcheck // init already failed
		return nil, err
	}
	if reg != nil {
		if err := reg.Register(collectors.NewDBStatsCollector(db, "gatekeeper")); err != nil {
			db.Close() //nolint:errcheck // init already failed
			return nil, fmt.Errorf("register db stats: %w", err)
		}
	}
	return &Pool{db: db}, nil
}

func prepare(ctx context.Context, db *sql.DB) error {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	if err := migrations.Apply(ctx, db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	return nil
}

func (p *Pool) DB() *sql.DB { return p.db }

func (p *Pool) Health(ctx context.Context) error {
	if p == nil || p.db == nil {
		return errNotConfigured
	}
	return p.db.PingContext(ctx)
}

func (p *Pool) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}
