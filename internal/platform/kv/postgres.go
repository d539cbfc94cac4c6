package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/sentinel"
	txcontext "gatekeeper/pkg/platform/tx"
)

// advisoryLockID serializes units of work across every engine instance that
// shares the database.
const advisoryLockID int64 = 0x6761746b

// Postgres is a Store backed by the kv_entries table. A unit of work is a
// sql.Tx carried in the context, so stores that share the database (the
// audit outbox) can join the same transaction.
type Postgres struct {
	db      *sql.DB
	timeout time.Duration
}

// NewPostgres creates a Postgres-backed store.
func NewPostgres(db *sql.DB, timeout time.Duration) *Postgres {
	if timeout <= 0 {
		timeout = DefaultTxTimeout
	}
	return &Postgres{db: db, timeout: timeout}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (p *Postgres) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return p.db
}

func (p *Postgres) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := p.execer(ctx).QueryRowContext(ctx, `SELECT value FROM kv_entries WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", key, mapPgError(err))
	}
	return value, nil
}

func (p *Postgres) Put(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := p.execer(ctx).ExecContext(ctx, `
		INSERT INTO kv_entries (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, key, value)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", key, mapPgError(err))
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, key string) error {
	if _, err := p.execer(ctx).ExecContext(ctx, `DELETE FROM kv_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, mapPgError(err))
	}
	return nil
}

func (p *Postgres) RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := txcontext.From(ctx); ok {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	outcome := outcomeRollback
	defer func() {
		txDuration.WithLabelValues("postgres", outcome).Observe(time.Since(start).Seconds())
	}()

	sqlTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		outcome = outcomeFailed
		return fmt.Errorf("begin tx: %w", mapPgError(err))
	}
	defer func() {
		if outcome != outcomeCommit {
			_ = sqlTx.Rollback() //nolint:errcheck // rollback after failure is best-effort
		}
	}()

	if _, err := sqlTx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, advisoryLockID); err != nil {
		outcome = outcomeFailed
		return fmt.Errorf("acquire unit lock: %w", mapPgError(err))
	}
	lockWaitDuration.WithLabelValues("postgres").Observe(time.Since(start).Seconds())

	txCtx := txcontext.WithTx(ctx, sqlTx)
	txCtx, scope := txcontext.Begin(txCtx)
	if err := fn(txCtx); err != nil {
		return err
	}
	if err := scope.Flush(txCtx); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		outcome = outcomeFailed
		return fmt.Errorf("commit tx: %w", mapPgError(err))
	}
	outcome = outcomeCommit
	return nil
}

// mapPgError translates driver errors into sentinel facts.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "23505":
			return errors.Join(sentinel.ErrConflict, err)
		case "57P01", "57014":
			return errors.Join(sentinel.ErrUnavailable, err)
		}
		return err
	}
	if pgconn.Timeout(err) {
		return errors.Join(sentinel.ErrUnavailable, err)
	}
	return err
}
