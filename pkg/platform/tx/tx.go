package tx

import (
	"context"
	"database/sql"
	"errors"
)

type (
	ctxKey   struct{}
	scopeKey struct{}
)

var (
	txKey    = ctxKey{}
	scopeCtx = scopeKey{}
)

// WithTx stores a SQL transaction in context for downstream store usage.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok && tx != nil
}

// Scope collects work that must run only if a unit of work commits. SQL
// stores flush it inside the transaction right before COMMIT so hooks join
// it; buffered stores flush it once the batch is applied.
type Scope struct {
	hooks []func(context.Context) error
}

// Begin opens a commit scope. The caller owns flushing it.
func Begin(ctx context.Context) (context.Context, *Scope) {
	s := &Scope{}
	return context.WithValue(ctx, scopeCtx, s), s
}

// Active reports whether ctx runs inside a unit of work.
func Active(ctx context.Context) bool {
	s, ok := ctx.Value(scopeCtx).(*Scope)
	return ok && s != nil
}

// Defer registers fn on the enclosing scope. It returns false when there is
// no scope, in which case the caller should run fn itself.
func Defer(ctx context.Context, fn func(context.Context) error) bool {
	s, ok := ctx.Value(scopeCtx).(*Scope)
	if !ok || s == nil {
		return false
	}
	s.hooks = append(s.hooks, fn)
	return true
}

// Flush runs deferred hooks in registration order and stops at the first error.
func (s *Scope) Flush(ctx context.Context) error {
	for _, fn := range s.hooks {
		if err := fn(ctx); err != nil {
			return err
		}
	}
	s.hooks = nil
	return nil
}

// FlushAll runs every deferred hook even when some fail, and joins the errors.
// Use it once the unit has committed and nothing can be rolled back.
func (s *Scope) FlushAll(ctx context.Context) error {
	var errs []error
	for _, fn := range s.hooks {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.hooks = nil
	return errors.Join(errs...)
}

// Detach returns a context that keeps request values but is no longer part of
// any unit of work. Writes made through it are not rolled back with the unit.
func Detach(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, txKey, (*sql.Tx)(nil))
	return context.WithValue(ctx, scopeCtx, (*Scope)(nil))
}
