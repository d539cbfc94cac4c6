package kv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/sentinel"
	"gatekeeper/pkg/platform/tx"
)

// DefaultTxTimeout bounds a unit of work that arrives without a deadline.
const DefaultTxTimeout = 5 * time.Second

const (
	maxCommitAttempts = 5
	conflictBackoff   = 2 * time.Millisecond
)

// observed is the committed state of a key as first read by a unit.
type observed struct {
	value []byte
	found bool
}

// backend is the raw storage behind a buffered store. apply must write the
// whole batch atomically; a nil value deletes the key. Backends shared with
// other processes must reject the batch with sentinel.ErrConflict when any key
// in reads no longer holds the observed state.
type backend interface {
	load(ctx context.Context, key string) ([]byte, error)
	apply(ctx context.Context, reads map[string]observed, writes map[string][]byte) error
}

type unitKey struct{}

// unit buffers the writes of one in-flight transaction and remembers what it
// read from the backend.
type unit struct {
	owner  *buffered
	reads  map[string]observed
	writes map[string][]byte
}

// buffered serializes units of work with a context-aware lock and applies
// each unit's writes in one batch at commit. Deferred hooks run only after
// the batch is applied.
type buffered struct {
	name    string
	backend backend
	lock    chan struct{}
	timeout time.Duration
	logger  *slog.Logger
}

func newBuffered(name string, b backend, timeout time.Duration) *buffered {
	if timeout <= 0 {
		timeout = DefaultTxTimeout
	}
	return &buffered{
		name:    name,
		backend: b,
		lock:    make(chan struct{}, 1),
		timeout: timeout,
		logger:  slog.Default(),
	}
}

func (s *buffered) unitFrom(ctx context.Context) *unit {
	u, ok := ctx.Value(unitKey{}).(*unit)
	if !ok || u == nil || u.owner != s {
		return nil
	}
	return u
}

func (s *buffered) Get(ctx context.Context, key string) ([]byte, error) {
	u := s.unitFrom(ctx)
	if u != nil {
		if v, ok := u.writes[key]; ok {
			if v == nil {
				return nil, sentinel.ErrNotFound
			}
			return clone(v), nil
		}
	}
	v, err := s.backend.load(ctx, key)
	if u != nil {
		u.observe(key, v, err)
	}
	return v, err
}

func (u *unit) observe(key string, v []byte, err error) {
	if _, seen := u.reads[key]; seen {
		return
	}
	switch {
	case err == nil:
		u.reads[key] = observed{value: clone(v), found: true}
	case errors.Is(err, sentinel.ErrNotFound):
		u.reads[key] = observed{}
	}
}

func (s *buffered) Put(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	if u := s.unitFrom(ctx); u != nil {
		u.writes[key] = clone(value)
		return nil
	}
	return s.RunInTx(ctx, func(ctx context.Context) error { return s.Put(ctx, key, value) })
}

func (s *buffered) Delete(ctx context.Context, key string) error {
	if u := s.unitFrom(ctx); u != nil {
		u.writes[key] = nil
		return nil
	}
	return s.RunInTx(ctx, func(ctx context.Context) error { return s.Delete(ctx, key) })
}

// RunInTx runs fn as one unit of work. A unit whose reads went stale before
// commit is rerun from scratch, up to maxCommitAttempts times.
func (s *buffered) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.unitFrom(ctx) != nil {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	lockStart := time.Now()
	select {
	case s.lock <- struct{}{}:
	case <-ctx.Done():
		return dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "transaction aborted: lock wait exceeded")
	}
	lockWaitDuration.WithLabelValues(s.name).Observe(time.Since(lockStart).Seconds())
	defer func() { <-s.lock }()

	for attempt := 1; ; attempt++ {
		err := s.attempt(ctx, fn)
		if err == nil || !errors.Is(err, sentinel.ErrConflict) {
			return err
		}
		commitConflicts.WithLabelValues(s.name).Inc()
		if attempt == maxCommitAttempts {
			return dErrors.Wrap(err, dErrors.CodeConflict, "transaction aborted: concurrent update")
		}
		select {
		case <-time.After(time.Duration(attempt) * conflictBackoff):
		case <-ctx.Done():
			return dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "transaction aborted: retry wait exceeded")
		}
	}
}

func (s *buffered) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	start := time.Now()
	u := &unit{owner: s, reads: make(map[string]observed), writes: make(map[string][]byte)}
	unitCtx, scope := tx.Begin(context.WithValue(ctx, unitKey{}, u))

	if err := fn(unitCtx); err != nil {
		txDuration.WithLabelValues(s.name, outcomeRollback).Observe(time.Since(start).Seconds())
		return err
	}
	if len(u.writes) > 0 {
		if err := s.backend.apply(ctx, u.reads, u.writes); err != nil {
			txDuration.WithLabelValues(s.name, outcomeFailed).Observe(time.Since(start).Seconds())
			return fmt.Errorf("commit %s unit: %w", s.name, err)
		}
	}
	txDuration.WithLabelValues(s.name, outcomeCommit).Observe(time.Since(start).Seconds())

	// The writes are durable; a failing hook can no longer undo them.
	if err := scope.FlushAll(tx.Detach(ctx)); err != nil {
		hookFailures.WithLabelValues(s.name).Inc()
		s.logger.ErrorContext(ctx, "post-commit hook failed", "backend", s.name, "error", err)
	}
	return nil
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
