// Package publisher is the single entry point compliance services use to
// record audit events.
package publisher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	dErrors "gatekeeper/pkg/domain-errors"
	audit "gatekeeper/pkg/platform/audit"
	"gatekeeper/pkg/platform/audit/metrics"
)

const asyncPersistTimeout = 5 * time.Second

// Publisher writes events to a Store, either inline with the caller's
// context or through a bounded queue.
//
// Inline writes join the caller's unit of work when the store is
// transactional (the Postgres outbox), so a rolled-back transfer leaves no
// audit row. Queued writes never do and suit best-effort sinks only.
type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *metrics.Metrics

	queue     chan audit.Event
	drained   sync.WaitGroup
	closeOnce sync.Once
}

type PublisherOption func(*Publisher)

// WithAsyncBuffer queues up to size events; Emit fails fast once full.
func WithAsyncBuffer(size int) PublisherOption {
	return func(p *Publisher) {
		if size > 0 {
			p.queue = make(chan audit.Event, size)
		}
	}
}

func WithMetrics(m *metrics.Metrics) PublisherOption {
	return func(p *Publisher) { p.metrics = m }
}

func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) { p.logger = logger }
}

func NewPublisher(store audit.Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{store: store, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(p)
	}
	if p.queue != nil {
		p.drained.Add(1)
		go p.drain()
	}
	return p
}

func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Action == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "audit event requires an action")
	}
	start := time.Now()
	defer func() { p.metrics.ObserveEmitDuration(time.Since(start).Seconds()) }()
	if event.Timestamp.IsZero() {
		event.Timestamp = start
	}

	if p.queue != nil {
		return p.enqueue(ctx, event)
	}
	if err := p.store.Append(ctx, event); err != nil {
		p.metrics.IncPersistFailures()
		return err
	}
	p.metrics.IncEmitted(event.Action)
	return nil
}

func (p *Publisher) enqueue(ctx context.Context, event audit.Event) error {
	select {
	case p.queue <- event:
		p.metrics.IncEmitted(event.Action)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	p.metrics.IncDropped()
	p.logger.Warn("audit queue full, event dropped", "action", event.Action, "asset", event.Asset)
	return dErrors.New(dErrors.CodeInternal, "audit buffer full")
}

func (p *Publisher) drain() {
	defer p.drained.Done()
	for event := range p.queue {
		p.persist(event)
	}
}

func (p *Publisher) persist(event audit.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), asyncPersistTimeout)
	defer cancel()
	if err := p.store.Append(ctx, event); err != nil {
		p.metrics.IncPersistFailures()
		p.logger.Error("failed to persist audit event", "error", err, "action", event.Action, "asset", event.Asset)
	}
}

// Close flushes queued events. Safe to call more than once; Emit must not be
// called afterwards in async mode.
func (p *Publisher) Close() {
	if p.queue == nil {
		return
	}
	p.closeOnce.Do(func() { close(p.queue) })
	p.drained.Wait()
}

func (p *Publisher) List(ctx context.Context, filter audit.Filter) ([]audit.Event, error) {
	return p.store.ListRecent(ctx, filter)
}
