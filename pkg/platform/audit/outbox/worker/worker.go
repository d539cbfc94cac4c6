package worker

import (
	"context"
	"log/slog"
	"time"

	"gatekeeper/internal/platform/kafka/producer"
	"gatekeeper/pkg/platform/audit/outbox"
	"gatekeeper/pkg/platform/audit/outbox/metrics"
	"gatekeeper/pkg/platform/circuit"
)

// Publisher delivers a batch and reports one error per message, aligned by
// index. *producer.Producer satisfies it.
type Publisher interface {
	ProduceBatch(ctx context.Context, msgs []*producer.Message) []error
}

// Worker polls the outbox and publishes audit events to Kafka.
type Worker struct {
	store        outbox.Store
	publisher    Publisher
	topic        string
	batchSize    int
	pollInterval time.Duration
	drainTimeout time.Duration
	metrics      *metrics.Metrics
	breaker      *circuit.Breaker
	logger       *slog.Logger
}

// Option configures the Worker.
type Option func(*Worker)

func WithTopic(topic string) Option {
	return func(w *Worker) {
		w.topic = topic
	}
}

func WithBatchSize(size int) Option {
	return func(w *Worker) {
		if size > 0 {
			w.batchSize = size
		}
	}
}

func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.pollInterval = interval
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

// WithBreaker sheds publish attempts while the broker is failing.
func WithBreaker(b *circuit.Breaker) Option {
	return func(w *Worker) {
		w.breaker = b
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

// DefaultTopic is where audit events land unless configured otherwise.
const DefaultTopic = "gatekeeper.audit.events"

// New creates a new outbox worker.
func New(store outbox.Store, pub Publisher, opts ...Option) *Worker {
	w := &Worker{
		store:        store,
		publisher:    pub,
		topic:        DefaultTopic,
		batchSize:    100,
		pollInterval: 100 * time.Millisecond,
		drainTimeout: 10 * time.Second,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run polls until ctx is cancelled, then drains what is left with a short
// timeout. It always returns nil after a clean shutdown.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.drain()
			return nil
		case <-ticker.C:
			w.Poll(ctx)
		}
	}
}

// Poll publishes one batch and returns how many entries were marked processed.
func (w *Worker) Poll(ctx context.Context) int {
	start := time.Now()
	defer func() { w.metrics.ObservePollDuration(time.Since(start).Seconds()) }()

	if w.breaker != nil && !w.breaker.Allow() {
		return 0
	}

	entries, err := w.store.FetchUnprocessed(ctx, w.batchSize)
	if err != nil {
		w.logger.Error("failed to fetch outbox entries", "error", err)
		w.metrics.IncPublishFailures()
		return 0
	}
	if len(entries) == 0 {
		return 0
	}
	w.metrics.ObserveBatchSize(len(entries))

	return w.publishBatch(ctx, entries)
}

// publishBatch sends entries in one round trip and marks the longest
// successful prefix processed. Everything after the first failure stays
// pending so a retry cannot reorder an asset's events.
func (w *Worker) publishBatch(ctx context.Context, entries []*outbox.Entry) int {
	start := time.Now()
	msgs := make([]*producer.Message, len(entries))
	for i, entry := range entries {
		msgs[i] = w.message(entry)
	}
	errs := w.publisher.ProduceBatch(ctx, msgs)

	published := 0
	for i, entry := range entries {
		if err := errs[i]; err != nil {
			w.logger.Error("failed to publish outbox entry",
				"id", entry.ID,
				"event_type", entry.EventType,
				"error", err,
			)
			w.metrics.IncPublishFailures()
			w.record(err)
			return published
		}
		if err := w.store.MarkProcessed(ctx, entry.ID, time.Now()); err != nil {
			// published but not marked: the idempotent consumer absorbs the redelivery
			w.logger.Error("failed to mark entry as processed", "id", entry.ID, "error", err)
			continue
		}
		w.metrics.IncPublished()
		published++
	}
	w.record(nil)
	w.metrics.ObservePublishDuration(time.Since(start).Seconds())
	return published
}

func (w *Worker) message(entry *outbox.Entry) *producer.Message {
	return &producer.Message{
		Topic: w.topic,
		Key:   []byte(entry.AggregateID),
		Value: entry.Payload,
		Headers: map[string]string{
			"event_id":       entry.ID.String(),
			"aggregate_type": entry.AggregateType,
			"aggregate_id":   entry.AggregateID,
			"event_type":     entry.EventType,
		},
	}
}

func (w *Worker) record(err error) {
	if w.breaker == nil {
		return
	}
	var change circuit.StateChange
	if err != nil {
		change = w.breaker.RecordFailure()
	} else {
		change = w.breaker.RecordSuccess()
	}
	switch {
	case change.Opened:
		w.logger.Warn("audit publisher circuit opened", "breaker", w.breaker.Name())
		w.metrics.SetBreakerOpen(true)
	case change.Closed:
		w.logger.Info("audit publisher circuit closed", "breaker", w.breaker.Name())
		w.metrics.SetBreakerOpen(false)
	}
}

func (w *Worker) drain() {
	w.logger.Info("draining outbox worker")
	ctx, cancel := context.WithTimeout(context.Background(), w.drainTimeout)
	defer cancel()

	for ctx.Err() == nil {
		if w.Poll(ctx) == 0 {
			return
		}
	}
}

// UpdateMetrics refreshes the pending depth gauge.
func (w *Worker) UpdateMetrics(ctx context.Context) error {
	if w.metrics == nil {
		return nil
	}
	count, err := w.store.CountPending(ctx)
	if err != nil {
		return err
	}
	w.metrics.SetPendingDepth(count)
	return nil
}
