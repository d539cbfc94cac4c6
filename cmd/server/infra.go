package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"gatekeeper/internal/platform/config"
	"gatekeeper/internal/platform/database"
	"gatekeeper/internal/platform/health"
	"gatekeeper/internal/platform/kafka"
	"gatekeeper/internal/platform/kafka/consumer"
	"gatekeeper/internal/platform/kafka/producer"
	"gatekeeper/internal/platform/kv"
	"gatekeeper/internal/platform/redis"
	"gatekeeper/pkg/platform/audit"
	auditconsumer "gatekeeper/pkg/platform/audit/consumer"
	auditmetrics "gatekeeper/pkg/platform/audit/metrics"
	"gatekeeper/pkg/platform/audit/outbox"
	outboxmetrics "gatekeeper/pkg/platform/audit/outbox/metrics"
	outboxpg "gatekeeper/pkg/platform/audit/outbox/store/postgres"
	"gatekeeper/pkg/platform/audit/outbox/worker"
	"gatekeeper/pkg/platform/audit/publisher"
	auditmem "gatekeeper/pkg/platform/audit/store/memory"
	auditpg "gatekeeper/pkg/platform/audit/store/postgres"
	"gatekeeper/pkg/platform/circuit"
)

const (
	auditTopicPartitions  = 3
	auditTopicReplication = 1
	auditBufferSize       = 1024
)

// infra holds the process-wide backing services. Optional members are nil
// when not configured.
type infra struct {
	store        kv.Store
	db           *database.Pool
	redis        *redis.Client
	events       audit.Store
	emitter      *publisher.Publisher
	outbox       outbox.Store
	relay        *worker.Worker
	materializer *consumer.Consumer
	producer     *producer.Producer
	closers      []func() error
}

func newInfra(ctx context.Context, cfg config.Server, reg prometheus.Registerer, hc *health.Handler, logger *slog.Logger) (*infra, error) {
	in := &infra{}

	db, err := database.New(ctx, cfg.Database, reg)
	if err != nil {
		return nil, err
	}
	if db != nil {
		in.db = db
		in.closers = append(in.closers, db.Close)
		hc.RegisterCheck("postgres", db.Health)
	}

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		in.store = kv.NewPostgres(db.DB(), cfg.TxTimeout)
	case config.BackendRedis:
		rc, err := redis.New(ctx, cfg.Redis, reg)
		if err != nil {
			in.close(logger)
			return nil, err
		}
		in.redis = rc
		in.closers = append(in.closers, rc.Close)
		hc.RegisterCheck("redis", rc.Health)
		in.store = kv.NewRedis(rc.Client, cfg.Redis.KeyPrefix, cfg.TxTimeout)
	default:
		in.store = kv.NewMemoryWithTimeout(cfg.TxTimeout)
	}

	if err := in.wireAudit(ctx, cfg, reg, hc, logger); err != nil {
		in.close(logger)
		return nil, err
	}
	return in, nil
}

// wireAudit picks the audit pipeline:
//   - kafka configured: events go to the postgres outbox inside the unit of
//     work, the relay publishes them and a consumer materializes audit_events;
//   - postgres without kafka: events are written to audit_events directly;
//   - otherwise: events are kept in memory.
func (in *infra) wireAudit(ctx context.Context, cfg config.Server, reg prometheus.Registerer, hc *health.Handler, logger *slog.Logger) error {
	pubOpts := []publisher.PublisherOption{
		publisher.WithMetrics(auditmetrics.New(reg)),
		publisher.WithPublisherLogger(logger),
	}

	switch {
	case len(cfg.Kafka.Brokers) > 0:
		brokers := strings.Join(cfg.Kafka.Brokers, ",")
		if err := kafka.EnsureTopic(ctx, brokers, cfg.Kafka.AuditTopic, auditTopicPartitions, auditTopicReplication); err != nil {
			return fmt.Errorf("provision audit topic: %w", err)
		}
		prod, err := producer.New(producer.Config{
			Brokers:  brokers,
			ClientID: "gatekeeper-outbox",
			Acks:     "all",
			Retries:  5,
		}, logger)
		if err != nil {
			return err
		}
		in.producer = prod
		in.closers = append(in.closers, prod.Close)

		reader := auditpg.New(in.db.DB())
		in.outbox = outboxpg.New(in.db.DB())
		in.events = outbox.NewSink(in.outbox, reader)
		in.relay = worker.New(in.outbox, prod,
			worker.WithTopic(cfg.Kafka.AuditTopic),
			worker.WithBatchSize(cfg.Kafka.BatchSize),
			worker.WithPollInterval(cfg.Kafka.PollInterval),
			worker.WithMetrics(outboxmetrics.New(reg)),
			worker.WithBreaker(circuit.New("audit-relay")),
			worker.WithLogger(logger),
		)
		in.materializer, err = consumer.New(consumer.Config{
			Brokers: brokers,
			GroupID: cfg.Kafka.ConsumerGroup,
			Topics:  []string{cfg.Kafka.AuditTopic},
		}, auditconsumer.NewHandler(reader, logger), logger)
		if err != nil {
			return err
		}
		hc.RegisterOptionalCheck("kafka", kafka.NewHealthChecker(brokers).Check)
		logger.InfoContext(ctx, "audit relay enabled", "topic", cfg.Kafka.AuditTopic)
	case in.db != nil:
		in.events = auditpg.New(in.db.DB())
	default:
		in.events = auditmem.NewInMemoryStore()
		pubOpts = append(pubOpts, publisher.WithAsyncBuffer(auditBufferSize))
	}

	in.emitter = publisher.NewPublisher(in.events, pubOpts...)
	in.closers = append(in.closers, func() error {
		in.emitter.Close()
		return nil
	})
	return nil
}

// close releases resources in reverse order of acquisition.
func (in *infra) close(logger *slog.Logger) {
	for i := len(in.closers) - 1; i >= 0; i-- {
		if err := in.closers[i](); err != nil {
			logger.Warn("failed to release resource", "error", err)
		}
	}
}
