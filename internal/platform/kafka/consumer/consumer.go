package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Message represents a received Kafka message.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// Handler processes consumed messages.
type Handler interface {
	// Handle processes a message. Returning an error leaves the offset
	// uncommitted so the record is redelivered.
	Handle(ctx context.Context, msg *Message) error
}

const (
	minBackoff = 100 * time.Millisecond
	maxBackoff = 5 * time.Second
)

// Consumer is a consumer-group member with manual, at-least-once commits.
type Consumer struct {
	client  *kgo.Client
	handler Handler
	logger  *slog.Logger
}

type Config struct {
	Brokers string
	GroupID string
	Topics  []string
	// AutoOffsetReset is "earliest" (default) or "latest".
	AutoOffsetReset string
}

func New(cfg Config, handler Handler, logger *slog.Logger) (*Consumer, error) {
	if cfg.Brokers == "" {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	if cfg.GroupID == "" {
		return nil, fmt.Errorf("kafka consumer group ID not configured")
	}
	if len(cfg.Topics) == 0 {
		return nil, fmt.Errorf("kafka consumer topics not configured")
	}

	reset := kgo.NewOffset().AtStart()
	if cfg.AutoOffsetReset == "latest" {
		reset = kgo.NewOffset().AtEnd()
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(strings.Split(cfg.Brokers, ",")...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(cfg.Topics...),
		kgo.ConsumeResetOffset(reset),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{client: client, handler: handler, logger: logger}, nil
}

// Run consumes until ctx is cancelled. Records in a partition are handled in
// order. A failed record is retried with backoff before anything after it,
// and its offset is committed only once the handler succeeds.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.client.Close()

	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			if !errors.Is(err, context.Canceled) {
				c.logger.Error("kafka fetch error", "topic", topic, "partition", partition, "error", err)
			}
		})

		var commit []*kgo.Record
		fetches.EachRecord(func(r *kgo.Record) {
			if ctx.Err() != nil {
				return
			}
			if c.handle(ctx, r) {
				commit = append(commit, r)
			}
		})

		if len(commit) == 0 {
			continue
		}
		if err := c.client.CommitRecords(ctx, commit...); err != nil && ctx.Err() == nil {
			c.logger.Error("failed to commit offsets", "error", err)
		}
	}
}

// handle retries until the handler succeeds or ctx ends.
func (c *Consumer) handle(ctx context.Context, r *kgo.Record) bool {
	backoff := minBackoff
	for {
		err := c.handler.Handle(ctx, toMessage(r))
		if err == nil {
			return true
		}
		c.logger.Error("failed to handle message",
			"topic", r.Topic,
			"partition", r.Partition,
			"offset", r.Offset,
			"retry_in", backoff,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func toMessage(r *kgo.Record) *Message {
	headers := make(map[string]string, len(r.Headers))
	for _, h := range r.Headers {
		headers[h.Key] = string(h.Value)
	}
	return &Message{
		Topic:     r.Topic,
		Partition: r.Partition,
		Offset:    r.Offset,
		Key:       r.Key,
		Value:     r.Value,
		Headers:   headers,
		Timestamp: r.Timestamp,
	}
}

// Healthy reports whether the brokers answer a ping.
func (c *Consumer) Healthy(ctx context.Context) bool {
	return c.client.Ping(ctx) == nil
}
