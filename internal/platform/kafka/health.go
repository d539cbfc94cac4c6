package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// HealthChecker checks Kafka broker connectivity.
type HealthChecker struct {
	brokers []string
	timeout time.Duration
}

func NewHealthChecker(brokers string) *HealthChecker {
	return &HealthChecker{
		brokers: splitBrokers(brokers),
		timeout: 5 * time.Second,
	}
}

// Check returns nil if at least one broker answers a metadata ping.
func (h *HealthChecker) Check(ctx context.Context) error {
	if len(h.brokers) == 0 {
		return fmt.Errorf("kafka brokers not configured")
	}
	client, err := kgo.NewClient(kgo.SeedBrokers(h.brokers...))
	if err != nil {
		return fmt.Errorf("create kafka client: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	if err := client.Ping(ctx); err != nil {
		return fmt.Errorf("no kafka brokers reachable: %w", err)
	}
	return nil
}

func (h *HealthChecker) Name() string {
	return "kafka"
}
