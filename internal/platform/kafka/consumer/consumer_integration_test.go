//go:build integration

package consumer_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"gatekeeper/internal/platform/kafka/consumer"
	"gatekeeper/internal/platform/kafka/producer"
	"gatekeeper/pkg/testutil/containers"
)

type ConsumerIntegrationSuite struct {
	suite.Suite
	kafka    *containers.KafkaContainer
	producer *producer.Producer
}

func TestConsumerIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(ConsumerIntegrationSuite))
}

func (s *ConsumerIntegrationSuite) SetupSuite() {
	s.kafka = containers.GetManager().GetKafka(s.T())
	prod, err := producer.New(producer.Config{
		Brokers:         s.kafka.Brokers,
		Acks:            "all",
		Retries:         3,
		DeliveryTimeout: 10 * time.Second,
	}, nil)
	s.Require().NoError(err)
	s.producer = prod
}

func (s *ConsumerIntegrationSuite) TearDownSuite() {
	if s.producer != nil {
		_ = s.producer.Close()
	}
}

type testHandler struct {
	mu       sync.Mutex
	messages []*consumer.Message
	errFunc  func(*consumer.Message) error
}

func (h *testHandler) Handle(_ context.Context, msg *consumer.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.errFunc != nil {
		if err := h.errFunc(msg); err != nil {
			return err
		}
	}
	h.messages = append(h.messages, msg)
	return nil
}

func (h *testHandler) Messages() []*consumer.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*consumer.Message(nil), h.messages...)
}

func (s *ConsumerIntegrationSuite) start(groupID, topic string, h consumer.Handler) (stop func()) {
	cons, err := consumer.New(consumer.Config{
		Brokers: s.kafka.Brokers,
		GroupID: groupID,
		Topics:  []string{topic},
	}, h, nil)
	s.Require().NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = cons.Run(ctx)
		close(done)
	}()
	return func() {
		cancel()
		<-done
	}
}

// Records arrive in order with their headers.
func (s *ConsumerIntegrationSuite) TestConsumerReceivesMessagesInOrder() {
	ctx := context.Background()
	topic := "test-consumer-receives"
	s.Require().NoError(s.kafka.CreateTopic(ctx, topic, 1, 1))

	for _, v := range []string{"1", "2", "3"} {
		s.Require().NoError(s.producer.Produce(ctx, &producer.Message{
			Topic:   topic,
			Key:     []byte("BOND-2030"),
			Value:   []byte(v),
			Headers: map[string]string{"event_type": "transfer"},
		}))
	}

	handler := &testHandler{}
	stop := s.start("test-consumer-receives-group", topic, handler)
	s.Eventually(func() bool { return len(handler.Messages()) >= 3 }, 10*time.Second, 100*time.Millisecond)
	stop()

	msgs := handler.Messages()
	s.Equal("1", string(msgs[0].Value))
	s.Equal("3", string(msgs[2].Value))
	s.Equal("transfer", msgs[0].Headers["event_type"])
}

// A failing handler is retried in place; nothing after it is committed first.
func (s *ConsumerIntegrationSuite) TestFailedRecordIsRetried() {
	ctx := context.Background()
	topic := "test-consumer-retry"
	s.Require().NoError(s.kafka.CreateTopic(ctx, topic, 1, 1))
	s.Require().NoError(s.producer.Produce(ctx, &producer.Message{Topic: topic, Key: []byte("k"), Value: []byte("v")}))

	var attempts atomic.Int32
	handler := &testHandler{errFunc: func(*consumer.Message) error {
		if attempts.Add(1) == 1 {
			return errors.New("store unavailable")
		}
		return nil
	}}
	stop := s.start("test-consumer-retry-group-"+time.Now().Format("150405"), topic, handler)
	s.Eventually(func() bool { return len(handler.Messages()) == 1 }, 10*time.Second, 100*time.Millisecond)
	stop()

	s.GreaterOrEqual(attempts.Load(), int32(2))
}
