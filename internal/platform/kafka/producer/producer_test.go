package producer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresBrokers(t *testing.T) {
	_, err := New(Config{}, nil)
	require.Error(t, err)
}

func TestToRecordOrdersHeaders(t *testing.T) {
	rec := toRecord(&Message{
		Topic:   "audit",
		Key:     []byte("BOND-2030"),
		Value:   []byte(`{}`),
		Headers: map[string]string{"event_type": "mint", "aggregate_id": "BOND-2030"},
	})
	require.Len(t, rec.Headers, 2)
	assert.Equal(t, "aggregate_id", rec.Headers[0].Key)
	assert.Equal(t, "event_type", rec.Headers[1].Key)
	assert.Equal(t, "audit", rec.Topic)
}

func TestProduceAfterCloseFailsEveryMessage(t *testing.T) {
	p, err := New(Config{Brokers: "127.0.0.1:1"}, nil)
	require.NoError(t, err)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	errs := p.ProduceBatch(context.Background(), []*Message{{Topic: "audit"}, {Topic: "audit"}})
	require.Len(t, errs, 2)
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrClosed)
	}
	assert.ErrorIs(t, p.Produce(context.Background(), &Message{Topic: "audit"}), ErrClosed)
	assert.False(t, p.Healthy(context.Background()))
}
