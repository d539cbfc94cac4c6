//go:build integration

// Package containers starts the Postgres, Redis and Redpanda dependencies
// for integration tests. Each container starts on first use and is shared by
// every suite in the test binary; Ryuk reaps them when the process exits.
package containers

import (
	"sync"
	"testing"
)

type lazy[T any] struct {
	mu  sync.Mutex
	val *T
}

func (l *lazy[T]) get(t *testing.T, start func(*testing.T) *T) *T {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.val == nil {
		l.val = start(t)
	}
	return l.val
}

type Manager struct {
	postgres lazy[PostgresContainer]
	redis    lazy[RedisContainer]
	kafka    lazy[KafkaContainer]
}

var shared = &Manager{}

func GetManager() *Manager { return shared }

func (m *Manager) GetPostgres(t *testing.T) *PostgresContainer {
	t.Helper()
	return m.postgres.get(t, NewPostgresContainer)
}

func (m *Manager) GetRedis(t *testing.T) *RedisContainer {
	t.Helper()
	return m.redis.get(t, NewRedisContainer)
}

func (m *Manager) GetKafka(t *testing.T) *KafkaContainer {
	t.Helper()
	return m.kafka.get(t, NewKafkaContainer)
}
