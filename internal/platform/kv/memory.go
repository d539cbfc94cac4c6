package kv

import (
	"context"
	"sync"
	"time"

	"gatekeeper/pkg/platform/sentinel"
)

// Memory is an in-process Store. Committed values are copied in and out so
// callers never share buffers with the map.
type Memory struct {
	*buffered
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return NewMemoryWithTimeout(DefaultTxTimeout)
}

// NewMemoryWithTimeout creates an in-memory store whose units of work are
// bounded by timeout when the caller sets no deadline.
func NewMemoryWithTimeout(timeout time.Duration) *Memory {
	m := &Memory{data: make(map[string][]byte)}
	m.buffered = newBuffered("memory", m, timeout)
	return m
}

func (m *Memory) load(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(v), nil
}

// apply ignores reads: the unit lock already serializes every writer.
func (m *Memory) apply(_ context.Context, _ map[string]observed, writes map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range writes {
		if v == nil {
			delete(m.data, k)
			continue
		}
		m.data[k] = clone(v)
	}
	return nil
}

// Len returns the number of committed keys.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
