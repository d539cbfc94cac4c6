package memory

import (
	"context"
	"sync"

	audit "gatekeeper/pkg/platform/audit"
)

// InMemoryStore keeps audit events in process, newest last.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, copyEvent(event))
	return nil
}

// ListRecent returns matching events newest first.
func (s *InMemoryStore) ListRecent(_ context.Context, filter audit.Filter) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Event
	for i := len(s.events) - 1; i >= 0; i-- {
		if !filter.Matches(s.events[i]) {
			continue
		}
		out = append(out, copyEvent(s.events[i]))
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func copyEvent(e audit.Event) audit.Event {
	if e.Attributes != nil {
		attrs := make(map[string]string, len(e.Attributes))
		for k, v := range e.Attributes {
			attrs[k] = v
		}
		e.Attributes = attrs
	}
	return e
}
