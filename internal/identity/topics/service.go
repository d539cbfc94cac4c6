// Package topics maintains the ordered list of claim topics every holder must
// satisfy to be verified.
package topics

import (
	"context"
	"log/slog"
	"strings"

	"gatekeeper/internal/admin"
	"gatekeeper/internal/identity/models"
	"gatekeeper/internal/platform/kv"
	"gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/audit"
)

const (
	nsTopic    = "topic"
	nsRequired = "required_topics"
)

type Service struct {
	store   kv.Store
	guard   *admin.Guard
	auditor *audit.Logger
	logger  *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func New(store kv.Store, guard *admin.Guard, auditor *audit.Logger, opts ...Option) *Service {
	s := &Service{store: store, guard: guard, auditor: auditor, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddTopic appends topic to the required list. An empty name falls back to
// the well-known name. Re-adding a topic renames it in place.
func (s *Service) AddTopic(ctx context.Context, topic domain.TopicID, name string) error {
	if topic == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "topic cannot be zero")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = topic.Name()
	}
	return s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.guard.Require(ctx); err != nil {
			return err
		}
		if err := kv.PutJSON(ctx, s.store, kv.Key(nsTopic, topic), models.Topic{ID: topic, Name: name}); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store topic")
		}
		if _, err := kv.ListAppend(ctx, s.store, kv.Key(nsRequired), topic.String()); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to index topic")
		}
		return s.auditor.Record(ctx, audit.Event{
			Action:     string(audit.EventTopicAdded),
			Attributes: map[string]string{"topic": topic.String(), "name": name},
		})
	})
}

// RemoveTopic drops topic from the required list. Unknown topics are ignored.
func (s *Service) RemoveTopic(ctx context.Context, topic domain.TopicID) error {
	return s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.guard.Require(ctx); err != nil {
			return err
		}
		removed, err := kv.ListRemove(ctx, s.store, kv.Key(nsRequired), topic.String())
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to index topic")
		}
		if !removed {
			s.logger.DebugContext(ctx, "topic not required, nothing to remove", "topic", topic.String())
			return nil
		}
		if err := s.store.Delete(ctx, kv.Key(nsTopic, topic)); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete topic")
		}
		return s.auditor.Record(ctx, audit.Event{
			Action:     string(audit.EventTopicRemoved),
			Attributes: map[string]string{"topic": topic.String()},
		})
	})
}

// RequiredTopics returns topic IDs in insertion order.
func (s *Service) RequiredTopics(ctx context.Context) ([]domain.TopicID, error) {
	items, err := kv.List(ctx, s.store, kv.Key(nsRequired))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read topics")
	}
	out := make([]domain.TopicID, 0, len(items))
	for _, item := range items {
		t, err := domain.ParseTopicID(item)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "corrupt topic index")
		}
		out = append(out, t)
	}
	return out, nil
}

// ListTopics returns the required topics with names, in insertion order.
func (s *Service) ListTopics(ctx context.Context) ([]models.Topic, error) {
	ids, err := s.RequiredTopics(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Topic, 0, len(ids))
	for _, id := range ids {
		topic := models.Topic{ID: id, Name: id.Name()}
		if _, err := kv.GetJSON(ctx, s.store, kv.Key(nsTopic, id), &topic); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read topic")
		}
		out = append(out, topic)
	}
	return out, nil
}

func (s *Service) IsRequired(ctx context.Context, topic domain.TopicID) (bool, error) {
	ok, err := kv.Has(ctx, s.store, kv.Key(nsTopic, topic))
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read topic")
	}
	return ok, nil
}
