package kv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"gatekeeper/pkg/platform/sentinel"
)

// Redis is a Store backed by Redis strings. Units of work are serialized
// in-process and committed optimistically: the keys a unit read and wrote are
// WATCHed, the reads are revalidated, and the writes go out in one MULTI/EXEC.
// A unit that lost a race with another process is rerun.
type Redis struct {
	*buffered
	client *redis.Client
	prefix string
}

// NewRedis creates a Redis-backed store. All keys are namespaced by prefix.
func NewRedis(client *redis.Client, prefix string, timeout time.Duration) *Redis {
	r := &Redis{client: client, prefix: prefix}
	r.buffered = newBuffered("redis", r, timeout)
	return r
}

func (r *Redis) load(ctx context.Context, key string) ([]byte, error) {
	v, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, errors.Join(sentinel.ErrUnavailable, err))
	}
	return v, nil
}

var errStaleRead = errors.New("read key changed before commit")

func (r *Redis) apply(ctx context.Context, reads map[string]observed, writes map[string][]byte) error {
	watched := make([]string, 0, len(reads)+len(writes))
	for k := range reads {
		watched = append(watched, r.prefix+k)
	}
	for k := range writes {
		if _, ok := reads[k]; !ok {
			watched = append(watched, r.prefix+k)
		}
	}

	err := r.client.Watch(ctx, func(rtx *redis.Tx) error {
		for k, want := range reads {
			got, err := rtx.Get(ctx, r.prefix+k).Bytes()
			switch {
			case errors.Is(err, redis.Nil):
				if want.found {
					return fmt.Errorf("%s: %w", k, errStaleRead)
				}
			case err != nil:
				return err
			case !want.found || !bytes.Equal(got, want.value):
				return fmt.Errorf("%s: %w", k, errStaleRead)
			}
		}
		_, err := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for k, v := range writes {
				if v == nil {
					pipe.Del(ctx, r.prefix+k)
					continue
				}
				pipe.Set(ctx, r.prefix+k, v, 0)
			}
			return nil
		})
		return err
	}, watched...)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, errStaleRead), errors.Is(err, redis.TxFailedErr):
		return errors.Join(sentinel.ErrConflict, err)
	default:
		return errors.Join(sentinel.ErrUnavailable, err)
	}
}
