// Package redis opens the go-redis client behind the Redis kv backend and
// exports its connection pool to Prometheus.
package redis

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"gatekeeper/internal/platform/config"
)

// Client embeds the go-redis client.
type Client struct {
	*redis.Client
}

// New dials Redis and registers a pool collector with reg. A nil reg skips
// registration. Returns nil when no URL is configured.
func New(ctx context.Context, cfg config.RedisConfig, reg prometheus.Registerer) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close() //nolint:errcheck // init failed
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	c := &Client{Client: client}
	if reg != nil {
		if err := reg.Register(NewPoolCollector(client)); err != nil {
			_ = client.Close() //nolint:errcheck // init failed
			return nil, fmt.Errorf("register redis pool metrics: %w", err)
		}
	}
	return c, nil
}

// Health pings the server.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.Client.Close()
}

// PoolStatter is satisfied by *redis.Client.
type PoolStatter interface {
	PoolStats() *redis.PoolStats
}

// PoolCollector reads pool statistics at scrape time.
type PoolCollector struct {
	pool PoolStatter

	hits, misses, timeouts, stale *prometheus.Desc
	total, idle                   *prometheus.Desc
}

func NewPoolCollector(pool PoolStatter) *PoolCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("gatekeeper_redis_pool_"+name, help, nil, nil)
	}
	return &PoolCollector{
		pool:     pool,
		hits:     desc("hits_total", "Number of times a free connection was found in the pool"),
		misses:   desc("misses_total", "Number of times a free connection was not found in the pool"),
		timeouts: desc("timeouts_total", "Number of times a wait for a connection timed out"),
		stale:    desc("stale_conns_total", "Number of stale connections removed from the pool"),
		total:    desc("total_conns", "Number of connections in the pool"),
		idle:     desc("idle_conns", "Number of idle connections in the pool"),
	}
}

func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{c.hits, c.misses, c.timeouts, c.stale, c.total, c.idle} {
		ch <- d
	}
}

func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.pool.PoolStats()
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(s.Hits))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(s.Misses))
	ch <- prometheus.MustNewConstMetric(c.timeouts, prometheus.CounterValue, float64(s.Timeouts))
	ch <- prometheus.MustNewConstMetric(c.stale, prometheus.CounterValue, float64(s.StaleConns))
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(s.TotalConns))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(s.IdleConns))
}
