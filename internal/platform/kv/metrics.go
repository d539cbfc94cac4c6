package kv

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	lockWaitDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gatekeeper_kv_lock_wait_seconds",
		Help:    "Time spent waiting to start a unit of work",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"backend"})
	txDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gatekeeper_kv_tx_duration_seconds",
		Help:    "Duration of units of work by outcome",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend", "outcome"})
	commitConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gatekeeper_kv_commit_conflicts_total",
		Help: "Units of work rejected at commit because a read key changed",
	}, []string{"backend"})
	hookFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gatekeeper_kv_post_commit_hook_failures_total",
		Help: "Deferred hooks that failed after their unit committed",
	}, []string{"backend"})
)

const (
	outcomeCommit   = "commit"
	outcomeRollback = "rollback"
	outcomeFailed   = "failed"
)
