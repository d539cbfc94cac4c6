// Package health serves the liveness, readiness and status probes.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"gatekeeper/pkg/platform/httputil"
)

// Version is set at build time via ldflags.
var Version = "dev"

const defaultCheckTimeout = 2 * time.Second

type CheckFunc func(ctx context.Context) error

type check struct {
	name     string
	fn       CheckFunc
	optional bool
}

type Handler struct {
	startTime    time.Time
	environment  string
	backend      string
	checkTimeout time.Duration

	mu     sync.RWMutex
	checks []check
}

// New builds a handler; backend names the configured state store and is
// reported by /health.
func New(environment, backend string) *Handler {
	return &Handler{
		startTime:    time.Now(),
		environment:  environment,
		backend:      backend,
		checkTimeout: defaultCheckTimeout,
	}
}

// RegisterCheck adds a dependency without which the engine cannot serve
// compliance decisions. A failure makes the readiness probe answer 503.
func (h *Handler) RegisterCheck(name string, fn CheckFunc) {
	h.add(check{name: name, fn: fn})
}

// RegisterOptionalCheck adds a dependency whose outage only degrades the
// service, such as the audit relay broker behind the outbox.
func (h *Handler) RegisterOptionalCheck(name string, fn CheckFunc) {
	h.add(check{name: name, fn: fn, optional: true})
}

func (h *Handler) add(c check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.checks {
		if h.checks[i].name == c.name {
			h.checks[i] = c
			return
		}
	}
	h.checks = append(h.checks, c)
	sort.Slice(h.checks, func(i, j int) bool { return h.checks[i].name < h.checks[j].name })
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/health", h.HandleStatus)
	r.Get("/health/live", h.HandleLiveness)
	r.Get("/health/ready", h.HandleReadiness)
}

type LivenessResponse struct {
	Status string `json:"status"`
}

func (h *Handler) HandleLiveness(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, LivenessResponse{Status: "alive"})
}

type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HandleReadiness probes every dependency in parallel, each under its own
// deadline. Status is "ready", "degraded" (an optional check failed, 200) or
// "not_ready" (a required check failed, 503).
func (h *Handler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	checks := append([]check(nil), h.checks...)
	h.mu.RUnlock()

	results := make([]error, len(checks))
	var g errgroup.Group
	for i, c := range checks {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), h.checkTimeout)
			defer cancel()
			results[i] = c.fn(ctx)
			return nil
		})
	}
	_ = g.Wait()

	resp := ReadinessResponse{Status: "ready", Checks: make(map[string]string, len(checks))}
	status := http.StatusOK
	for i, c := range checks {
		err := results[i]
		if err == nil {
			resp.Checks[c.name] = "up"
			continue
		}
		resp.Checks[c.name] = "down: " + err.Error()
		if c.optional {
			if resp.Status == "ready" {
				resp.Status = "degraded"
			}
			continue
		}
		resp.Status = "not_ready"
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, resp)
}

type StatusResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Environment   string `json:"environment"`
	StoreBackend  string `json:"store_backend"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Timestamp     string `json:"timestamp"`
}

func (h *Handler) HandleStatus(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, StatusResponse{
		Status:        "healthy",
		Version:       Version,
		Environment:   h.environment,
		StoreBackend:  h.backend,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	})
}
