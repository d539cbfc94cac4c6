// Package httptransport composes the public and operator HTTP surface. It
// owns the middleware stack; domain handlers only register their routes.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	adminmw "gatekeeper/pkg/platform/middleware/admin"
	"gatekeeper/pkg/platform/middleware/auth"
	request "gatekeeper/pkg/platform/middleware/request"
	"gatekeeper/pkg/platform/middleware/requesttime"
)

const defaultRequestTimeout = 30 * time.Second

// Registrar is implemented by every domain handler.
type Registrar interface {
	Register(r chi.Router)
}

type Config struct {
	Logger         *slog.Logger
	Validator      auth.JWTValidator
	Metrics        *request.Metrics
	MetricsHandler http.Handler
	AdminToken     string
	// AdminTokenHash, when set, takes precedence over AdminToken.
	AdminTokenHash string
	MaxBodyBytes   int64
	RequestTimeout time.Duration

	// Public routes carry the caller from an optional bearer token.
	Public []Registrar
	// Operator routes require the admin token.
	Operator []Registrar
}

// NewRouter wires all endpoints with the shared middleware stack.
func NewRouter(cfg Config) http.Handler {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(request.Recovery(cfg.Logger))
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(request.Logger(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(request.LatencyMiddleware(cfg.Metrics))
	}
	r.Use(request.Timeout(cfg.RequestTimeout))
	if cfg.MaxBodyBytes > 0 {
		r.Use(request.BodyLimit(cfg.MaxBodyBytes))
	}
	r.Use(request.ContentTypeJSON)

	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.Authenticate(cfg.Validator, cfg.Logger))
		for _, h := range cfg.Public {
			h.Register(r)
		}
	})

	r.Group(func(r chi.Router) {
		check := adminmw.MatchToken(cfg.AdminToken)
		if cfg.AdminTokenHash != "" {
			check = adminmw.MatchTokenHash(cfg.AdminTokenHash)
		}
		r.Use(adminmw.RequireAdmin(check, cfg.Logger))
		for _, h := range cfg.Operator {
			h.Register(r)
		}
	})

	return r
}
