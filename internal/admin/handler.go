package admin

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/audit"
	"gatekeeper/pkg/platform/httputil"
	adminmw "gatekeeper/pkg/platform/middleware/admin"
	"gatekeeper/pkg/requestcontext"
)

// Handler handles operator monitoring endpoints. Mount it behind the admin
// token middleware.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

func New(service *Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/admin/stats", h.HandleGetStats)
	r.Get("/admin/outbox", h.HandleGetOutbox)
	r.Get("/admin/audit/recent", h.HandleGetRecentAuditEvents)
}

func (h *Handler) HandleGetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := h.service.GetStats(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to get stats",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to get stats"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) HandleGetOutbox(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status, err := h.service.GetOutboxStatus(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to count outbox backlog",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read outbox"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

// HandleGetRecentAuditEvents accepts optional limit, action, asset and
// subject query filters.
func (h *Handler) HandleGetRecentAuditEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	filter := audit.Filter{
		Action:  q.Get("action"),
		Asset:   q.Get("asset"),
		Subject: q.Get("subject"),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer"))
			return
		}
		filter.Limit = limit
	}

	events, err := h.service.GetRecentAuditEvents(ctx, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to get recent audit events",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to get audit events"))
		return
	}

	h.logger.InfoContext(ctx, "admin audit events retrieved",
		"request_id", requestcontext.RequestID(ctx),
		"actor", adminmw.GetAdminActorID(ctx),
		"count", len(events),
	)
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"total":  len(events),
	})
}
