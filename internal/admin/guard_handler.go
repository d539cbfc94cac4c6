package admin

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"

	"gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/httputil"
	"gatekeeper/pkg/requestcontext"
)

// GuardHandler exposes the per-component admin roles.
type GuardHandler struct {
	guards map[string]*Guard
	logger *slog.Logger
}

func NewGuardHandler(guards []*Guard, logger *slog.Logger) *GuardHandler {
	byName := make(map[string]*Guard, len(guards))
	for _, g := range guards {
		byName[g.Component()] = g
	}
	return &GuardHandler{guards: byName, logger: logger}
}

type AdminRequest struct {
	Admin string `json:"admin"`
}

func (r *AdminRequest) Normalize() { r.Admin = strings.TrimSpace(r.Admin) }

func (r *AdminRequest) Validate() error {
	_, err := domain.ParseAddress(r.Admin)
	return err
}

type ComponentAdmin struct {
	Component string `json:"component"`
	Admin     string `json:"admin,omitempty"`
}

// Register mounts the caller-authenticated routes. Transfer requires the
// bearer principal to be the current admin.
func (h *GuardHandler) Register(r chi.Router) {
	r.Get("/admins", h.HandleList)
	r.Post("/admins/{component}/transfer", h.HandleTransfer)
}

// Operator returns the routes that bootstrap components without a principal.
func (h *GuardHandler) Operator() *GuardOperatorRoutes {
	return &GuardOperatorRoutes{h: h}
}

type GuardOperatorRoutes struct{ h *GuardHandler }

func (o *GuardOperatorRoutes) Register(r chi.Router) {
	r.Post("/admin/components/{component}/initialize", o.h.HandleInitialize)
}

func (h *GuardHandler) guard(w http.ResponseWriter, r *http.Request) (*Guard, bool) {
	g, ok := h.guards[chi.URLParam(r, "component")]
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "unknown component"))
	}
	return g, ok
}

func (h *GuardHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	names := make([]string, 0, len(h.guards))
	for name := range h.guards {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make([]ComponentAdmin, 0, len(names))
	for _, name := range names {
		admin, err := h.guards[name].Admin(ctx)
		if err != nil && !dErrors.HasCode(err, dErrors.CodeNotFound) {
			httputil.WriteError(w, err)
			return
		}
		out = append(out, ComponentAdmin{Component: name, Admin: admin.String()})
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"components": out})
}

func (h *GuardHandler) HandleInitialize(w http.ResponseWriter, r *http.Request) {
	g, ok := h.guard(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[AdminRequest](w, r, h.logger)
	if !ok {
		return
	}
	ctx := r.Context()
	if err := g.Initialize(ctx, domain.Address(req.Admin)); err != nil {
		h.logger.WarnContext(ctx, "component initialize failed",
			"component", g.Component(),
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, ComponentAdmin{Component: g.Component(), Admin: req.Admin})
}

func (h *GuardHandler) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	g, ok := h.guard(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[AdminRequest](w, r, h.logger)
	if !ok {
		return
	}
	ctx := r.Context()
	if err := g.TransferAdmin(ctx, domain.Address(req.Admin)); err != nil {
		h.logger.WarnContext(ctx, "admin transfer failed",
			"component", g.Component(),
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ComponentAdmin{Component: g.Component(), Admin: req.Admin})
}
