package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gatekeeper/internal/compliance"
	"gatekeeper/pkg/domain"
	"gatekeeper/pkg/platform/httputil"
	"gatekeeper/pkg/requestcontext"
)

type Orchestrator interface {
	Available() []domain.ModuleID
	BindAsset(ctx context.Context, asset domain.AssetID) error
	UnbindAsset(ctx context.Context, asset domain.AssetID) error
	ListBoundAssets(ctx context.Context) ([]domain.AssetID, error)
	EnableModule(ctx context.Context, module domain.ModuleID) error
	DisableModule(ctx context.Context, module domain.ModuleID) error
	EnabledModules(ctx context.Context) ([]domain.ModuleID, error)
	Simulate(ctx context.Context, tc compliance.TransferContext) (compliance.Verdict, error)
}

type Handler struct {
	orchestrator Orchestrator
	modules      Modules
	logger       *slog.Logger
}

func New(orchestrator Orchestrator, modules Modules, logger *slog.Logger) *Handler {
	return &Handler{orchestrator: orchestrator, modules: modules, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/compliance", func(r chi.Router) {
		r.Post("/assets", h.HandleBindAsset)
		r.Get("/assets", h.HandleListAssets)
		r.Delete("/assets/{asset}", h.HandleUnbindAsset)

		r.Post("/modules", h.HandleEnableModule)
		r.Get("/modules", h.HandleListModules)
		r.Delete("/modules/{module}", h.HandleDisableModule)

		r.Post("/check", h.HandleCheck)

		h.registerModules(r)
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	ctx := r.Context()
	h.logger.WarnContext(ctx, op+" failed", "error", err, "request_id", requestcontext.RequestID(ctx))
	httputil.WriteError(w, err)
}

func (h *Handler) HandleBindAsset(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.DecodeAndPrepare[AssetRequest](w, r, h.logger)
	if !ok {
		return
	}
	if err := h.orchestrator.BindAsset(r.Context(), domain.AssetID(req.Asset)); err != nil {
		h.fail(w, r, "bind asset", err)
		return
	}
	h.writeAssets(w, r, http.StatusCreated)
}

func (h *Handler) HandleUnbindAsset(w http.ResponseWriter, r *http.Request) {
	asset, err := httputil.PathAsset(r, "asset")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.orchestrator.UnbindAsset(r.Context(), asset); err != nil {
		h.fail(w, r, "unbind asset", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleListAssets(w http.ResponseWriter, r *http.Request) {
	h.writeAssets(w, r, http.StatusOK)
}

func (h *Handler) writeAssets(w http.ResponseWriter, r *http.Request, status int) {
	assets, err := h.orchestrator.ListBoundAssets(r.Context())
	if err != nil {
		h.fail(w, r, "list assets", err)
		return
	}
	resp := AssetListResponse{Assets: make([]string, 0, len(assets))}
	for _, a := range assets {
		resp.Assets = append(resp.Assets, a.String())
	}
	httputil.WriteJSON(w, status, resp)
}

func (h *Handler) HandleEnableModule(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.DecodeAndPrepare[ModuleRequest](w, r, h.logger)
	if !ok {
		return
	}
	if err := h.orchestrator.EnableModule(r.Context(), domain.ModuleID(req.Module)); err != nil {
		h.fail(w, r, "enable module", err)
		return
	}
	h.writeModules(w, r, http.StatusCreated)
}

func (h *Handler) HandleDisableModule(w http.ResponseWriter, r *http.Request) {
	module, err := httputil.PathModule(r, "module")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.orchestrator.DisableModule(r.Context(), module); err != nil {
		h.fail(w, r, "disable module", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleListModules(w http.ResponseWriter, r *http.Request) {
	h.writeModules(w, r, http.StatusOK)
}

func (h *Handler) writeModules(w http.ResponseWriter, r *http.Request, status int) {
	enabled, err := h.orchestrator.EnabledModules(r.Context())
	if err != nil {
		h.fail(w, r, "list modules", err)
		return
	}
	httputil.WriteJSON(w, status, ModuleListResponse{
		Enabled:   moduleNames(enabled),
		Available: moduleNames(h.orchestrator.Available()),
	})
}

// HandleCheck evaluates a hypothetical operation without side effects.
func (h *Handler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.DecodeAndPrepare[CheckRequest](w, r, h.logger)
	if !ok {
		return
	}
	verdict, err := h.orchestrator.Simulate(r.Context(), req.TransferContext())
	if err != nil {
		h.fail(w, r, "check", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toVerdictResponse(verdict))
}

func moduleNames(ids []domain.ModuleID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}
