package ledger

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/httputil"
	"gatekeeper/pkg/requestcontext"
)

type Ledger interface {
	Mint(ctx context.Context, asset domain.AssetID, to domain.Address, amount domain.Amount) error
	Burn(ctx context.Context, asset domain.AssetID, from domain.Address, amount domain.Amount) error
	Transfer(ctx context.Context, asset domain.AssetID, from, to domain.Address, amount domain.Amount) error
	Balance(ctx context.Context, asset domain.AssetID, holder domain.Address) (domain.Amount, error)
	TotalSupply(ctx context.Context, asset domain.AssetID) (domain.Amount, error)
}

type Handler struct {
	ledger Ledger
	logger *slog.Logger
}

func NewHandler(ledger Ledger, logger *slog.Logger) *Handler {
	return &Handler{ledger: ledger, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/ledger/{asset}", func(r chi.Router) {
		r.Post("/mint", h.HandleMint)
		r.Post("/burn", h.HandleBurn)
		r.Post("/transfer", h.HandleTransfer)
		r.Get("/balances/{holder}", h.HandleBalance)
		r.Get("/supply", h.HandleSupply)
	})
}

func (h *Handler) HandleMint(w http.ResponseWriter, r *http.Request) {
	h.operate(w, r, "mint", func(ctx context.Context, asset domain.AssetID, req *OperationRequest) (domain.Address, error) {
		if req.To == "" {
			return "", dErrors.New(dErrors.CodeValidation, "to is required")
		}
		to := domain.Address(req.To)
		return to, h.ledger.Mint(ctx, asset, to, req.Amount)
	})
}

func (h *Handler) HandleBurn(w http.ResponseWriter, r *http.Request) {
	h.operate(w, r, "burn", func(ctx context.Context, asset domain.AssetID, req *OperationRequest) (domain.Address, error) {
		if req.From == "" {
			return "", dErrors.New(dErrors.CodeValidation, "from is required")
		}
		from := domain.Address(req.From)
		return from, h.ledger.Burn(ctx, asset, from, req.Amount)
	})
}

func (h *Handler) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	h.operate(w, r, "transfer", func(ctx context.Context, asset domain.AssetID, req *OperationRequest) (domain.Address, error) {
		if req.To == "" {
			return "", dErrors.New(dErrors.CodeValidation, "to is required")
		}
		from := domain.Address(req.From)
		if from.IsNil() {
			from = requestcontext.Caller(ctx)
		}
		return from, h.ledger.Transfer(ctx, asset, from, domain.Address(req.To), req.Amount)
	})
}

// operate decodes the body, runs op and answers with the balance of the
// address op returns.
func (h *Handler) operate(w http.ResponseWriter, r *http.Request, name string,
	op func(ctx context.Context, asset domain.AssetID, req *OperationRequest) (domain.Address, error),
) {
	ctx := r.Context()
	asset, err := httputil.PathAsset(r, "asset")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[OperationRequest](w, r, h.logger)
	if !ok {
		return
	}
	holder, err := op(ctx, asset, req)
	if err != nil {
		h.logger.WarnContext(ctx, name+" failed", "error", err, "asset", asset.String(), "request_id", requestcontext.RequestID(ctx))
		httputil.WriteError(w, err)
		return
	}
	h.writeBalance(w, r, asset, holder)
}

func (h *Handler) HandleBalance(w http.ResponseWriter, r *http.Request) {
	asset, err := httputil.PathAsset(r, "asset")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	holder, err := httputil.PathAddress(r, "holder")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.writeBalance(w, r, asset, holder)
}

func (h *Handler) HandleSupply(w http.ResponseWriter, r *http.Request) {
	asset, err := httputil.PathAsset(r, "asset")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	supply, err := h.ledger.TotalSupply(r.Context(), asset)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, BalanceResponse{Asset: asset.String(), Balance: supply})
}

func (h *Handler) writeBalance(w http.ResponseWriter, r *http.Request, asset domain.AssetID, holder domain.Address) {
	balance, err := h.ledger.Balance(r.Context(), asset, holder)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, BalanceResponse{
		Asset:   asset.String(),
		Holder:  holder.String(),
		Balance: balance,
	})
}
