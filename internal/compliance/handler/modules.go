package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"gatekeeper/internal/compliance/modules/expression"
	"gatekeeper/internal/compliance/modules/jurisdiction"
	"gatekeeper/internal/compliance/modules/lockup"
	"gatekeeper/internal/compliance/modules/maxholders"
	"gatekeeper/internal/compliance/modules/pausefreeze"
	"gatekeeper/internal/compliance/modules/ruleset"
	"gatekeeper/pkg/domain"
	"gatekeeper/pkg/platform/httputil"
)

type LockupService interface {
	CreateLockup(ctx context.Context, asset domain.AssetID, in lockup.NewSchedule) (*lockup.Schedule, error)
	AddVestingPeriod(ctx context.Context, asset domain.AssetID, holder domain.Address, period lockup.VestingPeriod) error
	RevokeLockup(ctx context.Context, asset domain.AssetID, holder domain.Address) error
	ReleaseVested(ctx context.Context, asset domain.AssetID, holder domain.Address) (domain.Amount, error)
	Schedule(ctx context.Context, asset domain.AssetID, holder domain.Address) (*lockup.Schedule, error)
}

type HolderService interface {
	SetMaxHolders(ctx context.Context, asset domain.AssetID, limit uint32) error
	MaxHolders(ctx context.Context, asset domain.AssetID) (uint32, error)
	HolderCount(ctx context.Context, asset domain.AssetID) (uint32, error)
	IsHolder(ctx context.Context, asset domain.AssetID, addr domain.Address) (bool, error)
}

type FreezeService interface {
	Pause(ctx context.Context, asset domain.AssetID) error
	Unpause(ctx context.Context, asset domain.AssetID) error
	IsPaused(ctx context.Context, asset domain.AssetID) (bool, error)
	Freeze(ctx context.Context, asset domain.AssetID, addr domain.Address) error
	Unfreeze(ctx context.Context, asset domain.AssetID, addr domain.Address) error
	PartialFreeze(ctx context.Context, asset domain.AssetID, addr domain.Address, amount domain.Amount) error
	PartialUnfreeze(ctx context.Context, asset domain.AssetID, addr domain.Address, amount domain.Amount) error
	FreezeState(ctx context.Context, asset domain.AssetID, addr domain.Address) (pausefreeze.FreezeState, error)
}

type JurisdictionService interface {
	SetLists(ctx context.Context, asset domain.AssetID, lists jurisdiction.Lists) error
	Lists(ctx context.Context, asset domain.AssetID) (jurisdiction.Lists, error)
	Allow(ctx context.Context, asset domain.AssetID, code domain.Jurisdiction) error
	Deny(ctx context.Context, asset domain.AssetID, code domain.Jurisdiction) error
	RemoveAllowed(ctx context.Context, asset domain.AssetID, code domain.Jurisdiction) error
	RemoveDenied(ctx context.Context, asset domain.AssetID, code domain.Jurisdiction) error
}

type RulesetService interface {
	SetRuleset(ctx context.Context, profile ruleset.AssetProfile, rules ruleset.Ruleset) error
	Ruleset(ctx context.Context, profile ruleset.AssetProfile) (*ruleset.Ruleset, error)
	SetAssetProfile(ctx context.Context, asset domain.AssetID, profile ruleset.AssetProfile) error
	AssetProfile(ctx context.Context, asset domain.AssetID) (ruleset.AssetProfile, bool, error)
	AddToWhitelist(ctx context.Context, addr domain.Address) error
	RemoveFromWhitelist(ctx context.Context, addr domain.Address) error
	IsWhitelisted(ctx context.Context, addr domain.Address) (bool, error)
	DailyState(ctx context.Context, addr domain.Address) (ruleset.DailyState, error)
	ResetDailyLimit(ctx context.Context, addr domain.Address) error
}

type ExpressionService interface {
	SetExpression(ctx context.Context, asset domain.AssetID, expr string) error
	RemoveExpression(ctx context.Context, asset domain.AssetID) error
	Expression(ctx context.Context, asset domain.AssetID) (string, bool, error)
}

// Modules holds the admin surfaces of the wired rule modules. Routes are only
// registered for non-nil entries.
type Modules struct {
	Lockup       LockupService
	MaxHolders   HolderService
	PauseFreeze  FreezeService
	Jurisdiction JurisdictionService
	Ruleset      RulesetService
	Expression   ExpressionService
}

// registerModules mounts each module's routes as full paths under
// /modules/<id>/ so DELETE /modules/{module} still matches every module ID.
func (h *Handler) registerModules(r chi.Router) {
	if h.modules.Lockup != nil {
		p := "/modules/" + lockup.ID.String() + "/{asset}/schedules"
		r.Post(p, h.HandleCreateLockup)
		r.Get(p+"/{holder}", h.HandleGetLockup)
		r.Post(p+"/{holder}/periods", h.HandleAddVestingPeriod)
		r.Post(p+"/{holder}/release", h.HandleReleaseVested)
		r.Post(p+"/{holder}/revoke", h.HandleRevokeLockup)
	}
	if h.modules.MaxHolders != nil {
		p := "/modules/" + maxholders.ID.String() + "/{asset}"
		r.Put(p, h.HandleSetMaxHolders)
		r.Get(p, h.HandleGetMaxHolders)
		r.Get(p+"/holders/{holder}", h.HandleIsHolder)
	}
	if h.modules.PauseFreeze != nil {
		p := "/modules/" + pausefreeze.ID.String() + "/{asset}"
		r.Get(p, h.HandleGetPaused)
		r.Post(p+"/pause", h.HandlePause)
		r.Post(p+"/unpause", h.HandleUnpause)
		r.Get(p+"/holders/{holder}", h.HandleFreezeState)
		r.Post(p+"/holders/{holder}/freeze", h.HandleFreeze)
		r.Post(p+"/holders/{holder}/unfreeze", h.HandleUnfreeze)
		r.Post(p+"/holders/{holder}/partial-freeze", h.HandlePartialFreeze)
		r.Post(p+"/holders/{holder}/partial-unfreeze", h.HandlePartialUnfreeze)
	}
	if h.modules.Jurisdiction != nil {
		p := "/modules/" + jurisdiction.ID.String() + "/{asset}"
		r.Put(p, h.HandleSetJurisdictionLists)
		r.Get(p, h.HandleGetJurisdictionLists)
		r.Put(p+"/{list}/{code}", h.HandleAddJurisdiction)
		r.Delete(p+"/{list}/{code}", h.HandleRemoveJurisdiction)
	}
	if h.modules.Ruleset != nil {
		p := "/modules/" + ruleset.ID.String()
		r.Put(p+"/rulesets/{region}/{assetType}", h.HandleSetRuleset)
		r.Get(p+"/rulesets/{region}/{assetType}", h.HandleGetRuleset)
		r.Put(p+"/assets/{asset}/profile", h.HandleSetAssetProfile)
		r.Get(p+"/assets/{asset}/profile", h.HandleGetAssetProfile)
		r.Put(p+"/whitelist/{holder}", h.HandleAddToWhitelist)
		r.Delete(p+"/whitelist/{holder}", h.HandleRemoveFromWhitelist)
		r.Get(p+"/whitelist/{holder}", h.HandleIsWhitelisted)
		r.Get(p+"/daily/{holder}", h.HandleDailyState)
		r.Post(p+"/daily/{holder}/reset", h.HandleResetDailyLimit)
	}
	if h.modules.Expression != nil {
		p := "/modules/" + expression.ID.String() + "/{asset}"
		r.Put(p, h.HandleSetExpression)
		r.Get(p, h.HandleGetExpression)
		r.Delete(p, h.HandleRemoveExpression)
	}
}

// assetHolder parses the {asset} and {holder} path parameters.
func assetHolder(r *http.Request) (domain.AssetID, domain.Address, error) {
	asset, err := httputil.PathAsset(r, "asset")
	if err != nil {
		return "", "", err
	}
	holder, err := httputil.PathAddress(r, "holder")
	return asset, holder, err
}

func (h *Handler) HandleCreateLockup(w http.ResponseWriter, r *http.Request) {
	asset, err := httputil.PathAsset(r, "asset")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[CreateLockupRequest](w, r, h.logger)
	if !ok {
		return
	}
	schedule, err := h.modules.Lockup.CreateLockup(r.Context(), asset, req.Schedule())
	if err != nil {
		h.fail(w, r, "create lockup", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toLockupResponse(r.Context(), asset, schedule))
}

func (h *Handler) HandleGetLockup(w http.ResponseWriter, r *http.Request) {
	asset, holder, err := assetHolder(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	schedule, err := h.modules.Lockup.Schedule(r.Context(), asset, holder)
	if err != nil {
		h.fail(w, r, "get lockup", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toLockupResponse(r.Context(), asset, schedule))
}

func (h *Handler) HandleAddVestingPeriod(w http.ResponseWriter, r *http.Request) {
	asset, holder, err := assetHolder(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[PeriodRequest](w, r, h.logger)
	if !ok {
		return
	}
	period := lockup.VestingPeriod{ReleaseTime: req.ReleaseTime, Amount: req.Amount}
	if err := h.modules.Lockup.AddVestingPeriod(r.Context(), asset, holder, period); err != nil {
		h.fail(w, r, "add vesting period", err)
		return
	}
	h.HandleGetLockup(w, r)
}

func (h *Handler) HandleReleaseVested(w http.ResponseWriter, r *http.Request) {
	asset, holder, err := assetHolder(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	released, err := h.modules.Lockup.ReleaseVested(r.Context(), asset, holder)
	if err != nil {
		h.fail(w, r, "release vested", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, AmountResponse{Amount: released})
}

func (h *Handler) HandleRevokeLockup(w http.ResponseWriter, r *http.Request) {
	asset, holder, err := assetHolder(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.modules.Lockup.RevokeLockup(r.Context(), asset, holder); err != nil {
		h.fail(w, r, "revoke lockup", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleSetMaxHolders(w http.ResponseWriter, r *http.Request) {
	asset, err := httputil.PathAsset(r, "asset")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[MaxHoldersRequest](w, r, h.logger)
	if !ok {
		return
	}
	if err := h.modules.MaxHolders.SetMaxHolders(r.Context(), asset, req.MaxHolders); err != nil {
		h.fail(w, r, "set max holders", err)
		return
	}
	h.HandleGetMaxHolders(w, r)
}

func (h *Handler) HandleGetMaxHolders(w http.ResponseWriter, r *http.Request) {
	asset, err := httputil.PathAsset(r, "asset")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	limit, err := h.modules.MaxHolders.MaxHolders(r.Context(), asset)
	if err != nil {
		h.fail(w, r, "get max holders", err)
		return
	}
	count, err := h.modules.MaxHolders.HolderCount(r.Context(), asset)
	if err != nil {
		h.fail(w, r, "get holder count", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, MaxHoldersResponse{Asset: asset.String(), MaxHolders: limit, HolderCount: count})
}

func (h *Handler) HandleIsHolder(w http.ResponseWriter, r *http.Request) {
	asset, holder, err := assetHolder(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	ok, err := h.modules.MaxHolders.IsHolder(r.Context(), asset, holder)
	if err != nil {
		h.fail(w, r, "is holder", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FlagResponse{Value: ok})
}

func (h *Handler) HandleGetPaused(w http.ResponseWriter, r *http.Request) {
	asset, err := httputil.PathAsset(r, "asset")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	paused, err := h.modules.PauseFreeze.IsPaused(r.Context(), asset)
	if err != nil {
		h.fail(w, r, "get paused", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FlagResponse{Value: paused})
}

func (h *Handler) HandlePause(w http.ResponseWriter, r *http.Request) {
	h.assetAction(w, r, "pause", h.modules.PauseFreeze.Pause)
}

func (h *Handler) HandleUnpause(w http.ResponseWriter, r *http.Request) {
	h.assetAction(w, r, "unpause", h.modules.PauseFreeze.Unpause)
}

func (h *Handler) HandleFreeze(w http.ResponseWriter, r *http.Request) {
	h.holderAction(w, r, "freeze", h.modules.PauseFreeze.Freeze)
}

func (h *Handler) HandleUnfreeze(w http.ResponseWriter, r *http.Request) {
	h.holderAction(w, r, "unfreeze", h.modules.PauseFreeze.Unfreeze)
}

func (h *Handler) HandlePartialFreeze(w http.ResponseWriter, r *http.Request) {
	h.holderAmountAction(w, r, "partial freeze", h.modules.PauseFreeze.PartialFreeze)
}

func (h *Handler) HandlePartialUnfreeze(w http.ResponseWriter, r *http.Request) {
	h.holderAmountAction(w, r, "partial unfreeze", h.modules.PauseFreeze.PartialUnfreeze)
}

func (h *Handler) HandleFreezeState(w http.ResponseWriter, r *http.Request) {
	asset, holder, err := assetHolder(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	state, err := h.modules.PauseFreeze.FreezeState(r.Context(), asset, holder)
	if err != nil {
		h.fail(w, r, "get freeze state", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, state)
}

func (h *Handler) assetAction(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, domain.AssetID) error) {
	asset, err := httputil.PathAsset(r, "asset")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := fn(r.Context(), asset); err != nil {
		h.fail(w, r, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) holderAction(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, domain.AssetID, domain.Address) error) {
	asset, holder, err := assetHolder(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := fn(r.Context(), asset, holder); err != nil {
		h.fail(w, r, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) holderAmountAction(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, domain.AssetID, domain.Address, domain.Amount) error) {
	asset, holder, err := assetHolder(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[AmountRequest](w, r, h.logger)
	if !ok {
		return
	}
	if err := fn(r.Context(), asset, holder, req.Amount); err != nil {
		h.fail(w, r, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleSetJurisdictionLists(w http.ResponseWriter, r *http.Request) {
	asset, err := httputil.PathAsset(r, "asset")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[JurisdictionListsRequest](w, r, h.logger)
	if !ok {
		return
	}
	lists, err := req.Lists()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.modules.Jurisdiction.SetLists(r.Context(), asset, lists); err != nil {
		h.fail(w, r, "set jurisdiction lists", err)
		return
	}
	h.HandleGetJurisdictionLists(w, r)
}

func (h *Handler) HandleGetJurisdictionLists(w http.ResponseWriter, r *http.Request) {
	asset, err := httputil.PathAsset(r, "asset")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	lists, err := h.modules.Jurisdiction.Lists(r.Context(), asset)
	if err != nil {
		h.fail(w, r, "get jurisdiction lists", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, lists)
}

func (h *Handler) HandleAddJurisdiction(w http.ResponseWriter, r *http.Request) {
	h.jurisdictionAction(w, r, h.modules.Jurisdiction.Allow, h.modules.Jurisdiction.Deny)
}

func (h *Handler) HandleRemoveJurisdiction(w http.ResponseWriter, r *http.Request) {
	h.jurisdictionAction(w, r, h.modules.Jurisdiction.RemoveAllowed, h.modules.Jurisdiction.RemoveDenied)
}

type jurisdictionFunc func(context.Context, domain.AssetID, domain.Jurisdiction) error

// jurisdictionAction dispatches on the {list} path parameter, which is
// "allowed" or "denied".
func (h *Handler) jurisdictionAction(w http.ResponseWriter, r *http.Request, allowed, denied jurisdictionFunc) {
	asset, err := httputil.PathAsset(r, "asset")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	code, err := domain.ParseJurisdiction(chi.URLParam(r, "code"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var fn jurisdictionFunc
	switch strings.ToLower(chi.URLParam(r, "list")) {
	case "allowed":
		fn = allowed
	case "denied":
		fn = denied
	default:
		http.NotFound(w, r)
		return
	}
	if err := fn(r.Context(), asset, code); err != nil {
		h.fail(w, r, "update jurisdiction list", err)
		return
	}
	h.HandleGetJurisdictionLists(w, r)
}

func profileParams(r *http.Request) ruleset.AssetProfile {
	return ruleset.AssetProfile{Region: chi.URLParam(r, "region"), AssetType: chi.URLParam(r, "assetType")}.Normalize()
}

func (h *Handler) HandleSetRuleset(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.DecodeAndPrepare[ruleset.Ruleset](w, r, h.logger)
	if !ok {
		return
	}
	if err := h.modules.Ruleset.SetRuleset(r.Context(), profileParams(r), *req); err != nil {
		h.fail(w, r, "set ruleset", err)
		return
	}
	h.HandleGetRuleset(w, r)
}

func (h *Handler) HandleGetRuleset(w http.ResponseWriter, r *http.Request) {
	profile := profileParams(r)
	rules, err := h.modules.Ruleset.Ruleset(r.Context(), profile)
	if err != nil {
		h.fail(w, r, "get ruleset", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, RulesetResponse{AssetProfile: profile, Ruleset: *rules})
}

func (h *Handler) HandleSetAssetProfile(w http.ResponseWriter, r *http.Request) {
	asset, err := httputil.PathAsset(r, "asset")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[AssetProfileRequest](w, r, h.logger)
	if !ok {
		return
	}
	if err := h.modules.Ruleset.SetAssetProfile(r.Context(), asset, req.AssetProfile); err != nil {
		h.fail(w, r, "set asset profile", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, req.AssetProfile)
}

func (h *Handler) HandleGetAssetProfile(w http.ResponseWriter, r *http.Request) {
	asset, err := httputil.PathAsset(r, "asset")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	profile, ok, err := h.modules.Ruleset.AssetProfile(r.Context(), asset)
	if err != nil {
		h.fail(w, r, "get asset profile", err)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, profile)
}

func (h *Handler) HandleAddToWhitelist(w http.ResponseWriter, r *http.Request) {
	h.addressAction(w, r, "add to whitelist", h.modules.Ruleset.AddToWhitelist)
}

func (h *Handler) HandleRemoveFromWhitelist(w http.ResponseWriter, r *http.Request) {
	h.addressAction(w, r, "remove from whitelist", h.modules.Ruleset.RemoveFromWhitelist)
}

func (h *Handler) HandleResetDailyLimit(w http.ResponseWriter, r *http.Request) {
	h.addressAction(w, r, "reset daily limit", h.modules.Ruleset.ResetDailyLimit)
}

func (h *Handler) addressAction(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, domain.Address) error) {
	holder, err := httputil.PathAddress(r, "holder")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := fn(r.Context(), holder); err != nil {
		h.fail(w, r, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleIsWhitelisted(w http.ResponseWriter, r *http.Request) {
	holder, err := httputil.PathAddress(r, "holder")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	ok, err := h.modules.Ruleset.IsWhitelisted(r.Context(), holder)
	if err != nil {
		h.fail(w, r, "is whitelisted", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FlagResponse{Value: ok})
}

func (h *Handler) HandleDailyState(w http.ResponseWriter, r *http.Request) {
	holder, err := httputil.PathAddress(r, "holder")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	state, err := h.modules.Ruleset.DailyState(r.Context(), holder)
	if err != nil {
		h.fail(w, r, "get daily state", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, state)
}

func (h *Handler) HandleSetExpression(w http.ResponseWriter, r *http.Request) {
	asset, err := httputil.PathAsset(r, "asset")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[ExpressionRequest](w, r, h.logger)
	if !ok {
		return
	}
	if err := h.modules.Expression.SetExpression(r.Context(), asset, req.Expression); err != nil {
		h.fail(w, r, "set expression", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ExpressionResponse{Asset: asset.String(), Expression: req.Expression})
}

func (h *Handler) HandleGetExpression(w http.ResponseWriter, r *http.Request) {
	asset, err := httputil.PathAsset(r, "asset")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	expr, ok, err := h.modules.Expression.Expression(r.Context(), asset)
	if err != nil {
		h.fail(w, r, "get expression", err)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ExpressionResponse{Asset: asset.String(), Expression: expr})
}

func (h *Handler) HandleRemoveExpression(w http.ResponseWriter, r *http.Request) {
	h.assetAction(w, r, "remove expression", h.modules.Expression.RemoveExpression)
}
