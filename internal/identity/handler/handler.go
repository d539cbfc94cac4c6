package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gatekeeper/internal/identity/claims"
	"gatekeeper/internal/identity/models"
	"gatekeeper/pkg/domain"
	"gatekeeper/pkg/platform/httputil"
	"gatekeeper/pkg/requestcontext"
)

type ClaimService interface {
	AddClaim(ctx context.Context, in claims.NewClaim) (*models.Claim, error)
	GetClaim(ctx context.Context, subject domain.Address, topic domain.TopicID) (*models.Claim, error)
	RevokeClaim(ctx context.Context, subject domain.Address, topic domain.TopicID, ref string) error
	ListClaimsBySubject(ctx context.Context, subject domain.Address) ([]*models.Claim, error)
}

type IssuerService interface {
	AddTrustedIssuer(ctx context.Context, issuer domain.Address, topics []domain.TopicID) error
	RemoveTrustedIssuer(ctx context.Context, issuer domain.Address) error
	UpdateIssuerTopics(ctx context.Context, issuer domain.Address, topics []domain.TopicID) error
	IssuerTopics(ctx context.Context, issuer domain.Address) ([]domain.TopicID, error)
	IssuersForTopic(ctx context.Context, topic domain.TopicID) ([]domain.Address, error)
	ListIssuers(ctx context.Context) ([]domain.Address, error)
}

type TopicService interface {
	AddTopic(ctx context.Context, topic domain.TopicID, name string) error
	RemoveTopic(ctx context.Context, topic domain.TopicID) error
	ListTopics(ctx context.Context) ([]models.Topic, error)
}

type RegistryService interface {
	IsVerified(ctx context.Context, holder domain.Address) (bool, error)
	Register(ctx context.Context, holder domain.Address, identityID string) (*models.Identity, error)
	Revoke(ctx context.Context, holder domain.Address) error
	UpdateVerificationStatus(ctx context.Context, holder domain.Address) (bool, error)
	Identity(ctx context.Context, holder domain.Address) (*models.Identity, error)
}

type Handler struct {
	claims   ClaimService
	issuers  IssuerService
	topics   TopicService
	registry RegistryService
	logger   *slog.Logger
}

func New(claims ClaimService, issuers IssuerService, topics TopicService, registry RegistryService, logger *slog.Logger) *Handler {
	return &Handler{claims: claims, issuers: issuers, topics: topics, registry: registry, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/identity", func(r chi.Router) {
		r.Post("/claims", h.HandleAddClaim)
		r.Get("/claims/{subject}", h.HandleListClaims)
		r.Get("/claims/{subject}/{topic}", h.HandleGetClaim)
		r.Post("/claims/{subject}/{topic}/revoke", h.HandleRevokeClaim)

		r.Post("/issuers", h.HandleAddIssuer)
		r.Get("/issuers", h.HandleListIssuers)
		r.Delete("/issuers/{issuer}", h.HandleRemoveIssuer)
		r.Get("/issuers/{issuer}/topics", h.HandleIssuerTopics)
		r.Put("/issuers/{issuer}/topics", h.HandleUpdateIssuerTopics)

		r.Post("/topics", h.HandleAddTopic)
		r.Get("/topics", h.HandleListTopics)
		r.Delete("/topics/{topic}", h.HandleRemoveTopic)
		r.Get("/topics/{topic}/issuers", h.HandleTopicIssuers)

		r.Post("/identities", h.HandleRegisterIdentity)
		r.Get("/identities/{holder}", h.HandleGetIdentity)
		r.Delete("/identities/{holder}", h.HandleRevokeIdentity)
		r.Post("/identities/{holder}/refresh", h.HandleRefreshIdentity)
		r.Get("/identities/{holder}/verified", h.HandleIsVerified)
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	ctx := r.Context()
	h.logger.WarnContext(ctx, op+" failed", "error", err, "request_id", requestcontext.RequestID(ctx))
	httputil.WriteError(w, err)
}

// HandleAddClaim stores a claim for the subject, replacing any existing claim
// for the same topic.
func (h *Handler) HandleAddClaim(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.DecodeAndPrepare[AddClaimRequest](w, r, h.logger)
	if !ok {
		return
	}
	claim, err := h.claims.AddClaim(r.Context(), claims.NewClaim{
		Subject:    domain.Address(req.Subject),
		Topic:      req.Topic,
		Issuer:     domain.Address(req.Issuer),
		Payload:    req.Payload,
		Attributes: req.Attributes,
		ValidUntil: req.ValidUntil,
	})
	if err != nil {
		h.fail(w, r, "add claim", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toClaimResponse(claim))
}

func (h *Handler) HandleListClaims(w http.ResponseWriter, r *http.Request) {
	subject, err := httputil.PathAddress(r, "subject")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	list, err := h.claims.ListClaimsBySubject(r.Context(), subject)
	if err != nil {
		h.fail(w, r, "list claims", err)
		return
	}
	resp := ClaimListResponse{Subject: subject.String(), Claims: make([]ClaimResponse, 0, len(list))}
	for _, c := range list {
		resp.Claims = append(resp.Claims, toClaimResponse(c))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleGetClaim(w http.ResponseWriter, r *http.Request) {
	subject, topic, err := subjectTopic(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	claim, err := h.claims.GetClaim(r.Context(), subject, topic)
	if err != nil {
		h.fail(w, r, "get claim", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toClaimResponse(claim))
}

func (h *Handler) HandleRevokeClaim(w http.ResponseWriter, r *http.Request) {
	subject, topic, err := subjectTopic(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[RevokeClaimRequest](w, r, h.logger)
	if !ok {
		return
	}
	if err := h.claims.RevokeClaim(r.Context(), subject, topic, req.Reference); err != nil {
		h.fail(w, r, "revoke claim", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func subjectTopic(r *http.Request) (domain.Address, domain.TopicID, error) {
	subject, err := httputil.PathAddress(r, "subject")
	if err != nil {
		return "", 0, err
	}
	topic, err := httputil.PathTopic(r, "topic")
	return subject, topic, err
}

func (h *Handler) HandleAddIssuer(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.DecodeAndPrepare[AddIssuerRequest](w, r, h.logger)
	if !ok {
		return
	}
	issuer := domain.Address(req.Issuer)
	if err := h.issuers.AddTrustedIssuer(r.Context(), issuer, req.Topics); err != nil {
		h.fail(w, r, "add issuer", err)
		return
	}
	h.writeIssuerTopics(w, r, issuer, http.StatusCreated)
}

func (h *Handler) HandleUpdateIssuerTopics(w http.ResponseWriter, r *http.Request) {
	issuer, err := httputil.PathAddress(r, "issuer")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[IssuerTopicsRequest](w, r, h.logger)
	if !ok {
		return
	}
	if err := h.issuers.UpdateIssuerTopics(r.Context(), issuer, req.Topics); err != nil {
		h.fail(w, r, "update issuer topics", err)
		return
	}
	h.writeIssuerTopics(w, r, issuer, http.StatusOK)
}

func (h *Handler) HandleIssuerTopics(w http.ResponseWriter, r *http.Request) {
	issuer, err := httputil.PathAddress(r, "issuer")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.writeIssuerTopics(w, r, issuer, http.StatusOK)
}

func (h *Handler) writeIssuerTopics(w http.ResponseWriter, r *http.Request, issuer domain.Address, status int) {
	topics, err := h.issuers.IssuerTopics(r.Context(), issuer)
	if err != nil {
		h.fail(w, r, "issuer topics", err)
		return
	}
	httputil.WriteJSON(w, status, IssuerTopicsResponse{Issuer: issuer.String(), Topics: topics})
}

func (h *Handler) HandleRemoveIssuer(w http.ResponseWriter, r *http.Request) {
	issuer, err := httputil.PathAddress(r, "issuer")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.issuers.RemoveTrustedIssuer(r.Context(), issuer); err != nil {
		h.fail(w, r, "remove issuer", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleListIssuers(w http.ResponseWriter, r *http.Request) {
	list, err := h.issuers.ListIssuers(r.Context())
	if err != nil {
		h.fail(w, r, "list issuers", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, IssuerListResponse{Issuers: addresses(list)})
}

func (h *Handler) HandleTopicIssuers(w http.ResponseWriter, r *http.Request) {
	topic, err := httputil.PathTopic(r, "topic")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	list, err := h.issuers.IssuersForTopic(r.Context(), topic)
	if err != nil {
		h.fail(w, r, "topic issuers", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, TopicIssuersResponse{Topic: topic, Issuers: addresses(list)})
}

func (h *Handler) HandleAddTopic(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.DecodeAndPrepare[AddTopicRequest](w, r, h.logger)
	if !ok {
		return
	}
	if err := h.topics.AddTopic(r.Context(), req.ID, req.Name); err != nil {
		h.fail(w, r, "add topic", err)
		return
	}
	h.writeTopics(w, r, http.StatusCreated)
}

func (h *Handler) HandleRemoveTopic(w http.ResponseWriter, r *http.Request) {
	topic, err := httputil.PathTopic(r, "topic")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.topics.RemoveTopic(r.Context(), topic); err != nil {
		h.fail(w, r, "remove topic", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleListTopics(w http.ResponseWriter, r *http.Request) {
	h.writeTopics(w, r, http.StatusOK)
}

func (h *Handler) writeTopics(w http.ResponseWriter, r *http.Request, status int) {
	list, err := h.topics.ListTopics(r.Context())
	if err != nil {
		h.fail(w, r, "list topics", err)
		return
	}
	httputil.WriteJSON(w, status, TopicListResponse{Topics: list})
}

func (h *Handler) HandleRegisterIdentity(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.DecodeAndPrepare[RegisterIdentityRequest](w, r, h.logger)
	if !ok {
		return
	}
	record, err := h.registry.Register(r.Context(), domain.Address(req.Holder), req.IdentityID)
	if err != nil {
		h.fail(w, r, "register identity", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toIdentityResponse(record))
}

func (h *Handler) HandleGetIdentity(w http.ResponseWriter, r *http.Request) {
	holder, err := httputil.PathAddress(r, "holder")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	record, err := h.registry.Identity(r.Context(), holder)
	if err != nil {
		h.fail(w, r, "get identity", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toIdentityResponse(record))
}

func (h *Handler) HandleRevokeIdentity(w http.ResponseWriter, r *http.Request) {
	holder, err := httputil.PathAddress(r, "holder")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.registry.Revoke(r.Context(), holder); err != nil {
		h.fail(w, r, "revoke identity", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRefreshIdentity recomputes and caches the holder's verification.
func (h *Handler) HandleRefreshIdentity(w http.ResponseWriter, r *http.Request) {
	holder, err := httputil.PathAddress(r, "holder")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	verified, err := h.registry.UpdateVerificationStatus(r.Context(), holder)
	if err != nil {
		h.fail(w, r, "refresh identity", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, VerifiedResponse{Holder: holder.String(), Verified: verified})
}

// HandleIsVerified evaluates verification live; it does not read the cache.
func (h *Handler) HandleIsVerified(w http.ResponseWriter, r *http.Request) {
	holder, err := httputil.PathAddress(r, "holder")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	verified, err := h.registry.IsVerified(r.Context(), holder)
	if err != nil {
		h.fail(w, r, "is verified", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, VerifiedResponse{Holder: holder.String(), Verified: verified})
}
