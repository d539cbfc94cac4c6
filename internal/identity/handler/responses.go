package handler

import (
	"time"

	"gatekeeper/internal/identity/models"
	"gatekeeper/pkg/domain"
)

type ClaimResponse struct {
	Subject       string            `json:"subject"`
	Topic         domain.TopicID    `json:"topic"`
	TopicName     string            `json:"topic_name"`
	Issuer        string            `json:"issuer"`
	DataHash      string            `json:"data_hash"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	IssuedAt      time.Time         `json:"issued_at"`
	ValidUntil    time.Time         `json:"valid_until"`
	Revoked       bool              `json:"revoked"`
	RevocationRef string            `json:"revocation_ref,omitempty"`
}

func toClaimResponse(c *models.Claim) ClaimResponse {
	return ClaimResponse{
		Subject:       c.Subject.String(),
		Topic:         c.Topic,
		TopicName:     c.Topic.Name(),
		Issuer:        c.Issuer.String(),
		DataHash:      c.DataHash.String(),
		Attributes:    c.Attributes,
		IssuedAt:      c.IssuedAt,
		ValidUntil:    c.ValidUntil,
		Revoked:       c.Revoked,
		RevocationRef: c.RevocationRef,
	}
}

type ClaimListResponse struct {
	Subject string          `json:"subject"`
	Claims  []ClaimResponse `json:"claims"`
}

type IssuerTopicsResponse struct {
	Issuer string           `json:"issuer"`
	Topics []domain.TopicID `json:"topics"`
}

type TopicIssuersResponse struct {
	Topic   domain.TopicID `json:"topic"`
	Issuers []string       `json:"issuers"`
}

type IssuerListResponse struct {
	Issuers []string `json:"issuers"`
}

type TopicListResponse struct {
	Topics []models.Topic `json:"topics"`
}

type IdentityResponse struct {
	Holder     string    `json:"holder"`
	IdentityID string    `json:"identity_id"`
	Verified   bool      `json:"verified"`
	VerifiedAt time.Time `json:"verified_at"`
}

func toIdentityResponse(i *models.Identity) IdentityResponse {
	return IdentityResponse{
		Holder:     i.Holder.String(),
		IdentityID: i.IdentityID,
		Verified:   i.Verified,
		VerifiedAt: i.VerifiedAt,
	}
}

type VerifiedResponse struct {
	Holder   string `json:"holder"`
	Verified bool   `json:"verified"`
}

func addresses(in []domain.Address) []string {
	out := make([]string, len(in))
	for i, a := range in {
		out[i] = a.String()
	}
	return out
}
