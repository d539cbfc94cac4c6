package handler

import (
	"encoding/json"
	"strings"
	"time"

	"gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/validation"
)

type AddClaimRequest struct {
	Subject    string            `json:"subject"`
	Topic      domain.TopicID    `json:"topic"`
	Issuer     string            `json:"issuer"`
	Payload    json.RawMessage   `json:"payload,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	ValidUntil time.Time         `json:"valid_until"`
}

func (r *AddClaimRequest) Normalize() {
	r.Subject = strings.TrimSpace(r.Subject)
	r.Issuer = strings.TrimSpace(r.Issuer)
}

func (r *AddClaimRequest) Validate() error {
	if _, err := domain.ParseAddress(r.Subject); err != nil {
		return err
	}
	if _, err := domain.ParseAddress(r.Issuer); err != nil {
		return err
	}
	if r.Topic == 0 {
		return dErrors.New(dErrors.CodeValidation, "topic is required")
	}
	if r.ValidUntil.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "valid_until is required")
	}
	if len(r.Payload) > validation.MaxClaimPayload {
		return dErrors.New(dErrors.CodeValidation, "payload too large")
	}
	return validation.CheckAttributes(r.Attributes)
}

type RevokeClaimRequest struct {
	Reference string `json:"reference"`
}

func (r *RevokeClaimRequest) Normalize() { r.Reference = strings.TrimSpace(r.Reference) }

func (r *RevokeClaimRequest) Validate() error {
	return validation.CheckStringLength("reference", r.Reference, validation.MaxReasonLength)
}

type AddIssuerRequest struct {
	Issuer string           `json:"issuer"`
	Topics []domain.TopicID `json:"topics"`
}

func (r *AddIssuerRequest) Normalize() { r.Issuer = strings.TrimSpace(r.Issuer) }

func (r *AddIssuerRequest) Validate() error {
	if _, err := domain.ParseAddress(r.Issuer); err != nil {
		return err
	}
	return validateTopics(r.Topics)
}

type IssuerTopicsRequest struct {
	Topics []domain.TopicID `json:"topics"`
}

func (r *IssuerTopicsRequest) Validate() error { return validateTopics(r.Topics) }

func validateTopics(topics []domain.TopicID) error {
	if len(topics) == 0 {
		return dErrors.New(dErrors.CodeValidation, "at least one topic is required")
	}
	if err := validation.CheckSliceCount("topics", len(topics), validation.MaxTopics); err != nil {
		return err
	}
	for _, t := range topics {
		if t == 0 {
			return dErrors.New(dErrors.CodeValidation, "topic cannot be zero")
		}
	}
	return nil
}

type AddTopicRequest struct {
	ID   domain.TopicID `json:"id"`
	Name string         `json:"name"`
}

func (r *AddTopicRequest) Normalize() { r.Name = strings.TrimSpace(r.Name) }

func (r *AddTopicRequest) Validate() error {
	if r.ID == 0 {
		return dErrors.New(dErrors.CodeValidation, "id is required")
	}
	return validation.CheckStringLength("name", r.Name, validation.MaxTopicNameLength)
}

type RegisterIdentityRequest struct {
	Holder     string `json:"holder"`
	IdentityID string `json:"identity_id"`
}

func (r *RegisterIdentityRequest) Normalize() {
	r.Holder = strings.TrimSpace(r.Holder)
	r.IdentityID = strings.TrimSpace(r.IdentityID)
}

func (r *RegisterIdentityRequest) Validate() error {
	if _, err := domain.ParseAddress(r.Holder); err != nil {
		return err
	}
	return validation.CheckStringLength("identity_id", r.IdentityID, validation.MaxReasonLength)
}
