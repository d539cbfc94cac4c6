// Package models holds the identity records shared by the claim store, the
// issuer and topic registries, and the identity registry.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"slices"
	"time"

	"github.com/gowebpki/jcs"

	"gatekeeper/pkg/domain"
)

// Claim is an issuer's attestation about a subject for one topic.
type Claim struct {
	Subject       domain.Address    `json:"subject"`
	Topic         domain.TopicID    `json:"topic"`
	Issuer        domain.Address    `json:"issuer"`
	DataHash      Hash              `json:"data_hash"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	IssuedAt      time.Time         `json:"issued_at"`
	ValidUntil    time.Time         `json:"valid_until"`
	Revoked       bool              `json:"revoked"`
	RevocationRef string            `json:"revocation_ref,omitempty"`
}

// IsValid reports whether the claim is unrevoked and unexpired at now.
func (c *Claim) IsValid(now time.Time) bool {
	return c != nil && !c.Revoked && c.ValidUntil.After(now)
}

// Identity is the registry's cached view of a holder. Verified is a snapshot
// and never the source of truth; IsVerified always recomputes.
type Identity struct {
	Holder     domain.Address `json:"holder"`
	IdentityID string         `json:"identity_id"`
	Verified   bool           `json:"verified"`
	VerifiedAt time.Time      `json:"verified_at"`
}

// Hash is a sha256 digest, hex encoded in JSON.
type Hash [sha256.Size]byte

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hash) UnmarshalText(b []byte) error {
	raw, err := hex.DecodeString(string(b))
	if err != nil {
		return err
	}
	if len(raw) != len(h) {
		return hex.ErrLength
	}
	copy(h[:], raw)
	return nil
}

// HashPayload digests a claim payload. JSON payloads are canonicalized
// (RFC 8785) first so semantically equal documents hash the same; anything
// else is hashed as raw bytes.
func HashPayload(payload []byte) Hash {
	if json.Valid(payload) {
		if canonical, err := jcs.Transform(payload); err == nil {
			return sha256.Sum256(canonical)
		}
	}
	return sha256.Sum256(payload)
}

// TopicsFromMembers parses topic index members and orders them numerically.
func TopicsFromMembers(members []string) ([]domain.TopicID, error) {
	topics := make([]domain.TopicID, 0, len(members))
	for _, m := range members {
		t, err := domain.ParseTopicID(m)
		if err != nil {
			return nil, err
		}
		topics = append(topics, t)
	}
	slices.Sort(topics)
	return topics, nil
}

// Topic is a required claim topic with its display name.
type Topic struct {
	ID   domain.TopicID `json:"id"`
	Name string         `json:"name"`
}
