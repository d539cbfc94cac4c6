package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is emitted from compliance logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID         uuid.UUID
	Timestamp  time.Time
	Sequence   uint64
	Component  string
	Action     string
	Asset      string
	Subject    string
	ActorID    string
	Decision   string
	Reason     string
	Attributes map[string]string
	RequestID  string
}

// Store persists audit events. Implementations must be safe for concurrent use.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListRecent(ctx context.Context, filter Filter) ([]Event, error)
}

// Filter narrows ListRecent. Zero fields match everything.
type Filter struct {
	Asset   string
	Subject string
	Action  string
	Limit   int
}

// Matches reports whether e satisfies f (ignoring Limit).
func (f Filter) Matches(e Event) bool {
	return (f.Asset == "" || f.Asset == e.Asset) &&
		(f.Subject == "" || f.Subject == e.Subject) &&
		(f.Action == "" || f.Action == e.Action)
}

type Action string

const (
	EventAssetBound         Action = "asset_bound"
	EventAssetUnbound       Action = "asset_unbound"
	EventModuleEnabled      Action = "module_enabled"
	EventModuleDisabled     Action = "module_disabled"
	EventClaimAdded         Action = "claim_added"
	EventClaimRevoked       Action = "claim_revoked"
	EventIssuerAdded        Action = "issuer_added"
	EventIssuerUpdated      Action = "issuer_updated"
	EventIssuerRemoved      Action = "issuer_removed"
	EventTopicAdded         Action = "topic_added"
	EventTopicRemoved       Action = "topic_removed"
	EventIdentityRegistered Action = "identity_registered"
	EventIdentityRevoked    Action = "identity_revoked"
	EventIdentityRefreshed  Action = "identity_refreshed"
	EventTransfer           Action = "transfer"
	EventMint               Action = "mint"
	EventBurn               Action = "burn"
	EventAssetPaused        Action = "asset_paused"
	EventAssetUnpaused      Action = "asset_unpaused"
	EventAddressFrozen      Action = "address_frozen"
	EventAddressUnfrozen    Action = "address_unfrozen"
	EventPartialFreeze      Action = "tokens_partially_frozen"
	EventPartialUnfreeze    Action = "tokens_partially_unfrozen"
	EventLockupCreated      Action = "lockup_created"
	EventLockupRevoked      Action = "lockup_revoked"
	EventTokensReleased     Action = "tokens_released"
	EventLimitExceeded      Action = "limit_exceeded"
	EventTransferBlocked    Action = "transfer_blocked"
	EventConfigChanged      Action = "config_changed"
	EventAdminInitialized   Action = "admin_initialized"
	EventAdminTransferred   Action = "admin_transferred"
)
