package registry

import (
	"context"

	"gatekeeper/internal/identity/models"
	"gatekeeper/pkg/domain"
)

// ClaimReader is the claim store read path.
type ClaimReader interface {
	GetClaim(ctx context.Context, subject domain.Address, topic domain.TopicID) (*models.Claim, error)
}

// IssuerTrust answers whether an issuer is trusted for a topic.
type IssuerTrust interface {
	IsTrustedIssuer(ctx context.Context, issuer domain.Address, topic domain.TopicID) (bool, error)
}

// TopicSource lists the required topics in evaluation order.
type TopicSource interface {
	RequiredTopics(ctx context.Context) ([]domain.TopicID, error)
}
