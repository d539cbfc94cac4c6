// Package seeder populates a demo deployment with verified holders and
// opening balances once the bootstrap policy has been applied.
package seeder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gatekeeper/internal/compliance/modules/jurisdiction"
	"gatekeeper/internal/identity/claims"
	"gatekeeper/internal/identity/models"
	"gatekeeper/pkg/domain"
	"gatekeeper/pkg/requestcontext"
)

const claimValidity = 365 * 24 * time.Hour

// ClaimWriter defines methods for seeding claims
type ClaimWriter interface {
	AddClaim(ctx context.Context, in claims.NewClaim) (*models.Claim, error)
}

// IdentityRegistrar defines methods for seeding identities
type IdentityRegistrar interface {
	Register(ctx context.Context, holder domain.Address, identityID string) (*models.Identity, error)
}

// Minter defines methods for seeding balances
type Minter interface {
	Mint(ctx context.Context, asset domain.AssetID, to domain.Address, amount domain.Amount) error
}

// Seeder populates the engine with demo holders
type Seeder struct {
	claims   ClaimWriter
	registry IdentityRegistrar
	ledger   Minter
	logger   *slog.Logger
}

func New(claims ClaimWriter, registry IdentityRegistrar, ledger Minter, logger *slog.Logger) *Seeder {
	return &Seeder{
		claims:   claims,
		registry: registry,
		ledger:   ledger,
		logger:   logger,
	}
}

type demoHolder struct {
	address      domain.Address
	jurisdiction domain.Jurisdiction
	verified     bool
	balance      domain.Amount
}

var demoHolders = []demoHolder{
	{"GALICE", "US", true, 10_000},
	{"GBOB", "US", true, 5_000},
	{"GCHARLIE", "CA", true, 2_500},
	{"GDIANA", "GB", true, 0},
	{"GEVE", "KP", true, 0},
	{"GFRANK", "US", false, 0},
}

// SeedAll issues KYC and Residency claims from issuer to every verified demo
// holder, registers their identities and mints opening balances of each
// asset. ctx must carry a caller that administers claims, the identity
// registry and the ledger.
func (s *Seeder) SeedAll(ctx context.Context, issuer domain.Address, assets []domain.AssetID) error {
	if requestcontext.Caller(ctx).IsNil() {
		return fmt.Errorf("seeding requires an admin caller")
	}
	s.logger.InfoContext(ctx, "seeding demo holders...")

	validUntil := requestcontext.Now(ctx).Add(claimValidity)
	minted := 0
	for _, h := range demoHolders {
		if h.verified {
			if err := s.seedClaims(ctx, issuer, h, validUntil); err != nil {
				return fmt.Errorf("failed to seed claims for %s: %w", h.address, err)
			}
		}
		if _, err := s.registry.Register(ctx, h.address, ""); err != nil {
			return fmt.Errorf("failed to register %s: %w", h.address, err)
		}
		if h.balance == 0 {
			continue
		}
		for _, asset := range assets {
			if err := s.ledger.Mint(ctx, asset, h.address, h.balance); err != nil {
				// A policy may legitimately deny a demo holder an asset.
				s.logger.WarnContext(ctx, "demo mint refused",
					"asset", asset.String(),
					"holder", h.address.String(),
					"error", err,
				)
				continue
			}
			minted++
		}
	}

	s.logger.InfoContext(ctx, "demo holders seeded successfully",
		"holders", len(demoHolders),
		"mints", minted,
	)
	return nil
}

func (s *Seeder) seedClaims(ctx context.Context, issuer domain.Address, h demoHolder, validUntil time.Time) error {
	if _, err := s.claims.AddClaim(ctx, claims.NewClaim{
		Subject:    h.address,
		Topic:      domain.TopicKYC,
		Issuer:     issuer,
		Payload:    []byte(`{"level":"basic","holder":"` + h.address.String() + `"}`),
		ValidUntil: validUntil,
	}); err != nil {
		return err
	}
	_, err := s.claims.AddClaim(ctx, claims.NewClaim{
		Subject:    h.address,
		Topic:      domain.TopicResidency,
		Issuer:     issuer,
		Payload:    []byte(`{"country":"` + h.jurisdiction.String() + `"}`),
		Attributes: map[string]string{jurisdiction.AttributeJurisdiction: h.jurisdiction.String()},
		ValidUntil: validUntil,
	})
	return err
}
