// Package jwttoken issues and validates the HS256 principal tokens the HTTP
// edge turns into the request caller.
package jwttoken

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/requestcontext"
)

// PrincipalClaims carries the caller address in the standard subject.
type PrincipalClaims struct {
	Env string `json:"env,omitempty"`
	jwt.RegisteredClaims
}

// Principal returns the subject as an address.
func (c *PrincipalClaims) Principal() (domain.Address, error) {
	return domain.ParseAddress(c.Subject)
}

type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
	tokenTTL   time.Duration
	env        string
}

func NewJWTService(signingKey, issuer, audience string, tokenTTL time.Duration) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
		tokenTTL:   tokenTTL,
	}
}

// SetEnv annotates issued tokens with an environment string (e.g. "demo").
func (s *JWTService) SetEnv(env string) {
	s.env = env
}

// GeneratePrincipalToken signs a token for principal and returns it with its JTI.
func (s *JWTService) GeneratePrincipalToken(ctx context.Context, principal domain.Address) (string, string, error) {
	if principal.IsNil() {
		return "", "", dErrors.New(dErrors.CodeInvalidInput, "principal cannot be empty")
	}

	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	jti := hex.EncodeToString(b)
	now := requestcontext.Now(ctx)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, PrincipalClaims{
		Env: s.env,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        jti,
		},
	})
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", "", err
	}
	return signed, jti, nil
}

// ValidateToken checks signature, algorithm, expiry, issuer and audience.
// Every failure is CodeUnauthorized.
func (s *JWTService) ValidateToken(tokenString string) (*PrincipalClaims, error) {
	if tokenString == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "empty token")
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &PrincipalClaims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token expired")
		case errors.Is(err, jwt.ErrTokenInvalidIssuer):
			return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token issuer")
		case errors.Is(err, jwt.ErrTokenInvalidAudience):
			return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token audience")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*PrincipalClaims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	if _, err := claims.Principal(); err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token subject")
	}
	return claims, nil
}
