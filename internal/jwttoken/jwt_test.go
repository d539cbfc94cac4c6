package jwttoken

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/requestcontext"
)

const principal = domain.Address("GISSUER")

var jwtService = NewJWTService("test-signing-key", "test-issuer", "test-audience", time.Minute)

func Test_GeneratePrincipalToken(t *testing.T) {
	token, jti, err := jwtService.GeneratePrincipalToken(context.Background(), principal)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := jwtService.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, principal.String(), claims.Subject)
	assert.Equal(t, jti, claims.ID)
	assert.WithinDuration(t, time.Now().Add(time.Minute), claims.ExpiresAt.Time, 5*time.Second)

	addr, err := claims.Principal()
	require.NoError(t, err)
	assert.Equal(t, principal, addr)
}

func Test_GeneratePrincipalToken_RejectsEmptyPrincipal(t *testing.T) {
	_, _, err := jwtService.GeneratePrincipalToken(context.Background(), "")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func Test_ValidateToken_ExpiredToken(t *testing.T) {
	past := requestcontext.WithTime(context.Background(), time.Now().Add(-time.Hour))
	token, _, err := jwtService.GeneratePrincipalToken(past, principal)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	require.ErrorContains(t, err, "token expired")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_ValidateToken_Rejections(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name    string
		token   func() string
		message string
	}{
		{
			name:    "garbage",
			token:   func() string { return "invalid-token-string" },
			message: "invalid token",
		},
		{
			name:    "empty",
			token:   func() string { return "" },
			message: "empty token",
		},
		{
			name: "wrong key",
			token: func() string {
				tok, _, err := NewJWTService("other-key", "test-issuer", "test-audience", time.Minute).GeneratePrincipalToken(ctx, principal)
				require.NoError(t, err)
				return tok
			},
			message: "invalid token",
		},
		{
			name: "wrong issuer",
			token: func() string {
				tok, _, err := NewJWTService("test-signing-key", "other-issuer", "test-audience", time.Minute).GeneratePrincipalToken(ctx, principal)
				require.NoError(t, err)
				return tok
			},
			message: "invalid token issuer",
		},
		{
			name: "wrong audience",
			token: func() string {
				tok, _, err := NewJWTService("test-signing-key", "test-issuer", "other-audience", time.Minute).GeneratePrincipalToken(ctx, principal)
				require.NoError(t, err)
				return tok
			},
			message: "invalid token audience",
		},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := jwtService.ValidateToken(tt.token())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
		})
	}
}

func Test_ValidateToken_RejectsAlgorithmConfusion(t *testing.T) {
	claims := PrincipalClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "test-issuer",
			Audience:  []string{"test-audience"},
			ID:        uuid.NewString(),
		},
	}

	cases := []struct {
		name       string
		signMethod jwt.SigningMethod
		signKey    any
	}{
		{
			name:       "hs512 header rejected",
			signMethod: jwt.SigningMethodHS512,
			signKey:    []byte("test-signing-key"),
		},
		{
			name:       "alg none rejected",
			signMethod: jwt.SigningMethodNone,
			signKey:    jwt.UnsafeAllowNoneSignatureType,
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			tokenString, err := jwt.NewWithClaims(tt.signMethod, claims).SignedString(tt.signKey)
			require.NoError(t, err)

			_, err = jwtService.ValidateToken(tokenString)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
		})
	}
}

func Test_ValidateToken_RejectsMalformedSubject(t *testing.T) {
	claims := PrincipalClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "not/an/address",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
			Issuer:    "test-issuer",
			Audience:  []string{"test-audience"},
		},
	}
	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-signing-key"))
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(tokenString)
	require.ErrorContains(t, err, "invalid token subject")
}
