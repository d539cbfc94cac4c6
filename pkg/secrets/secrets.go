// Package secrets mints operator API tokens and checks them against the
// bcrypt hash kept in ADMIN_API_TOKEN_HASH.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"errors"

	"golang.org/x/crypto/bcrypt"

	dErrors "gatekeeper/pkg/domain-errors"
)

// TokenPrefix marks operator tokens so they are recognisable in leaked logs
// and secret scanners.
const TokenPrefix = "gk_admin_"

const tokenEntropyBytes = 32

// Generate returns a fresh operator token: TokenPrefix followed by 256 random
// bits, base64url encoded.
func Generate() (string, error) {
	buf := make([]byte, tokenEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not generate token")
	}
	return TokenPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

func Hash(token string) (string, error) {
	if token == "" {
		return "", dErrors.New(dErrors.CodeValidation, "token cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	switch {
	case errors.Is(err, bcrypt.ErrPasswordTooLong):
		return "", dErrors.New(dErrors.CodeValidation, "token exceeds 72 bytes")
	case err != nil:
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not hash token")
	}
	return string(hashed), nil
}

// ValidateHash rejects values that are not bcrypt hashes, so a plaintext
// token pasted into ADMIN_API_TOKEN_HASH fails at startup instead of locking
// operators out.
func ValidateHash(hash string) error {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return dErrors.New(dErrors.CodeValidation, "admin token hash is not a bcrypt hash")
	}
	return nil
}

// Verify returns CodeUnauthorized when token does not match hash.
func Verify(token, hash string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return dErrors.New(dErrors.CodeUnauthorized, "invalid admin token")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not verify admin token")
	}
}
