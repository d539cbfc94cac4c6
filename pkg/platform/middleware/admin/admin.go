// Package admin guards operator endpoints with a shared token.
package admin

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"gatekeeper/pkg/requestcontext"
	"gatekeeper/pkg/secrets"
)

type (
	contextKeyAdminRequest struct{}
	contextKeyAdminActorID struct{}
)

// ContextKeyAdminActorID is exported for use in handlers and tests.
var ContextKeyAdminActorID = contextKeyAdminActorID{}

// GetAdminActorID returns the operator named by X-Admin-Actor-ID, or "".
func GetAdminActorID(ctx context.Context) string {
	if actorID, ok := ctx.Value(ContextKeyAdminActorID).(string); ok {
		return actorID
	}
	return ""
}

// IsAdminRequest reports whether RequireAdminToken authorized the request.
func IsAdminRequest(ctx context.Context) bool {
	ok, _ := ctx.Value(contextKeyAdminRequest{}).(bool)
	return ok
}

// TokenCheck reports whether a presented operator token is acceptable.
type TokenCheck func(token string) bool

// MatchToken accepts exactly expected. An empty expected token accepts nothing.
func MatchToken(expected string) TokenCheck {
	return func(token string) bool {
		return expected != "" && subtle.ConstantTimeCompare([]byte(token), []byte(expected)) == 1
	}
}

// MatchTokenHash accepts tokens whose bcrypt hash is hash.
func MatchTokenHash(hash string) TokenCheck {
	return func(token string) bool {
		return hash != "" && token != "" && secrets.Verify(token, hash) == nil
	}
}

// RequireAdminToken rejects requests whose X-Admin-Token does not match.
// An empty expected token disables operator routes entirely.
func RequireAdminToken(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	return RequireAdmin(MatchToken(expectedToken), logger)
}

// RequireAdmin rejects requests whose X-Admin-Token fails check.
func RequireAdmin(check TokenCheck, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if !check(r.Header.Get("X-Admin-Token")) {
				logger.WarnContext(ctx, "admin token mismatch",
					"request_id", requestcontext.RequestID(ctx),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"admin token required"}`))
				return
			}

			ctx = context.WithValue(ctx, contextKeyAdminRequest{}, true)
			if actorID := r.Header.Get("X-Admin-Actor-ID"); actorID != "" {
				ctx = context.WithValue(ctx, ContextKeyAdminActorID, actorID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
