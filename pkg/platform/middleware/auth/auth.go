package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"gatekeeper/pkg/domain"
	"gatekeeper/pkg/requestcontext"
)

// JWTValidator validates a bearer token and returns the principal it names.
type JWTValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// Claims is the subset of a verified token the edge needs.
type Claims struct {
	Principal domain.Address
	JTI       string
}

func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// Authenticate sets the caller from a bearer token when one is presented.
// Requests without an Authorization header continue anonymously, so read
// routes stay open and admin guards reject anonymous mutations. A presented
// but invalid token is always a 401.
func Authenticate(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return middleware(validator, logger, false)
}

// RequireAuth is Authenticate without the anonymous fallthrough.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return middleware(validator, logger, true)
}

func middleware(validator JWTValidator, logger *slog.Logger, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" && !required {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil || claims == nil || claims.Principal.IsNil() {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			ctx = requestcontext.WithCaller(ctx, claims.Principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
