// Package requesttime stamps each request with one "now" and a monotonic
// sequence number, so every state change and event made while serving the
// request agrees on when it happened and in which order.
package requesttime

import (
	"net/http"
	"time"

	"gatekeeper/pkg/requestcontext"
)

// Middleware captures the time at the start of the request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now().UTC())
		ctx = requestcontext.NextSequence(ctx)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
