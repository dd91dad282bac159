package server

import (
	"context"
	"net/http"
	"time"
)

// DefaultHistoryTimeout bounds the session-history REST routes. The stream
// endpoint must never sit behind this middleware: a stream lives as long as
// the agent turn it relays.
const DefaultHistoryTimeout = 30 * time.Second

// TimeoutMiddleware puts a deadline on the request context. Cancellation is
// cooperative: handlers are expected to pass the context into their store
// calls rather than being forcibly terminated.
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
