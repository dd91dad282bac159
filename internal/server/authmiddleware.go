package server

import (
	"context"
	"net/http"

	"github.com/tjfontaine/agent-stream-relay/internal/auth"
)

// principalKey is the context key for the authenticated credential name.
type principalKey struct{}

// AuthMiddleware validates bearer tokens and injects the authenticated
// principal into the request context. A nil authenticator disables auth.
func AuthMiddleware(authenticator *auth.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if authenticator == nil {
				next.ServeHTTP(w, r)
				return
			}

			token, err := auth.ExtractToken(r)
			if err != nil {
				http.Error(w, "Missing or malformed credentials", http.StatusUnauthorized)
				return
			}

			principal, err := authenticator.ValidateToken(token)
			if err != nil {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), principalKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetPrincipal returns the authenticated credential name, or "" if the
// request was not authenticated.
func GetPrincipal(ctx context.Context) string {
	if p, ok := ctx.Value(principalKey{}).(string); ok {
		return p
	}
	return ""
}
