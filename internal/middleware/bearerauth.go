// Package middleware provides HTTP middleware for the gateway server.
package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/weblinq/gateway/internal/config"
)

type contextKey string

const userIDContextKey contextKey = "userID"

// UserID extracts the authenticated user ID stashed by BearerAuth, or ""
// if the request carries none (auth disabled, or the route is exempt).
func UserID(r *http.Request) string {
	if v, ok := r.Context().Value(userIDContextKey).(string); ok {
		return v
	}
	return ""
}

// BearerAuth returns middleware enforcing the gateway's Bearer-token
// requirement (spec.md §6: "Authorization: Bearer <api-key> required
// except where noted"). Resolving a bearer token to a tenant's identity
// and provisioning/issuing that token is an external collaborator's
// concern (spec.md §2 Non-goals) — this middleware only extracts the
// token and treats it as the caller's opaque user ID: compare-and-pass,
// no issuance logic of its own.
func BearerAuth(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.AuthEnabled {
				next.ServeHTTP(w, r)
				return
			}

			if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(header, prefix) {
				writeErrorResponse(w, http.StatusUnauthorized, "missing or malformed Authorization header", time.Now())
				return
			}
			token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
			if token == "" {
				writeErrorResponse(w, http.StatusUnauthorized, "missing or malformed Authorization header", time.Now())
				return
			}

			ctx := context.WithValue(r.Context(), userIDContextKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
