// Package middleware provides HTTP middleware for the control-plane API.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/fmuellner/telepathy-mission-control/pkg/controlplane/api/auth"
	"github.com/fmuellner/telepathy-mission-control/pkg/controlplane/api/handlers"
)

type contextKey int

const claimsContextKey contextKey = iota

// GetClaimsFromContext returns the JWT claims stored in ctx by JWTAuth, or
// nil if no claims are present (unauthenticated request).
func GetClaimsFromContext(ctx context.Context) *auth.Claims {
	claims, ok := ctx.Value(claimsContextKey).(*auth.Claims)
	if !ok {
		return nil
	}
	return claims
}

// extractBearerToken extracts the token from an "Authorization: Bearer <token>"
// header. The scheme match is case-insensitive.
func extractBearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}

	const prefixLen = len("Bearer ")
	if len(header) <= prefixLen {
		return "", false
	}
	if !strings.EqualFold(header[:prefixLen], "Bearer ") {
		return "", false
	}

	return header[prefixLen:], true
}

// JWTAuth requires a valid bearer token and stores its claims in the
// request context for downstream handlers and role middleware.
func JWTAuth(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := extractBearerToken(r)
			if !ok {
				handlers.Unauthorized(w, "missing or malformed Authorization header")
				return
			}

			claims, err := jwtService.ValidateToken(token)
			if err != nil {
				handlers.Unauthorized(w, err.Error())
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole restricts access to requests whose claims carry one of the
// given roles. Must run after JWTAuth.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaimsFromContext(r.Context())
			if claims == nil {
				handlers.Unauthorized(w, "authentication required")
				return
			}
			if !claims.HasRole(roles...) {
				handlers.Forbidden(w, "insufficient role for this operation")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin restricts access to admin-role tokens. Must run after JWTAuth.
func RequireAdmin() func(http.Handler) http.Handler {
	return RequireRole(auth.RoleAdmin)
}
