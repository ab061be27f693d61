// Package middleware provides HTTP middleware for authentication, CORS
// handling, rate limiting, and request context management.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/moodtunes/backend/internal/logging"
	"github.com/moodtunes/backend/internal/services"
)

type contextKey string

const (
	// ClaimsKey is the context key for storing JWT claims.
	ClaimsKey contextKey = "claims"
)

// TokenValidator validates a signed identity token.
type TokenValidator interface {
	ValidateToken(tokenString string) (*services.Claims, error)
}

// AuthMiddleware validates the identity token and adds its claims to the
// request context. The Authorization header may carry the bare token or
// "Bearer <token>". Returns 401 when no token is sent and 403 when it does
// not verify.
func AuthMiddleware(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFromHeader(r.Header.Get("Authorization"))
			if token == "" {
				logging.LogSecurityEvent(r.Context(), logging.SecurityEventMissingAuth, "missing authorization header")
				writeJSONError(w, http.StatusUnauthorized, "No token provided")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logging.LogSecurityEvent(r.Context(), logging.SecurityEventInvalidJWT, "invalid or expired token")
				writeJSONError(w, http.StatusForbidden, "Invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsKey, claims)
			ctx = logging.WithSpotifyID(ctx, claims.SpotifyID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func tokenFromHeader(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}

// GetClaims retrieves the JWT claims from the request context.
// Returns nil if no claims are present (e.g., unauthenticated request).
func GetClaims(ctx context.Context) *services.Claims {
	claims, _ := ctx.Value(ClaimsKey).(*services.Claims)
	return claims
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
