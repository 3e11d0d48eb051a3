package jwt

import (
	"context"
	"net/http"
	"strings"

	"taskflow/internal/pkg/logx"
)

type contextKey string

const (
	// ContextClaimsKey is the request context key holding the parsed *Claims.
	ContextClaimsKey contextKey = "auth_claims"
)

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
// It returns "" when the header is missing or malformed.
func BearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

// IdentityExtractorMiddleware parses a bearer token when one is present and stores its
// claims in the request context. It never rejects a request: handlers decide whether an
// anonymous caller is acceptable.
func IdentityExtractorMiddleware(secretKey string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := BearerToken(r)
			if tokenString == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := ParseToken(tokenString, secretKey)
			if err != nil {
				logx.Warn("Invalid or expired JWT provided, treating as anonymous", "error", err.Error())
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// WithClaims returns a copy of ctx carrying claims.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, ContextClaimsKey, claims)
}

// GetClaimsFromContext returns the claims stored by IdentityExtractorMiddleware, or nil for
// anonymous requests.
func GetClaimsFromContext(r *http.Request) *Claims {
	claims, ok := r.Context().Value(ContextClaimsKey).(*Claims)
	if !ok {
		return nil
	}

	return claims
}
