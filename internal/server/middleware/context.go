// Package middleware holds the gin middleware of the HTTP API and the request-scoped context
// values it sets.
package middleware

import (
	"context"

	"chat-credential-engine/internal/session/domain"
)

type contextKey struct{ name string }

var (
	claimsKey   = contextKey{"claims"}
	clientIPKey = contextKey{"client_ip"}
)

// WithIdentity returns a context carrying the validated access token claims.
// Handlers and the auth service read them via ClaimsFrom and UserID.
func WithIdentity(ctx context.Context, claims *domain.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFrom returns the access token claims from context and true if set.
func ClaimsFrom(ctx context.Context) (*domain.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*domain.Claims)
	return c, ok && c != nil
}

// UserID returns the subject of the access token in context and true if set; otherwise "", false.
func UserID(ctx context.Context) (string, bool) {
	c, ok := ClaimsFrom(ctx)
	if !ok || c.Subject == "" {
		return "", false
	}
	return c.Subject, true
}

// WithClientIP returns a context carrying the client IP.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIP returns the client IP from context, or "unknown".
func ClientIP(ctx context.Context) string {
	if v, ok := ctx.Value(clientIPKey).(string); ok && v != "" {
		return v
	}
	return "unknown"
}
