package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"chat-credential-engine/internal/session/domain"
)

const bearerPrefix = "bearer "

// ContextKeyClaims is the gin context key holding *domain.Claims after Auth succeeds.
const ContextKeyClaims = "claims"

// AccessValidator validates access tokens.
type AccessValidator interface {
	ValidateAccess(ctx context.Context, token string) domain.Validation
}

// Auth returns a middleware that requires a valid Bearer access token. Expired tokens are
// reported as "token expired" so clients know to refresh; every other rejection is "invalid token".
func Auth(tokens AccessValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearer(c.GetHeader("Authorization"))
		if token == "" {
			abortUnauthorized(c, "missing or invalid authorization")
			return
		}
		v := tokens.ValidateAccess(c.Request.Context(), token)
		if !v.Valid {
			if v.Reason == domain.ReasonExpired {
				abortUnauthorized(c, "token expired")
				return
			}
			abortUnauthorized(c, "invalid token")
			return
		}
		c.Set(ContextKeyClaims, v.Claims)
		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), v.Claims))
		c.Next()
	}
}

// Claims returns the claims set by Auth, or nil.
func Claims(c *gin.Context) *domain.Claims {
	v, ok := c.Get(ContextKeyClaims)
	if !ok {
		return nil
	}
	claims, _ := v.(*domain.Claims)
	return claims
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": 0, "code": http.StatusUnauthorized, "message": message})
}

// extractBearer returns the token from an Authorization header value, or "" if missing or malformed.
func extractBearer(header string) string {
	v := strings.TrimSpace(header)
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
