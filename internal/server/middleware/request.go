package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-credential-engine/internal/audit"
)

// ClientIPContext copies gin's resolved client IP into the request context so services can
// attach it to events.
func ClientIPContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(WithClientIP(c.Request.Context(), c.ClientIP()))
		c.Next()
	}
}

// Logger returns a gin middleware that logs each request using zap. The query string is not
// logged because login links may carry tokens.
func Logger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		}
		if claims := Claims(c); claims != nil {
			fields = append(fields, zap.String("user_id", claims.Subject))
		}
		switch {
		case c.Writer.Status() >= 500:
			log.Error("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}

// Audit records an audit entry after each authenticated request whose route is not in skip.
// Unauthenticated requests are covered by auth lifecycle events instead.
func Audit(logger audit.AuditLogger, skip map[string]bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" || skip[route] {
			return
		}
		claims := Claims(c)
		if claims == nil {
			return
		}
		ar := audit.ParseRoute(c.Request.Method, route)
		logger.LogEvent(c.Request.Context(), claims.Subject, ar.Action, ar.Resource, "")
	}
}
