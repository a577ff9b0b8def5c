// Package server assembles the HTTP router and the gRPC health server.
package server

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-credential-engine/internal/audit"
	"chat-credential-engine/internal/health"
	healthhandler "chat-credential-engine/internal/health/handler"
	identityhandler "chat-credential-engine/internal/identity/handler"
	"chat-credential-engine/internal/server/middleware"
)

// RouterDeps holds what the HTTP router mounts. Identity and Tokens may be nil, in which case
// only /healthz is served.
type RouterDeps struct {
	Logger   *zap.Logger
	Audit    audit.AuditLogger
	Health   *health.Checker
	Identity *identityhandler.Handler
	Tokens   middleware.AccessValidator
}

// auditSkip lists routes never written to the audit log.
var auditSkip = map[string]bool{
	"/healthz": true,
}

// NewRouter returns the gin engine serving /healthz and the /v1 API.
func NewRouter(deps RouterDeps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.ClientIPContext(), middleware.Logger(logger))
	if deps.Audit != nil {
		r.Use(middleware.Audit(deps.Audit, auditSkip))
	}

	if deps.Health != nil {
		healthhandler.NewHandler(deps.Health).RegisterRoutes(r)
	}
	if deps.Identity != nil && deps.Tokens != nil {
		v1 := r.Group("/v1")
		deps.Identity.RegisterRoutes(v1, middleware.Auth(deps.Tokens))
	}
	return r
}
