// Package handler serves the health report over HTTP.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-credential-engine/internal/health"
)

// Handler serves GET /healthz.
type Handler struct {
	checker *health.Checker
}

// NewHandler returns a health handler for checker.
func NewHandler(checker *health.Checker) *Handler {
	return &Handler{checker: checker}
}

// RegisterRoutes mounts /healthz on r.
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/healthz", h.healthz)
}

func (h *Handler) healthz(c *gin.Context) {
	report := h.checker.Check(c.Request.Context())
	status := http.StatusOK
	if !report.Serving() {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}
