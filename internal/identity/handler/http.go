// Package handler exposes the auth service over HTTP with gin.
package handler

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-credential-engine/internal/identity/service"
	invitedomain "chat-credential-engine/internal/invite/domain"
	inviteservice "chat-credential-engine/internal/invite/service"
)

type RegisterDTO struct {
	Email       string `json:"email" binding:"required"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
	InviteToken string `json:"invite_token"`
	DeviceID    string `json:"device_id" binding:"required"`
}

type LoginDTO struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	DeviceID string `json:"device_id" binding:"required"`
}

type LinkRequestDTO struct {
	Email    string `json:"email" binding:"required"`
	DeviceID string `json:"device_id" binding:"required"`
}

type TokenDTO struct {
	Token string `json:"token" binding:"required"`
}

type RefreshDTO struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type LogoutDTO struct {
	RefreshToken string `json:"refresh_token"`
}

type CreateInviteDTO struct {
	ExpiryHours int `json:"expiry_hours"`
}

type authResponse struct {
	UserID           string    `json:"user_id"`
	Email            string    `json:"email,omitempty"`
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type principalResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

type inviteResponse struct {
	Valid     bool       `json:"valid"`
	Reason    string     `json:"reason,omitempty"`
	InviterID string     `json:"inviter_id,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Used      bool       `json:"used"`
}

func toAuthResponse(res *service.AuthResult) authResponse {
	return authResponse{
		UserID:           res.UserID,
		Email:            res.Email,
		AccessToken:      res.Tokens.AccessToken,
		RefreshToken:     res.Tokens.RefreshToken,
		TokenType:        "Bearer",
		AccessExpiresAt:  res.Tokens.AccessExpiresAt,
		RefreshExpiresAt: res.Tokens.RefreshExpiresAt,
	}
}

func toInviteResponse(v invitedomain.Validation) inviteResponse {
	out := inviteResponse{Valid: v.Valid, Reason: string(v.Reason)}
	if v.Info != nil {
		created, expires := v.Info.CreatedAt, v.Info.ExpiresAt
		out.InviterID = v.Info.InviterID
		out.CreatedAt = &created
		out.ExpiresAt = &expires
		out.Used = v.Info.Used
	}
	return out
}

// Handler serves the /v1/auth and /v1/invites routes.
type Handler struct {
	svc    *service.AuthService
	logger *zap.Logger
}

// NewHandler returns a Handler. logger may be nil.
func NewHandler(svc *service.AuthService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// RegisterRoutes mounts the routes on rg. authMW guards the routes that need a session.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	a := rg.Group("/auth")
	a.POST("/register", h.register)
	a.POST("/login", h.login)
	a.POST("/link", h.requestLink)
	a.POST("/link/consume", h.consumeLink)
	a.POST("/refresh", h.refresh)
	a.POST("/logout", authMW, h.logout)
	a.GET("/me", authMW, h.me)

	i := rg.Group("/invites")
	i.POST("", authMW, h.createInvite)
	i.GET("/:token", h.validateInvite)
}

func (h *Handler) register(c *gin.Context) {
	var dto RegisterDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		badRequest(c, err.Error())
		return
	}
	res, err := h.svc.Register(c.Request.Context(), service.RegisterInput{
		Email:       dto.Email,
		DisplayName: dto.DisplayName,
		Password:    dto.Password,
		InviteToken: dto.InviteToken,
		DeviceID:    dto.DeviceID,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toAuthResponse(res))
}

func (h *Handler) login(c *gin.Context) {
	var dto LoginDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		badRequest(c, err.Error())
		return
	}
	res, err := h.svc.Login(c.Request.Context(), dto.Email, dto.Password, dto.DeviceID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toAuthResponse(res))
}

func (h *Handler) requestLink(c *gin.Context) {
	var dto LinkRequestDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.svc.RequestLoginLink(c.Request.Context(), dto.Email, dto.DeviceID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"ok": 1})
}

func (h *Handler) consumeLink(c *gin.Context) {
	var dto TokenDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		badRequest(c, err.Error())
		return
	}
	res, err := h.svc.LoginWithLink(c.Request.Context(), dto.Token)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toAuthResponse(res))
}

func (h *Handler) refresh(c *gin.Context) {
	var dto RefreshDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		badRequest(c, err.Error())
		return
	}
	res, err := h.svc.Refresh(c.Request.Context(), dto.RefreshToken)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toAuthResponse(res))
}

// bindOptionalJSON binds a JSON body when one is sent. Chunked requests report no
// ContentLength, so an empty body is detected by the decoder hitting EOF instead.
func bindOptionalJSON(c *gin.Context, dto interface{}) bool {
	if c.Request.Body == nil || c.Request.Body == http.NoBody {
		return true
	}
	if err := c.ShouldBindJSON(dto); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err.Error())
		return false
	}
	return true
}

func (h *Handler) logout(c *gin.Context) {
	var dto LogoutDTO
	if !bindOptionalJSON(c, &dto) {
		return
	}
	if err := h.svc.Logout(c.Request.Context(), dto.RefreshToken); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) me(c *gin.Context) {
	p, err := h.svc.Me(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, principalResponse{
		ID: p.ID, Email: p.Email, DisplayName: p.DisplayName, Role: p.Role, CreatedAt: p.CreatedAt,
	})
}

func (h *Handler) createInvite(c *gin.Context) {
	var dto CreateInviteDTO
	if !bindOptionalJSON(c, &dto) {
		return
	}
	if dto.ExpiryHours < 0 {
		badRequest(c, inviteservice.ErrInvalidExpiry.Error())
		return
	}
	token, err := h.svc.CreateInvite(c.Request.Context(), dto.ExpiryHours)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"token": token})
}

func (h *Handler) validateInvite(c *gin.Context) {
	v, err := h.svc.ValidateInvite(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if v.Reason == invitedomain.ReasonNotFound || v.Reason == invitedomain.ReasonMalformed {
		c.AbortWithStatusJSON(http.StatusNotFound, toInviteResponse(v))
		return
	}
	c.JSON(http.StatusOK, toInviteResponse(v))
}

// fail maps service errors to status codes. Unmapped errors are logged and reported as 500
// without detail.
func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		abort(c, status, "internal error")
		return
	}
	abort(c, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidRefreshToken),
		errors.Is(err, service.ErrInvalidLoginLink),
		errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrInviteRequired),
		errors.Is(err, service.ErrInvalidInvite):
		return http.StatusForbidden
	case errors.Is(err, service.ErrEmailAlreadyRegistered):
		return http.StatusConflict
	case errors.Is(err, service.ErrPrincipalNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrRegistrationIncomplete):
		return http.StatusInternalServerError
	case errors.Is(err, service.ErrDeviceRequired),
		errors.Is(err, inviteservice.ErrInvalidExpiry),
		errors.As(err, new(*service.InputError)):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(c *gin.Context, message string) {
	abort(c, http.StatusBadRequest, message)
}

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"ok": 0, "code": status, "message": message})
}
