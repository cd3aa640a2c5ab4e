package http

import (
	"net/http"
	"strings"
	"time"

	"roomrelay/internal/core/domain"
	"roomrelay/internal/core/ports"
	"roomrelay/internal/infrastructure/middleware"
	"roomrelay/pkg/errors"
	"roomrelay/pkg/validation"

	"github.com/gin-gonic/gin"
)

// AuthHandler issues signed tokens to callers holding the static token.
type AuthHandler struct {
	authService ports.Authenticator
	matcher     middleware.StaticTokenMatcher
	maxTTL      time.Duration
}

func NewAuthHandler(authService ports.Authenticator, matcher middleware.StaticTokenMatcher, maxTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		matcher:     matcher,
		maxTTL:      maxTTL,
	}
}

func (h *AuthHandler) SetupRoutes(router gin.IRouter) {
	api := router.Group("/api/v1")
	api.Use(middleware.StaticTokenAuthMiddleware(h.matcher))
	{
		api.POST("/tokens", h.IssueToken)
	}
}

type TokenRequest struct {
	UserID     string `json:"user_id" binding:"required,max=128"`
	TTLSeconds int64  `json:"ttl_seconds" binding:"omitempty,min=1"`
}

type TokenResponse struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	ExpiresIn int64     `json:"expires_in"`
}

func (h *AuthHandler) IssueToken(c *gin.Context) {
	if !h.authService.JWTEnabled() {
		_ = c.Error(errors.NewNotFoundError(c.Request.URL.Path))
		return
	}

	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errors.WrapError(err, errors.ErrCodeInvalidFormat, errors.KindValidationFailure,
			"invalid request format", http.StatusBadRequest))
		return
	}

	req.UserID = strings.TrimSpace(req.UserID)
	if err := validation.ValidateUserID(req.UserID); err != nil {
		_ = c.Error(errors.WrapError(err, errors.ErrCodeInvalidFormat, errors.KindValidationFailure,
			err.Error(), http.StatusBadRequest))
		return
	}

	ttl := h.maxTTL
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}
	if err := validation.ValidateTokenTTL(ttl, h.maxTTL); err != nil {
		_ = c.Error(errors.WrapError(err, errors.ErrCodeInvalidFormat, errors.KindValidationFailure,
			err.Error(), http.StatusBadRequest))
		return
	}

	token, expiresAt, err := h.authService.GenerateToken(domain.UserID(req.UserID), ttl)
	if err != nil {
		_ = c.Error(errors.WrapError(err, errors.ErrCodeInternal, errors.KindInternal,
			"failed to generate token", http.StatusInternalServerError))
		return
	}

	c.JSON(http.StatusCreated, TokenResponse{
		Token:     token,
		UserID:    req.UserID,
		ExpiresAt: expiresAt,
		ExpiresIn: int64(ttl / time.Second),
	})
}
