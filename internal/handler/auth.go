package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/makkenzo/commentgate-api/internal/handler/dto"
	"github.com/makkenzo/commentgate-api/internal/service"
	"go.uber.org/zap"
)

type AuthHandler struct {
	service *service.AuthService
	logger  *zap.Logger
}

func NewAuthHandler(service *service.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		service: service,
		logger:  logger.Named("AuthHandler"),
	}
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	token, err := h.service.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.logger.Info("Login failed", zap.String("username", req.Username), zap.Error(err))
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.LoginResponse{
		AccessToken: token,
		ExpiresIn:   int64(h.service.TokenTTL().Seconds()),
	})
}
