package middleware

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/makkenzo/commentgate-api/internal/ierr"
	"github.com/makkenzo/commentgate-api/internal/service"
	"go.uber.org/zap"
)

const (
	authorizationHeader   = "Authorization"
	bearerPrefix          = "Bearer "
	adminClaimsContextKey = "adminClaims"
)

// AuthMiddleware admits requests carrying a valid admin bearer token.
func AuthMiddleware(authService *service.AuthService, logger *zap.Logger) gin.HandlerFunc {
	log := logger.Named("AuthMiddleware")
	return func(c *gin.Context) {
		authHeader := c.GetHeader(authorizationHeader)
		if authHeader == "" {
			_ = c.Error(fmt.Errorf("%w: authorization header required", ierr.ErrUnauthorized))
			c.Abort()
			return
		}

		tokenString, ok := strings.CutPrefix(authHeader, bearerPrefix)
		if !ok || strings.TrimSpace(tokenString) == "" {
			log.Debug("Authorization header format is invalid")
			_ = c.Error(fmt.Errorf("%w: invalid authorization header format", ierr.ErrUnauthorized))
			c.Abort()
			return
		}

		claims, err := authService.ValidateToken(c.Request.Context(), strings.TrimSpace(tokenString))
		if err != nil {
			log.Warn("Token validation failed", zap.Error(err))
			_ = c.Error(err)
			c.Abort()
			return
		}

		c.Set(adminClaimsContextKey, claims)
		c.Next()
	}
}

func GetAdminClaims(c *gin.Context) *service.AdminClaims {
	value, exists := c.Get(adminClaimsContextKey)
	if !exists {
		return nil
	}
	claims, _ := value.(*service.AdminClaims)
	return claims
}
