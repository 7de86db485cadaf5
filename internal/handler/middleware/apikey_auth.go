package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/makkenzo/commentgate-api/internal/ierr"
	"github.com/makkenzo/commentgate-api/internal/service"
	"go.uber.org/zap"
)

const apiKeyHeader = "X-API-Key"

// APIKeyAuthMiddleware admits server-to-server callers holding a key with scope.
func APIKeyAuthMiddleware(apiKeys *service.APIKeyService, scope string, logger *zap.Logger) gin.HandlerFunc {
	log := logger.Named("APIKeyAuthMiddleware")
	return func(c *gin.Context) {
		presented := c.GetHeader(apiKeyHeader)
		if presented == "" {
			_ = c.Error(fmt.Errorf("%w: %s header required", ierr.ErrUnauthorized, apiKeyHeader))
			c.Abort()
			return
		}

		key, err := apiKeys.Authenticate(c.Request.Context(), presented, scope)
		if err != nil {
			log.Warn("API key rejected", zap.Error(err))
			_ = c.Error(err)
			c.Abort()
			return
		}

		apiKeys.TouchLastUsed(key.ID)
		log.Debug("API key validated", zap.String("prefix", key.Prefix), zap.String("key_id", key.ID.String()))
		c.Next()
	}
}
