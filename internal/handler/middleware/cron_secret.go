package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"
	"github.com/makkenzo/commentgate-api/internal/ierr"
	"go.uber.org/zap"
)

const cronSecretHeader = "X-Cron-Secret"

// CronSecretMiddleware guards job triggers with a shared secret. An empty
// configured secret rejects every request.
func CronSecretMiddleware(secret string, logger *zap.Logger) gin.HandlerFunc {
	log := logger.Named("CronSecretMiddleware")
	return func(c *gin.Context) {
		presented := c.GetHeader(cronSecretHeader)
		if secret == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) != 1 {
			log.Warn("Rejected job trigger", zap.String("client_ip", c.ClientIP()))
			_ = c.Error(ierr.ErrInvalidCronSecret)
			c.Abort()
			return
		}
		c.Next()
	}
}
