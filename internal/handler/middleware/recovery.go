package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/makkenzo/commentgate-api/internal/handler/dto"
	"go.uber.org/zap"
)

// RecoveryMiddleware turns a handler panic into a 500 JSON response. The
// error middleware never sees it, so the response is written here.
func RecoveryMiddleware(logger *zap.Logger) gin.HandlerFunc {
	log := logger.Named("Recovery")
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.Error("Panic recovered",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Any("panic", recovered),
			zap.Stack("stack"),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, dto.APIErrorResponse{
			Code:    "INTERNAL_ERROR",
			Message: "An unexpected error occurred.",
		})
	})
}
