package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/makkenzo/commentgate-api/internal/service"
	"go.uber.org/zap"
)

type DashboardHandler struct {
	licenseService *service.LicenseService
	logger         *zap.Logger
}

func NewDashboardHandler(licenseService *service.LicenseService, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{
		licenseService: licenseService,
		logger:         logger.Named("DashboardHandler"),
	}
}

// GetSummary returns license counts by status and tier plus the current quota cycle.
func (h *DashboardHandler) GetSummary(c *gin.Context) {
	summary, err := h.licenseService.GetDashboardSummary(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to build dashboard summary", zap.Error(err))
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
