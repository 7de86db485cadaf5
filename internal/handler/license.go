package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/makkenzo/commentgate-api/internal/handler/dto"
	"github.com/makkenzo/commentgate-api/internal/service"
	"go.uber.org/zap"
)

type LicenseHandler struct {
	service *service.LicenseService
	logger  *zap.Logger
}

func NewLicenseHandler(service *service.LicenseService, logger *zap.Logger) *LicenseHandler {
	return &LicenseHandler{
		service: service,
		logger:  logger.Named("LicenseHandler"),
	}
}

// Provision serves both the admin API and the API-key protected provisioning
// endpoint used by the payment relay.
func (h *LicenseHandler) Provision(c *gin.Context) {
	var req dto.ProvisionLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind provision request", zap.Error(err))
		_ = c.Error(bindError(err))
		return
	}

	created, err := h.service.ProvisionLicense(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewLicenseResponse(created))
}

func (h *LicenseHandler) List(c *gin.Context) {
	var req dto.ListLicensesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Warn("Failed to bind list query", zap.Error(err))
		_ = c.Error(bindError(err))
		return
	}

	licenses, totalCount, err := h.service.ListLicenses(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	items := make([]*dto.LicenseResponse, len(licenses))
	for i, lic := range licenses {
		items[i] = dto.NewLicenseResponse(lic)
	}

	c.JSON(http.StatusOK, dto.PaginatedLicenseResponse{
		Licenses:   items,
		TotalCount: totalCount,
		Limit:      req.Limit,
		Offset:     req.Offset,
	})
}

func (h *LicenseHandler) GetByKey(c *gin.Context) {
	lic, err := h.service.GetLicense(c.Request.Context(), c.Param("key"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dto.NewLicenseResponse(lic))
}

func (h *LicenseHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdateLicenseStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	lic, err := h.service.UpdateLicenseStatus(c.Request.Context(), c.Param("key"), *req.Status)
	if err != nil {
		_ = c.Error(err)
		return
	}

	h.logger.Info("License status updated via handler", zap.String("key", lic.LicenseKey), zap.String("new_status", string(lic.Status)))
	c.JSON(http.StatusOK, dto.NewLicenseResponse(lic))
}

func (h *LicenseHandler) Renew(c *gin.Context) {
	var req dto.RenewLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	lic, err := h.service.RenewLicense(c.Request.Context(), c.Param("key"), req.ExpiresAt)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dto.NewLicenseResponse(lic))
}

func (h *LicenseHandler) ClearDevice(c *gin.Context) {
	lic, err := h.service.ClearDevice(c.Request.Context(), c.Param("key"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dto.NewLicenseResponse(lic))
}
