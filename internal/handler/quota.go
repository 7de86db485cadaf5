package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/makkenzo/commentgate-api/internal/handler/dto"
	"github.com/makkenzo/commentgate-api/internal/service"
	"go.uber.org/zap"
)

type QuotaHandler struct {
	licenses  *service.LicenseService
	blocklist *service.BlocklistChecker
	logger    *zap.Logger
}

func NewQuotaHandler(licenses *service.LicenseService, blocklist *service.BlocklistChecker, logger *zap.Logger) *QuotaHandler {
	return &QuotaHandler{
		licenses:  licenses,
		blocklist: blocklist,
		logger:    logger.Named("QuotaHandler"),
	}
}

func (h *QuotaHandler) Get(c *gin.Context) {
	counter, err := h.licenses.GetQuota(c.Request.Context(), c.Param("userId"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dto.NewQuotaResponse(counter))
}

func (h *QuotaHandler) SetLimit(c *gin.Context) {
	var req dto.SetQuotaLimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	counter, err := h.licenses.SetDailyLimit(c.Request.Context(), c.Param("userId"), req.DailyLimit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dto.NewQuotaResponse(counter))
}

func (h *QuotaHandler) History(c *gin.Context) {
	var req dto.UsageHistoryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	entries, err := h.licenses.UsageHistory(c.Request.Context(), c.Param("userId"), req.Limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h *QuotaHandler) Block(c *gin.Context) {
	var req dto.BlocklistEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}
	if err := h.blocklist.Block(c.Request.Context(), req.Kind, req.Value); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *QuotaHandler) Unblock(c *gin.Context) {
	var req dto.BlocklistEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}
	if err := h.blocklist.Unblock(c.Request.Context(), req.Kind, req.Value); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
