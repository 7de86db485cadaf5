package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/makkenzo/commentgate-api/internal/handler/dto"
	"github.com/makkenzo/commentgate-api/internal/service"
	"go.uber.org/zap"
)

// JobsHandler exposes scheduled work to external triggers such as a cron
// service. Routes are guarded by the shared-secret middleware.
type JobsHandler struct {
	reset  *service.ResetScheduler
	clock  service.CycleClock
	logger *zap.Logger
}

func NewJobsHandler(reset *service.ResetScheduler, clock service.CycleClock, logger *zap.Logger) *JobsHandler {
	return &JobsHandler{
		reset:  reset,
		clock:  clock,
		logger: logger.Named("JobsHandler"),
	}
}

func (h *JobsHandler) ResetQuotas(c *gin.Context) {
	now := time.Now()
	n, err := h.reset.ResetDueCounters(c.Request.Context(), now)
	if err != nil {
		_ = c.Error(err)
		return
	}

	h.logger.Info("Quota reset triggered externally", zap.Int64("reset", n))
	c.JSON(http.StatusOK, dto.ResetQuotasResponse{CycleDate: h.clock.CycleDate(now), Reset: n})
}
