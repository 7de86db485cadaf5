package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/makkenzo/commentgate-api/internal/service"
	"go.uber.org/zap"
)

type QuotaResetHandler struct {
	scheduler *service.ResetScheduler
	nowFn     func() time.Time
	logger    *zap.Logger
}

func NewQuotaResetHandler(scheduler *service.ResetScheduler, logger *zap.Logger) *QuotaResetHandler {
	return &QuotaResetHandler{
		scheduler: scheduler,
		nowFn:     time.Now,
		logger:    logger.Named("QuotaResetHandler"),
	}
}

// ProcessTask zeroes every counter from an earlier cycle. Running it more
// than once per cycle is harmless.
func (h *QuotaResetHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	if t.Type() != TypeQuotaReset {
		return fmt.Errorf("unexpected task type: %s", t.Type())
	}

	n, err := h.scheduler.ResetDueCounters(ctx, h.nowFn())
	if err != nil {
		return fmt.Errorf("quota reset failed: %w", err)
	}
	h.logger.Debug("Quota reset task done", zap.Int64("reset", n))
	return nil
}
