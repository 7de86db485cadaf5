package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/makkenzo/commentgate-api/internal/domain/license"
	"go.uber.org/zap"
)

// LicenseExpireHandler flips active licenses whose expiry has passed to
// inactive. The gate already treats them as inactive; the sweep keeps stored
// status in line for listings and the dashboard.
type LicenseExpireHandler struct {
	repo   license.Repository
	nowFn  func() time.Time
	logger *zap.Logger
}

func NewLicenseExpireHandler(repo license.Repository, logger *zap.Logger) *LicenseExpireHandler {
	return &LicenseExpireHandler{
		repo:   repo,
		nowFn:  time.Now,
		logger: logger.Named("LicenseExpireHandler"),
	}
}

func (h *LicenseExpireHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	if t.Type() != TypeLicenseExpire {
		return fmt.Errorf("unexpected task type: %s", t.Type())
	}

	var p ExpireLicensePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		h.logger.Error("Failed to unmarshal payload for license expiration task", zap.Error(err), zap.ByteString("payload", t.Payload()))
		return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
	}

	now := h.nowFn().UTC()
	n, err := h.repo.ExpireDue(ctx, now)
	if err != nil {
		h.logger.Error("Failed to expire due licenses", zap.Error(err))
		return fmt.Errorf("repository error expiring licenses: %w", err)
	}

	h.logger.Info("License expiration sweep finished", zap.Int64("expired", n), zap.Time("now", now))
	return nil
}
