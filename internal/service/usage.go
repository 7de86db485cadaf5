package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/makkenzo/commentgate-api/internal/domain/quota"
	"github.com/makkenzo/commentgate-api/internal/ierr"
	"github.com/makkenzo/commentgate-api/internal/metrics"
	"go.uber.org/zap"
)

// UsageEntry describes one successful generation. DailyLimit seeds the
// counter when this is the user's first charge; zero means the default limit.
type UsageEntry struct {
	UserID      string
	LicenseKey  string
	Kind        quota.UsageKind
	PromptChars int
	OutputChars int
	DailyLimit  int64
}

type UsageRecorder struct {
	quotas       quota.Repository
	clock        CycleClock
	defaultLimit int64
	storeTimeout time.Duration
	nowFn        func() time.Time
	logger       *zap.Logger
}

func NewUsageRecorder(quotas quota.Repository, clock CycleClock, defaultLimit int64, storeTimeout time.Duration, logger *zap.Logger) *UsageRecorder {
	if storeTimeout <= 0 {
		storeTimeout = 3 * time.Second
	}
	return &UsageRecorder{
		quotas:       quotas,
		clock:        clock,
		defaultLimit: defaultLimit,
		storeTimeout: storeTimeout,
		nowFn:        time.Now,
		logger:       logger.Named("UsageRecorder"),
	}
}

// RecordUsage charges one unit against the user's daily quota. The increment
// is a single storage-level operation, so concurrent calls never lose updates.
// The history row is best effort.
func (r *UsageRecorder) RecordUsage(ctx context.Context, entry UsageEntry) (*quota.Counter, error) {
	userID := strings.TrimSpace(entry.UserID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ierr.ErrValidation)
	}
	if entry.Kind == "" {
		entry.Kind = quota.KindComment
	}
	limit := entry.DailyLimit
	if limit <= 0 {
		limit = r.defaultLimit
	}
	now := r.nowFn()

	sctx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	defer cancel()

	counter, err := r.quotas.Increment(sctx, quota.IncrementParams{
		UserID:       userID,
		DefaultLimit: limit,
		CycleDate:    r.clock.CycleDate(now),
	})
	if err != nil {
		r.logger.Error("Failed to increment usage", zap.String("user_id", userID), zap.Error(err))
		return nil, storeUnavailable(err)
	}
	metrics.UsageRecorded.Inc()

	hctx, hcancel := context.WithTimeout(ctx, r.storeTimeout)
	defer hcancel()

	errHist := r.quotas.AppendHistory(hctx, &quota.HistoryEntry{
		UserID:      userID,
		LicenseKey:  entry.LicenseKey,
		Kind:        entry.Kind,
		PromptChars: entry.PromptChars,
		OutputChars: entry.OutputChars,
		CreatedAt:   now.UTC(),
	})
	if errHist != nil {
		r.logger.Warn("Failed to append usage history", zap.String("user_id", userID), zap.Error(errHist))
	}

	r.logger.Debug("Usage recorded",
		zap.String("user_id", userID),
		zap.Int64("daily_usage", counter.DailyUsage),
		zap.Int64("daily_limit", counter.DailyLimit),
	)
	return counter, nil
}
