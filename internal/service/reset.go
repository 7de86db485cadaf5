package service

import (
	"context"
	"time"

	"github.com/makkenzo/commentgate-api/internal/domain/quota"
	"github.com/makkenzo/commentgate-api/internal/metrics"
	"go.uber.org/zap"
)

const defaultResetTimeout = 30 * time.Second

// ResetScheduler zeroes the daily usage of counters left over from an earlier
// cycle. Running it twice within one cycle changes nothing.
type ResetScheduler struct {
	quotas  quota.Repository
	clock   CycleClock
	timeout time.Duration
	logger  *zap.Logger
}

func NewResetScheduler(quotas quota.Repository, clock CycleClock, logger *zap.Logger) *ResetScheduler {
	return &ResetScheduler{
		quotas:  quotas,
		clock:   clock,
		timeout: defaultResetTimeout,
		logger:  logger.Named("ResetScheduler"),
	}
}

func (s *ResetScheduler) ResetDueCounters(ctx context.Context, now time.Time) (int64, error) {
	cycle := s.clock.CycleDate(now)

	rctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.quotas.ResetDue(rctx, cycle)
	if err != nil {
		s.logger.Error("Failed to reset quota counters", zap.String("cycle_date", cycle), zap.Error(err))
		return 0, storeUnavailable(err)
	}

	metrics.CountersReset.Add(float64(n))
	if n > 0 {
		s.logger.Info("Quota counters reset", zap.String("cycle_date", cycle), zap.Int64("count", n))
	} else {
		s.logger.Debug("No quota counters due for reset", zap.String("cycle_date", cycle))
	}
	return n, nil
}
