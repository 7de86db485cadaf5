package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/makkenzo/commentgate-api/internal/config"
	"github.com/makkenzo/commentgate-api/internal/domain/license"
	"github.com/makkenzo/commentgate-api/internal/domain/quota"
	"github.com/makkenzo/commentgate-api/internal/handler/dto"
	"github.com/makkenzo/commentgate-api/internal/ierr"
	"github.com/makkenzo/commentgate-api/internal/util"
	"go.uber.org/zap"
)

const (
	defaultTier         = "default"
	keyGenerateAttempts = 3
)

// LicenseService backs the admin and provisioning surfaces. Unlike the
// request path it may move a license out of banned.
type LicenseService struct {
	repo   license.Repository
	quotas quota.Repository
	clock  CycleClock
	gate   config.GateConfig
	logger *zap.Logger
}

func NewLicenseService(repo license.Repository, quotas quota.Repository, clock CycleClock, gate config.GateConfig, logger *zap.Logger) *LicenseService {
	return &LicenseService{
		repo:   repo,
		quotas: quotas,
		clock:  clock,
		gate:   gate,
		logger: logger.Named("LicenseService"),
	}
}

func (s *LicenseService) ProvisionLicense(ctx context.Context, req *dto.ProvisionLicenseRequest) (*license.License, error) {
	tier := strings.ToLower(strings.TrimSpace(req.Tier))
	if tier == "" {
		tier = defaultTier
	}
	s.logger.Info("Provisioning license", zap.String("tier", tier))

	newLicense := &license.License{
		Status: license.StatusPending,
		Tier:   tier,
		Note:   req.Note,
	}
	if req.InitialStatus != nil {
		newLicense.Status = *req.InitialStatus
	}
	if req.ExpiresAt != nil {
		if !req.ExpiresAt.After(time.Now()) {
			return nil, fmt.Errorf("%w: expires_at must be in the future", ierr.ErrValidation)
		}
		newLicense.ExpiresAt = sql.NullTime{Time: req.ExpiresAt.UTC(), Valid: true}
	}

	var lastErr error
	for attempt := 0; attempt < keyGenerateAttempts; attempt++ {
		key, err := util.NewLicenseKey()
		if err != nil {
			return nil, fmt.Errorf("%w: failed generating license key: %v", ierr.ErrInternalServer, err)
		}
		newLicense.LicenseKey = key

		if _, err := s.repo.Create(ctx, newLicense); err != nil {
			lastErr = err
			s.logger.Warn("License create failed, retrying with a new key", zap.Int("attempt", attempt+1), zap.Error(err))
			continue
		}

		created, err := s.repo.FindByKey(ctx, key)
		if err != nil {
			s.logger.Error("Failed to read back provisioned license", zap.String("key", key), zap.Error(err))
			return nil, fmt.Errorf("failed to retrieve provisioned license: %w", err)
		}
		s.logger.Info("License provisioned", zap.String("id", created.ID.String()), zap.String("key", created.LicenseKey))
		return created, nil
	}

	s.logger.Error("Giving up provisioning license", zap.Error(lastErr))
	return nil, fmt.Errorf("repository error during license creation: %w", lastErr)
}

func (s *LicenseService) GetLicense(ctx context.Context, key string) (*license.License, error) {
	lic, err := s.repo.FindByKey(ctx, util.NormalizeLicenseKey(key))
	if err != nil {
		if !errors.Is(err, license.ErrNotFound) {
			s.logger.Error("Failed to get license", zap.String("key", key), zap.Error(err))
		}
		return nil, err
	}
	return lic, nil
}

func (s *LicenseService) ListLicenses(ctx context.Context, req *dto.ListLicensesRequest) ([]*license.License, int64, error) {
	params := license.ListParams{
		Status:    req.Status,
		OwnerID:   req.OwnerID,
		Tier:      req.Tier,
		SortBy:    req.SortBy,
		SortOrder: req.SortOrder,
		Limit:     req.Limit,
		Offset:    req.Offset,
	}
	licenses, total, err := s.repo.List(ctx, params)
	if err != nil {
		s.logger.Error("Failed to list licenses", zap.Error(err))
		return nil, 0, fmt.Errorf("repository error listing licenses: %w", err)
	}
	return licenses, total, nil
}

func (s *LicenseService) UpdateLicenseStatus(ctx context.Context, key string, status license.LicenseStatus) (*license.License, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ierr.ErrValidation, status)
	}
	key = util.NormalizeLicenseKey(key)
	if err := s.repo.UpdateStatus(ctx, key, status); err != nil {
		return nil, s.wrapMutation("update status", key, err)
	}
	s.logger.Info("License status updated", zap.String("key", key), zap.String("status", string(status)))
	return s.repo.FindByKey(ctx, key)
}

// RenewLicense moves the expiry. A renewed active license whose sweep already
// marked it inactive is reactivated; banned licenses keep their status.
func (s *LicenseService) RenewLicense(ctx context.Context, key string, expiresAt *time.Time) (*license.License, error) {
	key = util.NormalizeLicenseKey(key)
	if expiresAt != nil && !expiresAt.After(time.Now()) {
		return nil, fmt.Errorf("%w: expires_at must be in the future", ierr.ErrValidation)
	}

	if err := s.repo.UpdateExpiry(ctx, key, expiresAt); err != nil {
		return nil, s.wrapMutation("renew", key, err)
	}

	lic, err := s.repo.FindByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if lic.Status == license.StatusInactive && lic.IsActivated() {
		if err := s.repo.UpdateStatus(ctx, key, license.StatusActive); err != nil {
			return nil, s.wrapMutation("reactivate", key, err)
		}
		lic.Status = license.StatusActive
	}
	s.logger.Info("License renewed", zap.String("key", key), zap.Timep("expires_at", expiresAt))
	return lic, nil
}

func (s *LicenseService) ClearDevice(ctx context.Context, key string) (*license.License, error) {
	key = util.NormalizeLicenseKey(key)
	if err := s.repo.ClearDevice(ctx, key); err != nil {
		return nil, s.wrapMutation("clear device", key, err)
	}
	s.logger.Info("License device binding cleared", zap.String("key", key))
	return s.repo.FindByKey(ctx, key)
}

// GetQuota returns the user's counter, or the counter the gate would assume
// when the user has never been charged.
func (s *LicenseService) GetQuota(ctx context.Context, userID string) (*quota.Counter, error) {
	counter, err := s.quotas.Get(ctx, userID)
	if err == nil {
		return counter, nil
	}
	if !errors.Is(err, quota.ErrNotFound) {
		s.logger.Error("Failed to get quota counter", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("repository error reading quota: %w", err)
	}

	tier := defaultTier
	if lic, errLic := s.repo.FindByOwner(ctx, userID); errLic == nil {
		tier = lic.Tier
	} else if errors.Is(errLic, license.ErrNotFound) {
		return nil, fmt.Errorf("%w: no quota for user %s", ierr.ErrNotFound, userID)
	}
	return &quota.Counter{
		UserID:        userID,
		DailyLimit:    s.gate.LimitForTier(tier),
		LastResetDate: s.clock.CycleDate(time.Now()),
	}, nil
}

func (s *LicenseService) SetDailyLimit(ctx context.Context, userID string, limit int64) (*quota.Counter, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: daily limit must be positive", ierr.ErrValidation)
	}
	counter, err := s.quotas.SetLimit(ctx, userID, limit, s.clock.CycleDate(time.Now()))
	if err != nil {
		s.logger.Error("Failed to set daily limit", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("repository error setting limit: %w", err)
	}
	s.logger.Info("Daily limit overridden", zap.String("user_id", userID), zap.Int64("daily_limit", limit))
	return counter, nil
}

func (s *LicenseService) UsageHistory(ctx context.Context, userID string, limit int) ([]*quota.HistoryEntry, error) {
	entries, err := s.quotas.ListHistory(ctx, userID, limit)
	if err != nil {
		s.logger.Error("Failed to list usage history", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("repository error listing history: %w", err)
	}
	return entries, nil
}

// GetDashboardSummary counts licenses per status and per configured tier.
func (s *LicenseService) GetDashboardSummary(ctx context.Context) (*dto.DashboardSummaryResponse, error) {
	summary := &dto.DashboardSummaryResponse{
		StatusCounts: make(map[license.LicenseStatus]int64),
		TierCounts:   make(map[string]int64),
		ResetHour:    s.clock.ResetHour,
		CycleDate:    s.clock.CycleDate(time.Now()),
	}

	_, total, err := s.repo.List(ctx, license.ListParams{Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("repository error counting licenses: %w", err)
	}
	summary.TotalLicenses = total

	for _, status := range []license.LicenseStatus{license.StatusPending, license.StatusActive, license.StatusInactive, license.StatusBanned} {
		st := status
		_, n, err := s.repo.List(ctx, license.ListParams{Status: &st, Limit: 1})
		if err != nil {
			return nil, fmt.Errorf("repository error counting %s licenses: %w", status, err)
		}
		summary.StatusCounts[status] = n
	}

	tiers := []string{defaultTier}
	for tier := range s.gate.TierLimits {
		if tier != defaultTier {
			tiers = append(tiers, tier)
		}
	}
	sort.Strings(tiers)
	for _, tier := range tiers {
		t := tier
		_, n, err := s.repo.List(ctx, license.ListParams{Tier: &t, Limit: 1})
		if err != nil {
			return nil, fmt.Errorf("repository error counting tier %s: %w", tier, err)
		}
		summary.TierCounts[tier] = n
	}

	return summary, nil
}

func (s *LicenseService) wrapMutation(op, key string, err error) error {
	if errors.Is(err, license.ErrNotFound) {
		return err
	}
	s.logger.Error("License mutation failed", zap.String("op", op), zap.String("key", key), zap.Error(err))
	return fmt.Errorf("%w: %s: %v", ierr.ErrUpdateFailed, op, err)
}
