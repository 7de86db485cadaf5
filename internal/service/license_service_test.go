package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/makkenzo/commentgate-api/internal/config"
	"github.com/makkenzo/commentgate-api/internal/domain/license"
	"github.com/makkenzo/commentgate-api/internal/domain/quota"
	"github.com/makkenzo/commentgate-api/internal/handler/dto"
	"github.com/makkenzo/commentgate-api/internal/ierr"
	"github.com/makkenzo/commentgate-api/internal/storage/memstorage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newLicenseService(t *testing.T) (*LicenseService, *memstorage.LicenseRepository, *memstorage.QuotaRepository) {
	t.Helper()
	licenses := memstorage.NewLicenseRepository()
	quotas := memstorage.NewQuotaRepository()
	gate := config.GateConfig{DefaultDailyLimit: 25, TierLimits: map[string]int64{"pro": 100}}
	return NewLicenseService(licenses, quotas, NewCycleClock(8, time.UTC), gate, zap.NewNop()), licenses, quotas
}

func TestProvisionLicense(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newLicenseService(t)

	lic, err := svc.ProvisionLicense(ctx, &dto.ProvisionLicenseRequest{Tier: "PRO", Note: "order 42"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(lic.LicenseKey, "LG-"))
	assert.Equal(t, license.StatusPending, lic.Status)
	assert.Equal(t, "pro", lic.Tier)
	assert.False(t, lic.IsActivated())

	active := license.StatusActive
	lic, err = svc.ProvisionLicense(ctx, &dto.ProvisionLicenseRequest{InitialStatus: &active})
	require.NoError(t, err)
	assert.Equal(t, license.StatusActive, lic.Status)
	assert.Equal(t, "default", lic.Tier)

	past := time.Now().Add(-time.Hour)
	_, err = svc.ProvisionLicense(ctx, &dto.ProvisionLicenseRequest{ExpiresAt: &past})
	assert.ErrorIs(t, err, ierr.ErrValidation)
}

func TestUpdateLicenseStatus_AdminCanUnban(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newLicenseService(t)
	_, err := repo.Create(ctx, &license.License{LicenseKey: "K", Status: license.StatusBanned})
	require.NoError(t, err)

	lic, err := svc.UpdateLicenseStatus(ctx, "K", license.StatusActive)
	require.NoError(t, err)
	assert.Equal(t, license.StatusActive, lic.Status)

	_, err = svc.UpdateLicenseStatus(ctx, "K", "revoked")
	assert.ErrorIs(t, err, ierr.ErrValidation)

	_, err = svc.UpdateLicenseStatus(ctx, "missing", license.StatusBanned)
	assert.ErrorIs(t, err, license.ErrNotFound)
}

func TestRenewLicense_ReactivatesSweptLicense(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newLicenseService(t)
	_, err := repo.Create(ctx, &license.License{LicenseKey: "K", Status: license.StatusActive})
	require.NoError(t, err)
	_, err = repo.Activate(ctx, license.ActivateParams{LicenseKey: "K", OwnerID: "u", ExpiresAt: time.Now().Add(-time.Hour), ActivatedAt: time.Now()})
	require.NoError(t, err)
	n, err := repo.ExpireDue(ctx, time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	next := time.Now().Add(30 * 24 * time.Hour)
	lic, err := svc.RenewLicense(ctx, "K", &next)
	require.NoError(t, err)
	assert.Equal(t, license.StatusActive, lic.Status)
	assert.Equal(t, license.StatusActive, lic.EffectiveStatus(time.Now()))
}

func TestRenewLicense_KeepsBan(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newLicenseService(t)
	_, err := repo.Create(ctx, &license.License{LicenseKey: "K", Status: license.StatusBanned})
	require.NoError(t, err)

	next := time.Now().Add(time.Hour)
	lic, err := svc.RenewLicense(ctx, "K", &next)
	require.NoError(t, err)
	assert.Equal(t, license.StatusBanned, lic.Status)
}

func TestClearDevice(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newLicenseService(t)
	_, err := repo.Create(ctx, &license.License{LicenseKey: "K", Status: license.StatusActive})
	require.NoError(t, err)
	_, err = repo.BindDevice(ctx, "K", "1.1.1.1")
	require.NoError(t, err)

	lic, err := svc.ClearDevice(ctx, "K")
	require.NoError(t, err)
	assert.False(t, lic.HasBoundDevice())
}

func TestGetQuotaAndLimit(t *testing.T) {
	ctx := context.Background()
	svc, repo, quotas := newLicenseService(t)

	_, err := svc.GetQuota(ctx, "ghost")
	assert.ErrorIs(t, err, ierr.ErrNotFound)

	_, err = repo.Create(ctx, &license.License{LicenseKey: "K", Status: license.StatusPending, Tier: "pro"})
	require.NoError(t, err)
	_, err = repo.Activate(ctx, license.ActivateParams{LicenseKey: "K", OwnerID: "u", ExpiresAt: time.Now().Add(time.Hour), ActivatedAt: time.Now()})
	require.NoError(t, err)

	c, err := svc.GetQuota(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, int64(100), c.DailyLimit)
	assert.Equal(t, int64(0), c.DailyUsage)

	c, err = svc.SetDailyLimit(ctx, "u", 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), c.DailyLimit)

	stored, err := quotas.Get(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, int64(7), stored.DailyLimit)

	_, err = svc.SetDailyLimit(ctx, "u", 0)
	assert.ErrorIs(t, err, ierr.ErrValidation)

	require.NoError(t, quotas.AppendHistory(ctx, &quota.HistoryEntry{UserID: "u", Kind: quota.KindComment}))
	entries, err := svc.UsageHistory(ctx, "u", 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestGetDashboardSummary(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newLicenseService(t)
	for _, l := range []*license.License{
		{LicenseKey: "A", Status: license.StatusActive, Tier: "default"},
		{LicenseKey: "B", Status: license.StatusActive, Tier: "pro"},
		{LicenseKey: "C", Status: license.StatusBanned, Tier: "pro"},
	} {
		_, err := repo.Create(ctx, l)
		require.NoError(t, err)
	}

	summary, err := svc.GetDashboardSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), summary.TotalLicenses)
	assert.Equal(t, int64(2), summary.StatusCounts[license.StatusActive])
	assert.Equal(t, int64(1), summary.StatusCounts[license.StatusBanned])
	assert.Equal(t, int64(0), summary.StatusCounts[license.StatusPending])
	assert.Equal(t, int64(2), summary.TierCounts["pro"])
	assert.Equal(t, int64(1), summary.TierCounts["default"])
	assert.Equal(t, 8, summary.ResetHour)
}
