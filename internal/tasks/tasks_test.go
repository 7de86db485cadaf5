package tasks

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/makkenzo/commentgate-api/internal/domain/license"
	"github.com/makkenzo/commentgate-api/internal/domain/quota"
	"github.com/makkenzo/commentgate-api/internal/service"
	"github.com/makkenzo/commentgate-api/internal/storage/memstorage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLicenseExpireHandler(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	repo := memstorage.NewLicenseRepository()

	seed := func(key string, status license.LicenseStatus, expires time.Time) {
		_, err := repo.Create(ctx, &license.License{
			LicenseKey: key,
			Status:     status,
			OwnerID:    sql.NullString{String: "owner-" + key, Valid: true},
			ExpiresAt:  sql.NullTime{Time: expires, Valid: true},
		})
		require.NoError(t, err)
	}
	seed("PAST", license.StatusActive, now.Add(-time.Minute))
	seed("FUTURE", license.StatusActive, now.Add(time.Hour))
	seed("BANNED", license.StatusBanned, now.Add(-time.Hour))

	h := NewLicenseExpireHandler(repo, zap.NewNop())
	h.nowFn = func() time.Time { return now }

	task, err := NewLicenseExpireTask()
	require.NoError(t, err)
	require.NoError(t, h.ProcessTask(ctx, task))

	want := map[string]license.LicenseStatus{
		"PAST":   license.StatusInactive,
		"FUTURE": license.StatusActive,
		"BANNED": license.StatusBanned,
	}
	for key, status := range want {
		lic, err := repo.FindByKey(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, status, lic.Status, key)
	}

	require.NoError(t, h.ProcessTask(ctx, task), "sweep is repeatable")
}

func TestLicenseExpireHandler_RejectsWrongType(t *testing.T) {
	h := NewLicenseExpireHandler(memstorage.NewLicenseRepository(), zap.NewNop())
	err := h.ProcessTask(context.Background(), asynq.NewTask(TypeQuotaReset, nil))
	assert.Error(t, err)
}

func TestQuotaResetHandler(t *testing.T) {
	ctx := context.Background()
	quotas := memstorage.NewQuotaRepository()
	quotas.Put(quota.Counter{UserID: "stale", DailyUsage: 7, DailyLimit: 10, LastResetDate: "2025-06-01"})
	quotas.Put(quota.Counter{UserID: "fresh", DailyUsage: 3, DailyLimit: 10, LastResetDate: "2025-06-02"})

	clock := service.NewCycleClock(8, time.UTC)
	h := NewQuotaResetHandler(service.NewResetScheduler(quotas, clock, zap.NewNop()), zap.NewNop())
	h.nowFn = func() time.Time { return time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC) }

	task, err := NewQuotaResetTask()
	require.NoError(t, err)
	require.NoError(t, h.ProcessTask(ctx, task))

	stale, err := quotas.Get(ctx, "stale")
	require.NoError(t, err)
	assert.Equal(t, int64(0), stale.DailyUsage)
	assert.Equal(t, "2025-06-02", stale.LastResetDate)

	fresh, err := quotas.Get(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, int64(3), fresh.DailyUsage)

	assert.Error(t, h.ProcessTask(ctx, asynq.NewTask(TypeLicenseExpire, nil)))
}
