package worker

import (
	"context"
	"testing"
	"time"

	"github.com/makkenzo/commentgate-api/internal/domain/quota"
	"github.com/makkenzo/commentgate-api/internal/service"
	"github.com/makkenzo/commentgate-api/internal/storage/memstorage"
	"github.com/makkenzo/commentgate-api/internal/tasks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestServeMux_RoutesTasks(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()
	quotas := memstorage.NewQuotaRepository()
	quotas.Put(quota.Counter{UserID: "u", DailyUsage: 4, DailyLimit: 5, LastResetDate: "2000-01-01"})

	mux := NewServeMux(Handlers{
		QuotaReset:    tasks.NewQuotaResetHandler(service.NewResetScheduler(quotas, service.NewCycleClock(0, time.UTC), logger), logger),
		LicenseExpire: tasks.NewLicenseExpireHandler(memstorage.NewLicenseRepository(), logger),
	})

	resetTask, err := tasks.NewQuotaResetTask()
	require.NoError(t, err)
	require.NoError(t, mux.ProcessTask(ctx, resetTask))

	c, err := quotas.Get(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, int64(0), c.DailyUsage)

	expireTask, err := tasks.NewLicenseExpireTask()
	require.NoError(t, err)
	assert.NoError(t, mux.ProcessTask(ctx, expireTask))
}
