package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/makkenzo/commentgate-api/internal/config"
	"github.com/makkenzo/commentgate-api/internal/domain/license"
	"github.com/makkenzo/commentgate-api/internal/domain/quota"
	"github.com/makkenzo/commentgate-api/internal/ierr"
	"github.com/makkenzo/commentgate-api/internal/storage/memstorage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type gateFixture struct {
	licenses *memstorage.LicenseRepository
	quotas   *memstorage.QuotaRepository
	clock    CycleClock
	cfg      config.GateConfig
	now      time.Time
}

func newGateFixture(t *testing.T, deviceMode string) *gateFixture {
	t.Helper()
	return &gateFixture{
		licenses: memstorage.NewLicenseRepository(),
		quotas:   memstorage.NewQuotaRepository(),
		clock:    NewCycleClock(8, time.UTC),
		cfg: config.GateConfig{
			DeviceMode:        deviceMode,
			OnCheckError:      config.OnCheckErrorAllow,
			ResetHour:         8,
			Timezone:          "UTC",
			DefaultDailyLimit: 25,
			TierLimits:        map[string]int64{"pro": 100},
			StoreTimeout:      time.Second,
		},
		now: time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC),
	}
}

func (f *gateFixture) gate() *AccessGate {
	g := NewAccessGate(f.licenses, f.quotas, f.clock, f.cfg, zap.NewNop())
	g.nowFn = func() time.Time { return f.now }
	return g
}

func (f *gateFixture) recorder() *UsageRecorder {
	r := NewUsageRecorder(f.quotas, f.clock, f.cfg.DefaultDailyLimit, time.Second, zap.NewNop())
	r.nowFn = func() time.Time { return f.now }
	return r
}

// seedOwned stores an activated license. An empty device leaves it unbound.
func (f *gateFixture) seedOwned(t *testing.T, key, owner, device string, status license.LicenseStatus, expires time.Time) {
	t.Helper()
	lic := &license.License{
		LicenseKey:  key,
		OwnerID:     sql.NullString{String: owner, Valid: true},
		Status:      status,
		Tier:        "default",
		ExpiresAt:   sql.NullTime{Time: expires, Valid: true},
		ActivatedAt: sql.NullTime{Time: f.now.Add(-time.Hour), Valid: true},
	}
	if device != "" {
		lic.BoundDevice = sql.NullString{String: device, Valid: true}
	}
	_, err := f.licenses.Create(context.Background(), lic)
	require.NoError(t, err)
}

func TestAuthorize_QuotaBoundary(t *testing.T) {
	ctx := context.Background()
	f := newGateFixture(t, config.DeviceModeLenient)
	f.seedOwned(t, "ABC", "user1", "10.0.0.1", license.StatusActive, f.now.Add(24*time.Hour))
	f.quotas.Put(quota.Counter{UserID: "user1", DailyUsage: 24, DailyLimit: 25, LastResetDate: "2025-06-02"})

	gate := f.gate()
	cred := Credential{UserID: "user1", Fingerprint: "10.0.0.1"}

	dec, err := gate.Authorize(ctx, cred)
	require.NoError(t, err)
	assert.True(t, dec.Authorized)
	assert.Equal(t, "user1", dec.UserID)
	assert.Equal(t, int64(1), dec.Remaining)

	counter, err := f.recorder().RecordUsage(ctx, UsageEntry{UserID: "user1", Kind: quota.KindComment})
	require.NoError(t, err)
	assert.Equal(t, int64(25), counter.DailyUsage)

	dec, err = gate.Authorize(ctx, cred)
	assert.ErrorIs(t, err, ierr.ErrQuotaExceeded)
	require.NotNil(t, dec)
	assert.False(t, dec.Authorized)
	assert.ErrorIs(t, dec.Reason, ierr.ErrQuotaExceeded)
	assert.Equal(t, int64(0), dec.Remaining)
}

func TestAuthorize_ExpiredActiveLicenseIsInactive(t *testing.T) {
	f := newGateFixture(t, config.DeviceModeLenient)
	f.seedOwned(t, "OLD", "user1", "", license.StatusActive, f.now.Add(-time.Minute))

	dec, err := f.gate().Authorize(context.Background(), Credential{LicenseKey: "OLD", Fingerprint: "10.0.0.1"})
	assert.ErrorIs(t, err, ierr.ErrLicenseInactive)
	assert.False(t, dec.Authorized)

	lic, err := f.licenses.FindByKey(context.Background(), "OLD")
	require.NoError(t, err)
	assert.False(t, lic.HasBoundDevice(), "no bind after a failed status check")
}

func TestAuthorize_BannedNeverAuthorized(t *testing.T) {
	ctx := context.Background()
	for _, mode := range []string{config.DeviceModeLenient, config.DeviceModeStrict} {
		for _, expires := range []time.Duration{-time.Hour, time.Hour, 365 * 24 * time.Hour} {
			f := newGateFixture(t, mode)
			f.seedOwned(t, "BAN", "user1", "10.0.0.1", license.StatusBanned, f.now.Add(expires))

			for _, cred := range []Credential{
				{UserID: "user1", Fingerprint: "10.0.0.1"},
				{LicenseKey: "BAN", Fingerprint: "10.0.0.1"},
			} {
				dec, err := f.gate().Authorize(ctx, cred)
				assert.ErrorIs(t, err, ierr.ErrLicenseBanned)
				assert.False(t, dec.Authorized)
			}
		}
	}
}

func TestAuthorize_ResolveFailures(t *testing.T) {
	ctx := context.Background()
	f := newGateFixture(t, config.DeviceModeLenient)
	gate := f.gate()

	_, err := gate.Authorize(ctx, Credential{LicenseKey: "NOPE"})
	assert.ErrorIs(t, err, ierr.ErrLicenseNotFound)

	_, err = gate.Authorize(ctx, Credential{UserID: "ghost"})
	assert.ErrorIs(t, err, ierr.ErrNoLicenseForUser)

	_, err = gate.Authorize(ctx, Credential{})
	assert.ErrorIs(t, err, ierr.ErrValidation)

	_, err = gate.Authorize(ctx, Credential{UserID: "a", LicenseKey: "b"})
	assert.ErrorIs(t, err, ierr.ErrValidation)
}

func TestAuthorize_UnactivatedLicense(t *testing.T) {
	ctx := context.Background()
	f := newGateFixture(t, config.DeviceModeLenient)
	_, err := f.licenses.Create(ctx, &license.License{LicenseKey: "NEW", Status: license.StatusActive})
	require.NoError(t, err)
	_, err = f.licenses.Create(ctx, &license.License{LicenseKey: "PEND", Status: license.StatusPending})
	require.NoError(t, err)

	_, err = f.gate().Authorize(ctx, Credential{LicenseKey: "NEW"})
	assert.ErrorIs(t, err, ierr.ErrLicenseInactive)

	_, err = f.gate().Authorize(ctx, Credential{LicenseKey: "PEND"})
	assert.ErrorIs(t, err, ierr.ErrLicenseInactive)
}

func TestAuthorize_LicenseKeyResolvesOwner(t *testing.T) {
	f := newGateFixture(t, config.DeviceModeLenient)
	f.seedOwned(t, "KEY", "user7", "10.0.0.1", license.StatusActive, f.now.Add(time.Hour))

	dec, err := f.gate().Authorize(context.Background(), Credential{LicenseKey: "  KEY ", Fingerprint: "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, "user7", dec.UserID)
	assert.Equal(t, "KEY", dec.LicenseKey)
	assert.Equal(t, int64(25), dec.Remaining, "missing counter means nothing used yet")
	assert.Equal(t, int64(25), dec.DailyLimit)

	_, err = f.quotas.Get(context.Background(), "user7")
	assert.ErrorIs(t, err, quota.ErrNotFound, "authorize never creates counters")
}

func TestAuthorize_TierLimitForMissingCounter(t *testing.T) {
	ctx := context.Background()
	f := newGateFixture(t, config.DeviceModeLenient)
	_, err := f.licenses.Create(ctx, &license.License{
		LicenseKey:  "PRO",
		OwnerID:     sql.NullString{String: "u", Valid: true},
		Status:      license.StatusActive,
		Tier:        "Pro",
		ActivatedAt: sql.NullTime{Time: f.now, Valid: true},
	})
	require.NoError(t, err)

	dec, err := f.gate().Authorize(ctx, Credential{UserID: "u", Fingerprint: "1.1.1.1"})
	require.NoError(t, err)
	assert.Equal(t, int64(100), dec.DailyLimit)
}

func TestAuthorize_DeviceBinding(t *testing.T) {
	ctx := context.Background()

	t.Run("binds on first use", func(t *testing.T) {
		f := newGateFixture(t, config.DeviceModeStrict)
		f.seedOwned(t, "K", "u", "", license.StatusActive, f.now.Add(time.Hour))

		_, err := f.gate().Authorize(ctx, Credential{UserID: "u", Fingerprint: "1.1.1.1"})
		require.NoError(t, err)

		lic, err := f.licenses.FindByKey(ctx, "K")
		require.NoError(t, err)
		assert.Equal(t, "1.1.1.1", lic.BoundDevice.String)

		_, err = f.gate().Authorize(ctx, Credential{UserID: "u", Fingerprint: "2.2.2.2"})
		assert.ErrorIs(t, err, ierr.ErrDeviceMismatch)
	})

	t.Run("lenient mismatch proceeds", func(t *testing.T) {
		f := newGateFixture(t, config.DeviceModeLenient)
		f.seedOwned(t, "K", "u", "1.1.1.1", license.StatusActive, f.now.Add(time.Hour))

		dec, err := f.gate().Authorize(ctx, Credential{UserID: "u", Fingerprint: "2.2.2.2"})
		require.NoError(t, err)
		assert.True(t, dec.Authorized)

		lic, err := f.licenses.FindByKey(ctx, "K")
		require.NoError(t, err)
		assert.Equal(t, "1.1.1.1", lic.BoundDevice.String, "binding never moves")
	})

	t.Run("missing fingerprint", func(t *testing.T) {
		f := newGateFixture(t, config.DeviceModeLenient)
		f.seedOwned(t, "K", "u", "", license.StatusActive, f.now.Add(time.Hour))

		_, err := f.gate().Authorize(ctx, Credential{UserID: "u"})
		require.NoError(t, err)

		f.cfg.DeviceMode = config.DeviceModeStrict
		_, err = f.gate().Authorize(ctx, Credential{UserID: "u"})
		assert.ErrorIs(t, err, ierr.ErrDeviceMismatch)
	})
}

func TestAuthorize_StaleCounterComparedAsStored(t *testing.T) {
	f := newGateFixture(t, config.DeviceModeLenient)
	f.seedOwned(t, "K", "u", "", license.StatusActive, f.now.Add(time.Hour))
	f.quotas.Put(quota.Counter{UserID: "u", DailyUsage: 25, DailyLimit: 25, LastResetDate: "2025-05-30"})

	_, err := f.gate().Authorize(context.Background(), Credential{UserID: "u", Fingerprint: "1.1.1.1"})
	assert.ErrorIs(t, err, ierr.ErrQuotaExceeded)

	c, err := f.quotas.Get(context.Background(), "u")
	require.NoError(t, err)
	assert.Equal(t, "2025-05-30", c.LastResetDate, "gate does not reset counters")
}

type failingLicenses struct {
	license.Repository
	err error
}

func (f failingLicenses) FindByOwner(ctx context.Context, ownerID string) (*license.License, error) {
	return nil, f.err
}

func (f failingLicenses) FindByKey(ctx context.Context, key string) (*license.License, error) {
	return nil, f.err
}

type failingQuotas struct {
	quota.Repository
	err error
}

func (f failingQuotas) Get(ctx context.Context, userID string) (*quota.Counter, error) {
	return nil, f.err
}

func TestAuthorize_StoreFailuresFailClosed(t *testing.T) {
	ctx := context.Background()
	f := newGateFixture(t, config.DeviceModeLenient)

	gate := NewAccessGate(failingLicenses{err: errors.New("connection refused")}, f.quotas, f.clock, f.cfg, zap.NewNop())
	dec, err := gate.Authorize(ctx, Credential{UserID: "u"})
	assert.ErrorIs(t, err, ierr.ErrStoreUnavailable)
	assert.False(t, dec.Authorized)

	_, err = gate.Authorize(ctx, Credential{LicenseKey: "K"})
	assert.ErrorIs(t, err, ierr.ErrStoreUnavailable)

	f.seedOwned(t, "K", "u", "", license.StatusActive, f.now.Add(time.Hour))
	gate = NewAccessGate(f.licenses, failingQuotas{err: context.DeadlineExceeded}, f.clock, f.cfg, zap.NewNop())
	gate.nowFn = func() time.Time { return f.now }
	dec, err = gate.Authorize(ctx, Credential{UserID: "u", Fingerprint: "1.1.1.1"})
	assert.ErrorIs(t, err, ierr.ErrStoreUnavailable)
	assert.False(t, dec.Authorized)
}

type bindFailingLicenses struct {
	*memstorage.LicenseRepository
}

func (bindFailingLicenses) BindDevice(ctx context.Context, key, device string) (bool, error) {
	return false, errors.New("write timeout")
}

func TestAuthorize_BindWriteFailure(t *testing.T) {
	ctx := context.Background()
	f := newGateFixture(t, config.DeviceModeLenient)
	f.seedOwned(t, "K", "u", "", license.StatusActive, f.now.Add(time.Hour))
	repo := bindFailingLicenses{f.licenses}

	gate := NewAccessGate(repo, f.quotas, f.clock, f.cfg, zap.NewNop())
	gate.nowFn = func() time.Time { return f.now }
	_, err := gate.Authorize(ctx, Credential{UserID: "u", Fingerprint: "1.1.1.1"})
	require.NoError(t, err)

	f.cfg.DeviceMode = config.DeviceModeStrict
	gate = NewAccessGate(repo, f.quotas, f.clock, f.cfg, zap.NewNop())
	gate.nowFn = func() time.Time { return f.now }
	_, err = gate.Authorize(ctx, Credential{UserID: "u", Fingerprint: "1.1.1.1"})
	assert.ErrorIs(t, err, ierr.ErrStoreUnavailable)
}

// bindRaceLicenses lets another device win the bind between the read and the
// conditional write.
type bindRaceLicenses struct {
	*memstorage.LicenseRepository
	winner string
}

func (r bindRaceLicenses) BindDevice(ctx context.Context, key, device string) (bool, error) {
	if _, err := r.LicenseRepository.BindDevice(ctx, key, r.winner); err != nil {
		return false, err
	}
	return false, nil
}

func TestAuthorize_BindRaceLoserProceeds(t *testing.T) {
	ctx := context.Background()

	for _, mode := range []string{config.DeviceModeStrict, config.DeviceModeLenient} {
		t.Run(mode, func(t *testing.T) {
			f := newGateFixture(t, mode)
			f.seedOwned(t, "K", "u", "", license.StatusActive, f.now.Add(time.Hour))
			repo := bindRaceLicenses{LicenseRepository: f.licenses, winner: "9.9.9.9"}

			gate := NewAccessGate(repo, f.quotas, f.clock, f.cfg, zap.NewNop())
			gate.nowFn = func() time.Time { return f.now }
			dec, err := gate.Authorize(ctx, Credential{UserID: "u", Fingerprint: "1.1.1.1"})
			require.NoError(t, err)
			assert.True(t, dec.Authorized)

			lic, err := f.licenses.FindByKey(ctx, "K")
			require.NoError(t, err)
			assert.Equal(t, "9.9.9.9", lic.BoundDevice.String)
		})
	}
}
