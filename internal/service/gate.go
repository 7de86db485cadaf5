package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/makkenzo/commentgate-api/internal/config"
	"github.com/makkenzo/commentgate-api/internal/domain/license"
	"github.com/makkenzo/commentgate-api/internal/domain/quota"
	"github.com/makkenzo/commentgate-api/internal/ierr"
	"github.com/makkenzo/commentgate-api/internal/metrics"
	"github.com/makkenzo/commentgate-api/internal/util"
	"go.uber.org/zap"
)

// Credential identifies a caller. Exactly one of UserID and LicenseKey is set;
// Fingerprint is the caller's network address as seen by the server.
type Credential struct {
	UserID      string
	LicenseKey  string
	Fingerprint string
}

// Decision is the outcome of Authorize. It is never persisted.
type Decision struct {
	Authorized bool
	Reason     error
	UserID     string
	LicenseKey string
	DailyLimit int64
	Remaining  int64
}

// AccessGate decides whether a generation request may proceed. Apart from the
// one-time device bind it never writes; quota is charged separately by
// UsageRecorder once the downstream call succeeded.
type AccessGate struct {
	licenses     license.Repository
	quotas       quota.Repository
	clock        CycleClock
	cfg          config.GateConfig
	storeTimeout time.Duration
	nowFn        func() time.Time
	logger       *zap.Logger
}

func NewAccessGate(licenses license.Repository, quotas quota.Repository, clock CycleClock, cfg config.GateConfig, logger *zap.Logger) *AccessGate {
	timeout := cfg.StoreTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &AccessGate{
		licenses:     licenses,
		quotas:       quotas,
		clock:        clock,
		cfg:          cfg,
		storeTimeout: timeout,
		nowFn:        time.Now,
		logger:       logger.Named("AccessGate"),
	}
}

func (g *AccessGate) strict() bool {
	return g.cfg.DeviceMode == config.DeviceModeStrict
}

// Authorize runs resolve, status, device and quota checks in that order and
// stops at the first failure. A denial returns both a Decision carrying the
// reason and the reason itself as the error.
func (g *AccessGate) Authorize(ctx context.Context, cred Credential) (*Decision, error) {
	dec, err := g.authorize(ctx, cred)
	if err != nil {
		dec.Authorized = false
		dec.Reason = err
		metrics.AccessDecisions.WithLabelValues(ierr.Code(err)).Inc()

		fields := []zap.Field{zap.String("user_id", dec.UserID), zap.String("reason", ierr.Code(err))}
		if ierr.IsDenial(err) {
			g.logger.Info("Access denied", append(fields, zap.Error(err))...)
		} else {
			g.logger.Error("Access check failed", append(fields, zap.Error(err))...)
		}
		return dec, err
	}

	dec.Authorized = true
	metrics.AccessDecisions.WithLabelValues("authorized").Inc()
	g.logger.Debug("Access granted", zap.String("user_id", dec.UserID), zap.Int64("remaining", dec.Remaining))
	return dec, nil
}

func (g *AccessGate) authorize(ctx context.Context, cred Credential) (*Decision, error) {
	dec := &Decision{}
	userID := strings.TrimSpace(cred.UserID)
	key := util.NormalizeLicenseKey(cred.LicenseKey)

	if (userID == "") == (key == "") {
		return dec, fmt.Errorf("%w: exactly one of userId or licenseKey is required", ierr.ErrValidation)
	}

	lic, err := g.resolve(ctx, userID, key)
	if err != nil {
		dec.UserID = userID
		return dec, err
	}
	dec.LicenseKey = lic.LicenseKey
	if userID == "" {
		userID = lic.OwnerID.String
	}
	dec.UserID = userID

	now := g.nowFn()
	if lic.Status == license.StatusBanned {
		return dec, ierr.ErrLicenseBanned
	}
	if status := lic.EffectiveStatus(now); status != license.StatusActive {
		return dec, fmt.Errorf("%w: status %s", ierr.ErrLicenseInactive, status)
	}
	if !lic.IsActivated() {
		return dec, fmt.Errorf("%w: license has not been activated", ierr.ErrLicenseInactive)
	}

	if err := g.checkDevice(ctx, lic, strings.TrimSpace(cred.Fingerprint)); err != nil {
		return dec, err
	}

	counter, err := g.loadCounter(ctx, userID, lic.Tier, now)
	if err != nil {
		return dec, err
	}
	dec.DailyLimit = counter.DailyLimit
	dec.Remaining = counter.Remaining()
	if counter.Exhausted() {
		return dec, fmt.Errorf("%w: %d of %d used", ierr.ErrQuotaExceeded, counter.DailyUsage, counter.DailyLimit)
	}

	return dec, nil
}

func (g *AccessGate) resolve(ctx context.Context, userID, key string) (*license.License, error) {
	sctx, cancel := context.WithTimeout(ctx, g.storeTimeout)
	defer cancel()

	if key != "" {
		lic, err := g.licenses.FindByKey(sctx, key)
		if errors.Is(err, license.ErrNotFound) {
			return nil, ierr.ErrLicenseNotFound
		}
		if err != nil {
			return nil, storeUnavailable(err)
		}
		return lic, nil
	}

	lic, err := g.licenses.FindByOwner(sctx, userID)
	if errors.Is(err, license.ErrNotFound) {
		return nil, ierr.ErrNoLicenseForUser
	}
	if err != nil {
		return nil, storeUnavailable(err)
	}
	return lic, nil
}

// checkDevice binds the fingerprint on first use and compares it afterwards.
// Only strict mode turns a mismatch into a denial; shared NATs and mobile
// networks make addresses unstable.
func (g *AccessGate) checkDevice(ctx context.Context, lic *license.License, fingerprint string) error {
	log := g.logger.With(zap.String("license_key", lic.LicenseKey), zap.String("fingerprint", fingerprint))

	if fingerprint == "" {
		if g.strict() {
			metrics.DeviceBindings.WithLabelValues("mismatch_denied").Inc()
			return fmt.Errorf("%w: caller fingerprint unavailable", ierr.ErrDeviceMismatch)
		}
		log.Warn("No caller fingerprint, skipping device check")
		return nil
	}

	if !lic.HasBoundDevice() {
		sctx, cancel := context.WithTimeout(ctx, g.storeTimeout)
		defer cancel()

		bound, err := g.licenses.BindDevice(sctx, lic.LicenseKey, fingerprint)
		switch {
		case err != nil && g.strict():
			return storeUnavailable(err)
		case err != nil:
			log.Warn("Device bind failed, continuing in lenient mode", zap.Error(err))
		case bound:
			metrics.DeviceBindings.WithLabelValues("bound").Inc()
			log.Info("Device bound to license")
		default:
			metrics.DeviceBindings.WithLabelValues("race_lost").Inc()
			log.Debug("Device already bound by a concurrent request")
		}
		return nil
	}

	if lic.BoundDevice.String == fingerprint {
		return nil
	}

	if g.strict() {
		metrics.DeviceBindings.WithLabelValues("mismatch_denied").Inc()
		return ierr.ErrDeviceMismatch
	}
	metrics.DeviceBindings.WithLabelValues("mismatch_allowed").Inc()
	log.Warn("Device mismatch allowed in lenient mode", zap.String("bound_device", lic.BoundDevice.String))
	return nil
}

// loadCounter returns the stored counter as-is, even when its reset date is
// behind the current cycle; resetting is the scheduler's job. A user without
// a counter has used nothing yet.
func (g *AccessGate) loadCounter(ctx context.Context, userID, tier string, now time.Time) (*quota.Counter, error) {
	sctx, cancel := context.WithTimeout(ctx, g.storeTimeout)
	defer cancel()

	counter, err := g.quotas.Get(sctx, userID)
	if errors.Is(err, quota.ErrNotFound) {
		return &quota.Counter{
			UserID:        userID,
			DailyLimit:    g.cfg.LimitForTier(tier),
			LastResetDate: g.clock.CycleDate(now),
		}, nil
	}
	if err != nil {
		return nil, storeUnavailable(err)
	}

	if cycle := g.clock.CycleDate(now); counter.LastResetDate != cycle {
		g.logger.Debug("Counter not yet reset for current cycle",
			zap.String("user_id", userID),
			zap.String("last_reset_date", counter.LastResetDate),
			zap.String("cycle_date", cycle),
		)
	}
	return counter, nil
}

func storeUnavailable(err error) error {
	return fmt.Errorf("%w: %v", ierr.ErrStoreUnavailable, err)
}
