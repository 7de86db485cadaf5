package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/makkenzo/commentgate-api/internal/domain/license"
	"github.com/makkenzo/commentgate-api/internal/ierr"
	"github.com/makkenzo/commentgate-api/internal/metrics"
	"github.com/makkenzo/commentgate-api/internal/util"
	"go.uber.org/zap"
)

const defaultActivationValidity = 30 * 24 * time.Hour

// ActivationService claims a license for a user exactly once.
type ActivationService struct {
	licenses     license.Repository
	blocklist    *BlocklistChecker
	validity     time.Duration
	storeTimeout time.Duration
	nowFn        func() time.Time
	logger       *zap.Logger
}

// NewActivationService accepts a nil blocklist, in which case no subject is ever blocked.
func NewActivationService(licenses license.Repository, blocklist *BlocklistChecker, validity, storeTimeout time.Duration, logger *zap.Logger) *ActivationService {
	if validity <= 0 {
		validity = defaultActivationValidity
	}
	if storeTimeout <= 0 {
		storeTimeout = 3 * time.Second
	}
	return &ActivationService{
		licenses:     licenses,
		blocklist:    blocklist,
		validity:     validity,
		storeTimeout: storeTimeout,
		nowFn:        time.Now,
		logger:       logger.Named("ActivationService"),
	}
}

// Activate sets the owner, marks the license active, binds the fingerprint and
// starts the validity window. The claim is one conditional write; a caller
// that loses a concurrent race gets the same classification a later caller
// would.
func (s *ActivationService) Activate(ctx context.Context, key, userID, fingerprint string) (*license.License, error) {
	lic, err := s.activate(ctx, key, userID, fingerprint)
	if err != nil {
		metrics.Activations.WithLabelValues(ierr.Code(err)).Inc()
		return nil, err
	}
	metrics.Activations.WithLabelValues("activated").Inc()
	return lic, nil
}

func (s *ActivationService) activate(ctx context.Context, key, userID, fingerprint string) (*license.License, error) {
	key = util.NormalizeLicenseKey(key)
	userID = strings.TrimSpace(userID)
	fingerprint = strings.TrimSpace(fingerprint)
	if key == "" || userID == "" {
		return nil, fmt.Errorf("%w: licenseKey and userId are required", ierr.ErrValidation)
	}
	log := s.logger.With(zap.String("license_key", key), zap.String("user_id", userID))

	current, err := s.find(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := classify(current); err != nil {
		log.Info("Activation rejected", zap.Error(err))
		return nil, err
	}

	if s.blocklist != nil {
		err := s.blocklist.Check(ctx,
			Subject{Kind: BlockKindUser, Value: userID},
			Subject{Kind: BlockKindDevice, Value: fingerprint},
		)
		if err != nil {
			log.Info("Activation rejected by blocklist", zap.Error(err))
			return nil, err
		}
	}

	now := s.nowFn().UTC()
	sctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	params := license.ActivateParams{
		LicenseKey:  key,
		OwnerID:     userID,
		Device:      fingerprint,
		ExpiresAt:   now.Add(s.validity),
		ActivatedAt: now,
	}
	claimed, err := s.licenses.Activate(sctx, params)
	if err != nil {
		log.Error("Activation write failed", zap.Error(err))
		return nil, storeUnavailable(err)
	}

	if !claimed {
		after, err := s.find(ctx, key)
		if err != nil {
			return nil, err
		}
		if err := classify(after); err != nil {
			log.Info("Activation lost to a concurrent claim", zap.Error(err))
			return nil, err
		}
		return nil, fmt.Errorf("%w: license could not be claimed", ierr.ErrAlreadyActivated)
	}

	// The claim is committed; answer from what was written.
	activated := *current
	activated.OwnerID = sql.NullString{String: params.OwnerID, Valid: true}
	activated.Status = license.StatusActive
	activated.ExpiresAt = sql.NullTime{Time: params.ExpiresAt, Valid: true}
	activated.ActivatedAt = sql.NullTime{Time: params.ActivatedAt, Valid: true}
	activated.UpdatedAt = params.ActivatedAt
	if params.Device != "" && !current.HasBoundDevice() {
		activated.BoundDevice = sql.NullString{String: params.Device, Valid: true}
	}

	log.Info("License activated", zap.Time("expires_at", params.ExpiresAt))
	return &activated, nil
}

func (s *ActivationService) find(ctx context.Context, key string) (*license.License, error) {
	sctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	lic, err := s.licenses.FindByKey(sctx, key)
	if errors.Is(err, license.ErrNotFound) {
		return nil, ierr.ErrLicenseNotFound
	}
	if err != nil {
		return nil, storeUnavailable(err)
	}
	return lic, nil
}

// classify reports why lic cannot be claimed, checking the owner before the
// ban so an owned license always answers AlreadyActivated.
func classify(lic *license.License) error {
	if lic.IsActivated() {
		return ierr.ErrAlreadyActivated
	}
	if lic.Status == license.StatusBanned {
		return ierr.ErrLicenseBanned
	}
	return nil
}
