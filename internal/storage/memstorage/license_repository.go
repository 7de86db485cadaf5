package memstorage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/makkenzo/commentgate-api/internal/domain/license"
	"github.com/makkenzo/commentgate-api/internal/ierr"
)

// LicenseRepository keeps licenses in process memory. Every mutation happens
// under one mutex, so the conditional writes are true compare-and-set.
type LicenseRepository struct {
	mu       sync.RWMutex
	licenses map[string]*license.License
	nowFn    func() time.Time
}

func NewLicenseRepository() *LicenseRepository {
	return &LicenseRepository{
		licenses: make(map[string]*license.License),
		nowFn:    func() time.Time { return time.Now().UTC() },
	}
}

var _ license.Repository = (*LicenseRepository)(nil)

func (r *LicenseRepository) Create(ctx context.Context, lic *license.License) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.licenses[lic.LicenseKey]; exists {
		return uuid.Nil, fmt.Errorf("%w: license key '%s' already exists", ierr.ErrConflict, lic.LicenseKey)
	}

	stored := *lic
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	now := r.nowFn()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	r.licenses[stored.LicenseKey] = &stored
	return stored.ID, nil
}

func (r *LicenseRepository) FindByKey(ctx context.Context, key string) (*license.License, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lic, ok := r.licenses[key]
	if !ok {
		return nil, license.ErrNotFound
	}
	out := *lic
	return &out, nil
}

func (r *LicenseRepository) FindByOwner(ctx context.Context, ownerID string) (*license.License, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var found *license.License
	for _, lic := range r.licenses {
		if !lic.OwnerID.Valid || lic.OwnerID.String != ownerID {
			continue
		}
		if found == nil || lic.ActivatedAt.Time.After(found.ActivatedAt.Time) {
			found = lic
		}
	}
	if found == nil {
		return nil, license.ErrNotFound
	}
	out := *found
	return &out, nil
}

func (r *LicenseRepository) List(ctx context.Context, params license.ListParams) ([]*license.License, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*license.License, 0, len(r.licenses))
	for _, lic := range r.licenses {
		if params.Status != nil && lic.Status != *params.Status {
			continue
		}
		if params.OwnerID != nil && lic.OwnerID.String != *params.OwnerID {
			continue
		}
		if params.Tier != nil && !strings.EqualFold(lic.Tier, *params.Tier) {
			continue
		}
		out := *lic
		matched = append(matched, &out)
	}

	desc := !strings.EqualFold(params.SortOrder, "ASC")
	sort.Slice(matched, func(i, j int) bool {
		a, b := sortTime(matched[i], params.SortBy), sortTime(matched[j], params.SortBy)
		if desc {
			return a.After(b)
		}
		return a.Before(b)
	})

	total := int64(len(matched))
	if params.Offset >= len(matched) {
		return []*license.License{}, total, nil
	}
	matched = matched[params.Offset:]
	if params.Limit > 0 && params.Limit < len(matched) {
		matched = matched[:params.Limit]
	}
	return matched, total, nil
}

func sortTime(lic *license.License, field string) time.Time {
	switch field {
	case "expires_at":
		return lic.ExpiresAt.Time
	case "activated_at":
		return lic.ActivatedAt.Time
	case "updated_at":
		return lic.UpdatedAt
	default:
		return lic.CreatedAt
	}
}

func (r *LicenseRepository) Activate(ctx context.Context, params license.ActivateParams) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lic, ok := r.licenses[params.LicenseKey]
	if !ok || lic.IsActivated() || lic.Status == license.StatusBanned {
		return false, nil
	}

	lic.OwnerID = sql.NullString{String: params.OwnerID, Valid: true}
	lic.Status = license.StatusActive
	if !lic.HasBoundDevice() && params.Device != "" {
		lic.BoundDevice = sql.NullString{String: params.Device, Valid: true}
	}
	lic.ExpiresAt = sql.NullTime{Time: params.ExpiresAt, Valid: true}
	lic.ActivatedAt = sql.NullTime{Time: params.ActivatedAt, Valid: true}
	lic.UpdatedAt = r.nowFn()
	return true, nil
}

func (r *LicenseRepository) BindDevice(ctx context.Context, key, device string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lic, ok := r.licenses[key]
	if !ok {
		return false, license.ErrNotFound
	}
	if lic.HasBoundDevice() {
		return false, nil
	}
	lic.BoundDevice = sql.NullString{String: device, Valid: true}
	lic.UpdatedAt = r.nowFn()
	return true, nil
}

func (r *LicenseRepository) ClearDevice(ctx context.Context, key string) error {
	return r.mutate(key, func(lic *license.License) {
		lic.BoundDevice = sql.NullString{}
	})
}

func (r *LicenseRepository) UpdateStatus(ctx context.Context, key string, status license.LicenseStatus) error {
	return r.mutate(key, func(lic *license.License) {
		lic.Status = status
	})
}

func (r *LicenseRepository) UpdateExpiry(ctx context.Context, key string, expiresAt *time.Time) error {
	return r.mutate(key, func(lic *license.License) {
		if expiresAt == nil {
			lic.ExpiresAt = sql.NullTime{}
			return
		}
		lic.ExpiresAt = sql.NullTime{Time: *expiresAt, Valid: true}
	})
}

func (r *LicenseRepository) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, lic := range r.licenses {
		if lic.Status == license.StatusActive && lic.ExpiresAt.Valid && !now.Before(lic.ExpiresAt.Time) {
			lic.Status = license.StatusInactive
			lic.UpdatedAt = r.nowFn()
			n++
		}
	}
	return n, nil
}

func (r *LicenseRepository) mutate(key string, fn func(*license.License)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	lic, ok := r.licenses[key]
	if !ok {
		return license.ErrNotFound
	}
	fn(lic)
	lic.UpdatedAt = r.nowFn()
	return nil
}
