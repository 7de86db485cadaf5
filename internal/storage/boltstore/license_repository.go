package boltstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/makkenzo/commentgate-api/internal/domain/license"
	"github.com/makkenzo/commentgate-api/internal/ierr"
	bolt "go.etcd.io/bbolt"
)

type licenseRecord struct {
	ID          uuid.UUID             `json:"id"`
	LicenseKey  string                `json:"license_key"`
	OwnerID     *string               `json:"owner_id,omitempty"`
	Status      license.LicenseStatus `json:"status"`
	Tier        string                `json:"tier"`
	BoundDevice *string               `json:"bound_device,omitempty"`
	Note        string                `json:"note,omitempty"`
	ExpiresAt   *time.Time            `json:"expires_at,omitempty"`
	ActivatedAt *time.Time            `json:"activated_at,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

func toRecord(l *license.License) licenseRecord {
	rec := licenseRecord{
		ID:         l.ID,
		LicenseKey: l.LicenseKey,
		Status:     l.Status,
		Tier:       l.Tier,
		Note:       l.Note,
		CreatedAt:  l.CreatedAt,
		UpdatedAt:  l.UpdatedAt,
	}
	if l.OwnerID.Valid {
		rec.OwnerID = &l.OwnerID.String
	}
	if l.BoundDevice.Valid {
		rec.BoundDevice = &l.BoundDevice.String
	}
	if l.ExpiresAt.Valid {
		rec.ExpiresAt = &l.ExpiresAt.Time
	}
	if l.ActivatedAt.Valid {
		rec.ActivatedAt = &l.ActivatedAt.Time
	}
	return rec
}

func (rec licenseRecord) toLicense() *license.License {
	l := &license.License{
		ID:         rec.ID,
		LicenseKey: rec.LicenseKey,
		Status:     rec.Status,
		Tier:       rec.Tier,
		Note:       rec.Note,
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
	}
	if rec.OwnerID != nil {
		l.OwnerID = sql.NullString{String: *rec.OwnerID, Valid: true}
	}
	if rec.BoundDevice != nil {
		l.BoundDevice = sql.NullString{String: *rec.BoundDevice, Valid: true}
	}
	if rec.ExpiresAt != nil {
		l.ExpiresAt = sql.NullTime{Time: *rec.ExpiresAt, Valid: true}
	}
	if rec.ActivatedAt != nil {
		l.ActivatedAt = sql.NullTime{Time: *rec.ActivatedAt, Valid: true}
	}
	return l
}

type LicenseRepository struct {
	store *Store
}

var _ license.Repository = (*LicenseRepository)(nil)

func getLicense(tx *bolt.Tx, key string) (licenseRecord, error) {
	var rec licenseRecord
	found, err := getJSON(tx.Bucket(bucketLicenses), []byte(key), &rec)
	if err != nil {
		return licenseRecord{}, err
	}
	if !found {
		return licenseRecord{}, license.ErrNotFound
	}
	return rec, nil
}

func putLicense(tx *bolt.Tx, rec licenseRecord) error {
	return putJSON(tx.Bucket(bucketLicenses), []byte(rec.LicenseKey), rec)
}

func (r *LicenseRepository) Create(ctx context.Context, lic *license.License) (uuid.UUID, error) {
	rec := toRecord(lic)
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	now := r.store.nowFn()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	err := r.store.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketLicenses).Get([]byte(rec.LicenseKey)) != nil {
			return fmt.Errorf("%w: license key '%s' already exists", ierr.ErrConflict, rec.LicenseKey)
		}
		if rec.OwnerID != nil {
			if err := tx.Bucket(bucketOwners).Put([]byte(*rec.OwnerID), []byte(rec.LicenseKey)); err != nil {
				return err
			}
		}
		return putLicense(tx, rec)
	})
	if err != nil {
		return uuid.Nil, err
	}
	return rec.ID, nil
}

func (r *LicenseRepository) FindByKey(ctx context.Context, key string) (*license.License, error) {
	var out *license.License
	err := r.store.db.View(func(tx *bolt.Tx) error {
		rec, err := getLicense(tx, key)
		if err != nil {
			return err
		}
		out = rec.toLicense()
		return nil
	})
	return out, err
}

func (r *LicenseRepository) FindByOwner(ctx context.Context, ownerID string) (*license.License, error) {
	var out *license.License
	err := r.store.db.View(func(tx *bolt.Tx) error {
		key := tx.Bucket(bucketOwners).Get([]byte(ownerID))
		if key == nil {
			return license.ErrNotFound
		}
		rec, err := getLicense(tx, string(key))
		if err != nil {
			return err
		}
		out = rec.toLicense()
		return nil
	})
	return out, err
}

func (r *LicenseRepository) List(ctx context.Context, params license.ListParams) ([]*license.License, int64, error) {
	matched := make([]*license.License, 0)
	err := r.store.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketLicenses).ForEach(func(k, v []byte) error {
			var rec licenseRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode license %q: %w", k, err)
			}
			lic := rec.toLicense()
			if params.Status != nil && lic.Status != *params.Status {
				return nil
			}
			if params.OwnerID != nil && lic.OwnerID.String != *params.OwnerID {
				return nil
			}
			if params.Tier != nil && !strings.EqualFold(lic.Tier, *params.Tier) {
				return nil
			}
			matched = append(matched, lic)
			return nil
		})
	})
	if err != nil {
		return nil, 0, err
	}

	asc := strings.EqualFold(params.SortOrder, "ASC")
	sort.Slice(matched, func(i, j int) bool {
		a, b := sortKey(matched[i], params.SortBy), sortKey(matched[j], params.SortBy)
		if asc {
			return a.Before(b)
		}
		return a.After(b)
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

func sortKey(l *license.License, field string) time.Time {
	switch field {
	case "expires_at":
		return l.ExpiresAt.Time
	case "activated_at":
		return l.ActivatedAt.Time
	case "updated_at":
		return l.UpdatedAt
	}
	return l.CreatedAt
}

func (r *LicenseRepository) Activate(ctx context.Context, params license.ActivateParams) (bool, error) {
	claimed := false
	err := r.store.db.Update(func(tx *bolt.Tx) error {
		rec, err := getLicense(tx, params.LicenseKey)
		if errors.Is(err, license.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if rec.OwnerID != nil || rec.Status == license.StatusBanned {
			return nil
		}

		owner := params.OwnerID
		rec.OwnerID = &owner
		rec.Status = license.StatusActive
		if rec.BoundDevice == nil && params.Device != "" {
			device := params.Device
			rec.BoundDevice = &device
		}
		expires, activated := params.ExpiresAt, params.ActivatedAt
		rec.ExpiresAt = &expires
		rec.ActivatedAt = &activated
		rec.UpdatedAt = r.store.nowFn()

		if err := tx.Bucket(bucketOwners).Put([]byte(owner), []byte(rec.LicenseKey)); err != nil {
			return err
		}
		claimed = true
		return putLicense(tx, rec)
	})
	if err != nil {
		return false, fmt.Errorf("bolt activate license: %w", err)
	}
	return claimed, nil
}

func (r *LicenseRepository) BindDevice(ctx context.Context, key, device string) (bool, error) {
	bound := false
	err := r.store.db.Update(func(tx *bolt.Tx) error {
		rec, err := getLicense(tx, key)
		if err != nil {
			return err
		}
		if rec.BoundDevice != nil {
			return nil
		}
		rec.BoundDevice = &device
		rec.UpdatedAt = r.store.nowFn()
		bound = true
		return putLicense(tx, rec)
	})
	if err != nil {
		return false, err
	}
	return bound, nil
}

func (r *LicenseRepository) ClearDevice(ctx context.Context, key string) error {
	return r.mutate(key, func(rec *licenseRecord) { rec.BoundDevice = nil })
}

func (r *LicenseRepository) UpdateStatus(ctx context.Context, key string, status license.LicenseStatus) error {
	return r.mutate(key, func(rec *licenseRecord) { rec.Status = status })
}

func (r *LicenseRepository) UpdateExpiry(ctx context.Context, key string, expiresAt *time.Time) error {
	return r.mutate(key, func(rec *licenseRecord) { rec.ExpiresAt = expiresAt })
}

func (r *LicenseRepository) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := r.store.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLicenses)
		var due []licenseRecord
		if err := b.ForEach(func(k, v []byte) error {
			var rec licenseRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode license %q: %w", k, err)
			}
			if rec.Status == license.StatusActive && rec.ExpiresAt != nil && !now.Before(*rec.ExpiresAt) {
				due = append(due, rec)
			}
			return nil
		}); err != nil {
			return err
		}
		// Writes are deferred until after ForEach; bbolt forbids mutating
		// a bucket while iterating it.
		for _, rec := range due {
			rec.Status = license.StatusInactive
			rec.UpdatedAt = r.store.nowFn()
			if err := putLicense(tx, rec); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

func (r *LicenseRepository) mutate(key string, fn func(*licenseRecord)) error {
	return r.store.db.Update(func(tx *bolt.Tx) error {
		rec, err := getLicense(tx, key)
		if err != nil {
			return err
		}
		fn(&rec)
		rec.UpdatedAt = r.store.nowFn()
		return putLicense(tx, rec)
	})
}
