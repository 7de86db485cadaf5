package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/makkenzo/commentgate-api/internal/domain/license"
	"github.com/makkenzo/commentgate-api/internal/ierr"
	"go.uber.org/zap"
)

const licenseColumns = `
            id, license_key, owner_id, status, tier, bound_device, note,
            expires_at, activated_at, created_at, updated_at`

var licenseSortColumns = map[string]string{
	"created_at":   "created_at",
	"updated_at":   "updated_at",
	"expires_at":   "expires_at",
	"activated_at": "activated_at",
}

type LicenseRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewLicenseRepository(db *pgxpool.Pool, logger *zap.Logger) *LicenseRepository {
	return &LicenseRepository{
		db:     db,
		logger: logger.Named("LicenseRepository"),
	}
}

var _ license.Repository = (*LicenseRepository)(nil)

func (r *LicenseRepository) Create(ctx context.Context, lic *license.License) (uuid.UUID, error) {
	query := `
        INSERT INTO licenses (
            license_key, owner_id, status, tier, bound_device, note, expires_at
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7
        ) RETURNING id
    `
	var insertedID uuid.UUID

	err := r.db.QueryRow(ctx, query,
		lic.LicenseKey,
		lic.OwnerID,
		lic.Status,
		lic.Tier,
		lic.BoundDevice,
		lic.Note,
		lic.ExpiresAt,
	).Scan(&insertedID)

	if err != nil {
		if constraint, ok := isUniqueViolation(err); ok {
			r.logger.Warn("Attempted to create license with duplicate key",
				zap.String("license_key", lic.LicenseKey),
				zap.String("constraint", constraint),
			)
			return uuid.Nil, fmt.Errorf("%w: license key '%s' already exists", ierr.ErrConflict, lic.LicenseKey)
		}

		r.logger.Error("Failed to create license in database", zap.Error(err))
		return uuid.Nil, fmt.Errorf("database error on create license: %w", err)
	}

	r.logger.Info("License created successfully", zap.String("id", insertedID.String()))
	return insertedID, nil
}

func (r *LicenseRepository) FindByKey(ctx context.Context, key string) (*license.License, error) {
	query := `SELECT` + licenseColumns + `
        FROM licenses
        WHERE license_key = $1
    `
	return r.scanLicense(r.db.QueryRow(ctx, query, key))
}

func (r *LicenseRepository) FindByOwner(ctx context.Context, ownerID string) (*license.License, error) {
	query := `SELECT` + licenseColumns + `
        FROM licenses
        WHERE owner_id = $1
        ORDER BY activated_at DESC NULLS LAST
        LIMIT 1
    `
	return r.scanLicense(r.db.QueryRow(ctx, query, ownerID))
}

func (r *LicenseRepository) List(ctx context.Context, params license.ListParams) ([]*license.License, int64, error) {
	var (
		where []string
		args  []any
	)
	if params.Status != nil {
		args = append(args, *params.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if params.OwnerID != nil {
		args = append(args, *params.OwnerID)
		where = append(where, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if params.Tier != nil {
		args = append(args, *params.Tier)
		where = append(where, fmt.Sprintf("lower(tier) = lower($%d)", len(args)))
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := r.db.QueryRow(ctx, "SELECT count(*) FROM licenses"+whereClause, args...).Scan(&total); err != nil {
		r.logger.Error("Failed to count licenses", zap.Error(err))
		return nil, 0, fmt.Errorf("database error on count licenses: %w", err)
	}

	sortColumn, ok := licenseSortColumns[params.SortBy]
	if !ok {
		sortColumn = "created_at"
	}
	sortOrder := "DESC"
	if strings.EqualFold(params.SortOrder, "ASC") {
		sortOrder = "ASC"
	}
	limit := params.Limit
	if limit <= 0 {
		limit = 20
	}

	args = append(args, limit, params.Offset)
	query := fmt.Sprintf(`SELECT %s FROM licenses%s ORDER BY %s %s NULLS LAST LIMIT $%d OFFSET $%d`,
		licenseColumns, whereClause, sortColumn, sortOrder, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query list of licenses", zap.Error(err))
		return nil, 0, fmt.Errorf("database error on list licenses: %w", err)
	}
	defer rows.Close()

	licenses := make([]*license.License, 0)
	for rows.Next() {
		lic, err := r.scanLicense(rows)
		if err != nil {
			return nil, 0, err
		}
		licenses = append(licenses, lic)
	}

	if err = rows.Err(); err != nil {
		r.logger.Error("Error iterating license rows", zap.Error(err))
		return nil, 0, fmt.Errorf("database iteration error on list licenses: %w", err)
	}

	return licenses, total, nil
}

func (r *LicenseRepository) Activate(ctx context.Context, params license.ActivateParams) (bool, error) {
	query := `
        UPDATE licenses SET
            owner_id = $2,
            status = 'active',
            bound_device = COALESCE(bound_device, NULLIF($3, '')),
            expires_at = $4,
            activated_at = $5
        WHERE license_key = $1
          AND owner_id IS NULL
          AND status <> 'banned'
    `
	cmdTag, err := r.db.Exec(ctx, query,
		params.LicenseKey,
		params.OwnerID,
		params.Device,
		params.ExpiresAt,
		params.ActivatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to activate license", zap.String("license_key", params.LicenseKey), zap.Error(err))
		return false, fmt.Errorf("database error on activate license: %w", err)
	}
	return cmdTag.RowsAffected() == 1, nil
}

func (r *LicenseRepository) BindDevice(ctx context.Context, key, device string) (bool, error) {
	query := `UPDATE licenses SET bound_device = $2 WHERE license_key = $1 AND bound_device IS NULL`
	cmdTag, err := r.db.Exec(ctx, query, key, device)
	if err != nil {
		r.logger.Error("Failed to bind device", zap.String("license_key", key), zap.Error(err))
		return false, fmt.Errorf("database error on bind device: %w", err)
	}
	return cmdTag.RowsAffected() == 1, nil
}

func (r *LicenseRepository) ClearDevice(ctx context.Context, key string) error {
	return r.execByKey(ctx, "clear device", `UPDATE licenses SET bound_device = NULL WHERE license_key = $1`, key)
}

func (r *LicenseRepository) UpdateStatus(ctx context.Context, key string, status license.LicenseStatus) error {
	return r.execByKey(ctx, "update status", `UPDATE licenses SET status = $2 WHERE license_key = $1`, key, status)
}

func (r *LicenseRepository) UpdateExpiry(ctx context.Context, key string, expiresAt *time.Time) error {
	return r.execByKey(ctx, "update expiry", `UPDATE licenses SET expires_at = $2 WHERE license_key = $1`, key, expiresAt)
}

func (r *LicenseRepository) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	query := `
        UPDATE licenses SET status = 'inactive'
        WHERE status = 'active' AND expires_at IS NOT NULL AND expires_at <= $1
    `
	cmdTag, err := r.db.Exec(ctx, query, now)
	if err != nil {
		r.logger.Error("Failed to expire due licenses", zap.Error(err))
		return 0, fmt.Errorf("database error on expire licenses: %w", err)
	}
	return cmdTag.RowsAffected(), nil
}

func (r *LicenseRepository) execByKey(ctx context.Context, op, query string, key string, args ...any) error {
	cmdTag, err := r.db.Exec(ctx, query, append([]any{key}, args...)...)
	if err != nil {
		r.logger.Error("Failed to "+op, zap.String("license_key", key), zap.Error(err))
		return fmt.Errorf("database error on %s: %w", op, err)
	}
	if cmdTag.RowsAffected() == 0 {
		r.logger.Warn("No license affected by "+op, zap.String("license_key", key))
		return license.ErrNotFound
	}
	return nil
}

func (r *LicenseRepository) scanLicense(row pgx.Row) (*license.License, error) {
	var lic license.License
	err := row.Scan(
		&lic.ID,
		&lic.LicenseKey,
		&lic.OwnerID,
		&lic.Status,
		&lic.Tier,
		&lic.BoundDevice,
		&lic.Note,
		&lic.ExpiresAt,
		&lic.ActivatedAt,
		&lic.CreatedAt,
		&lic.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, license.ErrNotFound
		}

		r.logger.Error("Failed to scan license row", zap.Error(err))
		return nil, fmt.Errorf("database scan error: %w", err)
	}

	return &lic, nil
}
