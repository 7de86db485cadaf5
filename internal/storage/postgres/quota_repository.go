package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/makkenzo/commentgate-api/internal/domain/quota"
	"go.uber.org/zap"
)

const counterColumns = `user_id, daily_usage, daily_limit, total_usage, to_char(last_reset_date, 'YYYY-MM-DD'), updated_at`

type QuotaRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewQuotaRepository(db *pgxpool.Pool, logger *zap.Logger) *QuotaRepository {
	return &QuotaRepository{
		db:     db,
		logger: logger.Named("QuotaRepository"),
	}
}

var _ quota.Repository = (*QuotaRepository)(nil)

func (r *QuotaRepository) Get(ctx context.Context, userID string) (*quota.Counter, error) {
	query := `SELECT ` + counterColumns + ` FROM quota_counters WHERE user_id = $1`
	return r.scanCounter(r.db.QueryRow(ctx, query, userID))
}

// Increment is a single upsert statement; concurrent calls for one user
// serialize on the row lock and never lose an update.
func (r *QuotaRepository) Increment(ctx context.Context, params quota.IncrementParams) (*quota.Counter, error) {
	query := `
        INSERT INTO quota_counters (user_id, daily_usage, daily_limit, total_usage, last_reset_date)
        VALUES ($1, 1, $2, 1, $3::date)
        ON CONFLICT (user_id) DO UPDATE SET
            daily_usage = quota_counters.daily_usage + 1,
            total_usage = quota_counters.total_usage + 1
        RETURNING ` + counterColumns

	c, err := r.scanCounter(r.db.QueryRow(ctx, query, params.UserID, params.DefaultLimit, params.CycleDate))
	if err != nil {
		r.logger.Error("Failed to increment quota counter", zap.String("user_id", params.UserID), zap.Error(err))
		return nil, err
	}
	return c, nil
}

func (r *QuotaRepository) ResetDue(ctx context.Context, cycleDate string) (int64, error) {
	query := `
        UPDATE quota_counters
        SET daily_usage = 0, last_reset_date = $1::date
        WHERE last_reset_date <> $1::date
    `
	cmdTag, err := r.db.Exec(ctx, query, cycleDate)
	if err != nil {
		r.logger.Error("Failed to reset due quota counters", zap.String("cycle_date", cycleDate), zap.Error(err))
		return 0, fmt.Errorf("database error on reset counters: %w", err)
	}
	return cmdTag.RowsAffected(), nil
}

func (r *QuotaRepository) SetLimit(ctx context.Context, userID string, limit int64, cycleDate string) (*quota.Counter, error) {
	query := `
        INSERT INTO quota_counters (user_id, daily_usage, daily_limit, total_usage, last_reset_date)
        VALUES ($1, 0, $2, 0, $3::date)
        ON CONFLICT (user_id) DO UPDATE SET daily_limit = EXCLUDED.daily_limit
        RETURNING ` + counterColumns

	c, err := r.scanCounter(r.db.QueryRow(ctx, query, userID, limit, cycleDate))
	if err != nil {
		r.logger.Error("Failed to set quota limit", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}
	return c, nil
}

func (r *QuotaRepository) AppendHistory(ctx context.Context, entry *quota.HistoryEntry) error {
	query := `
        INSERT INTO usage_history (user_id, license_key, kind, prompt_chars, output_chars)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, created_at
    `
	err := r.db.QueryRow(ctx, query,
		entry.UserID,
		entry.LicenseKey,
		entry.Kind,
		entry.PromptChars,
		entry.OutputChars,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to append usage history", zap.String("user_id", entry.UserID), zap.Error(err))
		return fmt.Errorf("database error on append history: %w", err)
	}
	return nil
}

func (r *QuotaRepository) ListHistory(ctx context.Context, userID string, limit int) ([]*quota.HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
        SELECT id, user_id, license_key, kind, prompt_chars, output_chars, created_at
        FROM usage_history
        WHERE user_id = $1
        ORDER BY id DESC
        LIMIT $2
    `
	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		r.logger.Error("Failed to query usage history", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("database error on list history: %w", err)
	}
	defer rows.Close()

	entries := make([]*quota.HistoryEntry, 0)
	for rows.Next() {
		var h quota.HistoryEntry
		if err := rows.Scan(&h.ID, &h.UserID, &h.LicenseKey, &h.Kind, &h.PromptChars, &h.OutputChars, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("database scan error during history list: %w", err)
		}
		entries = append(entries, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database iteration error on list history: %w", err)
	}
	return entries, nil
}

func (r *QuotaRepository) scanCounter(row pgx.Row) (*quota.Counter, error) {
	var c quota.Counter
	err := row.Scan(
		&c.UserID,
		&c.DailyUsage,
		&c.DailyLimit,
		&c.TotalUsage,
		&c.LastResetDate,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, quota.ErrNotFound
		}
		return nil, fmt.Errorf("database scan error: %w", err)
	}
	return &c, nil
}
