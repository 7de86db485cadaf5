package boltstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/makkenzo/commentgate-api/internal/domain/quota"
	bolt "go.etcd.io/bbolt"
)

type QuotaRepository struct {
	store *Store
}

var _ quota.Repository = (*QuotaRepository)(nil)

func (r *QuotaRepository) Get(ctx context.Context, userID string) (*quota.Counter, error) {
	var c quota.Counter
	err := r.store.db.View(func(tx *bolt.Tx) error {
		found, err := getJSON(tx.Bucket(bucketQuotas), []byte(userID), &c)
		if err != nil {
			return err
		}
		if !found {
			return quota.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *QuotaRepository) Increment(ctx context.Context, params quota.IncrementParams) (*quota.Counter, error) {
	var c quota.Counter
	err := r.store.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketQuotas)
		found, err := getJSON(b, []byte(params.UserID), &c)
		if err != nil {
			return err
		}
		if !found {
			c = quota.Counter{
				UserID:        params.UserID,
				DailyLimit:    params.DefaultLimit,
				LastResetDate: params.CycleDate,
			}
		}
		c.DailyUsage++
		c.TotalUsage++
		c.UpdatedAt = r.store.nowFn()
		return putJSON(b, []byte(params.UserID), c)
	})
	if err != nil {
		return nil, fmt.Errorf("bolt increment quota: %w", err)
	}
	return &c, nil
}

func (r *QuotaRepository) ResetDue(ctx context.Context, cycleDate string) (int64, error) {
	var n int64
	err := r.store.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketQuotas)
		var due []quota.Counter
		if err := b.ForEach(func(k, v []byte) error {
			var c quota.Counter
			if err := json.Unmarshal(v, &c); err != nil {
				return fmt.Errorf("decode counter %q: %w", k, err)
			}
			if c.LastResetDate != cycleDate {
				due = append(due, c)
			}
			return nil
		}); err != nil {
			return err
		}
		for _, c := range due {
			c.DailyUsage = 0
			c.LastResetDate = cycleDate
			c.UpdatedAt = r.store.nowFn()
			if err := putJSON(b, []byte(c.UserID), c); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("bolt reset counters: %w", err)
	}
	return n, nil
}

func (r *QuotaRepository) SetLimit(ctx context.Context, userID string, limit int64, cycleDate string) (*quota.Counter, error) {
	var c quota.Counter
	err := r.store.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketQuotas)
		found, err := getJSON(b, []byte(userID), &c)
		if err != nil {
			return err
		}
		if !found {
			c = quota.Counter{UserID: userID, LastResetDate: cycleDate}
		}
		c.DailyLimit = limit
		c.UpdatedAt = r.store.nowFn()
		return putJSON(b, []byte(userID), c)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *QuotaRepository) AppendHistory(ctx context.Context, entry *quota.HistoryEntry) error {
	return r.store.db.Update(func(tx *bolt.Tx) error {
		userBucket, err := tx.Bucket(bucketHistory).CreateBucketIfNotExists([]byte(entry.UserID))
		if err != nil {
			return err
		}
		seq, err := userBucket.NextSequence()
		if err != nil {
			return err
		}
		entry.ID = int64(seq)
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = r.store.nowFn()
		}
		return putJSON(userBucket, itob(seq), entry)
	})
}

func (r *QuotaRepository) ListHistory(ctx context.Context, userID string, limit int) ([]*quota.HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	entries := make([]*quota.HistoryEntry, 0)
	err := r.store.db.View(func(tx *bolt.Tx) error {
		userBucket := tx.Bucket(bucketHistory).Bucket([]byte(userID))
		if userBucket == nil {
			return nil
		}
		c := userBucket.Cursor()
		for k, v := c.Last(); k != nil && len(entries) < limit; k, v = c.Prev() {
			var h quota.HistoryEntry
			if err := json.Unmarshal(v, &h); err != nil {
				return fmt.Errorf("decode history entry: %w", err)
			}
			entries = append(entries, &h)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
