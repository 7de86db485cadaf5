package memstorage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/makkenzo/commentgate-api/internal/domain/quota"
)

type QuotaRepository struct {
	mu       sync.Mutex
	counters map[string]*quota.Counter
	history  []*quota.HistoryEntry
	nextID   int64
}

func NewQuotaRepository() *QuotaRepository {
	return &QuotaRepository{
		counters: make(map[string]*quota.Counter),
	}
}

var _ quota.Repository = (*QuotaRepository)(nil)

// Put seeds a counter as-is. Intended for tests and the CLI import path.
func (r *QuotaRepository) Put(c quota.Counter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := c
	r.counters[c.UserID] = &stored
}

func (r *QuotaRepository) Get(ctx context.Context, userID string) (*quota.Counter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.counters[userID]
	if !ok {
		return nil, quota.ErrNotFound
	}
	out := *c
	return &out, nil
}

func (r *QuotaRepository) Increment(ctx context.Context, params quota.IncrementParams) (*quota.Counter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.counters[params.UserID]
	if !ok {
		c = &quota.Counter{
			UserID:        params.UserID,
			DailyLimit:    params.DefaultLimit,
			LastResetDate: params.CycleDate,
		}
		r.counters[params.UserID] = c
	}
	c.DailyUsage++
	c.TotalUsage++
	c.UpdatedAt = time.Now().UTC()

	out := *c
	return &out, nil
}

func (r *QuotaRepository) ResetDue(ctx context.Context, cycleDate string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, c := range r.counters {
		if c.LastResetDate == cycleDate {
			continue
		}
		c.DailyUsage = 0
		c.LastResetDate = cycleDate
		c.UpdatedAt = time.Now().UTC()
		n++
	}
	return n, nil
}

func (r *QuotaRepository) SetLimit(ctx context.Context, userID string, limit int64, cycleDate string) (*quota.Counter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.counters[userID]
	if !ok {
		c = &quota.Counter{UserID: userID, LastResetDate: cycleDate}
		r.counters[userID] = c
	}
	c.DailyLimit = limit
	c.UpdatedAt = time.Now().UTC()

	out := *c
	return &out, nil
}

func (r *QuotaRepository) AppendHistory(ctx context.Context, entry *quota.HistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	stored := *entry
	stored.ID = r.nextID
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	r.history = append(r.history, &stored)
	return nil
}

func (r *QuotaRepository) ListHistory(ctx context.Context, userID string, limit int) ([]*quota.HistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*quota.HistoryEntry, 0)
	for _, h := range r.history {
		if h.UserID == userID {
			cp := *h
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
