package quota

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("quota counter not found")

// IncrementParams carries what the store needs to create a counter on first use.
type IncrementParams struct {
	UserID       string
	DefaultLimit int64
	CycleDate    string
}

type Repository interface {
	Get(ctx context.Context, userID string) (*Counter, error)
	// Increment adds one to daily and total usage in a single storage-level
	// operation, creating the counter when it does not exist yet.
	Increment(ctx context.Context, params IncrementParams) (*Counter, error)
	// ResetDue zeroes daily usage of every counter whose last reset date is not
	// cycleDate and stamps cycleDate on it.
	ResetDue(ctx context.Context, cycleDate string) (int64, error)
	SetLimit(ctx context.Context, userID string, limit int64, cycleDate string) (*Counter, error)

	AppendHistory(ctx context.Context, entry *HistoryEntry) error
	ListHistory(ctx context.Context, userID string, limit int) ([]*HistoryEntry, error)
}
