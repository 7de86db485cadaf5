package quota

import "time"

// DateLayout is the format of LastResetDate and cycle dates.
const DateLayout = "2006-01-02"

type Counter struct {
	UserID        string    `db:"user_id" json:"user_id"`
	DailyUsage    int64     `db:"daily_usage" json:"daily_usage"`
	DailyLimit    int64     `db:"daily_limit" json:"daily_limit"`
	TotalUsage    int64     `db:"total_usage" json:"total_usage"`
	LastResetDate string    `db:"last_reset_date" json:"last_reset_date"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Remaining never goes negative, even when an administrator lowered the limit
// below the current usage.
func (c *Counter) Remaining() int64 {
	if c.DailyUsage >= c.DailyLimit {
		return 0
	}
	return c.DailyLimit - c.DailyUsage
}

func (c *Counter) Exhausted() bool {
	return c.DailyUsage >= c.DailyLimit
}

type UsageKind string

const (
	KindComment UsageKind = "comment"
	KindSummary UsageKind = "summary"
)

func (k UsageKind) Valid() bool {
	return k == KindComment || k == KindSummary
}

// HistoryEntry is one successful generation.
type HistoryEntry struct {
	ID          int64     `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"user_id"`
	LicenseKey  string    `db:"license_key" json:"license_key,omitempty"`
	Kind        UsageKind `db:"kind" json:"kind"`
	PromptChars int       `db:"prompt_chars" json:"prompt_chars"`
	OutputChars int       `db:"output_chars" json:"output_chars"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
