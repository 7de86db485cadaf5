package dto

import (
	"time"

	"github.com/makkenzo/commentgate-api/internal/domain/quota"
)

type QuotaResponse struct {
	UserID        string    `json:"user_id"`
	DailyUsage    int64     `json:"daily_usage"`
	DailyLimit    int64     `json:"daily_limit"`
	Remaining     int64     `json:"remaining"`
	TotalUsage    int64     `json:"total_usage"`
	LastResetDate string    `json:"last_reset_date"`
	UpdatedAt     time.Time `json:"updated_at,omitempty"`
}

func NewQuotaResponse(c *quota.Counter) *QuotaResponse {
	return &QuotaResponse{
		UserID:        c.UserID,
		DailyUsage:    c.DailyUsage,
		DailyLimit:    c.DailyLimit,
		Remaining:     c.Remaining(),
		TotalUsage:    c.TotalUsage,
		LastResetDate: c.LastResetDate,
		UpdatedAt:     c.UpdatedAt,
	}
}

type SetQuotaLimitRequest struct {
	DailyLimit int64 `json:"daily_limit" binding:"required,gt=0,lte=100000"`
}

type UsageHistoryRequest struct {
	Limit int `form:"limit,default=50" binding:"omitempty,gte=1,lte=500"`
}

type BlocklistEntryRequest struct {
	Kind  string `json:"kind" binding:"required,oneof=users devices"`
	Value string `json:"value" binding:"required,max=256"`
}
