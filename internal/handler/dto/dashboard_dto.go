package dto

import "github.com/makkenzo/commentgate-api/internal/domain/license"

type DashboardSummaryResponse struct {
	TotalLicenses int64                           `json:"totalLicenses"`
	StatusCounts  map[license.LicenseStatus]int64 `json:"statusCounts"`
	TierCounts    map[string]int64                `json:"tierCounts"`
	ResetHour     int                             `json:"resetHour"`
	CycleDate     string                          `json:"cycleDate"`
}
