package service

import (
	"time"

	"github.com/makkenzo/commentgate-api/internal/domain/quota"
)

// CycleClock maps instants to quota cycle dates. A cycle starts at ResetHour
// local time, so 07:59 still belongs to the previous calendar day's cycle.
type CycleClock struct {
	ResetHour int
	Location  *time.Location
}

func NewCycleClock(resetHour int, loc *time.Location) CycleClock {
	if loc == nil {
		loc = time.Local
	}
	return CycleClock{ResetHour: resetHour, Location: loc}
}

func (c CycleClock) CycleDate(now time.Time) string {
	local := now.In(c.Location)
	if local.Hour() < c.ResetHour {
		local = local.AddDate(0, 0, -1)
	}
	return local.Format(quota.DateLayout)
}
