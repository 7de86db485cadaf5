package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCycleClock_CycleDate(t *testing.T) {
	clock := NewCycleClock(8, time.UTC)

	tests := []struct {
		name string
		now  time.Time
		want string
	}{
		{"just before boundary", time.Date(2025, 6, 2, 7, 59, 0, 0, time.UTC), "2025-06-01"},
		{"at boundary", time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC), "2025-06-02"},
		{"midnight", time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), "2025-06-01"},
		{"late evening", time.Date(2025, 6, 2, 23, 59, 0, 0, time.UTC), "2025-06-02"},
		{"month rollover", time.Date(2025, 7, 1, 3, 0, 0, 0, time.UTC), "2025-06-30"},
		{"year rollover", time.Date(2026, 1, 1, 7, 0, 0, 0, time.UTC), "2025-12-31"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, clock.CycleDate(tt.now))
		})
	}
}

func TestCycleClock_UsesConfiguredLocation(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	clock := NewCycleClock(8, loc)

	// 05:30 UTC is 08:30 at UTC+3, past the boundary there.
	now := time.Date(2025, 6, 2, 5, 30, 0, 0, time.UTC)
	assert.Equal(t, "2025-06-02", clock.CycleDate(now))
	assert.Equal(t, "2025-06-01", NewCycleClock(8, time.UTC).CycleDate(now))
}

func TestCycleClock_MidnightBoundary(t *testing.T) {
	clock := NewCycleClock(0, time.UTC)
	assert.Equal(t, "2025-06-02", clock.CycleDate(time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)))
}
