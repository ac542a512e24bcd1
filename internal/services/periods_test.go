package services_test

import (
	"testing"
	"time"

	"modelhub_go_backend/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClockPeriods(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	clock := services.NewClock(loc)

	// 02:30 UTC on the 1st is still the previous evening in New York
	at := time.Date(2025, time.March, 1, 2, 30, 0, 0, time.UTC)

	from, to := clock.Day(at)
	assert.Equal(t, time.Date(2025, time.February, 28, 0, 0, 0, 0, loc), from)
	assert.Equal(t, time.Date(2025, time.March, 1, 0, 0, 0, 0, loc), to)
	assert.Equal(t, "2025-02-28", clock.DayKey(at))
	assert.Equal(t, "2025-02", clock.MonthKey(at))

	from, to = clock.Month(at)
	assert.Equal(t, time.Date(2025, time.February, 1, 0, 0, 0, 0, loc), from)
	assert.Equal(t, time.Date(2025, time.March, 1, 0, 0, 0, 0, loc), to)

	// weeks start on Monday
	from, _ = clock.Week(time.Date(2025, time.March, 16, 12, 0, 0, 0, loc))
	assert.Equal(t, time.Date(2025, time.March, 10, 0, 0, 0, 0, loc), from)

	from, to = clock.Year(at)
	assert.Equal(t, 2025, from.Year())
	assert.Equal(t, 2026, to.Year())
}

func TestNewClockDefaultsToUTC(t *testing.T) {
	assert.Equal(t, time.UTC, services.NewClock(nil).Location())
}
