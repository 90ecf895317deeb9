package digest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodFor_Weekly(t *testing.T) {
	p, err := PeriodFor(time.Date(2025, 3, 12, 15, 4, 0, 0, time.UTC), PeriodWeekly)
	require.NoError(t, err)
	assert.Equal(t, "2025-W11", p.Key)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), p.Start)
	assert.Equal(t, time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC), p.End)
}

func TestPeriodFor_WeeklyYearBoundary(t *testing.T) {
	p, err := PeriodFor(time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), "")
	require.NoError(t, err)
	assert.Equal(t, "2025-W01", p.Key)
	assert.Equal(t, time.Date(2024, 12, 30, 0, 0, 0, 0, time.UTC), p.Start)

	sunday, err := PeriodFor(time.Date(2025, 3, 16, 23, 59, 0, 0, time.UTC), PeriodWeekly)
	require.NoError(t, err)
	assert.Equal(t, "2025-W11", sunday.Key)
}

func TestPeriodFor_Monthly(t *testing.T) {
	p, err := PeriodFor(time.Date(2025, 12, 31, 22, 0, 0, 0, time.UTC), PeriodMonthly)
	require.NoError(t, err)
	assert.Equal(t, "2025-12", p.Key)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), p.End)
}

func TestPeriodFor_Unknown(t *testing.T) {
	_, err := PeriodFor(time.Now(), "daily")
	assert.Error(t, err)
}
