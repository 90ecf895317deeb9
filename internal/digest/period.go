package digest

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
)

// Period granularities.
const (
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
)

// Period is a half-open calendar window [Start, End) with a sortable key.
type Period struct {
	Key   string
	Start time.Time
	End   time.Time
}

// PeriodFor returns the period containing t. Weekly periods use ISO weeks
// keyed as 2006-W01, monthly periods are keyed as 2006-01.
func PeriodFor(t time.Time, granularity string) (Period, error) {
	t = t.UTC()
	switch granularity {
	case PeriodWeekly, "":
		year, week := t.ISOWeek()
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) + 6) % 7
		start := day.AddDate(0, 0, -offset)
		return Period{
			Key:   fmt.Sprintf("%04d-W%02d", year, week),
			Start: start,
			End:   start.AddDate(0, 0, 7),
		}, nil
	case PeriodMonthly:
		start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		return Period{
			Key:   start.Format("2006-01"),
			Start: start,
			End:   start.AddDate(0, 1, 0),
		}, nil
	default:
		return Period{}, eris.Errorf("digest: unknown period %q", granularity)
	}
}
