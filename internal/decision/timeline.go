package decision

import (
	"github.com/sells-group/evidence-cli/internal/model"
)

// Rollout phase durations in days.
const (
	rolloutPhaseDays1 = 14
	rolloutPhaseDays2 = 14
	rolloutPhaseDays3 = 7
)

// BuildTimeline lays out the phases for a decision over the pilot's sites.
// Rollback applies every phase to all sites. Rollout splits sites into three
// waves of ceil(n/3), ceil(n/3) and the remainder. Hold has no phases.
func BuildTimeline(decision model.Decision, siteIDs []string) []model.TimelinePhase {
	switch decision {
	case model.DecisionRollback:
		return []model.TimelinePhase{
			{Phase: 1, Name: "immediate_stop", SiteIDs: siteIDs, OffsetDays: 0, DurationDays: 0},
			{Phase: 2, Name: "revert", SiteIDs: siteIDs, OffsetDays: 0, DurationDays: 7},
			{Phase: 3, Name: "stabilization_monitoring", SiteIDs: siteIDs, OffsetDays: 7, DurationDays: 30},
		}
	case model.DecisionRollout:
		first, second, third := splitWaves(siteIDs)
		return []model.TimelinePhase{
			{Phase: 1, Name: "phase_1", SiteIDs: first, OffsetDays: 0, DurationDays: rolloutPhaseDays1},
			{Phase: 2, Name: "phase_2", SiteIDs: second, OffsetDays: rolloutPhaseDays1,
				DurationDays: rolloutPhaseDays2, DependsOn: "phase_1_stable"},
			{Phase: 3, Name: "phase_3", SiteIDs: third, OffsetDays: rolloutPhaseDays1 + rolloutPhaseDays2,
				DurationDays: rolloutPhaseDays3, DependsOn: "phase_2_stable"},
		}
	default:
		return []model.TimelinePhase{}
	}
}

func splitWaves(siteIDs []string) (first, second, third []string) {
	n := len(siteIDs)
	size := (n + 2) / 3
	a := min(size, n)
	b := min(a+size, n)
	return clone(siteIDs[:a]), clone(siteIDs[a:b]), clone(siteIDs[b:])
}

func clone(s []string) []string {
	return append([]string{}, s...)
}

// TotalDays is the span of a timeline from the first start to the last end.
func TotalDays(timeline []model.TimelinePhase) int {
	var end int
	for _, p := range timeline {
		end = max(end, p.OffsetDays+p.DurationDays)
	}
	return end
}
