package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/evidence-cli/internal/model"
	"github.com/sells-group/evidence-cli/internal/pilot"
	"github.com/sells-group/evidence-cli/internal/store"
)

// MetricsSnapshot holds a point-in-time view of pipeline health.
type MetricsSnapshot struct {
	// Ingestion jobs scheduled within the lookback window.
	JobsTotal      int     `json:"jobs_total"`
	JobsCompleted  int     `json:"jobs_completed"`
	JobsFailed     int     `json:"jobs_failed"`
	JobsPending    int     `json:"jobs_pending"`
	JobsRunning    int     `json:"jobs_running"`
	JobFailRate    float64 `json:"job_fail_rate"`
	PapersIngested int     `json:"papers_ingested"`
	PapersRejected int     `json:"papers_rejected"`

	// Backlogs at collection time.
	UnresolvedContradictions int      `json:"unresolved_contradictions"`
	OverduePilots            int      `json:"overdue_pilots"`
	OverduePilotIDs          []string `json:"overdue_pilot_ids,omitempty"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// JobLister lists ingestion jobs.
type JobLister interface {
	ListJobs(ctx context.Context, filter store.JobFilter) ([]model.IngestionJob, error)
}

// OverdueChecker reports active pilots past their end date.
type OverdueChecker interface {
	CheckPilotCompletion(ctx context.Context, now time.Time) ([]pilot.OverdueReport, error)
}

// ContradictionLister lists contradictions awaiting resolution.
type ContradictionLister interface {
	ListUnresolved(ctx context.Context) []model.EvidenceContradiction
}

// Collector gathers metrics from the ingestion, pilot and contradiction
// components. Pilots and contradictions may be nil.
type Collector struct {
	jobs           JobLister
	pilots         OverdueChecker
	contradictions ContradictionLister
	now            func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(jobs JobLister, pilots OverdueChecker, contradictions ContradictionLister) *Collector {
	return &Collector{
		jobs:           jobs,
		pilots:         pilots,
		contradictions: contradictions,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Collect gathers a snapshot of pipeline metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	jobs, err := c.jobs.ListJobs(ctx, store.JobFilter{Limit: 10000})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list jobs")
	}
	for _, j := range jobs {
		if j.ScheduledAt.Before(cutoff) {
			continue
		}
		snap.JobsTotal++
		switch j.Status {
		case model.JobStatusCompleted:
			snap.JobsCompleted++
		case model.JobStatusFailed:
			snap.JobsFailed++
		case model.JobStatusPending:
			snap.JobsPending++
		case model.JobStatusRunning:
			snap.JobsRunning++
		}
		snap.PapersIngested += j.PapersIngested
		snap.PapersRejected += j.PapersRejected
	}
	if finished := snap.JobsCompleted + snap.JobsFailed; finished > 0 {
		snap.JobFailRate = float64(snap.JobsFailed) / float64(finished)
	}

	if c.pilots != nil {
		overdue, err := c.pilots.CheckPilotCompletion(ctx, now)
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: check pilots")
		}
		snap.OverduePilots = len(overdue)
		for _, r := range overdue {
			snap.OverduePilotIDs = append(snap.OverduePilotIDs, r.PilotID)
		}
	}

	if c.contradictions != nil {
		snap.UnresolvedContradictions = len(c.contradictions.ListUnresolved(ctx))
	}

	return snap, nil
}
