// Package workflow runs the scheduled parts of the evidence pipeline as
// Temporal workflows.
package workflow

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/evidence-cli/internal/contradiction"
	"github.com/sells-group/evidence-cli/internal/decision"
	"github.com/sells-group/evidence-cli/internal/digest"
	"github.com/sells-group/evidence-cli/internal/ingest"
	"github.com/sells-group/evidence-cli/internal/model"
	"github.com/sells-group/evidence-cli/internal/pilot"
	"github.com/sells-group/evidence-cli/internal/store"
)

// Activities holds the services the workflows call into.
type Activities struct {
	Scheduler      *ingest.Scheduler
	Ingest         *ingest.Worker
	Digests        *digest.Generator
	Contradictions *contradiction.Detector
	Papers         store.PaperStore
	Decisions      *decision.Engine
	Pilots         *pilot.Manager
	// Period is the digest granularity used to pick contradiction candidates.
	Period string
}

// JobResult is the outcome of one ingestion job.
type JobResult struct {
	JobID    string          `json:"job_id"`
	Status   model.JobStatus `json:"status"`
	Ingested int             `json:"ingested"`
	Skipped  bool            `json:"skipped"`
}

// DigestInput selects the digest period. A zero At means the workflow's
// current time.
type DigestInput struct {
	At     time.Time `json:"at"`
	UserID string    `json:"user_id"`
}

// DigestOutcome is the generated digest for a period.
type DigestOutcome struct {
	DigestID  string `json:"digest_id"`
	PeriodKey string `json:"period_key"`
	Created   bool   `json:"created"`
}

// ScheduleJobs creates pending jobs and returns their IDs.
func (a *Activities) ScheduleJobs(ctx context.Context, userID string) ([]string, error) {
	jobs, err := a.Scheduler.ScheduleJobs(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(jobs))
	for _, j := range jobs {
		ids = append(ids, j.ID)
	}
	return ids, nil
}

// RunJob fetches and ingests one job.
func (a *Activities) RunJob(ctx context.Context, jobID string) (JobResult, error) {
	job, err := a.Ingest.RunJob(ctx, jobID)
	if err != nil {
		return JobResult{JobID: jobID}, err
	}
	if job == nil {
		return JobResult{JobID: jobID, Skipped: true}, nil
	}
	return JobResult{JobID: jobID, Status: job.Status, Ingested: job.PapersIngested}, nil
}

// GenerateDigest creates the draft digest for the period containing in.At.
func (a *Activities) GenerateDigest(ctx context.Context, in DigestInput) (DigestOutcome, error) {
	d, created, err := a.Digests.GenerateDigest(ctx, in.At, in.UserID)
	if err != nil {
		return DigestOutcome{}, err
	}
	return DigestOutcome{DigestID: d.ID, PeriodKey: d.PeriodKey, Created: created}, nil
}

// DetectPeriodContradictions compares the papers ingested during the period
// containing in.At and returns how many new contradictions were recorded.
func (a *Activities) DetectPeriodContradictions(ctx context.Context, in DigestInput) (int, error) {
	period, err := digest.PeriodFor(in.At, a.Period)
	if err != nil {
		return 0, err
	}
	papers, err := a.Papers.ListPapers(ctx, store.PaperFilter{IngestedFrom: period.Start, IngestedBefore: period.End})
	if err != nil {
		return 0, eris.Wrap(err, "workflow: list period papers")
	}
	ids := make([]string, 0, len(papers))
	for _, p := range papers {
		ids = append(ids, p.ID)
	}
	found, err := a.Contradictions.DetectContradictions(ctx, ids, in.UserID)
	if err != nil {
		return 0, err
	}
	zap.L().Info("period contradictions detected",
		zap.String("component", "workflow"),
		zap.String("period", period.Key),
		zap.Int("papers", len(ids)),
		zap.Int("found", len(found)),
	)
	return len(found), nil
}

// ExecutePhase activates the due rollout plans of one phase.
func (a *Activities) ExecutePhase(ctx context.Context, phase int, now time.Time) (int64, error) {
	return a.Decisions.ExecutePhaseRollout(ctx, phase, now)
}

// CheckOverdue reports active pilots past their end date.
func (a *Activities) CheckOverdue(ctx context.Context, now time.Time) ([]pilot.OverdueReport, error) {
	reports, err := a.Pilots.CheckPilotCompletion(ctx, now)
	if err != nil {
		return nil, err
	}
	for _, r := range reports {
		zap.L().Warn("pilot overdue",
			zap.String("component", "workflow"),
			zap.String("pilot_id", r.PilotID),
			zap.Int("days_overdue", r.DaysOverdue),
		)
	}
	return reports, nil
}
