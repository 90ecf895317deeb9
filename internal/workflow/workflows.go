package workflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/sells-group/evidence-cli/internal/pilot"
)

// Rollout phases executed by RolloutWorkflow, in order.
var rolloutPhases = []int{1, 2, 3}

// IngestInput carries the audit identity of a scheduled ingestion run.
type IngestInput struct {
	UserID string `json:"user_id"`
}

// IngestResult summarizes one ingestion run.
type IngestResult struct {
	Scheduled int `json:"scheduled"`
	Completed int `json:"completed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	Ingested  int `json:"ingested"`
}

// DigestResult is the digest and the contradictions found for a period.
type DigestResult struct {
	DigestOutcome
	Contradictions int `json:"contradictions"`
}

// RolloutResult counts plans activated per phase.
type RolloutResult struct {
	Activated map[int]int64 `json:"activated"`
}

func activityContext(ctx workflow.Context, attempts int32) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2,
			MaximumAttempts:    attempts,
		},
	})
}

// IngestWorkflow schedules jobs for every auto-ingest source and runs them
// in parallel. A failed job is counted, not fatal.
func IngestWorkflow(ctx workflow.Context, in IngestInput) (IngestResult, error) {
	var a *Activities
	logger := workflow.GetLogger(ctx)

	var jobIDs []string
	if err := workflow.ExecuteActivity(activityContext(ctx, 3), a.ScheduleJobs, in.UserID).Get(ctx, &jobIDs); err != nil {
		return IngestResult{}, err
	}
	res := IngestResult{Scheduled: len(jobIDs)}

	// A fetch failure marks the job failed, so retries would only skip it.
	runCtx := activityContext(ctx, 1)
	futures := make([]workflow.Future, len(jobIDs))
	for i, id := range jobIDs {
		futures[i] = workflow.ExecuteActivity(runCtx, a.RunJob, id)
	}
	for i, f := range futures {
		var jr JobResult
		if err := f.Get(ctx, &jr); err != nil {
			logger.Warn("ingestion job failed", "job_id", jobIDs[i], "error", err)
			res.Failed++
			continue
		}
		if jr.Skipped {
			res.Skipped++
			continue
		}
		res.Completed++
		res.Ingested += jr.Ingested
	}
	logger.Info("ingestion run finished", "scheduled", res.Scheduled, "completed", res.Completed, "failed", res.Failed)
	return res, nil
}

// DigestWorkflow generates the period digest and runs contradiction
// detection over the period's papers in parallel.
func DigestWorkflow(ctx workflow.Context, in DigestInput) (DigestResult, error) {
	var a *Activities
	if in.At.IsZero() {
		in.At = workflow.Now(ctx).UTC()
	}
	actx := activityContext(ctx, 3)

	digestF := workflow.ExecuteActivity(actx, a.GenerateDigest, in)
	contraF := workflow.ExecuteActivity(actx, a.DetectPeriodContradictions, in)

	var res DigestResult
	if err := digestF.Get(ctx, &res.DigestOutcome); err != nil {
		return DigestResult{}, err
	}
	if err := contraF.Get(ctx, &res.Contradictions); err != nil {
		workflow.GetLogger(ctx).Warn("contradiction detection failed", "error", err)
	}
	return res, nil
}

// RolloutWorkflow activates the due plans of each rollout phase in order.
func RolloutWorkflow(ctx workflow.Context) (RolloutResult, error) {
	var a *Activities
	now := workflow.Now(ctx).UTC()
	actx := activityContext(ctx, 3)

	res := RolloutResult{Activated: make(map[int]int64, len(rolloutPhases))}
	for _, phase := range rolloutPhases {
		var n int64
		if err := workflow.ExecuteActivity(actx, a.ExecutePhase, phase, now).Get(ctx, &n); err != nil {
			return res, err
		}
		res.Activated[phase] = n
	}
	return res, nil
}

// OverdueWorkflow reports active pilots past their end date.
func OverdueWorkflow(ctx workflow.Context) ([]pilot.OverdueReport, error) {
	var a *Activities
	var reports []pilot.OverdueReport
	err := workflow.ExecuteActivity(activityContext(ctx, 3), a.CheckOverdue, workflow.Now(ctx).UTC()).Get(ctx, &reports)
	return reports, err
}
