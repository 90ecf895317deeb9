package workflow

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/sells-group/evidence-cli/internal/config"
)

// Register adds every workflow and the activities to a worker.
func Register(w worker.Registry, acts *Activities) {
	w.RegisterWorkflow(IngestWorkflow)
	w.RegisterWorkflow(DigestWorkflow)
	w.RegisterWorkflow(RolloutWorkflow)
	w.RegisterWorkflow(OverdueWorkflow)
	w.RegisterActivity(acts)
}

// Schedules builds one cron schedule per workflow. Workflows with an empty
// cron expression are left out.
func Schedules(cfg config.TemporalConfig) []client.ScheduleOptions {
	entries := []struct {
		id   string
		cron string
		fn   any
		args []any
	}{
		{"evidence-ingest", cfg.IngestCron, IngestWorkflow, []any{IngestInput{UserID: cfg.SystemUserID}}},
		{"evidence-digest", cfg.DigestCron, DigestWorkflow, []any{DigestInput{UserID: cfg.SystemUserID}}},
		{"evidence-rollout", cfg.RolloutCron, RolloutWorkflow, nil},
		{"evidence-overdue", cfg.OverdueCron, OverdueWorkflow, nil},
	}

	var out []client.ScheduleOptions
	for _, e := range entries {
		if e.cron == "" {
			continue
		}
		out = append(out, client.ScheduleOptions{
			ID:   e.id,
			Spec: client.ScheduleSpec{CronExpressions: []string{e.cron}},
			Action: &client.ScheduleWorkflowAction{
				ID:        e.id + "-run",
				Workflow:  e.fn,
				Args:      e.args,
				TaskQueue: cfg.TaskQueue,
			},
		})
	}
	return out
}

// EnsureSchedules creates the cron schedules, leaving existing ones alone.
func EnsureSchedules(ctx context.Context, c client.Client, cfg config.TemporalConfig) error {
	for _, opts := range Schedules(cfg) {
		_, err := c.ScheduleClient().Create(ctx, opts)
		if errors.Is(err, temporal.ErrScheduleAlreadyRunning) {
			zap.L().Debug("schedule already exists", zap.String("schedule_id", opts.ID))
			continue
		}
		if err != nil {
			return eris.Wrapf(err, "workflow: create schedule %s", opts.ID)
		}
		zap.L().Info("schedule created", zap.String("schedule_id", opts.ID))
	}
	return nil
}
