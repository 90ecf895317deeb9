package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/sells-group/evidence-cli/internal/workflow"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the Temporal worker and keep the recurring schedules in place",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		skipSchedules, _ := cmd.Flags().GetBool("no-schedules")

		env, err := initEnv(ctx, "worker")
		if err != nil {
			return err
		}
		defer env.Close()

		c, err := client.Dial(client.Options{
			HostPort:  cfg.Temporal.HostPort,
			Namespace: cfg.Temporal.Namespace,
		})
		if err != nil {
			return eris.Wrap(err, "temporal: dial")
		}
		defer c.Close()

		if !skipSchedules {
			if err := workflow.EnsureSchedules(ctx, c, cfg.Temporal); err != nil {
				return err
			}
		}

		w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})
		workflow.Register(w, &workflow.Activities{
			Scheduler:      env.Scheduler,
			Ingest:         env.Ingest,
			Digests:        env.Digests,
			Contradictions: env.Contradictions,
			Papers:         env.Store,
			Decisions:      env.Decisions,
			Pilots:         env.Pilots,
			Period:         cfg.Digest.Period,
		})

		zap.L().Info("temporal worker starting",
			zap.String("host_port", cfg.Temporal.HostPort),
			zap.String("task_queue", cfg.Temporal.TaskQueue),
		)
		if err := w.Run(worker.InterruptCh()); err != nil {
			return eris.Wrap(err, "temporal: worker")
		}
		return nil
	},
}

func init() {
	workerCmd.Flags().Bool("no-schedules", false, "do not create the recurring schedules")
	rootCmd.AddCommand(workerCmd)
}
