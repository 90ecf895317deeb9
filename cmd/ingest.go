package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/evidence-cli/internal/model"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Schedule and run source ingestion jobs",
}

var ingestScheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Create pending jobs for approved auto-ingest sources",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		jobs, err := env.Scheduler.ScheduleJobs(ctx, userID)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), jobs)
	},
}

var ingestRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch and ingest one job, or every pending job",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		jobID, _ := cmd.Flags().GetString("job")

		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		if jobID == "" {
			n, err := env.Ingest.RunPending(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ran %d pending jobs\n", n)
			return nil
		}
		job, err := env.Ingest.RunJob(ctx, jobID)
		if err != nil {
			return err
		}
		if job == nil {
			return eris.Errorf("job %s could not be started", jobID)
		}
		return printJSON(cmd.OutOrStdout(), job)
	},
}

var ingestBatchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Ingest a JSON array of documents into a pending job",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		jobID, _ := cmd.Flags().GetString("job")
		path, _ := cmd.Flags().GetString("file")

		data, err := os.ReadFile(path)
		if err != nil {
			return eris.Wrapf(err, "read %s", path)
		}
		var docs []model.Document
		if err := json.Unmarshal(data, &docs); err != nil {
			return eris.Wrapf(err, "parse %s", path)
		}

		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		job, err := env.Ingest.IngestBatch(ctx, jobID, docs)
		if err != nil {
			return err
		}
		if job == nil {
			return eris.Errorf("job %s could not be started", jobID)
		}
		return printJSON(cmd.OutOrStdout(), job)
	},
}

func init() {
	ingestRunCmd.Flags().String("job", "", "job id (default: every pending job)")
	ingestBatchCmd.Flags().String("job", "", "pending job id")
	ingestBatchCmd.Flags().String("file", "", "JSON file with an array of documents")
	_ = ingestBatchCmd.MarkFlagRequired("job")
	_ = ingestBatchCmd.MarkFlagRequired("file")

	ingestCmd.AddCommand(ingestScheduleCmd, ingestRunCmd, ingestBatchCmd)
	rootCmd.AddCommand(ingestCmd)
}
