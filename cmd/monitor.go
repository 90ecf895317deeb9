package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/evidence-cli/internal/monitoring"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Report ingestion, pilot and contradiction health",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		notify, _ := cmd.Flags().GetBool("notify")

		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		var (
			snap   *monitoring.MetricsSnapshot
			alerts []monitoring.Alert
		)
		if notify {
			snap, alerts = env.Monitoring.Check(ctx)
		} else {
			snap, alerts, err = env.Monitoring.Snapshot(ctx)
			if err != nil {
				return err
			}
		}
		if alerts == nil {
			alerts = []monitoring.Alert{}
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{"snapshot": snap, "alerts": alerts})
	},
}

func init() {
	monitorCmd.Flags().Bool("notify", false, "deliver triggered alerts to monitoring.webhook_url")
	rootCmd.AddCommand(monitorCmd)
}
