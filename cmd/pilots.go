package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/evidence-cli/internal/model"
	"github.com/sells-group/evidence-cli/internal/pilot"
)

var pilotsCmd = &cobra.Command{
	Use:   "pilots",
	Short: "Define, lock, start and end practice pilots",
}

var pilotsDefineCmd = &cobra.Command{
	Use:   "define",
	Short: "Define a pilot for an approved proposal and capture baselines",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		proposalID, _ := cmd.Flags().GetString("proposal")
		sites, _ := cmd.Flags().GetStringSlice("sites")
		days, _ := cmd.Flags().GetInt("days")

		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		p, err := env.Pilots.DefinePilot(ctx, proposalID, sites, days, userID)
		if err != nil {
			return err
		}
		if p == nil {
			return eris.New("pilot not defined (see log for the reason)")
		}
		return printJSON(cmd.OutOrStdout(), p)
	},
}

var pilotsLockCmd = &cobra.Command{
	Use:   "lock [pilot-id]",
	Short: "Pre-register the pilot's success metrics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		var req pilot.LockRequest
		req.PrimaryOutcome, _ = cmd.Flags().GetString("primary")
		req.SuccessThreshold = changedFloat(cmd, "success")
		req.AcceptableThreshold = changedFloat(cmd, "acceptable")
		req.FailureThreshold = changedFloat(cmd, "failure")
		req.SecondaryOutcomes, _ = cmd.Flags().GetStringSlice("secondary")
		req.MonitoringCadence, _ = cmd.Flags().GetString("cadence")

		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		ok, err := env.Pilots.LockSuccessMetrics(ctx, args[0], req, userID)
		return requireChange(ok, err, "lock metrics")
	},
}

var pilotsStartCmd = &cobra.Command{
	Use:   "start [pilot-id]",
	Short: "Activate a pilot with locked metrics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		ok, err := env.Pilots.StartPilot(ctx, args[0], userID)
		return requireChange(ok, err, "start pilot")
	},
}

var pilotsEndCmd = &cobra.Command{
	Use:   "end [pilot-id]",
	Short: "Close an active pilot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		status, _ := cmd.Flags().GetString("status")

		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		ok, err := env.Pilots.EndPilot(ctx, args[0], model.PilotStatus(status), userID)
		return requireChange(ok, err, "end pilot")
	},
}

var pilotsOverdueCmd = &cobra.Command{
	Use:   "overdue",
	Short: "List active pilots past their end date",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		reports, err := env.Pilots.CheckPilotCompletion(ctx, time.Now().UTC())
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PILOT\tPROPOSAL\tEND\tDAYS OVERDUE\tSITES")
		for _, r := range reports {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", r.PilotID, r.ProposalID, r.EndDate.Format(time.DateOnly), r.DaysOverdue, strings.Join(r.SiteIDs, ","))
		}
		return tw.Flush()
	},
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Record site outcome observations",
}

var metricsRecordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record one metric observation for a site",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		site, _ := cmd.Flags().GetString("site")
		metric, _ := cmd.Flags().GetString("metric")
		value, _ := cmd.Flags().GetFloat64("value")
		at := time.Now().UTC()
		if raw, _ := cmd.Flags().GetString("at"); raw != "" {
			t, err := time.Parse(time.DateOnly, raw)
			if err != nil {
				return eris.Wrap(err, "parse --at")
			}
			at = t
		}

		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		obs, err := env.Metrics.Record(ctx, site, metric, value, at)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), obs)
	},
}

func init() {
	pilotsDefineCmd.Flags().String("proposal", "", "approved proposal id")
	pilotsDefineCmd.Flags().StringSlice("sites", nil, "site ids")
	pilotsDefineCmd.Flags().Int("days", 90, "pilot duration in days")
	_ = pilotsDefineCmd.MarkFlagRequired("proposal")
	_ = pilotsDefineCmd.MarkFlagRequired("sites")

	pilotsLockCmd.Flags().String("primary", model.MetricDaysToRTW, "primary outcome metric")
	pilotsLockCmd.Flags().Float64("success", 0, "success threshold in percent (default 15)")
	pilotsLockCmd.Flags().Float64("acceptable", 0, "acceptable threshold in percent (default 5)")
	pilotsLockCmd.Flags().Float64("failure", 0, "failure threshold in percent (default -5)")
	pilotsLockCmd.Flags().StringSlice("secondary", nil, "secondary outcome metrics")
	pilotsLockCmd.Flags().String("cadence", "weekly", "monitoring cadence")

	pilotsEndCmd.Flags().String("status", string(model.PilotStatusCompleted), "completed or rolled_back")

	metricsRecordCmd.Flags().String("site", "", "site id")
	metricsRecordCmd.Flags().String("metric", "", "metric name")
	metricsRecordCmd.Flags().Float64("value", 0, "observed value")
	metricsRecordCmd.Flags().String("at", "", "observation date, YYYY-MM-DD (default today)")
	_ = metricsRecordCmd.MarkFlagRequired("site")
	_ = metricsRecordCmd.MarkFlagRequired("metric")

	pilotsCmd.AddCommand(pilotsDefineCmd, pilotsLockCmd, pilotsStartCmd, pilotsEndCmd, pilotsOverdueCmd)
	metricsCmd.AddCommand(metricsRecordCmd)
	rootCmd.AddCommand(pilotsCmd, metricsCmd)
}

// changedFloat returns the flag's value only when it was set explicitly.
func changedFloat(cmd *cobra.Command, name string) *float64 {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetFloat64(name)
	return &v
}
