package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/evidence-cli/internal/export"
	"github.com/sells-group/evidence-cli/internal/model"
)

var attributionCmd = &cobra.Command{
	Use:   "attribution",
	Short: "Attribute pilot outcomes to the evidence that motivated them",
}

var attributionRunCmd = &cobra.Command{
	Use:   "run [pilot-id]",
	Short: "Record a preliminary attribution for a pilot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		evidenceID, _ := cmd.Flags().GetString("evidence")
		sop, _ := cmd.Flags().GetString("sop")

		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		a, err := env.Attribution.AttributeOutcomes(ctx, args[0], evidenceID, sop, userID)
		if err != nil {
			return err
		}
		if a == nil {
			return eris.New("no attribution recorded (see log for the reason)")
		}
		return printJSON(cmd.OutOrStdout(), a)
	},
}

var attributionFinalizeCmd = &cobra.Command{
	Use:   "finalize [attribution-id]",
	Short: "Mark a preliminary attribution final",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		ok, err := env.Attribution.FinalizeAttribution(ctx, args[0], userID)
		return requireChange(ok, err, "finalize attribution")
	},
}

var decisionsCmd = &cobra.Command{
	Use:   "decisions",
	Short: "Evaluate, record and execute rollout decisions",
}

var decisionsEvaluateCmd = &cobra.Command{
	Use:   "evaluate [attribution-id]",
	Short: "Recommend rollout, hold or rollback for an attribution",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		rec, err := env.Decisions.EvaluatePilotOutcome(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), rec)
	},
}

var decisionsRecordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a decision and initialize its site plans",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		pilotID, _ := cmd.Flags().GetString("pilot")
		attributionID, _ := cmd.Flags().GetString("attribution")
		decision, _ := cmd.Flags().GetString("decision")
		rationale, _ := cmd.Flags().GetString("rationale")

		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		d, err := env.Decisions.RecordDecision(ctx, pilotID, attributionID, model.Decision(decision), userID, rationale)
		if err != nil {
			return err
		}
		if d == nil {
			return eris.New("decision not recorded (see log for the reason)")
		}

		var plans int
		switch d.Decision {
		case model.DecisionRollout:
			plans, err = env.Decisions.InitializeRollout(ctx, d.ID)
		case model.DecisionRollback:
			plans, err = env.Decisions.InitializeRollback(ctx, d.ID)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "initialized %d site plans\n", plans)
		return printJSON(cmd.OutOrStdout(), d)
	},
}

var decisionsExecutePhaseCmd = &cobra.Command{
	Use:   "execute-phase [phase]",
	Short: "Activate due rollout plans of a phase (1-3)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		phase, err := strconv.Atoi(args[0])
		if err != nil {
			return eris.Wrapf(err, "parse phase %q", args[0])
		}

		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := env.Decisions.ExecutePhaseRollout(ctx, phase, time.Now().UTC())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "activated %d plans in phase %d\n", n, phase)
		return nil
	},
}

var decisionsExecuteRollbackCmd = &cobra.Command{
	Use:   "execute-rollback [decision-id]",
	Short: "Activate every scheduled rollback plan of a decision",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := env.Decisions.ExecuteRollback(ctx, args[0], time.Now().UTC())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "activated %d rollback plans\n", n)
		return nil
	},
}

var decisionsLearnCmd = &cobra.Command{
	Use:   "learn [decision-id]",
	Short: "Store the learning record of a decision",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		var f model.Findings
		f.Summary, _ = cmd.Flags().GetString("summary")
		f.ImprovementPct, _ = cmd.Flags().GetFloat64("improvement")
		f.UnexpectedBenefits, _ = cmd.Flags().GetStringSlice("benefit")
		f.ImplementationBarriers, _ = cmd.Flags().GetStringSlice("barrier")
		f.ClinicSize, _ = cmd.Flags().GetString("clinic-size")
		f.StaffExperience, _ = cmd.Flags().GetString("staff-experience")

		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		l, stored, err := env.Decisions.StoreLearning(ctx, args[0], f, userID)
		if err := requireChange(stored, err, "store learning"); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), l)
	},
}

var learningsCmd = &cobra.Command{
	Use:   "learnings",
	Short: "Search the organization's learning records",
}

var learningsSearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search learning records by summary, lessons and context",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		limit, _ := cmd.Flags().GetInt("limit")
		out, _ := cmd.Flags().GetString("xlsx")
		var query string
		if len(args) == 1 {
			query = args[0]
		}

		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		records := env.Decisions.SearchLearnings(ctx, query, limit)
		if out == "" {
			return printJSON(cmd.OutOrStdout(), records)
		}
		f, err := os.Create(out)
		if err != nil {
			return eris.Wrapf(err, "create %s", out)
		}
		defer f.Close() //nolint:errcheck
		if err := export.WriteLearnings(f, records); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d learnings to %s\n", len(records), out)
		return nil
	},
}

func init() {
	attributionRunCmd.Flags().String("evidence", "", "synthesis or flag id the pilot tested")
	attributionRunCmd.Flags().String("sop", "", "SOP version in use during the pilot")

	decisionsRecordCmd.Flags().String("pilot", "", "pilot id")
	decisionsRecordCmd.Flags().String("attribution", "", "attribution id")
	decisionsRecordCmd.Flags().String("decision", "", "rollout, hold or rollback")
	decisionsRecordCmd.Flags().String("rationale", "", "decision rationale")
	_ = decisionsRecordCmd.MarkFlagRequired("pilot")
	_ = decisionsRecordCmd.MarkFlagRequired("attribution")
	_ = decisionsRecordCmd.MarkFlagRequired("decision")

	decisionsLearnCmd.Flags().String("summary", "", "summary of findings")
	decisionsLearnCmd.Flags().Float64("improvement", 0, "observed improvement in percent")
	decisionsLearnCmd.Flags().StringSlice("benefit", nil, "unexpected benefits")
	decisionsLearnCmd.Flags().StringSlice("barrier", nil, "implementation barriers")
	decisionsLearnCmd.Flags().String("clinic-size", "", "clinic size context")
	decisionsLearnCmd.Flags().String("staff-experience", "", "staff experience context")

	learningsSearchCmd.Flags().Int("limit", 20, "maximum records")
	learningsSearchCmd.Flags().String("xlsx", "", "write the results to this workbook instead of stdout")

	attributionCmd.AddCommand(attributionRunCmd, attributionFinalizeCmd)
	decisionsCmd.AddCommand(decisionsEvaluateCmd, decisionsRecordCmd, decisionsExecutePhaseCmd, decisionsExecuteRollbackCmd, decisionsLearnCmd)
	learningsCmd.AddCommand(learningsSearchCmd)
	rootCmd.AddCommand(attributionCmd, decisionsCmd, learningsCmd)
}
