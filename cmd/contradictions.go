package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/evidence-cli/internal/model"
)

var contradictionsCmd = &cobra.Command{
	Use:   "contradictions",
	Short: "Detect and resolve contradicting papers",
}

var contradictionsDetectCmd = &cobra.Command{
	Use:   "detect [paper-id...]",
	Short: "Compare papers pairwise and record new contradictions",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		found, err := env.Contradictions.DetectContradictions(ctx, args, userID)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), found)
	},
}

var contradictionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List unresolved contradictions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tPAPER A\tPAPER B\tSTATUS\tDETECTED")
		for _, c := range env.Contradictions.ListUnresolved(ctx) {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", c.ID, c.PaperAID, c.PaperBID, c.Status, c.CreatedAt.Format("2006-01-02"))
		}
		return tw.Flush()
	},
}

var contradictionsResolveCmd = &cobra.Command{
	Use:   "resolve [contradiction-id]",
	Short: "Set the resolution status of a contradiction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		status, _ := cmd.Flags().GetString("status")
		notes, _ := cmd.Flags().GetString("notes")

		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		ok, err := env.Contradictions.UpdateContradictionStatus(ctx, args[0], model.ContradictionStatus(status), notes, userID)
		return requireChange(ok, err, "resolve contradiction")
	},
}

func init() {
	contradictionsResolveCmd.Flags().String("status", string(model.ContradictionInvestigating), "investigating or resolved_favor_a|resolved_favor_b|resolved_both_valid|resolved_both_invalid")
	contradictionsResolveCmd.Flags().String("notes", "", "resolution notes")

	contradictionsCmd.AddCommand(contradictionsDetectCmd, contradictionsListCmd, contradictionsResolveCmd)
	rootCmd.AddCommand(contradictionsCmd)
}
