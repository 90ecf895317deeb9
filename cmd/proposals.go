package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var proposalsCmd = &cobra.Command{
	Use:   "proposals",
	Short: "Translate evidence flags into practice-change proposals",
}

var proposalsGenerateCmd = &cobra.Command{
	Use:   "generate [flag-id]",
	Short: "Build a proposal from an actionable evidence flag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		p, err := env.Proposals.GenerateFromFlag(ctx, args[0], userID)
		if err != nil {
			return err
		}
		if p == nil {
			return eris.Errorf("flag %s was already processed", args[0])
		}
		return printJSON(cmd.OutOrStdout(), p)
	},
}

var proposalsRouteCmd = &cobra.Command{
	Use:   "route [proposal-id]",
	Short: "Route a generated proposal to the CCO for review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		ok, err := env.Proposals.RouteToCCO(ctx, args[0], userID)
		return requireChange(ok, err, "route proposal")
	},
}

var proposalsApproveCmd = &cobra.Command{
	Use:   "approve [proposal-id]",
	Short: "Approve a proposal under review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewProposal(cmd, args[0], true)
	},
}

var proposalsRejectCmd = &cobra.Command{
	Use:   "reject [proposal-id]",
	Short: "Reject a proposal under review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewProposal(cmd, args[0], false)
	},
}

func reviewProposal(cmd *cobra.Command, id string, approve bool) error {
	ctx := cmd.Context()
	rationale, _ := cmd.Flags().GetString("rationale")

	env, err := initEnv(ctx, "cli")
	if err != nil {
		return err
	}
	defer env.Close()

	if approve {
		ok, err := env.Proposals.Approve(ctx, id, userID, rationale)
		return requireChange(ok, err, "approve proposal")
	}
	ok, err := env.Proposals.Reject(ctx, id, userID, rationale)
	return requireChange(ok, err, "reject proposal")
}

func init() {
	proposalsApproveCmd.Flags().String("rationale", "", "review rationale")
	proposalsRejectCmd.Flags().String("rationale", "", "review rationale")

	proposalsCmd.AddCommand(proposalsGenerateCmd, proposalsRouteCmd, proposalsApproveCmd, proposalsRejectCmd)
	rootCmd.AddCommand(proposalsCmd)
}
