package main

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var synthesizeCmd = &cobra.Command{
	Use:   "synthesize [query]",
	Short: "Synthesize the ingested evidence for a clinical question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "generate")
		if err != nil {
			return err
		}
		defer env.Close()

		s, err := env.Synthesis.Synthesize(ctx, strings.Join(args, " "), userID)
		if err != nil {
			return err
		}
		if s == nil {
			return eris.New("no synthesis produced (see log for the reason)")
		}
		return printJSON(cmd.OutOrStdout(), s)
	},
}

func init() {
	rootCmd.AddCommand(synthesizeCmd)
}
