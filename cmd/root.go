package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/evidence-cli/internal/config"
	"github.com/sells-group/evidence-cli/pkg/anthropic"
)

var (
	cfg    *config.Config
	userID string
)

var rootCmd = &cobra.Command{
	Use:   "evidence-cli",
	Short: "Evidence-to-practice pipeline",
	Long:  "Ingests research feeds, synthesizes evidence, publishes digests and carries approved practice changes through pilots, attribution and rollout.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		for model, p := range cfg.Pricing.Anthropic {
			anthropic.RegisterPricing(model, p.Input, p.Output)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&userID, "user", os.Getenv("USER"), "user id recorded on every change")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
