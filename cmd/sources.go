package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/evidence-cli/internal/catalog"
	"github.com/sells-group/evidence-cli/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := initEnv(cmd.Context(), "cli")
		if err != nil {
			return err
		}
		env.Close()
		zap.L().Info("schema migrated", zap.String("driver", cfg.Store.Driver))
		return nil
	},
}

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage the research source catalog",
}

var sourcesImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import sources from a YAML catalog",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		path, _ := cmd.Flags().GetString("file")
		if path == "" {
			path = cfg.Ingest.SourcesFile
		}

		sources, err := catalog.LoadSources(path)
		if err != nil {
			return err
		}
		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := catalog.ImportSources(ctx, env.Store, sources)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d sources from %s\n", n, path)
		return nil
	},
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog sources",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		sources, err := env.Store.ListSources(ctx, store.SourceFilter{})
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tFORMAT\tAPPROVED\tAUTO\tURL")
		for _, s := range sources {
			fmt.Fprintf(tw, "%s\t%s\t%t\t%t\t%s\n", s.Name, s.Format, s.Approved, s.AutoIngest, s.URL)
		}
		return tw.Flush()
	},
}

var prioritiesCmd = &cobra.Command{
	Use:   "priorities",
	Short: "Manage research priorities",
}

var prioritiesImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import research priorities from a YAML file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		path, _ := cmd.Flags().GetString("file")
		if path == "" {
			path = cfg.Ingest.PrioritiesFile
		}

		priorities, err := catalog.LoadPriorities(path)
		if err != nil {
			return err
		}
		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := catalog.ImportPriorities(ctx, env.Store, priorities)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d priorities from %s\n", n, path)
		return nil
	},
}

func init() {
	sourcesImportCmd.Flags().String("file", "", "sources YAML file (default ingest.sources_file)")
	prioritiesImportCmd.Flags().String("file", "", "priorities YAML file (default ingest.priorities_file)")

	sourcesCmd.AddCommand(sourcesImportCmd, sourcesListCmd)
	prioritiesCmd.AddCommand(prioritiesImportCmd)
	rootCmd.AddCommand(migrateCmd, sourcesCmd, prioritiesCmd)
}
