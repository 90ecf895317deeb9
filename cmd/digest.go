package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/evidence-cli/internal/digest"
	"github.com/sells-group/evidence-cli/internal/export"
)

var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Generate, publish and render evidence digests",
}

var digestGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate the digest of the period containing --at",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
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

		d, created, err := env.Digests.GenerateDigest(ctx, at, userID)
		if err != nil {
			return err
		}
		if !created {
			fmt.Fprintf(cmd.ErrOrStderr(), "digest for %s already exists\n", d.PeriodKey)
		}
		return printJSON(cmd.OutOrStdout(), d)
	},
}

var digestPublishCmd = &cobra.Command{
	Use:   "publish [digest-id]",
	Short: "Publish a draft digest and raise its evidence flags",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		ok, flags, err := env.Digests.PublishDigest(ctx, args[0], userID)
		if err := requireChange(ok, err, "publish digest"); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), flags)
	},
}

var digestCompareCmd = &cobra.Command{
	Use:   "compare [digest-id]",
	Short: "Compare a digest with the previous period",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		cmp, err := env.Digests.ChangeComparison(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), cmp)
	},
}

var digestRenderCmd = &cobra.Command{
	Use:   "render [digest-id]",
	Short: "Render a digest as Markdown, HTML or an xlsx workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		format, _ := cmd.Flags().GetString("format")
		out, _ := cmd.Flags().GetString("out")

		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		d, err := env.Store.GetDigest(ctx, args[0])
		if err != nil {
			return err
		}
		cmp, err := env.Digests.ChangeComparison(ctx, d.ID)
		if err != nil {
			return err
		}

		var w io.Writer = cmd.OutOrStdout()
		if out != "" {
			f, err := os.Create(out)
			if err != nil {
				return eris.Wrapf(err, "create %s", out)
			}
			defer f.Close() //nolint:errcheck
			w = f
		}

		switch format {
		case "markdown":
			_, err = io.WriteString(w, digest.RenderMarkdown(d, cmp))
		case "html":
			var html string
			html, err = digest.RenderHTML(d, cmp)
			if err == nil {
				_, err = io.WriteString(w, html)
			}
		case "xlsx":
			if out == "" {
				return eris.New("--out is required for xlsx")
			}
			err = export.WriteDigest(w, d, cmp)
		default:
			return eris.Errorf("unknown format %q", format)
		}
		return err
	},
}

func init() {
	digestGenerateCmd.Flags().String("at", "", "date inside the period, YYYY-MM-DD (default today)")
	digestRenderCmd.Flags().String("format", "markdown", "markdown, html or xlsx")
	digestRenderCmd.Flags().String("out", "", "output file (default stdout)")

	digestCmd.AddCommand(digestGenerateCmd, digestPublishCmd, digestCompareCmd, digestRenderCmd)
	rootCmd.AddCommand(digestCmd)
}
