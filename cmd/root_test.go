package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func subcommandNames(c *cobra.Command) map[string]bool {
	names := make(map[string]bool)
	for _, sub := range c.Commands() {
		names[sub.Name()] = true
	}
	return names
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := subcommandNames(rootCmd)
	expected := []string{
		"migrate", "sources", "priorities", "ingest", "synthesize", "digest",
		"contradictions", "proposals", "pilots", "metrics", "attribution",
		"decisions", "learnings", "monitor", "serve", "worker",
	}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "evidence-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	require.NotNil(t, rootCmd.PersistentFlags().Lookup("user"))
}

func TestGroupSubcommands(t *testing.T) {
	tests := []struct {
		cmd  *cobra.Command
		want []string
	}{
		{ingestCmd, []string{"schedule", "run", "batch"}},
		{digestCmd, []string{"generate", "publish", "compare", "render"}},
		{contradictionsCmd, []string{"detect", "list", "resolve"}},
		{proposalsCmd, []string{"generate", "route", "approve", "reject"}},
		{pilotsCmd, []string{"define", "lock", "start", "end", "overdue"}},
		{decisionsCmd, []string{"evaluate", "record", "execute-phase", "execute-rollback", "learn"}},
		{attributionCmd, []string{"run", "finalize"}},
	}
	for _, tt := range tests {
		t.Run(tt.cmd.Name(), func(t *testing.T) {
			names := subcommandNames(tt.cmd)
			for _, name := range tt.want {
				assert.True(t, names[name], "expected %s %s", tt.cmd.Name(), name)
			}
		})
	}
}

func TestCommandFlags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag)
	assert.Equal(t, "0", flag.DefValue)

	flag = pilotsDefineCmd.Flags().Lookup("days")
	require.NotNil(t, flag)
	assert.Equal(t, "90", flag.DefValue)

	flag = pilotsEndCmd.Flags().Lookup("status")
	require.NotNil(t, flag)
	assert.Equal(t, "completed", flag.DefValue)

	flag = digestRenderCmd.Flags().Lookup("format")
	require.NotNil(t, flag)
	assert.Equal(t, "markdown", flag.DefValue)

	flag = learningsSearchCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "20", flag.DefValue)

	require.NotNil(t, workerCmd.Flags().Lookup("no-schedules"))
	require.NotNil(t, ingestBatchCmd.Flags().Lookup("job"))
}

func TestChangedFloat(t *testing.T) {
	c := &cobra.Command{Use: "lock"}
	c.Flags().Float64("acceptable", 0, "")
	c.Flags().Float64("failure", 0, "")
	require.NoError(t, c.ParseFlags([]string{"--acceptable", "0"}))

	v := changedFloat(c, "acceptable")
	require.NotNil(t, v)
	assert.Zero(t, *v)
	assert.Nil(t, changedFloat(c, "failure"))
}

const testSources = `
sources:
  - name: pubmed-back-pain
    url: https://pubmed.ncbi.nlm.nih.gov/rss/search/abc/
    approved: true
    auto_ingest: true
  - name: manual-review
    url: https://example.org/feed.xml
    approved: true
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCLI_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("EVIDENCE_STORE_DRIVER", "sqlite")
	t.Setenv("EVIDENCE_STORE_DATABASE_URL", filepath.Join(dir, "cli.db"))
	t.Setenv("EVIDENCE_LOG_LEVEL", "error")
	t.Setenv("EVIDENCE_ANTHROPIC_KEY", "")

	sourcesFile := filepath.Join(dir, "sources.yaml")
	require.NoError(t, os.WriteFile(sourcesFile, []byte(testSources), 0o600))

	_, err := execute(t, "migrate")
	require.NoError(t, err)

	out, err := execute(t, "sources", "import", "--file", sourcesFile)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 2 sources")

	out, err = execute(t, "sources", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "pubmed-back-pain")
	assert.Contains(t, out, "manual-review")

	out, err = execute(t, "--user", "scheduler", "ingest", "schedule")
	require.NoError(t, err)
	var jobs []struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, "pending", jobs[0].Status)

	out, err = execute(t, "digest", "generate", "--at", "2025-03-12")
	require.NoError(t, err)
	var d struct {
		PeriodKey string `json:"period_key"`
		Status    string `json:"status"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &d))
	assert.Equal(t, "2025-W11", d.PeriodKey)
	assert.Equal(t, "draft", d.Status)

	out, err = execute(t, "contradictions", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "PAPER A")

	_, err = execute(t, "proposals", "route", "missing")
	assert.Error(t, err)

	out, err = execute(t, "monitor")
	require.NoError(t, err)
	var health struct {
		Snapshot struct {
			JobsPending int `json:"jobs_pending"`
		} `json:"snapshot"`
		Alerts []json.RawMessage `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &health))
	assert.Equal(t, 1, health.Snapshot.JobsPending)
	assert.Empty(t, health.Alerts)

	_, err = execute(t, "synthesize", "graded", "activity")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key is required")
}
