package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/evidence-cli/internal/model"
	"github.com/sells-group/evidence-cli/internal/store"
)

const sourcesYAML = `
sources:
  - name: pubmed-back-pain
    url: https://pubmed.ncbi.nlm.nih.gov/rss/search/abc/?limit=50
    approved: true
    auto_ingest: true
  - name: crossref-occupational
    url: https://api.crossref.org/works.json
    format: JSON
    approved: true
`

const prioritiesYAML = `
priorities:
  - name: low back pain
    category: condition
    keywords: [low back pain, lumbar, " "]
  - name: days_to_rtw
    category: Metric
    keywords: [return to work, rtw]
  - name: carpal tunnel
    category: condition
    active: false
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadSources(t *testing.T) {
	srcs, err := LoadSources(writeFile(t, "sources.yaml", sourcesYAML))
	require.NoError(t, err)
	require.Len(t, srcs, 2)

	assert.Equal(t, "pubmed-back-pain", srcs[0].Name)
	assert.Equal(t, model.SourceFormatRSS, srcs[0].Format)
	assert.True(t, srcs[0].AutoIngest)
	assert.Equal(t, model.SourceFormatJSON, srcs[1].Format)
	assert.False(t, srcs[1].AutoIngest)
}

func TestParseSources_Invalid(t *testing.T) {
	tests := map[string]string{
		"no name":   "sources:\n  - url: https://x\n",
		"no url":    "sources:\n  - name: a\n",
		"duplicate": "sources:\n  - {name: a, url: u}\n  - {name: a, url: v}\n",
		"format":    "sources:\n  - {name: a, url: u, format: pdf}\n",
		"yaml":      "sources: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSources([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadSources_MissingFile(t *testing.T) {
	_, err := LoadSources(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParsePriorities(t *testing.T) {
	ps, err := ParsePriorities([]byte(prioritiesYAML))
	require.NoError(t, err)
	require.Len(t, ps, 3)

	assert.Equal(t, []string{"low back pain", "lumbar"}, ps[0].Keywords)
	assert.True(t, ps[0].Active)
	assert.Equal(t, model.PriorityCategoryMetric, ps[1].Category)
	assert.Equal(t, []string{"carpal tunnel"}, ps[2].Keywords)
	assert.False(t, ps[2].Active)
}

func TestParsePriorities_UnknownCategory(t *testing.T) {
	_, err := ParsePriorities([]byte("priorities:\n  - {name: x, category: cost}\n"))
	assert.Error(t, err)
}

func TestImport(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	srcs, err := ParseSources([]byte(sourcesYAML))
	require.NoError(t, err)
	n, err := ImportSources(ctx, st, srcs)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Re-importing updates in place.
	srcs, err = ParseSources([]byte(sourcesYAML))
	require.NoError(t, err)
	_, err = ImportSources(ctx, st, srcs)
	require.NoError(t, err)
	all, err := st.ListSources(ctx, store.SourceFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	ps, err := ParsePriorities([]byte(prioritiesYAML))
	require.NoError(t, err)
	_, err = ImportPriorities(ctx, st, ps)
	require.NoError(t, err)
	active, err := st.ListActivePriorities(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 2)
}
