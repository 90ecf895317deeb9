package digest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/evidence-cli/internal/model"
)

func sampleDigest() *model.EvidenceDigest {
	return &model.EvidenceDigest{
		PeriodKey:             "2025-W11",
		PeriodStart:           time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		PeriodEnd:             time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC),
		Status:                model.DigestStatusPublished,
		HighConfidenceChanges: 1,
		PapersReviewed:        12,
		SynthesisCount:        3,
		MajorThemes:           []string{"graded", "activity"},
		Themes: []model.ThemeBucket{
			{Theme: "Adopt graded_activity <now>", Confidence: 88, SynthesisCount: 2},
		},
	}
}

func TestRenderMarkdown(t *testing.T) {
	out := RenderMarkdown(sampleDigest(), &model.DigestComparison{
		PreviousPeriod: "2025-W10",
		SynthesisDelta: 2,
		PapersDelta:    -1,
		NewThemes:      []string{"Adopt graded_activity <now>"},
	})

	assert.Contains(t, out, "# Evidence digest 2025-W11")
	assert.Contains(t, out, "2025-03-10 to 2025-03-16")
	assert.Contains(t, out, "| 12 | 3 | 1 | 0 |")
	assert.Contains(t, out, `1. Adopt graded\_activity &lt;now> (confidence 88, 2 syntheses)`)
	assert.Contains(t, out, "syntheses +2, papers -1")
	assert.Contains(t, out, "### New themes")
	assert.NotContains(t, out, "### Persistent themes")
}

func TestRenderMarkdown_Empty(t *testing.T) {
	d := sampleDigest()
	d.Themes = nil
	d.MajorThemes = nil
	out := RenderMarkdown(d, &model.DigestComparison{})
	assert.Contains(t, out, "No syntheses were published")
	assert.Contains(t, out, "No earlier published digest.")
	assert.NotContains(t, out, "Major themes")
}

func TestRenderHTML(t *testing.T) {
	out, err := RenderHTML(sampleDigest(), nil)
	require.NoError(t, err)
	assert.Contains(t, out, "<h1>Evidence digest 2025-W11</h1>")
	assert.Contains(t, out, "<table>")
	assert.Contains(t, out, "<strong>Major themes:</strong>")
	assert.Contains(t, out, "graded_activity &lt;now&gt;")
}
