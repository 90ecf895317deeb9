package textgen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseStructured_AllSections(t *testing.T) {
	reply := `RECOMMENDATION: Adopt early active physiotherapy for acute low back pain.
CONFIDENCE SCORE: 85/100
RATIONALE:
Three RCTs show faster return to work.
Effects persist at 12 weeks.
IDENTIFIED RISKS:
- Staff training time
- Patient adherence
CONSENSUS: strong`

	got := ParseStructured(reply)
	assert.True(t, got.Parsed)
	assert.Equal(t, "Adopt early active physiotherapy for acute low back pain.", got.Recommendation)
	assert.Equal(t, 85.0, got.ConfidenceScore)
	assert.Equal(t, "Three RCTs show faster return to work. Effects persist at 12 weeks.", got.Rationale)
	assert.Equal(t, []string{"Staff training time", "Patient adherence"}, got.Risks)
	assert.Equal(t, "strong", got.Consensus)
}

func TestParseStructured_MarkdownLabels(t *testing.T) {
	reply := "## Recommendation\nUse graded activity.\n**Confidence Score:** 0.72\n**Identified Risks:**\n1. None"

	got := ParseStructured(reply)
	assert.True(t, got.Parsed)
	assert.Equal(t, "Use graded activity.", got.Recommendation)
	assert.InDelta(t, 72.0, got.ConfidenceScore, 0.001)
	assert.Empty(t, got.Risks)
}

func TestParseStructured_LabelWordsInBodyIgnored(t *testing.T) {
	reply := "RECOMMENDATION: Screen for yellow flags.\nRATIONALE: Recommendation is consistent with guidelines."

	got := ParseStructured(reply)
	assert.Equal(t, "Screen for yellow flags.", got.Recommendation)
	assert.Equal(t, "Recommendation is consistent with guidelines.", got.Rationale)
}

func TestParseStructured_FallbackTruncates(t *testing.T) {
	raw := strings.Repeat("é", 600)

	got := ParseStructured(raw)
	assert.False(t, got.Parsed)
	assert.Equal(t, 500, len([]rune(got.Recommendation)))
	assert.Zero(t, got.ConfidenceScore)
}

func TestParseStructured_ShortFallbackKeepsText(t *testing.T) {
	got := ParseStructured("  I cannot answer that.  ")
	assert.False(t, got.Parsed)
	assert.Equal(t, "I cannot answer that.", got.Recommendation)
}

func TestParseScore(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"85", 85},
		{"85/100", 85},
		{"about 70%", 70},
		{"0.9", 90},
		{"150", 100},
		{"high", 0},
		{"", 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, parseScore(tt.in), 0.001, tt.in)
	}
}
