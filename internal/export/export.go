// Package export writes digests and learning records as XLSX workbooks.
package export

import (
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/evidence-cli/internal/model"
)

// WriteDigest writes a digest workbook with Summary, Themes and Changes
// sheets. cmp may be nil.
func WriteDigest(w io.Writer, d *model.EvidenceDigest, cmp *model.DigestComparison) error {
	f, err := DigestWorkbook(d, cmp)
	if err != nil {
		return err
	}
	return eris.Wrap(f.Write(w), "export: write digest workbook")
}

// DigestWorkbook builds the digest workbook in memory.
func DigestWorkbook(d *model.EvidenceDigest, cmp *model.DigestComparison) (*xlsx.File, error) {
	f := xlsx.NewFile()

	summary, err := f.AddSheet("Summary")
	if err != nil {
		return nil, eris.Wrap(err, "export: add summary sheet")
	}
	addPair(summary, "Period", d.PeriodKey)
	addPair(summary, "Period start", formatTime(d.PeriodStart))
	addPair(summary, "Period end", formatTime(d.PeriodEnd))
	addPair(summary, "Status", string(d.Status))
	addNumber(summary, "Syntheses", float64(d.SynthesisCount))
	addNumber(summary, "Papers reviewed", float64(d.PapersReviewed))
	addNumber(summary, "High confidence changes", float64(d.HighConfidenceChanges))
	addNumber(summary, "Moderate confidence changes", float64(d.ModerateConfidenceChanges))
	addPair(summary, "Major themes", strings.Join(d.MajorThemes, ", "))
	if d.PublishedAt != nil {
		addPair(summary, "Published", formatTime(*d.PublishedAt))
		addPair(summary, "Published by", d.PublishedBy)
	}

	themes, err := f.AddSheet("Themes")
	if err != nil {
		return nil, eris.Wrap(err, "export: add themes sheet")
	}
	addHeader(themes, "Theme", "Confidence", "Syntheses", "Weighted score")
	for _, b := range d.Themes {
		row := themes.AddRow()
		row.AddCell().SetString(b.Theme)
		row.AddCell().SetFloat(b.Confidence)
		row.AddCell().SetInt(b.SynthesisCount)
		row.AddCell().SetFloat(b.WeightedScore)
	}

	if cmp != nil {
		changes, err := f.AddSheet("Changes")
		if err != nil {
			return nil, eris.Wrap(err, "export: add changes sheet")
		}
		addPair(changes, "Previous period", cmp.PreviousPeriod)
		addNumber(changes, "Synthesis delta", float64(cmp.SynthesisDelta))
		addNumber(changes, "Papers delta", float64(cmp.PapersDelta))
		addNumber(changes, "High confidence delta", float64(cmp.HighDelta))
		addNumber(changes, "Moderate confidence delta", float64(cmp.ModerateDelta))
		for _, theme := range cmp.NewThemes {
			addPair(changes, "New theme", theme)
		}
		for _, theme := range cmp.PersistentThemes {
			addPair(changes, "Persistent theme", theme)
		}
	}
	return f, nil
}

// WriteLearnings writes one row per learning record.
func WriteLearnings(w io.Writer, records []model.LearningRecord) error {
	f, err := LearningsWorkbook(records)
	if err != nil {
		return err
	}
	return eris.Wrap(f.Write(w), "export: write learnings workbook")
}

// LearningsWorkbook builds the learnings workbook in memory.
func LearningsWorkbook(records []model.LearningRecord) (*xlsx.File, error) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Learnings")
	if err != nil {
		return nil, eris.Wrap(err, "export: add learnings sheet")
	}
	addHeader(sheet, "Decision ID", "Decision", "Summary", "Improvement %", "Lessons", "Contexts", "Recorded by", "Recorded at")
	for _, l := range records {
		row := sheet.AddRow()
		row.AddCell().SetString(l.DecisionID)
		row.AddCell().SetString(string(l.Decision))
		row.AddCell().SetString(l.Findings.Summary)
		row.AddCell().SetFloat(l.Findings.ImprovementPct)
		row.AddCell().SetString(strings.Join(l.Lessons, "\n"))
		row.AddCell().SetString(strings.Join(l.Contexts, ", "))
		row.AddCell().SetString(l.CreatedBy)
		row.AddCell().SetString(formatTime(l.CreatedAt))
	}
	return f, nil
}

func addHeader(sheet *xlsx.Sheet, names ...string) {
	row := sheet.AddRow()
	for _, n := range names {
		row.AddCell().SetString(n)
	}
}

func addPair(sheet *xlsx.Sheet, label, value string) {
	row := sheet.AddRow()
	row.AddCell().SetString(label)
	row.AddCell().SetString(value)
}

func addNumber(sheet *xlsx.Sheet, label string, value float64) {
	row := sheet.AddRow()
	row.AddCell().SetString(label)
	row.AddCell().SetFloat(value)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
