package digest

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/sells-group/evidence-cli/internal/model"
)

var md = goldmark.New(goldmark.WithExtensions(extension.Table))

// RenderMarkdown formats a digest for distribution. cmp may be nil.
func RenderMarkdown(d *model.EvidenceDigest, cmp *model.DigestComparison) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Evidence digest %s\n\n", d.PeriodKey)
	fmt.Fprintf(&b, "%s to %s, status %s.\n\n",
		d.PeriodStart.Format("2006-01-02"), d.PeriodEnd.AddDate(0, 0, -1).Format("2006-01-02"), d.Status)

	b.WriteString("| Papers reviewed | Syntheses | High confidence | Moderate confidence |\n")
	b.WriteString("| --- | --- | --- | --- |\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d |\n\n",
		d.PapersReviewed, d.SynthesisCount, d.HighConfidenceChanges, d.ModerateConfidenceChanges)

	if len(d.MajorThemes) > 0 {
		fmt.Fprintf(&b, "**Major themes:** %s\n\n", strings.Join(d.MajorThemes, ", "))
	}

	b.WriteString("## Themes\n\n")
	if len(d.Themes) == 0 {
		b.WriteString("No syntheses were published in this period.\n\n")
	}
	for i, t := range d.Themes {
		fmt.Fprintf(&b, "%d. %s (confidence %.0f, %d %s)\n",
			i+1, escapeMarkdown(t.Theme), t.Confidence, t.SynthesisCount, plural(t.SynthesisCount, "synthesis", "syntheses"))
	}
	if len(d.Themes) > 0 {
		b.WriteString("\n")
	}

	if cmp != nil {
		b.WriteString("## Changes\n\n")
		if cmp.PreviousPeriod == "" {
			b.WriteString("No earlier published digest.\n\n")
		} else {
			fmt.Fprintf(&b, "Compared with %s: syntheses %+d, papers %+d, high confidence %+d, moderate confidence %+d.\n\n",
				cmp.PreviousPeriod, cmp.SynthesisDelta, cmp.PapersDelta, cmp.HighDelta, cmp.ModerateDelta)
		}
		writeList(&b, "New themes", cmp.NewThemes)
		writeList(&b, "Persistent themes", cmp.PersistentThemes)
	}
	return b.String()
}

// RenderHTML converts the markdown rendering of a digest to HTML.
func RenderHTML(d *model.EvidenceDigest, cmp *model.DigestComparison) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(RenderMarkdown(d, cmp)), &buf); err != nil {
		return "", eris.Wrap(err, "digest: render html")
	}
	return buf.String(), nil
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "### %s\n\n", title)
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", escapeMarkdown(it))
	}
	b.WriteString("\n")
}

var markdownEscaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "_", `\_`, "`", "\\`", "|", `\|`, "<", "&lt;")

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
