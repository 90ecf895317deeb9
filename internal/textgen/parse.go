package textgen

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// fallbackRunes bounds the recommendation when a reply has no labeled sections.
const fallbackRunes = 500

// Structured is a labeled-section reply.
type Structured struct {
	Recommendation  string
	ConfidenceScore float64
	Rationale       string
	Risks           []string
	Consensus       string
	// Parsed is false when the reply fell back to truncation.
	Parsed bool
}

type section int

const (
	sectionNone section = iota
	sectionRecommendation
	sectionConfidence
	sectionRationale
	sectionRisks
	sectionConsensus
)

var sectionLabels = []struct {
	label string
	sec   section
}{
	{"RECOMMENDATION", sectionRecommendation},
	{"CONFIDENCE SCORE", sectionConfidence},
	{"CONFIDENCE", sectionConfidence},
	{"RATIONALE", sectionRationale},
	{"IDENTIFIED RISKS", sectionRisks},
	{"RISKS", sectionRisks},
	{"CONSENSUS LEVEL", sectionConsensus},
	{"CONSENSUS", sectionConsensus},
}

// matchLabel reports the section a line opens and the text following the
// label on the same line.
func matchLabel(line string) (section, string, bool) {
	trimmed := strings.TrimSpace(strings.Trim(strings.TrimSpace(line), "#*"))
	upper := strings.ToUpper(trimmed)
	for _, l := range sectionLabels {
		if !strings.HasPrefix(upper, l.label) {
			continue
		}
		rest := strings.TrimSpace(trimmed[len(l.label):])
		rest = strings.TrimLeft(rest, "*")
		if rest != "" && rest[0] != ':' && rest[0] != '-' {
			continue
		}
		rest = strings.TrimSpace(strings.TrimLeft(rest, ":-*"))
		return l.sec, rest, true
	}
	return sectionNone, "", false
}

// ParseStructured reads RECOMMENDATION / CONFIDENCE SCORE / RATIONALE /
// IDENTIFIED RISKS sections line by line. A reply without a recommendation
// section falls back to the truncated raw text. It never fails.
func ParseStructured(text string) Structured {
	var (
		out     Structured
		current = sectionNone
		buf     = map[section][]string{}
	)

	for _, line := range strings.Split(text, "\n") {
		if sec, rest, ok := matchLabel(line); ok {
			current = sec
			if rest != "" {
				buf[sec] = append(buf[sec], rest)
			}
			continue
		}
		if current == sectionNone {
			continue
		}
		if l := strings.TrimSpace(line); l != "" {
			buf[current] = append(buf[current], l)
		}
	}

	rec := strings.Join(buf[sectionRecommendation], " ")
	if rec == "" {
		out.Recommendation = truncateRunes(strings.TrimSpace(text), fallbackRunes)
		return out
	}

	out.Parsed = true
	out.Recommendation = rec
	out.Rationale = strings.Join(buf[sectionRationale], " ")
	out.Consensus = strings.Join(buf[sectionConsensus], " ")
	out.ConfidenceScore = parseScore(strings.Join(buf[sectionConfidence], " "))
	for _, r := range buf[sectionRisks] {
		r = strings.TrimSpace(strings.TrimLeft(r, "-*•0123456789.) "))
		if r != "" && !strings.EqualFold(r, "none") {
			out.Risks = append(out.Risks, r)
		}
	}
	return out
}

// parseScore extracts the first number in s, clamped to 0..100. Fractions
// of one are read as percentages.
func parseScore(s string) float64 {
	start, end := -1, len(s)
	for i, r := range s {
		isNum := (r >= '0' && r <= '9') || r == '.'
		if isNum && start < 0 {
			start = i
		} else if !isNum && start >= 0 {
			end = i
			break
		}
	}
	if start < 0 {
		return 0
	}
	num := strings.TrimRight(s[start:end], ".")
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if v > 0 && v <= 1 && strings.Contains(num, ".") {
		v *= 100
	}
	return min(max(v, 0), 100)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
