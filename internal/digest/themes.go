package digest

import (
	"sort"
	"strings"

	"github.com/sells-group/evidence-cli/internal/model"
	"github.com/sells-group/evidence-cli/internal/rules"
)

// Confidence bands.
const (
	HighConfidence     = 80
	ModerateConfidence = 60
	maxMajorThemes     = 5
	minThemeTokenRunes = 5
)

// BucketThemes groups syntheses by normalized recommendation text. A
// bucket's confidence is the maximum of its members. Buckets are ranked by
// confidence, then size, then theme text.
func BucketThemes(syntheses []model.EvidenceSynthesis) []model.ThemeBucket {
	index := make(map[string]int)
	var buckets []model.ThemeBucket
	var sums []float64

	for _, s := range syntheses {
		key := themeKey(s.Recommendation)
		if key == "" {
			continue
		}
		i, ok := index[key]
		if !ok {
			i = len(buckets)
			index[key] = i
			buckets = append(buckets, model.ThemeBucket{Theme: strings.TrimSpace(s.Recommendation)})
			sums = append(sums, 0)
		}
		b := &buckets[i]
		b.Confidence = max(b.Confidence, s.ConfidenceScore)
		b.SynthesisCount++
		b.SynthesisIDs = append(b.SynthesisIDs, s.ID)
		sums[i] += s.ConfidenceScore
	}
	for i := range buckets {
		buckets[i].WeightedScore = sums[i] / float64(buckets[i].SynthesisCount)
	}

	sort.SliceStable(buckets, func(i, j int) bool {
		a, b := buckets[i], buckets[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.SynthesisCount != b.SynthesisCount {
			return a.SynthesisCount > b.SynthesisCount
		}
		return a.Theme < b.Theme
	})
	return buckets
}

func themeKey(recommendation string) string {
	return strings.TrimRight(rules.Normalize(recommendation), ".!")
}

// CountBands returns the number of high (>=80) and moderate (60-79) buckets.
func CountBands(buckets []model.ThemeBucket) (high, moderate int) {
	for _, b := range buckets {
		switch {
		case b.Confidence >= HighConfidence:
			high++
		case b.Confidence >= ModerateConfidence:
			moderate++
		}
	}
	return high, moderate
}

// MajorThemes tokenizes the themes of buckets at or above threshold and keeps
// distinct tokens longer than four characters, at most five.
func MajorThemes(buckets []model.ThemeBucket, threshold float64) []string {
	var out []string
	seen := make(map[string]bool)
	for _, b := range buckets {
		if b.Confidence < threshold {
			continue
		}
		for _, tok := range strings.Fields(rules.Normalize(b.Theme)) {
			tok = strings.Trim(tok, ".,;:!?\"'()[]")
			if len([]rune(tok)) < minThemeTokenRunes || seen[tok] {
				continue
			}
			seen[tok] = true
			out = append(out, tok)
			if len(out) == maxMajorThemes {
				return out
			}
		}
	}
	return out
}
