package ingest

import (
	"strings"

	"github.com/sells-group/evidence-cli/internal/model"
	"github.com/sells-group/evidence-cli/internal/rules"
)

// Study design labels.
const (
	DesignMetaAnalysis     = "meta_analysis"
	DesignSystematicReview = "systematic_review"
	DesignRCT              = "rct"
	DesignCohort           = "cohort"
	DesignCaseControl      = "case_control"
	DesignCrossSectional   = "cross_sectional"
	DesignCaseSeries       = "case_series"
	DesignCaseReport       = "case_report"
	DesignExpertOpinion    = "expert_opinion"
	DesignUnknown          = "unknown"
)

// designTable is ordered so that combined labels such as "systematic review
// and meta-analysis" resolve to the stronger design.
var designTable = rules.NewTable(DesignUnknown,
	rules.Rule{Category: DesignMetaAnalysis, Keywords: []string{"meta-analysis", "meta analysis", "metaanalysis"}},
	rules.Rule{Category: DesignSystematicReview, Keywords: []string{"systematic review"}},
	rules.Rule{Category: DesignRCT, Keywords: []string{"randomized", "randomised", "rct"}},
	rules.Rule{Category: DesignCohort, Keywords: []string{"cohort", "longitudinal", "prospective"}},
	rules.Rule{Category: DesignCaseControl, Keywords: []string{"case-control", "case control"}},
	rules.Rule{Category: DesignCrossSectional, Keywords: []string{"cross-sectional", "cross sectional", "survey"}},
	rules.Rule{Category: DesignCaseSeries, Keywords: []string{"case series"}},
	rules.Rule{Category: DesignCaseReport, Keywords: []string{"case report"}},
	rules.Rule{Category: DesignExpertOpinion, Keywords: []string{"expert opinion", "consensus statement", "editorial", "commentary"}},
)

var designWeights = map[string]float64{
	DesignMetaAnalysis:     40,
	DesignSystematicReview: 38,
	DesignRCT:              35,
	DesignCohort:           25,
	DesignCaseControl:      20,
	DesignCrossSectional:   15,
	DesignCaseSeries:       10,
	DesignCaseReport:       5,
	DesignExpertOpinion:    5,
	DesignUnknown:          10,
}

// ClassifyDesign maps a free-text study design to a design label.
func ClassifyDesign(design string) string {
	return designTable.Classify(design)
}

// CompletenessScore is the weighted presence of the bibliographic fields,
// 0..100.
func CompletenessScore(doc model.Document) float64 {
	var score float64
	if strings.TrimSpace(doc.Title) != "" {
		score += 15
	}
	if len(doc.Authors) > 0 {
		score += 15
	}
	if strings.TrimSpace(doc.Abstract) != "" {
		score += 20
	}
	if doc.PublicationDate != nil {
		score += 10
	}
	if strings.TrimSpace(doc.DOI) != "" {
		score += 10
	}
	if strings.TrimSpace(doc.Methods) != "" {
		score += 15
	}
	if strings.TrimSpace(doc.Outcomes) != "" {
		score += 15
	}
	return score
}

func sampleSizeTier(n int) float64 {
	switch {
	case n >= 1000:
		return 25
	case n >= 500:
		return 20
	case n >= 100:
		return 15
	case n >= 30:
		return 10
	case n > 0:
		return 5
	default:
		return 0
	}
}

func outcomeReported(doc model.Document) bool {
	return strings.TrimSpace(doc.Outcomes) != "" || strings.TrimSpace(doc.PrimaryOutcome) != ""
}

// QualityScore combines design weight, sample size tier, peer review and
// reporting bonuses, clamped to 0..100. It also returns the quality tags.
func QualityScore(doc model.Document) (float64, []string) {
	design := ClassifyDesign(doc.StudyDesign)
	score := designWeights[design] + sampleSizeTier(doc.SampleSize)
	tags := []string{"design:" + design}

	if doc.PeerReviewed {
		score += 15
		tags = append(tags, "peer_reviewed")
	} else {
		score -= 10
		tags = append(tags, "not_peer_reviewed")
	}
	if outcomeReported(doc) {
		score += 10
		tags = append(tags, "outcome_reported")
	}
	if doc.SignificanceReported {
		score += 10
		tags = append(tags, "significance_reported")
	}
	if doc.SampleSize >= 1000 {
		tags = append(tags, "large_sample")
	}
	return min(max(score, 0), 100), tags
}

// maxTagsPerCategory caps relevance tags for each priority category.
const maxTagsPerCategory = 3

// Relevance scores documents against the active research priorities.
type Relevance struct {
	conditions *rules.Table
	metrics    *rules.Table
}

// NewRelevance builds one rule per active priority, in the given order.
func NewRelevance(priorities []model.ResearchPriority) *Relevance {
	var conds, metrics []rules.Rule
	for _, p := range priorities {
		if !p.Active {
			continue
		}
		r := rules.Rule{Category: p.Name, Keywords: append([]string{p.Name}, p.Keywords...)}
		switch p.Category {
		case model.PriorityCategoryCondition:
			conds = append(conds, r)
		case model.PriorityCategoryMetric:
			metrics = append(metrics, r)
		}
	}
	return &Relevance{
		conditions: rules.NewTable("", conds...),
		metrics:    rules.NewTable("", metrics...),
	}
}

// Score returns clinical relevance, operational relevance and relevance tags.
// Each matched priority adds 25, capped at 100.
func (r *Relevance) Score(doc model.Document) (clinical, operational float64, tags []string) {
	text := strings.Join([]string{doc.Title, doc.Abstract, doc.Outcomes, doc.PrimaryOutcome}, " ")

	condMatches := r.conditions.MatchAll(text)
	metricMatches := r.metrics.MatchAll(text)

	clinical = min(float64(len(condMatches))*25, 100)
	operational = min(float64(len(metricMatches))*25, 100)

	for i, m := range condMatches {
		if i == maxTagsPerCategory {
			break
		}
		tags = append(tags, "condition:"+m)
	}
	for i, m := range metricMatches {
		if i == maxTagsPerCategory {
			break
		}
		tags = append(tags, "metric:"+m)
	}
	return clinical, operational, tags
}
