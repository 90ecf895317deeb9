package proposal

import (
	"github.com/sells-group/evidence-cli/internal/model"
	"github.com/sells-group/evidence-cli/internal/rules"
)

// Change types.
const (
	ChangeClinical       = "clinical"
	ChangeOperational    = "operational"
	ChangeAdministrative = "administrative"
	ChangeEducational    = "educational"
)

// changeTypes is evaluated in order; the first matching rule wins.
var changeTypes = rules.NewTable(ChangeClinical,
	rules.Rule{Category: ChangeOperational, Keywords: []string{
		"efficiency", "throughput", "scheduling", "workflow", "wait time", "staffing", "capacity",
	}},
	rules.Rule{Category: ChangeAdministrative, Keywords: []string{
		"claim", "billing", "authorization", "documentation", "coding", "reporting",
	}},
	rules.Rule{Category: ChangeEducational, Keywords: []string{
		"education", "training", "home program", "self-management", "coaching",
	}},
)

// expectedOutcomes maps theme vocabulary to the outcomes a change should
// produce. All matching rules contribute, in table order.
var expectedOutcomes = rules.NewTable("Improved clinical outcomes",
	rules.Rule{Category: "Reduced time to return to work", Keywords: []string{"return to work", "rtw", "work status"}},
	rules.Rule{Category: "Improved patient satisfaction", Keywords: []string{"return to work", "satisfaction", "patient experience", "engagement"}},
	rules.Rule{Category: "Increased clinic throughput", Keywords: []string{"efficiency", "throughput", "capacity", "scheduling"}},
	rules.Rule{Category: "Higher claim acceptance rate", Keywords: []string{"claim", "authorization", "documentation"}},
	rules.Rule{Category: "Fewer visits per case", Keywords: []string{"visits", "episode", "discharge"}},
	rules.Rule{Category: "Reduced pain scores", Keywords: []string{"pain"}},
	rules.Rule{Category: "Faster functional recovery", Keywords: []string{"recovery", "function", "mobility", "strength"}},
)

// affectedAreas maps theme vocabulary to the parts of the practice a change
// touches.
var affectedAreas = rules.NewTable("clinical_care",
	rules.Rule{Category: "clinical_care", Keywords: []string{"treatment", "therapy", "exercise", "manual", "protocol", "pain"}},
	rules.Rule{Category: "scheduling", Keywords: []string{"scheduling", "appointment", "wait time", "capacity"}},
	rules.Rule{Category: "billing", Keywords: []string{"claim", "billing", "authorization", "coding"}},
	rules.Rule{Category: "case_management", Keywords: []string{"return to work", "rtw", "case", "employer"}},
	rules.Rule{Category: "patient_education", Keywords: []string{"education", "home program", "self-management"}},
	rules.Rule{Category: "documentation", Keywords: []string{"documentation", "reporting", "notes"}},
)

// ClassifyChange returns the change type for a theme.
func ClassifyChange(theme string) string { return changeTypes.Classify(theme) }

// ExpectedOutcomes returns the outcomes expected from a theme, or a generic
// default when nothing matches.
func ExpectedOutcomes(theme string) []string { return expectedOutcomes.MatchAllOrFallback(theme) }

// AffectedAreas returns the practice areas a theme touches.
func AffectedAreas(theme string) []string { return affectedAreas.MatchAllOrFallback(theme) }

// ComplexityFor grades implementation effort inversely to confidence.
func ComplexityFor(confidence float64) model.Complexity {
	switch {
	case confidence >= 90:
		return model.ComplexityLow
	case confidence >= 85:
		return model.ComplexityMedium
	default:
		return model.ComplexityHigh
	}
}

// AssessRisk grades risk from confidence and complexity and lists the
// factors that raised it.
func AssessRisk(confidence float64, complexity model.Complexity, changeType string) model.RiskAssessment {
	var factors []string
	switch {
	case confidence < 60:
		factors = append(factors, "evidence confidence below 60")
	case confidence < 70:
		factors = append(factors, "evidence confidence below 70")
	}
	if complexity == model.ComplexityHigh {
		factors = append(factors, "high implementation complexity")
	}
	if changeType == ChangeClinical {
		factors = append(factors, "direct change to patient care")
	}

	level := model.RiskLow
	switch {
	case confidence < 60:
		level = model.RiskHigh
	case confidence < 70 || complexity == model.ComplexityHigh:
		level = model.RiskModerate
	}

	if factors == nil {
		factors = []string{}
	}
	return model.RiskAssessment{Level: level, Factors: factors, Mitigation: mitigations[level]}
}

var mitigations = map[model.RiskLevel]string{
	model.RiskHigh:     "Restrict to a single-site pilot with weekly outcome review and a predefined stop rule",
	model.RiskModerate: "Run a multi-site pilot with locked success metrics before any rollout",
	model.RiskLow:      "Standard pilot with monthly monitoring",
}
