package model

import "time"

// AttributionStatus is the review state of an outcome attribution.
type AttributionStatus string

const (
	AttributionPreliminary AttributionStatus = "preliminary"
	AttributionFinal       AttributionStatus = "final"
)

// ConfidenceInterval bounds an improvement estimate.
type ConfidenceInterval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// OutcomeAttribution is the measured result of a pilot.
type OutcomeAttribution struct {
	ID                       string             `json:"id"`
	PilotID                  string             `json:"pilot_id"`
	EvidenceID               string             `json:"evidence_id"`
	SOPVersion               string             `json:"sop_version"`
	WindowStart              time.Time          `json:"window_start"`
	WindowEnd                time.Time          `json:"window_end"`
	PreMetrics               SiteMetrics        `json:"pre_metrics"`
	PostMetrics              SiteMetrics        `json:"post_metrics"`
	SiteImprovements         SiteMetrics        `json:"site_improvements"`
	MetricImprovements       map[string]float64 `json:"metric_improvements"`
	OverallImprovement       float64            `json:"overall_improvement"`
	StatisticallySignificant bool               `json:"statistically_significant"`
	ConfidenceInterval       ConfidenceInterval `json:"confidence_interval"`
	Status                   AttributionStatus  `json:"status"`
	CreatedBy                string             `json:"created_by"`
	CreatedAt                time.Time          `json:"created_at"`
	FinalizedBy              string             `json:"finalized_by,omitempty"`
	FinalizedAt              *time.Time         `json:"finalized_at,omitempty"`
}

// Decision is the enforcement outcome for a pilot.
type Decision string

const (
	DecisionRollout  Decision = "rollout"
	DecisionRollback Decision = "rollback"
	DecisionHold     Decision = "hold"
)

// Valid reports whether d is a known decision.
func (d Decision) Valid() bool {
	return d == DecisionRollout || d == DecisionRollback || d == DecisionHold
}

// TimelinePhase is one wave of a rollout or rollback.
type TimelinePhase struct {
	Phase        int      `json:"phase"`
	Name         string   `json:"name"`
	SiteIDs      []string `json:"site_ids"`
	OffsetDays   int      `json:"offset_days"`
	DurationDays int      `json:"duration_days"`
	DependsOn    string   `json:"depends_on,omitempty"`
}

// RolloutDecision records the enforcement outcome and its timeline.
type RolloutDecision struct {
	ID             string          `json:"id"`
	PilotID        string          `json:"pilot_id"`
	AttributionID  string          `json:"attribution_id"`
	Decision       Decision        `json:"decision"`
	Rationale      string          `json:"rationale"`
	Timeline       []TimelinePhase `json:"timeline"`
	LearningStored bool            `json:"learning_stored"`
	DecidedBy      string          `json:"decided_by"`
	DecidedAt      time.Time       `json:"decided_at"`
}

// PlanType distinguishes rollout from rollback site plans.
type PlanType string

const (
	PlanTypeRollout  PlanType = "rollout"
	PlanTypeRollback PlanType = "rollback"
)

// PlanStatus is the execution state of a site plan.
type PlanStatus string

const (
	PlanStatusScheduled    PlanStatus = "scheduled"
	PlanStatusImplementing PlanStatus = "implementing"
	PlanStatusActive       PlanStatus = "active"
	PlanStatusCompleted    PlanStatus = "completed"
)

// SitePlan is one site's schedule within one phase of a decision.
type SitePlan struct {
	ID             string     `json:"id"`
	DecisionID     string     `json:"decision_id"`
	SiteID         string     `json:"site_id"`
	PlanType       PlanType   `json:"plan_type"`
	Phase          int        `json:"phase"`
	PhaseName      string     `json:"phase_name"`
	ScheduledStart time.Time  `json:"scheduled_start"`
	Status         PlanStatus `json:"status"`
	ActivatedAt    *time.Time `json:"activated_at,omitempty"`
}

// Findings are the operator-supplied observations for a learning record.
type Findings struct {
	Summary                string   `json:"summary"`
	ImprovementPct         float64  `json:"improvement_pct"`
	UnexpectedBenefits     []string `json:"unexpected_benefits,omitempty"`
	ImplementationBarriers []string `json:"implementation_barriers,omitempty"`
	ClinicSize             string   `json:"clinic_size,omitempty"`
	StaffExperience        string   `json:"staff_experience,omitempty"`
}

// LearningRecord is the immutable organizational memory of a decision.
type LearningRecord struct {
	ID         string    `json:"id"`
	DecisionID string    `json:"decision_id"`
	Decision   Decision  `json:"decision"`
	Findings   Findings  `json:"findings"`
	Lessons    []string  `json:"lessons"`
	Contexts   []string  `json:"contexts"`
	Searchable bool      `json:"searchable"`
	CreatedBy  string    `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
}
