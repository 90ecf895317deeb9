package model

import "time"

// PilotStatus is the lifecycle state of a practice pilot.
type PilotStatus string

const (
	PilotStatusPlanned       PilotStatus = "planned"
	PilotStatusMetricsLocked PilotStatus = "metrics_locked"
	PilotStatusActive        PilotStatus = "active"
	PilotStatusCompleted     PilotStatus = "completed"
	PilotStatusRolledBack    PilotStatus = "rolled_back"
)

// Core metric keys used for the overall improvement score.
const (
	MetricDaysToRTW           = "days_to_rtw"
	MetricClaimAcceptanceRate = "claim_acceptance_rate"
	MetricVisitsPerCase       = "visits_per_case"
)

// CoreMetrics is the fixed metric set that feeds overall improvement.
var CoreMetrics = []string{MetricDaysToRTW, MetricClaimAcceptanceRate, MetricVisitsPerCase}

// SiteMetrics maps site ID to metric name to value.
type SiteMetrics map[string]map[string]float64

// LockedMetrics are the pre-registered success criteria of a pilot.
type LockedMetrics struct {
	PrimaryOutcome      string    `json:"primary_outcome"`
	SuccessThreshold    float64   `json:"success_threshold"`
	AcceptableThreshold float64   `json:"acceptable_threshold"`
	FailureThreshold    float64   `json:"failure_threshold"`
	SecondaryOutcomes   []string  `json:"secondary_outcomes,omitempty"`
	MonitoringCadence   string    `json:"monitoring_cadence"`
	LockedBy            string    `json:"locked_by"`
	LockedAt            time.Time `json:"locked_at"`
}

// PracticePilot is a time-boxed trial of an approved proposal.
type PracticePilot struct {
	ID            string         `json:"id"`
	ProposalID    string         `json:"proposal_id"`
	SiteIDs       []string       `json:"site_ids"`
	StartDate     time.Time      `json:"start_date"`
	EndDate       time.Time      `json:"end_date"`
	DurationDays  int            `json:"duration_days"`
	Baseline      SiteMetrics    `json:"baseline_metrics"`
	LockedMetrics *LockedMetrics `json:"locked_metrics,omitempty"`
	Status        PilotStatus    `json:"status"`
	StartedAt     *time.Time     `json:"started_at,omitempty"`
	EndedAt       *time.Time     `json:"ended_at,omitempty"`
	CreatedBy     string         `json:"created_by"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// AssignmentStatus is the state of a site's participation in a pilot.
type AssignmentStatus string

const (
	AssignmentActive    AssignmentStatus = "active"
	AssignmentCompleted AssignmentStatus = "completed"
)

// SiteAssignment records one site's participation in an active pilot.
type SiteAssignment struct {
	ID          string           `json:"id"`
	PilotID     string           `json:"pilot_id"`
	SiteID      string           `json:"site_id"`
	Status      AssignmentStatus `json:"status"`
	AssignedAt  time.Time        `json:"assigned_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// MetricObservation is one recorded clinic metric value.
type MetricObservation struct {
	ID         string    `json:"id"`
	SiteID     string    `json:"site_id"`
	Metric     string    `json:"metric"`
	Value      float64   `json:"value"`
	ObservedAt time.Time `json:"observed_at"`
}
