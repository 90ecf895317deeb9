package model

import "time"

// ContradictionStatus is the manual resolution state of a contradiction.
type ContradictionStatus string

const (
	ContradictionUnresolved          ContradictionStatus = "unresolved"
	ContradictionInvestigating       ContradictionStatus = "investigating"
	ContradictionResolvedFavorA      ContradictionStatus = "resolved_favor_a"
	ContradictionResolvedFavorB      ContradictionStatus = "resolved_favor_b"
	ContradictionResolvedBothValid   ContradictionStatus = "resolved_both_valid"
	ContradictionResolvedBothInvalid ContradictionStatus = "resolved_both_invalid"
)

// Valid reports whether s is a known status.
func (s ContradictionStatus) Valid() bool {
	switch s {
	case ContradictionUnresolved, ContradictionInvestigating,
		ContradictionResolvedFavorA, ContradictionResolvedFavorB,
		ContradictionResolvedBothValid, ContradictionResolvedBothInvalid:
		return true
	}
	return false
}

// IsResolved reports whether s closes the contradiction.
func (s ContradictionStatus) IsResolved() bool {
	switch s {
	case ContradictionResolvedFavorA, ContradictionResolvedFavorB,
		ContradictionResolvedBothValid, ContradictionResolvedBothInvalid:
		return true
	}
	return false
}

// ContradictionTypeOutcomeConflict is raised when comparable studies report
// different primary outcomes.
const ContradictionTypeOutcomeConflict = "outcome_conflict"

// EvidenceContradiction pairs two papers whose outcomes conflict.
type EvidenceContradiction struct {
	ID             string              `json:"id"`
	PaperAID       string              `json:"paper_a_id"`
	PaperBID       string              `json:"paper_b_id"`
	Type           string              `json:"contradiction_type"`
	Confidence     float64             `json:"confidence"`
	ClinicalImpact string              `json:"clinical_impact"`
	Status         ContradictionStatus `json:"status"`
	Notes          string              `json:"notes,omitempty"`
	DetectedBy     string              `json:"detected_by"`
	ResolvedBy     string              `json:"resolved_by,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
	ResolvedAt     *time.Time          `json:"resolved_at,omitempty"`
}
