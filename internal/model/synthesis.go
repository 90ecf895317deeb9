package model

import "time"

// EvidenceQuality grades the strength of a synthesis.
type EvidenceQuality string

const (
	EvidenceQualityStrong   EvidenceQuality = "strong"
	EvidenceQualityModerate EvidenceQuality = "moderate"
	EvidenceQualityWeak     EvidenceQuality = "weak"
)

// QualityForConfidence maps a 0-100 confidence score to an evidence grade.
func QualityForConfidence(confidence float64) EvidenceQuality {
	switch {
	case confidence >= 80:
		return EvidenceQualityStrong
	case confidence >= 60:
		return EvidenceQualityModerate
	default:
		return EvidenceQualityWeak
	}
}

// EvidenceSynthesis is the current version of a synthesized answer.
type EvidenceSynthesis struct {
	ID              string          `json:"id"`
	Query           string          `json:"query"`
	Summary         string          `json:"summary"`
	ConfidenceScore float64         `json:"confidence_score"`
	EvidenceQuality EvidenceQuality `json:"evidence_quality"`
	ConsensusLevel  string          `json:"consensus_level"`
	Recommendation  string          `json:"recommendation"`
	Rationale       string          `json:"rationale,omitempty"`
	Risks           []string        `json:"risks,omitempty"`
	PaperIDs        []string        `json:"paper_ids,omitempty"`
	Version         int             `json:"version"`
	CreatedBy       string          `json:"created_by"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	PublishedAt     time.Time       `json:"published_at"`
}

// FieldChange is one entry of a synthesis version diff.
type FieldChange struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// SynthesisVersion is an immutable history row for a synthesis.
type SynthesisVersion struct {
	ID              string            `json:"id"`
	SynthesisID     string            `json:"synthesis_id"`
	Version         int               `json:"version"`
	ParentVersionID string            `json:"parent_version_id,omitempty"`
	Snapshot        EvidenceSynthesis `json:"snapshot"`
	Diff            []FieldChange     `json:"diff"`
	EditedBy        string            `json:"edited_by"`
	CreatedAt       time.Time         `json:"created_at"`
}
