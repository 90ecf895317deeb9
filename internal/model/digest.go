package model

import "time"

// DigestStatus is the publication state of a digest.
type DigestStatus string

const (
	DigestStatusDraft     DigestStatus = "draft"
	DigestStatusPublished DigestStatus = "published"
)

// ThemeBucket groups syntheses that share a recommendation. Its confidence is
// the strongest member's confidence.
type ThemeBucket struct {
	Theme          string   `json:"theme"`
	Confidence     float64  `json:"confidence"`
	SynthesisCount int      `json:"synthesis_count"`
	WeightedScore  float64  `json:"weighted_score"`
	SynthesisIDs   []string `json:"synthesis_ids"`
}

// EvidenceDigest summarizes one calendar period of evidence.
type EvidenceDigest struct {
	ID                        string        `json:"id"`
	PeriodKey                 string        `json:"period_key"`
	PeriodStart               time.Time     `json:"period_start"`
	PeriodEnd                 time.Time     `json:"period_end"`
	Status                    DigestStatus  `json:"status"`
	HighConfidenceChanges     int           `json:"high_confidence_changes"`
	ModerateConfidenceChanges int           `json:"moderate_confidence_changes"`
	PapersReviewed            int           `json:"papers_reviewed"`
	SynthesisCount            int           `json:"synthesis_count"`
	Themes                    []ThemeBucket `json:"themes"`
	MajorThemes               []string      `json:"major_themes"`
	CreatedBy                 string        `json:"created_by"`
	CreatedAt                 time.Time     `json:"created_at"`
	PublishedAt               *time.Time    `json:"published_at,omitempty"`
	PublishedBy               string        `json:"published_by,omitempty"`
}

// FlagState is the actionability of an evidence flag.
type FlagState string

const (
	FlagStateActionable FlagState = "actionable"
	FlagStateProcessed  FlagState = "processed"
)

// EvidenceFlag marks a published digest theme as ready for translation.
type EvidenceFlag struct {
	ID              string     `json:"id"`
	DigestID        string     `json:"digest_id"`
	Theme           string     `json:"theme"`
	ConfidenceScore float64    `json:"confidence_score"`
	State           FlagState  `json:"state"`
	CreatedAt       time.Time  `json:"created_at"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
}

// DigestComparison reports period-over-period changes between digests.
type DigestComparison struct {
	CurrentID        string   `json:"current_id"`
	CurrentPeriod    string   `json:"current_period"`
	PreviousID       string   `json:"previous_id,omitempty"`
	PreviousPeriod   string   `json:"previous_period,omitempty"`
	SynthesisDelta   int      `json:"synthesis_delta"`
	PapersDelta      int      `json:"papers_delta"`
	HighDelta        int      `json:"high_confidence_delta"`
	ModerateDelta    int      `json:"moderate_confidence_delta"`
	NewThemes        []string `json:"new_themes"`
	PersistentThemes []string `json:"persistent_themes"`
}
