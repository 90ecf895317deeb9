package model

import "time"

// Document is a raw item pulled from a source feed before scoring.
type Document struct {
	Title                string     `json:"title"`
	Authors              []string   `json:"authors"`
	Abstract             string     `json:"abstract"`
	PublicationDate      *time.Time `json:"publication_date,omitempty"`
	DOI                  string     `json:"doi"`
	URL                  string     `json:"url"`
	Methods              string     `json:"methods"`
	Outcomes             string     `json:"outcomes"`
	PrimaryOutcome       string     `json:"primary_outcome"`
	StudyDesign          string     `json:"study_design"`
	SampleSize           int        `json:"sample_size"`
	PeerReviewed         bool       `json:"peer_reviewed"`
	SignificanceReported bool       `json:"significance_reported"`
}

// PaperStatus is the ingestion status of a research paper.
type PaperStatus string

const (
	PaperStatusProcessed PaperStatus = "processed"
)

// ResearchPaper is an accepted, scored document.
type ResearchPaper struct {
	ID                   string      `json:"id"`
	SourceID             string      `json:"source_id"`
	JobID                string      `json:"job_id"`
	Title                string      `json:"title"`
	Authors              []string    `json:"authors"`
	Abstract             string      `json:"abstract"`
	PublicationDate      *time.Time  `json:"publication_date,omitempty"`
	DOI                  string      `json:"doi,omitempty"`
	URL                  string      `json:"url,omitempty"`
	StudyType            string      `json:"study_type"`
	PrimaryOutcome       string      `json:"primary_outcome"`
	SampleSize           int         `json:"sample_size"`
	QualityScore         float64     `json:"quality_score"`
	CompletenessScore    float64     `json:"completeness_score"`
	ClinicalRelevance    float64     `json:"clinical_relevance"`
	OperationalRelevance float64     `json:"operational_relevance"`
	QualityTags          []string    `json:"quality_tags"`
	RelevanceTags        []string    `json:"relevance_tags"`
	Status               PaperStatus `json:"status"`
	IngestedAt           time.Time   `json:"ingested_at"`
}
