package model

import "time"

// SourceFormat identifies how a source's feed is decoded.
type SourceFormat string

const (
	SourceFormatRSS  SourceFormat = "rss"
	SourceFormatJSON SourceFormat = "json"
	SourceFormatCSV  SourceFormat = "csv"
	SourceFormatXLSX SourceFormat = "xlsx"
)

// Source is an approved literature feed.
type Source struct {
	ID         string       `json:"id" yaml:"-"`
	Name       string       `json:"name" yaml:"name"`
	URL        string       `json:"url" yaml:"url"`
	Format     SourceFormat `json:"format" yaml:"format"`
	Approved   bool         `json:"approved" yaml:"approved"`
	AutoIngest bool         `json:"auto_ingest" yaml:"auto_ingest"`
	CreatedAt  time.Time    `json:"created_at" yaml:"-"`
	UpdatedAt  time.Time    `json:"updated_at" yaml:"-"`
}

// JobStatus represents the lifecycle state of an ingestion job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCompleted JobStatus = "completed"
)

// IsTerminal reports whether the job can no longer change state.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusFailed || s == JobStatusCompleted
}

// IngestionJob is one scheduling unit for a single source.
type IngestionJob struct {
	ID             string     `json:"id"`
	SourceID       string     `json:"source_id"`
	Status         JobStatus  `json:"status"`
	ScheduledAt    time.Time  `json:"scheduled_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	PapersFound    int        `json:"papers_found"`
	PapersIngested int        `json:"papers_ingested"`
	PapersRejected int        `json:"papers_rejected"`
	QualityScore   float64    `json:"quality_score"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	CreatedBy      string     `json:"created_by"`
}

// PriorityCategory groups research priorities for relevance scoring.
type PriorityCategory string

const (
	PriorityCategoryCondition PriorityCategory = "condition"
	PriorityCategoryMetric    PriorityCategory = "metric"
)

// ResearchPriority is an entry of the active priority list used for
// relevance tagging.
type ResearchPriority struct {
	ID        string           `json:"id" yaml:"-"`
	Name      string           `json:"name" yaml:"name"`
	Category  PriorityCategory `json:"category" yaml:"category"`
	Keywords  []string         `json:"keywords" yaml:"keywords"`
	Active    bool             `json:"active" yaml:"active"`
	UpdatedAt time.Time        `json:"updated_at" yaml:"-"`
}
