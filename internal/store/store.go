package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/evidence-cli/internal/model"
)

// ErrNotFound is returned when a referenced entity does not exist.
var ErrNotFound = eris.New("not found")

// SourceFilter specifies criteria for listing sources.
type SourceFilter struct {
	Approved   *bool
	AutoIngest *bool
}

// JobFilter specifies criteria for listing ingestion jobs.
type JobFilter struct {
	SourceID string
	Status   model.JobStatus
	Limit    int
}

// PaperFilter specifies criteria for listing research papers.
type PaperFilter struct {
	IDs            []string
	IngestedFrom   time.Time
	IngestedBefore time.Time
	MinQuality     float64
	Limit          int
}

// SourceStore persists sources, research priorities and ingestion jobs.
type SourceStore interface {
	UpsertSource(ctx context.Context, src *model.Source) error
	GetSource(ctx context.Context, id string) (*model.Source, error)
	ListSources(ctx context.Context, filter SourceFilter) ([]model.Source, error)

	UpsertPriority(ctx context.Context, p *model.ResearchPriority) error
	ListActivePriorities(ctx context.Context) ([]model.ResearchPriority, error)

	CreateJob(ctx context.Context, sourceID, createdBy string) (*model.IngestionJob, error)
	GetJob(ctx context.Context, id string) (*model.IngestionJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]model.IngestionJob, error)
	HasRunningJob(ctx context.Context, sourceID string) (bool, error)
	// StartJob moves a pending job to running unless another job for the
	// same source is already running. Returns false when nothing changed.
	StartJob(ctx context.Context, id string) (bool, error)
	CompleteJob(ctx context.Context, id string, found, ingested, rejected int, quality float64) error
	FailJob(ctx context.Context, id string, found, rejected int, message string) error
}

// PaperStore persists research papers.
type PaperStore interface {
	InsertPapers(ctx context.Context, papers []model.ResearchPaper) error
	GetPaper(ctx context.Context, id string) (*model.ResearchPaper, error)
	ListPapers(ctx context.Context, filter PaperFilter) ([]model.ResearchPaper, error)
	CountPapers(ctx context.Context, from, before time.Time) (int, error)
}

// SynthesisStore persists syntheses and their version history.
type SynthesisStore interface {
	CreateSynthesis(ctx context.Context, s *model.EvidenceSynthesis) error
	GetSynthesis(ctx context.Context, id string) (*model.EvidenceSynthesis, error)
	// ReviseSynthesis overwrites the current record and appends the version
	// row in a single transaction. It fails when the stored version is not
	// s.Version-1.
	ReviseSynthesis(ctx context.Context, s *model.EvidenceSynthesis, v *model.SynthesisVersion) error
	ListSynthesisVersions(ctx context.Context, synthesisID string) ([]model.SynthesisVersion, error)
	ListPublishedSyntheses(ctx context.Context, from, before time.Time) ([]model.EvidenceSynthesis, error)
}

// DigestStore persists digests and evidence flags.
type DigestStore interface {
	// CreateDigest inserts d unless a digest for its period exists. Returns
	// false when the period was already taken.
	CreateDigest(ctx context.Context, d *model.EvidenceDigest) (bool, error)
	GetDigest(ctx context.Context, id string) (*model.EvidenceDigest, error)
	GetDigestByPeriod(ctx context.Context, periodKey string) (*model.EvidenceDigest, error)
	// PreviousPublishedDigest returns the latest published digest whose
	// period precedes periodKey, or nil when there is none.
	PreviousPublishedDigest(ctx context.Context, periodKey string) (*model.EvidenceDigest, error)
	ListDigests(ctx context.Context, limit int) ([]model.EvidenceDigest, error)
	// PublishDigest publishes a draft digest and inserts its flags atomically.
	PublishDigest(ctx context.Context, id, publishedBy string, at time.Time, flags []model.EvidenceFlag) (bool, error)

	CreateFlags(ctx context.Context, flags []model.EvidenceFlag) error
	GetFlag(ctx context.Context, id string) (*model.EvidenceFlag, error)
	ListFlags(ctx context.Context, state model.FlagState) ([]model.EvidenceFlag, error)
	MarkFlagProcessed(ctx context.Context, id string, at time.Time) (bool, error)
}

// ContradictionStore persists detected contradictions.
type ContradictionStore interface {
	CreateContradiction(ctx context.Context, c *model.EvidenceContradiction) error
	ContradictionExists(ctx context.Context, paperA, paperB string) (bool, error)
	GetContradiction(ctx context.Context, id string) (*model.EvidenceContradiction, error)
	UpdateContradictionStatus(ctx context.Context, id string, status model.ContradictionStatus, notes, userID string, resolvedAt *time.Time) (bool, error)
	ListContradictions(ctx context.Context, status model.ContradictionStatus) ([]model.EvidenceContradiction, error)
}

// ProposalStore persists proposals and approval records.
type ProposalStore interface {
	CreateProposal(ctx context.Context, p *model.PracticeTranslation) error
	GetProposal(ctx context.Context, id string) (*model.PracticeTranslation, error)
	ListProposals(ctx context.Context, status model.ProposalStatus) ([]model.PracticeTranslation, error)
	// RouteProposal moves a generated proposal to awaiting review and
	// inserts its pending approval in one transaction.
	RouteProposal(ctx context.Context, proposalID string, approval *model.ApprovalRecord) (bool, error)
	GetPendingApproval(ctx context.Context, proposalID string) (*model.ApprovalRecord, error)
	// DecideProposal closes the pending approval and the proposal together.
	DecideProposal(ctx context.Context, proposalID string, status model.ProposalStatus, reviewerID, rationale string, at time.Time) (bool, error)
}

// PilotStore persists pilots, site assignments and clinic metrics.
type PilotStore interface {
	CreatePilot(ctx context.Context, p *model.PracticePilot) error
	GetPilot(ctx context.Context, id string) (*model.PracticePilot, error)
	ListPilots(ctx context.Context, status model.PilotStatus) ([]model.PracticePilot, error)
	// LockPilotMetrics sets locked metrics only if none are set yet.
	LockPilotMetrics(ctx context.Context, id string, metrics *model.LockedMetrics) (bool, error)
	StartPilot(ctx context.Context, id string, at time.Time, assignments []model.SiteAssignment) (bool, error)
	EndPilot(ctx context.Context, id string, status model.PilotStatus, at time.Time) (bool, error)
	ListSiteAssignments(ctx context.Context, pilotID string) ([]model.SiteAssignment, error)

	RecordMetric(ctx context.Context, obs *model.MetricObservation) error
	SiteMetricAverages(ctx context.Context, siteID string, from, before time.Time) (map[string]float64, error)
}

// AttributionStore persists outcome attributions.
type AttributionStore interface {
	CreateAttribution(ctx context.Context, a *model.OutcomeAttribution) error
	GetAttribution(ctx context.Context, id string) (*model.OutcomeAttribution, error)
	ListAttributions(ctx context.Context, pilotID string) ([]model.OutcomeAttribution, error)
	FinalizeAttribution(ctx context.Context, id, userID string, at time.Time) (bool, error)
}

// DecisionStore persists decisions, site plans and learning records.
type DecisionStore interface {
	CreateDecision(ctx context.Context, d *model.RolloutDecision) error
	GetDecision(ctx context.Context, id string) (*model.RolloutDecision, error)
	ListDecisions(ctx context.Context, pilotID string) ([]model.RolloutDecision, error)

	InsertSitePlans(ctx context.Context, plans []model.SitePlan) (int64, error)
	ListSitePlans(ctx context.Context, decisionID string, planType model.PlanType) ([]model.SitePlan, error)
	ActivatePhasePlans(ctx context.Context, phase int, now time.Time) (int64, error)
	ActivateRollbackPlans(ctx context.Context, decisionID string, now time.Time) (int64, error)

	// StoreLearning flips learning_stored from false to true and inserts the
	// record atomically. Only one caller can ever observe true.
	StoreLearning(ctx context.Context, l *model.LearningRecord) (bool, error)
	CreateLearning(ctx context.Context, l *model.LearningRecord) error
	GetLearningByDecision(ctx context.Context, decisionID string) (*model.LearningRecord, error)
	SearchLearnings(ctx context.Context, query string, limit int) ([]model.LearningRecord, error)
}

// AgentStore persists analysis agents and their executions.
type AgentStore interface {
	CreateAgent(ctx context.Context, a *model.Agent) error
	GetAgent(ctx context.Context, id string) (*model.Agent, error)
	CreateAgentExecution(ctx context.Context, e *model.AgentExecution) error
	ListAgentExecutions(ctx context.Context, agentID string, limit int) ([]model.AgentExecution, error)
}

// Store defines the persistence interface for the evidence pipeline.
type Store interface {
	SourceStore
	PaperStore
	SynthesisStore
	DigestStore
	ContradictionStore
	ProposalStore
	PilotStore
	AttributionStore
	DecisionStore
	AgentStore

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
