package workflow

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/testsuite"

	"github.com/sells-group/evidence-cli/internal/contradiction"
	"github.com/sells-group/evidence-cli/internal/decision"
	"github.com/sells-group/evidence-cli/internal/digest"
	"github.com/sells-group/evidence-cli/internal/ingest"
	"github.com/sells-group/evidence-cli/internal/model"
	"github.com/sells-group/evidence-cli/internal/pilot"
	"github.com/sells-group/evidence-cli/internal/store"
)

type sourceFetcher map[string]error

func (f sourceFetcher) Fetch(_ context.Context, src *model.Source) ([]model.Document, error) {
	return nil, f[src.Name]
}

type WorkflowSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite

	st   *store.SQLiteStore
	acts *Activities
	env  *testsuite.TestWorkflowEnvironment
}

func TestWorkflowSuite(t *testing.T) {
	suite.Run(t, new(WorkflowSuite))
}

func (s *WorkflowSuite) SetupTest() {
	st, err := store.NewSQLite(filepath.Join(s.T().TempDir(), "workflow.db"))
	s.Require().NoError(err)
	s.Require().NoError(st.Migrate(context.Background()))
	s.st = st

	metrics := pilot.NewStoreMetrics(st, pilot.DefaultMetricsWindow)
	fetcher := sourceFetcher{"broken": errors.New("connection refused")}
	s.acts = &Activities{
		Scheduler:      ingest.NewScheduler(st),
		Ingest:         ingest.NewWorker(st, st, fetcher, ingest.WorkerOptions{}),
		Digests:        digest.NewGenerator(st, digest.Options{}),
		Contradictions: contradiction.NewDetector(st),
		Papers:         st,
		Decisions:      decision.NewEngine(st),
		Pilots:         pilot.NewManager(st, metrics, pilot.Options{}),
		Period:         digest.PeriodWeekly,
	}

	s.env = s.NewTestWorkflowEnvironment()
	s.env.RegisterActivity(s.acts)
}

func (s *WorkflowSuite) TearDownTest() {
	s.env.AssertExpectations(s.T())
	s.st.Close() //nolint:errcheck
}

func (s *WorkflowSuite) addSource(name string) {
	src := &model.Source{Name: name, URL: "https://example.org/" + name, Approved: true, AutoIngest: true}
	s.Require().NoError(s.st.UpsertSource(context.Background(), src))
}

func (s *WorkflowSuite) TestIngestWorkflow() {
	s.addSource("pubmed")
	s.addSource("broken")

	s.env.ExecuteWorkflow(IngestWorkflow, IngestInput{UserID: "system"})
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())

	var res IngestResult
	s.NoError(s.env.GetWorkflowResult(&res))
	s.Equal(2, res.Scheduled)
	s.Equal(1, res.Completed)
	s.Equal(1, res.Failed)

	failed, err := s.st.ListJobs(context.Background(), store.JobFilter{Status: model.JobStatusFailed})
	s.Require().NoError(err)
	s.Len(failed, 1)
}

func (s *WorkflowSuite) TestIngestWorkflow_NoSources() {
	s.env.ExecuteWorkflow(IngestWorkflow, IngestInput{UserID: "system"})
	s.NoError(s.env.GetWorkflowError())

	var res IngestResult
	s.NoError(s.env.GetWorkflowResult(&res))
	s.Equal(IngestResult{}, res)
}

func (s *WorkflowSuite) TestDigestWorkflow() {
	at := time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)
	s.Require().NoError(s.st.InsertPapers(context.Background(), []model.ResearchPaper{
		{Title: "a", StudyType: "rct", PrimaryOutcome: "reduced pain", IngestedAt: at, Status: model.PaperStatusProcessed},
		{Title: "b", StudyType: "rct", PrimaryOutcome: "no change", IngestedAt: at, Status: model.PaperStatusProcessed},
		{Title: "old", StudyType: "rct", PrimaryOutcome: "worse", IngestedAt: at.AddDate(0, 0, -14), Status: model.PaperStatusProcessed},
	}))
	s.env.SetStartTime(at)

	s.env.ExecuteWorkflow(DigestWorkflow, DigestInput{UserID: "system"})
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())

	var res DigestResult
	s.NoError(s.env.GetWorkflowResult(&res))
	s.True(res.Created)
	s.Equal("2025-W11", res.PeriodKey)
	s.Equal(1, res.Contradictions)

	d, err := s.st.GetDigest(context.Background(), res.DigestID)
	s.Require().NoError(err)
	s.Equal(2, d.PapersReviewed)
}

func (s *WorkflowSuite) TestRolloutWorkflow() {
	ctx := context.Background()
	prop := &model.PracticeTranslation{FlagID: "f", ChangeType: "clinical", Title: "t", Status: model.ProposalStatusApproved, CreatedBy: "u1"}
	s.Require().NoError(s.st.CreateProposal(ctx, prop))
	p := &model.PracticePilot{
		ProposalID:   prop.ID,
		SiteIDs:      []string{"a", "b", "c"},
		StartDate:    time.Now().UTC().AddDate(0, -2, 0),
		EndDate:      time.Now().UTC(),
		DurationDays: 60,
		Baseline:     model.SiteMetrics{"a": {model.MetricDaysToRTW: 30}},
		CreatedBy:    "u1",
	}
	s.Require().NoError(s.st.CreatePilot(ctx, p))
	a := &model.OutcomeAttribution{PilotID: p.ID, WindowStart: p.StartDate, WindowEnd: p.EndDate, OverallImprovement: 15, CreatedBy: "u1"}
	s.Require().NoError(s.st.CreateAttribution(ctx, a))

	d, err := s.acts.Decisions.RecordDecision(ctx, p.ID, a.ID, model.DecisionRollout, "cco", "strong result")
	s.Require().NoError(err)
	s.Require().NotNil(d)
	n, err := s.acts.Decisions.InitializeRollout(ctx, d.ID)
	s.Require().NoError(err)
	s.Equal(3, n)

	// Phases 1 and 2 are due, phase 3 starts on day 28.
	s.env.SetStartTime(d.DecidedAt.AddDate(0, 0, 15))
	s.env.ExecuteWorkflow(RolloutWorkflow)
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())

	var res RolloutResult
	s.NoError(s.env.GetWorkflowResult(&res))
	s.Equal(map[int]int64{1: 1, 2: 1, 3: 0}, res.Activated)
}

func (s *WorkflowSuite) TestOverdueWorkflow() {
	ctx := context.Background()
	end := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	p := &model.PracticePilot{
		ProposalID:   "prop",
		SiteIDs:      []string{"a"},
		StartDate:    end.AddDate(0, 0, -30),
		EndDate:      end,
		DurationDays: 30,
		CreatedBy:    "u1",
	}
	s.Require().NoError(s.st.CreatePilot(ctx, p))
	ok, err := s.st.LockPilotMetrics(ctx, p.ID, &model.LockedMetrics{PrimaryOutcome: model.MetricDaysToRTW, LockedAt: p.StartDate})
	s.Require().NoError(err)
	s.Require().True(ok)
	ok, err = s.st.StartPilot(ctx, p.ID, p.StartDate, []model.SiteAssignment{{SiteID: "a", Status: model.AssignmentActive}})
	s.Require().NoError(err)
	s.Require().True(ok)

	s.env.SetStartTime(end.AddDate(0, 0, 3).Add(time.Hour))
	s.env.ExecuteWorkflow(OverdueWorkflow)
	s.NoError(s.env.GetWorkflowError())

	var reports []pilot.OverdueReport
	s.NoError(s.env.GetWorkflowResult(&reports))
	s.Require().Len(reports, 1)
	s.Equal(p.ID, reports[0].PilotID)
	s.Equal(3, reports[0].DaysOverdue)
}
