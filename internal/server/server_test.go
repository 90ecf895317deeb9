package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/evidence-cli/internal/agent"
	"github.com/sells-group/evidence-cli/internal/attribution"
	"github.com/sells-group/evidence-cli/internal/config"
	"github.com/sells-group/evidence-cli/internal/contradiction"
	"github.com/sells-group/evidence-cli/internal/decision"
	"github.com/sells-group/evidence-cli/internal/digest"
	"github.com/sells-group/evidence-cli/internal/ingest"
	"github.com/sells-group/evidence-cli/internal/model"
	"github.com/sells-group/evidence-cli/internal/monitoring"
	"github.com/sells-group/evidence-cli/internal/pilot"
	"github.com/sells-group/evidence-cli/internal/presence"
	"github.com/sells-group/evidence-cli/internal/proposal"
	"github.com/sells-group/evidence-cli/internal/store"
	"github.com/sells-group/evidence-cli/internal/synthesis"
	"github.com/sells-group/evidence-cli/internal/textgen"
	"github.com/sells-group/evidence-cli/pkg/anthropic"
)

type fakeCompleter struct {
	text string
	err  error
}

func (f *fakeCompleter) Complete(_ context.Context, req textgen.Request) (*textgen.Completion, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &textgen.Completion{Text: f.text, Model: req.Model, Usage: anthropic.TokenUsage{InputTokens: 10, OutputTokens: 5}}, nil
}

func setupTestServer(t *testing.T, gen textgen.Completer) (*httptest.Server, *store.SQLiteStore, *Server) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	metrics := pilot.NewStoreMetrics(st, pilot.DefaultMetricsWindow)
	svc := Services{
		Store:          st,
		Scheduler:      ingest.NewScheduler(st),
		Ingest:         ingest.NewWorker(st, st, nil, ingest.WorkerOptions{}),
		Synthesis:      synthesis.NewService(st, gen),
		Digests:        digest.NewGenerator(st, digest.Options{}),
		Contradictions: contradiction.NewDetector(st),
		Proposals:      proposal.NewGenerator(st),
		Pilots:         pilot.NewManager(st, metrics, pilot.Options{}),
		Metrics:        metrics,
		Attribution:    attribution.NewEngine(st, metrics, 2),
		Decisions:      decision.NewEngine(st),
		Agents:         agent.NewExecutor(st, gen),
	}
	svc.Monitoring = monitoring.NewChecker(
		monitoring.NewCollector(st, svc.Pilots, svc.Contradictions),
		monitoring.NewAlerter(config.MonitoringConfig{}),
		config.MonitoringConfig{LookbackWindowHours: 24},
	)
	srv := New(svc, Options{PresenceTTL: time.Minute})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, st, srv
}

func call(t *testing.T, ts *httptest.Server, method, path, user string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(userHeader, user)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, out
}

func seedFlag(t *testing.T, st store.Store) string {
	t.Helper()
	ctx := context.Background()
	d := &model.EvidenceDigest{
		PeriodKey:   "2025-W10",
		PeriodStart: time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		Status:      model.DigestStatusPublished,
		CreatedBy:   "u1",
	}
	created, err := st.CreateDigest(ctx, d)
	require.NoError(t, err)
	require.True(t, created)

	flags := []model.EvidenceFlag{{DigestID: d.ID, Theme: "graded activity for low back pain", ConfidenceScore: 88}}
	require.NoError(t, st.CreateFlags(ctx, flags))
	return flags[0].ID
}

func TestHealthEndpoint(t *testing.T) {
	ts, _, _ := setupTestServer(t, &fakeCompleter{})

	resp, body := call(t, ts, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestMonitoringEndpoint(t *testing.T) {
	ts, st, _ := setupTestServer(t, &fakeCompleter{})
	ctx := context.Background()

	src := &model.Source{Name: "feed", URL: "https://example.org/rss", Approved: true, AutoIngest: true}
	require.NoError(t, st.UpsertSource(ctx, src))
	_, err := st.CreateJob(ctx, src.ID, "u1")
	require.NoError(t, err)

	resp, body := call(t, ts, http.MethodGet, "/api/monitoring", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Snapshot monitoring.MetricsSnapshot `json:"snapshot"`
		Alerts   []monitoring.Alert         `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, 1, out.Snapshot.JobsTotal)
	assert.Equal(t, 1, out.Snapshot.JobsPending)
	assert.Equal(t, 24, out.Snapshot.LookbackHours)
	assert.NotNil(t, out.Alerts)
	assert.Empty(t, out.Alerts)
}

func TestMutationsRequireUser(t *testing.T) {
	ts, _, _ := setupTestServer(t, &fakeCompleter{})

	resp, body := call(t, ts, http.MethodPost, "/api/ingest/schedule", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, string(body), userHeader)
}

func TestReadEndpointsDegradeToEmpty(t *testing.T) {
	ts, _, _ := setupTestServer(t, &fakeCompleter{})

	for _, path := range []string{
		"/api/sources",
		"/api/proposals",
		"/api/pilots",
		"/api/flags",
		"/api/contradictions",
		"/api/learnings?q=rtw",
		"/api/pilots/overdue",
		"/api/decisions/none/plans",
	} {
		resp, body := call(t, ts, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.JSONEq(t, `[]`, string(body), path)
	}
}

func TestGetMissingIsNotFound(t *testing.T) {
	ts, _, _ := setupTestServer(t, &fakeCompleter{})

	resp, _ := call(t, ts, http.MethodGet, "/api/proposals/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = call(t, ts, http.MethodPost, "/api/flags/missing/proposal", "u1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestProposalLifecycle(t *testing.T) {
	ts, st, _ := setupTestServer(t, &fakeCompleter{})
	flagID := seedFlag(t, st)

	resp, body := call(t, ts, http.MethodPost, "/api/flags/"+flagID+"/proposal", "analyst", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var p model.PracticeTranslation
	require.NoError(t, json.Unmarshal(body, &p))
	assert.Equal(t, model.ProposalStatusGenerated, p.Status)
	assert.Equal(t, "analyst", p.CreatedBy)

	// The flag was consumed.
	resp, _ = call(t, ts, http.MethodPost, "/api/flags/"+flagID+"/proposal", "analyst", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Approval before routing is a precondition failure.
	resp, _ = call(t, ts, http.MethodPost, "/api/proposals/"+p.ID+"/approve", "cco", map[string]string{"rationale": "ok"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = call(t, ts, http.MethodPost, "/api/proposals/"+p.ID+"/route", "analyst", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = call(t, ts, http.MethodPost, "/api/proposals/"+p.ID+"/approve", "cco", map[string]string{"rationale": "strong evidence"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"changed":true}`, string(body))

	resp, _ = call(t, ts, http.MethodPost, "/api/proposals/"+p.ID+"/reject", "cco", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = call(t, ts, http.MethodGet, "/api/proposals?status=approved", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var listed []model.PracticeTranslation
	require.NoError(t, json.Unmarshal(body, &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, p.ID, listed[0].ID)
}

func TestProposalViewers(t *testing.T) {
	ts, st, srv := setupTestServer(t, &fakeCompleter{})
	flagID := seedFlag(t, st)
	resp, body := call(t, ts, http.MethodPost, "/api/flags/"+flagID+"/proposal", "analyst", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var p model.PracticeTranslation
	require.NoError(t, json.Unmarshal(body, &p))

	resp, _ = call(t, ts, http.MethodPost, "/api/proposals/missing/viewers", "cco", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	call(t, ts, http.MethodPost, "/api/proposals/"+p.ID+"/viewers", "cco", nil)
	call(t, ts, http.MethodPost, "/api/proposals/"+p.ID+"/viewers", "analyst", nil)

	resp, body = call(t, ts, http.MethodGet, "/api/proposals/"+p.ID+"/viewers", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var viewers []presence.Viewer
	require.NoError(t, json.Unmarshal(body, &viewers))
	require.Len(t, viewers, 2)
	assert.Equal(t, "analyst", viewers[0].UserID)

	resp, body = call(t, ts, http.MethodDelete, "/api/proposals/"+p.ID+"/viewers", "analyst", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &viewers))
	require.Len(t, viewers, 1)
	assert.Equal(t, "cco", viewers[0].UserID)
	assert.Equal(t, 1, srv.Presence().Len())
}

func TestPilotEndpoints(t *testing.T) {
	ts, st, _ := setupTestServer(t, &fakeCompleter{})
	ctx := context.Background()

	prop := &model.PracticeTranslation{FlagID: "f", ChangeType: "clinical", Title: "t", Status: model.ProposalStatusApproved, CreatedBy: "u1"}
	require.NoError(t, st.CreateProposal(ctx, prop))

	resp, _ := call(t, ts, http.MethodPost, "/api/pilots", "ops", map[string]any{"proposal_id": prop.ID, "site_ids": []string{}, "duration_days": 30})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body := call(t, ts, http.MethodPost, "/api/pilots", "ops", map[string]any{"proposal_id": prop.ID, "site_ids": []string{"s1", "s2"}, "duration_days": 30})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var p model.PracticePilot
	require.NoError(t, json.Unmarshal(body, &p))
	assert.Equal(t, model.PilotStatusPlanned, p.Status)

	// Starting before metrics are locked fails.
	resp, _ = call(t, ts, http.MethodPost, "/api/pilots/"+p.ID+"/start", "ops", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = call(t, ts, http.MethodPost, "/api/metrics", "ops", map[string]any{"site_id": "", "metric": "days_to_rtw", "value": 3})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = call(t, ts, http.MethodPost, "/api/metrics", "ops", map[string]any{"site_id": "s1", "metric": "days_to_rtw", "value": 21.5})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = call(t, ts, http.MethodGet, "/api/pilots/"+p.ID, "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestExecutePhaseValidatesPhase(t *testing.T) {
	ts, _, _ := setupTestServer(t, &fakeCompleter{})

	resp, _ := call(t, ts, http.MethodPost, "/api/rollout/phases/4/execute", "ops", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := call(t, ts, http.MethodPost, "/api/rollout/phases/1/execute", "ops", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"activated":0}`, string(body))
}

func TestSynthesizeValidation(t *testing.T) {
	ts, _, _ := setupTestServer(t, &fakeCompleter{})

	resp, _ := call(t, ts, http.MethodPost, "/api/syntheses", "u1", map[string]string{"query": " "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// No papers ingested yet.
	resp, _ = call(t, ts, http.MethodPost, "/api/syntheses", "u1", map[string]string{"query": "graded activity"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAgentUpstreamFailureIsBadGateway(t *testing.T) {
	gen := &fakeCompleter{text: "RECOMMENDATION: ok\nCONFIDENCE SCORE: 70"}
	ts, _, _ := setupTestServer(t, gen)

	resp, body := call(t, ts, http.MethodPost, "/api/agents", "owner", map[string]any{"name": "reviewer", "system_prompt": "Review evidence."})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var a model.Agent
	require.NoError(t, json.Unmarshal(body, &a))

	resp, _ = call(t, ts, http.MethodPost, "/api/agents/"+a.ID+"/executions", "someone-else", map[string]string{"input": "x"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = call(t, ts, http.MethodPost, "/api/agents/"+a.ID+"/executions", "owner", map[string]string{"input": "summarize"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	gen.err = &textgen.UpstreamError{Err: errors.New("overloaded")}
	resp, _ = call(t, ts, http.MethodPost, "/api/agents/"+a.ID+"/executions", "owner", map[string]string{"input": "summarize"})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	resp, body = call(t, ts, http.MethodGet, "/api/agents/"+a.ID+"/executions", "owner", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var history []model.AgentExecution
	require.NoError(t, json.Unmarshal(body, &history))
	assert.Len(t, history, 1)
}

func TestCreateAgentValidation(t *testing.T) {
	ts, _, _ := setupTestServer(t, &fakeCompleter{})

	resp, _ := call(t, ts, http.MethodPost, "/api/agents", "owner", map[string]any{"name": "x", "system_prompt": "y", "temperature": 1.5})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLearningsExport(t *testing.T) {
	ts, _, _ := setupTestServer(t, &fakeCompleter{})

	resp, body := call(t, ts, http.MethodGet, "/api/learnings/export.xlsx", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "spreadsheetml")
	assert.NotEmpty(t, body)
}

func TestInvalidJSONBody(t *testing.T) {
	ts, _, _ := setupTestServer(t, &fakeCompleter{})

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/pilots", bytes.NewBufferString("{"))
	require.NoError(t, err)
	req.Header.Set(userHeader, "ops")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
