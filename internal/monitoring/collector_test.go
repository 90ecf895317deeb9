package monitoring

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/evidence-cli/internal/config"
	"github.com/sells-group/evidence-cli/internal/model"
	"github.com/sells-group/evidence-cli/internal/pilot"
	"github.com/sells-group/evidence-cli/internal/store"
)

type fakeJobs struct {
	jobs []model.IngestionJob
	err  error
}

func (f *fakeJobs) ListJobs(_ context.Context, _ store.JobFilter) ([]model.IngestionJob, error) {
	return f.jobs, f.err
}

type fakePilots struct {
	reports []pilot.OverdueReport
	err     error
}

func (f *fakePilots) CheckPilotCompletion(_ context.Context, _ time.Time) ([]pilot.OverdueReport, error) {
	return f.reports, f.err
}

type fakeContradictions struct{ n int }

func (f *fakeContradictions) ListUnresolved(_ context.Context) []model.EvidenceContradiction {
	return make([]model.EvidenceContradiction, f.n)
}

var collectNow = time.Date(2025, 3, 12, 12, 0, 0, 0, time.UTC)

func newTestCollector(jobs JobLister, pilots OverdueChecker, contradictions ContradictionLister) *Collector {
	c := NewCollector(jobs, pilots, contradictions)
	c.now = func() time.Time { return collectNow }
	return c
}

func TestCollector_Collect(t *testing.T) {
	recent := collectNow.Add(-2 * time.Hour)
	jobs := &fakeJobs{jobs: []model.IngestionJob{
		{ID: "j1", Status: model.JobStatusCompleted, ScheduledAt: recent, PapersIngested: 12, PapersRejected: 3},
		{ID: "j2", Status: model.JobStatusCompleted, ScheduledAt: recent, PapersIngested: 4},
		{ID: "j3", Status: model.JobStatusFailed, ScheduledAt: recent},
		{ID: "j4", Status: model.JobStatusPending, ScheduledAt: recent},
		{ID: "j5", Status: model.JobStatusRunning, ScheduledAt: recent},
		{ID: "old", Status: model.JobStatusFailed, ScheduledAt: collectNow.Add(-48 * time.Hour)},
	}}
	pilots := &fakePilots{reports: []pilot.OverdueReport{{PilotID: "p1"}, {PilotID: "p2"}}}

	snap, err := newTestCollector(jobs, pilots, &fakeContradictions{n: 7}).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 5, snap.JobsTotal)
	assert.Equal(t, 2, snap.JobsCompleted)
	assert.Equal(t, 1, snap.JobsFailed)
	assert.Equal(t, 1, snap.JobsPending)
	assert.Equal(t, 1, snap.JobsRunning)
	assert.InDelta(t, 1.0/3.0, snap.JobFailRate, 0.0001)
	assert.Equal(t, 16, snap.PapersIngested)
	assert.Equal(t, 3, snap.PapersRejected)
	assert.Equal(t, 2, snap.OverduePilots)
	assert.Equal(t, []string{"p1", "p2"}, snap.OverduePilotIDs)
	assert.Equal(t, 7, snap.UnresolvedContradictions)
	assert.Equal(t, 24, snap.LookbackHours)
	assert.Equal(t, collectNow, snap.CollectedAt)
}

func TestCollector_Collect_NoFinishedJobs(t *testing.T) {
	snap, err := newTestCollector(&fakeJobs{}, nil, nil).Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Zero(t, snap.JobsTotal)
	assert.Zero(t, snap.JobFailRate)
	assert.Zero(t, snap.OverduePilots)
}

func TestCollector_Collect_Errors(t *testing.T) {
	_, err := newTestCollector(&fakeJobs{err: errors.New("db down")}, nil, nil).Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: list jobs")

	_, err = newTestCollector(&fakeJobs{}, &fakePilots{err: errors.New("db down")}, nil).Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: check pilots")
}

func TestChecker_Check(t *testing.T) {
	collector := newTestCollector(&fakeJobs{}, &fakePilots{reports: []pilot.OverdueReport{{PilotID: "p1"}}}, nil)
	checker := NewChecker(collector, NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{LookbackWindowHours: 24})

	snap, alerts := checker.Check(context.Background())
	require.NotNil(t, snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertOverduePilots, alerts[0].Type)
}

func TestChecker_Check_CollectError(t *testing.T) {
	collector := newTestCollector(&fakeJobs{err: errors.New("db down")}, nil, nil)
	checker := NewChecker(collector, NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{})

	snap, alerts := checker.Check(context.Background())
	assert.Nil(t, snap)
	assert.Nil(t, alerts)
}

func TestChecker_RunStopsOnCancel(t *testing.T) {
	checker := NewChecker(newTestCollector(&fakeJobs{}, nil, nil), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{
		CheckIntervalSecs:   1,
		LookbackWindowHours: 24,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_DefaultInterval(t *testing.T) {
	checker := NewChecker(newTestCollector(&fakeJobs{}, nil, nil), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
}

func TestChecker_Snapshot(t *testing.T) {
	var hits int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	collector := newTestCollector(&fakeJobs{}, &fakePilots{reports: []pilot.OverdueReport{{PilotID: "p1"}}}, nil)
	checker := NewChecker(collector, NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL}), config.MonitoringConfig{LookbackWindowHours: 24})

	snap, alerts, err := checker.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, snap.OverduePilots)
	assert.Len(t, alerts, 1)
	assert.Zero(t, hits)
}
