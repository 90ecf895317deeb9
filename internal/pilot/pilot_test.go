package pilot

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/evidence-cli/internal/model"
	"github.com/sells-group/evidence-cli/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "pilot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

type fakeMetrics struct {
	mu    sync.Mutex
	calls map[string]int
	data  map[string]map[string]float64
}

func (f *fakeMetrics) SiteMetrics(_ context.Context, siteID string, _ time.Time) (map[string]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[siteID]++
	m, ok := f.data[siteID]
	if !ok {
		return nil, errors.New("site offline")
	}
	return m, nil
}

func seedProposal(t *testing.T, st store.Store, status model.ProposalStatus) string {
	t.Helper()
	p := &model.PracticeTranslation{
		FlagID:     "flag-1",
		ChangeType: "clinical",
		Title:      "Clinical practice change: graded exercise",
		Status:     status,
		CreatedBy:  "u1",
	}
	require.NoError(t, st.CreateProposal(context.Background(), p))
	return p.ID
}

var fixedNow = time.Date(2025, 3, 12, 15, 30, 0, 0, time.UTC)

func newManager(st Store, src MetricsSource) *Manager {
	m := NewManager(st, src, Options{BaselineConcurrency: 2})
	m.now = func() time.Time { return fixedNow }
	return m
}

func TestDefinePilot(t *testing.T) {
	st := newTestStore(t)
	src := &fakeMetrics{data: map[string]map[string]float64{
		"site-a": {model.MetricDaysToRTW: 30, model.MetricVisitsPerCase: 10},
		"site-b": {model.MetricDaysToRTW: 40},
	}}
	m := newManager(st, src)
	ctx := context.Background()
	proposalID := seedProposal(t, st, model.ProposalStatusApproved)

	p, err := m.DefinePilot(ctx, proposalID, []string{"site-a", "site-b", "site-c", "site-a"}, 60, "u1")
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.Equal(t, []string{"site-a", "site-b", "site-c"}, p.SiteIDs)
	assert.Equal(t, time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC), p.StartDate)
	assert.Equal(t, time.Date(2025, 5, 11, 0, 0, 0, 0, time.UTC), p.EndDate)
	assert.Equal(t, model.PilotStatusPlanned, p.Status)
	assert.Len(t, p.Baseline, 2)
	assert.NotContains(t, p.Baseline, "site-c")
	for _, site := range p.SiteIDs {
		assert.Equal(t, 1, src.calls[site])
	}

	stored, err := st.GetPilot(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 30.0, stored.Baseline["site-a"][model.MetricDaysToRTW])
}

func TestDefinePilot_Preconditions(t *testing.T) {
	st := newTestStore(t)
	m := newManager(st, &fakeMetrics{})
	ctx := context.Background()

	p, err := m.DefinePilot(ctx, seedProposal(t, st, model.ProposalStatusAwaitingReview), []string{"s"}, 30, "u1")
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = m.DefinePilot(ctx, seedProposal(t, st, model.ProposalStatusApproved), nil, 30, "u1")
	require.NoError(t, err)
	assert.Nil(t, p)

	_, err = m.DefinePilot(ctx, "missing", []string{"s"}, 30, "u1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func definedPilot(t *testing.T, st *store.SQLiteStore, m *Manager) string {
	t.Helper()
	src := &fakeMetrics{data: map[string]map[string]float64{
		"site-a": {model.MetricDaysToRTW: 30},
		"site-b": {model.MetricDaysToRTW: 40},
	}}
	m.metrics = src
	p, err := m.DefinePilot(context.Background(), seedProposal(t, st, model.ProposalStatusApproved),
		[]string{"site-a", "site-b"}, 30, "u1")
	require.NoError(t, err)
	require.NotNil(t, p)
	return p.ID
}

func TestLockSuccessMetrics_SingleUse(t *testing.T) {
	st := newTestStore(t)
	m := newManager(st, nil)
	ctx := context.Background()
	id := definedPilot(t, st, m)

	ok, err := m.LockSuccessMetrics(ctx, id, LockRequest{SecondaryOutcomes: []string{"pain"}}, "u1")
	require.NoError(t, err)
	assert.True(t, ok)

	p, err := st.GetPilot(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, p.LockedMetrics)
	assert.Equal(t, model.PilotStatusMetricsLocked, p.Status)
	assert.Equal(t, 15.0, p.LockedMetrics.SuccessThreshold)
	assert.Equal(t, 5.0, p.LockedMetrics.AcceptableThreshold)
	assert.Equal(t, -5.0, p.LockedMetrics.FailureThreshold)
	assert.Equal(t, model.MetricDaysToRTW, p.LockedMetrics.PrimaryOutcome)
	assert.Equal(t, "u1", p.LockedMetrics.LockedBy)

	ok, err = m.LockSuccessMetrics(ctx, id, LockRequest{SuccessThreshold: pct(50)}, "u2")
	require.NoError(t, err)
	assert.False(t, ok)

	p, err = st.GetPilot(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 15.0, p.LockedMetrics.SuccessThreshold)
	assert.Equal(t, "u1", p.LockedMetrics.LockedBy)
}

func pct(v float64) *float64 { return &v }

func TestLockSuccessMetrics_ExplicitZeroKept(t *testing.T) {
	st := newTestStore(t)
	m := newManager(st, nil)
	ctx := context.Background()
	id := definedPilot(t, st, m)

	req := LockRequest{
		SuccessThreshold:    pct(8),
		AcceptableThreshold: pct(0),
		FailureThreshold:    pct(0),
	}
	ok, err := m.LockSuccessMetrics(ctx, id, req, "u1")
	require.NoError(t, err)
	require.True(t, ok)

	p, err := st.GetPilot(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, p.LockedMetrics)
	assert.Equal(t, 8.0, p.LockedMetrics.SuccessThreshold)
	assert.Zero(t, p.LockedMetrics.AcceptableThreshold)
	assert.Zero(t, p.LockedMetrics.FailureThreshold)
}

func TestLockRequest_Metrics(t *testing.T) {
	m := LockRequest{}.Metrics()
	assert.Equal(t, 15.0, m.SuccessThreshold)
	assert.Equal(t, 5.0, m.AcceptableThreshold)
	assert.Equal(t, -5.0, m.FailureThreshold)
	assert.Equal(t, model.MetricDaysToRTW, m.PrimaryOutcome)
	assert.Equal(t, "weekly", m.MonitoringCadence)

	var req LockRequest
	require.NoError(t, json.Unmarshal([]byte(`{"acceptable_threshold":0,"monitoring_cadence":"daily"}`), &req))
	m = req.Metrics()
	assert.Equal(t, 15.0, m.SuccessThreshold)
	assert.Zero(t, m.AcceptableThreshold)
	assert.Equal(t, -5.0, m.FailureThreshold)
	assert.Equal(t, "daily", m.MonitoringCadence)
}

func TestLockSuccessMetrics_Rejections(t *testing.T) {
	st := newTestStore(t)
	m := newManager(st, &fakeMetrics{})
	ctx := context.Background()

	// No site reported a baseline.
	empty, err := m.DefinePilot(ctx, seedProposal(t, st, model.ProposalStatusApproved), []string{"x"}, 30, "u1")
	require.NoError(t, err)
	ok, err := m.LockSuccessMetrics(ctx, empty.ID, LockRequest{}, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	id := definedPilot(t, st, m)
	ok, err = m.LockSuccessMetrics(ctx, id, LockRequest{SuccessThreshold: pct(2), AcceptableThreshold: pct(8)}, "u1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPilotLifecycle(t *testing.T) {
	st := newTestStore(t)
	m := newManager(st, nil)
	ctx := context.Background()
	id := definedPilot(t, st, m)

	ok, err := m.StartPilot(ctx, id, "u1")
	require.NoError(t, err)
	assert.False(t, ok, "start requires locked metrics")

	ok, err = m.LockSuccessMetrics(ctx, id, LockRequest{}, "u1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = m.EndPilot(ctx, id, model.PilotStatusCompleted, "u1")
	require.NoError(t, err)
	assert.False(t, ok, "only active pilots end")

	ok, err = m.StartPilot(ctx, id, "u1")
	require.NoError(t, err)
	assert.True(t, ok)

	assignments, err := st.ListSiteAssignments(ctx, id)
	require.NoError(t, err)
	require.Len(t, assignments, 2)
	for _, a := range assignments {
		assert.Equal(t, model.AssignmentActive, a.Status)
	}

	ok, err = m.EndPilot(ctx, id, model.PilotStatusActive, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = m.EndPilot(ctx, id, model.PilotStatusRolledBack, "u1")
	require.NoError(t, err)
	assert.True(t, ok)

	p, err := st.GetPilot(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.PilotStatusRolledBack, p.Status)
	assert.NotNil(t, p.EndedAt)

	assignments, err = st.ListSiteAssignments(ctx, id)
	require.NoError(t, err)
	for _, a := range assignments {
		assert.Equal(t, model.AssignmentCompleted, a.Status)
		assert.NotNil(t, a.CompletedAt)
	}
}

func TestCheckPilotCompletion(t *testing.T) {
	st := newTestStore(t)
	m := newManager(st, nil)
	ctx := context.Background()
	id := definedPilot(t, st, m)

	ok, err := m.LockSuccessMetrics(ctx, id, LockRequest{}, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = m.StartPilot(ctx, id, "u1")
	require.NoError(t, err)
	require.True(t, ok)

	// Ends 2025-04-11.
	reports, err := m.CheckPilotCompletion(ctx, time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, reports)

	reports, err = m.CheckPilotCompletion(ctx, time.Date(2025, 4, 14, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, id, reports[0].PilotID)
	assert.Equal(t, 3, reports[0].DaysOverdue)

	p, err := st.GetPilot(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.PilotStatusActive, p.Status)
}

func TestStoreMetrics(t *testing.T) {
	st := newTestStore(t)
	src := NewStoreMetrics(st, 7*24*time.Hour)
	ctx := context.Background()
	asOf := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	for _, obs := range []struct {
		metric string
		value  float64
		at     time.Time
	}{
		{model.MetricDaysToRTW, 20, asOf.Add(-24 * time.Hour)},
		{model.MetricDaysToRTW, 30, asOf.Add(-48 * time.Hour)},
		{model.MetricDaysToRTW, 90, asOf.Add(-10 * 24 * time.Hour)},
		{model.MetricVisitsPerCase, 8, asOf},
	} {
		_, err := src.Record(ctx, "site-a", obs.metric, obs.value, obs.at)
		require.NoError(t, err)
	}

	got, err := src.SiteMetrics(ctx, "site-a", asOf)
	require.NoError(t, err)
	assert.InDelta(t, 25.0, got[model.MetricDaysToRTW], 0.001)
	assert.InDelta(t, 8.0, got[model.MetricVisitsPerCase], 0.001)

	_, err = src.Record(ctx, "", "m", 1, asOf)
	assert.Error(t, err)

	captured := CaptureMetrics(ctx, src, []string{"site-a", "site-b"}, asOf, 2)
	assert.Len(t, captured, 1)
	assert.Contains(t, captured, "site-a")
}
