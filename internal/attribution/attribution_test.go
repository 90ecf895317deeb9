package attribution

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/evidence-cli/internal/model"
	"github.com/sells-group/evidence-cli/internal/store"
)

type staticMetrics map[string]map[string]float64

func (s staticMetrics) SiteMetrics(_ context.Context, siteID string, _ time.Time) (map[string]float64, error) {
	return s[siteID], nil
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "attribution.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seedPilot(t *testing.T, st store.Store, baseline model.SiteMetrics) *model.PracticePilot {
	t.Helper()
	ctx := context.Background()
	prop := &model.PracticeTranslation{FlagID: "f", ChangeType: "clinical", Title: "t", Status: model.ProposalStatusApproved, CreatedBy: "u1"}
	require.NoError(t, st.CreateProposal(ctx, prop))

	p := &model.PracticePilot{
		ProposalID:   prop.ID,
		SiteIDs:      []string{"a", "b"},
		StartDate:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:      time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		DurationDays: 59,
		Baseline:     baseline,
		CreatedBy:    "u1",
	}
	require.NoError(t, st.CreatePilot(ctx, p))
	return p
}

func TestAttributeOutcomes(t *testing.T) {
	st := newTestStore(t)
	p := seedPilot(t, st, model.SiteMetrics{
		"a": {model.MetricDaysToRTW: 40},
		"b": {model.MetricDaysToRTW: 20},
	})
	now := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	e := NewEngine(st, staticMetrics{
		"a": {model.MetricDaysToRTW: 30},
		"b": {model.MetricDaysToRTW: 19},
	}, 2)
	e.now = func() time.Time { return now }
	ctx := context.Background()

	a, err := e.AttributeOutcomes(ctx, p.ID, "syn-1", "sop-v2", "u1")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.InDelta(t, 15.0, a.OverallImprovement, 1e-9)
	assert.True(t, a.StatisticallySignificant)
	assert.Equal(t, model.AttributionPreliminary, a.Status)
	assert.True(t, p.StartDate.Equal(a.WindowStart))
	assert.True(t, now.Equal(a.WindowEnd))

	stored, err := st.GetAttribution(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "sop-v2", stored.SOPVersion)
	assert.InDelta(t, a.ConfidenceInterval.Lower, stored.ConfidenceInterval.Lower, 1e-9)

	ok, err := e.FinalizeAttribution(ctx, a.ID, "ops")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.FinalizeAttribution(ctx, a.ID, "ops")
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err = st.GetAttribution(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AttributionFinal, stored.Status)
	assert.Equal(t, "ops", stored.FinalizedBy)
}

func TestAttributeOutcomes_NoBaseline(t *testing.T) {
	st := newTestStore(t)
	p := seedPilot(t, st, nil)
	e := NewEngine(st, staticMetrics{}, 1)

	a, err := e.AttributeOutcomes(context.Background(), p.ID, "", "", "u1")
	require.NoError(t, err)
	assert.Nil(t, a)

	_, err = e.AttributeOutcomes(context.Background(), "missing", "", "", "u1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
