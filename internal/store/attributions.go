package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/evidence-cli/internal/model"
)

const attributionColumns = `id, pilot_id, evidence_id, sop_version, window_start, window_end, pre_metrics,
	post_metrics, site_improvements, metric_improvements, overall_improvement, statistically_significant,
	ci_lower, ci_upper, status, created_by, created_at, finalized_by, finalized_at`

func scanAttribution(row scannable) (*model.OutcomeAttribution, error) {
	var a model.OutcomeAttribution
	var pre, post, sites, metrics []byte
	err := row.Scan(&a.ID, &a.PilotID, &a.EvidenceID, &a.SOPVersion, &a.WindowStart, &a.WindowEnd, &pre,
		&post, &sites, &metrics, &a.OverallImprovement, &a.StatisticallySignificant,
		&a.ConfidenceInterval.Lower, &a.ConfidenceInterval.Upper, &a.Status, &a.CreatedBy, &a.CreatedAt,
		&a.FinalizedBy, &a.FinalizedAt)
	if err != nil {
		return nil, err
	}
	for _, f := range []struct {
		raw []byte
		dst any
	}{
		{pre, &a.PreMetrics},
		{post, &a.PostMetrics},
		{sites, &a.SiteImprovements},
		{metrics, &a.MetricImprovements},
	} {
		if err := fromJSON(f.raw, f.dst); err != nil {
			return nil, err
		}
	}
	return &a, nil
}

func (s *sqlStore) CreateAttribution(ctx context.Context, a *model.OutcomeAttribution) error {
	if a.ID == "" {
		a.ID = newID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.Status == "" {
		a.Status = model.AttributionPreliminary
	}

	var blobs [4][]byte
	for i, v := range []any{a.PreMetrics, a.PostMetrics, a.SiteImprovements, a.MetricImprovements} {
		b, err := toJSON(v)
		if err != nil {
			return err
		}
		blobs[i] = b
	}

	_, err := s.q.exec(ctx,
		`INSERT INTO outcome_attributions (id, pilot_id, evidence_id, sop_version, window_start, window_end,
			pre_metrics, post_metrics, site_improvements, metric_improvements, overall_improvement,
			statistically_significant, ci_lower, ci_upper, status, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.PilotID, a.EvidenceID, a.SOPVersion, a.WindowStart, a.WindowEnd,
		blobs[0], blobs[1], blobs[2], blobs[3], a.OverallImprovement,
		a.StatisticallySignificant, a.ConfidenceInterval.Lower, a.ConfidenceInterval.Upper,
		string(a.Status), a.CreatedBy, a.CreatedAt,
	)
	return eris.Wrapf(err, "store: insert attribution for pilot %s", a.PilotID)
}

func (s *sqlStore) GetAttribution(ctx context.Context, id string) (*model.OutcomeAttribution, error) {
	a, err := scanAttribution(s.q.queryRow(ctx,
		`SELECT `+attributionColumns+` FROM outcome_attributions WHERE id = ?`, id))
	if isNoRows(err) {
		return nil, notFound("attribution", id)
	}
	return a, eris.Wrapf(err, "store: get attribution %s", id)
}

func (s *sqlStore) ListAttributions(ctx context.Context, pilotID string) ([]model.OutcomeAttribution, error) {
	rows, err := s.q.query(ctx,
		`SELECT `+attributionColumns+` FROM outcome_attributions WHERE pilot_id = ? ORDER BY created_at DESC`,
		pilotID)
	if err != nil {
		return nil, eris.Wrapf(err, "store: list attributions for %s", pilotID)
	}
	return collect(rows, scanAttribution)
}

func (s *sqlStore) FinalizeAttribution(ctx context.Context, id, userID string, at time.Time) (bool, error) {
	n, err := s.q.exec(ctx,
		`UPDATE outcome_attributions SET status = ?, finalized_by = ?, finalized_at = ?
		WHERE id = ? AND status = ?`,
		string(model.AttributionFinal), userID, at, id, string(model.AttributionPreliminary),
	)
	if err != nil {
		return false, eris.Wrapf(err, "store: finalize attribution %s", id)
	}
	return n == 1, nil
}
