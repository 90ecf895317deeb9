package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/evidence-cli/internal/model"
)

const pilotColumns = `id, proposal_id, site_ids, start_date, end_date, duration_days, baseline_metrics,
	locked_metrics, status, started_at, ended_at, created_by, created_at, updated_at`

func scanPilot(row scannable) (*model.PracticePilot, error) {
	var p model.PracticePilot
	var siteIDs, baseline, locked []byte
	err := row.Scan(&p.ID, &p.ProposalID, &siteIDs, &p.StartDate, &p.EndDate, &p.DurationDays, &baseline,
		&locked, &p.Status, &p.StartedAt, &p.EndedAt, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := fromJSON(siteIDs, &p.SiteIDs); err != nil {
		return nil, err
	}
	if err := fromJSON(baseline, &p.Baseline); err != nil {
		return nil, err
	}
	if len(locked) > 0 {
		p.LockedMetrics = &model.LockedMetrics{}
		if err := fromJSON(locked, p.LockedMetrics); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

func (s *sqlStore) CreatePilot(ctx context.Context, p *model.PracticePilot) error {
	now := time.Now().UTC()
	if p.ID == "" {
		p.ID = newID()
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Status == "" {
		p.Status = model.PilotStatusPlanned
	}
	siteIDs, err := toJSON(nonNil(p.SiteIDs))
	if err != nil {
		return err
	}
	baseline := p.Baseline
	if baseline == nil {
		baseline = model.SiteMetrics{}
	}
	baselineJSON, err := toJSON(baseline)
	if err != nil {
		return err
	}

	_, err = s.q.exec(ctx,
		`INSERT INTO practice_pilots (id, proposal_id, site_ids, start_date, end_date, duration_days,
			baseline_metrics, status, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ProposalID, siteIDs, p.StartDate, p.EndDate, p.DurationDays,
		baselineJSON, string(p.Status), p.CreatedBy, p.CreatedAt, p.UpdatedAt,
	)
	return eris.Wrap(err, "store: insert pilot")
}

func (s *sqlStore) GetPilot(ctx context.Context, id string) (*model.PracticePilot, error) {
	p, err := scanPilot(s.q.queryRow(ctx, `SELECT `+pilotColumns+` FROM practice_pilots WHERE id = ?`, id))
	if isNoRows(err) {
		return nil, notFound("pilot", id)
	}
	return p, eris.Wrapf(err, "store: get pilot %s", id)
}

func (s *sqlStore) ListPilots(ctx context.Context, status model.PilotStatus) ([]model.PracticePilot, error) {
	query := `SELECT ` + pilotColumns + ` FROM practice_pilots`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.q.query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: list pilots")
	}
	return collect(rows, scanPilot)
}

// LockPilotMetrics writes the success criteria only if none are locked yet.
func (s *sqlStore) LockPilotMetrics(ctx context.Context, id string, m *model.LockedMetrics) (bool, error) {
	locked, err := toJSON(m)
	if err != nil {
		return false, err
	}
	n, err := s.q.exec(ctx,
		`UPDATE practice_pilots SET locked_metrics = ?, status = ?, updated_at = ?
		WHERE id = ? AND locked_metrics IS NULL AND status = ?`,
		locked, string(model.PilotStatusMetricsLocked), m.LockedAt, id, string(model.PilotStatusPlanned),
	)
	if err != nil {
		return false, eris.Wrapf(err, "store: lock metrics for pilot %s", id)
	}
	return n == 1, nil
}

// StartPilot activates a metrics-locked pilot and records its site assignments.
func (s *sqlStore) StartPilot(ctx context.Context, id string, at time.Time, assignments []model.SiteAssignment) (bool, error) {
	started := false
	err := s.inTx(ctx, func(q querier) error {
		n, err := q.exec(ctx,
			`UPDATE practice_pilots SET status = ?, started_at = ?, updated_at = ?
			WHERE id = ? AND status = ? AND locked_metrics IS NOT NULL`,
			string(model.PilotStatusActive), at, at, id, string(model.PilotStatusMetricsLocked),
		)
		if err != nil {
			return eris.Wrapf(err, "store: start pilot %s", id)
		}
		if n == 0 {
			return nil
		}
		for i := range assignments {
			a := &assignments[i]
			if a.ID == "" {
				a.ID = newID()
			}
			a.PilotID = id
			a.AssignedAt = at
			if a.Status == "" {
				a.Status = model.AssignmentActive
			}
			_, err := q.exec(ctx,
				`INSERT INTO pilot_site_assignments (id, pilot_id, site_id, status, assigned_at)
				VALUES (?, ?, ?, ?, ?)`,
				a.ID, a.PilotID, a.SiteID, string(a.Status), a.AssignedAt,
			)
			if err != nil {
				return eris.Wrapf(err, "store: assign site %s", a.SiteID)
			}
		}
		started = true
		return nil
	})
	return started, err
}

// EndPilot moves an active pilot to a terminal status and closes its assignments.
func (s *sqlStore) EndPilot(ctx context.Context, id string, status model.PilotStatus, at time.Time) (bool, error) {
	ended := false
	err := s.inTx(ctx, func(q querier) error {
		n, err := q.exec(ctx,
			`UPDATE practice_pilots SET status = ?, ended_at = ?, updated_at = ?
			WHERE id = ? AND status = ?`,
			string(status), at, at, id, string(model.PilotStatusActive),
		)
		if err != nil {
			return eris.Wrapf(err, "store: end pilot %s", id)
		}
		if n == 0 {
			return nil
		}
		_, err = q.exec(ctx,
			`UPDATE pilot_site_assignments SET status = ?, completed_at = ?
			WHERE pilot_id = ? AND status = ?`,
			string(model.AssignmentCompleted), at, id, string(model.AssignmentActive),
		)
		if err != nil {
			return eris.Wrapf(err, "store: complete assignments for %s", id)
		}
		ended = true
		return nil
	})
	return ended, err
}

func (s *sqlStore) ListSiteAssignments(ctx context.Context, pilotID string) ([]model.SiteAssignment, error) {
	rows, err := s.q.query(ctx,
		`SELECT id, pilot_id, site_id, status, assigned_at, completed_at
		FROM pilot_site_assignments WHERE pilot_id = ? ORDER BY site_id`, pilotID)
	if err != nil {
		return nil, eris.Wrapf(err, "store: list assignments for %s", pilotID)
	}
	return collect(rows, func(row scannable) (*model.SiteAssignment, error) {
		var a model.SiteAssignment
		if err := row.Scan(&a.ID, &a.PilotID, &a.SiteID, &a.Status, &a.AssignedAt, &a.CompletedAt); err != nil {
			return nil, err
		}
		return &a, nil
	})
}

func (s *sqlStore) RecordMetric(ctx context.Context, m *model.MetricObservation) error {
	if m.ID == "" {
		m.ID = newID()
	}
	if m.ObservedAt.IsZero() {
		m.ObservedAt = time.Now().UTC()
	}
	_, err := s.q.exec(ctx,
		`INSERT INTO metric_observations (id, site_id, metric, value, observed_at) VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.SiteID, m.Metric, m.Value, m.ObservedAt,
	)
	return eris.Wrapf(err, "store: record %s for site %s", m.Metric, m.SiteID)
}

// SiteMetricAverages returns the mean of each metric observed for a site in [from, before).
func (s *sqlStore) SiteMetricAverages(ctx context.Context, siteID string, from, before time.Time) (map[string]float64, error) {
	rows, err := s.q.query(ctx,
		`SELECT metric, AVG(value) FROM metric_observations
		WHERE site_id = ? AND observed_at >= ? AND observed_at < ?
		GROUP BY metric ORDER BY metric`,
		siteID, from, before,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "store: metric averages for %s", siteID)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var metric string
		var avg float64
		if err := rows.Scan(&metric, &avg); err != nil {
			return nil, eris.Wrap(err, "store: scan metric average")
		}
		out[metric] = avg
	}
	return out, eris.Wrap(rows.Err(), "store: iterate metric averages")
}
