package store

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/evidence-cli/internal/model"
)

const decisionColumns = `id, pilot_id, attribution_id, decision, rationale, timeline, learning_stored,
	decided_by, decided_at`

func scanDecision(row scannable) (*model.RolloutDecision, error) {
	var d model.RolloutDecision
	var timeline []byte
	err := row.Scan(&d.ID, &d.PilotID, &d.AttributionID, &d.Decision, &d.Rationale, &timeline,
		&d.LearningStored, &d.DecidedBy, &d.DecidedAt)
	if err != nil {
		return nil, err
	}
	if err := fromJSON(timeline, &d.Timeline); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *sqlStore) CreateDecision(ctx context.Context, d *model.RolloutDecision) error {
	if d.ID == "" {
		d.ID = newID()
	}
	if d.DecidedAt.IsZero() {
		d.DecidedAt = time.Now().UTC()
	}
	timeline, err := toJSON(nonNil(d.Timeline))
	if err != nil {
		return err
	}
	_, err = s.q.exec(ctx,
		`INSERT INTO rollout_decisions (`+decisionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.PilotID, d.AttributionID, string(d.Decision), d.Rationale, timeline,
		d.LearningStored, d.DecidedBy, d.DecidedAt,
	)
	return eris.Wrapf(err, "store: insert decision for pilot %s", d.PilotID)
}

func (s *sqlStore) GetDecision(ctx context.Context, id string) (*model.RolloutDecision, error) {
	d, err := scanDecision(s.q.queryRow(ctx, `SELECT `+decisionColumns+` FROM rollout_decisions WHERE id = ?`, id))
	if isNoRows(err) {
		return nil, notFound("decision", id)
	}
	return d, eris.Wrapf(err, "store: get decision %s", id)
}

func (s *sqlStore) ListDecisions(ctx context.Context, pilotID string) ([]model.RolloutDecision, error) {
	query := `SELECT ` + decisionColumns + ` FROM rollout_decisions`
	var args []any
	if pilotID != "" {
		query += ` WHERE pilot_id = ?`
		args = append(args, pilotID)
	}
	query += ` ORDER BY decided_at DESC`

	rows, err := s.q.query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: list decisions")
	}
	return collect(rows, scanDecision)
}

// --- Site plans ---

var sitePlanCopyColumns = []string{
	"id", "decision_id", "site_id", "plan_type", "phase", "phase_name", "scheduled_start", "status",
}

func prepareSitePlans(plans []model.SitePlan) {
	for i := range plans {
		p := &plans[i]
		if p.ID == "" {
			p.ID = newID()
		}
		if p.Status == "" {
			p.Status = model.PlanStatusScheduled
		}
	}
}

func sitePlanRow(p *model.SitePlan) []any {
	return []any{p.ID, p.DecisionID, p.SiteID, string(p.PlanType), p.Phase, p.PhaseName, p.ScheduledStart, string(p.Status)}
}

// InsertSitePlans writes plans row by row in one transaction. The Postgres
// store overrides it with COPY.
func (s *sqlStore) InsertSitePlans(ctx context.Context, plans []model.SitePlan) (int64, error) {
	if len(plans) == 0 {
		return 0, nil
	}
	prepareSitePlans(plans)

	var total int64
	err := s.inTx(ctx, func(q querier) error {
		for i := range plans {
			n, err := q.exec(ctx,
				`INSERT INTO site_plans (`+strings.Join(sitePlanCopyColumns, ", ")+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				sitePlanRow(&plans[i])...,
			)
			if err != nil {
				return eris.Wrapf(err, "store: insert site plan for %s", plans[i].SiteID)
			}
			total += n
		}
		return nil
	})
	return total, err
}

func (s *sqlStore) ListSitePlans(ctx context.Context, decisionID string, planType model.PlanType) ([]model.SitePlan, error) {
	query := `SELECT id, decision_id, site_id, plan_type, phase, phase_name, scheduled_start, status, activated_at
		FROM site_plans WHERE decision_id = ?`
	args := []any{decisionID}
	if planType != "" {
		query += ` AND plan_type = ?`
		args = append(args, string(planType))
	}
	query += ` ORDER BY phase, site_id`

	rows, err := s.q.query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "store: list site plans for %s", decisionID)
	}
	return collect(rows, func(row scannable) (*model.SitePlan, error) {
		var p model.SitePlan
		err := row.Scan(&p.ID, &p.DecisionID, &p.SiteID, &p.PlanType, &p.Phase, &p.PhaseName,
			&p.ScheduledStart, &p.Status, &p.ActivatedAt)
		if err != nil {
			return nil, err
		}
		return &p, nil
	})
}

// ActivatePhasePlans moves every due, scheduled rollout plan of the given
// phase to implementing.
func (s *sqlStore) ActivatePhasePlans(ctx context.Context, phase int, now time.Time) (int64, error) {
	n, err := s.q.exec(ctx,
		`UPDATE site_plans SET status = ?, activated_at = ?
		WHERE plan_type = ? AND phase = ? AND status = ? AND scheduled_start <= ?`,
		string(model.PlanStatusImplementing), now,
		string(model.PlanTypeRollout), phase, string(model.PlanStatusScheduled), now,
	)
	return n, eris.Wrapf(err, "store: activate phase %d", phase)
}

// ActivateRollbackPlans moves every scheduled rollback plan of a decision to
// active, regardless of its scheduled start.
func (s *sqlStore) ActivateRollbackPlans(ctx context.Context, decisionID string, now time.Time) (int64, error) {
	n, err := s.q.exec(ctx,
		`UPDATE site_plans SET status = ?, activated_at = ?
		WHERE decision_id = ? AND plan_type = ? AND status = ?`,
		string(model.PlanStatusActive), now,
		decisionID, string(model.PlanTypeRollback), string(model.PlanStatusScheduled),
	)
	return n, eris.Wrapf(err, "store: activate rollback for %s", decisionID)
}

// --- Learning records ---

const learningColumns = `id, decision_id, decision, findings, lessons, contexts, searchable, created_by, created_at`

func scanLearning(row scannable) (*model.LearningRecord, error) {
	var l model.LearningRecord
	var findings, lessons, contexts []byte
	err := row.Scan(&l.ID, &l.DecisionID, &l.Decision, &findings, &lessons, &contexts,
		&l.Searchable, &l.CreatedBy, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	for _, f := range []struct {
		raw []byte
		dst any
	}{
		{findings, &l.Findings},
		{lessons, &l.Lessons},
		{contexts, &l.Contexts},
	} {
		if err := fromJSON(f.raw, f.dst); err != nil {
			return nil, err
		}
	}
	return &l, nil
}

func (s *sqlStore) CreateLearning(ctx context.Context, l *model.LearningRecord) error {
	return insertLearning(ctx, s.q, l)
}

// StoreLearning flips the decision's learning_stored flag and inserts the
// record in one transaction. It returns false when a learning was already
// stored for the decision.
func (s *sqlStore) StoreLearning(ctx context.Context, l *model.LearningRecord) (bool, error) {
	stored := false
	err := s.inTx(ctx, func(q querier) error {
		n, err := q.exec(ctx,
			`UPDATE rollout_decisions SET learning_stored = ? WHERE id = ? AND learning_stored = ?`,
			true, l.DecisionID, false,
		)
		if err != nil {
			return eris.Wrapf(err, "store: mark learning stored for %s", l.DecisionID)
		}
		if n == 0 {
			return nil
		}
		if err := insertLearning(ctx, q, l); err != nil {
			return err
		}
		stored = true
		return nil
	})
	return stored, err
}

func insertLearning(ctx context.Context, q querier, l *model.LearningRecord) error {
	if l.ID == "" {
		l.ID = newID()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	findings, err := toJSON(l.Findings)
	if err != nil {
		return err
	}
	lessons, err := toJSON(nonNil(l.Lessons))
	if err != nil {
		return err
	}
	contexts, err := toJSON(nonNil(l.Contexts))
	if err != nil {
		return err
	}
	lessonsText := strings.ToLower(strings.Join(append([]string{l.Findings.Summary}, l.Lessons...), "\n"))

	_, err = q.exec(ctx,
		`INSERT INTO learning_records (id, decision_id, decision, findings, lessons, lessons_text, contexts,
			searchable, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.DecisionID, string(l.Decision), findings, lessons, lessonsText, contexts,
		l.Searchable, l.CreatedBy, l.CreatedAt,
	)
	return eris.Wrapf(err, "store: insert learning for decision %s", l.DecisionID)
}

func (s *sqlStore) GetLearningByDecision(ctx context.Context, decisionID string) (*model.LearningRecord, error) {
	l, err := scanLearning(s.q.queryRow(ctx,
		`SELECT `+learningColumns+` FROM learning_records WHERE decision_id = ?`, decisionID))
	if isNoRows(err) {
		return nil, notFound("learning for decision", decisionID)
	}
	return l, eris.Wrapf(err, "store: get learning for %s", decisionID)
}

// SearchLearnings matches query case-insensitively against the summary and
// lessons of searchable records. An empty query lists the most recent.
func (s *sqlStore) SearchLearnings(ctx context.Context, query string, limit int) ([]model.LearningRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	sqlQuery := `SELECT ` + learningColumns + ` FROM learning_records WHERE searchable = ?`
	args := []any{true}
	if q := strings.TrimSpace(query); q != "" {
		sqlQuery += ` AND lessons_text LIKE ?`
		args = append(args, "%"+strings.ToLower(q)+"%")
	}
	sqlQuery += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.q.query(ctx, sqlQuery, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: search learnings")
	}
	return collect(rows, scanLearning)
}
