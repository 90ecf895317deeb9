package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/evidence-cli/internal/model"
)

const contradictionColumns = `id, paper_a_id, paper_b_id, contradiction_type, confidence, clinical_impact,
	status, notes, detected_by, resolved_by, created_at, updated_at, resolved_at`

func scanContradiction(row scannable) (*model.EvidenceContradiction, error) {
	var c model.EvidenceContradiction
	err := row.Scan(&c.ID, &c.PaperAID, &c.PaperBID, &c.Type, &c.Confidence, &c.ClinicalImpact,
		&c.Status, &c.Notes, &c.DetectedBy, &c.ResolvedBy, &c.CreatedAt, &c.UpdatedAt, &c.ResolvedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *sqlStore) CreateContradiction(ctx context.Context, c *model.EvidenceContradiction) error {
	now := time.Now().UTC()
	if c.ID == "" {
		c.ID = newID()
	}
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.Status == "" {
		c.Status = model.ContradictionUnresolved
	}
	_, err := s.q.exec(ctx,
		`INSERT INTO evidence_contradictions (id, paper_a_id, paper_b_id, contradiction_type, confidence,
			clinical_impact, status, notes, detected_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.PaperAID, c.PaperBID, c.Type, c.Confidence, c.ClinicalImpact,
		string(c.Status), c.Notes, c.DetectedBy, c.CreatedAt, c.UpdatedAt,
	)
	return eris.Wrapf(err, "store: insert contradiction %s/%s", c.PaperAID, c.PaperBID)
}

// ContradictionExists reports whether the pair was recorded in either order.
func (s *sqlStore) ContradictionExists(ctx context.Context, paperA, paperB string) (bool, error) {
	var n int
	err := s.q.queryRow(ctx,
		`SELECT COUNT(*) FROM evidence_contradictions
		WHERE (paper_a_id = ? AND paper_b_id = ?) OR (paper_a_id = ? AND paper_b_id = ?)`,
		paperA, paperB, paperB, paperA,
	).Scan(&n)
	if err != nil {
		return false, eris.Wrap(err, "store: check contradiction")
	}
	return n > 0, nil
}

func (s *sqlStore) GetContradiction(ctx context.Context, id string) (*model.EvidenceContradiction, error) {
	c, err := scanContradiction(s.q.queryRow(ctx,
		`SELECT `+contradictionColumns+` FROM evidence_contradictions WHERE id = ?`, id))
	if isNoRows(err) {
		return nil, notFound("contradiction", id)
	}
	return c, eris.Wrapf(err, "store: get contradiction %s", id)
}

func (s *sqlStore) UpdateContradictionStatus(ctx context.Context, id string, status model.ContradictionStatus, notes, userID string, resolvedAt *time.Time) (bool, error) {
	n, err := s.q.exec(ctx,
		`UPDATE evidence_contradictions SET status = ?, notes = ?, resolved_by = ?, resolved_at = ?, updated_at = ?
		WHERE id = ?`,
		string(status), notes, userID, resolvedAt, time.Now().UTC(), id,
	)
	if err != nil {
		return false, eris.Wrapf(err, "store: update contradiction %s", id)
	}
	return n == 1, nil
}

func (s *sqlStore) ListContradictions(ctx context.Context, status model.ContradictionStatus) ([]model.EvidenceContradiction, error) {
	query := `SELECT ` + contradictionColumns + ` FROM evidence_contradictions`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.q.query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: list contradictions")
	}
	return collect(rows, scanContradiction)
}
