package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/evidence-cli/internal/model"
)

const proposalColumns = `id, flag_id, change_type, title, description, proposed_change, expected_outcomes,
	affected_areas, confidence_score, implementation_complexity, risk_assessment, status,
	created_by, created_at, updated_at, reviewed_by, reviewed_at, review_rationale`

func scanProposal(row scannable) (*model.PracticeTranslation, error) {
	var p model.PracticeTranslation
	var change, outcomes, areas, risk []byte
	err := row.Scan(&p.ID, &p.FlagID, &p.ChangeType, &p.Title, &p.Description, &change, &outcomes,
		&areas, &p.ConfidenceScore, &p.Complexity, &risk, &p.Status,
		&p.CreatedBy, &p.CreatedAt, &p.UpdatedAt, &p.ReviewedBy, &p.ReviewedAt, &p.ReviewRationale)
	if err != nil {
		return nil, err
	}
	for _, f := range []struct {
		raw []byte
		dst any
	}{
		{change, &p.ProposedChange},
		{outcomes, &p.ExpectedOutcomes},
		{areas, &p.AffectedAreas},
		{risk, &p.Risk},
	} {
		if err := fromJSON(f.raw, f.dst); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

func (s *sqlStore) CreateProposal(ctx context.Context, p *model.PracticeTranslation) error {
	now := time.Now().UTC()
	if p.ID == "" {
		p.ID = newID()
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Status == "" {
		p.Status = model.ProposalStatusGenerated
	}

	change, err := toJSON(p.ProposedChange)
	if err != nil {
		return err
	}
	outcomes, err := toJSON(nonNil(p.ExpectedOutcomes))
	if err != nil {
		return err
	}
	areas, err := toJSON(nonNil(p.AffectedAreas))
	if err != nil {
		return err
	}
	risk, err := toJSON(p.Risk)
	if err != nil {
		return err
	}

	_, err = s.q.exec(ctx,
		`INSERT INTO practice_translations (id, flag_id, change_type, title, description, proposed_change,
			expected_outcomes, affected_areas, confidence_score, implementation_complexity, risk_assessment,
			status, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.FlagID, p.ChangeType, p.Title, p.Description, change,
		outcomes, areas, p.ConfidenceScore, string(p.Complexity), risk,
		string(p.Status), p.CreatedBy, p.CreatedAt, p.UpdatedAt,
	)
	return eris.Wrap(err, "store: insert proposal")
}

func (s *sqlStore) GetProposal(ctx context.Context, id string) (*model.PracticeTranslation, error) {
	p, err := scanProposal(s.q.queryRow(ctx, `SELECT `+proposalColumns+` FROM practice_translations WHERE id = ?`, id))
	if isNoRows(err) {
		return nil, notFound("proposal", id)
	}
	return p, eris.Wrapf(err, "store: get proposal %s", id)
}

func (s *sqlStore) ListProposals(ctx context.Context, status model.ProposalStatus) ([]model.PracticeTranslation, error) {
	query := `SELECT ` + proposalColumns + ` FROM practice_translations`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.q.query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: list proposals")
	}
	return collect(rows, scanProposal)
}

func (s *sqlStore) RouteProposal(ctx context.Context, proposalID string, approval *model.ApprovalRecord) (bool, error) {
	if approval.ID == "" {
		approval.ID = newID()
	}
	if approval.RequestedAt.IsZero() {
		approval.RequestedAt = time.Now().UTC()
	}
	approval.ProposalID = proposalID
	approval.Status = model.ApprovalPending

	routed := false
	err := s.inTx(ctx, func(q querier) error {
		n, err := q.exec(ctx,
			`UPDATE practice_translations SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			string(model.ProposalStatusAwaitingReview), approval.RequestedAt, proposalID,
			string(model.ProposalStatusGenerated),
		)
		if err != nil {
			return eris.Wrapf(err, "store: route proposal %s", proposalID)
		}
		if n == 0 {
			return nil
		}
		_, err = q.exec(ctx,
			`INSERT INTO approval_records (id, proposal_id, reviewer_role, requested_by, status, requested_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			approval.ID, proposalID, approval.ReviewerRole, approval.RequestedBy,
			string(approval.Status), approval.RequestedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "store: insert approval for %s", proposalID)
		}
		routed = true
		return nil
	})
	return routed, err
}

func (s *sqlStore) GetPendingApproval(ctx context.Context, proposalID string) (*model.ApprovalRecord, error) {
	var a model.ApprovalRecord
	err := s.q.queryRow(ctx,
		`SELECT id, proposal_id, reviewer_role, requested_by, status, reviewer_id, rationale, requested_at, decided_at
		FROM approval_records WHERE proposal_id = ? AND status = ?
		ORDER BY requested_at DESC LIMIT 1`,
		proposalID, string(model.ApprovalPending),
	).Scan(&a.ID, &a.ProposalID, &a.ReviewerRole, &a.RequestedBy, &a.Status, &a.ReviewerID,
		&a.Rationale, &a.RequestedAt, &a.DecidedAt)
	if isNoRows(err) {
		return nil, notFound("pending approval for proposal", proposalID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: get approval for %s", proposalID)
	}
	return &a, nil
}

func (s *sqlStore) DecideProposal(ctx context.Context, proposalID string, status model.ProposalStatus, reviewerID, rationale string, at time.Time) (bool, error) {
	approvalStatus := model.ApprovalApproved
	if status == model.ProposalStatusRejected {
		approvalStatus = model.ApprovalRejected
	}

	decided := false
	err := s.inTx(ctx, func(q querier) error {
		n, err := q.exec(ctx,
			`UPDATE approval_records SET status = ?, reviewer_id = ?, rationale = ?, decided_at = ?
			WHERE proposal_id = ? AND status = ?`,
			string(approvalStatus), reviewerID, rationale, at, proposalID, string(model.ApprovalPending),
		)
		if err != nil {
			return eris.Wrapf(err, "store: decide approval for %s", proposalID)
		}
		if n == 0 {
			return nil
		}
		n, err = q.exec(ctx,
			`UPDATE practice_translations SET status = ?, reviewed_by = ?, reviewed_at = ?,
				review_rationale = ?, updated_at = ?
			WHERE id = ? AND status = ?`,
			string(status), reviewerID, at, rationale, at, proposalID,
			string(model.ProposalStatusAwaitingReview),
		)
		if err != nil {
			return eris.Wrapf(err, "store: decide proposal %s", proposalID)
		}
		if n == 0 {
			return eris.Errorf("store: proposal %s is not awaiting review", proposalID)
		}
		decided = true
		return nil
	})
	return decided, err
}
