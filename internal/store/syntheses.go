package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/evidence-cli/internal/model"
)

const synthesisColumns = `id, query, summary, confidence_score, evidence_quality, consensus_level,
	recommendation, rationale, risks, paper_ids, version, created_by, created_at, updated_at, published_at`

func scanSynthesis(row scannable) (*model.EvidenceSynthesis, error) {
	var s model.EvidenceSynthesis
	var risks, paperIDs []byte
	err := row.Scan(&s.ID, &s.Query, &s.Summary, &s.ConfidenceScore, &s.EvidenceQuality, &s.ConsensusLevel,
		&s.Recommendation, &s.Rationale, &risks, &paperIDs, &s.Version, &s.CreatedBy,
		&s.CreatedAt, &s.UpdatedAt, &s.PublishedAt)
	if err != nil {
		return nil, err
	}
	if err := fromJSON(risks, &s.Risks); err != nil {
		return nil, err
	}
	if err := fromJSON(paperIDs, &s.PaperIDs); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *sqlStore) CreateSynthesis(ctx context.Context, syn *model.EvidenceSynthesis) error {
	now := time.Now().UTC()
	if syn.ID == "" {
		syn.ID = newID()
	}
	if syn.Version == 0 {
		syn.Version = 1
	}
	if syn.CreatedAt.IsZero() {
		syn.CreatedAt = now
	}
	syn.UpdatedAt = syn.CreatedAt
	if syn.PublishedAt.IsZero() {
		syn.PublishedAt = syn.CreatedAt
	}
	risks, err := toJSON(nonNil(syn.Risks))
	if err != nil {
		return err
	}
	paperIDs, err := toJSON(nonNil(syn.PaperIDs))
	if err != nil {
		return err
	}

	_, err = s.q.exec(ctx,
		`INSERT INTO evidence_syntheses (`+synthesisColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		syn.ID, syn.Query, syn.Summary, syn.ConfidenceScore, string(syn.EvidenceQuality), syn.ConsensusLevel,
		syn.Recommendation, syn.Rationale, risks, paperIDs, syn.Version, syn.CreatedBy,
		syn.CreatedAt, syn.UpdatedAt, syn.PublishedAt,
	)
	return eris.Wrap(err, "store: insert synthesis")
}

func (s *sqlStore) GetSynthesis(ctx context.Context, id string) (*model.EvidenceSynthesis, error) {
	syn, err := scanSynthesis(s.q.queryRow(ctx, `SELECT `+synthesisColumns+` FROM evidence_syntheses WHERE id = ?`, id))
	if isNoRows(err) {
		return nil, notFound("synthesis", id)
	}
	return syn, eris.Wrapf(err, "store: get synthesis %s", id)
}

func (s *sqlStore) ReviseSynthesis(ctx context.Context, syn *model.EvidenceSynthesis, v *model.SynthesisVersion) error {
	risks, err := toJSON(nonNil(syn.Risks))
	if err != nil {
		return err
	}
	paperIDs, err := toJSON(nonNil(syn.PaperIDs))
	if err != nil {
		return err
	}
	snapshot, err := toJSON(v.Snapshot)
	if err != nil {
		return err
	}
	diff, err := toJSON(nonNil(v.Diff))
	if err != nil {
		return err
	}
	if v.ID == "" {
		v.ID = newID()
	}

	return s.inTx(ctx, func(q querier) error {
		n, err := q.exec(ctx,
			`UPDATE evidence_syntheses SET summary = ?, confidence_score = ?, evidence_quality = ?,
				consensus_level = ?, recommendation = ?, rationale = ?, risks = ?, paper_ids = ?,
				version = ?, updated_at = ?
			WHERE id = ? AND version = ?`,
			syn.Summary, syn.ConfidenceScore, string(syn.EvidenceQuality), syn.ConsensusLevel,
			syn.Recommendation, syn.Rationale, risks, paperIDs, syn.Version, syn.UpdatedAt,
			syn.ID, syn.Version-1,
		)
		if err != nil {
			return eris.Wrapf(err, "store: update synthesis %s", syn.ID)
		}
		if n == 0 {
			return eris.Errorf("store: synthesis %s is not at version %d", syn.ID, syn.Version-1)
		}

		_, err = q.exec(ctx,
			`INSERT INTO synthesis_versions (id, synthesis_id, version, parent_version_id, snapshot, diff, edited_by, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			v.ID, v.SynthesisID, v.Version, v.ParentVersionID, snapshot, diff, v.EditedBy, v.CreatedAt,
		)
		return eris.Wrapf(err, "store: insert synthesis version %d", v.Version)
	})
}

func scanSynthesisVersion(row scannable) (*model.SynthesisVersion, error) {
	var v model.SynthesisVersion
	var snapshot, diff []byte
	err := row.Scan(&v.ID, &v.SynthesisID, &v.Version, &v.ParentVersionID, &snapshot, &diff, &v.EditedBy, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := fromJSON(snapshot, &v.Snapshot); err != nil {
		return nil, err
	}
	if err := fromJSON(diff, &v.Diff); err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *sqlStore) ListSynthesisVersions(ctx context.Context, synthesisID string) ([]model.SynthesisVersion, error) {
	rows, err := s.q.query(ctx,
		`SELECT id, synthesis_id, version, parent_version_id, snapshot, diff, edited_by, created_at
		FROM synthesis_versions WHERE synthesis_id = ? ORDER BY version`, synthesisID)
	if err != nil {
		return nil, eris.Wrapf(err, "store: list versions for %s", synthesisID)
	}
	return collect(rows, scanSynthesisVersion)
}

func (s *sqlStore) ListPublishedSyntheses(ctx context.Context, from, before time.Time) ([]model.EvidenceSynthesis, error) {
	rows, err := s.q.query(ctx,
		`SELECT `+synthesisColumns+` FROM evidence_syntheses
		WHERE published_at >= ? AND published_at < ? ORDER BY published_at`, from, before)
	if err != nil {
		return nil, eris.Wrap(err, "store: list published syntheses")
	}
	return collect(rows, scanSynthesis)
}
