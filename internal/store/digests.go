package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/evidence-cli/internal/model"
)

const digestColumns = `id, period_key, period_start, period_end, status, high_confidence_changes,
	moderate_confidence_changes, papers_reviewed, synthesis_count, themes, major_themes,
	created_by, created_at, published_at, published_by`

func scanDigest(row scannable) (*model.EvidenceDigest, error) {
	var d model.EvidenceDigest
	var themes, major []byte
	err := row.Scan(&d.ID, &d.PeriodKey, &d.PeriodStart, &d.PeriodEnd, &d.Status, &d.HighConfidenceChanges,
		&d.ModerateConfidenceChanges, &d.PapersReviewed, &d.SynthesisCount, &themes, &major,
		&d.CreatedBy, &d.CreatedAt, &d.PublishedAt, &d.PublishedBy)
	if err != nil {
		return nil, err
	}
	if err := fromJSON(themes, &d.Themes); err != nil {
		return nil, err
	}
	if err := fromJSON(major, &d.MajorThemes); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *sqlStore) CreateDigest(ctx context.Context, d *model.EvidenceDigest) (bool, error) {
	if d.ID == "" {
		d.ID = newID()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	if d.Status == "" {
		d.Status = model.DigestStatusDraft
	}
	themes, err := toJSON(nonNil(d.Themes))
	if err != nil {
		return false, err
	}
	major, err := toJSON(nonNil(d.MajorThemes))
	if err != nil {
		return false, err
	}

	n, err := s.q.exec(ctx,
		`INSERT INTO evidence_digests (id, period_key, period_start, period_end, status,
			high_confidence_changes, moderate_confidence_changes, papers_reviewed, synthesis_count,
			themes, major_themes, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (period_key) DO NOTHING`,
		d.ID, d.PeriodKey, d.PeriodStart, d.PeriodEnd, string(d.Status),
		d.HighConfidenceChanges, d.ModerateConfidenceChanges, d.PapersReviewed, d.SynthesisCount,
		themes, major, d.CreatedBy, d.CreatedAt,
	)
	if err != nil {
		return false, eris.Wrapf(err, "store: insert digest %s", d.PeriodKey)
	}
	return n == 1, nil
}

func (s *sqlStore) GetDigest(ctx context.Context, id string) (*model.EvidenceDigest, error) {
	d, err := scanDigest(s.q.queryRow(ctx, `SELECT `+digestColumns+` FROM evidence_digests WHERE id = ?`, id))
	if isNoRows(err) {
		return nil, notFound("digest", id)
	}
	return d, eris.Wrapf(err, "store: get digest %s", id)
}

func (s *sqlStore) GetDigestByPeriod(ctx context.Context, periodKey string) (*model.EvidenceDigest, error) {
	d, err := scanDigest(s.q.queryRow(ctx, `SELECT `+digestColumns+` FROM evidence_digests WHERE period_key = ?`, periodKey))
	if isNoRows(err) {
		return nil, notFound("digest for period", periodKey)
	}
	return d, eris.Wrapf(err, "store: get digest for period %s", periodKey)
}

func (s *sqlStore) PreviousPublishedDigest(ctx context.Context, periodKey string) (*model.EvidenceDigest, error) {
	d, err := scanDigest(s.q.queryRow(ctx,
		`SELECT `+digestColumns+` FROM evidence_digests
		WHERE status = ? AND period_key < ?
		ORDER BY period_key DESC LIMIT 1`,
		string(model.DigestStatusPublished), periodKey,
	))
	if isNoRows(err) {
		return nil, nil
	}
	return d, eris.Wrapf(err, "store: previous digest before %s", periodKey)
}

func (s *sqlStore) ListDigests(ctx context.Context, limit int) ([]model.EvidenceDigest, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.q.query(ctx,
		`SELECT `+digestColumns+` FROM evidence_digests ORDER BY period_key DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "store: list digests")
	}
	return collect(rows, scanDigest)
}

// PublishDigest moves a draft digest to published and inserts its flags in
// the same transaction. It returns false when the digest is not a draft.
func (s *sqlStore) PublishDigest(ctx context.Context, id, publishedBy string, at time.Time, flags []model.EvidenceFlag) (bool, error) {
	published := false
	err := s.inTx(ctx, func(q querier) error {
		n, err := q.exec(ctx,
			`UPDATE evidence_digests SET status = ?, published_at = ?, published_by = ?
			WHERE id = ? AND status = ?`,
			string(model.DigestStatusPublished), at, publishedBy, id, string(model.DigestStatusDraft),
		)
		if err != nil {
			return eris.Wrapf(err, "store: publish digest %s", id)
		}
		if n == 0 {
			return nil
		}
		if err := insertFlags(ctx, q, flags); err != nil {
			return err
		}
		published = true
		return nil
	})
	return published, err
}

// --- Flags ---

const flagColumns = `id, digest_id, theme, confidence_score, state, created_at, processed_at`

func scanFlag(row scannable) (*model.EvidenceFlag, error) {
	var f model.EvidenceFlag
	if err := row.Scan(&f.ID, &f.DigestID, &f.Theme, &f.ConfidenceScore, &f.State, &f.CreatedAt, &f.ProcessedAt); err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *sqlStore) CreateFlags(ctx context.Context, flags []model.EvidenceFlag) error {
	if len(flags) == 0 {
		return nil
	}
	return s.inTx(ctx, func(q querier) error {
		return insertFlags(ctx, q, flags)
	})
}

func insertFlags(ctx context.Context, q querier, flags []model.EvidenceFlag) error {
	for i := range flags {
		f := &flags[i]
		if f.ID == "" {
			f.ID = newID()
		}
		if f.CreatedAt.IsZero() {
			f.CreatedAt = time.Now().UTC()
		}
		if f.State == "" {
			f.State = model.FlagStateActionable
		}
		_, err := q.exec(ctx,
			`INSERT INTO evidence_flags (id, digest_id, theme, confidence_score, state, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			f.ID, f.DigestID, f.Theme, f.ConfidenceScore, string(f.State), f.CreatedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "store: insert flag %q", f.Theme)
		}
	}
	return nil
}

func (s *sqlStore) GetFlag(ctx context.Context, id string) (*model.EvidenceFlag, error) {
	f, err := scanFlag(s.q.queryRow(ctx, `SELECT `+flagColumns+` FROM evidence_flags WHERE id = ?`, id))
	if isNoRows(err) {
		return nil, notFound("flag", id)
	}
	return f, eris.Wrapf(err, "store: get flag %s", id)
}

func (s *sqlStore) ListFlags(ctx context.Context, state model.FlagState) ([]model.EvidenceFlag, error) {
	query := `SELECT ` + flagColumns + ` FROM evidence_flags`
	var args []any
	if state != "" {
		query += ` WHERE state = ?`
		args = append(args, string(state))
	}
	query += ` ORDER BY confidence_score DESC, created_at`

	rows, err := s.q.query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: list flags")
	}
	return collect(rows, scanFlag)
}

func (s *sqlStore) MarkFlagProcessed(ctx context.Context, id string, at time.Time) (bool, error) {
	n, err := s.q.exec(ctx,
		`UPDATE evidence_flags SET state = ?, processed_at = ? WHERE id = ? AND state = ?`,
		string(model.FlagStateProcessed), at, id, string(model.FlagStateActionable),
	)
	if err != nil {
		return false, eris.Wrapf(err, "store: mark flag %s processed", id)
	}
	return n == 1, nil
}
