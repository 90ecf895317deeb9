package store

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/evidence-cli/internal/model"
)

const paperColumns = `id, source_id, job_id, title, authors, abstract, publication_date, doi, url,
	study_type, primary_outcome, sample_size, quality_score, completeness_score,
	clinical_relevance, operational_relevance, quality_tags, relevance_tags, status, ingested_at`

func scanPaper(row scannable) (*model.ResearchPaper, error) {
	var p model.ResearchPaper
	var authors, qualityTags, relevanceTags []byte
	err := row.Scan(&p.ID, &p.SourceID, &p.JobID, &p.Title, &authors, &p.Abstract, &p.PublicationDate,
		&p.DOI, &p.URL, &p.StudyType, &p.PrimaryOutcome, &p.SampleSize, &p.QualityScore,
		&p.CompletenessScore, &p.ClinicalRelevance, &p.OperationalRelevance,
		&qualityTags, &relevanceTags, &p.Status, &p.IngestedAt)
	if err != nil {
		return nil, err
	}
	if err := fromJSON(authors, &p.Authors); err != nil {
		return nil, err
	}
	if err := fromJSON(qualityTags, &p.QualityTags); err != nil {
		return nil, err
	}
	if err := fromJSON(relevanceTags, &p.RelevanceTags); err != nil {
		return nil, err
	}
	return &p, nil
}

// InsertPapers writes all papers in one transaction.
func (s *sqlStore) InsertPapers(ctx context.Context, papers []model.ResearchPaper) error {
	if len(papers) == 0 {
		return nil
	}
	return s.inTx(ctx, func(q querier) error {
		for i := range papers {
			p := &papers[i]
			if p.ID == "" {
				p.ID = newID()
			}
			if p.IngestedAt.IsZero() {
				p.IngestedAt = time.Now().UTC()
			}
			authors, err := toJSON(nonNil(p.Authors))
			if err != nil {
				return err
			}
			qualityTags, err := toJSON(nonNil(p.QualityTags))
			if err != nil {
				return err
			}
			relevanceTags, err := toJSON(nonNil(p.RelevanceTags))
			if err != nil {
				return err
			}
			_, err = q.exec(ctx,
				`INSERT INTO research_papers (`+paperColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				p.ID, p.SourceID, p.JobID, p.Title, authors, p.Abstract, p.PublicationDate, p.DOI, p.URL,
				p.StudyType, p.PrimaryOutcome, p.SampleSize, p.QualityScore, p.CompletenessScore,
				p.ClinicalRelevance, p.OperationalRelevance, qualityTags, relevanceTags,
				string(p.Status), p.IngestedAt,
			)
			if err != nil {
				return eris.Wrapf(err, "store: insert paper %q", p.Title)
			}
		}
		return nil
	})
}

func (s *sqlStore) GetPaper(ctx context.Context, id string) (*model.ResearchPaper, error) {
	p, err := scanPaper(s.q.queryRow(ctx, `SELECT `+paperColumns+` FROM research_papers WHERE id = ?`, id))
	if isNoRows(err) {
		return nil, notFound("paper", id)
	}
	return p, eris.Wrapf(err, "store: get paper %s", id)
}

func (s *sqlStore) ListPapers(ctx context.Context, filter PaperFilter) ([]model.ResearchPaper, error) {
	query := `SELECT ` + paperColumns + ` FROM research_papers`
	var conds []string
	var args []any
	if len(filter.IDs) > 0 {
		conds = append(conds, "id IN ("+placeholders(len(filter.IDs))+")")
		for _, id := range filter.IDs {
			args = append(args, id)
		}
	}
	if !filter.IngestedFrom.IsZero() {
		conds = append(conds, "ingested_at >= ?")
		args = append(args, filter.IngestedFrom)
	}
	if !filter.IngestedBefore.IsZero() {
		conds = append(conds, "ingested_at < ?")
		args = append(args, filter.IngestedBefore)
	}
	if filter.MinQuality > 0 {
		conds = append(conds, "quality_score >= ?")
		args = append(args, filter.MinQuality)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY quality_score DESC, ingested_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.q.query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: list papers")
	}
	return collect(rows, scanPaper)
}

func (s *sqlStore) CountPapers(ctx context.Context, from, before time.Time) (int, error) {
	var n int
	err := s.q.queryRow(ctx,
		`SELECT COUNT(*) FROM research_papers WHERE ingested_at >= ? AND ingested_at < ?`,
		from, before,
	).Scan(&n)
	return n, eris.Wrap(err, "store: count papers")
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
