package store

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/evidence-cli/internal/model"
)

func newID() string {
	return uuid.New().String()
}

func (s *sqlStore) UpsertSource(ctx context.Context, src *model.Source) error {
	now := time.Now().UTC()
	if src.ID == "" {
		src.ID = newID()
	}
	if src.Format == "" {
		src.Format = model.SourceFormatRSS
	}

	row := s.q.queryRow(ctx,
		`INSERT INTO sources (id, name, url, format, approved, auto_ingest, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			url = excluded.url,
			format = excluded.format,
			approved = excluded.approved,
			auto_ingest = excluded.auto_ingest,
			updated_at = excluded.updated_at
		RETURNING id, created_at`,
		src.ID, src.Name, src.URL, string(src.Format), src.Approved, src.AutoIngest, now, now,
	)
	if err := row.Scan(&src.ID, &src.CreatedAt); err != nil {
		return eris.Wrapf(err, "store: upsert source %s", src.Name)
	}
	src.UpdatedAt = now
	return nil
}

const sourceColumns = `id, name, url, format, approved, auto_ingest, created_at, updated_at`

func scanSource(row scannable) (*model.Source, error) {
	var src model.Source
	err := row.Scan(&src.ID, &src.Name, &src.URL, &src.Format, &src.Approved, &src.AutoIngest, &src.CreatedAt, &src.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &src, nil
}

func (s *sqlStore) GetSource(ctx context.Context, id string) (*model.Source, error) {
	src, err := scanSource(s.q.queryRow(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = ?`, id))
	if isNoRows(err) {
		return nil, notFound("source", id)
	}
	return src, eris.Wrapf(err, "store: get source %s", id)
}

func (s *sqlStore) ListSources(ctx context.Context, filter SourceFilter) ([]model.Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM sources`
	var conds []string
	var args []any
	if filter.Approved != nil {
		conds = append(conds, "approved = ?")
		args = append(args, *filter.Approved)
	}
	if filter.AutoIngest != nil {
		conds = append(conds, "auto_ingest = ?")
		args = append(args, *filter.AutoIngest)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY name"

	rows, err := s.q.query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: list sources")
	}
	return collect(rows, scanSource)
}

func (s *sqlStore) UpsertPriority(ctx context.Context, p *model.ResearchPriority) error {
	now := time.Now().UTC()
	if p.ID == "" {
		p.ID = newID()
	}
	keywords, err := toJSON(p.Keywords)
	if err != nil {
		return err
	}

	row := s.q.queryRow(ctx,
		`INSERT INTO research_priorities (id, name, category, keywords, active, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			category = excluded.category,
			keywords = excluded.keywords,
			active = excluded.active,
			updated_at = excluded.updated_at
		RETURNING id`,
		p.ID, p.Name, string(p.Category), keywords, p.Active, now,
	)
	if err := row.Scan(&p.ID); err != nil {
		return eris.Wrapf(err, "store: upsert priority %s", p.Name)
	}
	p.UpdatedAt = now
	return nil
}

func scanPriority(row scannable) (*model.ResearchPriority, error) {
	var p model.ResearchPriority
	var keywords []byte
	if err := row.Scan(&p.ID, &p.Name, &p.Category, &keywords, &p.Active, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if err := fromJSON(keywords, &p.Keywords); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *sqlStore) ListActivePriorities(ctx context.Context) ([]model.ResearchPriority, error) {
	rows, err := s.q.query(ctx,
		`SELECT id, name, category, keywords, active, updated_at
		FROM research_priorities WHERE active = ? ORDER BY name`, true)
	if err != nil {
		return nil, eris.Wrap(err, "store: list priorities")
	}
	return collect(rows, scanPriority)
}

// --- Ingestion jobs ---

const jobColumns = `id, source_id, status, scheduled_at, started_at, completed_at,
	papers_found, papers_ingested, papers_rejected, quality_score, error_message, created_by`

func scanJob(row scannable) (*model.IngestionJob, error) {
	var j model.IngestionJob
	err := row.Scan(&j.ID, &j.SourceID, &j.Status, &j.ScheduledAt, &j.StartedAt, &j.CompletedAt,
		&j.PapersFound, &j.PapersIngested, &j.PapersRejected, &j.QualityScore, &j.ErrorMessage, &j.CreatedBy)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *sqlStore) CreateJob(ctx context.Context, sourceID, createdBy string) (*model.IngestionJob, error) {
	job := &model.IngestionJob{
		ID:          newID(),
		SourceID:    sourceID,
		Status:      model.JobStatusPending,
		ScheduledAt: time.Now().UTC(),
		CreatedBy:   createdBy,
	}
	_, err := s.q.exec(ctx,
		`INSERT INTO ingestion_jobs (id, source_id, status, scheduled_at, created_by) VALUES (?, ?, ?, ?, ?)`,
		job.ID, job.SourceID, string(job.Status), job.ScheduledAt, job.CreatedBy,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "store: insert job for source %s", sourceID)
	}
	return job, nil
}

func (s *sqlStore) GetJob(ctx context.Context, id string) (*model.IngestionJob, error) {
	j, err := scanJob(s.q.queryRow(ctx, `SELECT `+jobColumns+` FROM ingestion_jobs WHERE id = ?`, id))
	if isNoRows(err) {
		return nil, notFound("ingestion job", id)
	}
	return j, eris.Wrapf(err, "store: get job %s", id)
}

func (s *sqlStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.IngestionJob, error) {
	query := `SELECT ` + jobColumns + ` FROM ingestion_jobs`
	var conds []string
	var args []any
	if filter.SourceID != "" {
		conds = append(conds, "source_id = ?")
		args = append(args, filter.SourceID)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY scheduled_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.q.query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: list jobs")
	}
	return collect(rows, scanJob)
}

func (s *sqlStore) HasRunningJob(ctx context.Context, sourceID string) (bool, error) {
	var n int
	err := s.q.queryRow(ctx,
		`SELECT COUNT(*) FROM ingestion_jobs WHERE source_id = ? AND status = ?`,
		sourceID, string(model.JobStatusRunning),
	).Scan(&n)
	if err != nil {
		return false, eris.Wrapf(err, "store: count running jobs for %s", sourceID)
	}
	return n > 0, nil
}

func (s *sqlStore) StartJob(ctx context.Context, id string) (bool, error) {
	n, err := s.q.exec(ctx,
		`UPDATE ingestion_jobs SET status = ?, started_at = ?
		WHERE id = ? AND status = ?
		AND NOT EXISTS (
			SELECT 1 FROM ingestion_jobs r
			WHERE r.source_id = ingestion_jobs.source_id AND r.status = ?
		)`,
		string(model.JobStatusRunning), time.Now().UTC(), id,
		string(model.JobStatusPending), string(model.JobStatusRunning),
	)
	if err != nil {
		return false, eris.Wrapf(err, "store: start job %s", id)
	}
	return n == 1, nil
}

func (s *sqlStore) CompleteJob(ctx context.Context, id string, found, ingested, rejected int, quality float64) error {
	n, err := s.q.exec(ctx,
		`UPDATE ingestion_jobs SET status = ?, completed_at = ?, papers_found = ?,
			papers_ingested = ?, papers_rejected = ?, quality_score = ?
		WHERE id = ?`,
		string(model.JobStatusCompleted), time.Now().UTC(), found, ingested, rejected, quality, id,
	)
	if err != nil {
		return eris.Wrapf(err, "store: complete job %s", id)
	}
	if n == 0 {
		return notFound("ingestion job", id)
	}
	return nil
}

func (s *sqlStore) FailJob(ctx context.Context, id string, found, rejected int, message string) error {
	n, err := s.q.exec(ctx,
		`UPDATE ingestion_jobs SET status = ?, completed_at = ?, papers_found = ?,
			papers_rejected = ?, error_message = ?
		WHERE id = ?`,
		string(model.JobStatusFailed), time.Now().UTC(), found, rejected, message, id,
	)
	if err != nil {
		return eris.Wrapf(err, "store: fail job %s", id)
	}
	if n == 0 {
		return notFound("ingestion job", id)
	}
	return nil
}
