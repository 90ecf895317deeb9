package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/evidence-cli/internal/db"
	"github.com/sells-group/evidence-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	*sqlStore
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return newPostgresStore(pool, pool.Close), nil
}

func newPostgresStore(pool db.Pool, closeFn func()) *PostgresStore {
	s := &PostgresStore{pool: pool, closeFn: closeFn}
	s.sqlStore = &sqlStore{
		q:    pgQuerier{conn: pool},
		inTx: s.inTx,
	}
	return s
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	if err := fn(pgQuerier{conn: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit tx")
}

// InsertSitePlans bulk-loads plan rows with COPY.
func (s *PostgresStore) InsertSitePlans(ctx context.Context, plans []model.SitePlan) (int64, error) {
	prepareSitePlans(plans)
	rows := make([][]any, 0, len(plans))
	for i := range plans {
		rows = append(rows, sitePlanRow(&plans[i]))
	}
	n, err := db.CopyFrom(ctx, s.pool, "site_plans", sitePlanCopyColumns, rows)
	return n, eris.Wrap(err, "postgres: insert site plans")
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS sources (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL UNIQUE,
	url         TEXT NOT NULL,
	format      TEXT NOT NULL DEFAULT 'rss',
	approved    BOOLEAN NOT NULL DEFAULT FALSE,
	auto_ingest BOOLEAN NOT NULL DEFAULT FALSE,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS research_priorities (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	category   TEXT NOT NULL,
	keywords   JSONB NOT NULL,
	active     BOOLEAN NOT NULL DEFAULT TRUE,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS ingestion_jobs (
	id              TEXT PRIMARY KEY,
	source_id       TEXT NOT NULL REFERENCES sources(id),
	status          TEXT NOT NULL DEFAULT 'pending',
	scheduled_at    TIMESTAMPTZ NOT NULL,
	started_at      TIMESTAMPTZ,
	completed_at    TIMESTAMPTZ,
	papers_found    INTEGER NOT NULL DEFAULT 0,
	papers_ingested INTEGER NOT NULL DEFAULT 0,
	papers_rejected INTEGER NOT NULL DEFAULT 0,
	quality_score   DOUBLE PRECISION NOT NULL DEFAULT 0,
	error_message   TEXT NOT NULL DEFAULT '',
	created_by      TEXT NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_ingestion_jobs_one_running
	ON ingestion_jobs(source_id) WHERE status = 'running';

CREATE TABLE IF NOT EXISTS research_papers (
	id                    TEXT PRIMARY KEY,
	source_id             TEXT NOT NULL,
	job_id                TEXT NOT NULL,
	title                 TEXT NOT NULL,
	authors               JSONB NOT NULL,
	abstract              TEXT NOT NULL DEFAULT '',
	publication_date      TIMESTAMPTZ,
	doi                   TEXT NOT NULL DEFAULT '',
	url                   TEXT NOT NULL DEFAULT '',
	study_type            TEXT NOT NULL DEFAULT '',
	primary_outcome       TEXT NOT NULL DEFAULT '',
	sample_size           INTEGER NOT NULL DEFAULT 0,
	quality_score         DOUBLE PRECISION NOT NULL,
	completeness_score    DOUBLE PRECISION NOT NULL,
	clinical_relevance    DOUBLE PRECISION NOT NULL DEFAULT 0,
	operational_relevance DOUBLE PRECISION NOT NULL DEFAULT 0,
	quality_tags          JSONB NOT NULL,
	relevance_tags        JSONB NOT NULL,
	status                TEXT NOT NULL,
	ingested_at           TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS evidence_syntheses (
	id               TEXT PRIMARY KEY,
	query            TEXT NOT NULL,
	summary          TEXT NOT NULL DEFAULT '',
	confidence_score DOUBLE PRECISION NOT NULL,
	evidence_quality TEXT NOT NULL,
	consensus_level  TEXT NOT NULL DEFAULT '',
	recommendation   TEXT NOT NULL,
	rationale        TEXT NOT NULL DEFAULT '',
	risks            JSONB NOT NULL,
	paper_ids        JSONB NOT NULL,
	version          INTEGER NOT NULL DEFAULT 1,
	created_by       TEXT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL,
	published_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS synthesis_versions (
	id                TEXT PRIMARY KEY,
	synthesis_id      TEXT NOT NULL REFERENCES evidence_syntheses(id),
	version           INTEGER NOT NULL,
	parent_version_id TEXT NOT NULL DEFAULT '',
	snapshot          JSONB NOT NULL,
	diff              JSONB NOT NULL,
	edited_by         TEXT NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL,
	UNIQUE (synthesis_id, version)
);

CREATE TABLE IF NOT EXISTS evidence_digests (
	id                          TEXT PRIMARY KEY,
	period_key                  TEXT NOT NULL UNIQUE,
	period_start                TIMESTAMPTZ NOT NULL,
	period_end                  TIMESTAMPTZ NOT NULL,
	status                      TEXT NOT NULL DEFAULT 'draft',
	high_confidence_changes     INTEGER NOT NULL DEFAULT 0,
	moderate_confidence_changes INTEGER NOT NULL DEFAULT 0,
	papers_reviewed             INTEGER NOT NULL DEFAULT 0,
	synthesis_count             INTEGER NOT NULL DEFAULT 0,
	themes                      JSONB NOT NULL,
	major_themes                JSONB NOT NULL,
	created_by                  TEXT NOT NULL,
	created_at                  TIMESTAMPTZ NOT NULL,
	published_at                TIMESTAMPTZ,
	published_by                TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS evidence_flags (
	id               TEXT PRIMARY KEY,
	digest_id        TEXT NOT NULL REFERENCES evidence_digests(id),
	theme            TEXT NOT NULL,
	confidence_score DOUBLE PRECISION NOT NULL,
	state            TEXT NOT NULL DEFAULT 'actionable',
	created_at       TIMESTAMPTZ NOT NULL,
	processed_at     TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS evidence_contradictions (
	id                 TEXT PRIMARY KEY,
	paper_a_id         TEXT NOT NULL,
	paper_b_id         TEXT NOT NULL,
	contradiction_type TEXT NOT NULL,
	confidence         DOUBLE PRECISION NOT NULL,
	clinical_impact    TEXT NOT NULL,
	status             TEXT NOT NULL DEFAULT 'unresolved',
	notes              TEXT NOT NULL DEFAULT '',
	detected_by        TEXT NOT NULL,
	resolved_by        TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMPTZ NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL,
	resolved_at        TIMESTAMPTZ,
	UNIQUE (paper_a_id, paper_b_id)
);

CREATE TABLE IF NOT EXISTS practice_translations (
	id                        TEXT PRIMARY KEY,
	flag_id                   TEXT NOT NULL,
	change_type               TEXT NOT NULL,
	title                     TEXT NOT NULL,
	description               TEXT NOT NULL,
	proposed_change           JSONB NOT NULL,
	expected_outcomes         JSONB NOT NULL,
	affected_areas            JSONB NOT NULL,
	confidence_score          DOUBLE PRECISION NOT NULL,
	implementation_complexity TEXT NOT NULL,
	risk_assessment           JSONB NOT NULL,
	status                    TEXT NOT NULL DEFAULT 'generated',
	created_by                TEXT NOT NULL,
	created_at                TIMESTAMPTZ NOT NULL,
	updated_at                TIMESTAMPTZ NOT NULL,
	reviewed_by               TEXT NOT NULL DEFAULT '',
	reviewed_at               TIMESTAMPTZ,
	review_rationale          TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS approval_records (
	id            TEXT PRIMARY KEY,
	proposal_id   TEXT NOT NULL REFERENCES practice_translations(id),
	reviewer_role TEXT NOT NULL,
	requested_by  TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'pending',
	reviewer_id   TEXT NOT NULL DEFAULT '',
	rationale     TEXT NOT NULL DEFAULT '',
	requested_at  TIMESTAMPTZ NOT NULL,
	decided_at    TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS practice_pilots (
	id               TEXT PRIMARY KEY,
	proposal_id      TEXT NOT NULL REFERENCES practice_translations(id),
	site_ids         JSONB NOT NULL,
	start_date       TIMESTAMPTZ NOT NULL,
	end_date         TIMESTAMPTZ NOT NULL,
	duration_days    INTEGER NOT NULL,
	baseline_metrics JSONB NOT NULL,
	locked_metrics   JSONB,
	status           TEXT NOT NULL DEFAULT 'planned',
	started_at       TIMESTAMPTZ,
	ended_at         TIMESTAMPTZ,
	created_by       TEXT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS pilot_site_assignments (
	id           TEXT PRIMARY KEY,
	pilot_id     TEXT NOT NULL REFERENCES practice_pilots(id),
	site_id      TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'active',
	assigned_at  TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS metric_observations (
	id          TEXT PRIMARY KEY,
	site_id     TEXT NOT NULL,
	metric      TEXT NOT NULL,
	value       DOUBLE PRECISION NOT NULL,
	observed_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS outcome_attributions (
	id                        TEXT PRIMARY KEY,
	pilot_id                  TEXT NOT NULL REFERENCES practice_pilots(id),
	evidence_id               TEXT NOT NULL DEFAULT '',
	sop_version               TEXT NOT NULL DEFAULT '',
	window_start              TIMESTAMPTZ NOT NULL,
	window_end                TIMESTAMPTZ NOT NULL,
	pre_metrics               JSONB NOT NULL,
	post_metrics              JSONB NOT NULL,
	site_improvements         JSONB NOT NULL,
	metric_improvements       JSONB NOT NULL,
	overall_improvement       DOUBLE PRECISION NOT NULL,
	statistically_significant BOOLEAN NOT NULL DEFAULT FALSE,
	ci_lower                  DOUBLE PRECISION NOT NULL DEFAULT 0,
	ci_upper                  DOUBLE PRECISION NOT NULL DEFAULT 0,
	status                    TEXT NOT NULL DEFAULT 'preliminary',
	created_by                TEXT NOT NULL,
	created_at                TIMESTAMPTZ NOT NULL,
	finalized_by              TEXT NOT NULL DEFAULT '',
	finalized_at              TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS rollout_decisions (
	id              TEXT PRIMARY KEY,
	pilot_id        TEXT NOT NULL REFERENCES practice_pilots(id),
	attribution_id  TEXT NOT NULL,
	decision        TEXT NOT NULL,
	rationale       TEXT NOT NULL DEFAULT '',
	timeline        JSONB NOT NULL,
	learning_stored BOOLEAN NOT NULL DEFAULT FALSE,
	decided_by      TEXT NOT NULL,
	decided_at      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS site_plans (
	id              TEXT PRIMARY KEY,
	decision_id     TEXT NOT NULL REFERENCES rollout_decisions(id),
	site_id         TEXT NOT NULL,
	plan_type       TEXT NOT NULL,
	phase           INTEGER NOT NULL,
	phase_name      TEXT NOT NULL,
	scheduled_start TIMESTAMPTZ NOT NULL,
	status          TEXT NOT NULL DEFAULT 'scheduled',
	activated_at    TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS learning_records (
	id           TEXT PRIMARY KEY,
	decision_id  TEXT NOT NULL UNIQUE REFERENCES rollout_decisions(id),
	decision     TEXT NOT NULL,
	findings     JSONB NOT NULL,
	lessons      JSONB NOT NULL,
	lessons_text TEXT NOT NULL DEFAULT '',
	contexts     JSONB NOT NULL,
	searchable   BOOLEAN NOT NULL DEFAULT TRUE,
	created_by   TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS agents (
	id            TEXT PRIMARY KEY,
	owner_id      TEXT NOT NULL,
	name          TEXT NOT NULL,
	system_prompt TEXT NOT NULL,
	model         TEXT NOT NULL,
	temperature   DOUBLE PRECISION NOT NULL DEFAULT 0,
	max_tokens    INTEGER NOT NULL DEFAULT 1024,
	created_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS agent_executions (
	id               TEXT PRIMARY KEY,
	agent_id         TEXT NOT NULL REFERENCES agents(id),
	user_id          TEXT NOT NULL,
	input            TEXT NOT NULL,
	raw_output       TEXT NOT NULL,
	recommendation   TEXT NOT NULL,
	confidence_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	rationale        TEXT NOT NULL DEFAULT '',
	risks            JSONB NOT NULL,
	parsed           BOOLEAN NOT NULL DEFAULT FALSE,
	input_tokens     INTEGER NOT NULL DEFAULT 0,
	output_tokens    INTEGER NOT NULL DEFAULT 0,
	created_at       TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ingestion_jobs_source ON ingestion_jobs(source_id, status);
CREATE INDEX IF NOT EXISTS idx_research_papers_ingested ON research_papers(ingested_at);
CREATE INDEX IF NOT EXISTS idx_evidence_syntheses_published ON evidence_syntheses(published_at);
CREATE INDEX IF NOT EXISTS idx_evidence_flags_state ON evidence_flags(state);
CREATE INDEX IF NOT EXISTS idx_metric_observations_site ON metric_observations(site_id, observed_at);
CREATE INDEX IF NOT EXISTS idx_site_plans_phase ON site_plans(plan_type, phase, status);
CREATE INDEX IF NOT EXISTS idx_site_plans_decision ON site_plans(decision_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}
