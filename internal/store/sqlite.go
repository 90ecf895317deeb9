package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	*sqlStore
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", withDSNOptions(dsn))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}

	s := &SQLiteStore{db: db}
	s.sqlStore = &sqlStore{
		q:    sqlQuerier{conn: db},
		inTx: s.inTx,
	}
	return s, nil
}

// withDSNOptions makes the driver write times in a sortable layout so range
// predicates on DATETIME columns compare correctly, and sets a busy timeout
// on every pooled connection.
func withDSNOptions(dsn string) string {
	for _, opt := range []struct{ key, param string }{
		{"_time_format=", "_time_format=sqlite"},
		{"busy_timeout", "_pragma=busy_timeout(5000)"},
	} {
		if strings.Contains(dsn, opt.key) {
			continue
		}
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + opt.param
	}
	return dsn
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	if err := fn(sqlQuerier{conn: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit tx")
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sources (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL UNIQUE,
	url         TEXT NOT NULL,
	format      TEXT NOT NULL DEFAULT 'rss',
	approved    BOOLEAN NOT NULL DEFAULT 0,
	auto_ingest BOOLEAN NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS research_priorities (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	category   TEXT NOT NULL,
	keywords   TEXT NOT NULL,
	active     BOOLEAN NOT NULL DEFAULT 1,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS ingestion_jobs (
	id              TEXT PRIMARY KEY,
	source_id       TEXT NOT NULL REFERENCES sources(id),
	status          TEXT NOT NULL DEFAULT 'pending',
	scheduled_at    DATETIME NOT NULL,
	started_at      DATETIME,
	completed_at    DATETIME,
	papers_found    INTEGER NOT NULL DEFAULT 0,
	papers_ingested INTEGER NOT NULL DEFAULT 0,
	papers_rejected INTEGER NOT NULL DEFAULT 0,
	quality_score   REAL NOT NULL DEFAULT 0,
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
	authors               TEXT NOT NULL,
	abstract              TEXT NOT NULL DEFAULT '',
	publication_date      DATETIME,
	doi                   TEXT NOT NULL DEFAULT '',
	url                   TEXT NOT NULL DEFAULT '',
	study_type            TEXT NOT NULL DEFAULT '',
	primary_outcome       TEXT NOT NULL DEFAULT '',
	sample_size           INTEGER NOT NULL DEFAULT 0,
	quality_score         REAL NOT NULL,
	completeness_score    REAL NOT NULL,
	clinical_relevance    REAL NOT NULL DEFAULT 0,
	operational_relevance REAL NOT NULL DEFAULT 0,
	quality_tags          TEXT NOT NULL,
	relevance_tags        TEXT NOT NULL,
	status                TEXT NOT NULL,
	ingested_at           DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS evidence_syntheses (
	id               TEXT PRIMARY KEY,
	query            TEXT NOT NULL,
	summary          TEXT NOT NULL DEFAULT '',
	confidence_score REAL NOT NULL,
	evidence_quality TEXT NOT NULL,
	consensus_level  TEXT NOT NULL DEFAULT '',
	recommendation   TEXT NOT NULL,
	rationale        TEXT NOT NULL DEFAULT '',
	risks            TEXT NOT NULL,
	paper_ids        TEXT NOT NULL,
	version          INTEGER NOT NULL DEFAULT 1,
	created_by       TEXT NOT NULL,
	created_at       DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL,
	published_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS synthesis_versions (
	id                TEXT PRIMARY KEY,
	synthesis_id      TEXT NOT NULL REFERENCES evidence_syntheses(id),
	version           INTEGER NOT NULL,
	parent_version_id TEXT NOT NULL DEFAULT '',
	snapshot          TEXT NOT NULL,
	diff              TEXT NOT NULL,
	edited_by         TEXT NOT NULL,
	created_at        DATETIME NOT NULL,
	UNIQUE (synthesis_id, version)
);

CREATE TABLE IF NOT EXISTS evidence_digests (
	id                          TEXT PRIMARY KEY,
	period_key                  TEXT NOT NULL UNIQUE,
	period_start                DATETIME NOT NULL,
	period_end                  DATETIME NOT NULL,
	status                      TEXT NOT NULL DEFAULT 'draft',
	high_confidence_changes     INTEGER NOT NULL DEFAULT 0,
	moderate_confidence_changes INTEGER NOT NULL DEFAULT 0,
	papers_reviewed             INTEGER NOT NULL DEFAULT 0,
	synthesis_count             INTEGER NOT NULL DEFAULT 0,
	themes                      TEXT NOT NULL,
	major_themes                TEXT NOT NULL,
	created_by                  TEXT NOT NULL,
	created_at                  DATETIME NOT NULL,
	published_at                DATETIME,
	published_by                TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS evidence_flags (
	id               TEXT PRIMARY KEY,
	digest_id        TEXT NOT NULL REFERENCES evidence_digests(id),
	theme            TEXT NOT NULL,
	confidence_score REAL NOT NULL,
	state            TEXT NOT NULL DEFAULT 'actionable',
	created_at       DATETIME NOT NULL,
	processed_at     DATETIME
);

CREATE TABLE IF NOT EXISTS evidence_contradictions (
	id                 TEXT PRIMARY KEY,
	paper_a_id         TEXT NOT NULL,
	paper_b_id         TEXT NOT NULL,
	contradiction_type TEXT NOT NULL,
	confidence         REAL NOT NULL,
	clinical_impact    TEXT NOT NULL,
	status             TEXT NOT NULL DEFAULT 'unresolved',
	notes              TEXT NOT NULL DEFAULT '',
	detected_by        TEXT NOT NULL,
	resolved_by        TEXT NOT NULL DEFAULT '',
	created_at         DATETIME NOT NULL,
	updated_at         DATETIME NOT NULL,
	resolved_at        DATETIME,
	UNIQUE (paper_a_id, paper_b_id)
);

CREATE TABLE IF NOT EXISTS practice_translations (
	id                        TEXT PRIMARY KEY,
	flag_id                   TEXT NOT NULL,
	change_type               TEXT NOT NULL,
	title                     TEXT NOT NULL,
	description               TEXT NOT NULL,
	proposed_change           TEXT NOT NULL,
	expected_outcomes         TEXT NOT NULL,
	affected_areas            TEXT NOT NULL,
	confidence_score          REAL NOT NULL,
	implementation_complexity TEXT NOT NULL,
	risk_assessment           TEXT NOT NULL,
	status                    TEXT NOT NULL DEFAULT 'generated',
	created_by                TEXT NOT NULL,
	created_at                DATETIME NOT NULL,
	updated_at                DATETIME NOT NULL,
	reviewed_by               TEXT NOT NULL DEFAULT '',
	reviewed_at               DATETIME,
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
	requested_at  DATETIME NOT NULL,
	decided_at    DATETIME
);

CREATE TABLE IF NOT EXISTS practice_pilots (
	id               TEXT PRIMARY KEY,
	proposal_id      TEXT NOT NULL REFERENCES practice_translations(id),
	site_ids         TEXT NOT NULL,
	start_date       DATETIME NOT NULL,
	end_date         DATETIME NOT NULL,
	duration_days    INTEGER NOT NULL,
	baseline_metrics TEXT NOT NULL,
	locked_metrics   TEXT,
	status           TEXT NOT NULL DEFAULT 'planned',
	started_at       DATETIME,
	ended_at         DATETIME,
	created_by       TEXT NOT NULL,
	created_at       DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS pilot_site_assignments (
	id           TEXT PRIMARY KEY,
	pilot_id     TEXT NOT NULL REFERENCES practice_pilots(id),
	site_id      TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'active',
	assigned_at  DATETIME NOT NULL,
	completed_at DATETIME
);

CREATE TABLE IF NOT EXISTS metric_observations (
	id          TEXT PRIMARY KEY,
	site_id     TEXT NOT NULL,
	metric      TEXT NOT NULL,
	value       REAL NOT NULL,
	observed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS outcome_attributions (
	id                        TEXT PRIMARY KEY,
	pilot_id                  TEXT NOT NULL REFERENCES practice_pilots(id),
	evidence_id               TEXT NOT NULL DEFAULT '',
	sop_version               TEXT NOT NULL DEFAULT '',
	window_start              DATETIME NOT NULL,
	window_end                DATETIME NOT NULL,
	pre_metrics               TEXT NOT NULL,
	post_metrics              TEXT NOT NULL,
	site_improvements         TEXT NOT NULL,
	metric_improvements       TEXT NOT NULL,
	overall_improvement       REAL NOT NULL,
	statistically_significant BOOLEAN NOT NULL DEFAULT 0,
	ci_lower                  REAL NOT NULL DEFAULT 0,
	ci_upper                  REAL NOT NULL DEFAULT 0,
	status                    TEXT NOT NULL DEFAULT 'preliminary',
	created_by                TEXT NOT NULL,
	created_at                DATETIME NOT NULL,
	finalized_by              TEXT NOT NULL DEFAULT '',
	finalized_at              DATETIME
);

CREATE TABLE IF NOT EXISTS rollout_decisions (
	id              TEXT PRIMARY KEY,
	pilot_id        TEXT NOT NULL REFERENCES practice_pilots(id),
	attribution_id  TEXT NOT NULL,
	decision        TEXT NOT NULL,
	rationale       TEXT NOT NULL DEFAULT '',
	timeline        TEXT NOT NULL,
	learning_stored BOOLEAN NOT NULL DEFAULT 0,
	decided_by      TEXT NOT NULL,
	decided_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS site_plans (
	id              TEXT PRIMARY KEY,
	decision_id     TEXT NOT NULL REFERENCES rollout_decisions(id),
	site_id         TEXT NOT NULL,
	plan_type       TEXT NOT NULL,
	phase           INTEGER NOT NULL,
	phase_name      TEXT NOT NULL,
	scheduled_start DATETIME NOT NULL,
	status          TEXT NOT NULL DEFAULT 'scheduled',
	activated_at    DATETIME
);

CREATE TABLE IF NOT EXISTS learning_records (
	id           TEXT PRIMARY KEY,
	decision_id  TEXT NOT NULL UNIQUE REFERENCES rollout_decisions(id),
	decision     TEXT NOT NULL,
	findings     TEXT NOT NULL,
	lessons      TEXT NOT NULL,
	lessons_text TEXT NOT NULL DEFAULT '',
	contexts     TEXT NOT NULL,
	searchable   BOOLEAN NOT NULL DEFAULT 1,
	created_by   TEXT NOT NULL,
	created_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS agents (
	id            TEXT PRIMARY KEY,
	owner_id      TEXT NOT NULL,
	name          TEXT NOT NULL,
	system_prompt TEXT NOT NULL,
	model         TEXT NOT NULL,
	temperature   REAL NOT NULL DEFAULT 0,
	max_tokens    INTEGER NOT NULL DEFAULT 1024,
	created_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS agent_executions (
	id               TEXT PRIMARY KEY,
	agent_id         TEXT NOT NULL REFERENCES agents(id),
	user_id          TEXT NOT NULL,
	input            TEXT NOT NULL,
	raw_output       TEXT NOT NULL,
	recommendation   TEXT NOT NULL,
	confidence_score REAL NOT NULL DEFAULT 0,
	rationale        TEXT NOT NULL DEFAULT '',
	risks            TEXT NOT NULL,
	parsed           BOOLEAN NOT NULL DEFAULT 0,
	input_tokens     INTEGER NOT NULL DEFAULT 0,
	output_tokens    INTEGER NOT NULL DEFAULT 0,
	created_at       DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ingestion_jobs_source ON ingestion_jobs(source_id, status);
CREATE INDEX IF NOT EXISTS idx_research_papers_ingested ON research_papers(ingested_at);
CREATE INDEX IF NOT EXISTS idx_evidence_syntheses_published ON evidence_syntheses(published_at);
CREATE INDEX IF NOT EXISTS idx_evidence_flags_state ON evidence_flags(state);
CREATE INDEX IF NOT EXISTS idx_metric_observations_site ON metric_observations(site_id, observed_at);
CREATE INDEX IF NOT EXISTS idx_site_plans_phase ON site_plans(plan_type, phase, status);
CREATE INDEX IF NOT EXISTS idx_site_plans_decision ON site_plans(decision_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
