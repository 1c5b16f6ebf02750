package store

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadscout/internal/db"
	"github.com/sells-group/leadscout/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, &Error{Code: CodeUnavailable, Err: eris.Wrap(err, "postgres: parse config")}
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, &Error{Code: CodeUnavailable, Err: eris.Wrap(err, "postgres: create pool")}
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &Error{Code: CodeUnavailable, Err: eris.Wrap(err, "postgres: ping")}
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Tests inject pgxmock here.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: func() {}}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id              TEXT PRIMARY KEY,
	key             TEXT NOT NULL UNIQUE,
	contact         JSONB NOT NULL,
	phase           TEXT NOT NULL,
	score           INTEGER NOT NULL,
	tier            TEXT NOT NULL,
	status          TEXT NOT NULL,
	score_breakdown JSONB,
	bot_probability DOUBLE PRECISION NOT NULL DEFAULT 0,
	language        TEXT,
	source_id       TEXT NOT NULL,
	source_url      TEXT,
	artifact_id     TEXT,
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS jobs (
	id                  TEXT PRIMARY KEY,
	source_config       JSONB NOT NULL,
	state               TEXT NOT NULL,
	attempts            INTEGER NOT NULL DEFAULT 0,
	artifacts_processed INTEGER NOT NULL DEFAULT 0,
	leads_created       INTEGER NOT NULL DEFAULT 0,
	leads_rejected      INTEGER NOT NULL DEFAULT 0,
	checkpoint          INTEGER NOT NULL DEFAULT 0,
	last_error          TEXT,
	failure_reason      TEXT,
	error_counts        JSONB,
	created_at          TIMESTAMPTZ NOT NULL,
	started_at          TIMESTAMPTZ,
	completed_at        TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS rejections (
	id              TEXT PRIMARY KEY,
	artifact_id     TEXT NOT NULL,
	source_id       TEXT NOT NULL,
	url             TEXT,
	reason          TEXT NOT NULL,
	bot_probability DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at      TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_leads_tier ON leads(tier);
CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status);
CREATE INDEX IF NOT EXISTS idx_leads_source ON leads(source_id);
CREATE INDEX IF NOT EXISTS idx_jobs_state ON jobs(state);
CREATE INDEX IF NOT EXISTS idx_rejections_source ON rejections(source_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.closeFn()
	return nil
}

// UpsertLead merges by dedup key in a serialized transaction; a serialization
// failure surfaces as CONFLICT so the caller's retry converges.
func (s *PostgresStore) UpsertLead(ctx context.Context, lead model.Lead) (*model.Lead, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, &Error{Code: CodeUnavailable, Err: eris.Wrap(err, "postgres: begin upsert")}
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, pgLeadSelect+` WHERE key = $1 FOR UPDATE`, lead.Key)
	existing, err := scanPGLead(row)
	if err != nil && err != pgx.ErrNoRows {
		return nil, eris.Wrap(err, "postgres: read existing lead")
	}

	now := time.Now().UTC()
	merged := mergeLead(existing, lead, now)

	contactJSON, err := json.Marshal(merged.Contact)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal contact")
	}
	var breakdownJSON []byte
	if merged.ScoreBreakdown != nil {
		if breakdownJSON, err = json.Marshal(merged.ScoreBreakdown); err != nil {
			return nil, eris.Wrap(err, "postgres: marshal score breakdown")
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO leads (id, key, contact, phase, score, tier, status, score_breakdown,
			bot_probability, language, source_id, source_url, artifact_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (key) DO UPDATE SET
			contact = EXCLUDED.contact,
			phase = EXCLUDED.phase,
			score = EXCLUDED.score,
			tier = EXCLUDED.tier,
			status = EXCLUDED.status,
			score_breakdown = EXCLUDED.score_breakdown,
			bot_probability = EXCLUDED.bot_probability,
			language = EXCLUDED.language,
			source_url = EXCLUDED.source_url,
			artifact_id = EXCLUDED.artifact_id,
			updated_at = EXCLUDED.updated_at`,
		merged.ID, merged.Key, contactJSON, string(merged.Phase), merged.Score,
		string(merged.Tier), string(merged.Status), breakdownJSON, merged.BotProbability,
		merged.Language, merged.SourceID, merged.SourceURL, merged.ArtifactID,
		merged.CreatedAt, merged.UpdatedAt,
	)
	if err != nil {
		return nil, &Error{Code: CodeConflict, Err: eris.Wrapf(err, "postgres: upsert lead %s", merged.Key)}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, &Error{Code: CodeConflict, Err: eris.Wrap(err, "postgres: commit upsert")}
	}
	return &merged, nil
}

func (s *PostgresStore) GetLead(ctx context.Context, key string) (*model.Lead, error) {
	row := s.pool.QueryRow(ctx, pgLeadSelect+` WHERE key = $1`, key)
	lead, err := scanPGLead(row)
	if err == pgx.ErrNoRows {
		return nil, eris.Errorf("lead not found: %s", key)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get lead")
	}
	return lead, nil
}

func (s *PostgresStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	query := pgLeadSelect + ` WHERE 1=1`
	var args []any

	next := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.Tier != "" {
		query += ` AND tier = ` + next(string(filter.Tier))
	}
	if filter.Status != "" {
		query += ` AND status = ` + next(string(filter.Status))
	}
	if filter.SourceID != "" {
		query += ` AND source_id = ` + next(filter.SourceID)
	}
	if filter.MinScore > 0 {
		query += ` AND score >= ` + next(filter.MinScore)
	}
	query += ` ORDER BY score DESC, updated_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ` + next(limit)
	if filter.Offset > 0 {
		query += ` OFFSET ` + next(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		lead, err := scanPGLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		leads = append(leads, *lead)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: list leads iterate")
}

func (s *PostgresStore) SaveJob(ctx context.Context, job model.ScrapingJob) error {
	sourceJSON, err := json.Marshal(job.Source)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal source config")
	}

	var errCountsJSON []byte
	if len(job.ErrorCounts) > 0 {
		errCountsJSON, err = json.Marshal(job.ErrorCounts)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal error counts")
		}
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO jobs (id, source_config, state, attempts, artifacts_processed,
			leads_created, leads_rejected, checkpoint, last_error, failure_reason,
			error_counts, created_at, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			attempts = EXCLUDED.attempts,
			artifacts_processed = EXCLUDED.artifacts_processed,
			leads_created = EXCLUDED.leads_created,
			leads_rejected = EXCLUDED.leads_rejected,
			checkpoint = EXCLUDED.checkpoint,
			last_error = EXCLUDED.last_error,
			failure_reason = EXCLUDED.failure_reason,
			error_counts = EXCLUDED.error_counts,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at`,
		job.ID, sourceJSON, string(job.State), job.Attempts, job.ArtifactsProcessed,
		job.LeadsCreated, job.LeadsRejected, job.Checkpoint, job.LastError, job.FailureReason,
		errCountsJSON, job.CreatedAt, job.StartedAt, job.CompletedAt,
	)
	return eris.Wrapf(err, "postgres: save job %s", job.ID)
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*model.ScrapingJob, error) {
	row := s.pool.QueryRow(ctx, pgJobSelect+` WHERE id = $1`, jobID)
	job, err := scanPGJob(row)
	if err == pgx.ErrNoRows {
		return nil, eris.Errorf("job not found: %s", jobID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get job")
	}
	return job, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.ScrapingJob, error) {
	query := pgJobSelect + ` WHERE 1=1`
	var args []any

	next := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.State != "" {
		query += ` AND state = ` + next(string(filter.State))
	}
	if filter.SourceID != "" {
		query += ` AND source_config->>'id' = ` + next(filter.SourceID)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ` + next(limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.ScrapingJob
	for rows.Next() {
		job, err := scanPGJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		jobs = append(jobs, *job)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}

func (s *PostgresStore) LogRejection(ctx context.Context, rejection model.Rejection) error {
	if rejection.ID == "" {
		rejection.ID = uuid.NewString()
	}
	if rejection.CreatedAt.IsZero() {
		rejection.CreatedAt = time.Now().UTC()
	}
	_, err := db.CopyFrom(ctx, s.pool, "rejections",
		[]string{"id", "artifact_id", "source_id", "url", "reason", "bot_probability", "created_at"},
		[][]any{{
			rejection.ID, rejection.ArtifactID, rejection.SourceID, rejection.URL,
			string(rejection.Reason), rejection.BotProbability, rejection.CreatedAt,
		}},
	)
	return eris.Wrap(err, "postgres: log rejection")
}

// helpers

const pgLeadSelect = `SELECT id, key, contact, phase, score, tier, status, score_breakdown,
	bot_probability, language, source_id, source_url, artifact_id, created_at, updated_at FROM leads`

const pgJobSelect = `SELECT id, source_config, state, attempts, artifacts_processed,
	leads_created, leads_rejected, checkpoint, last_error, failure_reason,
	error_counts, created_at, started_at, completed_at FROM jobs`

func scanPGLead(row pgx.Row) (*model.Lead, error) {
	var lead model.Lead
	var contactJSON []byte
	var breakdownJSON []byte
	var language, sourceURL, artifactID *string

	err := row.Scan(&lead.ID, &lead.Key, &contactJSON, &lead.Phase, &lead.Score,
		&lead.Tier, &lead.Status, &breakdownJSON, &lead.BotProbability,
		&language, &lead.SourceID, &sourceURL, &artifactID,
		&lead.CreatedAt, &lead.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(contactJSON, &lead.Contact); err != nil {
		return nil, eris.Wrap(err, "unmarshal contact")
	}
	if len(breakdownJSON) > 0 {
		if err := json.Unmarshal(breakdownJSON, &lead.ScoreBreakdown); err != nil {
			return nil, eris.Wrap(err, "unmarshal score breakdown")
		}
	}
	if language != nil {
		lead.Language = *language
	}
	if sourceURL != nil {
		lead.SourceURL = *sourceURL
	}
	if artifactID != nil {
		lead.ArtifactID = *artifactID
	}
	return &lead, nil
}

func scanPGJob(row pgx.Row) (*model.ScrapingJob, error) {
	var job model.ScrapingJob
	var sourceJSON, errCountsJSON []byte
	var lastError, failureReason *string

	err := row.Scan(&job.ID, &sourceJSON, &job.State, &job.Attempts, &job.ArtifactsProcessed,
		&job.LeadsCreated, &job.LeadsRejected, &job.Checkpoint, &lastError, &failureReason,
		&errCountsJSON, &job.CreatedAt, &job.StartedAt, &job.CompletedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(sourceJSON, &job.Source); err != nil {
		return nil, eris.Wrap(err, "unmarshal source config")
	}
	if len(errCountsJSON) > 0 {
		if err := json.Unmarshal(errCountsJSON, &job.ErrorCounts); err != nil {
			return nil, eris.Wrap(err, "unmarshal error counts")
		}
	}
	if lastError != nil {
		job.LastError = *lastError
	}
	if failureReason != nil {
		job.FailureReason = *failureReason
	}
	return &job, nil
}


