package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/leadscout/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path. The PRAGMAs ride in
// the DSN so every connection in the database/sql pool gets WAL mode and the
// busy timeout, not just the one that ran an Exec. _txlock=immediate makes
// the upsert's read-merge-write transaction take the write lock up front, so
// two racing writers queue on the busy timeout instead of failing.
func NewSQLite(path string) (*SQLiteStore, error) {
	dsn := path +
		"?_txlock=immediate" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &Error{Code: CodeUnavailable, Err: eris.Wrap(err, "sqlite: open")}
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &Error{Code: CodeUnavailable, Err: eris.Wrap(err, "sqlite: ping")}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id              TEXT PRIMARY KEY,
	key             TEXT NOT NULL UNIQUE,
	contact         TEXT NOT NULL,
	phase           TEXT NOT NULL,
	score           INTEGER NOT NULL,
	tier            TEXT NOT NULL,
	status          TEXT NOT NULL,
	score_breakdown TEXT,
	bot_probability REAL NOT NULL DEFAULT 0,
	language        TEXT,
	source_id       TEXT NOT NULL,
	source_url      TEXT,
	artifact_id     TEXT,
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS jobs (
	id                  TEXT PRIMARY KEY,
	source_config       TEXT NOT NULL,
	state               TEXT NOT NULL,
	attempts            INTEGER NOT NULL DEFAULT 0,
	artifacts_processed INTEGER NOT NULL DEFAULT 0,
	leads_created       INTEGER NOT NULL DEFAULT 0,
	leads_rejected      INTEGER NOT NULL DEFAULT 0,
	checkpoint          INTEGER NOT NULL DEFAULT 0,
	last_error          TEXT,
	failure_reason      TEXT,
	error_counts        TEXT,
	created_at          DATETIME NOT NULL,
	started_at          DATETIME,
	completed_at        DATETIME
);

CREATE TABLE IF NOT EXISTS rejections (
	id              TEXT PRIMARY KEY,
	artifact_id     TEXT NOT NULL,
	source_id       TEXT NOT NULL,
	url             TEXT,
	reason          TEXT NOT NULL,
	bot_probability REAL NOT NULL DEFAULT 0,
	created_at      DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_leads_tier ON leads(tier);
CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status);
CREATE INDEX IF NOT EXISTS idx_leads_source ON leads(source_id);
CREATE INDEX IF NOT EXISTS idx_jobs_state ON jobs(state);
CREATE INDEX IF NOT EXISTS idx_rejections_source ON rejections(source_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertLead inserts or merges a lead by dedup key inside one transaction,
// so two racing writes for the same key converge instead of conflicting.
func (s *SQLiteStore) UpsertLead(ctx context.Context, lead model.Lead) (*model.Lead, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &Error{Code: CodeUnavailable, Err: eris.Wrap(err, "sqlite: begin upsert")}
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, leadSelect+` WHERE key = ?`, lead.Key)
	existing, err := scanLead(row)
	if err != nil && err != sql.ErrNoRows {
		return nil, eris.Wrap(err, "sqlite: read existing lead")
	}

	now := time.Now().UTC()
	merged := mergeLead(existing, lead, now)

	contactJSON, breakdownJSON, err := marshalLeadJSON(merged)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO leads (id, key, contact, phase, score, tier, status, score_breakdown,
			bot_probability, language, source_id, source_url, artifact_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			contact = excluded.contact,
			phase = excluded.phase,
			score = excluded.score,
			tier = excluded.tier,
			status = excluded.status,
			score_breakdown = excluded.score_breakdown,
			bot_probability = excluded.bot_probability,
			language = excluded.language,
			source_url = excluded.source_url,
			artifact_id = excluded.artifact_id,
			updated_at = excluded.updated_at`,
		merged.ID, merged.Key, contactJSON, string(merged.Phase), merged.Score,
		string(merged.Tier), string(merged.Status), breakdownJSON, merged.BotProbability,
		merged.Language, merged.SourceID, merged.SourceURL, merged.ArtifactID,
		merged.CreatedAt, merged.UpdatedAt,
	)
	if err != nil {
		return nil, &Error{Code: CodeConflict, Err: eris.Wrapf(err, "sqlite: upsert lead %s", merged.Key)}
	}

	if err := tx.Commit(); err != nil {
		return nil, &Error{Code: CodeConflict, Err: eris.Wrap(err, "sqlite: commit upsert")}
	}
	return &merged, nil
}

func (s *SQLiteStore) GetLead(ctx context.Context, key string) (*model.Lead, error) {
	row := s.db.QueryRowContext(ctx, leadSelect+` WHERE key = ?`, key)
	lead, err := scanLead(row)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("lead not found: %s", key)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get lead")
	}
	return lead, nil
}

func (s *SQLiteStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	query := leadSelect + ` WHERE 1=1`
	var args []any

	if filter.Tier != "" {
		query += ` AND tier = ?`
		args = append(args, string(filter.Tier))
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.SourceID != "" {
		query += ` AND source_id = ?`
		args = append(args, filter.SourceID)
	}
	if filter.MinScore > 0 {
		query += ` AND score >= ?`
		args = append(args, filter.MinScore)
	}
	query += ` ORDER BY score DESC, updated_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		leads = append(leads, *lead)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: list leads iterate")
}

func (s *SQLiteStore) SaveJob(ctx context.Context, job model.ScrapingJob) error {
	sourceJSON, err := json.Marshal(job.Source)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal source config")
	}
	errCountsJSON, err := marshalErrorCounts(job.ErrorCounts)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal error counts")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, source_config, state, attempts, artifacts_processed,
			leads_created, leads_rejected, checkpoint, last_error, failure_reason,
			error_counts, created_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			attempts = excluded.attempts,
			artifacts_processed = excluded.artifacts_processed,
			leads_created = excluded.leads_created,
			leads_rejected = excluded.leads_rejected,
			checkpoint = excluded.checkpoint,
			last_error = excluded.last_error,
			failure_reason = excluded.failure_reason,
			error_counts = excluded.error_counts,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at`,
		job.ID, string(sourceJSON), string(job.State), job.Attempts, job.ArtifactsProcessed,
		job.LeadsCreated, job.LeadsRejected, job.Checkpoint, job.LastError, job.FailureReason,
		errCountsJSON, job.CreatedAt, job.StartedAt, job.CompletedAt,
	)
	return eris.Wrapf(err, "sqlite: save job %s", job.ID)
}

func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*model.ScrapingJob, error) {
	row := s.db.QueryRowContext(ctx, jobSelect+` WHERE id = ?`, jobID)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("job not found: %s", jobID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get job")
	}
	return job, nil
}

func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.ScrapingJob, error) {
	query := jobSelect + ` WHERE 1=1`
	var args []any

	if filter.State != "" {
		query += ` AND state = ?`
		args = append(args, string(filter.State))
	}
	if filter.SourceID != "" {
		query += ` AND json_extract(source_config, '$.id') = ?`
		args = append(args, filter.SourceID)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	var jobs []model.ScrapingJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job")
		}
		jobs = append(jobs, *job)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

func (s *SQLiteStore) LogRejection(ctx context.Context, rejection model.Rejection) error {
	if rejection.ID == "" {
		rejection.ID = uuid.NewString()
	}
	if rejection.CreatedAt.IsZero() {
		rejection.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rejections (id, artifact_id, source_id, url, reason, bot_probability, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rejection.ID, rejection.ArtifactID, rejection.SourceID, rejection.URL,
		string(rejection.Reason), rejection.BotProbability, rejection.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: log rejection")
}

// helpers

const leadSelect = `SELECT id, key, contact, phase, score, tier, status, score_breakdown,
	bot_probability, language, source_id, source_url, artifact_id, created_at, updated_at FROM leads`

const jobSelect = `SELECT id, source_config, state, attempts, artifacts_processed,
	leads_created, leads_rejected, checkpoint, last_error, failure_reason,
	error_counts, created_at, started_at, completed_at FROM jobs`

type scannable interface {
	Scan(dest ...any) error
}

func scanLead(row scannable) (*model.Lead, error) {
	var lead model.Lead
	var contactJSON string
	var breakdownJSON, language, sourceURL, artifactID sql.NullString

	err := row.Scan(&lead.ID, &lead.Key, &contactJSON, &lead.Phase, &lead.Score,
		&lead.Tier, &lead.Status, &breakdownJSON, &lead.BotProbability,
		&language, &lead.SourceID, &sourceURL, &artifactID,
		&lead.CreatedAt, &lead.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(contactJSON), &lead.Contact); err != nil {
		return nil, eris.Wrap(err, "unmarshal contact")
	}
	if breakdownJSON.Valid && breakdownJSON.String != "" {
		if err := json.Unmarshal([]byte(breakdownJSON.String), &lead.ScoreBreakdown); err != nil {
			return nil, eris.Wrap(err, "unmarshal score breakdown")
		}
	}
	lead.Language = language.String
	lead.SourceURL = sourceURL.String
	lead.ArtifactID = artifactID.String
	return &lead, nil
}

func scanJob(row scannable) (*model.ScrapingJob, error) {
	var job model.ScrapingJob
	var sourceJSON string
	var lastError, failureReason, errCounts sql.NullString
	var startedAt, completedAt sql.NullTime

	err := row.Scan(&job.ID, &sourceJSON, &job.State, &job.Attempts, &job.ArtifactsProcessed,
		&job.LeadsCreated, &job.LeadsRejected, &job.Checkpoint, &lastError, &failureReason,
		&errCounts, &job.CreatedAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(sourceJSON), &job.Source); err != nil {
		return nil, eris.Wrap(err, "unmarshal source config")
	}
	job.LastError = lastError.String
	job.FailureReason = failureReason.String
	if errCounts.Valid && errCounts.String != "" {
		if err := json.Unmarshal([]byte(errCounts.String), &job.ErrorCounts); err != nil {
			return nil, eris.Wrap(err, "unmarshal error counts")
		}
	}
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return &job, nil
}

// mergeLead applies the upsert semantics: contact sets union, the incoming
// score and classification win, the original identity and created_at stay.
func mergeLead(existing *model.Lead, incoming model.Lead, now time.Time) model.Lead {
	if incoming.ID == "" {
		incoming.ID = uuid.NewString()
	}
	if existing == nil {
		incoming.CreatedAt = now
		incoming.UpdatedAt = now
		return incoming
	}

	merged := incoming
	merged.ID = existing.ID
	merged.CreatedAt = existing.CreatedAt
	merged.UpdatedAt = now
	merged.Contact = existing.Contact.Merge(incoming.Contact)
	return merged
}

func marshalErrorCounts(counts map[string]int) (sql.NullString, error) {
	if len(counts) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(counts)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func marshalLeadJSON(lead model.Lead) (contact string, breakdown sql.NullString, err error) {
	contactBytes, err := json.Marshal(lead.Contact)
	if err != nil {
		return "", sql.NullString{}, eris.Wrap(err, "marshal contact")
	}
	if lead.ScoreBreakdown != nil {
		b, err := json.Marshal(lead.ScoreBreakdown)
		if err != nil {
			return "", sql.NullString{}, eris.Wrap(err, "marshal score breakdown")
		}
		breakdown = sql.NullString{String: string(b), Valid: true}
	}
	return string(contactBytes), breakdown, nil
}
