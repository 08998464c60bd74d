package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/saldang/grezzi/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas are per connection; queue workers share this one.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	id           TEXT PRIMARY KEY,
	file         TEXT NOT NULL,
	table_id     TEXT NOT NULL DEFAULT '',
	state        TEXT NOT NULL DEFAULT 'queued',
	raw_rows     INTEGER NOT NULL DEFAULT 0,
	clean_rows   INTEGER NOT NULL DEFAULT 0,
	removed_rows INTEGER NOT NULL DEFAULT 0,
	final_path   TEXT NOT NULL DEFAULT '',
	error        TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_jobs_state ON jobs(state);
CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);
`

const jobColumns = `id, file, table_id, state, raw_rows, clean_rows, removed_rows, final_path, error, created_at, updated_at`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateJob(ctx context.Context, file, tableID string) (*model.Job, error) {
	job := newJob(file, tableID)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, file, table_id, state, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		job.ID, job.File, job.TableID, string(job.State), job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert job")
	}
	return job, nil
}

func (s *SQLiteStore) UpdateJobState(ctx context.Context, id string, state model.JobState) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET state = ?, updated_at = ? WHERE id = ?`,
		string(state), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update job state %s", id)
	}
	return checkRowsAffected(res, id)
}

func (s *SQLiteStore) CompleteJob(ctx context.Context, id string, r model.JobResult) error {
	return s.finish(ctx, id, model.JobStateForwarded, r, "")
}

func (s *SQLiteStore) FailJob(ctx context.Context, id string, r model.JobResult, msg string) error {
	return s.finish(ctx, id, model.JobStateFailed, r, msg)
}

func (s *SQLiteStore) finish(ctx context.Context, id string, state model.JobState, r model.JobResult, msg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET state = ?, raw_rows = ?, clean_rows = ?, removed_rows = ?, final_path = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(state), r.RawRows, r.CleanRows, r.RemovedRows, r.FinalPath, msg, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish job %s", id)
	}
	return checkRowsAffected(res, id)
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get job %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get job %s", id)
	}
	return job, nil
}

func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	var args []any

	if filter.State != "" {
		query += ` AND state = ?`
		args = append(args, string(filter.State))
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.CreatedAfter.UTC())
	}
	query += ` ORDER BY created_at DESC, rowid DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, max(filter.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close() //nolint:errcheck

	var jobs []model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job")
		}
		jobs = append(jobs, *job)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

// helpers

func newJob(file, tableID string) *model.Job {
	now := time.Now().UTC()
	return &model.Job{
		ID:        uuid.New().String(),
		File:      file,
		TableID:   tableID,
		State:     model.JobStateQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "job %s", id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanJob(row scannable) (*model.Job, error) {
	var (
		j     model.Job
		state string
	)
	err := row.Scan(&j.ID, &j.File, &j.TableID, &state,
		&j.RawRows, &j.CleanRows, &j.RemovedRows, &j.FinalPath, &j.Error,
		&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	j.State = model.JobState(state)
	return &j, nil
}
