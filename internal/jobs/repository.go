package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Repository persists job snapshots.
type Repository interface {
	// Create inserts a new job.
	Create(ctx context.Context, job *Job) error

	// Update overwrites the mutable fields of an existing job.
	Update(ctx context.Context, job *Job) error

	// Get retrieves a job by id. Returns ErrJobNotFound if absent.
	Get(ctx context.Context, id string) (*Job, error)

	// List returns up to limit jobs, most recent first.
	List(ctx context.Context, limit int) ([]Job, error)

	// RecoverStale marks every queued or running job as failed with reason.
	// It returns the number of jobs changed.
	RecoverStale(ctx context.Context, reason string) (int, error)
}

// timeLayout is fixed-width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed job repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const jobColumns = `id, type, status, params, result, error, created_at, started_at, completed_at`

// Create inserts a new job row.
func (r *SQLiteRepository) Create(ctx context.Context, job *Job) error {
	params, err := marshalParams(job.Params)
	if err != nil {
		return err
	}

	query := `INSERT INTO jobs (` + jobColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query,
		job.ID,
		string(job.Type),
		string(job.Status),
		params,
		nullableJSON(job.Result),
		nullableString(job.Error),
		job.CreatedAt.UTC().Format(timeLayout),
		nullableTime(job.StartedAt),
		nullableTime(job.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting job: %w", err)
	}
	return nil
}

// Update writes the job's status, result, error and timestamps.
func (r *SQLiteRepository) Update(ctx context.Context, job *Job) error {
	query := `
		UPDATE jobs SET
			status = ?, result = ?, error = ?, started_at = ?, completed_at = ?
		WHERE id = ?`

	res, err := r.db.ExecContext(ctx, query,
		string(job.Status),
		nullableJSON(job.Result),
		nullableString(job.Error),
		nullableTime(job.StartedAt),
		nullableTime(job.CompletedAt),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("updating job: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrJobNotFound
	}
	return nil
}

// Get retrieves a job by id.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`
	job, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying job: %w", err)
	}
	return job, nil
}

// List returns up to limit jobs ordered by creation time, newest first.
func (r *SQLiteRepository) List(ctx context.Context, limit int) ([]Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs ORDER BY created_at DESC, rowid DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying jobs: %w", err)
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		job, scanErr := scanJob(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning job: %w", scanErr)
		}
		out = append(out, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating jobs: %w", err)
	}
	return out, nil
}

// RecoverStale fails every job a previous process left unfinished.
func (r *SQLiteRepository) RecoverStale(ctx context.Context, reason string) (int, error) {
	now := time.Now().UTC().Format(timeLayout)
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, error = ?, completed_at = ?
		WHERE status IN (?, ?)`,
		string(StateFailed), reason, now,
		string(StateQueued), string(StateRunning),
	)
	if err != nil {
		return 0, fmt.Errorf("recovering stale jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(scanner rowScanner) (*Job, error) {
	var j Job
	var jobType, status, createdAt string
	var params, result, errText, startedAt, completedAt sql.NullString

	err := scanner.Scan(
		&j.ID,
		&jobType,
		&status,
		&params,
		&result,
		&errText,
		&createdAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	j.Type = Type(jobType)
	j.Status = State(status)
	if errText.Valid {
		j.Error = errText.String
	}
	if result.Valid && result.String != "" {
		j.Result = json.RawMessage(result.String)
	}
	if params.Valid && params.String != "" {
		if jsonErr := json.Unmarshal([]byte(params.String), &j.Params); jsonErr != nil {
			return nil, fmt.Errorf("unmarshalling params: %w", jsonErr)
		}
	}

	if t, parseErr := time.Parse(time.RFC3339Nano, createdAt); parseErr == nil {
		j.CreatedAt = t
	}
	j.StartedAt = parseNullableTime(startedAt)
	j.CompletedAt = parseNullableTime(completedAt)

	return &j, nil
}

func marshalParams(params map[string]any) (sql.NullString, error) {
	if len(params) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(params)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshalling params: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func nullableJSON(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeLayout), Valid: true}
}

func parseNullableTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}
