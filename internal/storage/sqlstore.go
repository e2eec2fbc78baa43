package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/caesarus-droid/audio-ink/internal/domain"
)

// timeLayout is RFC 3339 with fixed-width nanoseconds so lexicographic
// ordering in SQL matches chronological ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	source_name TEXT NOT NULL,
	source_type TEXT NOT NULL,
	status TEXT NOT NULL,
	text TEXT NOT NULL DEFAULT '',
	segments TEXT NOT NULL DEFAULT '[]',
	language TEXT NOT NULL DEFAULT '',
	device TEXT NOT NULL DEFAULT '',
	processing_time_seconds REAL NOT NULL DEFAULT 0,
	error_msg TEXT NOT NULL DEFAULT '',
	audio_path TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs (status);
`

// SQLStore is the relational JobStore backed by sqlite. Claim atomicity
// comes from a conditional UPDATE checked via RowsAffected.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// sqlite allows a single writer; serialize through one connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) Create(ctx context.Context, params CreateParams) (domain.Job, error) {
	now := time.Now().UTC()
	job := domain.Job{
		ID:         uuid.NewString(),
		SourceName: params.SourceName,
		SourceType: params.SourceType,
		Status:     domain.StatusPending,
		Segments:   []domain.Segment{},
		Language:   params.Language,
		AudioPath:  params.AudioPath,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	const q = `INSERT INTO jobs (id, source_name, source_type, status, language, audio_path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		job.ID, job.SourceName, job.SourceType, string(job.Status),
		job.Language, job.AudioPath, now.Format(timeLayout), now.Format(timeLayout))
	if err != nil {
		return domain.Job{}, &domain.PersistenceError{Op: "create", Err: err}
	}
	return job, nil
}

const selectColumns = `id, source_name, source_type, status, text, segments, language,
	device, processing_time_seconds, error_msg, audio_path, created_at, updated_at`

func (s *SQLStore) FindByID(ctx context.Context, id string) (domain.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

func (s *SQLStore) List(ctx context.Context, status domain.Status) ([]domain.Job, error) {
	query := `SELECT ` + selectColumns + ` FROM jobs ORDER BY created_at DESC`
	args := []any{}
	if status != "" {
		query = `SELECT ` + selectColumns + ` FROM jobs WHERE status = ? ORDER BY created_at DESC`
		args = append(args, string(status))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list", Err: err}
	}
	defer rows.Close()

	jobs := make([]domain.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.PersistenceError{Op: "list", Err: err}
	}
	return jobs, nil
}

func (s *SQLStore) Claim(ctx context.Context, id string) (domain.Job, error) {
	const q = `UPDATE jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`
	return s.transition(ctx, id, "claim", q,
		string(domain.StatusProcessing), time.Now().UTC().Format(timeLayout), id, string(domain.StatusPending))
}

func (s *SQLStore) Complete(ctx context.Context, id string, result domain.TranscriptionResult) (domain.Job, error) {
	segments := result.Segments
	if segments == nil {
		segments = []domain.Segment{}
	}
	segmentsJSON, err := json.Marshal(segments)
	if err != nil {
		return domain.Job{}, &domain.PersistenceError{Op: "complete", Err: err}
	}

	const q = `UPDATE jobs SET status = ?, text = ?, segments = ?,
		language = CASE WHEN ? = '' THEN language ELSE ? END,
		device = ?, processing_time_seconds = ?, audio_path = '', updated_at = ?
		WHERE id = ? AND status = ?`
	return s.transition(ctx, id, "complete", q,
		string(domain.StatusCompleted), result.Text, string(segmentsJSON),
		result.Language, result.Language,
		result.Device, result.ProcessingTimeSeconds, time.Now().UTC().Format(timeLayout),
		id, string(domain.StatusProcessing))
}

func (s *SQLStore) Fail(ctx context.Context, id string, message string) (domain.Job, error) {
	const q = `UPDATE jobs SET status = ?, error_msg = ?, audio_path = '', updated_at = ?
		WHERE id = ? AND status = ?`
	return s.transition(ctx, id, "fail", q,
		string(domain.StatusFailed), message, time.Now().UTC().Format(timeLayout),
		id, string(domain.StatusProcessing))
}

func (s *SQLStore) UpdateText(ctx context.Context, id string, text string) (domain.Job, error) {
	const q = `UPDATE jobs SET text = ?, updated_at = ? WHERE id = ? AND status = ?`
	return s.transition(ctx, id, "update text", q,
		text, time.Now().UTC().Format(timeLayout), id, string(domain.StatusCompleted))
}

// transition runs a status-guarded UPDATE. Zero rows affected means the
// precondition failed: either the id is unknown or the job is in the wrong
// state, distinguished by a follow-up lookup.
func (s *SQLStore) transition(ctx context.Context, id, op, query string, args ...any) (domain.Job, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return domain.Job{}, &domain.PersistenceError{Op: op, Err: err}
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Job{}, &domain.PersistenceError{Op: op, Err: err}
	}
	if affected == 0 {
		job, err := s.FindByID(ctx, id)
		if err != nil {
			return domain.Job{}, err
		}
		return domain.Job{}, &domain.StateError{ID: id, Status: job.Status, Op: op}
	}

	return s.FindByID(ctx, id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (domain.Job, error) {
	var job domain.Job
	var status, segmentsJSON, createdAt, updatedAt string

	err := row.Scan(&job.ID, &job.SourceName, &job.SourceType, &status, &job.Text,
		&segmentsJSON, &job.Language, &job.Device, &job.ProcessingTimeSeconds,
		&job.Error, &job.AudioPath, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Job{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Job{}, &domain.PersistenceError{Op: "scan", Err: err}
	}

	job.Status = domain.Status(status)
	if err := json.Unmarshal([]byte(segmentsJSON), &job.Segments); err != nil {
		return domain.Job{}, &domain.PersistenceError{Op: "decode segments", Err: err}
	}
	if job.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return domain.Job{}, &domain.PersistenceError{Op: "decode created_at", Err: err}
	}
	if job.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return domain.Job{}, &domain.PersistenceError{Op: "decode updated_at", Err: err}
	}
	return job, nil
}
