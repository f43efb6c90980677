package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const jobColumns = `id, job_type, document_id, input_path, title, status,
    progress, attempts, max_attempts, error_message, next_run_at, created_at, updated_at`

// EnqueueJob inserts a new queued job. The caller assigns the ID.
func (s *Store) EnqueueJob(ctx context.Context, job *Job) error {
	if job.ID == "" {
		return errors.New("job id is empty")
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = 3
	}
	now := time.Now().UTC()
	job.Status = JobQueued
	job.Progress = 0
	job.NextRunAt = now
	job.CreatedAt = now
	job.UpdatedAt = now

	_, err := s.execWithRetry(ctx,
		`INSERT INTO ingest_jobs (
            id, job_type, document_id, input_path, title, status,
            progress, attempts, max_attempts, error_message, next_run_at, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, 0, 0, ?, '', ?, ?, ?)`,
		job.ID, string(job.Type), job.DocumentID, job.InputPath, job.Title,
		string(JobQueued), job.MaxAttempts,
		formatTime(now), formatTime(now), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

// GetJob fetches a job by id.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM ingest_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ClaimJob atomically takes the oldest due queued job, marking it active and
// bumping its attempt counter. Returns nil when the queue is empty.
func (s *Store) ClaimJob(ctx context.Context) (*Job, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM ingest_jobs
         WHERE status = ? AND next_run_at <= ?
         ORDER BY created_at ASC LIMIT 1`,
		string(JobQueued), formatTime(now))
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select claimable job: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE ingest_jobs SET status = ?, attempts = attempts + 1, updated_at = ? WHERE id = ?`,
		string(JobActive), formatTime(now), job.ID); err != nil {
		return nil, fmt.Errorf("mark job active: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}

	job.Status = JobActive
	job.Attempts++
	job.UpdatedAt = now
	return job, nil
}

// UpdateJobProgress raises a job's progress percentage. Progress is
// monotonic: a lower value than the current one is ignored.
func (s *Store) UpdateJobProgress(ctx context.Context, id string, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	_, err := s.execWithRetry(ctx,
		`UPDATE ingest_jobs
         SET progress = CASE WHEN ? > progress THEN ? ELSE progress END, updated_at = ?
         WHERE id = ?`,
		progress, progress, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	return nil
}

// CompleteJob finalizes a job as completed with progress 100.
func (s *Store) CompleteJob(ctx context.Context, id string) error {
	_, err := s.execWithRetry(ctx,
		`UPDATE ingest_jobs SET status = ?, progress = 100, error_message = '', updated_at = ? WHERE id = ?`,
		string(JobCompleted), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

// FailJob finalizes a job as failed with the given reason.
func (s *Store) FailJob(ctx context.Context, id, reason string) error {
	_, err := s.execWithRetry(ctx,
		`UPDATE ingest_jobs SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		string(JobFailed), reason, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return nil
}

// RequeueJob puts an active job back in the queue for a later retry.
func (s *Store) RequeueJob(ctx context.Context, id, reason string, nextRunAt time.Time) error {
	_, err := s.execWithRetry(ctx,
		`UPDATE ingest_jobs SET status = ?, error_message = ?, next_run_at = ?, updated_at = ? WHERE id = ?`,
		string(JobQueued), reason, formatTime(nextRunAt), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("requeue job: %w", err)
	}
	return nil
}

// HasActiveJob reports whether a document has a queued or active job. This
// is the advisory lock checked before enqueueing new work for a document.
func (s *Store) HasActiveJob(ctx context.Context, documentID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM ingest_jobs WHERE document_id = ? AND status IN (?, ?)`,
		documentID, string(JobQueued), string(JobActive)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check active jobs: %w", err)
	}
	return n > 0, nil
}

func scanJob(row *sql.Row) (*Job, error) {
	var (
		job                           Job
		jobType, status               string
		nextRunAt, createdAt, updated string
	)
	err := row.Scan(&job.ID, &jobType, &job.DocumentID, &job.InputPath, &job.Title,
		&status, &job.Progress, &job.Attempts, &job.MaxAttempts, &job.ErrorMessage,
		&nextRunAt, &createdAt, &updated)
	if err != nil {
		return nil, err
	}
	job.Type = JobType(jobType)
	job.Status = JobStatus(status)
	job.NextRunAt = parseTime(nextRunAt)
	job.CreatedAt = parseTime(createdAt)
	job.UpdatedAt = parseTime(updated)
	return &job, nil
}
