package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tailorjd/tailorjd-be/internal/domain"
)

// CreateJob persists a new job record. The record exists before the job is
// appended to any in-memory queue so clients can poll immediately.
func (s *Storage) CreateJob(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (
			job_id, user_id, job_type, status, created_at
		) VALUES (
			$1, $2, $3, $4, $5
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		job.JobID,
		job.UserID,
		job.JobType,
		job.Status,
		job.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// GetJob retrieves a job record by its ID.
func (s *Storage) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	var job domain.Job
	query := `
		SELECT
			job_id, user_id, job_type, status,
			COALESCE(error_message, '') AS error_message,
			result, created_at, completed_at
		FROM jobs
		WHERE job_id = $1
	`

	err := s.db.GetContext(ctx, &job, query, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// MarkJobCompleted moves a job to COMPLETED and stores its result payload.
// The status guard keeps terminal states stable: a job that already reached
// COMPLETED or FAILED is never transitioned again.
func (s *Storage) MarkJobCompleted(ctx context.Context, jobID string, result *domain.JobResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal job result: %w", err)
	}

	query := `
		UPDATE jobs
		SET status = $1,
		    result = $2,
		    completed_at = NOW()
		WHERE job_id = $3
		  AND status = $4
	`

	res, err := s.db.ExecContext(ctx, query, domain.JobStatusCompleted, resultJSON, jobID, domain.JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}

	s.warnIfNotTransitioned(res, jobID, domain.JobStatusCompleted)
	return nil
}

// MarkJobFailed moves a job to FAILED with a human-readable error message.
func (s *Storage) MarkJobFailed(ctx context.Context, jobID, errorMessage string) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    error_message = $2,
		    completed_at = NOW()
		WHERE job_id = $3
		  AND status = $4
	`

	res, err := s.db.ExecContext(ctx, query, domain.JobStatusFailed, errorMessage, jobID, domain.JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}

	s.warnIfNotTransitioned(res, jobID, domain.JobStatusFailed)
	return nil
}

// FailStaleJobs fails PROCESSING records older than the cutoff. Queued work
// lives in memory only, so a restart orphans records in PROCESSING; this
// sweep runs at startup to reconcile them.
func (s *Storage) FailStaleJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)

	query := `
		UPDATE jobs
		SET status = $1,
		    error_message = $2,
		    completed_at = NOW()
		WHERE status = $3
		  AND created_at < $4
	`

	res, err := s.db.ExecContext(ctx, query,
		domain.JobStatusFailed,
		"Job was interrupted before completion.",
		domain.JobStatusProcessing,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep stale jobs: %w", err)
	}

	swept, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return swept, nil
}

func (s *Storage) warnIfNotTransitioned(res sql.Result, jobID, status string) {
	rowsAffected, err := res.RowsAffected()
	if err != nil || rowsAffected > 0 {
		return
	}

	s.logger.Warn("Job status update - no rows affected (job missing or already terminal)",
		slog.String("job_id", jobID),
		slog.String("status", status),
	)
}
