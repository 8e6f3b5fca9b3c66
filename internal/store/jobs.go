package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ticketsync/backend/internal/model"
)

// JobStore provides collection access for ingestion_jobs.
type JobStore struct {
	db DBTX
}

const jobColumns = `job_id, tenant_id, status, started_at, ended_at, total_pages, processed_pages, progress`

func scanJob(row pgx.Row) (model.IngestionJob, error) {
	var j model.IngestionJob
	err := row.Scan(&j.JobID, &j.TenantID, &j.Status, &j.StartedAt, &j.EndedAt, &j.TotalPages, &j.ProcessedPages, &j.Progress)
	return j, err
}

// Insert creates a new running job. Called only after LockManager.Acquire
// succeeds — there is no pre-check of existing jobs, per the orchestrator
// contract.
func (s *JobStore) Insert(ctx context.Context, jobID uuid.UUID, tenantID string, startedAt time.Time) (model.IngestionJob, error) {
	query := `INSERT INTO ingestion_jobs (job_id, tenant_id, status, started_at, total_pages, processed_pages, progress)
		VALUES ($1, $2, $3, $4, 0, 0, 0)
		RETURNING ` + jobColumns
	j, err := scanJob(s.db.QueryRow(ctx, query, jobID, tenantID, model.JobRunning, startedAt))
	if err != nil {
		return model.IngestionJob{}, fmt.Errorf("inserting job: %w", err)
	}
	return j, nil
}

// UpdateProgress updates page counters and the derived progress percentage
// of a still-running job.
func (s *JobStore) UpdateProgress(ctx context.Context, jobID uuid.UUID, totalPages, processedPages, progress int) error {
	_, err := s.db.Exec(ctx, `UPDATE ingestion_jobs SET total_pages = $2, processed_pages = $3, progress = $4
		WHERE job_id = $1 AND status = $5`, jobID, totalPages, processedPages, progress, model.JobRunning)
	if err != nil {
		return fmt.Errorf("updating job progress: %w", err)
	}
	return nil
}

// Finish transitions a job to a terminal state. Terminal states are
// immutable: Finish, like UpdateProgress, only matches rows still in
// "running", so a job that has left that state is never written again.
func (s *JobStore) Finish(ctx context.Context, jobID uuid.UUID, status model.JobStatus, endedAt time.Time, progress int) error {
	_, err := s.db.Exec(ctx, `UPDATE ingestion_jobs SET status = $2, ended_at = $3, progress = $4
		WHERE job_id = $1 AND status = $5`, jobID, status, endedAt, progress, model.JobRunning)
	if err != nil {
		return fmt.Errorf("finishing job: %w", err)
	}
	return nil
}

// Get returns a single job by id.
func (s *JobStore) Get(ctx context.Context, jobID uuid.UUID) (*model.IngestionJob, error) {
	j, err := scanJob(s.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM ingestion_jobs WHERE job_id = $1`, jobID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("getting job: %w", err)
	}
	return &j, nil
}

// FindRunning returns the currently running job for a tenant, if any. This
// is informational only (e.g. for GET /ingest/status) — it is never used to
// decide whether a new run may start; LockManager is the only serialization
// point for that decision.
func (s *JobStore) FindRunning(ctx context.Context, tenantID string) (*model.IngestionJob, error) {
	j, err := scanJob(s.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM ingestion_jobs
		WHERE tenant_id = $1 AND status = $2 ORDER BY started_at DESC LIMIT 1`, tenantID, model.JobRunning))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("finding running job: %w", err)
	}
	return &j, nil
}
