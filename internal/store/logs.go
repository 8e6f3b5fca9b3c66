package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ticketsync/backend/internal/model"
)

// LogStore provides collection access for the append-only ingestion_logs.
type LogStore struct {
	db DBTX
}

// InsertLogParams holds the fields of one audit row, written exactly once per
// job that acquired a lock.
type InsertLogParams struct {
	TenantID     string
	JobID        uuid.UUID
	StartedAt    time.Time
	EndedAt      time.Time
	NewIngested  int
	Updated      int
	Errors       int
	ErrorMessage *string
}

// Insert appends one ingestion log row.
func (s *LogStore) Insert(ctx context.Context, p InsertLogParams) error {
	_, err := s.db.Exec(ctx, `INSERT INTO ingestion_logs
		(id, tenant_id, job_id, started_at, ended_at, new_ingested, updated, errors, error_message)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		uuid.New(), p.TenantID, p.JobID, p.StartedAt, p.EndedAt, p.NewIngested, p.Updated, p.Errors, p.ErrorMessage)
	if err != nil {
		return fmt.Errorf("inserting ingestion log: %w", err)
	}
	return nil
}

// ListByTenant returns the most recent ingestion log rows for a tenant.
func (s *LogStore) ListByTenant(ctx context.Context, tenantID string, limit int) ([]model.IngestionLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `SELECT id, tenant_id, job_id, started_at, ended_at, new_ingested, updated, errors, error_message
		FROM ingestion_logs WHERE tenant_id = $1 ORDER BY started_at DESC LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing ingestion logs: %w", err)
	}
	defer rows.Close()

	var out []model.IngestionLog
	for rows.Next() {
		var l model.IngestionLog
		if err := rows.Scan(&l.ID, &l.TenantID, &l.JobID, &l.StartedAt, &l.EndedAt, &l.NewIngested, &l.Updated, &l.Errors, &l.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scanning ingestion log: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
