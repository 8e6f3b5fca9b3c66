package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ticketsync/backend/internal/model"
)

// TicketStore provides collection access for tickets.
type TicketStore struct {
	db DBTX
}

// ErrDuplicateTicket is returned by Insert when a concurrent run already
// created a ticket for the same (tenant_id, external_id).
var ErrDuplicateTicket = errors.New("store: duplicate ticket")

const uniqueViolationCode = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

const ticketColumns = `id, tenant_id, external_id, customer_id, source, subject, message,
	status, urgency, sentiment, requires_action, created_at, updated_at, deleted_at`

func scanTicket(row pgx.Row) (model.Ticket, error) {
	var t model.Ticket
	err := row.Scan(
		&t.ID, &t.TenantID, &t.ExternalID, &t.CustomerID, &t.Source, &t.Subject, &t.Message,
		&t.Status, &t.Urgency, &t.Sentiment, &t.RequiresAction, &t.CreatedAt, &t.UpdatedAt, &t.DeletedAt,
	)
	return t, err
}

func scanTicketRows(rows pgx.Rows) ([]model.Ticket, error) {
	defer rows.Close()
	var out []model.Ticket
	for rows.Next() {
		var t model.Ticket
		if err := rows.Scan(
			&t.ID, &t.TenantID, &t.ExternalID, &t.CustomerID, &t.Source, &t.Subject, &t.Message,
			&t.Status, &t.Urgency, &t.Sentiment, &t.RequiresAction, &t.CreatedAt, &t.UpdatedAt, &t.DeletedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning ticket row: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ticket rows: %w", err)
	}
	return out, nil
}

// FindByExternalID looks up a ticket by (tenant_id, external_id), including
// soft-deleted rows, since the unique index covers them too and a ticket
// that reappears upstream must match its existing row rather than be
// inserted again. Nothing in SyncEngine clears deleted_at on such a row.
func (s *TicketStore) FindByExternalID(ctx context.Context, tenantID, externalID string) (*model.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE tenant_id = $1 AND external_id = $2`
	t, err := scanTicket(s.db.QueryRow(ctx, query, tenantID, externalID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("finding ticket by external id: %w", err)
	}
	return &t, nil
}

// InsertParams holds the fields needed to create a brand-new ticket.
type InsertParams struct {
	TenantID       string
	ExternalID     string
	CustomerID     string
	Source         string
	Subject        string
	Message        string
	Status         string
	Urgency        model.Urgency
	Sentiment      model.Sentiment
	RequiresAction bool
}

// Insert creates a brand-new ticket. The (tenant_id, external_id) unique
// index is the only serialization point: a concurrent Insert racing on the
// same pair fails with ErrDuplicateTicket, which SyncEngine resolves by
// re-reading the row and retrying as an Update — find-and-modify semantics
// realized as insert-then-retry rather than a single statement, since a
// conditional "insert if absent, else compare-and-update" has no single-
// statement Postgres equivalent once the update is conditioned on a
// comparison against the existing row's updated_at.
func (s *TicketStore) Insert(ctx context.Context, p InsertParams, now time.Time) (model.Ticket, error) {
	query := `INSERT INTO tickets (
		id, tenant_id, external_id, customer_id, source, subject, message,
		status, urgency, sentiment, requires_action, created_at, updated_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	RETURNING ` + ticketColumns
	row := s.db.QueryRow(ctx, query,
		uuid.New(), p.TenantID, p.ExternalID, p.CustomerID, p.Source, p.Subject, p.Message,
		p.Status, p.Urgency, p.Sentiment, p.RequiresAction, now, now,
	)
	t, err := scanTicket(row)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Ticket{}, ErrDuplicateTicket
		}
		return model.Ticket{}, fmt.Errorf("inserting ticket: %w", err)
	}
	return t, nil
}

// UpdateParams holds the fields SyncEngine may mutate on a changed ticket.
type UpdateParams struct {
	ID             uuid.UUID
	CustomerID     string
	Source         string
	Subject        string
	Message        string
	Status         string
	Urgency        model.Urgency
	Sentiment      model.Sentiment
	RequiresAction bool
	UpdatedAt      time.Time
}

// Update applies a field-level change to an existing ticket.
func (s *TicketStore) Update(ctx context.Context, p UpdateParams) (model.Ticket, error) {
	query := `UPDATE tickets SET
		customer_id = $2, source = $3, subject = $4, message = $5, status = $6,
		urgency = $7, sentiment = $8, requires_action = $9, updated_at = $10
	WHERE id = $1
	RETURNING ` + ticketColumns
	row := s.db.QueryRow(ctx, query,
		p.ID, p.CustomerID, p.Source, p.Subject, p.Message, p.Status,
		p.Urgency, p.Sentiment, p.RequiresAction, p.UpdatedAt,
	)
	t, err := scanTicket(row)
	if err != nil {
		return model.Ticket{}, fmt.Errorf("updating ticket: %w", err)
	}
	return t, nil
}

// SoftDelete marks a ticket deleted at the given time.
func (s *TicketStore) SoftDelete(ctx context.Context, id uuid.UUID, now time.Time) error {
	_, err := s.db.Exec(ctx, `UPDATE tickets SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`, id, now)
	if err != nil {
		return fmt.Errorf("soft-deleting ticket: %w", err)
	}
	return nil
}

// ListFilter scopes a tenant-bound read. Zero values mean "no filter".
type ListFilter struct {
	TenantID string
	Status   string
	Urgency  model.Urgency
	Limit    int
	Offset   int
}

// List returns tenant-scoped, non-deleted tickets ordered by recency.
func (s *TicketStore) List(ctx context.Context, f ListFilter) ([]model.Ticket, error) {
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `SELECT ` + ticketColumns + ` FROM tickets
		WHERE tenant_id = $1 AND deleted_at IS NULL`
	args := []any{f.TenantID}
	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.Urgency != "" {
		args = append(args, f.Urgency)
		query += fmt.Sprintf(" AND urgency = $%d", len(args))
	}
	args = append(args, limit, f.Offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing tickets: %w", err)
	}
	return scanTicketRows(rows)
}

// GetByExternalIDActive returns a single non-deleted ticket or nil if absent.
func (s *TicketStore) GetByExternalIDActive(ctx context.Context, tenantID, externalID string) (*model.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets
		WHERE tenant_id = $1 AND external_id = $2 AND deleted_at IS NULL`
	t, err := scanTicket(s.db.QueryRow(ctx, query, tenantID, externalID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("getting ticket: %w", err)
	}
	return &t, nil
}

// ListAllActiveExternalIDs returns the external_ids of every non-deleted
// ticket for a tenant, regardless of when it was created. The external
// source's pagination has no date window of its own (FetchPage walks the
// whole tenant every run), so the deletion sweep must compare against every
// active ticket the tenant has, not just ones created during this run -
// a ticket created in a prior run that vanishes upstream this run is still
// a deletion candidate.
func (s *TicketStore) ListAllActiveExternalIDs(ctx context.Context, tenantID string) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT external_id FROM tickets
		WHERE tenant_id = $1 AND deleted_at IS NULL`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing active external ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning external id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetIDByExternalID resolves a ticket's primary key for history writes
// during the deletion sweep.
func (s *TicketStore) GetIDByExternalID(ctx context.Context, tenantID, externalID string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.db.QueryRow(ctx, `SELECT id FROM tickets WHERE tenant_id = $1 AND external_id = $2`, tenantID, externalID).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("resolving ticket id: %w", err)
	}
	return id, nil
}
