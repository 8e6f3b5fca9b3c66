package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ticketsync/backend/internal/model"
)

// HistoryStore provides collection access for the append-only ticket_history.
type HistoryStore struct {
	db DBTX
}

// Insert appends one ticket_history row.
func (s *HistoryStore) Insert(ctx context.Context, ticketID uuid.UUID, tenantID string, action model.HistoryAction, changes map[string]model.FieldDiff, recordedAt time.Time) error {
	raw, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("marshalling history changes: %w", err)
	}
	_, err = s.db.Exec(ctx, `INSERT INTO ticket_history (id, ticket_id, tenant_id, action, changes, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6)`, uuid.New(), ticketID, tenantID, action, raw, recordedAt)
	if err != nil {
		return fmt.Errorf("inserting ticket history: %w", err)
	}
	return nil
}

// ListByTicket returns the full change history for one ticket, most recent first.
func (s *HistoryStore) ListByTicket(ctx context.Context, ticketID uuid.UUID) ([]model.TicketHistory, error) {
	rows, err := s.db.Query(ctx, `SELECT id, ticket_id, tenant_id, action, changes, recorded_at
		FROM ticket_history WHERE ticket_id = $1 ORDER BY recorded_at DESC`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("listing ticket history: %w", err)
	}
	defer rows.Close()

	var out []model.TicketHistory
	for rows.Next() {
		var h model.TicketHistory
		var raw []byte
		if err := rows.Scan(&h.ID, &h.TicketID, &h.TenantID, &h.Action, &raw, &h.RecordedAt); err != nil {
			return nil, fmt.Errorf("scanning ticket history row: %w", err)
		}
		if err := json.Unmarshal(raw, &h.Changes); err != nil {
			return nil, fmt.Errorf("unmarshalling ticket history changes: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
