// Package syncengine applies one fetched external ticket to the store,
// producing exactly one of created/updated/unchanged, and sweeps tickets
// that vanished from the upstream window into soft-deletion. It is the
// single place where classification results are reconciled against
// whatever is already persisted.
package syncengine

import (
	"context"
	"fmt"
	"time"

	"github.com/ticketsync/backend/internal/classifier"
	"github.com/ticketsync/backend/internal/model"
	"github.com/ticketsync/backend/internal/store"
	"github.com/ticketsync/backend/internal/telemetry"
)

// Engine reconciles external tickets against the store.
type Engine struct {
	tickets *store.TicketStore
	history *store.HistoryStore
	nowFunc func() time.Time
}

// New creates a SyncEngine bound to a tenant-agnostic store. Every method
// takes a tenant_id explicitly; the engine itself holds no tenant state.
func New(tickets *store.TicketStore, history *store.HistoryStore) *Engine {
	return &Engine{tickets: tickets, history: history, nowFunc: time.Now}
}

// Result describes what Sync did with one external ticket.
type Result struct {
	Outcome model.SyncOutcome
	Ticket  model.Ticket
}

// Sync reconciles one external ticket for tenantID.
//
// Three-way branch: no existing row -> insert; incoming updated_at no newer
// than the existing row's -> no write at all; existing row strictly older
// -> diff, update, and append history. A unique-index
// collision on insert (another run's concurrent insert for the same
// external id) is resolved by re-reading the row and retrying as an
// update rather than surfacing an error, since the row now unambiguously
// exists and the retry sees it.
func (e *Engine) Sync(ctx context.Context, tenantID string, ext model.ExternalTicket) (Result, error) {
	existing, err := e.tickets.FindByExternalID(ctx, tenantID, ext.ExternalID)
	if err != nil {
		return Result{}, fmt.Errorf("looking up existing ticket: %w", err)
	}

	if existing == nil {
		return e.insert(ctx, tenantID, ext)
	}

	if !ext.UpdatedAt.After(existing.UpdatedAt) {
		return Result{Outcome: model.SyncUnchanged, Ticket: *existing}, nil
	}

	return e.update(ctx, *existing, ext)
}

func (e *Engine) insert(ctx context.Context, tenantID string, ext model.ExternalTicket) (Result, error) {
	cls := classifier.Classify(ext.Subject, ext.Message)
	now := e.nowFunc()

	t, err := e.tickets.Insert(ctx, store.InsertParams{
		TenantID:       tenantID,
		ExternalID:     ext.ExternalID,
		CustomerID:     ext.CustomerID,
		Source:         ext.Source,
		Subject:        ext.Subject,
		Message:        ext.Message,
		Status:         ext.Status,
		Urgency:        model.Urgency(cls.Urgency),
		Sentiment:      model.Sentiment(cls.Sentiment),
		RequiresAction: cls.RequiresAction,
	}, now)
	if err != nil {
		if err == store.ErrDuplicateTicket {
			existing, findErr := e.tickets.FindByExternalID(ctx, tenantID, ext.ExternalID)
			if findErr != nil {
				return Result{}, fmt.Errorf("re-reading after duplicate insert: %w", findErr)
			}
			if existing == nil {
				return Result{}, fmt.Errorf("ticket vanished after duplicate insert conflict")
			}
			return e.update(ctx, *existing, ext)
		}
		return Result{}, fmt.Errorf("inserting ticket: %w", err)
	}

	if err := e.history.Insert(ctx, t.ID, tenantID, model.HistoryCreated, nil, now); err != nil {
		return Result{}, fmt.Errorf("writing creation history: %w", err)
	}
	telemetry.TicketsIngestedTotal.WithLabelValues(tenantID).Inc()
	return Result{Outcome: model.SyncCreated, Ticket: t}, nil
}

func (e *Engine) update(ctx context.Context, existing model.Ticket, ext model.ExternalTicket) (Result, error) {
	cls := classifier.Classify(ext.Subject, ext.Message)
	now := e.nowFunc()

	changes := diff(existing, ext, cls)
	if len(changes) == 0 {
		return Result{Outcome: model.SyncUnchanged, Ticket: existing}, nil
	}

	t, err := e.tickets.Update(ctx, store.UpdateParams{
		ID:             existing.ID,
		CustomerID:     ext.CustomerID,
		Source:         ext.Source,
		Subject:        ext.Subject,
		Message:        ext.Message,
		Status:         ext.Status,
		Urgency:        model.Urgency(cls.Urgency),
		Sentiment:      model.Sentiment(cls.Sentiment),
		RequiresAction: cls.RequiresAction,
		UpdatedAt:      now,
	})
	if err != nil {
		return Result{}, fmt.Errorf("updating ticket: %w", err)
	}

	if err := e.history.Insert(ctx, t.ID, t.TenantID, model.HistoryUpdated, changes, now); err != nil {
		return Result{}, fmt.Errorf("writing update history: %w", err)
	}
	telemetry.TicketsUpdatedTotal.WithLabelValues(t.TenantID).Inc()
	return Result{Outcome: model.SyncUpdated, Ticket: t}, nil
}

// diff compares the persisted ticket to the incoming classification and
// returns only the fields that actually changed.
func diff(existing model.Ticket, ext model.ExternalTicket, cls classifier.Result) map[string]model.FieldDiff {
	changes := make(map[string]model.FieldDiff)
	add := func(field string, oldV, newV any) {
		changes[field] = model.FieldDiff{Old: oldV, New: newV}
	}

	if existing.CustomerID != ext.CustomerID {
		add("customer_id", existing.CustomerID, ext.CustomerID)
	}
	if existing.Source != ext.Source {
		add("source", existing.Source, ext.Source)
	}
	if existing.Subject != ext.Subject {
		add("subject", existing.Subject, ext.Subject)
	}
	if existing.Message != ext.Message {
		add("message", existing.Message, ext.Message)
	}
	if existing.Status != ext.Status {
		add("status", existing.Status, ext.Status)
	}
	if string(existing.Urgency) != cls.Urgency {
		add("urgency", existing.Urgency, cls.Urgency)
	}
	if string(existing.Sentiment) != cls.Sentiment {
		add("sentiment", existing.Sentiment, cls.Sentiment)
	}
	if existing.RequiresAction != cls.RequiresAction {
		add("requires_action", existing.RequiresAction, cls.RequiresAction)
	}
	return changes
}

// SweepDeleted soft-deletes every active ticket for tenantID whose
// external_id did not appear in seenExternalIDs during this run's full page
// walk. The external source has no date-scoped pagination - a run always
// walks every page for the tenant - so every currently-active ticket is a
// deletion candidate, not just ones created during this run.
func (e *Engine) SweepDeleted(ctx context.Context, tenantID string, seenExternalIDs map[string]struct{}) (int, error) {
	candidates, err := e.tickets.ListAllActiveExternalIDs(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("listing deletion sweep candidates: %w", err)
	}

	now := e.nowFunc()
	deleted := 0
	for _, externalID := range candidates {
		if _, ok := seenExternalIDs[externalID]; ok {
			continue
		}

		id, err := e.tickets.GetIDByExternalID(ctx, tenantID, externalID)
		if err != nil {
			return deleted, fmt.Errorf("resolving ticket id for sweep: %w", err)
		}
		if err := e.tickets.SoftDelete(ctx, id, now); err != nil {
			return deleted, fmt.Errorf("soft-deleting ticket: %w", err)
		}
		if err := e.history.Insert(ctx, id, tenantID, model.HistoryDeleted, nil, now); err != nil {
			return deleted, fmt.Errorf("writing deletion history: %w", err)
		}
		deleted++
	}
	if deleted > 0 {
		telemetry.TicketsDeletedTotal.WithLabelValues(tenantID).Add(float64(deleted))
	}
	return deleted, nil
}
