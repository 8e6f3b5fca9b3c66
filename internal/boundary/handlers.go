package boundary

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ticketsync/backend/internal/analytics"
	"github.com/ticketsync/backend/internal/lockmanager"
	"github.com/ticketsync/backend/internal/model"
	"github.com/ticketsync/backend/internal/orchestrator"
	"github.com/ticketsync/backend/internal/store"
)

// tenantQuery is the shape of the tenant-scoping query parameter shared by
// most read/write endpoints; validated via struct tags rather than a
// scattering of manual emptiness checks.
type tenantQuery struct {
	TenantID string `validate:"required"`
}

func (s *Server) handleIngestRun(w http.ResponseWriter, r *http.Request) {
	tenantID := TenantIDFromContext(r.Context())
	if !ValidateQuery(w, tenantQuery{TenantID: tenantID}) {
		return
	}

	summary, err := s.orchestrator.Run(r.Context(), tenantID)
	if err != nil {
		if errors.Is(err, orchestrator.ErrLockConflict) {
			RespondError(w, http.StatusConflict, "lock_conflict", "an ingestion run is already in progress for this tenant")
			return
		}
		s.logger.Error("ingestion run failed", "tenant_id", tenantID, "error", err)
		RespondError(w, http.StatusServiceUnavailable, "ingestion_failed", err.Error())
		return
	}

	Respond(w, http.StatusOK, map[string]any{
		"job_id":       summary.JobID,
		"status":       summary.Status,
		"new_ingested": summary.NewIngested,
		"updated":      summary.Updated,
		"errors":       summary.Errors,
	})
}

func (s *Server) handleIngestStatus(w http.ResponseWriter, r *http.Request) {
	tenantID := TenantIDFromContext(r.Context())
	if !ValidateQuery(w, tenantQuery{TenantID: tenantID}) {
		return
	}

	job, err := s.store.Jobs.FindRunning(r.Context(), tenantID)
	if err != nil {
		RespondError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if job == nil {
		Respond(w, http.StatusOK, map[string]any{"running": false})
		return
	}
	Respond(w, http.StatusOK, map[string]any{
		"running": true,
		"job_id":  job.JobID,
		"progress": job.Progress,
	})
}

func (s *Server) handleIngestProgress(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "job_id"))
	if err != nil {
		RespondError(w, http.StatusBadRequest, "invalid_job_id", "job_id must be a valid id")
		return
	}

	job, err := s.store.Jobs.Get(r.Context(), jobID)
	if err != nil {
		RespondError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if job == nil {
		RespondError(w, http.StatusNotFound, "not_found", "no such ingestion job")
		return
	}
	Respond(w, http.StatusOK, map[string]any{
		"job_id":          job.JobID,
		"status":          job.Status,
		"progress":        job.Progress,
		"total_pages":     job.TotalPages,
		"processed_pages": job.ProcessedPages,
	})
}

func (s *Server) handleIngestCancel(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "job_id"))
	if err != nil {
		RespondError(w, http.StatusBadRequest, "invalid_job_id", "job_id must be a valid id")
		return
	}

	if !s.orchestrator.Cancel(jobID) {
		RespondError(w, http.StatusNotFound, "not_found", "no running job with that id")
		return
	}
	Respond(w, http.StatusOK, map[string]any{"status": "cancelled", "job_id": jobID})
}

func (s *Server) handleIngestLock(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant_id")
	resource := lockmanager.ResourceName(tenantID)

	owner, acquiredAt, expiresAt, held, err := s.locks.Inspect(r.Context(), resource)
	if err != nil {
		RespondError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	Respond(w, http.StatusOK, map[string]any{
		"held":        held,
		"owner_id":    owner,
		"acquired_at": acquiredAt,
		"expires_at":  expiresAt,
	})
}

func (s *Server) handleTicketsList(w http.ResponseWriter, r *http.Request) {
	tenantID := TenantIDFromContext(r.Context())
	if !ValidateQuery(w, tenantQuery{TenantID: tenantID}) {
		return
	}

	f := store.ListFilter{
		TenantID: tenantID,
		Status:   r.URL.Query().Get("status"),
		Urgency:  model.Urgency(r.URL.Query().Get("urgency")),
		Limit:    atoiOr(r.URL.Query().Get("limit"), 50),
		Offset:   atoiOr(r.URL.Query().Get("offset"), 0),
	}

	tickets, err := s.store.Tickets.List(r.Context(), f)
	if err != nil {
		RespondError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	Respond(w, http.StatusOK, map[string]any{"tickets": tickets})
}

func (s *Server) handleTicketsUrgent(w http.ResponseWriter, r *http.Request) {
	tenantID := TenantIDFromContext(r.Context())
	if !ValidateQuery(w, tenantQuery{TenantID: tenantID}) {
		return
	}

	tickets, err := s.store.Tickets.List(r.Context(), store.ListFilter{
		TenantID: tenantID,
		Urgency:  model.UrgencyHigh,
		Limit:    atoiOr(r.URL.Query().Get("limit"), 50),
	})
	if err != nil {
		RespondError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	Respond(w, http.StatusOK, map[string]any{"tickets": tickets})
}

func (s *Server) handleTicketGet(w http.ResponseWriter, r *http.Request) {
	tenantID := TenantIDFromContext(r.Context())
	externalID := chi.URLParam(r, "external_id")
	if !ValidateQuery(w, tenantQuery{TenantID: tenantID}) {
		return
	}

	ticket, err := s.store.Tickets.GetByExternalIDActive(r.Context(), tenantID, externalID)
	if err != nil {
		RespondError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if ticket == nil {
		RespondError(w, http.StatusNotFound, "not_found", "no such ticket")
		return
	}
	Respond(w, http.StatusOK, ticket)
}

func (s *Server) handleTicketHistory(w http.ResponseWriter, r *http.Request) {
	tenantID := TenantIDFromContext(r.Context())
	externalID := chi.URLParam(r, "external_id")
	if !ValidateQuery(w, tenantQuery{TenantID: tenantID}) {
		return
	}

	id, err := s.store.Tickets.GetIDByExternalID(r.Context(), tenantID, externalID)
	if err != nil {
		RespondError(w, http.StatusNotFound, "not_found", "no such ticket")
		return
	}

	history, err := s.store.History.ListByTicket(r.Context(), id)
	if err != nil {
		RespondError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	Respond(w, http.StatusOK, map[string]any{"history": history})
}

func (s *Server) handleTenantStats(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant_id")

	window := analytics.Window{}
	if from := r.URL.Query().Get("from_date"); from != "" {
		if t, err := time.Parse("2006-01-02", from); err == nil {
			window.From = t
		}
	}
	if to := r.URL.Query().Get("to_date"); to != "" {
		if t, err := time.Parse("2006-01-02", to); err == nil {
			window.To = t
		}
	}

	dashboard, err := s.analytics.Dashboard(r.Context(), tenantID, window)
	if err != nil {
		RespondError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	Respond(w, http.StatusOK, dashboard)
}

func (s *Server) handleCircuitStatus(w http.ResponseWriter, r *http.Request) {
	Respond(w, http.StatusOK, map[string]any{"breakers": s.breakers.All()})
}

func (s *Server) handleCircuitReset(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	s.breakers.Get(name).Reset()
	Respond(w, http.StatusOK, map[string]any{"name": name, "state": "closed"})
}

func (s *Server) handleRateLimiterStatus(w http.ResponseWriter, r *http.Request) {
	Respond(w, http.StatusOK, s.limiter.Status())
}

func atoiOr(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}
