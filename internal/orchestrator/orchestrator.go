// Package orchestrator runs one tenant's ingestion job end to end: acquire
// a lock, paginate the external source with retry, classify and sync each
// ticket, schedule notifications, sweep deletions, and always write
// exactly one audit log before releasing the lock.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ticketsync/backend/internal/lockmanager"
	"github.com/ticketsync/backend/internal/model"
	"github.com/ticketsync/backend/internal/notifier"
	"github.com/ticketsync/backend/internal/ratelimiter"
	"github.com/ticketsync/backend/internal/sourcefeed"
	"github.com/ticketsync/backend/internal/store"
	"github.com/ticketsync/backend/internal/syncengine"
	"github.com/ticketsync/backend/internal/telemetry"
)

const (
	leaseRefreshInterval = 30 * time.Second
	fetchTimeout         = sourcefeed.FetchTimeout
)

// ErrLockConflict is returned by Run when another run already owns the
// tenant's ingestion lock. Callers surface this as HTTP 409.
var ErrLockConflict = errors.New("orchestrator: ingestion already running for tenant")

// RunSummary is the synchronous result surfaced to the caller of
// POST /ingest/run once the run reaches a terminal state.
type RunSummary struct {
	JobID       uuid.UUID
	Status      model.JobStatus
	NewIngested int
	Updated     int
	Errors      int
}

// Orchestrator owns the cancellation-flag table shared by every run it
// starts. One Orchestrator is created per process.
type Orchestrator struct {
	store     *store.Store
	locks     *lockmanager.LockManager
	limiter   *ratelimiter.RateLimiter
	feed      *sourcefeed.Client
	sync      *syncengine.Engine
	notifier  *notifier.Pool
	logger    *slog.Logger

	cancelFlags sync.Map // job_id (string) -> struct{}{}
	nowFunc     func() time.Time
}

// New wires an Orchestrator from its component dependencies.
func New(st *store.Store, locks *lockmanager.LockManager, limiter *ratelimiter.RateLimiter, feed *sourcefeed.Client, syncEngine *syncengine.Engine, notifierPool *notifier.Pool, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:    st,
		locks:    locks,
		limiter:  limiter,
		feed:     feed,
		sync:     syncEngine,
		notifier: notifierPool,
		logger:   logger,
		nowFunc:  time.Now,
	}
}

// Run executes one ingestion run for tenantID to completion, returning once
// the run reaches a terminal state. There is no background handle: the
// caller's request context bounds the whole run, matching the contractual
// 200-with-summary-or-409 response at the boundary.
func (o *Orchestrator) Run(ctx context.Context, tenantID string) (RunSummary, error) {
	jobID := uuid.New()
	resource := lockmanager.ResourceName(tenantID)

	acquired, err := o.locks.Acquire(ctx, resource, jobID.String(), lockmanager.DefaultTTL)
	if err != nil {
		return RunSummary{}, fmt.Errorf("acquiring ingestion lock: %w", err)
	}
	if !acquired {
		telemetry.IngestConflictsTotal.WithLabelValues(tenantID).Inc()
		return RunSummary{}, ErrLockConflict
	}

	startedAt := o.nowFunc()
	if _, err := o.store.Jobs.Insert(ctx, jobID, tenantID, startedAt); err != nil {
		startErr := fmt.Errorf("recording job start: %w", err)
		msg := startErr.Error()
		if logErr := o.store.Logs.Insert(context.Background(), store.InsertLogParams{
			TenantID:     tenantID,
			JobID:        jobID,
			StartedAt:    startedAt,
			EndedAt:      o.nowFunc(),
			ErrorMessage: &msg,
		}); logErr != nil {
			o.logger.Error("failed to write ingestion audit log", "job_id", jobID, "error", logErr)
		}
		_ = o.locks.Release(ctx, resource, jobID.String())
		return RunSummary{}, startErr
	}

	o.cancelFlags.Store(jobID.String(), struct{}{})

	leaseCtx, stopLease := context.WithCancel(context.Background())
	selfAbort := make(chan struct{})
	go o.refreshLease(leaseCtx, resource, jobID.String(), selfAbort)

	status, newIngested, updated, errCount, runErr := o.execute(ctx, tenantID, jobID, resource, selfAbort)

	stopLease()
	o.cancelFlags.Delete(jobID.String())

	endedAt := o.nowFunc()
	finalProgress := 100
	if status != model.JobCompleted {
		finalProgress = 0
	}
	if err := o.store.Jobs.Finish(context.Background(), jobID, status, endedAt, finalProgress); err != nil {
		o.logger.Error("failed to finalize job status", "job_id", jobID, "error", err)
	}

	var errMsg *string
	if runErr != nil {
		msg := runErr.Error()
		errMsg = &msg
	}
	if logErr := o.store.Logs.Insert(context.Background(), store.InsertLogParams{
		TenantID:     tenantID,
		JobID:        jobID,
		StartedAt:    startedAt,
		EndedAt:      endedAt,
		NewIngested:  newIngested,
		Updated:      updated,
		Errors:       errCount,
		ErrorMessage: errMsg,
	}); logErr != nil {
		o.logger.Error("failed to write ingestion audit log", "job_id", jobID, "error", logErr)
	}

	if err := o.locks.Release(context.Background(), resource, jobID.String()); err != nil {
		o.logger.Error("failed to release ingestion lock", "job_id", jobID, "error", err)
	}

	telemetry.IngestRunsTotal.WithLabelValues(string(status)).Inc()

	return RunSummary{
		JobID:       jobID,
		Status:      status,
		NewIngested: newIngested,
		Updated:     updated,
		Errors:      errCount,
	}, runErr
}

// execute runs the fetch/classify/sync loop and returns the terminal status
// and counters. It never panics; any unhandled error is folded into a
// (JobFailed, err) return so the caller's guaranteed-release scope always
// runs.
func (o *Orchestrator) execute(ctx context.Context, tenantID string, jobID uuid.UUID, resource string, selfAbort <-chan struct{}) (status model.JobStatus, newIngested, updated, errCount int, runErr error) {
	seen := make(map[string]struct{})

	processedPages := 0
	totalPages := 1

	for page := 1; ; page++ {
		select {
		case <-selfAbort:
			return model.JobFailed, newIngested, updated, errCount, fmt.Errorf("lost ingestion lease mid-run")
		default:
		}

		if err := o.limiter.Acquire(ctx); err != nil {
			return model.JobFailed, newIngested, updated, errCount, fmt.Errorf("rate limiter wait cancelled: %w", err)
		}

		fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
		result, err := o.feed.FetchPage(fetchCtx, tenantID, page)
		cancel()
		if err != nil {
			return model.JobFailed, newIngested, updated, errCount, fmt.Errorf("fetching page %d: %w", page, err)
		}

		totalPages = result.TotalPages
		if totalPages < 1 {
			totalPages = 1
		}
		processedPages++

		for _, raw := range result.Tickets {
			ext, parseErr := toExternalTicket(raw)
			if parseErr != nil {
				errCount++
				o.logger.Warn("skipping unparseable ticket", "tenant_id", tenantID, "error", parseErr)
				continue
			}

			seen[ext.ExternalID] = struct{}{}

			syncResult, err := o.sync.Sync(ctx, tenantID, ext)
			if err != nil {
				errCount++
				o.logger.Warn("sync failed for ticket", "tenant_id", tenantID, "external_id", ext.ExternalID, "error", err)
				continue
			}

			switch syncResult.Outcome {
			case model.SyncCreated:
				newIngested++
			case model.SyncUpdated:
				updated++
			}

			if (syncResult.Outcome == model.SyncCreated || syncResult.Outcome == model.SyncUpdated) &&
				syncResult.Ticket.Urgency == model.UrgencyHigh {
				o.notifier.Enqueue(notifier.Task{TenantID: tenantID, Ticket: syncResult.Ticket})
			}
		}

		progress := progressPercent(processedPages, totalPages)
		if err := o.store.Jobs.UpdateProgress(ctx, jobID, totalPages, processedPages, progress); err != nil {
			o.logger.Warn("failed to persist job progress", "job_id", jobID, "error", err)
		}

		if o.cancelRequested(jobID) {
			return model.JobCancelled, newIngested, updated, errCount, nil
		}

		if processedPages >= totalPages {
			break
		}
	}

	if _, err := o.sync.SweepDeleted(ctx, tenantID, seen); err != nil {
		return model.JobFailed, newIngested, updated, errCount, fmt.Errorf("deletion sweep: %w", err)
	}

	return model.JobCompleted, newIngested, updated, errCount, nil
}

// progressPercent implements the contractual formula, capped at 99 until
// the job reaches a terminal state.
func progressPercent(processed, total int) int {
	if total < 1 {
		total = 1
	}
	p := (100 * processed) / total
	if p > 99 {
		p = 99
	}
	return p
}

// refreshLease refreshes the ingestion lock every leaseRefreshInterval. If
// a refresh ever reports that ownership was lost, selfAbort is closed so
// the running fetch loop notices on its next poll.
func (o *Orchestrator) refreshLease(ctx context.Context, resource, ownerID string, selfAbort chan struct{}) {
	ticker := time.NewTicker(leaseRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := o.locks.Refresh(context.Background(), resource, ownerID, lockmanager.DefaultTTL)
			if err != nil {
				o.logger.Warn("lease refresh error", "resource", resource, "error", err)
				continue
			}
			if !ok {
				close(selfAbort)
				return
			}
		}
	}
}

// Cancel sets the cancellation flag for a running job. The orchestrator
// polls this flag between pages; cancellation is not preemptive.
func (o *Orchestrator) Cancel(jobID uuid.UUID) bool {
	_, existed := o.cancelFlags.Load(jobID.String())
	if existed {
		o.cancelFlags.Store(jobID.String(), cancelRequested{})
	}
	return existed
}

type cancelRequested struct{}

func (o *Orchestrator) cancelRequested(jobID uuid.UUID) bool {
	v, ok := o.cancelFlags.Load(jobID.String())
	if !ok {
		return false
	}
	_, requested := v.(cancelRequested)
	return requested
}

func toExternalTicket(raw sourcefeed.RawTicket) (model.ExternalTicket, error) {
	updatedAt, err := time.Parse(time.RFC3339, raw.UpdatedAt)
	if err != nil {
		return model.ExternalTicket{}, fmt.Errorf("parsing updated_at %q: %w", raw.UpdatedAt, err)
	}
	return model.ExternalTicket{
		ExternalID: raw.ExternalID,
		CustomerID: raw.CustomerID,
		Source:     raw.Source,
		Subject:    raw.Subject,
		Message:    raw.Message,
		Status:     raw.Status,
		UpdatedAt:  updatedAt,
	}, nil
}
