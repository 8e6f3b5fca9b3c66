// Package model holds the explicit, declared-field records persisted by the
// Store. No caller above the store package ever sees a raw row or document.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Urgency classifies a ticket's priority as assigned by the Classifier.
type Urgency string

const (
	UrgencyHigh   Urgency = "high"
	UrgencyMedium Urgency = "medium"
	UrgencyLow    Urgency = "low"
)

// Sentiment classifies the emotional tone of a ticket as assigned by the Classifier.
type Sentiment string

const (
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
	SentimentPositive Sentiment = "positive"
)

// JobStatus is the lifecycle state of an IngestionJob.
type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobCancelled JobStatus = "cancelled"
	JobFailed    JobStatus = "failed"
)

// HistoryAction identifies what kind of change a TicketHistory row records.
type HistoryAction string

const (
	HistoryCreated HistoryAction = "created"
	HistoryUpdated HistoryAction = "updated"
	HistoryDeleted HistoryAction = "deleted"
)

// Ticket is one externally sourced support ticket.
//
// Invariant: (TenantID, ExternalID) is globally unique.
// Invariant: a ticket with DeletedAt set is excluded from all normal reads.
type Ticket struct {
	ID             uuid.UUID
	TenantID       string
	ExternalID     string
	CustomerID     string
	Source         string
	Subject        string
	Message        string
	Status         string
	Urgency        Urgency
	Sentiment      Sentiment
	RequiresAction bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
}

// FieldDiff is one changed field: the value before and after a SyncEngine write.
type FieldDiff struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// IngestionJob is one ingestion run.
//
// Invariant: at most one job per TenantID in JobRunning state at any instant
// (enforced by LockManager, not a uniqueness constraint on this table).
type IngestionJob struct {
	JobID          uuid.UUID
	TenantID       string
	Status         JobStatus
	StartedAt      time.Time
	EndedAt        *time.Time
	TotalPages     int
	ProcessedPages int
	Progress       int
}

// IngestionLog is the append-only audit row written at the end of every run.
//
// Invariant: every job that acquired a lock produces exactly one log entry.
type IngestionLog struct {
	ID           uuid.UUID
	TenantID     string
	JobID        uuid.UUID
	StartedAt    time.Time
	EndedAt      time.Time
	NewIngested  int
	Updated      int
	Errors       int
	ErrorMessage *string
}

// Lock is a distributed, TTL-bounded mutual-exclusion entry.
//
// Invariant: unique on ResourceID; only the current OwnerID may release or
// refresh; an entry with ExpiresAt < now is logically free.
type Lock struct {
	ResourceID string
	OwnerID    string
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

// TicketHistory is an append-only change-log row.
type TicketHistory struct {
	ID         uuid.UUID
	TicketID   uuid.UUID
	TenantID   string
	Action     HistoryAction
	Changes    map[string]FieldDiff
	RecordedAt time.Time
}

// SyncOutcome is the result of SyncEngine.Sync for a single external ticket.
type SyncOutcome string

const (
	SyncCreated   SyncOutcome = "created"
	SyncUpdated   SyncOutcome = "updated"
	SyncUnchanged SyncOutcome = "unchanged"
)

// ExternalTicket is the shape of a ticket as delivered by the external source feed.
type ExternalTicket struct {
	ExternalID string
	CustomerID string
	Source     string
	Subject    string
	Message    string
	Status     string
	UpdatedAt  time.Time
}
