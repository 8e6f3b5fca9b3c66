package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ticketsync/backend/internal/model"
)

// LockStore provides collection access for distributed_locks. It is the
// only serialization point in the system — every method here is a single
// round-trip, conditional statement; there is no read-then-write race
// window above the database.
type LockStore struct {
	db DBTX
}

// TryAcquire atomically finds a document where resource_id = resourceID AND
// (expires_at < now OR absent), and upserts it to the new owner/lease. The
// WHERE clause on the DO UPDATE arm is what makes this safe: a losing
// acquirer's statement simply updates zero rows, never two winners.
func (s *LockStore) TryAcquire(ctx context.Context, resourceID, ownerID string, now, expiresAt time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO distributed_locks (resource_id, owner_id, acquired_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (resource_id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			acquired_at = EXCLUDED.acquired_at,
			expires_at = EXCLUDED.expires_at
		WHERE distributed_locks.expires_at < $3
	`, resourceID, ownerID, now, expiresAt)
	if err != nil {
		return false, fmt.Errorf("acquiring lock: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Refresh atomically extends expires_at iff owner_id still matches.
func (s *LockStore) Refresh(ctx context.Context, resourceID, ownerID string, expiresAt time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `UPDATE distributed_locks SET expires_at = $3
		WHERE resource_id = $1 AND owner_id = $2`, resourceID, ownerID, expiresAt)
	if err != nil {
		return false, fmt.Errorf("refreshing lock: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Release atomically deletes the lock iff owner_id still matches. Idempotent.
func (s *LockStore) Release(ctx context.Context, resourceID, ownerID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM distributed_locks WHERE resource_id = $1 AND owner_id = $2`, resourceID, ownerID)
	if err != nil {
		return fmt.Errorf("releasing lock: %w", err)
	}
	return nil
}

// Get returns the current lock document for a resource, or nil if absent.
// Used by the lock-inspection endpoint; never used to decide acquisition.
func (s *LockStore) Get(ctx context.Context, resourceID string) (*model.Lock, error) {
	var l model.Lock
	err := s.db.QueryRow(ctx, `SELECT resource_id, owner_id, acquired_at, expires_at
		FROM distributed_locks WHERE resource_id = $1`, resourceID).
		Scan(&l.ResourceID, &l.OwnerID, &l.AcquiredAt, &l.ExpiresAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("getting lock: %w", err)
	}
	return &l, nil
}
