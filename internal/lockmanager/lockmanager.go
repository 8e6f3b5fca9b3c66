// Package lockmanager implements atomic, TTL-bounded, owner-scoped mutual
// exclusion keyed by resource name. It is the only serialization point for
// per-tenant ingestion runs: there is no fairness or queue, a losing
// acquirer fails fast, and expired leases are reclaimable by anyone.
package lockmanager

import (
	"context"
	"fmt"
	"time"

	"github.com/ticketsync/backend/internal/store"
)

// DefaultTTL is the default lease duration for an acquired lock.
const DefaultTTL = 60 * time.Second

// LockManager offers three non-blocking, O(1) operations on the lock
// collection.
type LockManager struct {
	locks *store.LockStore
	now   func() time.Time
}

// New creates a LockManager backed by the given lock collection.
func New(locks *store.LockStore) *LockManager {
	return &LockManager{locks: locks, now: time.Now}
}

// Acquire attempts to take ownership of resourceID for ttl. Returns whether
// the lock was acquired; "not acquired" must be treated as a conflict, not
// an error — it is the expected outcome of a losing race.
func (m *LockManager) Acquire(ctx context.Context, resourceID, ownerID string, ttl time.Duration) (bool, error) {
	now := m.now()
	ok, err := m.locks.TryAcquire(ctx, resourceID, ownerID, now, now.Add(ttl))
	if err != nil {
		return false, fmt.Errorf("lockmanager: acquire %s: %w", resourceID, err)
	}
	return ok, nil
}

// Refresh extends the lease iff ownerID still holds it. If it returns
// false, the caller has lost its lease and must abandon work immediately.
func (m *LockManager) Refresh(ctx context.Context, resourceID, ownerID string, ttl time.Duration) (bool, error) {
	ok, err := m.locks.Refresh(ctx, resourceID, ownerID, m.now().Add(ttl))
	if err != nil {
		return false, fmt.Errorf("lockmanager: refresh %s: %w", resourceID, err)
	}
	return ok, nil
}

// Release deletes the lock iff ownerID still holds it. Idempotent.
func (m *LockManager) Release(ctx context.Context, resourceID, ownerID string) error {
	if err := m.locks.Release(ctx, resourceID, ownerID); err != nil {
		return fmt.Errorf("lockmanager: release %s: %w", resourceID, err)
	}
	return nil
}

// Inspect returns the current lock state for a resource, for operator
// tooling (GET /ingest/lock/{tenant_id}). Never used for acquisition
// decisions.
func (m *LockManager) Inspect(ctx context.Context, resourceID string) (owner string, acquiredAt, expiresAt time.Time, held bool, err error) {
	l, err := m.locks.Get(ctx, resourceID)
	if err != nil {
		return "", time.Time{}, time.Time{}, false, fmt.Errorf("lockmanager: inspect %s: %w", resourceID, err)
	}
	if l == nil {
		return "", time.Time{}, time.Time{}, false, nil
	}
	held = l.ExpiresAt.After(m.now())
	return l.OwnerID, l.AcquiredAt, l.ExpiresAt, held, nil
}

// ResourceName builds the lock resource id for a tenant's ingestion run.
func ResourceName(tenantID string) string {
	return "ingest:" + tenantID
}
