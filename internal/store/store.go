// Package store is the document-store gateway: connection pool, index
// provisioning, and typed collection access. Nothing above this package
// ever sees a raw row — see TicketStore, JobStore, LogStore, HistoryStore,
// and LockStore.
package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ticketsync/backend/internal/platform"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, letting collection
// stores run either against the pool directly or inside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store owns the pool and provisions the fixed index set on startup.
type Store struct {
	Pool *pgxpool.Pool

	Tickets *TicketStore
	Jobs    *JobStore
	Logs    *LogStore
	History *HistoryStore
	Locks   *LockStore
}

// Open connects to Postgres, runs migrations (provisioning the index set
// described in SPEC_FULL.md §4.1), and returns a ready Store.
func Open(ctx context.Context, databaseURL, migrationsDir string) (*Store, error) {
	pool, err := platform.NewPostgresPool(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := platform.RunMigrations(databaseURL, migrationsDir); err != nil {
		pool.Close()
		return nil, err
	}

	return &Store{
		Pool:    pool,
		Tickets: &TicketStore{db: pool},
		Jobs:    &JobStore{db: pool},
		Logs:    &LogStore{db: pool},
		History: &HistoryStore{db: pool},
		Locks:   &LockStore{db: pool},
	}, nil
}

// Close drains in-flight work and releases the pool. Callers must ensure no
// in-flight HTTP handlers are still running (the HTTP server's own graceful
// shutdown handles that) before calling Close.
func (s *Store) Close() {
	s.Pool.Close()
}
