// Package platform bootstraps shared infrastructure: the Postgres pool,
// the Redis client, and schema migrations.
package platform

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	minPoolConns   = 10
	maxPoolConns   = 50
	idleEviction   = 45 * time.Second
	connectTimeout = 5 * time.Second
)

// NewPostgresPool creates the long-lived connection pool used by Store.
func NewPostgresPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	cfg.MinConns = minPoolConns
	cfg.MaxConns = maxPoolConns
	cfg.MaxConnIdleTime = idleEviction
	cfg.ConnConfig.ConnectTimeout = connectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}
