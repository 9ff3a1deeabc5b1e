package persistence

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TenantLockKey folds a tenant id into the int64 keyspace used by
// Postgres advisory locks.
func TenantLockKey(tenantID uuid.UUID) int64 {
	return int64(binary.BigEndian.Uint64(tenantID[:8]))
}

// WithTenantLock runs fn while holding a session advisory lock for the
// tenant. If another worker already holds the lock the call returns
// immediately with held=false and fn never runs; lifecycle sweeps treat
// that as "someone else is on it" and move to the next tenant.
func WithTenantLock(ctx context.Context, pool *pgxpool.Pool, tenantID uuid.UUID, fn func(ctx context.Context) error) (held bool, err error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire conn for tenant lock: %w", err)
	}
	defer conn.Release()

	key := TenantLockKey(tenantID)
	var locked bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&locked); err != nil {
		return false, fmt.Errorf("try tenant lock %s: %w", tenantID, err)
	}
	if !locked {
		return false, nil
	}
	defer func() {
		// Unlock on the same session; the lock also dies with the conn.
		if _, uerr := conn.Exec(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, key); uerr != nil && err == nil {
			err = fmt.Errorf("release tenant lock %s: %w", tenantID, uerr)
		}
	}()

	return true, fn(ctx)
}
