package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NotificationStore records outbound tenant notifications so sweeps can
// throttle repeats.
type NotificationStore struct {
	pool *pgxpool.Pool
}

func NewNotificationStore(pool *pgxpool.Pool) *NotificationStore {
	if pool == nil {
		panic("notification store requires a pool")
	}
	return &NotificationStore{pool: pool}
}

func (s *NotificationStore) Record(ctx context.Context, tenantID uuid.UUID, kind string, at time.Time) error {
	query := fmt.Sprintf(`INSERT INTO %s (tenant_id, kind, sent_at) VALUES ($1, $2, $3)`, notificationsTable)
	if _, err := s.pool.Exec(ctx, query, tenantID, kind, at); err != nil {
		return fmt.Errorf("record %s notification for %s: %w", kind, tenantID, err)
	}
	return nil
}

// SentSince reports whether a notification of the given kind went out to
// the tenant at or after the cutoff.
func (s *NotificationStore) SentSince(ctx context.Context, tenantID uuid.UUID, kind string, cutoff time.Time) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (
		SELECT 1 FROM %s WHERE tenant_id = $1 AND kind = $2 AND sent_at >= $3
	)`, notificationsTable)
	var sent bool
	if err := s.pool.QueryRow(ctx, query, tenantID, kind, cutoff).Scan(&sent); err != nil {
		return false, fmt.Errorf("check %s notification for %s: %w", kind, tenantID, err)
	}
	return sent, nil
}
