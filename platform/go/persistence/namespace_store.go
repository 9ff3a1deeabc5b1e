package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NamespaceStore is the append-only registry of every namespace prefix
// ever issued. Rows are never deleted, which is what keeps retired
// prefixes out of circulation.
type NamespaceStore struct {
	pool *pgxpool.Pool
}

func NewNamespaceStore(pool *pgxpool.Pool) *NamespaceStore {
	if pool == nil {
		panic("namespace store requires a pool")
	}
	return &NamespaceStore{pool: pool}
}

// Reserve claims the prefix for the tenant. ErrDuplicate means the prefix
// was issued at some point in the past, to this tenant or another.
func (s *NamespaceStore) Reserve(ctx context.Context, prefix string, tenantID uuid.UUID) error {
	query := fmt.Sprintf(`INSERT INTO %s (prefix, tenant_id) VALUES ($1, $2)`, namespacesTable)
	_, err := s.pool.Exec(ctx, query, prefix, tenantID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("reserve namespace %q: %w", prefix, ErrDuplicate)
		}
		return fmt.Errorf("reserve namespace %q: %w", prefix, err)
	}
	return nil
}
