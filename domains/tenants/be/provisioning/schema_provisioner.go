// Package provisioning holds the concrete provisioners the tenants
// service drives: namespaced table sets, the on-disk tree, and initial
// content seeding.
package provisioning

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diploy/hostfleet/domains/tenants/be/service"
	"github.com/diploy/hostfleet/platform/go/schema"
)

// SchemaProvisioner creates and drops a tenant's namespaced table set.
// All statements are idempotent, so partial failures converge on retry.
type SchemaProvisioner struct {
	pool *pgxpool.Pool
}

func NewSchemaProvisioner(pool *pgxpool.Pool) *SchemaProvisioner {
	if pool == nil {
		panic("schema provisioner requires pool")
	}
	return &SchemaProvisioner{pool: pool}
}

func (p *SchemaProvisioner) Ensure(ctx context.Context, prefix string) error {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire conn: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	for _, stmt := range schema.Statements(prefix) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create tenant table: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tenant schema: %w", err)
	}
	return nil
}

func (p *SchemaProvisioner) Teardown(ctx context.Context, prefix string) error {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire conn: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	for _, stmt := range schema.DropStatements(prefix) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("drop tenant table: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tenant teardown: %w", err)
	}
	return nil
}

var _ service.SchemaProvisioner = (*SchemaProvisioner)(nil)
