package service

import (
	"context"

	"github.com/google/uuid"
)

// SchemaProvisioner creates and tears down a tenant's namespaced table
// set. Ensure is idempotent; Teardown tolerates partial or absent state.
type SchemaProvisioner interface {
	Ensure(ctx context.Context, prefix string) error
	Teardown(ctx context.Context, prefix string) error
}

// StorageProvisioner owns the tenant's directory tree and config artifact.
type StorageProvisioner interface {
	// EnsureDirs creates the tenant's directory layout and returns its root.
	EnsureDirs(ctx context.Context, slug string) (rootPath string, err error)
	// WriteConfig persists the rendered config artifact and returns its path.
	WriteConfig(ctx context.Context, slug, body string) (configPath string, err error)
	// Teardown removes the tenant's directory tree. Absent trees are fine.
	Teardown(ctx context.Context, slug string) error
}

// SeedParams carries the initial content written into a fresh namespace.
type SeedParams struct {
	Title         string
	BaseURL       string
	AdminUsername string
	AdminEmail    string
	AdminPassword string
}

// Seeder writes the initial rows (options, admin user, starter content)
// into a freshly created namespace.
type Seeder interface {
	Seed(ctx context.Context, prefix string, params SeedParams) error
}

// NamespaceRegistry is the append-only record of issued namespace
// prefixes. Reserve fails when the prefix was ever issued before.
type NamespaceRegistry interface {
	Reserve(ctx context.Context, prefix string, tenantID uuid.UUID) error
}

// ProvisioningDeps bundles the collaborators Provision drives.
type ProvisioningDeps struct {
	Schema     SchemaProvisioner
	Storage    StorageProvisioner
	Seeder     Seeder
	Namespaces NamespaceRegistry
}
