package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Errors returned by the service layer.
var (
	ErrNotFound     = errors.New("tenant not found")
	ErrSlugTaken    = errors.New("tenant slug already exists")
	ErrNotActive    = errors.New("tenant is not active")
	ErrDeleted      = errors.New("tenant is deleted")
	ErrPlanNotFound = errors.New("plan not found")
)

// Provisioning stage failures. Provision wraps the underlying cause with
// the stage sentinel so callers can tell which step gave out.
var (
	ErrReserveFailure = errors.New("tenant reservation failed")
	ErrStorageFailure = errors.New("tenant storage provisioning failed")
	ErrConfigFailure  = errors.New("tenant config provisioning failed")
	ErrSchemaFailure  = errors.New("tenant schema provisioning failed")
	ErrSeedFailure    = errors.New("tenant seeding failed")
)

// Status is the lifecycle state of a tenant.
type Status string

const (
	StatusProvisioning Status = "provisioning"
	StatusActive       Status = "active"
	StatusSuspended    Status = "suspended"
	StatusDeleted      Status = "deleted" // terminal
)

// StatusFromString converts a stored string; unknown values read as
// provisioning, the most conservative state.
func StatusFromString(s string) Status {
	switch Status(s) {
	case StatusProvisioning, StatusActive, StatusSuspended, StatusDeleted:
		return Status(s)
	default:
		return StatusProvisioning
	}
}

// Tenant is the domain model for one provisioned environment.
type Tenant struct {
	ID               uuid.UUID
	Slug             string
	Title            string
	OwnerID          *uuid.UUID
	PlanID           *uuid.UUID
	Status           Status
	NamespacePrefix  string
	RootPath         string
	ConfigPath       string
	AdminEmail       string
	AdminUsername    string
	CreatedAt        time.Time
	ExpiresAt        *time.Time
	SuspendedAt      *time.Time
	SuspensionReason *string
	DeletedAt        *time.Time
}

// IsGuest reports whether the tenant has no owning account.
func (t Tenant) IsGuest() bool { return t.OwnerID == nil }

// Repository abstracts persistence for tenant rows.
type Repository interface {
	Create(ctx context.Context, t Tenant) error
	Get(ctx context.Context, id uuid.UUID) (Tenant, error)
	GetBySlug(ctx context.Context, slug string) (Tenant, error)
	List(ctx context.Context, statuses ...Status) ([]Tenant, error)
	ListExpired(ctx context.Context, now time.Time) ([]Tenant, error)
	ListSuspendedBefore(ctx context.Context, cutoff time.Time) ([]Tenant, error)
	// Activate records the provisioned artifact locations and flips the
	// row to active in one step.
	Activate(ctx context.Context, id uuid.UUID, rootPath, configPath, namespacePrefix string) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, suspendedAt *time.Time, reason *string) error
	UpdateExpiry(ctx context.Context, id uuid.UUID, expiresAt *time.Time) error
	UpdatePlan(ctx context.Context, id uuid.UUID, planID uuid.UUID) error
	MarkDeleted(ctx context.Context, id uuid.UUID, at time.Time) error
	Purge(ctx context.Context, id uuid.UUID) error
}

// Get returns a tenant by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Tenant, error) {
	return s.repo.Get(ctx, id)
}

// GetBySlug returns a tenant by its slug.
func (s *Service) GetBySlug(ctx context.Context, slug string) (Tenant, error) {
	return s.repo.GetBySlug(ctx, slug)
}

// List returns tenants, optionally filtered by status.
func (s *Service) List(ctx context.Context, statuses ...Status) ([]Tenant, error) {
	return s.repo.List(ctx, statuses...)
}
