package repo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/diploy/hostfleet/domains/tenants/be/service"
)

// Memory is an in-memory service.Repository used by tests and local
// tooling.
type Memory struct {
	mu      sync.Mutex
	tenants map[uuid.UUID]service.Tenant
}

func NewMemory() *Memory {
	return &Memory{tenants: map[uuid.UUID]service.Tenant{}}
}

func (m *Memory) Create(_ context.Context, t service.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.tenants {
		if existing.Slug == t.Slug {
			return service.ErrSlugTaken
		}
	}
	m.tenants[t.ID] = t
	return nil
}

func (m *Memory) Get(_ context.Context, id uuid.UUID) (service.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return service.Tenant{}, service.ErrNotFound
	}
	return t, nil
}

func (m *Memory) GetBySlug(_ context.Context, slug string) (service.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tenants {
		if t.Slug == slug {
			return t, nil
		}
	}
	return service.Tenant{}, service.ErrNotFound
}

func (m *Memory) List(_ context.Context, statuses ...service.Status) ([]service.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []service.Tenant
	for _, t := range m.tenants {
		if len(statuses) == 0 || containsStatus(statuses, t.Status) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *Memory) ListExpired(_ context.Context, now time.Time) ([]service.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []service.Tenant
	for _, t := range m.tenants {
		if t.ExpiresAt == nil {
			continue
		}
		if (t.Status == service.StatusActive || t.Status == service.StatusSuspended) && t.ExpiresAt.Before(now) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *Memory) ListSuspendedBefore(_ context.Context, cutoff time.Time) ([]service.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []service.Tenant
	for _, t := range m.tenants {
		if t.Status == service.StatusSuspended && t.SuspendedAt != nil && t.SuspendedAt.Before(cutoff) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *Memory) Activate(_ context.Context, id uuid.UUID, rootPath, configPath, namespacePrefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return service.ErrNotFound
	}
	t.Status = service.StatusActive
	t.RootPath = rootPath
	t.ConfigPath = configPath
	t.NamespacePrefix = namespacePrefix
	m.tenants[id] = t
	return nil
}

func (m *Memory) UpdateStatus(_ context.Context, id uuid.UUID, status service.Status, suspendedAt *time.Time, reason *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return service.ErrNotFound
	}
	t.Status = status
	t.SuspendedAt = suspendedAt
	t.SuspensionReason = reason
	m.tenants[id] = t
	return nil
}

func (m *Memory) UpdateExpiry(_ context.Context, id uuid.UUID, expiresAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return service.ErrNotFound
	}
	t.ExpiresAt = expiresAt
	m.tenants[id] = t
	return nil
}

func (m *Memory) UpdatePlan(_ context.Context, id uuid.UUID, planID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return service.ErrNotFound
	}
	t.PlanID = &planID
	m.tenants[id] = t
	return nil
}

func (m *Memory) MarkDeleted(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return service.ErrNotFound
	}
	t.Status = service.StatusDeleted
	t.DeletedAt = &at
	m.tenants[id] = t
	return nil
}

func (m *Memory) Purge(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tenants, id)
	return nil
}

func containsStatus(statuses []service.Status, s service.Status) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

var _ service.Repository = (*Memory)(nil)
