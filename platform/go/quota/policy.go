// Package quota holds the static per-plan resource policy consulted by the
// resource monitor and the lifecycle sweeps. Plans are referenced, never
// owned, by tenants; a tenant with no plan falls back to the guest policy.
package quota

import (
	"time"

	"github.com/google/uuid"
)

// Resource names used in limit reports. They match the usage sample columns.
const (
	ResourceCPUPercent  = "cpu_percent"
	ResourceMemoryMB    = "memory_mb"
	ResourceStorageMB   = "storage_mb"
	ResourceBandwidthMB = "bandwidth_mb"
	ResourcePageViews   = "page_views"
)

// Limits is the quota bundle for one plan version. Zero means "no limit" for
// evaluation purposes and is skipped by the monitor.
type Limits struct {
	CPUPercent           float64
	MemoryMB             float64
	StorageMB            float64
	BandwidthMB          float64
	PageViews            float64
	BackupFrequencyHours int
	BackupRetentionDays  int
}

// Plan is an immutable-per-version quota policy bound to tenants by reference.
type Plan struct {
	ID           uuid.UUID
	Slug         string
	Name         string
	PriceCents   int
	BillingCycle string // "monthly" | "yearly"
	Tier         string // rate-limit tier slug
	IsDefault    bool   // default/zero-cost plan: exempt from suspension auto-delete
	HasBackups   bool
	TrialDays    int
	Limits       Limits
	CreatedAt    time.Time
}

// IsFree reports whether the plan carries no charge.
func (p Plan) IsFree() bool { return p.PriceCents == 0 }

// BackupFrequency returns the plan's backup cadence as a duration, defaulting
// to 24h when the plan has backups but no explicit frequency.
func (p Plan) BackupFrequency() time.Duration {
	hours := p.Limits.BackupFrequencyHours
	if hours <= 0 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}

// BackupRetention returns how long archives are kept before pruning.
func (p Plan) BackupRetention() time.Duration {
	days := p.Limits.BackupRetentionDays
	if days <= 0 {
		days = 30
	}
	return time.Duration(days) * 24 * time.Hour
}

// GuestLimits is the fixed default policy applied to tenants with no plan.
func GuestLimits() Limits {
	return Limits{
		CPUPercent:  10,
		MemoryMB:    64,
		StorageMB:   100,
		BandwidthMB: 1000,
		PageViews:   1000,
	}
}

// ByResource exposes the evaluable limits keyed by resource name, in a stable
// order, for the monitor's percentage checks.
func (l Limits) ByResource() []ResourceLimit {
	return []ResourceLimit{
		{Resource: ResourceCPUPercent, Limit: l.CPUPercent},
		{Resource: ResourceMemoryMB, Limit: l.MemoryMB},
		{Resource: ResourceStorageMB, Limit: l.StorageMB},
		{Resource: ResourceBandwidthMB, Limit: l.BandwidthMB},
		{Resource: ResourcePageViews, Limit: l.PageViews},
	}
}

// ResourceLimit pairs a resource name with its plan limit.
type ResourceLimit struct {
	Resource string
	Limit    float64
}

// DefaultPlans returns the built-in catalog seeded at bootstrap. IDs are
// generated at seed time; slugs are the stable identity.
func DefaultPlans() []Plan {
	return []Plan{
		{
			Slug: "free", Name: "Free", PriceCents: 0, BillingCycle: "monthly",
			Tier: "free", IsDefault: true, HasBackups: false,
			Limits: Limits{CPUPercent: 25, MemoryMB: 256, StorageMB: 1000, BandwidthMB: 10000, PageViews: 50000},
		},
		{
			Slug: "starter", Name: "Starter", PriceCents: 900, BillingCycle: "monthly",
			Tier: "starter", HasBackups: true, TrialDays: 14,
			Limits: Limits{CPUPercent: 50, MemoryMB: 512, StorageMB: 5000, BandwidthMB: 50000, PageViews: 200000, BackupFrequencyHours: 24, BackupRetentionDays: 7},
		},
		{
			Slug: "pro", Name: "Pro", PriceCents: 2900, BillingCycle: "monthly",
			Tier: "pro", HasBackups: true, TrialDays: 14,
			Limits: Limits{CPUPercent: 75, MemoryMB: 1024, StorageMB: 20000, BandwidthMB: 200000, PageViews: 1000000, BackupFrequencyHours: 12, BackupRetentionDays: 30},
		},
		{
			Slug: "business", Name: "Business", PriceCents: 9900, BillingCycle: "monthly",
			Tier: "business", HasBackups: true,
			Limits: Limits{CPUPercent: 100, MemoryMB: 2048, StorageMB: 100000, BandwidthMB: 1000000, PageViews: 10000000, BackupFrequencyHours: 6, BackupRetentionDays: 90},
		},
	}
}
