// Package service implements the resource monitor: it samples per-tenant
// usage, evaluates it against plan limits, and reports violations for the
// lifecycle sweeps to act on.
package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/diploy/hostfleet/platform/go/quota"
)

var (
	ErrUnknownPeriod = errors.New("unknown usage period")
	ErrNoSamples     = errors.New("no usage samples recorded")
)

// Thresholds for limit evaluation, in percent of the plan limit.
const (
	warningThreshold  = 80.0
	limitThreshold    = 100.0
	criticalThreshold = 150.0
)

// Level classifies how far past a limit a tenant is.
type Level string

const (
	LevelWarning   Level = "warning"   // above 80% of the limit
	LevelViolation Level = "violation" // above the limit
)

// Sample is one point-in-time usage measurement.
type Sample struct {
	TenantID       uuid.UUID
	SampledAt      time.Time
	CPUPercent     float64
	MemoryMB       float64
	StorageMB      float64
	BandwidthMB    float64
	PageViews      int64
	UniqueVisitors int64
}

// Violation reports one resource exceeding its warning or hard limit.
type Violation struct {
	Resource string
	Usage    float64
	Limit    float64
	Percent  float64
	Level    Level
}

// CheckLimits evaluates a sample against plan limits. Resources with a
// zero limit are unmetered and skipped. Exactly 100% is not a violation;
// the limit itself is still inside the plan.
func CheckLimits(sample Sample, limits quota.Limits) []Violation {
	usage := map[string]float64{
		quota.ResourceCPUPercent:  sample.CPUPercent,
		quota.ResourceMemoryMB:    sample.MemoryMB,
		quota.ResourceStorageMB:   sample.StorageMB,
		quota.ResourceBandwidthMB: sample.BandwidthMB,
		quota.ResourcePageViews:   float64(sample.PageViews),
	}

	var out []Violation
	for _, rl := range limits.ByResource() {
		if rl.Limit <= 0 {
			continue
		}
		used := usage[rl.Resource]
		percent := used / rl.Limit * 100

		switch {
		case percent > limitThreshold:
			out = append(out, Violation{Resource: rl.Resource, Usage: used, Limit: rl.Limit, Percent: percent, Level: LevelViolation})
		case percent > warningThreshold:
			out = append(out, Violation{Resource: rl.Resource, Usage: used, Limit: rl.Limit, Percent: percent, Level: LevelWarning})
		}
	}
	return out
}

// criticalResources are the ones that can degrade neighbors; runaway
// storage or page views cannot, so they never trigger suspension.
var criticalResources = map[string]bool{
	quota.ResourceCPUPercent:  true,
	quota.ResourceMemoryMB:    true,
	quota.ResourceBandwidthMB: true,
}

// CriticalViolations filters for violations severe enough to suspend the
// tenant outright.
func CriticalViolations(violations []Violation) []Violation {
	var out []Violation
	for _, v := range violations {
		if v.Level == LevelViolation && v.Percent > criticalThreshold && criticalResources[v.Resource] {
			out = append(out, v)
		}
	}
	return out
}

// UsageRepo persists and reads back usage samples.
type UsageRepo interface {
	Insert(ctx context.Context, sample Sample) error
	Latest(ctx context.Context, tenantID uuid.UUID) (Sample, error)
	Range(ctx context.Context, tenantID uuid.UUID, since time.Time) ([]Sample, error)
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service samples tenant usage and answers usage queries.
type Service struct {
	repo      UsageRepo
	estimator LoadEstimator
	traffic   TrafficReader
	logger    *zap.Logger
	now       func() time.Time
}

func New(repo UsageRepo, estimator LoadEstimator, traffic TrafficReader, logger *zap.Logger) *Service {
	if repo == nil {
		panic("usage repo is required")
	}
	if estimator == nil {
		panic("load estimator is required")
	}
	if traffic == nil {
		panic("traffic reader is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Service{repo: repo, estimator: estimator, traffic: traffic, logger: logger, now: time.Now}
}

// WithClock overrides the service clock. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Collect measures a tenant's current usage and records the sample.
func (s *Service) Collect(ctx context.Context, tenantID uuid.UUID, rootPath string) (Sample, error) {
	now := s.now().UTC()

	cpu, memory, err := s.estimator.Estimate(ctx, rootPath)
	if err != nil {
		return Sample{}, fmt.Errorf("estimate load: %w", err)
	}

	storageMB, err := directorySizeMB(rootPath)
	if err != nil {
		return Sample{}, fmt.Errorf("measure storage: %w", err)
	}

	traffic, err := s.traffic.TrailingHour(ctx, rootPath, now)
	if err != nil {
		// Traffic stats are best effort; a missing or unreadable access
		// log must not block the sample.
		s.logger.Warn("read traffic stats",
			zap.String("tenant_id", tenantID.String()), zap.Error(err))
		traffic = TrafficStats{}
	}

	sample := Sample{
		TenantID:       tenantID,
		SampledAt:      now,
		CPUPercent:     cpu,
		MemoryMB:       memory,
		StorageMB:      storageMB,
		BandwidthMB:    traffic.BandwidthMB,
		PageViews:      traffic.PageViews,
		UniqueVisitors: traffic.UniqueVisitors,
	}
	if err := s.repo.Insert(ctx, sample); err != nil {
		return Sample{}, fmt.Errorf("record usage sample: %w", err)
	}
	return sample, nil
}

// Latest returns the most recent sample for a tenant.
func (s *Service) Latest(ctx context.Context, tenantID uuid.UUID) (Sample, error) {
	return s.repo.Latest(ctx, tenantID)
}

// Usage summarizes a tenant's samples over a named period.
type Usage struct {
	Period         string
	Samples        int
	AvgCPUPercent  float64
	AvgMemoryMB    float64
	MaxStorageMB   float64
	BandwidthMB    float64
	PageViews      int64
	UniqueVisitors int64
}

var periods = map[string]time.Duration{
	"1h":  time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

// GetUsage aggregates samples over one of the supported periods.
func (s *Service) GetUsage(ctx context.Context, tenantID uuid.UUID, period string) (Usage, error) {
	window, ok := periods[period]
	if !ok {
		return Usage{}, fmt.Errorf("%w: %q", ErrUnknownPeriod, period)
	}

	samples, err := s.repo.Range(ctx, tenantID, s.now().UTC().Add(-window))
	if err != nil {
		return Usage{}, err
	}

	usage := Usage{Period: period, Samples: len(samples)}
	if len(samples) == 0 {
		return usage, nil
	}
	for _, sample := range samples {
		usage.AvgCPUPercent += sample.CPUPercent
		usage.AvgMemoryMB += sample.MemoryMB
		if sample.StorageMB > usage.MaxStorageMB {
			usage.MaxStorageMB = sample.StorageMB
		}
		usage.BandwidthMB += sample.BandwidthMB
		usage.PageViews += sample.PageViews
		usage.UniqueVisitors += sample.UniqueVisitors
	}
	usage.AvgCPUPercent /= float64(len(samples))
	usage.AvgMemoryMB /= float64(len(samples))
	return usage, nil
}

// PruneBefore drops samples older than the cutoff.
func (s *Service) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.repo.PruneBefore(ctx, cutoff)
}

// directorySizeMB walks the tenant tree and sums file sizes. Unreadable
// entries are skipped rather than failing the whole measurement.
func directorySizeMB(root string) (float64, error) {
	var bytes int64
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		bytes += info.Size()
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return float64(bytes) / (1 << 20), nil
}
