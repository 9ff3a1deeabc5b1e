package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/diploy/hostfleet/platform/go/quota"
)

func TestCheckLimitsBoundaries(t *testing.T) {
	limits := quota.Limits{CPUPercent: 100}

	// Exactly at the limit is not a violation, just a warning.
	got := CheckLimits(Sample{CPUPercent: 100.0}, limits)
	require.Len(t, got, 1)
	require.Equal(t, LevelWarning, got[0].Level)

	got = CheckLimits(Sample{CPUPercent: 100.01}, limits)
	require.Len(t, got, 1)
	require.Equal(t, LevelViolation, got[0].Level)

	// Exactly 80% is clean; just above warns.
	require.Empty(t, CheckLimits(Sample{CPUPercent: 80.0}, limits))
	got = CheckLimits(Sample{CPUPercent: 80.01}, limits)
	require.Len(t, got, 1)
	require.Equal(t, LevelWarning, got[0].Level)
}

func TestCheckLimitsSkipsUnmeteredResources(t *testing.T) {
	// Only storage is metered; the huge CPU number is ignored.
	got := CheckLimits(Sample{CPUPercent: 900, StorageMB: 150}, quota.Limits{StorageMB: 100})
	require.Len(t, got, 1)
	require.Equal(t, quota.ResourceStorageMB, got[0].Resource)
	require.Equal(t, LevelViolation, got[0].Level)
	require.InDelta(t, 150, got[0].Percent, 0.001)
}

func TestCheckLimitsGuestPolicy(t *testing.T) {
	sample := Sample{CPUPercent: 11, MemoryMB: 100, StorageMB: 50, BandwidthMB: 500, PageViews: 500}
	got := CheckLimits(sample, quota.GuestLimits())

	byResource := map[string]Violation{}
	for _, v := range got {
		byResource[v.Resource] = v
	}
	require.Len(t, got, 2)
	require.Equal(t, LevelViolation, byResource[quota.ResourceCPUPercent].Level)
	require.Equal(t, LevelViolation, byResource[quota.ResourceMemoryMB].Level)
}

func TestCriticalViolations(t *testing.T) {
	violations := []Violation{
		{Resource: quota.ResourceCPUPercent, Percent: 151, Level: LevelViolation},
		{Resource: quota.ResourceMemoryMB, Percent: 149, Level: LevelViolation},
		{Resource: quota.ResourceStorageMB, Percent: 500, Level: LevelViolation},
		{Resource: quota.ResourceBandwidthMB, Percent: 200, Level: LevelViolation},
		{Resource: quota.ResourceCPUPercent, Percent: 90, Level: LevelWarning},
	}

	got := CriticalViolations(violations)
	require.Len(t, got, 2)
	require.Equal(t, quota.ResourceCPUPercent, got[0].Resource)
	require.Equal(t, quota.ResourceBandwidthMB, got[1].Resource)
}

type memUsageRepo struct {
	samples []Sample
}

func (m *memUsageRepo) Insert(_ context.Context, sample Sample) error {
	m.samples = append(m.samples, sample)
	return nil
}

func (m *memUsageRepo) Latest(_ context.Context, tenantID uuid.UUID) (Sample, error) {
	for i := len(m.samples) - 1; i >= 0; i-- {
		if m.samples[i].TenantID == tenantID {
			return m.samples[i], nil
		}
	}
	return Sample{}, fmt.Errorf("no samples")
}

func (m *memUsageRepo) Range(_ context.Context, tenantID uuid.UUID, since time.Time) ([]Sample, error) {
	var out []Sample
	for _, s := range m.samples {
		if s.TenantID == tenantID && !s.SampledAt.Before(since) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memUsageRepo) PruneBefore(_ context.Context, cutoff time.Time) (int64, error) {
	var kept []Sample
	var pruned int64
	for _, s := range m.samples {
		if s.SampledAt.Before(cutoff) {
			pruned++
			continue
		}
		kept = append(kept, s)
	}
	m.samples = kept
	return pruned, nil
}

type staticEstimator struct {
	cpu, memory float64
}

func (e staticEstimator) Estimate(context.Context, string) (float64, float64, error) {
	return e.cpu, e.memory, nil
}

type staticTraffic struct {
	stats TrafficStats
	err   error
}

func (t staticTraffic) TrailingHour(context.Context, string, time.Time) (TrafficStats, error) {
	return t.stats, t.err
}

func TestCollectRecordsSample(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "content"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "content", "page.html"), make([]byte, 2<<20), 0o644))

	repo := &memUsageRepo{}
	svc := New(repo, staticEstimator{cpu: 12, memory: 128},
		staticTraffic{stats: TrafficStats{PageViews: 40, UniqueVisitors: 7, BandwidthMB: 3.5}},
		zap.NewNop())

	tenantID := uuid.New()
	sample, err := svc.Collect(context.Background(), tenantID, root)
	require.NoError(t, err)
	require.Equal(t, tenantID, sample.TenantID)
	require.InDelta(t, 12, sample.CPUPercent, 0.001)
	require.InDelta(t, 128, sample.MemoryMB, 0.001)
	require.InDelta(t, 2.0, sample.StorageMB, 0.01)
	require.Equal(t, int64(40), sample.PageViews)
	require.Len(t, repo.samples, 1)
}

func TestCollectToleratesMissingAccessLog(t *testing.T) {
	repo := &memUsageRepo{}
	svc := New(repo, staticEstimator{}, staticTraffic{err: os.ErrNotExist}, zap.NewNop())

	sample, err := svc.Collect(context.Background(), uuid.New(), t.TempDir())
	require.NoError(t, err)
	require.Zero(t, sample.PageViews)
	require.Zero(t, sample.BandwidthMB)
}

func TestGetUsageAggregates(t *testing.T) {
	tenantID := uuid.New()
	now := time.Now().UTC()
	repo := &memUsageRepo{samples: []Sample{
		{TenantID: tenantID, SampledAt: now.Add(-2 * time.Hour), CPUPercent: 10, MemoryMB: 100, StorageMB: 500, BandwidthMB: 1, PageViews: 10, UniqueVisitors: 2},
		{TenantID: tenantID, SampledAt: now.Add(-30 * time.Minute), CPUPercent: 30, MemoryMB: 300, StorageMB: 480, BandwidthMB: 2, PageViews: 30, UniqueVisitors: 5},
		{TenantID: tenantID, SampledAt: now.Add(-40 * 24 * time.Hour), CPUPercent: 99, MemoryMB: 999, StorageMB: 999, BandwidthMB: 99, PageViews: 999},
	}}
	svc := New(repo, staticEstimator{}, staticTraffic{}, zap.NewNop())

	usage, err := svc.GetUsage(context.Background(), tenantID, "24h")
	require.NoError(t, err)
	require.Equal(t, 2, usage.Samples)
	require.InDelta(t, 20, usage.AvgCPUPercent, 0.001)
	require.InDelta(t, 200, usage.AvgMemoryMB, 0.001)
	require.InDelta(t, 500, usage.MaxStorageMB, 0.001)
	require.InDelta(t, 3, usage.BandwidthMB, 0.001)
	require.Equal(t, int64(40), usage.PageViews)
}

func TestGetUsageUnknownPeriod(t *testing.T) {
	svc := New(&memUsageRepo{}, staticEstimator{}, staticTraffic{}, zap.NewNop())
	_, err := svc.GetUsage(context.Background(), uuid.New(), "90d")
	require.ErrorIs(t, err, ErrUnknownPeriod)
}

func TestActivityEstimatorCountsRecentCacheFiles(t *testing.T) {
	root := t.TempDir()
	cacheDir := filepath.Join(root, "content", "cache")
	require.NoError(t, os.MkdirAll(cacheDir, 0o755))

	now := time.Now()
	for i := 0; i < 20; i++ {
		path := filepath.Join(cacheDir, fmt.Sprintf("page-%d.cache", i))
		require.NoError(t, os.WriteFile(path, []byte("cached"), 0o644))
	}
	// Age half of them out of the window.
	old := now.Add(-time.Hour)
	for i := 0; i < 10; i++ {
		path := filepath.Join(cacheDir, fmt.Sprintf("page-%d.cache", i))
		require.NoError(t, os.Chtimes(path, old, old))
	}

	est := NewActivityEstimator()
	cpu, memory, err := est.Estimate(context.Background(), root)
	require.NoError(t, err)
	require.InDelta(t, 5.0, cpu, 0.001)    // 10 active files * 0.5
	require.InDelta(t, 48.0, memory, 0.001) // 32 + 10/10*16
}

func TestActivityEstimatorEmptyCache(t *testing.T) {
	est := NewActivityEstimator()
	cpu, memory, err := est.Estimate(context.Background(), t.TempDir())
	require.NoError(t, err)
	require.Zero(t, cpu)
	require.InDelta(t, 32, memory, 0.001)
}

func writeAccessLog(t *testing.T, root string, lines []string) {
	t.Helper()
	logsDir := filepath.Join(root, "logs")
	require.NoError(t, os.MkdirAll(logsDir, 0o700))
	body := ""
	for _, line := range lines {
		body += line + "\n"
	}
	require.NoError(t, os.WriteFile(filepath.Join(logsDir, "access.log"), []byte(body), 0o640))
}

func TestAccessLogReaderTrailingHour(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	stamp := func(age time.Duration) string {
		return now.Add(-age).Format(accessLogTimeLayout)
	}

	writeAccessLog(t, root, []string{
		// Two page views from the same visitor, one from another.
		fmt.Sprintf(`10.0.0.1 - - [%s] "GET / HTTP/1.1" 200 1048576 "-" "Mozilla"`, stamp(10*time.Minute)),
		fmt.Sprintf(`10.0.0.1 - - [%s] "GET /about HTTP/1.1" 200 1048576 "-" "Mozilla"`, stamp(20*time.Minute)),
		fmt.Sprintf(`10.0.0.2 - - [%s] "GET /pricing HTTP/1.1" 200 1048576 "-" "curl"`, stamp(30*time.Minute)),
		// Asset request: bandwidth only.
		fmt.Sprintf(`10.0.0.3 - - [%s] "GET /app.css HTTP/1.1" 200 1048576 "-" "Mozilla"`, stamp(5*time.Minute)),
		// 404 and POST are not page views.
		fmt.Sprintf(`10.0.0.4 - - [%s] "GET /missing HTTP/1.1" 404 512 "-" "Mozilla"`, stamp(5*time.Minute)),
		fmt.Sprintf(`10.0.0.5 - - [%s] "POST /contact HTTP/1.1" 200 256 "-" "Mozilla"`, stamp(5*time.Minute)),
		// Outside the trailing hour.
		fmt.Sprintf(`10.0.0.6 - - [%s] "GET / HTTP/1.1" 200 1048576 "-" "Mozilla"`, stamp(2*time.Hour)),
		// Garbage line is skipped.
		"not a log line",
	})

	reader := NewAccessLogReader()
	stats, err := reader.TrailingHour(context.Background(), root, now)
	require.NoError(t, err)
	require.Equal(t, int64(3), stats.PageViews)
	require.Equal(t, int64(2), stats.UniqueVisitors)
	// 4 requests * 1 MiB + small bodies inside the hour.
	require.InDelta(t, 4.0, stats.BandwidthMB, 0.01)
}

func TestAccessLogReaderMissingFile(t *testing.T) {
	reader := NewAccessLogReader()
	_, err := reader.TrailingHour(context.Background(), t.TempDir(), time.Now())
	require.Error(t, err)
}
