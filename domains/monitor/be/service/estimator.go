package service

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// LoadEstimator approximates a tenant's CPU and memory footprint. There is
// no per-tenant process boundary to measure directly, so implementations
// trade accuracy for what the deployment can observe.
type LoadEstimator interface {
	Estimate(ctx context.Context, rootPath string) (cpuPercent, memoryMB float64, err error)
}

// ActivityEstimator infers load from cache churn: every cache file touched
// in the recent window indicates request activity, and each active request
// costs a roughly fixed CPU and memory share.
type ActivityEstimator struct {
	Window      time.Duration // mtime lookback; default 5m
	CPUPerFile  float64       // default 0.5
	MemoryBase  float64       // default 32 MB resident floor
	MemoryPer10 float64       // default 16 MB per 10 active files
	CPUCeiling  float64       // default 100
	now         func() time.Time
}

func NewActivityEstimator() *ActivityEstimator {
	return &ActivityEstimator{
		Window:      5 * time.Minute,
		CPUPerFile:  0.5,
		MemoryBase:  32,
		MemoryPer10: 16,
		CPUCeiling:  100,
		now:         time.Now,
	}
}

func (e *ActivityEstimator) Estimate(_ context.Context, rootPath string) (float64, float64, error) {
	cutoff := e.now().Add(-e.Window)
	cacheDir := filepath.Join(rootPath, "content", "cache")

	active := 0
	err := filepath.WalkDir(cacheDir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // missing or unreadable cache dir means no activity
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().After(cutoff) {
			active++
		}
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("walk cache dir: %w", err)
	}

	cpuPercent := float64(active) * e.CPUPerFile
	if cpuPercent > e.CPUCeiling {
		cpuPercent = e.CPUCeiling
	}
	memoryMB := e.MemoryBase + float64(active)/10*e.MemoryPer10
	return cpuPercent, memoryMB, nil
}

// HostEstimator reports host-wide CPU and memory via gopsutil. Suitable
// when one tenant owns the machine.
type HostEstimator struct{}

func (HostEstimator) Estimate(ctx context.Context, _ string) (float64, float64, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, 0, fmt.Errorf("read host cpu: %w", err)
	}
	var cpuPercent float64
	if len(percents) > 0 {
		cpuPercent = percents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("read host memory: %w", err)
	}
	return cpuPercent, float64(vm.Used) / (1 << 20), nil
}

var (
	_ LoadEstimator = (*ActivityEstimator)(nil)
	_ LoadEstimator = HostEstimator{}
)
