// Package resources samples host resources and sizes the simulation worker
// pool from them.
package resources

import (
	"context"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Snapshot captures system resources at a point in time
type Snapshot struct {
	Timestamp     time.Time `json:"timestamp"`
	CPUCores      int       `json:"cpu_cores"`
	CPUUsage      float64   `json:"cpu_usage"`
	MemoryTotalGB float64   `json:"memory_total_gb"`
	MemoryUsage   float64   `json:"memory_usage"`
	Goroutines    int       `json:"goroutines"`
	HeapAllocMB   float64   `json:"heap_alloc_mb"`
}

// Collect samples the host. Probes that fail leave their fields zero.
func Collect(ctx context.Context) Snapshot {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	s := Snapshot{
		Timestamp:   time.Now(),
		CPUCores:    runtime.NumCPU(),
		Goroutines:  runtime.NumGoroutine(),
		HeapAllocMB: float64(ms.HeapAlloc) / (1024 * 1024),
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		s.MemoryTotalGB = float64(vm.Total) / (1024 * 1024 * 1024)
		s.MemoryUsage = vm.UsedPercent
	}
	// A zero interval compares against the previous call, so no blocking.
	if usage, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(usage) > 0 {
		s.CPUUsage = usage[0]
	}
	return s
}

// Fields flattens the snapshot for structured logging.
func (s Snapshot) Fields() map[string]interface{} {
	return map[string]interface{}{
		"cpu_cores":       s.CPUCores,
		"cpu_usage":       s.CPUUsage,
		"memory_total_gb": s.MemoryTotalGB,
		"memory_usage":    s.MemoryUsage,
		"goroutines":      s.Goroutines,
		"heap_alloc_mb":   s.HeapAllocMB,
	}
}

// OptimizerConfig bounds the worker count chosen by OptimalWorkers
type OptimizerConfig struct {
	MinWorkers      int     `mapstructure:"min_workers"`
	MaxWorkers      int     `mapstructure:"max_workers"`
	CPUThreshold    float64 `mapstructure:"cpu_threshold"`
	MemoryThreshold float64 `mapstructure:"memory_threshold"`
}

// DefaultOptimizerConfig returns default worker bounds
func DefaultOptimizerConfig() OptimizerConfig {
	return OptimizerConfig{
		MinWorkers:      1,
		MaxWorkers:      32,
		CPUThreshold:    80.0,
		MemoryThreshold: 85.0,
	}
}

// OptimalWorkers picks a worker count for numSims trajectories: one per
// core, halved under CPU or memory pressure, clamped to the configured
// bounds and never more than numSims.
func OptimalWorkers(s Snapshot, numSims int, cfg OptimizerConfig) int {
	if cfg.MinWorkers < 1 {
		cfg.MinWorkers = 1
	}
	if cfg.MaxWorkers < cfg.MinWorkers {
		cfg.MaxWorkers = cfg.MinWorkers
	}

	workers := s.CPUCores
	if cfg.CPUThreshold > 0 && s.CPUUsage > cfg.CPUThreshold {
		workers /= 2
	}
	if cfg.MemoryThreshold > 0 && s.MemoryUsage > cfg.MemoryThreshold {
		workers /= 2
	}

	workers = max(workers, cfg.MinWorkers)
	workers = min(workers, cfg.MaxWorkers)
	if numSims > 0 {
		workers = min(workers, numSims)
	}
	return workers
}
