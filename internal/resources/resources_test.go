package resources

import (
	"context"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollect(t *testing.T) {
	s := Collect(context.Background())

	assert.Equal(t, runtime.NumCPU(), s.CPUCores)
	assert.Greater(t, s.Goroutines, 0)
	assert.Greater(t, s.HeapAllocMB, 0.0)
	assert.False(t, s.Timestamp.IsZero())

	fields := s.Fields()
	assert.Equal(t, s.CPUCores, fields["cpu_cores"])
	assert.Contains(t, fields, "memory_usage")
}

func TestOptimalWorkers(t *testing.T) {
	cfg := DefaultOptimizerConfig()

	tests := []struct {
		name     string
		snapshot Snapshot
		numSims  int
		cfg      OptimizerConfig
		want     int
	}{
		{"one per core", Snapshot{CPUCores: 8}, 100, cfg, 8},
		{"capped by runs", Snapshot{CPUCores: 8}, 3, cfg, 3},
		{"cpu pressure", Snapshot{CPUCores: 8, CPUUsage: 95}, 100, cfg, 4},
		{"cpu and memory pressure", Snapshot{CPUCores: 8, CPUUsage: 95, MemoryUsage: 90}, 100, cfg, 2},
		{"minimum", Snapshot{CPUCores: 1, CPUUsage: 99}, 100, cfg, 1},
		{"maximum", Snapshot{CPUCores: 128}, 1000, cfg, 32},
		{"zero config", Snapshot{CPUCores: 4}, 10, OptimizerConfig{}, 1},
		{"unknown run count", Snapshot{CPUCores: 4}, 0, cfg, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OptimalWorkers(tt.snapshot, tt.numSims, tt.cfg))
		})
	}
}
