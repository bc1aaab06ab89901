package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/celebrum-sim/internal/utils"
)

func TestLoad_WithDefaults(t *testing.T) {
	// Run from an empty directory so no config.yaml is picked up
	t.Chdir(t.TempDir())

	config, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", config.Environment)
	assert.Equal(t, "info", config.LogLevel)

	assert.Equal(t, "log_ret", config.Simulation.TargetSite)
	assert.Empty(t, config.Simulation.InheritVals)
	assert.Empty(t, config.Simulation.AdditionalEffects)
	assert.Equal(t, 1, config.Simulation.Workers)
	assert.Equal(t, 30, config.Simulation.Steps)
	assert.Equal(t, 100, config.Simulation.NumSims)
	assert.Nil(t, config.Simulation.Seed)

	assert.Equal(t, "log_ret", config.Features.TargetColumn)
	assert.Equal(t, 3, config.Features.Lags)
	assert.Equal(t, []int{5}, config.Features.SMAPeriods)
	assert.Equal(t, []int{10}, config.Features.EMAPeriods)
	assert.Equal(t, 10, config.Features.VolatilityWindow)

	assert.False(t, config.Telemetry.Enabled)
	assert.Equal(t, "stdout", config.Telemetry.Exporter)
	assert.Equal(t, "development", config.Telemetry.Environment)
	assert.Equal(t, 5*time.Second, config.Telemetry.BatchTimeout)
	assert.Equal(t, "", config.Metrics.TextfilePath)
	assert.Equal(t, 1, config.Resources.MinWorkers)
	assert.Equal(t, 32, config.Resources.MaxWorkers)
}

func TestLoad_WithEnvironmentVariables(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ENVIRONMENT", "Production")
	t.Setenv("LOG_LEVEL", "ERROR")
	t.Setenv("SIMULATION_STEPS", "12")
	t.Setenv("SIMULATION_NUM_SIMS", "7")
	t.Setenv("SIMULATION_WORKERS", "4")
	t.Setenv("SIMULATION_SEED", "42")
	t.Setenv("SIMULATION_INHERIT_VALS", "vix,spread")
	t.Setenv("FEATURES_LAGS", "5")
	t.Setenv("TELEMETRY_ENABLED", "true")
	t.Setenv("METRICS_TEXTFILE_PATH", "/tmp/sim.prom")

	config, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "production", config.Environment)
	assert.Equal(t, "error", config.LogLevel)
	assert.Equal(t, 12, config.Simulation.Steps)
	assert.Equal(t, 7, config.Simulation.NumSims)
	assert.Equal(t, 4, config.Simulation.Workers)
	require.NotNil(t, config.Simulation.Seed)
	assert.Equal(t, uint64(42), *config.Simulation.Seed)
	assert.Equal(t, []string{"vix", "spread"}, config.Simulation.InheritVals)
	assert.Equal(t, 5, config.Features.Lags)
	assert.True(t, config.Telemetry.Enabled)
	assert.Equal(t, "production", config.Telemetry.Environment)
	assert.Equal(t, "/tmp/sim.prom", config.Metrics.TextfilePath)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sim.yaml")
	content := `
log_level: debug
simulation:
  target_site: ret
  inherit_vals: [vix]
  exo_fixed_effects: [vix]
  additional_effects: [trades]
  steps: 20
  num_sims: 50
  workers: 2
  seed: 7
features:
  target_column: ret
  lags: 2
  sma_periods: [3, 6]
  ema_periods: []
  volatility_window: 0
  passthrough: [vix]
model:
  regressors: [ret_lag_1]
  count_sites: [trades]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	config, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", config.LogLevel)
	assert.Equal(t, "ret", config.Simulation.TargetSite)
	assert.Equal(t, []string{"vix"}, config.Simulation.InheritVals)
	assert.Equal(t, []string{"vix"}, config.Simulation.ExoFixedEffects)
	assert.Equal(t, []string{"trades"}, config.Simulation.AdditionalEffects)
	assert.Equal(t, 20, config.Simulation.Steps)
	assert.Equal(t, 50, config.Simulation.NumSims)
	assert.Equal(t, 2, config.Simulation.Workers)
	require.NotNil(t, config.Simulation.Seed)
	assert.Equal(t, uint64(7), *config.Simulation.Seed)

	assert.Equal(t, "ret", config.Features.TargetColumn)
	assert.Equal(t, 2, config.Features.Lags)
	assert.Equal(t, []int{3, 6}, config.Features.SMAPeriods)
	assert.Empty(t, config.Features.EMAPeriods)
	assert.Equal(t, 0, config.Features.VolatilityWindow)
	assert.Equal(t, []string{"vix"}, config.Features.Passthrough)

	assert.Equal(t, []string{"ret_lag_1"}, config.Model.Regressors)
	assert.Equal(t, []string{"trades"}, config.Model.CountSites)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"negative steps", "SIMULATION_STEPS", "-1"},
		{"zero sims", "SIMULATION_NUM_SIMS", "0"},
		{"negative workers", "SIMULATION_WORKERS", "-1"},
		{"negative lags", "FEATURES_LAGS", "-2"},
		{"bad log level", "LOG_LEVEL", "verbose"},
		{"bad exporter", "TELEMETRY_EXPORTER", "jaeger"},
		{"otlp without endpoint", "TELEMETRY_EXPORTER", "otlp"},
		{"bad sample rate", "TELEMETRY_SAMPLE_RATE", "1.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
			var validationErr *utils.ValidationError
			assert.ErrorAs(t, err, &validationErr)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	config := Config{
		LogLevel: "warn",
		Simulation: SimulationConfig{
			Steps:   0,
			NumSims: 1,
		},
	}
	config.Simulation.Workers = 1
	config.Telemetry.Exporter = "none"
	config.Telemetry.SampleRate = 0.5

	assert.NoError(t, config.Validate())

	config.Simulation.NumSims = 0
	assert.Error(t, config.Validate())
}
