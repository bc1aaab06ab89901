package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/irfndi/celebrum-sim/internal/features"
	"github.com/irfndi/celebrum-sim/internal/resources"
	"github.com/irfndi/celebrum-sim/internal/simulator"
	"github.com/irfndi/celebrum-sim/internal/telemetry"
	"github.com/irfndi/celebrum-sim/internal/utils"
)

type Config struct {
	Environment string                    `mapstructure:"environment"`
	LogLevel    string                    `mapstructure:"log_level"`
	Simulation  SimulationConfig          `mapstructure:"simulation"`
	Features    features.LagConfig        `mapstructure:"features"`
	Model       ModelConfig               `mapstructure:"model"`
	Telemetry   telemetry.TelemetryConfig `mapstructure:"telemetry"`
	Metrics     MetricsConfig             `mapstructure:"metrics"`
	Resources   resources.OptimizerConfig `mapstructure:"resources"`
}

// SimulationConfig combines the simulator settings with the per-call
// parameters of a batch.
type SimulationConfig struct {
	// Workers of 0 sizes the pool from host resources
	simulator.Config `mapstructure:",squash"`

	Steps   int `mapstructure:"steps"`
	NumSims int `mapstructure:"num_sims"`

	// Seed pins the root PRNG key; nil draws one from OS entropy.
	Seed *uint64 `mapstructure:"seed"`
}

type ModelConfig struct {
	// Regressors defaults to every feature produced by the feature engineer
	Regressors []string `mapstructure:"regressors"`
	CountSites []string `mapstructure:"count_sites"`
}

type MetricsConfig struct {
	TextfilePath string `mapstructure:"textfile_path"`
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Load reads config.yaml from ./configs or the working directory, falling
// back to defaults and environment variables when no file exists.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. An empty path searches the
// default locations.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Set default values
	setDefaults(v)

	// Enable environment variable support
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Seed has no default, so it must be bound explicitly
	if err := v.BindEnv("simulation.seed", "SIMULATION_SEED"); err != nil {
		return nil, fmt.Errorf("failed to bind SIMULATION_SEED environment variable: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	// Normalize environment to lowercase for consistent comparison
	config.Environment = strings.ToLower(config.Environment)
	config.LogLevel = strings.ToLower(config.LogLevel)
	if config.Telemetry.Environment == "" {
		config.Telemetry.Environment = config.Environment
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the cross-field constraints viper cannot express.
func (c *Config) Validate() error {
	if !validLogLevels[c.LogLevel] {
		return utils.NewFieldError("log_level", "unsupported level %q", c.LogLevel)
	}

	sim := c.Simulation
	if sim.Steps < 0 {
		return utils.NewValidationErrorf("simulation.steps must be non-negative, got %d", sim.Steps)
	}
	if sim.NumSims < 1 {
		return utils.NewValidationErrorf("simulation.num_sims must be at least 1, got %d", sim.NumSims)
	}
	if sim.Workers < 0 {
		return utils.NewValidationErrorf("simulation.workers must be non-negative, got %d", sim.Workers)
	}

	if c.Features.Lags < 0 {
		return utils.NewValidationErrorf("features.lags must be non-negative, got %d", c.Features.Lags)
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return utils.NewValidationErrorf("telemetry.sample_rate must be within [0, 1], got %v", c.Telemetry.SampleRate)
	}
	switch strings.ToLower(c.Telemetry.Exporter) {
	case telemetry.ExporterStdout, telemetry.ExporterNone:
	case telemetry.ExporterOTLP:
		if c.Telemetry.OTLPEndpoint == "" {
			return utils.NewFieldError("telemetry.otlp_endpoint", "required by the otlp exporter")
		}
	default:
		return utils.NewValidationErrorf("unsupported telemetry.exporter %q", c.Telemetry.Exporter)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Environment
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")

	// Simulation
	sim := simulator.DefaultConfig()
	v.SetDefault("simulation.target_site", sim.TargetSite)
	v.SetDefault("simulation.inherit_vals", sim.InheritVals)
	v.SetDefault("simulation.exo_fixed_effects", sim.ExoFixedEffects)
	v.SetDefault("simulation.additional_effects", sim.AdditionalEffects)
	v.SetDefault("simulation.workers", sim.Workers)
	v.SetDefault("simulation.steps", 30)
	v.SetDefault("simulation.num_sims", 100)

	// Features
	fe := features.DefaultLagConfig()
	v.SetDefault("features.target_column", fe.TargetColumn)
	v.SetDefault("features.lags", fe.Lags)
	v.SetDefault("features.sma_periods", fe.SMAPeriods)
	v.SetDefault("features.ema_periods", fe.EMAPeriods)
	v.SetDefault("features.volatility_window", fe.VolatilityWindow)
	v.SetDefault("features.rsi_period", fe.RSIPeriod)
	v.SetDefault("features.passthrough", []string{})

	// Model
	v.SetDefault("model.regressors", []string{})
	v.SetDefault("model.count_sites", []string{})

	// Telemetry
	tel := telemetry.DefaultConfig()
	v.SetDefault("telemetry.enabled", tel.Enabled)
	v.SetDefault("telemetry.exporter", tel.Exporter)
	v.SetDefault("telemetry.output_path", "")
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_insecure", false)
	v.SetDefault("telemetry.service_name", tel.ServiceName)
	v.SetDefault("telemetry.service_version", tel.ServiceVersion)
	v.SetDefault("telemetry.environment", "")
	v.SetDefault("telemetry.sample_rate", tel.SampleRate)
	v.SetDefault("telemetry.batch_timeout", tel.BatchTimeout)
	v.SetDefault("telemetry.max_export_batch", tel.MaxExportBatch)
	v.SetDefault("telemetry.max_queue_size", tel.MaxQueueSize)

	// Metrics
	v.SetDefault("metrics.textfile_path", "")

	// Resources
	res := resources.DefaultOptimizerConfig()
	v.SetDefault("resources.min_workers", res.MinWorkers)
	v.SetDefault("resources.max_workers", res.MaxWorkers)
	v.SetDefault("resources.cpu_threshold", res.CPUThreshold)
	v.SetDefault("resources.memory_threshold", res.MemoryThreshold)
}
