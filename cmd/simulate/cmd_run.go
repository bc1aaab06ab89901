package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/irfndi/celebrum-sim/internal/config"
	"github.com/irfndi/celebrum-sim/internal/dataio"
	"github.com/irfndi/celebrum-sim/internal/features"
	"github.com/irfndi/celebrum-sim/internal/logging"
	"github.com/irfndi/celebrum-sim/internal/metrics"
	"github.com/irfndi/celebrum-sim/internal/model"
	"github.com/irfndi/celebrum-sim/internal/models"
	"github.com/irfndi/celebrum-sim/internal/random"
	"github.com/irfndi/celebrum-sim/internal/resources"
	"github.com/irfndi/celebrum-sim/internal/simulator"
	"github.com/irfndi/celebrum-sim/internal/summary"
	"github.com/irfndi/celebrum-sim/internal/telemetry"
	"github.com/irfndi/celebrum-sim/internal/utils"
)

const serviceName = "simulate"

// runOptions are the inputs of a run that do not live in the config file.
type runOptions struct {
	historyPath   string
	posteriorPath string
	outPath       string
	summary       bool
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Simulate future paths from a history and a posterior",
		Example: `  simulate run --history prices.csv --posterior posterior.yaml --steps 30 --sims 500 --seed 7 --out runs.csv --summary`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runSimulation(cmd.Context(), cfg, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&opts.historyPath, "history", "", "Historical table CSV (required)")
	cmd.Flags().StringVar(&opts.posteriorPath, "posterior", "", "Posterior samples, YAML or JSON (required)")
	cmd.Flags().StringVar(&opts.outPath, "out", "-", "Output CSV of simulated runs, - for stdout")
	cmd.Flags().BoolVar(&opts.summary, "summary", false, "Print a fan chart of cumulative returns")
	cmd.Flags().Int("steps", 0, "Steps per trajectory (overrides simulation.steps)")
	cmd.Flags().Int("sims", 0, "Number of trajectories (overrides simulation.num_sims)")
	cmd.Flags().Uint64("seed", 0, "Root PRNG seed (overrides simulation.seed)")
	cmd.Flags().Int("workers", 0, "Concurrent trajectories, 0 for automatic (overrides simulation.workers)")
	cmd.Flags().String("metrics-textfile", "", "Write Prometheus metrics to this file (overrides metrics.textfile_path)")
	_ = cmd.MarkFlagRequired("history")
	_ = cmd.MarkFlagRequired("posterior")

	return cmd
}

// loadConfig reads the env file and config, then applies explicit flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("steps") {
		cfg.Simulation.Steps, _ = flags.GetInt("steps")
	}
	if flags.Changed("sims") {
		cfg.Simulation.NumSims, _ = flags.GetInt("sims")
	}
	if flags.Changed("workers") {
		cfg.Simulation.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("seed") {
		seed, _ := flags.GetUint64("seed")
		cfg.Simulation.Seed = &seed
	}
	if flags.Changed("metrics-textfile") {
		cfg.Metrics.TextfilePath, _ = flags.GetString("metrics-textfile")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runSimulation(ctx context.Context, cfg *config.Config, opts runOptions, stdout, stderr io.Writer) (err error) {
	otlpLogger, err := logging.NewOTLPLogger(ctx, logging.OTLPConfig{
		Enabled:        cfg.Telemetry.Enabled && strings.EqualFold(cfg.Telemetry.Exporter, telemetry.ExporterOTLP),
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
		Insecure:       cfg.Telemetry.OTLPInsecure,
		ServiceName:    serviceName,
		ServiceVersion: version,
		Environment:    cfg.Environment,
		LogLevel:       cfg.LogLevel,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize log export: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otlpLogger.Shutdown(shutdownCtx)
	}()

	stdLogger := logging.NewStandardLoggerWithHandler(
		otlpLogger.Attach(logging.NewHandler(stderr, cfg.LogLevel, cfg.Environment)))
	logrusLogger := logging.NewLogrusLogger(cfg.LogLevel, cfg.Environment)
	logrusLogger.SetOutput(stderr)
	otlpLogger.AttachLogrus(logrusLogger)

	stdLogger.LogStartup(serviceName, version)
	if otlpLogger.Enabled() {
		stdLogger.WithComponent("logging").Info("Exporting logs over OTLP", "endpoint", cfg.Telemetry.OTLPEndpoint)
	}
	defer func() {
		reason := "completed"
		if err != nil {
			reason = err.Error()
		}
		stdLogger.LogShutdown(serviceName, reason)
	}()

	provider, err := telemetry.InitTelemetryWithProvider(ctx, &cfg.Telemetry, nil, stdLogger.Logger())
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := provider.Shutdown(shutdownCtx); serr != nil {
			stdLogger.WithError(serr).Warn("Failed to shutdown telemetry")
		}
	}()

	history, err := dataio.LoadTableCSVFile(opts.historyPath)
	if err != nil {
		return err
	}
	posterior, err := dataio.LoadPosterior(opts.posteriorPath)
	if err != nil {
		return err
	}
	draws, _ := posterior.NumDraws()
	stdLogger.WithComponent("model").Debug("Posterior loaded",
		"draws", draws,
		"mean", posterior.Mean(),
	)

	fe, err := features.NewLagEngineer(cfg.Features)
	if err != nil {
		return fmt.Errorf("failed to build feature engineer: %w", err)
	}
	m, err := buildModel(cfg, fe)
	if err != nil {
		return err
	}
	if err := posterior.Require(m.RequiredParams(cfg.Simulation.ExoFixedEffects)...); err != nil {
		return err
	}

	simCfg := cfg.Simulation.Config
	simCfg.TargetSite = m.Target()
	snapshot := resources.Collect(ctx)
	if simCfg.Workers == 0 {
		simCfg.Workers = resources.OptimalWorkers(snapshot, cfg.Simulation.NumSims, cfg.Resources)
	}
	stdLogger.LogResourceStats(serviceName, snapshot.Fields())

	reg := metrics.New(nil)
	batchID := uuid.New().String()
	progress := simulator.NewLogProgress(logrusLogger, max(1, cfg.Simulation.NumSims/10))
	sim, err := simulator.New(simCfg, m, fe, logrusLogger,
		simulator.WithMetrics(reg),
		simulator.WithProgress(progress),
		simulator.WithBatchID(batchID),
	)
	if err != nil {
		return err
	}

	key, err := rootKey(cfg.Simulation.Seed)
	if err != nil {
		return err
	}
	stdLogger.WithBatchID(batchID).Info("Simulating",
		"history_rows", history.Len(),
		"steps", cfg.Simulation.Steps,
		"num_sims", cfg.Simulation.NumSims,
		"workers", simCfg.Workers,
		"seed", key.Seed(),
	)

	started := time.Now()
	runs, err := sim.SimulatePaths(ctx, cfg.Simulation.Steps, history, posterior, cfg.Simulation.NumSims, key)
	if err != nil {
		writeMetrics(cfg, reg, stdLogger)
		return fmt.Errorf("simulation failed: %w", err)
	}

	summaryOut := stdout
	if opts.outPath == "" || opts.outPath == "-" {
		if err := dataio.WriteRunsCSV(stdout, runs); err != nil {
			return err
		}
		summaryOut = stderr
	} else if err := dataio.WriteRunsCSVFile(opts.outPath, runs); err != nil {
		return err
	}

	if opts.summary && cfg.Simulation.Steps > 0 {
		fc, err := summary.BuildFanChart(runs, history.Len(), summary.DefaultConfig())
		if err != nil {
			return fmt.Errorf("failed to summarize runs: %w", err)
		}
		if err := fc.Render(summaryOut); err != nil {
			return err
		}
	}

	if stdLogger.Logger().Enabled(ctx, slog.LevelDebug) {
		for _, id := range runs.RunIDs() {
			run, err := runs.Run(id)
			if err != nil {
				return err
			}
			stdLogger.WithRunID(id).Debug("Run written", "rows", run.Len())
		}
	}

	writeMetrics(cfg, reg, stdLogger)
	stdLogger.LogBusinessEvent("simulation_completed", map[string]interface{}{
		"batch_id":    batchID,
		"rows":        runs.Len(),
		"runs":        runs.NumRuns(),
		"seed":        key.Seed(),
		"duration_ms": time.Since(started).Milliseconds(),
	})
	stdLogger.LogResourceStats(serviceName, resources.Collect(ctx).Fields())
	return nil
}

// buildModel wires a LinearAR on the configured regressors. By default every
// produced feature is a regressor except fixed effects and passthrough
// columns that simulated rows leave undefined.
func buildModel(cfg *config.Config, fe *features.LagEngineer) (*model.LinearAR, error) {
	undefined := undefinedPassthrough(cfg)

	regressors := cfg.Model.Regressors
	if len(regressors) == 0 {
		fixed := make(map[string]bool, len(cfg.Simulation.ExoFixedEffects))
		for _, e := range cfg.Simulation.ExoFixedEffects {
			fixed[e] = true
		}
		for _, name := range fe.FeatureNames() {
			if !fixed[name] && !undefined[name] {
				regressors = append(regressors, name)
			}
		}
	} else {
		for _, name := range regressors {
			if undefined[name] {
				return nil, utils.NewFieldError("model.regressors",
					"passthrough column %q is not inherited or sampled, so simulated rows leave it undefined", name)
			}
		}
	}

	target := cfg.Simulation.TargetSite
	if target == "" {
		target = simulator.DefaultTargetSite
	}
	m, err := model.NewLinearAR(target, regressors, cfg.Model.CountSites)
	if err != nil {
		return nil, fmt.Errorf("failed to build model: %w", err)
	}
	return m, nil
}

// undefinedPassthrough lists the passthrough columns that AppendFromLogRet
// fills with NaN: those neither inherited, sampled as additional effects nor
// derived from the log return.
func undefinedPassthrough(cfg *config.Config) map[string]bool {
	carried := map[string]bool{models.LogRetColumn: true, models.CloseColumn: true}
	for _, name := range cfg.Simulation.InheritVals {
		carried[name] = true
	}
	for _, name := range cfg.Simulation.AdditionalEffects {
		carried[name] = true
	}

	out := make(map[string]bool)
	for _, name := range cfg.Features.Passthrough {
		if !carried[name] {
			out[name] = true
		}
	}
	return out
}

func rootKey(seed *uint64) (random.Key, error) {
	if seed != nil {
		return random.NewKey(*seed), nil
	}
	return random.EntropyKey()
}

func writeMetrics(cfg *config.Config, reg *metrics.Metrics, logger *logging.StandardLogger) {
	if cfg.Metrics.TextfilePath == "" {
		return
	}
	if err := reg.WriteTextfile(cfg.Metrics.TextfilePath); err != nil {
		logger.WithError(err).Warn("Failed to write metrics textfile")
	}
}
