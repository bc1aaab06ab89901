// Package simulator drives autoregressive stochastic simulation of a time
// series: each step samples the model once, appends the sampled row to the
// historical table and re-derives the features for the next step.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/irfndi/celebrum-sim/internal/features"
	"github.com/irfndi/celebrum-sim/internal/metrics"
	"github.com/irfndi/celebrum-sim/internal/model"
	"github.com/irfndi/celebrum-sim/internal/models"
	"github.com/irfndi/celebrum-sim/internal/random"
	"github.com/irfndi/celebrum-sim/internal/telemetry"
)

// DefaultTargetSite is the model site appended as the log return.
const DefaultTargetSite = models.LogRetColumn

// maxEffect bounds rounded effects to integers exactly representable as float64.
const maxEffect = 1 << 53

// Config holds the immutable settings of a Simulator
type Config struct {
	TargetSite        string   `mapstructure:"target_site"`
	InheritVals       []string `mapstructure:"inherit_vals"`
	ExoFixedEffects   []string `mapstructure:"exo_fixed_effects"`
	AdditionalEffects []string `mapstructure:"additional_effects"`
	Workers           int      `mapstructure:"workers"`
}

// DefaultConfig returns the default simulator configuration
func DefaultConfig() Config {
	return Config{
		TargetSite:        DefaultTargetSite,
		InheritVals:       []string{},
		ExoFixedEffects:   []string{},
		AdditionalEffects: []string{},
		Workers:           1,
	}
}

// Simulator produces synthetic future trajectories from a trained model
type Simulator struct {
	config   Config
	model    model.Model
	features features.FeatureEngineer
	logger   *logrus.Logger
	metrics  *metrics.Metrics
	progress ProgressObserver
	tracer   *telemetry.SimulationTracer
	batchID  string
}

// Option customizes a Simulator
type Option func(*Simulator)

// WithMetrics records path, step and failure counters on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Simulator) { s.metrics = m }
}

// WithProgress notifies p after every completed trajectory of SimulatePaths.
func WithProgress(p ProgressObserver) Option {
	return func(s *Simulator) { s.progress = p }
}

// WithBatchID labels SimulatePaths logs and spans with id instead of a
// fresh UUID per call.
func WithBatchID(id string) Option {
	return func(s *Simulator) { s.batchID = id }
}

// New validates cfg and returns a Simulator. A nil logger discards output.
func New(cfg Config, m model.Model, fe features.FeatureEngineer, logger *logrus.Logger, opts ...Option) (*Simulator, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: model is required", ErrInvalidConfig)
	}
	if fe == nil {
		return nil, fmt.Errorf("%w: feature engineer is required", ErrInvalidConfig)
	}

	cfg = normalize(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}

	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	s := &Simulator{
		config:   cfg,
		model:    m,
		features: fe,
		logger:   logger,
		tracer:   telemetry.NewSimulationTracer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns a copy of the simulator configuration.
func (s *Simulator) Config() Config {
	return normalize(s.config)
}

// normalize applies defaults and gives the instance its own slices.
func normalize(cfg Config) Config {
	if cfg.TargetSite == "" {
		cfg.TargetSite = DefaultTargetSite
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	cfg.InheritVals = append([]string{}, cfg.InheritVals...)
	cfg.ExoFixedEffects = append([]string{}, cfg.ExoFixedEffects...)
	cfg.AdditionalEffects = append([]string{}, cfg.AdditionalEffects...)
	return cfg
}

func validate(cfg Config) error {
	for name, list := range map[string][]string{
		"inherit_vals":       cfg.InheritVals,
		"exo_fixed_effects":  cfg.ExoFixedEffects,
		"additional_effects": cfg.AdditionalEffects,
	} {
		seen := make(map[string]bool, len(list))
		for _, v := range list {
			if v == "" {
				return fmt.Errorf("%w: empty name in %s", ErrInvalidConfig, name)
			}
			if seen[v] {
				return fmt.Errorf("%w: duplicate %q in %s", ErrInvalidConfig, v, name)
			}
			seen[v] = true
		}
	}

	inherited := make(map[string]bool, len(cfg.InheritVals))
	for _, v := range cfg.InheritVals {
		if v == models.LogRetColumn {
			return fmt.Errorf("%w: %q cannot be inherited", ErrEffectOverlap, v)
		}
		inherited[v] = true
	}
	for _, e := range cfg.AdditionalEffects {
		switch {
		case e == cfg.TargetSite, e == models.LogRetColumn:
			return fmt.Errorf("%w: %q is the target", ErrEffectOverlap, e)
		case inherited[e]:
			return fmt.Errorf("%w: %q is also inherited", ErrEffectOverlap, e)
		}
	}
	return nil
}

// SimulatePath extends start by steps simulated rows. All randomness is
// derived from key, so the same key reproduces the same trajectory. The
// caller's table is never modified. On error no partial table is returned.
func (s *Simulator) SimulatePath(ctx context.Context, steps int, start *models.Table, posterior model.PosteriorSamples, key random.Key) (*models.Table, error) {
	if err := checkCall(steps, start); err != nil {
		s.recordFailure(err)
		return nil, err
	}
	pred, err := model.NewPredictive(s.model, posterior)
	if err != nil {
		s.recordFailure(err)
		return nil, err
	}
	return s.simulatePath(ctx, 0, steps, start, pred, key)
}

// SimulatePaths runs numSims independent trajectories from the same start
// and concatenates them, stamping run i with id i. Run i uses key.Fold(i).
// Runs execute on up to Workers goroutines; any failing run fails the call.
func (s *Simulator) SimulatePaths(ctx context.Context, steps int, start *models.Table, posterior model.PosteriorSamples, numSims int, key random.Key) (*models.RunCollection, error) {
	if numSims < 1 {
		err := fmt.Errorf("%w: num_sims must be at least 1, got %d", ErrInvalidConfig, numSims)
		s.recordFailure(err)
		return nil, err
	}
	if err := checkCall(steps, start); err != nil {
		s.recordFailure(err)
		return nil, err
	}
	pred, err := model.NewPredictive(s.model, posterior)
	if err != nil {
		s.recordFailure(err)
		return nil, err
	}

	batchID := s.batchID
	if batchID == "" {
		batchID = uuid.New().String()
	}
	workers := min(s.config.Workers, numSims)
	ctx, span := s.tracer.TraceBatch(ctx, batchID, numSims, steps, workers)
	defer span.End()
	telemetry.SetSpanAttributes(span, telemetry.StringAttribute(telemetry.AttrKeySeed, fmt.Sprintf("%d", key.Seed())))

	logger := s.logger.WithFields(logrus.Fields{
		"batch_id": batchID,
		"num_sims": numSims,
		"steps":    steps,
		"workers":  workers,
	})
	logger.Info("Starting simulation batch")
	started := time.Now()

	results := make([]*models.Table, numSims)
	var mu sync.Mutex
	completed := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for runID := 0; runID < numSims; runID++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			path, err := s.simulatePath(gctx, runID, steps, start, pred, key.Fold(uint64(runID)))
			if err != nil {
				return err
			}
			results[runID] = path

			mu.Lock()
			defer mu.Unlock()
			completed++
			if s.progress != nil {
				s.progress.OnRunComplete(runID, completed, numSims)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		telemetry.RecordError(span, err)
		logger.WithError(err).Error("Simulation batch failed")
		return nil, err
	}

	runs, err := models.ConcatRuns(results)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to concatenate runs: %w", err)
	}

	if s.metrics != nil {
		s.metrics.BatchesTotal.Inc()
	}
	telemetry.SetSpanAttributes(span, telemetry.Int64Attribute(telemetry.AttrFinalRow, int64(runs.Len())))
	logger.WithFields(logrus.Fields{
		"rows":        runs.Len(),
		"duration_ms": time.Since(started).Milliseconds(),
	}).Info("Simulation batch completed")

	return runs, nil
}

func checkCall(steps int, start *models.Table) error {
	if steps < 0 {
		return fmt.Errorf("%w: steps must be non-negative, got %d", ErrInvalidConfig, steps)
	}
	if start == nil {
		return fmt.Errorf("%w: starting table is required", ErrInvalidConfig)
	}
	return nil
}

func (s *Simulator) simulatePath(ctx context.Context, runID, steps int, start *models.Table, pred *model.Predictive, key random.Key) (_ *models.Table, err error) {
	ctx, span := s.tracer.TracePath(ctx, runID, steps, start.Len(), s.config.TargetSite)
	defer span.End()
	started := time.Now()
	defer func() {
		if err != nil {
			telemetry.RecordError(span, err)
			s.recordFailure(err)
			return
		}
		if s.metrics != nil {
			s.metrics.PathsTotal.Inc()
			s.metrics.StepsTotal.Add(float64(steps))
			s.metrics.PathDuration.Observe(time.Since(started).Seconds())
		}
	}()

	_, simKey := key.Split()
	_, trajKey := simKey.Split()

	current, fixed, err := s.initialInput(start)
	if err != nil {
		return nil, &StepError{RunID: runID, Step: InitialStep, Err: err}
	}

	table := start
	for t := 0; t < steps; t++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var stepKey random.Key
		trajKey, stepKey = trajKey.Split()

		table, current, err = s.step(table, pred, stepKey, model.Input{PastValues: current, FixedEffects: fixed})
		if err != nil {
			return nil, &StepError{RunID: runID, Step: t, Err: err}
		}
	}

	if steps == 0 {
		return start.Clone(), nil
	}

	s.logger.WithFields(logrus.Fields{
		"run_id": runID,
		"rows":   table.Len(),
	}).Debug("Trajectory simulated")

	return table, nil
}

// initialInput derives the first model input and the exogenous effects
// held fixed for the whole trajectory.
func (s *Simulator) initialInput(start *models.Table) (map[string][]float64, map[string][]float64, error) {
	ft, err := s.features.CreateFeatures(start)
	if err != nil {
		return nil, nil, err
	}
	last, err := ft.Last()
	if err != nil {
		return nil, nil, err
	}

	fixed := make(map[string][]float64, len(s.config.ExoFixedEffects))
	for _, eff := range s.config.ExoFixedEffects {
		v, err := last.Get(eff)
		if err != nil {
			return nil, nil, fmt.Errorf("fixed effect: %w", err)
		}
		fixed[eff] = []float64{v}
	}
	return s.features.ToInput(last), fixed, nil
}

// step samples the model once, appends the sampled row and re-derives the
// model input from the grown table.
func (s *Simulator) step(table *models.Table, pred *model.Predictive, key random.Key, in model.Input) (*models.Table, map[string][]float64, error) {
	prediction, err := pred.Sample(key.Source(), in)
	if err != nil {
		return nil, nil, err
	}

	target, err := prediction.Scalar(s.config.TargetSite)
	if err != nil {
		return nil, nil, err
	}
	if math.IsNaN(target) || math.IsInf(target, 0) {
		return nil, nil, fmt.Errorf("%w: %s = %v", ErrNonFinite, s.config.TargetSite, target)
	}

	var add map[string]int
	if len(s.config.AdditionalEffects) > 0 {
		add = make(map[string]int, len(s.config.AdditionalEffects))
		for _, e := range s.config.AdditionalEffects {
			v, err := prediction.Scalar(e)
			if err != nil {
				return nil, nil, err
			}
			n, err := roundEffect(e, v)
			if err != nil {
				return nil, nil, err
			}
			add[e] = n
		}
	}

	next, err := table.AppendFromLogRet(target, s.config.InheritVals, add)
	if err != nil {
		return nil, nil, err
	}

	ft, err := s.features.CreateFeatures(next)
	if err != nil {
		return nil, nil, err
	}
	last, err := ft.Last()
	if err != nil {
		return nil, nil, err
	}
	return next, s.features.ToInput(last), nil
}

// roundEffect rounds a sampled effect to the nearest integer, half away from zero.
func roundEffect(site string, v float64) (int, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > maxEffect {
		return 0, fmt.Errorf("%w: effect %s = %v", ErrNonFinite, site, v)
	}
	return int(decimal.NewFromFloat(v).Round(0).IntPart()), nil
}

func (s *Simulator) recordFailure(err error) {
	if s.metrics == nil || errors.Is(err, context.Canceled) {
		return
	}
	s.metrics.FailuresTotal.WithLabelValues(classify(err)).Inc()
}

func classify(err error) string {
	switch {
	case errors.Is(err, ErrInvalidConfig),
		errors.Is(err, ErrEffectOverlap),
		errors.Is(err, model.ErrMissingParameter),
		errors.Is(err, model.ErrInvalidPosterior),
		errors.Is(err, model.ErrSiteNotFound):
		return metrics.FailureConfig
	case errors.Is(err, features.ErrInsufficientHistory),
		errors.Is(err, features.ErrUnknownFeature),
		errors.Is(err, models.ErrUnknownColumn):
		return metrics.FailureFeatures
	case errors.Is(err, model.ErrNotScalar),
		errors.Is(err, ErrNonFinite):
		return metrics.FailureNumeric
	default:
		return metrics.FailureModel
	}
}
