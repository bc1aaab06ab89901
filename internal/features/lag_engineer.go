package features

import (
	"fmt"
	"math"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"
	"gonum.org/v1/gonum/stat"

	"github.com/irfndi/celebrum-sim/internal/models"
)

// LagConfig holds configuration for the lag feature engineer
type LagConfig struct {
	TargetColumn string `mapstructure:"target_column"`

	// Autoregressive lags of the target
	Lags int `mapstructure:"lags"`

	// Moving averages of the target
	SMAPeriods []int `mapstructure:"sma_periods"`
	EMAPeriods []int `mapstructure:"ema_periods"`

	// Rolling standard deviation of the target; 0 disables
	VolatilityWindow int `mapstructure:"volatility_window"`

	// RSI over the cumulative target; 0 disables
	RSIPeriod int `mapstructure:"rsi_period"`

	// Columns copied through unchanged, e.g. exogenous effects
	Passthrough []string `mapstructure:"passthrough"`
}

// DefaultLagConfig returns default configuration for lag features
func DefaultLagConfig() LagConfig {
	return LagConfig{
		TargetColumn:     models.LogRetColumn,
		Lags:             3,
		SMAPeriods:       []int{5},
		EMAPeriods:       []int{10},
		VolatilityWindow: 10,
	}
}

// LagEngineer derives autoregressive and indicator features from the
// target column of a historical table.
type LagEngineer struct {
	config LagConfig
	names  []string
}

type featureSeries struct {
	name   string
	values []float64
	warmup int
}

// NewLagEngineer validates cfg and returns a feature engineer.
func NewLagEngineer(cfg LagConfig) (*LagEngineer, error) {
	if cfg.TargetColumn == "" {
		cfg.TargetColumn = models.LogRetColumn
	}
	if cfg.Lags < 0 || cfg.VolatilityWindow < 0 || cfg.RSIPeriod < 0 {
		return nil, fmt.Errorf("lag feature periods must be non-negative")
	}
	for _, p := range append(append([]int(nil), cfg.SMAPeriods...), cfg.EMAPeriods...) {
		if p <= 0 {
			return nil, fmt.Errorf("moving average period must be positive, got %d", p)
		}
	}

	e := &LagEngineer{config: cfg}
	e.names = e.featureNames()
	if len(e.names) == 0 {
		return nil, fmt.Errorf("lag feature engineer configured without any feature")
	}
	seen := make(map[string]bool, len(e.names))
	for _, n := range e.names {
		if seen[n] {
			return nil, fmt.Errorf("duplicate feature %q", n)
		}
		seen[n] = true
	}
	return e, nil
}

// FeatureNames returns the names of the produced features, in order.
func (e *LagEngineer) FeatureNames() []string {
	return append([]string(nil), e.names...)
}

func (e *LagEngineer) featureNames() []string {
	cfg := e.config
	var names []string
	for k := 1; k <= cfg.Lags; k++ {
		names = append(names, LagName(cfg.TargetColumn, k))
	}
	for _, p := range cfg.SMAPeriods {
		names = append(names, fmt.Sprintf("%s_sma_%d", cfg.TargetColumn, p))
	}
	for _, p := range cfg.EMAPeriods {
		names = append(names, fmt.Sprintf("%s_ema_%d", cfg.TargetColumn, p))
	}
	if cfg.VolatilityWindow > 0 {
		names = append(names, fmt.Sprintf("%s_vol_%d", cfg.TargetColumn, cfg.VolatilityWindow))
	}
	if cfg.RSIPeriod > 0 {
		names = append(names, fmt.Sprintf("rsi_%d", cfg.RSIPeriod))
	}
	names = append(names, cfg.Passthrough...)
	return names
}

// LagName is the feature name of the k-th lag of column; lag 1 is the
// most recent observation.
func LagName(column string, k int) string {
	return fmt.Sprintf("%s_lag_%d", column, k)
}

// CreateFeatures computes every configured feature for each row of table
// that has enough trailing history. Leading rows whose target is missing
// are skipped before the indicators are computed.
func (e *LagEngineer) CreateFeatures(table *models.Table) (*FeatureTable, error) {
	target, err := table.Column(e.config.TargetColumn)
	if err != nil {
		return nil, fmt.Errorf("failed to read target column: %w", err)
	}

	n := len(target)
	start := 0
	for i, v := range target {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			start = i + 1
		}
	}
	if start >= n {
		return nil, fmt.Errorf("%w: no finite %s values", ErrInsufficientHistory, e.config.TargetColumn)
	}
	series := target[start:]

	var computed []featureSeries
	computed = append(computed, e.lagFeatures(series)...)
	computed = append(computed, e.movingAverages(series)...)
	if e.config.VolatilityWindow > 0 {
		computed = append(computed, e.rollingVolatility(series, e.config.VolatilityWindow))
	}
	if e.config.RSIPeriod > 0 {
		computed = append(computed, e.rsi(series, e.config.RSIPeriod))
	}

	warmup := 0
	for _, s := range computed {
		if s.warmup > warmup {
			warmup = s.warmup
		}
	}
	if warmup >= len(series) {
		return nil, fmt.Errorf("%w: need more than %d rows of %s, got %d",
			ErrInsufficientHistory, warmup, e.config.TargetColumn, len(series))
	}

	for _, name := range e.config.Passthrough {
		col, err := table.Column(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read passthrough column: %w", err)
		}
		computed = append(computed, featureSeries{name: name, values: col[start:]})
	}

	rows := make([][]float64, 0, len(series)-warmup)
	for i := warmup; i < len(series); i++ {
		row := make([]float64, len(computed))
		for j, s := range computed {
			row[j] = s.values[i]
		}
		rows = append(rows, row)
	}

	return NewFeatureTable(e.names, rows)
}

// ToInput wraps each feature of the row in a one-element array.
func (e *LagEngineer) ToInput(row FeatureRow) map[string][]float64 {
	out := make(map[string][]float64, len(row.names))
	for i, n := range row.names {
		out[n] = []float64{row.values[i]}
	}
	return out
}

func (e *LagEngineer) lagFeatures(series []float64) []featureSeries {
	out := make([]featureSeries, 0, e.config.Lags)
	for k := 1; k <= e.config.Lags; k++ {
		values := nanSlice(len(series))
		for i := k - 1; i < len(series); i++ {
			values[i] = series[i-k+1]
		}
		out = append(out, featureSeries{
			name:   LagName(e.config.TargetColumn, k),
			values: values,
			warmup: k - 1,
		})
	}
	return out
}

func (e *LagEngineer) movingAverages(series []float64) []featureSeries {
	var out []featureSeries
	for _, period := range e.config.SMAPeriods {
		name := fmt.Sprintf("%s_sma_%d", e.config.TargetColumn, period)
		if len(series) < period {
			out = append(out, insufficient(name, len(series)))
			continue
		}
		sma := trend.NewSmaWithPeriod[float64](period)
		result := helper.ChanToSlice(sma.Compute(helper.SliceToChan(series)))
		out = append(out, rightAlign(name, result, len(series)))
	}
	for _, period := range e.config.EMAPeriods {
		name := fmt.Sprintf("%s_ema_%d", e.config.TargetColumn, period)
		if len(series) < period {
			out = append(out, insufficient(name, len(series)))
			continue
		}
		ema := trend.NewEmaWithPeriod[float64](period)
		result := helper.ChanToSlice(ema.Compute(helper.SliceToChan(series)))
		out = append(out, rightAlign(name, result, len(series)))
	}
	return out
}

func (e *LagEngineer) rollingVolatility(series []float64, window int) featureSeries {
	name := fmt.Sprintf("%s_vol_%d", e.config.TargetColumn, window)
	if len(series) < window {
		return insufficient(name, len(series))
	}
	values := nanSlice(len(series))
	for i := window - 1; i < len(series); i++ {
		_, values[i] = stat.PopMeanStdDev(series[i-window+1:i+1], nil)
	}
	return featureSeries{name: name, values: values, warmup: window - 1}
}

func (e *LagEngineer) rsi(series []float64, period int) featureSeries {
	name := fmt.Sprintf("rsi_%d", period)
	if len(series) < period+1 {
		return insufficient(name, len(series))
	}
	// RSI is computed on the cumulative return path, whose differences are
	// the returns themselves.
	path := make([]float64, len(series))
	acc := 0.0
	for i, r := range series {
		acc += r
		path[i] = acc
	}
	rsi := momentum.NewRsiWithPeriod[float64](period)
	result := helper.ChanToSlice(rsi.Compute(helper.SliceToChan(path)))
	return rightAlign(name, result, len(series))
}

// rightAlign maps indicator output onto the tail of a series of length n.
func rightAlign(name string, result []float64, n int) featureSeries {
	if len(result) > n {
		result = result[len(result)-n:]
	}
	values := nanSlice(n)
	copy(values[n-len(result):], result)
	return featureSeries{name: name, values: values, warmup: n - len(result)}
}

func insufficient(name string, n int) featureSeries {
	return featureSeries{name: name, values: nanSlice(n), warmup: n}
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
