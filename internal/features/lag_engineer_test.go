package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/celebrum-sim/internal/models"
)

func generateTestHistory(t *testing.T, returns []float64) *models.Table {
	t.Helper()
	rows := make([][]float64, len(returns))
	for i, r := range returns {
		rows[i] = []float64{r, 20 + float64(i)}
	}
	table, err := models.NewTable([]string{models.LogRetColumn, "vix"}, rows)
	require.NoError(t, err)
	return table
}

func TestLagEngineer_LagsAndVolatility(t *testing.T) {
	fe, err := NewLagEngineer(LagConfig{Lags: 2, VolatilityWindow: 3, Passthrough: []string{"vix"}})
	require.NoError(t, err)

	table := generateTestHistory(t, []float64{0.01, -0.02, 0.03, 0.00, 0.01})
	ft, err := fe.CreateFeatures(table)
	require.NoError(t, err)

	assert.Equal(t, 3, ft.Len())
	assert.Equal(t, []string{"log_ret_lag_1", "log_ret_lag_2", "log_ret_vol_3", "vix"}, ft.Names())

	last, err := ft.Last()
	require.NoError(t, err)

	lag1, _ := last.Get("log_ret_lag_1")
	lag2, _ := last.Get("log_ret_lag_2")
	vix, _ := last.Get("vix")
	assert.Equal(t, 0.01, lag1)
	assert.Equal(t, 0.00, lag2)
	assert.Equal(t, 24.0, vix)

	vol, _ := last.Get("log_ret_vol_3")
	// population std dev of the last three returns
	mean := 0.04 / 3
	want := math.Sqrt((math.Pow(0.03-mean, 2) + math.Pow(0.00-mean, 2) + math.Pow(0.01-mean, 2)) / 3)
	assert.InDelta(t, want, vol, 1e-12)
}

func TestLagEngineer_SkipsLeadingMissingTarget(t *testing.T) {
	fe, err := NewLagEngineer(LagConfig{Lags: 1})
	require.NoError(t, err)

	table := generateTestHistory(t, []float64{math.NaN(), 0.02, 0.04})
	ft, err := fe.CreateFeatures(table)
	require.NoError(t, err)

	assert.Equal(t, 2, ft.Len())
	last, err := ft.Last()
	require.NoError(t, err)
	lag1, err := last.Get("log_ret_lag_1")
	require.NoError(t, err)
	assert.Equal(t, 0.04, lag1)
}

func TestLagEngineer_SimpleMovingAverage(t *testing.T) {
	fe, err := NewLagEngineer(LagConfig{SMAPeriods: []int{3}})
	require.NoError(t, err)

	table := generateTestHistory(t, []float64{0.01, 0.02, 0.03, 0.04, 0.05, 0.06})
	ft, err := fe.CreateFeatures(table)
	require.NoError(t, err)

	last, err := ft.Last()
	require.NoError(t, err)
	sma, err := last.Get("log_ret_sma_3")
	require.NoError(t, err)
	assert.InDelta(t, 0.05, sma, 1e-12)
}

func TestLagEngineer_InsufficientHistory(t *testing.T) {
	fe, err := NewLagEngineer(LagConfig{Lags: 5})
	require.NoError(t, err)

	_, err = fe.CreateFeatures(generateTestHistory(t, []float64{0.01, 0.02}))
	assert.ErrorIs(t, err, ErrInsufficientHistory)

	fe, err = NewLagEngineer(LagConfig{SMAPeriods: []int{10}})
	require.NoError(t, err)
	_, err = fe.CreateFeatures(generateTestHistory(t, []float64{0.01, 0.02}))
	assert.ErrorIs(t, err, ErrInsufficientHistory)

	fe, err = NewLagEngineer(LagConfig{Lags: 1})
	require.NoError(t, err)
	_, err = fe.CreateFeatures(generateTestHistory(t, []float64{math.NaN()}))
	assert.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestLagEngineer_UnknownColumns(t *testing.T) {
	fe, err := NewLagEngineer(LagConfig{Lags: 1, Passthrough: []string{"missing"}})
	require.NoError(t, err)
	_, err = fe.CreateFeatures(generateTestHistory(t, []float64{0.01, 0.02}))
	assert.ErrorIs(t, err, models.ErrUnknownColumn)

	fe, err = NewLagEngineer(LagConfig{TargetColumn: "ret", Lags: 1})
	require.NoError(t, err)
	_, err = fe.CreateFeatures(generateTestHistory(t, []float64{0.01}))
	assert.ErrorIs(t, err, models.ErrUnknownColumn)
}

func TestLagEngineer_ConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  LagConfig
	}{
		{"no features", LagConfig{}},
		{"negative lags", LagConfig{Lags: -1}},
		{"zero sma", LagConfig{SMAPeriods: []int{0}}},
		{"duplicate passthrough", LagConfig{Lags: 1, Passthrough: []string{"log_ret_lag_1"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLagEngineer(tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestLagEngineer_ToInput(t *testing.T) {
	fe, err := NewLagEngineer(LagConfig{Lags: 1, Passthrough: []string{"vix"}})
	require.NoError(t, err)

	ft, err := fe.CreateFeatures(generateTestHistory(t, []float64{0.01, 0.02}))
	require.NoError(t, err)
	last, err := ft.Last()
	require.NoError(t, err)

	in := fe.ToInput(last)
	assert.Equal(t, map[string][]float64{
		"log_ret_lag_1": {0.02},
		"vix":           {21},
	}, in)
}

func TestLagEngineer_DefaultConfigProducesFeatures(t *testing.T) {
	fe, err := NewLagEngineer(DefaultLagConfig())
	require.NoError(t, err)

	returns := make([]float64, 40)
	for i := range returns {
		returns[i] = 0.01 * math.Sin(float64(i))
	}
	ft, err := fe.CreateFeatures(generateTestHistory(t, returns))
	require.NoError(t, err)
	assert.Greater(t, ft.Len(), 0)

	last, err := ft.Last()
	require.NoError(t, err)
	for _, name := range last.Names() {
		v, err := last.Get(name)
		require.NoError(t, err)
		assert.False(t, math.IsNaN(v), "feature %s is NaN", name)
	}
}

func TestLagEngineer_RSIOnCumulativePath(t *testing.T) {
	fe, err := NewLagEngineer(LagConfig{RSIPeriod: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"rsi_3"}, fe.FeatureNames())

	// only gains on the cumulative path
	ft, err := fe.CreateFeatures(generateTestHistory(t, []float64{0.01, 0.02, 0.01, 0.03, 0.02, 0.01}))
	require.NoError(t, err)
	last, err := ft.Last()
	require.NoError(t, err)
	rsi, err := last.Get("rsi_3")
	require.NoError(t, err)
	assert.InDelta(t, 100.0, rsi, 1e-9)
}
