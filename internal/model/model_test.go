package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

type MockModel struct {
	mock.Mock
}

func (m *MockModel) Predict(src rand.Source, in Input, params Params) (Prediction, error) {
	args := m.Called(src, in, params)
	if p := args.Get(0); p != nil {
		return p.(Prediction), args.Error(1)
	}
	return nil, args.Error(1)
}

func generateTestPosterior(draws int) PosteriorSamples {
	ps := PosteriorSamples{
		ParamIntercept:            make([]float64, draws),
		ParamSigma:                make([]float64, draws),
		BetaName("log_ret_lag_1"): make([]float64, draws),
	}
	for i := 0; i < draws; i++ {
		ps[ParamIntercept][i] = 0.001 * float64(i)
		ps[ParamSigma][i] = 0.01
		ps[BetaName("log_ret_lag_1")][i] = 0.1
	}
	return ps
}

func TestPrediction_Scalar(t *testing.T) {
	p := Prediction{"log_ret": {0.5}, "batch": {1, 2}}

	v, err := p.Scalar("log_ret")
	require.NoError(t, err)
	assert.Equal(t, 0.5, v)

	_, err = p.Scalar("missing")
	assert.ErrorIs(t, err, ErrSiteNotFound)

	_, err = p.Scalar("batch")
	assert.ErrorIs(t, err, ErrNotScalar)
}

func TestPosteriorSamples_NumDraws(t *testing.T) {
	n, err := generateTestPosterior(4).NumDraws()
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	_, err = PosteriorSamples{}.NumDraws()
	assert.ErrorIs(t, err, ErrInvalidPosterior)

	_, err = PosteriorSamples{"a": {1, 2}, "b": {1}}.NumDraws()
	assert.ErrorIs(t, err, ErrInvalidPosterior)

	_, err = PosteriorSamples{"a": {}}.NumDraws()
	assert.ErrorIs(t, err, ErrInvalidPosterior)

	_, err = PosteriorSamples{"a": {math.NaN()}}.NumDraws()
	assert.ErrorIs(t, err, ErrInvalidPosterior)
}

func TestPosteriorSamples_DrawRequireMean(t *testing.T) {
	ps := generateTestPosterior(3)

	draw := ps.Draw(2)
	assert.InDelta(t, 0.002, draw[ParamIntercept], 1e-12)

	assert.NoError(t, ps.Require(ParamIntercept, ParamSigma))
	assert.ErrorIs(t, ps.Require("nu"), ErrMissingParameter)

	mean := ps.Mean()
	assert.InDelta(t, 0.001, mean[ParamIntercept], 1e-12)
	assert.Equal(t, []string{"beta_log_ret_lag_1", "intercept", "sigma"}, ps.Names())
}

func TestPredictive_UsesSingleDraw(t *testing.T) {
	m := new(MockModel)
	ps := PosteriorSamples{"a": {1}}
	in := Input{PastValues: map[string][]float64{"x": {1}}}
	m.On("Predict", mock.Anything, in, Params{"a": 1}).Return(Prediction{"log_ret": {0.2}}, nil).Once()

	pred, err := newTestPredictive(t, m, ps).Sample(rand.NewSource(1), in)
	require.NoError(t, err)
	assert.Equal(t, Prediction{"log_ret": {0.2}}, pred)
	m.AssertExpectations(t)
}

func TestPredictive_DrawIsReproducible(t *testing.T) {
	m := new(MockModel)
	var seen []float64
	m.On("Predict", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			seen = append(seen, args.Get(2).(Params)["a"])
		}).
		Return(Prediction{}, nil)

	p := newTestPredictive(t, m, PosteriorSamples{"a": {0, 1, 2, 3, 4, 5, 6, 7}})
	for i := 0; i < 2; i++ {
		_, err := p.Sample(rand.NewSource(123), Input{})
		require.NoError(t, err)
	}
	require.Len(t, seen, 2)
	assert.Equal(t, seen[0], seen[1])
}

func TestPredictive_Errors(t *testing.T) {
	_, err := NewPredictive(nil, generateTestPosterior(1))
	assert.Error(t, err)

	_, err = NewPredictive(new(MockModel), PosteriorSamples{})
	assert.ErrorIs(t, err, ErrInvalidPosterior)

	m := new(MockModel)
	m.On("Predict", mock.Anything, mock.Anything, mock.Anything).Return(nil, ErrMissingParameter)
	_, err = newTestPredictive(t, m, generateTestPosterior(2)).Sample(rand.NewSource(1), Input{})
	assert.ErrorIs(t, err, ErrMissingParameter)
}

func newTestPredictive(t *testing.T, m Model, ps PosteriorSamples) *Predictive {
	t.Helper()
	p, err := NewPredictive(m, ps)
	require.NoError(t, err)
	return p
}
