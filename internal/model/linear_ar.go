package model

import (
	"fmt"
	"math"
	"sort"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// Parameter names used by LinearAR.
const (
	ParamIntercept = "intercept"
	ParamSigma     = "sigma"
	ParamNu        = "nu"
)

// BetaName is the coefficient of a past-value regressor.
func BetaName(regressor string) string { return "beta_" + regressor }

// GammaName is the coefficient of a fixed exogenous effect.
func GammaName(effect string) string { return "gamma_" + effect }

// LogRateName is the baseline log rate of a count site.
func LogRateName(site string) string { return site + "_log_rate" }

// RateBetaName couples a count site's log rate to the sampled target.
func RateBetaName(site string) string { return site + "_beta" }

// LinearAR is a Bayesian linear autoregression:
//
//	target ~ Normal(intercept + Σ beta_r·x_r + Σ gamma_e·exo_e, sigma)
//
// or a Student-t with the same location and scale when the draw carries nu.
// Each count site is sampled as Poisson(exp(log_rate + beta·target)).
type LinearAR struct {
	target     string
	regressors []string
	countSites []string
}

// NewLinearAR returns a model producing target from the given regressors.
func NewLinearAR(target string, regressors, countSites []string) (*LinearAR, error) {
	if target == "" {
		return nil, fmt.Errorf("linear AR model requires a target site")
	}
	for _, s := range countSites {
		if s == target {
			return nil, fmt.Errorf("count site %q collides with target site", s)
		}
	}
	return &LinearAR{
		target:     target,
		regressors: append([]string(nil), regressors...),
		countSites: append([]string(nil), countSites...),
	}, nil
}

// Target returns the name of the primary site.
func (m *LinearAR) Target() string {
	return m.target
}

// RequiredParams lists the posterior parameters the model needs when run
// with the given fixed effects.
func (m *LinearAR) RequiredParams(fixedEffects []string) []string {
	names := []string{ParamIntercept, ParamSigma}
	for _, r := range m.regressors {
		names = append(names, BetaName(r))
	}
	for _, e := range fixedEffects {
		names = append(names, GammaName(e))
	}
	for _, s := range m.countSites {
		names = append(names, LogRateName(s))
	}
	return names
}

// Predict samples the target and every count site once.
func (m *LinearAR) Predict(src rand.Source, in Input, params Params) (Prediction, error) {
	mean, err := params.Get(ParamIntercept)
	if err != nil {
		return nil, err
	}

	for _, r := range m.regressors {
		x, err := scalarInput(in.PastValues, r)
		if err != nil {
			return nil, err
		}
		beta, err := params.Get(BetaName(r))
		if err != nil {
			return nil, err
		}
		mean += beta * x
	}

	effects := make([]string, 0, len(in.FixedEffects))
	for name := range in.FixedEffects {
		effects = append(effects, name)
	}
	sort.Strings(effects)
	for _, e := range effects {
		x, err := scalarInput(in.FixedEffects, e)
		if err != nil {
			return nil, err
		}
		gamma, err := params.Get(GammaName(e))
		if err != nil {
			return nil, err
		}
		mean += gamma * x
	}

	sigma, err := params.Get(ParamSigma)
	if err != nil {
		return nil, err
	}
	if !(sigma > 0) {
		return nil, fmt.Errorf("sigma must be positive, got %v", sigma)
	}

	var y float64
	if nu, ok := params[ParamNu]; ok {
		if !(nu > 0) {
			return nil, fmt.Errorf("nu must be positive, got %v", nu)
		}
		y = distuv.StudentsT{Mu: mean, Sigma: sigma, Nu: nu, Src: src}.Rand()
	} else {
		y = distuv.Normal{Mu: mean, Sigma: sigma, Src: src}.Rand()
	}

	pred := Prediction{m.target: {y}}
	for _, s := range m.countSites {
		logRate, err := params.Get(LogRateName(s))
		if err != nil {
			return nil, err
		}
		lambda := math.Exp(logRate + params.GetOr(RateBetaName(s), 0)*y)
		if math.IsInf(lambda, 0) || math.IsNaN(lambda) {
			return nil, fmt.Errorf("count site %q has non-finite rate", s)
		}
		if lambda == 0 {
			pred[s] = []float64{0}
			continue
		}
		pred[s] = []float64{distuv.Poisson{Lambda: lambda, Src: src}.Rand()}
	}

	return pred, nil
}

func scalarInput(values map[string][]float64, name string) (float64, error) {
	v, ok := values[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrMissingInput, name)
	}
	if len(v) != 1 {
		return 0, fmt.Errorf("%w: input %q has %d values", ErrNotScalar, name, len(v))
	}
	return v[0], nil
}
