// Package model defines the predictive contract consumed by the simulator
// and a Bayesian linear autoregressive backend implementing it.
package model

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"
)

var (
	// ErrMissingParameter is returned when posterior samples lack a parameter the model needs.
	ErrMissingParameter = errors.New("missing posterior parameter")
	// ErrSiteNotFound is returned when a prediction has no value for a requested site.
	ErrSiteNotFound = errors.New("site not found in prediction")
	// ErrNotScalar is returned when a site does not reduce to exactly one value.
	ErrNotScalar = errors.New("site is not a scalar")
	// ErrMissingInput is returned when a required input feature is absent.
	ErrMissingInput = errors.New("missing model input")
	// ErrInvalidPosterior is returned for empty or ragged posterior samples.
	ErrInvalidPosterior = errors.New("invalid posterior samples")
)

// Input is the per-step conditioning of a model: past-value features and
// exogenous effects held fixed for the run.
type Input struct {
	PastValues   map[string][]float64
	FixedEffects map[string][]float64
}

// Prediction maps a site name to its sampled values.
type Prediction map[string][]float64

// Scalar returns the single value sampled at site.
func (p Prediction) Scalar(site string) (float64, error) {
	values, ok := p[site]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrSiteNotFound, site)
	}
	if len(values) != 1 {
		return 0, fmt.Errorf("%w: %q has %d values", ErrNotScalar, site, len(values))
	}
	return values[0], nil
}

// Params is a single posterior draw.
type Params map[string]float64

// Get returns a parameter or ErrMissingParameter.
func (p Params) Get(name string) (float64, error) {
	v, ok := p[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrMissingParameter, name)
	}
	return v, nil
}

// GetOr returns a parameter, or def when it is absent.
func (p Params) GetOr(name string, def float64) float64 {
	if v, ok := p[name]; ok {
		return v
	}
	return def
}

// Model samples one prediction per site given a single parameter draw.
// Implementations must draw all randomness from src.
type Model interface {
	Predict(src rand.Source, in Input, params Params) (Prediction, error)
}

// PosteriorSamples maps a parameter name to its posterior draws. All
// parameters must carry the same number of draws.
type PosteriorSamples map[string][]float64

// NumDraws validates the samples and returns the shared draw count.
func (ps PosteriorSamples) NumDraws() (int, error) {
	if len(ps) == 0 {
		return 0, fmt.Errorf("%w: no parameters", ErrInvalidPosterior)
	}
	n := -1
	for _, name := range ps.Names() {
		draws := ps[name]
		if len(draws) == 0 {
			return 0, fmt.Errorf("%w: %q has no draws", ErrInvalidPosterior, name)
		}
		if n >= 0 && len(draws) != n {
			return 0, fmt.Errorf("%w: %q has %d draws, want %d", ErrInvalidPosterior, name, len(draws), n)
		}
		n = len(draws)
		for _, v := range draws {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return 0, fmt.Errorf("%w: %q has a non-finite draw", ErrInvalidPosterior, name)
			}
		}
	}
	return n, nil
}

// Require checks that every named parameter is present.
func (ps PosteriorSamples) Require(names ...string) error {
	for _, name := range names {
		if _, ok := ps[name]; !ok {
			return fmt.Errorf("%w: %q", ErrMissingParameter, name)
		}
	}
	return nil
}

// Draw returns the i-th draw of every parameter.
func (ps PosteriorSamples) Draw(i int) Params {
	out := make(Params, len(ps))
	for name, draws := range ps {
		out[name] = draws[i]
	}
	return out
}

// Names returns the parameter names in sorted order.
func (ps PosteriorSamples) Names() []string {
	names := make([]string, 0, len(ps))
	for name := range ps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Mean returns the posterior mean of every parameter.
func (ps PosteriorSamples) Mean() Params {
	out := make(Params, len(ps))
	for name, draws := range ps {
		if len(draws) > 0 {
			out[name] = stat.Mean(draws, nil)
		}
	}
	return out
}
