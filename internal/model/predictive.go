package model

import (
	"fmt"

	"golang.org/x/exp/rand"
)

// Predictive conditions a Model on posterior samples and draws a single
// posterior predictive sample per call.
type Predictive struct {
	model     Model
	posterior PosteriorSamples
	numDraws  int
}

// NewPredictive validates the posterior once so every later call can
// assume consistent draws.
func NewPredictive(m Model, posterior PosteriorSamples) (*Predictive, error) {
	if m == nil {
		return nil, fmt.Errorf("predictive requires a model")
	}
	n, err := posterior.NumDraws()
	if err != nil {
		return nil, err
	}
	return &Predictive{model: m, posterior: posterior, numDraws: n}, nil
}

// NumDraws returns the number of posterior draws available.
func (p *Predictive) NumDraws() int {
	return p.numDraws
}

// Sample picks one posterior draw uniformly from src and samples the model
// under that draw, consuming the same source.
func (p *Predictive) Sample(src rand.Source, in Input) (Prediction, error) {
	idx := 0
	if p.numDraws > 1 {
		idx = rand.New(src).Intn(p.numDraws)
	}
	pred, err := p.model.Predict(src, in, p.posterior.Draw(idx))
	if err != nil {
		return nil, fmt.Errorf("posterior draw %d: %w", idx, err)
	}
	return pred, nil
}
