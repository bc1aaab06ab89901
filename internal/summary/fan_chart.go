// Package summary reduces a collection of simulated runs to per-step
// distribution statistics.
package summary

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/irfndi/celebrum-sim/internal/models"
)

var (
	ErrRaggedRuns   = errors.New("runs have different lengths")
	ErrNoSimulation = errors.New("runs contain no simulated steps")
)

// Config selects the summarized column and the reported quantiles.
type Config struct {
	Column    string    `mapstructure:"column"`
	Quantiles []float64 `mapstructure:"quantiles"`
}

// DefaultConfig returns default summary configuration
func DefaultConfig() Config {
	return Config{
		Column:    models.LogRetColumn,
		Quantiles: []float64{0.05, 0.25, 0.5, 0.75, 0.95},
	}
}

// StepStats describes the cross-run distribution at one simulated step.
type StepStats struct {
	Step      int
	Mean      float64
	StdDev    float64
	Quantiles []float64
}

// Terminal describes the distribution of the cumulative value at the last step.
type Terminal struct {
	Runs      int
	Mean      float64
	StdDev    float64
	Min       float64
	Max       float64
	Quantiles []float64
	// ProbLoss is the share of runs ending with a negative cumulative value
	ProbLoss float64
}

// FanChart holds step-wise statistics of the column and of its running sum.
type FanChart struct {
	Column     string
	Quantiles  []float64
	Step       []StepStats
	Cumulative []StepStats
	Terminal   Terminal
}

// BuildFanChart summarizes the rows after the first historyLen rows of each
// run. Every run must have the same length.
func BuildFanChart(runs *models.RunCollection, historyLen int, cfg Config) (*FanChart, error) {
	if runs == nil || runs.NumRuns() == 0 {
		return nil, models.ErrNoRuns
	}
	if cfg.Column == "" {
		cfg.Column = models.LogRetColumn
	}
	for _, q := range cfg.Quantiles {
		if q < 0 || q > 1 {
			return nil, fmt.Errorf("quantile %v outside [0, 1]", q)
		}
	}
	quantiles := append([]float64(nil), cfg.Quantiles...)
	sort.Float64s(quantiles)

	// paths[r][k] is the column value of run r at simulated step k
	var paths [][]float64
	for _, id := range runs.RunIDs() {
		run, err := runs.Run(id)
		if err != nil {
			return nil, err
		}
		col, err := run.Column(cfg.Column)
		if err != nil {
			return nil, err
		}
		if historyLen < 0 || historyLen > len(col) {
			return nil, fmt.Errorf("history length %d outside run %d of %d rows", historyLen, id, len(col))
		}
		sim := col[historyLen:]
		if len(paths) > 0 && len(sim) != len(paths[0]) {
			return nil, fmt.Errorf("%w: run %d has %d steps, want %d", ErrRaggedRuns, id, len(sim), len(paths[0]))
		}
		paths = append(paths, sim)
	}

	steps := len(paths[0])
	if steps == 0 {
		return nil, ErrNoSimulation
	}

	fc := &FanChart{
		Column:     cfg.Column,
		Quantiles:  quantiles,
		Step:       make([]StepStats, steps),
		Cumulative: make([]StepStats, steps),
	}

	cumulative := make([]float64, len(paths))
	cross := make([]float64, len(paths))
	for k := 0; k < steps; k++ {
		for r, p := range paths {
			cross[r] = p[k]
			cumulative[r] += p[k]
		}
		fc.Step[k] = describe(k+1, cross, quantiles)
		fc.Cumulative[k] = describe(k+1, cumulative, quantiles)
	}

	last := fc.Cumulative[steps-1]
	sorted := append([]float64(nil), cumulative...)
	sort.Float64s(sorted)
	losses := 0
	for _, v := range sorted {
		if v < 0 {
			losses++
		}
	}
	fc.Terminal = Terminal{
		Runs:      len(sorted),
		Mean:      last.Mean,
		StdDev:    last.StdDev,
		Min:       sorted[0],
		Max:       sorted[len(sorted)-1],
		Quantiles: last.Quantiles,
		ProbLoss:  float64(losses) / float64(len(sorted)),
	}
	return fc, nil
}

func describe(step int, values, quantiles []float64) StepStats {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	s := StepStats{
		Step:      step,
		Mean:      stat.Mean(sorted, nil),
		Quantiles: make([]float64, len(quantiles)),
	}
	if len(sorted) > 1 {
		s.StdDev = stat.StdDev(sorted, nil)
	}
	for i, q := range quantiles {
		s.Quantiles[i] = stat.Quantile(q, stat.Empirical, sorted, nil)
	}
	return s
}

// Render writes the cumulative fan chart and the terminal summary as an
// aligned text table.
func (fc *FanChart) Render(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)

	fmt.Fprintf(tw, "step\tmean\tstd\t")
	for _, q := range fc.Quantiles {
		fmt.Fprintf(tw, "p%s\t", decimal.NewFromFloat(q).Shift(2).String())
	}
	fmt.Fprintln(tw)

	for _, s := range fc.Cumulative {
		fmt.Fprintf(tw, "%d\t%s\t%s\t", s.Step, formatStat(s.Mean), formatStat(s.StdDev))
		for _, v := range s.Quantiles {
			fmt.Fprintf(tw, "%s\t", formatStat(v))
		}
		fmt.Fprintln(tw)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	t := fc.Terminal
	_, err := fmt.Fprintf(w, "\nterminal %s over %d runs: mean %s, std %s, min %s, max %s, P(loss) %s\n",
		fc.Column, t.Runs, formatStat(t.Mean), formatStat(t.StdDev),
		formatStat(t.Min), formatStat(t.Max), decimal.NewFromFloat(t.ProbLoss).StringFixed(2))
	return err
}

func formatStat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	return decimal.NewFromFloat(v).StringFixed(6)
}
