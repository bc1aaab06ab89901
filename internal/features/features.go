// Package features derives model-ready inputs from a historical table.
package features

import (
	"errors"
	"fmt"

	"github.com/irfndi/celebrum-sim/internal/models"
)

var (
	// ErrInsufficientHistory is returned when the table is too short to
	// produce a single complete feature row.
	ErrInsufficientHistory = errors.New("insufficient history for feature derivation")
	// ErrUnknownFeature is returned when a named feature is not part of a row.
	ErrUnknownFeature = errors.New("unknown feature")
)

// FeatureEngineer turns a historical table into features and converts the
// latest feature row into the model's input representation.
type FeatureEngineer interface {
	CreateFeatures(table *models.Table) (*FeatureTable, error)
	ToInput(row FeatureRow) map[string][]float64
}

// FeatureTable holds feature values aligned to the tail of a source table.
type FeatureTable struct {
	names []string
	index map[string]int
	rows  [][]float64
}

// NewFeatureTable builds a feature table. The last row corresponds to the
// last row of the source table.
func NewFeatureTable(names []string, rows [][]float64) (*FeatureTable, error) {
	index := make(map[string]int, len(names))
	for i, n := range names {
		if _, ok := index[n]; ok {
			return nil, fmt.Errorf("duplicate feature %q", n)
		}
		index[n] = i
	}
	for i, r := range rows {
		if len(r) != len(names) {
			return nil, fmt.Errorf("feature row %d has %d values, want %d", i, len(r), len(names))
		}
	}
	return &FeatureTable{names: names, index: index, rows: rows}, nil
}

// Len returns the number of feature rows.
func (ft *FeatureTable) Len() int {
	return len(ft.rows)
}

// Names returns the feature names in order.
func (ft *FeatureTable) Names() []string {
	return append([]string(nil), ft.names...)
}

// Last returns the most recent feature row.
func (ft *FeatureTable) Last() (FeatureRow, error) {
	if len(ft.rows) == 0 {
		return FeatureRow{}, ErrInsufficientHistory
	}
	return FeatureRow{
		names:  ft.names,
		index:  ft.index,
		values: append([]float64(nil), ft.rows[len(ft.rows)-1]...),
	}, nil
}

// FeatureRow is a read-only snapshot of one feature row.
type FeatureRow struct {
	names  []string
	index  map[string]int
	values []float64
}

// Names returns the feature names in order.
func (r FeatureRow) Names() []string {
	return append([]string(nil), r.names...)
}

// Get returns a single feature value.
func (r FeatureRow) Get(name string) (float64, error) {
	idx, ok := r.index[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownFeature, name)
	}
	return r.values[idx], nil
}
