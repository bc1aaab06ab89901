package models

import (
	"errors"
	"fmt"
	"time"
)

// RunIDColumn names the run identifier when a collection is exported.
const RunIDColumn = "run_id"

var (
	ErrNoRuns         = errors.New("no runs to concatenate")
	ErrSchemaMismatch = errors.New("trajectory columns differ")
	ErrUnknownRun     = errors.New("unknown run id")
)

// RunCollection is the concatenation of independent trajectories, each
// stamped with its run identifier. Rows of a run stay contiguous and in order.
type RunCollection struct {
	columns    []string
	rows       [][]float64
	runIDs     []int
	timestamps []time.Time
	bounds     map[int][2]int
	order      []int
}

// ConcatRuns stamps trajectories[i] with run id i and concatenates them.
// All trajectories must share the same columns in the same order.
func ConcatRuns(trajectories []*Table) (*RunCollection, error) {
	if len(trajectories) == 0 {
		return nil, ErrNoRuns
	}

	first := trajectories[0]
	withTS := first.HasTimestamps()
	rc := &RunCollection{
		columns: first.Columns(),
		bounds:  make(map[int][2]int, len(trajectories)),
	}

	for id, tr := range trajectories {
		if tr == nil {
			return nil, fmt.Errorf("run %d: nil trajectory", id)
		}
		if !sameColumns(rc.columns, tr.columns) {
			return nil, fmt.Errorf("%w: run %d has %v, want %v", ErrSchemaMismatch, id, tr.columns, rc.columns)
		}
		if tr.HasTimestamps() != withTS {
			return nil, fmt.Errorf("%w: run %d timestamp index mismatch", ErrSchemaMismatch, id)
		}

		start := len(rc.rows)
		for i, r := range tr.rows {
			rc.rows = append(rc.rows, r)
			rc.runIDs = append(rc.runIDs, id)
			if withTS {
				rc.timestamps = append(rc.timestamps, tr.timestamps[i])
			}
		}
		rc.bounds[id] = [2]int{start, len(rc.rows)}
		rc.order = append(rc.order, id)
	}

	return rc, nil
}

// Len returns the total number of rows across runs.
func (rc *RunCollection) Len() int {
	return len(rc.rows)
}

// NumRuns returns the number of distinct run identifiers.
func (rc *RunCollection) NumRuns() int {
	return len(rc.order)
}

// RunIDs returns the run identifiers in insertion order.
func (rc *RunCollection) RunIDs() []int {
	return append([]int(nil), rc.order...)
}

// Columns returns the value columns; the run id is kept separately.
func (rc *RunCollection) Columns() []string {
	return append([]string(nil), rc.columns...)
}

// Row returns a copy of row i and its run id.
func (rc *RunCollection) Row(i int) ([]float64, int) {
	return append([]float64(nil), rc.rows[i]...), rc.runIDs[i]
}

// Timestamp returns the time index of row i, if the runs carry one.
func (rc *RunCollection) Timestamp(i int) (time.Time, bool) {
	if rc.timestamps == nil {
		return time.Time{}, false
	}
	return rc.timestamps[i], true
}

// Run extracts the trajectory stamped with id.
func (rc *RunCollection) Run(id int) (*Table, error) {
	b, ok := rc.bounds[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRun, id)
	}
	t, err := NewTable(rc.columns, rc.rows[b[0]:b[1]])
	if err != nil {
		return nil, err
	}
	if rc.timestamps != nil {
		return t.WithTimestamps(rc.timestamps[b[0]:b[1]])
	}
	return t, nil
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
