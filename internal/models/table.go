package models

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

const (
	// LogRetColumn holds the simulated target quantity.
	LogRetColumn = "log_ret"
	// CloseColumn, when present and not inherited, is rolled forward from the log return.
	CloseColumn = "close"

	defaultInterval = 24 * time.Hour
)

var (
	ErrUnknownColumn   = errors.New("unknown column")
	ErrDuplicateColumn = errors.New("duplicate column")
	ErrRowWidth        = errors.New("row width does not match column count")
	ErrEmptyTable      = errors.New("table has no rows")
	ErrTimestampCount  = errors.New("timestamp count does not match row count")
)

// Table is an ordered, time-indexed sequence of numeric records.
// A Table is never modified after construction; every operation that
// grows it returns a new Table. Missing values are stored as NaN.
type Table struct {
	columns    []string
	index      map[string]int
	rows       [][]float64
	timestamps []time.Time
}

// NewTable builds a table from column names and row-major values.
func NewTable(columns []string, rows [][]float64) (*Table, error) {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if _, ok := index[c]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateColumn, c)
		}
		index[c] = i
	}

	copied := make([][]float64, len(rows))
	for i, r := range rows {
		if len(r) != len(columns) {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrRowWidth, i, len(r), len(columns))
		}
		copied[i] = append([]float64(nil), r...)
	}

	return &Table{
		columns: append([]string(nil), columns...),
		index:   index,
		rows:    copied,
	}, nil
}

// WithTimestamps returns a copy of the table indexed by ts.
func (t *Table) WithTimestamps(ts []time.Time) (*Table, error) {
	if len(ts) != len(t.rows) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrTimestampCount, len(ts), len(t.rows))
	}
	out := t.shallow()
	out.timestamps = append([]time.Time(nil), ts...)
	return out, nil
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Columns returns the column names in order.
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// HasColumn reports whether name is a column of the table.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column returns a copy of the named column.
func (t *Table) Column(name string) ([]float64, error) {
	idx, ok := t.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, name)
	}
	out := make([]float64, len(t.rows))
	for i, r := range t.rows {
		out[i] = r[idx]
	}
	return out, nil
}

// Value returns a single cell.
func (t *Table) Value(row int, name string) (float64, error) {
	idx, ok := t.index[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownColumn, name)
	}
	if row < 0 || row >= len(t.rows) {
		return 0, fmt.Errorf("row %d out of range [0, %d)", row, len(t.rows))
	}
	return t.rows[row][idx], nil
}

// Row returns a copy of row i.
func (t *Table) Row(i int) []float64 {
	return append([]float64(nil), t.rows[i]...)
}

// HasTimestamps reports whether the table carries a time index.
func (t *Table) HasTimestamps() bool {
	return t.timestamps != nil
}

// Timestamps returns a copy of the time index, or nil.
func (t *Table) Timestamps() []time.Time {
	if t.timestamps == nil {
		return nil
	}
	return append([]time.Time(nil), t.timestamps...)
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	out := &Table{
		columns: append([]string(nil), t.columns...),
		index:   make(map[string]int, len(t.index)),
		rows:    make([][]float64, len(t.rows)),
	}
	for k, v := range t.index {
		out.index[k] = v
	}
	for i, r := range t.rows {
		out.rows[i] = append([]float64(nil), r...)
	}
	if t.timestamps != nil {
		out.timestamps = append([]time.Time(nil), t.timestamps...)
	}
	return out
}

// AppendFromLogRet returns a new table extended by one row. The new row
// carries newLogRet in LogRetColumn, the previous row's values for every
// column in inheritVals and the given integer values for addVariables.
// Columns named in addVariables that do not exist yet are created and
// back-filled with NaN. A CloseColumn that is not inherited is rolled
// forward as prev * exp(newLogRet). Every other column is NaN.
// The receiver is not modified.
func (t *Table) AppendFromLogRet(newLogRet float64, inheritVals []string, addVariables map[string]int) (*Table, error) {
	if len(t.rows) == 0 {
		return nil, ErrEmptyTable
	}
	if !t.HasColumn(LogRetColumn) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, LogRetColumn)
	}
	for _, name := range inheritVals {
		if !t.HasColumn(name) {
			return nil, fmt.Errorf("inherit %w: %q", ErrUnknownColumn, name)
		}
	}

	out := t.shallow()

	var added []string
	for name := range addVariables {
		if !t.HasColumn(name) {
			added = append(added, name)
		}
	}
	if len(added) > 0 {
		sort.Strings(added)
		out = t.withColumns(added)
	}

	last := out.rows[len(out.rows)-1]
	row := make([]float64, len(out.columns))
	for i := range row {
		row[i] = math.NaN()
	}

	inherited := make(map[string]bool, len(inheritVals))
	for _, name := range inheritVals {
		idx := out.index[name]
		row[idx] = last[idx]
		inherited[name] = true
	}

	if idx, ok := out.index[CloseColumn]; ok && !inherited[CloseColumn] {
		row[idx] = last[idx] * math.Exp(newLogRet)
	}

	row[out.index[LogRetColumn]] = newLogRet

	for name, v := range addVariables {
		row[out.index[name]] = float64(v)
	}

	out.rows = append(out.rows, row)

	if out.timestamps != nil {
		out.timestamps = append(out.timestamps, out.nextTimestamp())
	}

	return out, nil
}

// shallow copies the outer slices; row slices are shared since they are
// never written after construction.
func (t *Table) shallow() *Table {
	out := &Table{
		columns: t.columns,
		index:   t.index,
		rows:    make([][]float64, len(t.rows), len(t.rows)+1),
	}
	copy(out.rows, t.rows)
	if t.timestamps != nil {
		out.timestamps = make([]time.Time, len(t.timestamps), len(t.timestamps)+1)
		copy(out.timestamps, t.timestamps)
	}
	return out
}

func (t *Table) withColumns(names []string) *Table {
	out := t.Clone()
	for _, name := range names {
		out.index[name] = len(out.columns)
		out.columns = append(out.columns, name)
		for i := range out.rows {
			out.rows[i] = append(out.rows[i], math.NaN())
		}
	}
	return out
}

func (t *Table) nextTimestamp() time.Time {
	n := len(t.timestamps)
	last := t.timestamps[n-1]
	if n < 2 {
		return last.Add(defaultInterval)
	}
	step := last.Sub(t.timestamps[n-2])
	if step <= 0 {
		step = defaultInterval
	}
	return last.Add(step)
}
