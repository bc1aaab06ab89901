package models

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateTestTable(t *testing.T, count int) *Table {
	t.Helper()
	rows := make([][]float64, count)
	price := 100.0
	for i := 0; i < count; i++ {
		ret := 0.01 * float64(i%3-1)
		price *= math.Exp(ret)
		rows[i] = []float64{ret, price, 3.5}
	}
	table, err := NewTable([]string{LogRetColumn, CloseColumn, "vix"}, rows)
	require.NoError(t, err)
	return table
}

func TestNewTable_Validation(t *testing.T) {
	_, err := NewTable([]string{"a", "a"}, nil)
	assert.ErrorIs(t, err, ErrDuplicateColumn)

	_, err = NewTable([]string{"a", "b"}, [][]float64{{1}})
	assert.ErrorIs(t, err, ErrRowWidth)

	table, err := NewTable([]string{"a"}, [][]float64{{1}, {2}})
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())
}

func TestNewTable_CopiesInput(t *testing.T) {
	rows := [][]float64{{1, 2}}
	table, err := NewTable([]string{"a", "b"}, rows)
	require.NoError(t, err)

	rows[0][0] = 99
	v, err := table.Value(0, "a")
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)
}

func TestTable_AppendFromLogRet(t *testing.T) {
	table := generateTestTable(t, 5)

	next, err := table.AppendFromLogRet(0.02, []string{"vix"}, map[string]int{"regime": 2})
	require.NoError(t, err)

	assert.Equal(t, 5, table.Len(), "receiver must not grow")
	assert.False(t, table.HasColumn("regime"))

	assert.Equal(t, 6, next.Len())
	assert.Equal(t, []string{LogRetColumn, CloseColumn, "vix", "regime"}, next.Columns())

	logRet, _ := next.Value(5, LogRetColumn)
	assert.Equal(t, 0.02, logRet)

	vix, _ := next.Value(5, "vix")
	assert.Equal(t, 3.5, vix)

	regime, _ := next.Value(5, "regime")
	assert.Equal(t, 2.0, regime)

	backfilled, _ := next.Value(0, "regime")
	assert.True(t, math.IsNaN(backfilled))

	prevClose, _ := next.Value(4, CloseColumn)
	closeVal, _ := next.Value(5, CloseColumn)
	assert.InDelta(t, prevClose*math.Exp(0.02), closeVal, 1e-12)
}

func TestTable_AppendInheritedCloseIsCarried(t *testing.T) {
	table := generateTestTable(t, 3)

	next, err := table.AppendFromLogRet(0.5, []string{CloseColumn}, nil)
	require.NoError(t, err)

	prev, _ := next.Value(2, CloseColumn)
	cur, _ := next.Value(3, CloseColumn)
	assert.Equal(t, prev, cur)

	vix, _ := next.Value(3, "vix")
	assert.True(t, math.IsNaN(vix))
}

func TestTable_AppendErrors(t *testing.T) {
	empty, err := NewTable([]string{LogRetColumn}, nil)
	require.NoError(t, err)
	_, err = empty.AppendFromLogRet(0, nil, nil)
	assert.ErrorIs(t, err, ErrEmptyTable)

	noTarget, err := NewTable([]string{"x"}, [][]float64{{1}})
	require.NoError(t, err)
	_, err = noTarget.AppendFromLogRet(0, nil, nil)
	assert.ErrorIs(t, err, ErrUnknownColumn)

	table := generateTestTable(t, 2)
	_, err = table.AppendFromLogRet(0, []string{"missing"}, nil)
	assert.ErrorIs(t, err, ErrUnknownColumn)
}

func TestTable_AppendExtendsTimestamps(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	table := generateTestTable(t, 3)
	table, err := table.WithTimestamps([]time.Time{base, base.Add(time.Hour), base.Add(2 * time.Hour)})
	require.NoError(t, err)

	next, err := table.AppendFromLogRet(0, nil, nil)
	require.NoError(t, err)
	ts := next.Timestamps()
	require.Len(t, ts, 4)
	assert.Equal(t, base.Add(3*time.Hour), ts[3])
	assert.Len(t, table.Timestamps(), 3)

	_, err = table.WithTimestamps([]time.Time{base})
	assert.ErrorIs(t, err, ErrTimestampCount)
}

func TestTable_ChainedAppendsDoNotAlias(t *testing.T) {
	table := generateTestTable(t, 2)
	a, err := table.AppendFromLogRet(0.1, nil, nil)
	require.NoError(t, err)
	b, err := table.AppendFromLogRet(0.2, nil, nil)
	require.NoError(t, err)

	va, _ := a.Value(2, LogRetColumn)
	vb, _ := b.Value(2, LogRetColumn)
	assert.Equal(t, 0.1, va)
	assert.Equal(t, 0.2, vb)
}

func TestTable_CloneIsDeep(t *testing.T) {
	table := generateTestTable(t, 2)
	clone := table.Clone()
	row := clone.Row(0)
	row[0] = 42

	v, _ := clone.Value(0, LogRetColumn)
	assert.NotEqual(t, 42.0, v)
	assert.Equal(t, table.Columns(), clone.Columns())
}
