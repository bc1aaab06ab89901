// Package dataio reads historical tables and posterior samples from disk
// and writes simulated runs back out as CSV.
package dataio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/irfndi/celebrum-sim/internal/models"
	"github.com/irfndi/celebrum-sim/internal/utils"
)

// TimestampColumn is the optional time index column of a table CSV.
const TimestampColumn = "timestamp"

// dateLayouts are tried in order when parsing the time index.
var dateLayouts = []string{time.RFC3339, "2006-01-02"}

// LoadTableCSVFile opens path and decodes it with LoadTableCSV.
func LoadTableCSVFile(path string) (*models.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	defer f.Close()

	table, err := LoadTableCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return table, nil
}

// LoadTableCSV decodes a header row followed by numeric records. A column
// named timestamp becomes the time index. Empty cells and "NaN" load as
// missing values.
func LoadTableCSV(r io.Reader) (*models.Table, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, utils.NewValidationError("history is empty")
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	tsIdx := -1
	columns := make([]string, 0, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if strings.EqualFold(h, TimestampColumn) {
			if tsIdx >= 0 {
				return nil, utils.NewFieldError(TimestampColumn, "appears more than once")
			}
			tsIdx = i
			continue
		}
		if h == "" {
			return nil, utils.NewValidationErrorf("header column %d has no name", i+1)
		}
		columns = append(columns, h)
	}

	var rows [][]float64
	var stamps []time.Time
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read record: %w", err)
		}

		row := make([]float64, 0, len(columns))
		for i, cell := range record {
			if i == tsIdx {
				ts, err := parseTimestamp(cell)
				if err != nil {
					return nil, utils.NewFieldError(TimestampColumn, "line %d: %v", line, err)
				}
				stamps = append(stamps, ts)
				continue
			}
			v, err := parseCell(cell)
			if err != nil {
				return nil, utils.NewFieldError(header[i], "line %d: %v", line, err)
			}
			row = append(row, v)
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: history has a header but no records", models.ErrEmptyTable)
	}

	table, err := models.NewTable(columns, rows)
	if err != nil {
		return nil, err
	}
	if tsIdx >= 0 {
		return table.WithTimestamps(stamps)
	}
	return table, nil
}

func parseCell(cell string) (float64, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", cell)
	}
	return v, nil
}

func parseTimestamp(cell string) (time.Time, error) {
	cell = strings.TrimSpace(cell)
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, cell); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not an RFC3339 time or a date", cell)
}
