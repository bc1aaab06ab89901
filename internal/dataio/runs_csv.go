package dataio

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/irfndi/celebrum-sim/internal/models"
)

// WriteRunsCSVFile creates path and writes runs to it.
func WriteRunsCSVFile(path string, runs *models.RunCollection) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close output: %w", cerr)
		}
	}()
	return WriteRunsCSV(f, runs)
}

// WriteRunsCSV writes one record per simulated row. The timestamp, if any,
// comes first and the run id last. Missing values are written as empty cells.
func WriteRunsCSV(w io.Writer, runs *models.RunCollection) error {
	if runs == nil {
		return models.ErrNoRuns
	}
	_, withTS := runs.Timestamp(0)

	columns := runs.Columns()
	header := make([]string, 0, len(columns)+2)
	if withTS {
		header = append(header, TimestampColumn)
	}
	header = append(header, columns...)
	header = append(header, models.RunIDColumn)

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	record := make([]string, len(header))
	for i := 0; i < runs.Len(); i++ {
		values, runID := runs.Row(i)
		record = record[:0]
		if ts, ok := runs.Timestamp(i); ok {
			record = append(record, ts.Format(time.RFC3339))
		}
		for _, v := range values {
			record = append(record, formatValue(v))
		}
		record = append(record, strconv.Itoa(runID))
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatValue(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
