// Package export renders tabular data for download.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
)

// Table is a header row plus records in header order.
type Table struct {
	Headers []string
	Rows    [][]string
}

// WriteCSV streams t to w. Rows shorter than the header are padded, longer rows are rejected.
func WriteCSV(w io.Writer, t Table) error {
	if len(t.Headers) == 0 {
		return fmt.Errorf("csv requires at least one header")
	}
	writer := csv.NewWriter(w)
	if err := writer.Write(t.Headers); err != nil {
		return fmt.Errorf("write csv headers: %w", err)
	}
	record := make([]string, len(t.Headers))
	for i, row := range t.Rows {
		if len(row) > len(t.Headers) {
			return fmt.Errorf("csv row %d has %d columns, want at most %d", i, len(row), len(t.Headers))
		}
		for j := range record {
			record[j] = ""
		}
		copy(record, row)
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
