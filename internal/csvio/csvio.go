// Package csvio reads and writes backup data files: flat CSV, one file per
// object type, header row of field names. Rows preserve column order.
package csvio

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
)

// Row is one record as an ordered field -> value mapping. Empty and "null"
// values are treated as absent by the engine.
type Row struct {
	cols []string
	vals map[string]string
}

// NewRow creates an empty row.
func NewRow() Row {
	return Row{vals: make(map[string]string)}
}

// Get returns the value for a column and whether the column exists.
func (r Row) Get(col string) (string, bool) {
	v, ok := r.vals[col]
	return v, ok
}

// Value returns the value for a column, or "" if absent.
func (r Row) Value(col string) string {
	return r.vals[col]
}

// Has reports whether the column exists in the row.
func (r Row) Has(col string) bool {
	_, ok := r.vals[col]
	return ok
}

// Set stores a value, appending the column if it is new.
func (r *Row) Set(col, value string) {
	if r.vals == nil {
		r.vals = make(map[string]string)
	}
	if _, ok := r.vals[col]; !ok {
		r.cols = append(r.cols, col)
	}
	r.vals[col] = value
}

// Delete removes a column from the row.
func (r *Row) Delete(col string) {
	if _, ok := r.vals[col]; !ok {
		return
	}
	delete(r.vals, col)
	for i, c := range r.cols {
		if c == col {
			r.cols = append(r.cols[:i], r.cols[i+1:]...)
			break
		}
	}
}

// Columns returns the column names in order.
func (r Row) Columns() []string {
	out := make([]string, len(r.cols))
	copy(out, r.cols)
	return out
}

// Len returns the number of columns.
func (r Row) Len() int {
	return len(r.cols)
}

// Clone returns an independent copy of the row.
func (r Row) Clone() Row {
	out := Row{
		cols: make([]string, len(r.cols)),
		vals: make(map[string]string, len(r.vals)),
	}
	copy(out.cols, r.cols)
	for k, v := range r.vals {
		out.vals[k] = v
	}
	return out
}

// IsAbsent reports whether a raw value represents "no value". The backup
// writers emit empty strings and the literal "null" interchangeably.
func IsAbsent(value string) bool {
	return value == "" || value == "null"
}

// ReadFile reads a backup CSV into rows. The first line is the header.
func ReadFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	header := records[0]
	rows := make([]Row, 0, len(records)-1)
	for _, record := range records[1:] {
		row := NewRow()
		for i, col := range header {
			if i < len(record) {
				row.Set(col, record[i])
			} else {
				row.Set(col, "")
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// unionColumns returns the union of all row columns in first-seen order.
func unionColumns(rows []Row) []string {
	var cols []string
	seen := make(map[string]bool)
	for _, row := range rows {
		for _, col := range row.cols {
			if !seen[col] {
				seen[col] = true
				cols = append(cols, col)
			}
		}
	}
	return cols
}

// Marshal renders rows as CSV with a header line, suitable for ingest-job
// upload. Quoting follows standard CSV escaping.
func Marshal(rows []Row) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	cols := unionColumns(rows)
	if err := w.Write(cols); err != nil {
		return nil, err
	}
	record := make([]string, len(cols))
	for _, row := range rows {
		for i, col := range cols {
			record[i] = row.vals[col]
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile writes rows to a CSV file.
func WriteFile(path string, rows []Row) error {
	data, err := Marshal(rows)
	if err != nil {
		return fmt.Errorf("failed to render %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
