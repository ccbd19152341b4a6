// internal/dataset/matrix.go
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
)

// Matrix is a numeric, encoded table. Missing cells are NaN.
type Matrix struct {
	Columns []string
	Keys    []string
	Rows    [][]float64
}

// Len returns the number of rows.
func (m *Matrix) Len() int {
	return len(m.Rows)
}

// Index returns the position of the first column called name, or -1.
func (m *Matrix) Index(name string) int {
	for i, c := range m.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// RowByKey returns the row stored under key.
func (m *Matrix) RowByKey(key string) ([]float64, bool) {
	for i, k := range m.Keys {
		if k == key {
			return m.Rows[i], true
		}
	}
	return nil, false
}

// Split removes column name and returns the remaining matrix plus the
// removed values.
func (m *Matrix) Split(name string) (*Matrix, []float64, error) {
	idx := m.Index(name)
	if idx < 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrColumnNotFound, name)
	}

	out := &Matrix{
		Keys: append([]string(nil), m.Keys...),
		Rows: make([][]float64, len(m.Rows)),
	}
	out.Columns = append(append([]string(nil), m.Columns[:idx]...), m.Columns[idx+1:]...)

	removed := make([]float64, len(m.Rows))
	for i, row := range m.Rows {
		removed[i] = row[idx]
		r := make([]float64, 0, len(row)-1)
		r = append(r, row[:idx]...)
		r = append(r, row[idx+1:]...)
		out.Rows[i] = r
	}
	return out, removed, nil
}

// WriteCSV writes the matrix with a header row. NaN cells are left empty.
func (m *Matrix) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(m.Columns); err != nil {
		return err
	}
	record := make([]string, len(m.Columns))
	for _, row := range m.Rows {
		for i, v := range row {
			if math.IsNaN(v) {
				record[i] = ""
				continue
			}
			record[i] = strconv.FormatFloat(v, 'f', -1, 64)
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// SaveCSV writes the matrix to path, creating parent directories.
func (m *Matrix) SaveCSV(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := m.WriteCSV(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// ParseMatrix converts a frame whose cells are all numeric or missing.
func ParseMatrix(f *Frame) (*Matrix, error) {
	m := &Matrix{
		Columns: append([]string(nil), f.Columns...),
		Keys:    append([]string(nil), f.Keys...),
		Rows:    make([][]float64, len(f.Rows)),
	}
	for i, row := range f.Rows {
		values := make([]float64, len(row))
		for j, cell := range row {
			if IsMissing(cell) {
				values[j] = math.NaN()
				continue
			}
			v, err := parseNumber(cell)
			if err != nil {
				return nil, fmt.Errorf("row %s column %s: %w", f.Keys[i], f.Columns[j], err)
			}
			values[j] = v
		}
		m.Rows[i] = values
	}
	return m, nil
}

// LoadMatrix reads an encoded CSV file.
func LoadMatrix(path string) (*Matrix, error) {
	f, err := LoadCSV(path)
	if err != nil {
		return nil, err
	}
	return ParseMatrix(f)
}

func parseNumber(cell string) (float64, error) {
	switch cell {
	case "True", "true":
		return 1, nil
	case "False", "false":
		return 0, nil
	}
	return strconv.ParseFloat(cell, 64)
}
