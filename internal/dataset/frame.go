// internal/dataset/frame.go
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

var ErrColumnNotFound = errors.New("column not found")

// Frame is a raw, string-valued table. Every row carries an explicit key so
// rows can be located after reshaping without relying on position.
type Frame struct {
	Columns []string
	Keys    []string
	Rows    [][]string
}

// NewFrame returns an empty frame with the given header.
func NewFrame(columns []string) *Frame {
	return &Frame{Columns: append([]string(nil), columns...)}
}

// IsMissing reports whether a raw cell should be treated as a missing value.
func IsMissing(cell string) bool {
	switch strings.TrimSpace(cell) {
	case "", "NA", "NaN", "nan", "null", "None":
		return true
	}
	return false
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return len(f.Rows)
}

// Index returns the position of column name, or -1.
func (f *Frame) Index(name string) int {
	for i, c := range f.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether the frame carries column name.
func (f *Frame) HasColumn(name string) bool {
	return f.Index(name) >= 0
}

// Append adds a row from a field→value mapping. Fields the frame does not
// know are ignored; columns the mapping lacks are left missing.
func (f *Frame) Append(key string, values map[string]string) {
	row := make([]string, len(f.Columns))
	for i, c := range f.Columns {
		row[i] = values[c]
	}
	f.Keys = append(f.Keys, key)
	f.Rows = append(f.Rows, row)
}

// Column returns a copy of the named column.
func (f *Frame) Column(name string) ([]string, error) {
	idx := f.Index(name)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, name)
	}
	out := make([]string, len(f.Rows))
	for i, row := range f.Rows {
		out[i] = row[idx]
	}
	return out, nil
}

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	out := &Frame{
		Columns: append([]string(nil), f.Columns...),
		Keys:    append([]string(nil), f.Keys...),
		Rows:    make([][]string, len(f.Rows)),
	}
	for i, row := range f.Rows {
		out.Rows[i] = append([]string(nil), row...)
	}
	return out
}

// Concat appends the rows of other, aligning by column name. Columns only
// other has are added to the header and left missing for existing rows.
func (f *Frame) Concat(other *Frame) *Frame {
	out := f.Clone()
	for _, c := range other.Columns {
		if !out.HasColumn(c) {
			out.Columns = append(out.Columns, c)
			for i := range out.Rows {
				out.Rows[i] = append(out.Rows[i], "")
			}
		}
	}
	for i, row := range other.Rows {
		values := make(map[string]string, len(other.Columns))
		for j, c := range other.Columns {
			values[c] = row[j]
		}
		out.Append(other.Keys[i], values)
	}
	return out
}

// ReadCSV parses a CSV document with a header row. Rows are keyed "row-<n>".
func ReadCSV(r io.Reader) (*Frame, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	f := NewFrame(header)

	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		f.Keys = append(f.Keys, fmt.Sprintf("row-%d", len(f.Rows)))
		f.Rows = append(f.Rows, record)
	}
	return f, nil
}

// LoadCSV reads a frame from path.
func LoadCSV(path string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadCSV(file)
}
