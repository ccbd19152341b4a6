// internal/prediction/reconciler.go
package prediction

import (
	"fmt"
	"math"

	"loan-eligibility/internal/dataset"
)

// Report lists what reconciliation had to change to fit the schema.
type Report struct {
	Duplicates []string `json:"duplicates,omitempty"`
	Dropped    []string `json:"dropped,omitempty"`
	Filled     []string `json:"filled,omitempty"`
}

// Reconciler reshapes encoded rows to the canonical feature layout.
type Reconciler struct {
	strict bool
}

// NewReconciler returns a reconciler. In strict mode a duplicated column in
// either the schema or the row is an error instead of being collapsed.
func NewReconciler(strict bool) *Reconciler {
	return &Reconciler{strict: strict}
}

// DedupColumns keeps the first occurrence of every name and returns the
// names that were repeated.
func DedupColumns(columns []string) (unique []string, duplicates []string) {
	seen := make(map[string]bool, len(columns))
	reported := map[string]bool{}
	for _, c := range columns {
		if seen[c] {
			if !reported[c] {
				reported[c] = true
				duplicates = append(duplicates, c)
			}
			continue
		}
		seen[c] = true
		unique = append(unique, c)
	}
	return unique, duplicates
}

// Reconcile returns values laid out exactly as schema: absent columns are 0,
// extra columns are dropped, NaN becomes 0.
func (r *Reconciler) Reconcile(columns []string, values []float64, schema []string) ([]float64, *Report, error) {
	if len(columns) != len(values) {
		return nil, nil, fmt.Errorf("%w: %d column names for %d values", ErrSchemaMismatch, len(columns), len(values))
	}

	report := &Report{}
	canonical, schemaDups := DedupColumns(schema)
	if len(schemaDups) > 0 {
		if r.strict {
			return nil, nil, fmt.Errorf("%w: %w in feature schema: %v", ErrSchemaMismatch, ErrDuplicateColumn, schemaDups)
		}
		report.Duplicates = append(report.Duplicates, schemaDups...)
	}

	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if _, ok := index[c]; ok {
			if r.strict {
				return nil, nil, fmt.Errorf("%w: %w in encoded row: %s", ErrSchemaMismatch, ErrDuplicateColumn, c)
			}
			report.Duplicates = append(report.Duplicates, c)
			continue
		}
		index[c] = i
	}

	wanted := make(map[string]bool, len(canonical))
	out := make([]float64, len(canonical))
	for i, c := range canonical {
		wanted[c] = true
		j, ok := index[c]
		if !ok {
			report.Filled = append(report.Filled, c)
			continue
		}
		v := values[j]
		if math.IsNaN(v) {
			v = 0
		}
		out[i] = v
	}

	for _, c := range columns {
		if !wanted[c] {
			report.Dropped = append(report.Dropped, c)
		}
	}
	return out, report, nil
}

// ReconcileMatrix reconciles every row of m, keeping row keys.
func (r *Reconciler) ReconcileMatrix(m *dataset.Matrix, schema []string) (*dataset.Matrix, error) {
	canonical, _ := DedupColumns(schema)
	out := &dataset.Matrix{
		Columns: canonical,
		Keys:    append([]string(nil), m.Keys...),
		Rows:    make([][]float64, len(m.Rows)),
	}
	for i, row := range m.Rows {
		v, _, err := r.Reconcile(m.Columns, row, schema)
		if err != nil {
			return nil, err
		}
		out.Rows[i] = v
	}
	return out, nil
}
