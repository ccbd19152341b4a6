// internal/prediction/encoder.go
package prediction

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"loan-eligibility/internal/dataset"
	"loan-eligibility/internal/models"
)

var (
	ErrEncoding              = errors.New("ENCODING_FAILED")
	ErrSchemaMismatch        = errors.New("SCHEMA_MISMATCH")
	ErrSchemaVersionMismatch = errors.New("SCHEMA_VERSION_MISMATCH")
	ErrScaling               = errors.New("SCALING_FAILED")
	ErrModelInvocation       = errors.New("MODEL_INVOCATION_FAILED")
	ErrDuplicateColumn       = errors.New("duplicate column")
)

// Encoder turns raw applicant tables into the one-hot numeric layout the
// models were trained on.
type Encoder struct {
	// domains fixes the indicator set per categorical field. Nil means the
	// domain is whatever values the encoded table contains.
	domains    map[string][]string
	modeFill   []string
	medianFill []string
	// fallback supplies fill values for columns with nothing to take a
	// mode or median of, as happens when a single applicant omits a field.
	fallback map[string]string
}

// NewEncoder returns an encoder with explicit categorical domains. Values
// are sorted so indicator columns come out in a stable order.
func NewEncoder(domains map[string][]string) *Encoder {
	e := newEncoder()
	e.domains = make(map[string][]string, len(domains))
	for field, values := range domains {
		sorted := append([]string(nil), values...)
		sort.Strings(sorted)
		e.domains[field] = sorted
	}
	return e
}

// DefaultEncoder encodes against the enumerated applicant domains.
func DefaultEncoder() *Encoder {
	return NewEncoder(models.CategoryDomains())
}

// NewObservedEncoder derives each categorical domain from the rows being
// encoded.
func NewObservedEncoder() *Encoder {
	return newEncoder()
}

func newEncoder() *Encoder {
	return &Encoder{
		modeFill: []string{
			models.FieldGender,
			models.FieldMarried,
			models.FieldDependents,
			models.FieldSelfEmployed,
			models.FieldLoanAmountTerm,
			models.FieldCreditHistory,
		},
		medianFill: []string{models.FieldLoanAmount},
	}
}

// Observed reports whether domains come from the data.
func (e *Encoder) Observed() bool {
	return e.domains == nil
}

// WithFillValues returns a copy of e that fills a fill-policy field from
// values when no row of the frame has it.
func (e *Encoder) WithFillValues(values map[string]string) *Encoder {
	out := *e
	out.fallback = values
	return &out
}

// Fill returns a copy of f with missing values replaced by the column mode
// or median. A required field with no value in any row is an error unless
// the encoder carries a fill value for it.
func (e *Encoder) Fill(f *dataset.Frame) (*dataset.Frame, error) {
	for _, field := range models.ApplicantFields {
		col, err := f.Column(field)
		if err != nil {
			return nil, fmt.Errorf("%w: required field %s is absent", ErrEncoding, field)
		}
		if countPresent(col) == 0 && e.fallback[field] == "" {
			return nil, fmt.Errorf("%w: required field %s has no values", ErrEncoding, field)
		}
	}

	values, err := e.FillValues(f)
	if err != nil {
		return nil, err
	}
	out := f.Clone()
	for field, value := range values {
		fillColumn(out, out.Index(field), value)
	}
	return out, nil
}

// FillValues returns the value each fill-policy field of f is filled with:
// the column mode for categorical fields and the median for LoanAmount.
// Fields with no values fall back to the encoder's fill values and are left
// out when there is none.
func (e *Encoder) FillValues(f *dataset.Frame) (map[string]string, error) {
	values := make(map[string]string, len(e.modeFill)+len(e.medianFill))
	for _, field := range e.modeFill {
		col, err := f.Column(field)
		if err != nil {
			return nil, fmt.Errorf("%w: required field %s is absent", ErrEncoding, field)
		}
		if countPresent(col) == 0 {
			if v := e.fallback[field]; v != "" {
				values[field] = v
			}
			continue
		}
		values[field] = mode(col)
	}
	for _, field := range e.medianFill {
		col, err := f.Column(field)
		if err != nil {
			return nil, fmt.Errorf("%w: required field %s is absent", ErrEncoding, field)
		}
		if countPresent(col) == 0 {
			if v := e.fallback[field]; v != "" {
				values[field] = v
			}
			continue
		}
		m, err := median(col)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrEncoding, field, err)
		}
		values[field] = strconv.FormatFloat(m, 'f', -1, 64)
	}
	return values, nil
}

// Encode fills missing values and one-hot encodes the categorical fields.
// Numeric columns keep their frame order, Loan_ID is dropped, the target is
// recoded Y→1/N→0, and indicator columns follow in field order.
func (e *Encoder) Encode(f *dataset.Frame) (*dataset.Matrix, error) {
	filled, err := e.Fill(f)
	if err != nil {
		return nil, err
	}

	categorical := make(map[string]bool, len(models.CategoricalFields))
	for _, field := range models.CategoricalFields {
		categorical[field] = true
	}

	out := &dataset.Matrix{
		Keys: append([]string(nil), filled.Keys...),
		Rows: make([][]float64, filled.Len()),
	}
	for i := range out.Rows {
		out.Rows[i] = make([]float64, 0, len(filled.Columns))
	}

	for j, column := range filled.Columns {
		if column == models.FieldLoanID || categorical[column] {
			continue
		}
		out.Columns = append(out.Columns, column)
		for i, row := range filled.Rows {
			v, err := encodeNumeric(column, row[j])
			if err != nil {
				return nil, fmt.Errorf("%w: row %s: %v", ErrEncoding, filled.Keys[i], err)
			}
			out.Rows[i] = append(out.Rows[i], v)
		}
	}

	for _, field := range models.CategoricalFields {
		j := filled.Index(field)
		col, _ := filled.Column(field)
		for i, v := range col {
			if dataset.IsMissing(v) {
				return nil, fmt.Errorf("%w: row %s: %s is missing and has no fill policy", ErrEncoding, filled.Keys[i], field)
			}
		}

		domain := e.domainFor(field, col)
		for _, value := range domain {
			out.Columns = append(out.Columns, field+"_"+value)
		}
		for i, row := range filled.Rows {
			cell := strings.TrimSpace(row[j])
			for _, value := range domain {
				if cell == value {
					out.Rows[i] = append(out.Rows[i], 1)
				} else {
					out.Rows[i] = append(out.Rows[i], 0)
				}
			}
		}
	}
	return out, nil
}

func (e *Encoder) domainFor(field string, col []string) []string {
	if e.domains != nil {
		return e.domains[field]
	}
	seen := map[string]bool{}
	var values []string
	for _, v := range col {
		v = strings.TrimSpace(v)
		if !seen[v] {
			seen[v] = true
			values = append(values, v)
		}
	}
	sort.Strings(values)
	return values
}

// DecodeIndicators rebuilds raw categorical columns from an encoded table.
// A field whose indicators are all zero in a row decodes to missing. The
// target column is dropped.
func DecodeIndicators(m *dataset.Matrix) (*dataset.Frame, error) {
	type indicator struct {
		field string
		value string
	}
	indicators := map[int]indicator{}
	var passthrough []int

	for j, column := range m.Columns {
		if column == models.FieldLoanApproved {
			continue
		}
		matched := false
		for _, field := range models.CategoricalFields {
			if strings.HasPrefix(column, field+"_") {
				indicators[j] = indicator{field: field, value: strings.TrimPrefix(column, field+"_")}
				matched = true
				break
			}
		}
		if !matched {
			passthrough = append(passthrough, j)
		}
	}

	columns := make([]string, 0, len(passthrough)+len(models.CategoricalFields))
	for _, j := range passthrough {
		columns = append(columns, m.Columns[j])
	}
	columns = append(columns, models.CategoricalFields...)
	out := dataset.NewFrame(columns)

	for i, row := range m.Rows {
		values := make(map[string]string, len(columns))
		for _, j := range passthrough {
			if !math.IsNaN(row[j]) {
				values[m.Columns[j]] = strconv.FormatFloat(row[j], 'f', -1, 64)
			}
		}
		for j, ind := range indicators {
			if row[j] != 1 {
				continue
			}
			if prev, ok := values[ind.field]; ok && prev != ind.value {
				return nil, fmt.Errorf("%w: row %s has both %s_%s and %s_%s set",
					ErrEncoding, m.Keys[i], ind.field, prev, ind.field, ind.value)
			}
			values[ind.field] = ind.value
		}
		out.Append(m.Keys[i], values)
	}
	return out, nil
}

func encodeNumeric(column, cell string) (float64, error) {
	cell = strings.TrimSpace(cell)
	if dataset.IsMissing(cell) {
		return math.NaN(), nil
	}
	if column == models.FieldLoanApproved {
		switch cell {
		case "Y":
			return 1, nil
		case "N":
			return 0, nil
		}
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return 0, fmt.Errorf("column %s: %q is not numeric", column, cell)
	}
	return v, nil
}

func fillColumn(f *dataset.Frame, idx int, value string) {
	for _, row := range f.Rows {
		if dataset.IsMissing(row[idx]) {
			row[idx] = value
		}
	}
}

func countPresent(col []string) int {
	n := 0
	for _, v := range col {
		if !dataset.IsMissing(v) {
			n++
		}
	}
	return n
}

// mode returns the most frequent present value. Ties go to the smallest,
// compared numerically when both values parse as numbers.
func mode(col []string) string {
	counts := map[string]int{}
	for _, v := range col {
		if dataset.IsMissing(v) {
			continue
		}
		counts[strings.TrimSpace(v)]++
	}

	var best string
	bestCount := 0
	for v, c := range counts {
		if c > bestCount || (c == bestCount && less(v, best)) {
			best, bestCount = v, c
		}
	}
	return best
}

func less(a, b string) bool {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil && fa != fb {
		return fa < fb
	}
	return a < b
}

func median(col []string) (float64, error) {
	values := make([]float64, 0, len(col))
	for _, v := range col {
		if dataset.IsMissing(v) {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not numeric", v)
		}
		values = append(values, f)
	}
	if len(values) == 0 {
		return 0, errors.New("no values")
	}
	sort.Float64s(values)
	mid := len(values) / 2
	if len(values)%2 == 1 {
		return values[mid], nil
	}
	return (values[mid-1] + values[mid]) / 2, nil
}
