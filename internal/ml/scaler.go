package ml

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// MinMaxScaler rescales every feature to [0, 1] using the range seen at fit
// time. Constant features scale by 1, so they map to 0.
type MinMaxScaler struct {
	Meta
	DataMin []float64 `json:"dataMin"`
	DataMax []float64 `json:"dataMax"`
	Scale   []float64 `json:"scale"`
	Offset  []float64 `json:"offset"`
}

func NewMinMaxScaler() *MinMaxScaler {
	return &MinMaxScaler{}
}

// Fit records per-column minimum and maximum.
func (s *MinMaxScaler) Fit(X *mat.Dense) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return ErrEmptyTraining
	}

	s.DataMin = make([]float64, c)
	s.DataMax = make([]float64, c)
	s.Scale = make([]float64, c)
	s.Offset = make([]float64, c)

	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, X)
		if floats.HasNaN(col) {
			return fmt.Errorf("%w in column %d", ErrNonFinite, j)
		}
		lo, hi := floats.Min(col), floats.Max(col)
		span := hi - lo
		if span == 0 {
			span = 1
		}
		s.DataMin[j] = lo
		s.DataMax[j] = hi
		s.Scale[j] = 1 / span
		s.Offset[j] = -lo / span
	}
	return nil
}

// NumFeatures returns the width the scaler was fitted on.
func (s *MinMaxScaler) NumFeatures() int {
	return len(s.Scale)
}

// Transform scales one row. Values outside the fitted range extrapolate
// linearly.
func (s *MinMaxScaler) Transform(x []float64) ([]float64, error) {
	if err := checkRow(x, s.NumFeatures()); err != nil {
		return nil, err
	}
	out := make([]float64, len(x))
	floats.MulTo(out, x, s.Scale)
	floats.Add(out, s.Offset)
	return out, nil
}

// TransformMatrix scales every row of X into a new matrix.
func (s *MinMaxScaler) TransformMatrix(X *mat.Dense) (*mat.Dense, error) {
	r, c := X.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		row, err := s.Transform(X.RawRowView(i))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out.SetRow(i, row)
	}
	return out, nil
}
