// Package ml holds the fitted estimators used by the loan models: a MinMax
// scaler, a logistic regression and a random forest, plus the evaluation
// helpers the training pipeline reports with.
package ml

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Model kinds as stored in artifact files.
const (
	KindLogisticRegression = "logistic_regression"
	KindRandomForest       = "random_forest"
)

var (
	ErrNotFitted     = errors.New("estimator is not fitted")
	ErrFeatureWidth  = errors.New("feature width mismatch")
	ErrNonFinite     = errors.New("non-finite feature value")
	ErrEmptyTraining = errors.New("empty training set")
)

// Classifier is a fitted binary classifier. PredictProba returns the
// probability of class 0 and class 1, in that order.
type Classifier interface {
	PredictProba(x []float64) ([]float64, error)
	NumFeatures() int
	SchemaVersion() string
}

// Meta is embedded by every persisted estimator.
type Meta struct {
	Version string `json:"schemaVersion"`
}

// SchemaVersion returns the feature-schema version the estimator was fitted on.
func (m Meta) SchemaVersion() string {
	return m.Version
}

// SetSchemaVersion stamps the estimator with the feature-schema version.
func (m *Meta) SetSchemaVersion(v string) {
	m.Version = v
}

func checkRow(x []float64, width int) error {
	if width == 0 {
		return ErrNotFitted
	}
	if len(x) != width {
		return fmt.Errorf("%w: expected %d features, got %d", ErrFeatureWidth, width, len(x))
	}
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w at column %d", ErrNonFinite, i)
		}
	}
	return nil
}

// DenseFromRows copies rows into a gonum matrix.
func DenseFromRows(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, ErrEmptyTraining
	}
	width := len(rows[0])
	data := make([]float64, 0, len(rows)*width)
	for i, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("%w: row %d has %d columns, expected %d", ErrFeatureWidth, i, len(row), width)
		}
		data = append(data, row...)
	}
	return mat.NewDense(len(rows), width, data), nil
}

// SelectRows returns the rows of X at idx, in that order.
func SelectRows(X *mat.Dense, idx []int) *mat.Dense {
	_, c := X.Dims()
	out := mat.NewDense(len(idx), c, nil)
	for i, r := range idx {
		out.SetRow(i, X.RawRowView(r))
	}
	return out
}

// SelectValues returns y at idx, in that order.
func SelectValues(y []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, r := range idx {
		out[i] = y[r]
	}
	return out
}
