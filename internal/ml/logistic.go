package ml

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// LogisticRegression is an L2-regularised binary logistic model. The
// objective matches liblinear/lbfgs style: C * sum(logloss) + ||w||²/2, with
// the intercept left unpenalised.
type LogisticRegression struct {
	Meta
	Weights   []float64 `json:"weights"`
	Intercept float64   `json:"intercept"`
	C         float64   `json:"c"`
	MaxIter   int       `json:"maxIter"`
}

func NewLogisticRegression(c float64, maxIter int) *LogisticRegression {
	if c <= 0 {
		c = 1
	}
	if maxIter <= 0 {
		maxIter = 100
	}
	return &LogisticRegression{C: c, MaxIter: maxIter}
}

// Fit minimises the regularised log loss with L-BFGS. y holds 0/1 labels.
func (m *LogisticRegression) Fit(X *mat.Dense, y []float64) error {
	n, p := X.Dims()
	if n == 0 || p == 0 {
		return ErrEmptyTraining
	}
	if len(y) != n {
		return fmt.Errorf("%w: %d rows but %d labels", ErrFeatureWidth, n, len(y))
	}

	z := mat.NewVecDense(n, nil)
	resid := mat.NewVecDense(n, nil)
	gradW := mat.NewVecDense(p, nil)

	linear := func(x []float64) {
		w := mat.NewVecDense(p, x[:p])
		z.MulVec(X, w)
		for i := 0; i < n; i++ {
			z.SetVec(i, z.AtVec(i)+x[p])
		}
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			linear(x)
			var loss float64
			for i := 0; i < n; i++ {
				zi := z.AtVec(i)
				loss += softplus(zi) - y[i]*zi
			}
			return m.C*loss + 0.5*floats.Dot(x[:p], x[:p])
		},
		Grad: func(grad, x []float64) {
			linear(x)
			var gradB float64
			for i := 0; i < n; i++ {
				r := sigmoid(z.AtVec(i)) - y[i]
				resid.SetVec(i, r)
				gradB += r
			}
			gradW.MulVec(X.T(), resid)
			for j := 0; j < p; j++ {
				grad[j] = m.C*gradW.AtVec(j) + x[j]
			}
			grad[p] = m.C * gradB
		},
	}

	settings := &optimize.Settings{
		MajorIterations:   m.MaxIter,
		GradientThreshold: 1e-6,
	}
	result, err := optimize.Minimize(problem, make([]float64, p+1), settings, &optimize.LBFGS{})
	if result == nil {
		return fmt.Errorf("logistic regression did not converge: %w", err)
	}
	// hitting the iteration limit still leaves a usable solution
	for _, v := range result.X {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("logistic regression diverged: %v", err)
		}
	}

	m.Weights = append([]float64(nil), result.X[:p]...)
	m.Intercept = result.X[p]
	return nil
}

// NumFeatures returns the fitted width.
func (m *LogisticRegression) NumFeatures() int {
	return len(m.Weights)
}

// PredictProba returns [P(0), P(1)] for one scaled row.
func (m *LogisticRegression) PredictProba(x []float64) ([]float64, error) {
	if err := checkRow(x, m.NumFeatures()); err != nil {
		return nil, err
	}
	p1 := sigmoid(floats.Dot(m.Weights, x) + m.Intercept)
	return []float64{1 - p1, p1}, nil
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// softplus is log(1+e^z) without overflow.
func softplus(z float64) float64 {
	if z > 0 {
		return z + math.Log1p(math.Exp(-z))
	}
	return math.Log1p(math.Exp(z))
}
