// Package predictiontest builds small in-memory artifact bundles for tests
// of the layers above the predictor.
package predictiontest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"loan-eligibility/internal/artifacts"
	"loan-eligibility/internal/common/logger"
	"loan-eligibility/internal/dataset"
	"loan-eligibility/internal/ml"
	"loan-eligibility/internal/models"
	"loan-eligibility/internal/prediction"
)

// Probabilities produced by the bundle's logistic model for good and bad
// credit history, rounded to two decimals.
const (
	GoodCreditProbability = 81.76
	BadCreditProbability  = 18.24
)

// Applicant returns a complete, valid application with good credit history.
func Applicant() models.ApplicantRecord {
	return models.ApplicantRecord{
		Gender:            "Male",
		Married:           "Yes",
		Dependents:        "0",
		Education:         "Graduate",
		SelfEmployed:      "No",
		ApplicantIncome:   models.Float(5000),
		CoapplicantIncome: models.Float(0),
		LoanAmount:        models.Float(150),
		LoanAmountTerm:    "360",
		CreditHistory:     "1.0",
		PropertyArea:      "Urban",
	}
}

// Bundle returns a bundle whose logistic model looks only at credit history
// (weight 3, intercept -1.5 on the scaled column) and whose forest is fitted
// on two rows split by credit history. The logistic model is the default.
func Bundle(t testing.TB) *artifacts.Bundle {
	t.Helper()

	good := Applicant()
	bad := Applicant()
	bad.CreditHistory = "0.0"
	bad.ApplicantIncome = models.Float(2500)

	frame := dataset.NewFrame(models.ApplicantFields)
	frame.Append("good", good.Values())
	frame.Append("bad", bad.Values())

	encoded, err := prediction.DefaultEncoder().Encode(frame)
	require.NoError(t, err)
	schema := models.NewFeatureSchema(encoded.Columns)

	X, err := ml.DenseFromRows(encoded.Rows)
	require.NoError(t, err)
	scaler := ml.NewMinMaxScaler()
	require.NoError(t, scaler.Fit(X))
	scaler.SetSchemaVersion(schema.Version)

	weights := make([]float64, len(schema.Features))
	weights[encoded.Index(models.FieldCreditHistory)] = 3
	lr := &ml.LogisticRegression{Weights: weights, Intercept: -1.5, C: 1, MaxIter: 100}
	lr.SetSchemaVersion(schema.Version)

	scaled, err := scaler.TransformMatrix(X)
	require.NoError(t, err)
	cfg := ml.DefaultForestConfig()
	cfg.Trees = 3
	rf := ml.NewRandomForest(cfg)
	require.NoError(t, rf.Fit(scaled, []float64{1, 0}))
	rf.SetSchemaVersion(schema.Version)

	return &artifacts.Bundle{
		Manifest: artifacts.Manifest{
			SchemaVersion:  schema.Version,
			Features:       schema.Features,
			Target:         models.FieldLoanApproved,
			Variants:       []string{models.VariantLogisticRegression, models.VariantRandomForest},
			DefaultVariant: models.VariantLogisticRegression,
		},
		Schema: schema,
		Scaler: scaler,
		Models: map[string]ml.Classifier{
			models.VariantLogisticRegression: lr,
			models.VariantRandomForest:       rf,
		},
		Metrics: map[string]*ml.Evaluation{
			models.VariantLogisticRegression: {Accuracy: 0.81, Threshold: 0.5},
		},
	}
}

// Predictor wraps Bundle in a strict, domains-mode predictor.
func Predictor(t testing.TB) *prediction.Predictor {
	t.Helper()
	p, err := prediction.NewPredictor(Bundle(t), prediction.DefaultOptions(), logger.NewNoOpLogger())
	require.NoError(t, err)
	return p
}
