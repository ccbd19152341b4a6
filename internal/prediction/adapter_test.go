package prediction

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loan-eligibility/internal/artifacts"
	apperrors "loan-eligibility/internal/common/errors"
	"loan-eligibility/internal/common/logger"
	"loan-eligibility/internal/ml"
	"loan-eligibility/internal/models"
)

type testLogger struct {
	t *testing.T
}

func (l *testLogger) Debug(msg string, fields map[string]interface{}) {
	l.t.Logf("[DEBUG] %s %v", msg, fields)
}

func (l *testLogger) Info(msg string, fields map[string]interface{}) {
	l.t.Logf("[INFO] %s %v", msg, fields)
}

func (l *testLogger) Warn(msg string, fields map[string]interface{}) {
	l.t.Logf("[WARN] %s %v", msg, fields)
}

func (l *testLogger) Error(msg string, fields map[string]interface{}) {
	l.t.Logf("[ERROR] %s %v", msg, fields)
}

func (l *testLogger) WithFields(fields map[string]interface{}) logger.Logger {
	return l
}

func (l *testLogger) WithError(err error) logger.Logger {
	return l
}

func (l *testLogger) With(fields map[string]interface{}) logger.Logger {
	return l
}

// createTestBundle fits a scaler on the four-row training table and pairs it
// with a logistic model that only looks at credit history.
func createTestBundle(t *testing.T) *artifacts.Bundle {
	t.Helper()

	encoded, err := DefaultEncoder().Encode(loadTrainingFrame(t))
	require.NoError(t, err)
	features, _, err := encoded.Split(models.FieldLoanApproved)
	require.NoError(t, err)

	schema := models.NewFeatureSchema(features.Columns)
	require.Equal(t, domainFeatures, schema.Features)

	X, err := ml.DenseFromRows(features.Rows)
	require.NoError(t, err)
	scaler := ml.NewMinMaxScaler()
	require.NoError(t, scaler.Fit(X))
	scaler.SetSchemaVersion(schema.Version)

	weights := make([]float64, len(schema.Features))
	weights[4] = 3 // Credit_History
	model := &ml.LogisticRegression{Weights: weights, Intercept: -1.5, C: 1, MaxIter: 100}
	model.SetSchemaVersion(schema.Version)

	return &artifacts.Bundle{
		Manifest: artifacts.Manifest{
			SchemaVersion:  schema.Version,
			Features:       schema.Features,
			Target:         models.FieldLoanApproved,
			DefaultVariant: models.VariantLogisticRegression,
		},
		Schema:    schema,
		Scaler:    scaler,
		Models:    map[string]ml.Classifier{models.VariantLogisticRegression: model},
		Reference: encoded,
	}
}

func createTestPredictor(t *testing.T, opts Options) *Predictor {
	t.Helper()
	p, err := NewPredictor(createTestBundle(t), opts, &testLogger{t: t})
	require.NoError(t, err)
	return p
}

func stageOf(t *testing.T, err error) string {
	t.Helper()
	var stdErr *apperrors.StandardError
	require.True(t, errors.As(err, &stdErr), "expected StandardError, got %T", err)
	require.Equal(t, apperrors.ErrCodePredictionFailed, stdErr.Code)
	return stdErr.Metadata["stage"].(string)
}

func TestPredictor_Predict(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(a *models.ApplicantRecord)
		wantRange [2]float64
	}{
		{
			name:      "good credit history",
			mutate:    func(a *models.ApplicantRecord) {},
			wantRange: [2]float64{81.7, 81.8},
		},
		{
			name:      "bad credit history",
			mutate:    func(a *models.ApplicantRecord) { a.CreditHistory = "0.0" },
			wantRange: [2]float64{18.2, 18.3},
		},
		{
			name:      "numeric credit history spelling",
			mutate:    func(a *models.ApplicantRecord) { a.CreditHistory = "1" },
			wantRange: [2]float64{81.7, 81.8},
		},
		{
			name:      "unseen category still scores",
			mutate:    func(a *models.ApplicantRecord) { a.PropertyArea = "Downtown" },
			wantRange: [2]float64{81.7, 81.8},
		},
	}

	p := createTestPredictor(t, DefaultOptions())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := createTestApplicant()
			tt.mutate(&a)

			prob, err := p.Predict(context.Background(), a, "")
			require.NoError(t, err)
			assert.GreaterOrEqual(t, prob, tt.wantRange[0])
			assert.LessOrEqual(t, prob, tt.wantRange[1])
		})
	}
}

func TestPredictor_RangeAndDeterminism(t *testing.T) {
	p := createTestPredictor(t, DefaultOptions())
	a := createTestApplicant()

	first, err := p.Predict(context.Background(), a, models.VariantLogisticRegression)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]float64, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := p.Predict(context.Background(), a, "")
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	for _, v := range results {
		assert.Equal(t, first, v)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 100.0)
	}
}

func TestPredictor_ReferenceModeMatchesDomainsMode(t *testing.T) {
	domains := createTestPredictor(t, DefaultOptions())
	reference := createTestPredictor(t, Options{Mode: ModeReference, Strict: true})

	for _, credit := range []models.FlexString{"1.0", "0.0"} {
		a := createTestApplicant()
		a.CreditHistory = credit

		want, err := domains.Predict(context.Background(), a, "")
		require.NoError(t, err)
		got, err := reference.Predict(context.Background(), a, "")
		require.NoError(t, err)
		assert.InDelta(t, want, got, 1e-9)
	}
}

func TestEncodeApplicant_ReferenceModeExtractsApplicantByKey(t *testing.T) {
	bundle := createTestBundle(t)
	a := createTestApplicant()
	a.Gender = "Female"
	a.Dependents = "3+"

	columns, row, err := encodeApplicant(a, bundle.Reference, ModeReference, nil)
	require.NoError(t, err)

	values := map[string]float64{}
	for i, c := range columns {
		values[c] = row[i]
	}
	assert.Equal(t, 1.0, values["Gender_Female"])
	assert.Equal(t, 0.0, values["Gender_Male"])
	assert.Equal(t, 1.0, values["Dependents_3+"])
	assert.Equal(t, 5000.0, values["ApplicantIncome"])

	unique, dups := DedupColumns(columns)
	assert.Empty(t, dups)
	assert.Len(t, unique, len(domainFeatures))
}

func TestPredict_ReferenceModeFillsFromReference(t *testing.T) {
	bundle := createTestBundle(t)
	a := createTestApplicant()
	a.LoanAmount = nil

	_, err := Predict(a, bundle.Reference, bundle.Models[models.VariantLogisticRegression],
		bundle.Scaler, bundle.Schema, Options{Mode: ModeReference, Strict: true})
	require.NoError(t, err)

	a.Married = ""
	_, err = Predict(a, nil, bundle.Models[models.VariantLogisticRegression],
		bundle.Scaler, bundle.Schema, DefaultOptions())
	require.Error(t, err)
	assert.Equal(t, string(apperrors.ErrCodeEncodingFailed), stageOf(t, err))
}

func TestPredictor_DomainsModeUsesBundleFillValues(t *testing.T) {
	a := createTestApplicant()
	a.LoanAmount = nil
	a.Gender = ""

	bundle := createTestBundle(t)
	p, err := NewPredictor(bundle, DefaultOptions(), &testLogger{t: t})
	require.NoError(t, err)
	_, err = p.Predict(context.Background(), a, "")
	require.Error(t, err)
	assert.Equal(t, string(apperrors.ErrCodeEncodingFailed), stageOf(t, err))

	bundle.Manifest.FillValues = map[string]string{models.FieldLoanAmount: "200", models.FieldGender: "Female"}
	p, err = NewPredictor(bundle, DefaultOptions(), &testLogger{t: t})
	require.NoError(t, err)
	got, err := p.Predict(context.Background(), a, "")
	require.NoError(t, err)

	filled := createTestApplicant()
	filled.LoanAmount = models.Float(200)
	filled.Gender = "Female"
	want, err := p.Predict(context.Background(), filled, "")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, row, err := encodeApplicant(a, nil, ModeDomains, bundle.Manifest.FillValues)
	require.NoError(t, err)
	_, wantRow, err := encodeApplicant(filled, nil, ModeDomains, nil)
	require.NoError(t, err)
	assert.Equal(t, wantRow, row)
}

func TestPredict_FailureStages(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(b *artifacts.Bundle) (ml.Classifier, *ml.MinMaxScaler, models.FeatureSchema)
		wantStage apperrors.ErrorCode
	}{
		{
			name: "model fitted on another schema",
			setup: func(b *artifacts.Bundle) (ml.Classifier, *ml.MinMaxScaler, models.FeatureSchema) {
				m := *b.Models[models.VariantLogisticRegression].(*ml.LogisticRegression)
				m.SetSchemaVersion("fs-0000000000000000")
				return &m, b.Scaler, b.Schema
			},
			wantStage: apperrors.ErrCodeSchemaVersionMismatch,
		},
		{
			name: "scaler fitted on another schema",
			setup: func(b *artifacts.Bundle) (ml.Classifier, *ml.MinMaxScaler, models.FeatureSchema) {
				s := *b.Scaler
				s.SetSchemaVersion("fs-0000000000000000")
				return b.Models[models.VariantLogisticRegression], &s, b.Schema
			},
			wantStage: apperrors.ErrCodeSchemaVersionMismatch,
		},
		{
			name: "schema with duplicated feature in strict mode",
			setup: func(b *artifacts.Bundle) (ml.Classifier, *ml.MinMaxScaler, models.FeatureSchema) {
				schema := models.NewFeatureSchema(append(append([]string{}, b.Schema.Features...), "Gender_Male"))
				m := *b.Models[models.VariantLogisticRegression].(*ml.LogisticRegression)
				m.SetSchemaVersion(schema.Version)
				s := *b.Scaler
				s.SetSchemaVersion(schema.Version)
				return &m, &s, schema
			},
			wantStage: apperrors.ErrCodeSchemaMismatch,
		},
		{
			name: "scaler width differs from schema",
			setup: func(b *artifacts.Bundle) (ml.Classifier, *ml.MinMaxScaler, models.FeatureSchema) {
				schema := models.NewFeatureSchema(b.Schema.Features[:19])
				m := *b.Models[models.VariantLogisticRegression].(*ml.LogisticRegression)
				m.SetSchemaVersion(schema.Version)
				s := *b.Scaler
				s.SetSchemaVersion(schema.Version)
				return &m, &s, schema
			},
			wantStage: apperrors.ErrCodeScalingFailed,
		},
		{
			name: "model width differs from scaler",
			setup: func(b *artifacts.Bundle) (ml.Classifier, *ml.MinMaxScaler, models.FeatureSchema) {
				m := *b.Models[models.VariantLogisticRegression].(*ml.LogisticRegression)
				m.Weights = m.Weights[:3]
				return &m, b.Scaler, b.Schema
			},
			wantStage: apperrors.ErrCodeModelInvocationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := createTestBundle(t)
			model, scaler, schema := tt.setup(b)

			_, err := Predict(createTestApplicant(), b.Reference, model, scaler, schema, DefaultOptions())
			require.Error(t, err)
			assert.Equal(t, string(tt.wantStage), stageOf(t, err))

			bpmn := apperrors.ConvertToBPMNError(apperrors.Normalize(err))
			assert.Equal(t, "PREDICTION_FAILED", bpmn.Code)
			assert.Equal(t, 0, bpmn.Retries)
		})
	}
}

func TestNewPredictor_Validation(t *testing.T) {
	t.Run("version mismatch fails at startup", func(t *testing.T) {
		b := createTestBundle(t)
		b.Scaler.SetSchemaVersion("fs-stale")
		_, err := NewPredictor(b, DefaultOptions(), &testLogger{t: t})
		require.Error(t, err)

		var stdErr *apperrors.StandardError
		require.True(t, errors.As(err, &stdErr))
		assert.Equal(t, apperrors.ErrCodeArtifactLoadFailed, stdErr.Code)
		assert.ErrorIs(t, err, ErrSchemaVersionMismatch)
	})

	t.Run("reference mode needs the reference table", func(t *testing.T) {
		b := createTestBundle(t)
		b.Reference = nil
		_, err := NewPredictor(b, Options{Mode: ModeReference}, &testLogger{t: t})
		require.Error(t, err)
	})

	t.Run("unknown variant", func(t *testing.T) {
		p := createTestPredictor(t, DefaultOptions())
		_, err := p.Predict(context.Background(), createTestApplicant(), "gradient_boosting")

		var stdErr *apperrors.StandardError
		require.True(t, errors.As(err, &stdErr))
		assert.Equal(t, apperrors.ErrCodeModelVariantNotFound, stdErr.Code)
	})

	t.Run("cancelled context", func(t *testing.T) {
		p := createTestPredictor(t, DefaultOptions())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := p.Predict(ctx, createTestApplicant(), "")
		require.Error(t, err)
	})
}

func TestParseEncodingMode(t *testing.T) {
	m, err := ParseEncodingMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeDomains, m)

	m, err = ParseEncodingMode("reference")
	require.NoError(t, err)
	assert.Equal(t, ModeReference, m)

	_, err = ParseEncodingMode("pandas")
	assert.Error(t, err)
}
