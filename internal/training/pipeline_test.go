package training

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loan-eligibility/internal/artifacts"
	apperrors "loan-eligibility/internal/common/errors"
	"loan-eligibility/internal/common/logger"
	"loan-eligibility/internal/dataset"
	"loan-eligibility/internal/models"
	"loan-eligibility/internal/prediction"
	"loan-eligibility/internal/training/trainingtest"
)

func createTestOptions(t *testing.T, raw string) Options {
	dir := t.TempDir()
	opts := DefaultOptions()
	opts.RawData = raw
	opts.ProcessedData = filepath.Join(dir, "data", "processed_loan_data.csv")
	opts.OutputDir = filepath.Join(dir, "models")
	opts.Trees = 15
	opts.CVFolds = 3
	return opts
}

func TestPipeline_RunProducesServableBundle(t *testing.T) {
	opts := createTestOptions(t, trainingtest.WriteRawCSV(t, 60))
	result, err := NewPipeline(opts, logger.NewTestLogger(t)).Run(context.Background())
	require.NoError(t, err)

	schema := result.Bundle.Schema
	require.NoError(t, schema.Verify())
	assert.Len(t, schema.Features, 20)
	assert.ElementsMatch(t,
		[]string{models.VariantLogisticRegression, models.VariantRandomForest},
		result.Bundle.Variants())

	for _, variant := range result.Bundle.Variants() {
		eval := result.Bundle.Metrics[variant]
		require.NotNil(t, eval, variant)
		assert.GreaterOrEqual(t, eval.Accuracy, 0.8, variant)
		assert.Contains(t, eval.Classes, "0")
		assert.Contains(t, eval.Classes, "1")
		assert.Greater(t, eval.CVMean, 0.0)
	}
	rf := result.Bundle.Metrics[models.VariantRandomForest]
	require.Len(t, rf.Importances, len(schema.Features))
	for i := 1; i < len(rf.Importances); i++ {
		assert.GreaterOrEqual(t, rf.Importances[i-1].Importance, rf.Importances[i].Importance)
	}

	for _, f := range []string{artifacts.ManifestFile, artifacts.ScalerFile,
		artifacts.ModelFile(models.VariantRandomForest), artifacts.ForestFile(models.VariantRandomForest),
		artifacts.MetricsFile(models.VariantLogisticRegression)} {
		assert.FileExists(t, filepath.Join(opts.OutputDir, f))
	}

	loaded, err := artifacts.Load(opts.OutputDir, opts.ProcessedData)
	require.NoError(t, err)
	assert.Equal(t, schema.Version, loaded.Schema.Version)
	assert.Equal(t, 60, loaded.Reference.Len())
	assert.Contains(t, loaded.Manifest.FillValues, models.FieldLoanAmount)
	assert.Contains(t, loaded.Manifest.FillValues, models.FieldGender)

	for _, mode := range []prediction.EncodingMode{prediction.ModeDomains, prediction.ModeReference} {
		p, err := prediction.NewPredictor(loaded, prediction.Options{Mode: mode, Strict: true}, logger.NewNoOpLogger())
		require.NoError(t, err)

		good := models.ApplicantRecord{
			Gender: "Male", Married: "Yes", Dependents: "0", Education: "Graduate", SelfEmployed: "No",
			ApplicantIncome: models.Float(5000), CoapplicantIncome: models.Float(0), LoanAmount: models.Float(150),
			LoanAmountTerm: "360", CreditHistory: "1.0", PropertyArea: "Urban",
		}
		bad := good
		bad.CreditHistory = "0.0"

		for _, variant := range loaded.Variants() {
			high, err := p.Predict(context.Background(), good, variant)
			require.NoError(t, err)
			low, err := p.Predict(context.Background(), bad, variant)
			require.NoError(t, err)

			assert.Greater(t, high, low, "%s/%s", mode, variant)
			assert.GreaterOrEqual(t, low, 0.0)
			assert.LessOrEqual(t, high, 100.0)
		}
	}
}

func TestPipeline_ProcessedHeaderMatchesSchema(t *testing.T) {
	opts := createTestOptions(t, trainingtest.WriteRawCSV(t, 30))
	result, err := NewPipeline(opts, logger.NewNoOpLogger()).Run(context.Background())
	require.NoError(t, err)

	processed, err := dataset.LoadMatrix(opts.ProcessedData)
	require.NoError(t, err)
	features, y, err := processed.Split(models.FieldLoanApproved)
	require.NoError(t, err)
	assert.Equal(t, result.Bundle.Schema.Features, features.Columns)
	for _, v := range y {
		assert.Contains(t, []float64{0, 1}, v)
	}
}

func TestPipeline_Failures(t *testing.T) {
	t.Run("missing raw file", func(t *testing.T) {
		opts := createTestOptions(t, filepath.Join(t.TempDir(), "nope.csv"))
		_, err := NewPipeline(opts, logger.NewNoOpLogger()).Run(context.Background())
		require.Error(t, err)

		var stdErr *apperrors.StandardError
		require.True(t, errors.As(err, &stdErr))
		assert.Equal(t, apperrors.ErrCodeTrainingFailed, stdErr.Code)
		assert.Equal(t, "load", stdErr.Metadata["step"])
	})

	t.Run("no target column", func(t *testing.T) {
		raw, err := dataset.ReadCSV(strings.NewReader("Gender,Married\nMale,Yes\n"))
		require.NoError(t, err)
		_, err = NewPipeline(DefaultOptions(), logger.NewNoOpLogger()).Train(context.Background(), raw)
		require.Error(t, err)
		assert.ErrorIs(t, err, dataset.ErrColumnNotFound)
	})

	t.Run("cancelled", func(t *testing.T) {
		raw, err := dataset.LoadCSV(trainingtest.WriteRawCSV(t, 30))
		require.NoError(t, err)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = NewPipeline(DefaultOptions(), logger.NewNoOpLogger()).Train(ctx, raw)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("unknown default variant", func(t *testing.T) {
		raw, err := dataset.LoadCSV(trainingtest.WriteRawCSV(t, 30))
		require.NoError(t, err)
		opts := DefaultOptions()
		opts.DefaultVariant = "xgboost"
		opts.Trees = 5
		_, err = NewPipeline(opts, logger.NewNoOpLogger()).Train(context.Background(), raw)
		require.Error(t, err)
	})
}
