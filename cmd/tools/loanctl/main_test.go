package main

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loan-eligibility/internal/api"
	"loan-eligibility/internal/common/config"
	"loan-eligibility/internal/common/logger"
	"loan-eligibility/internal/ml"
	"loan-eligibility/internal/models"
	"loan-eligibility/internal/prediction/predictiontest"
	"loan-eligibility/internal/scoring"
	"loan-eligibility/internal/training/trainingtest"
	"loan-eligibility/pkg/registry"
)

const (
	registryFile = "../../../configs/activity-registry.json"

	applicantJSON = `{
		"Gender": "Male", "Married": "Yes", "Dependents": "0", "Education": "Graduate",
		"Self_Employed": "No", "ApplicantIncome": 5000, "CoapplicantIncome": 0,
		"LoanAmount": 150, "Loan_Amount_Term": 360, "Credit_History": 1, "Property_Area": "Urban"
	}`
)

// run executes loanctl with args and returns what it wrote to stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"loanctl"}, args...))
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRegistryCommands(t *testing.T) {
	_, err := run(t, "registry", "validate", "--path", registryFile)
	require.NoError(t, err)

	out, err := run(t, "registry", "list", "--path", registryFile)
	require.NoError(t, err)
	var list []ActivitySummary
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list, 4)
	assert.Equal(t, "validate-loan-application", list[0].TaskType)

	out, err = run(t, "--format", "yaml", "registry", "list", "--path", registryFile)
	require.NoError(t, err)
	assert.Contains(t, out, "taskType: predict-loan-eligibility")

	out, err = run(t, "registry", "list", "--path", registryFile, "--workflow", "other-process")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)
}

func TestRegistryUpdate(t *testing.T) {
	data, err := os.ReadFile(registryFile)
	require.NoError(t, err)
	path := writeFile(t, "registry.json", string(data))

	_, err = run(t, "registry", "update", "--path", path,
		"--id", "loan.prediction.record", "--field", "status", "--value", "verified")
	require.NoError(t, err)

	reg, err := registry.LoadRegistry(path)
	require.NoError(t, err)
	activity, err := reg.FindByTaskType("record-loan-prediction")
	require.NoError(t, err)
	assert.Equal(t, "verified", activity.ImplementationStatus)

	_, err = run(t, "registry", "update", "--path", path,
		"--id", "loan.prediction.record", "--field", "retries", "--value", "many")
	assert.Error(t, err)
}

func TestTrainEvaluatePredict(t *testing.T) {
	dir := t.TempDir()
	raw := trainingtest.WriteRawCSV(t, 60)
	processed := filepath.Join(dir, "processed.csv")
	modelsDir := filepath.Join(dir, "models")

	out, err := run(t, "train",
		"--raw", raw,
		"--processed", processed,
		"--artifacts", modelsDir,
		"--trees", "10",
		"--cv-folds", "3",
	)
	require.NoError(t, err)
	var summary TrainSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, models.VariantRandomForest, summary.DefaultVariant)
	assert.Equal(t, 60, summary.Rows)
	assert.NotEmpty(t, summary.SchemaVersion)
	require.Len(t, summary.Variants, 2)
	assert.NotEmpty(t, summary.Variants[models.VariantRandomForest].TopFeatures)
	assert.FileExists(t, processed)

	out, err = run(t, "evaluate", "--artifacts", modelsDir, "--data", processed)
	require.NoError(t, err)
	var evals map[string]*ml.Evaluation
	require.NoError(t, json.Unmarshal([]byte(out), &evals))
	assert.Len(t, evals, 2)

	applicant := writeFile(t, "applicant.json", applicantJSON)
	out, err = run(t, "predict", "--artifacts", modelsDir, "--applicant", applicant,
		"--variant", models.VariantLogisticRegression)
	require.NoError(t, err)
	var scored scoring.Scored
	require.NoError(t, json.Unmarshal([]byte(out), &scored))
	assert.Equal(t, models.VariantLogisticRegression, scored.ModelVariant)
	assert.Equal(t, summary.SchemaVersion, scored.SchemaVersion)
	assert.GreaterOrEqual(t, scored.Probability, 0.0)
	assert.LessOrEqual(t, scored.Probability, 100.0)
	assert.NotEmpty(t, scored.Interpretation)
	assert.Len(t, scored.Gauge.Steps, 5)
}

func TestPredict_InvalidApplicant(t *testing.T) {
	applicant := writeFile(t, "applicant.json", `{"Gender": "Robot"}`)

	out, err := run(t, "predict", "--artifacts", t.TempDir(), "--applicant", applicant)
	require.ErrorIs(t, err, errApplicantInvalid)
	assert.Contains(t, out, `"valid": false`)
}

func TestPredict_Remote(t *testing.T) {
	log := logger.NewNoOpLogger()
	svc := scoring.NewService(predictiontest.Predictor(t), nil, 0, nil, log)
	handler, err := api.NewHandler(svc, log)
	require.NoError(t, err)
	server := httptest.NewServer(api.NewRouter(config.HTTPConfig{}, handler))
	defer server.Close()

	applicant := writeFile(t, "applicant.json", applicantJSON)
	out, err := run(t, "predict", "--url", server.URL, "--applicant", applicant)
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	assert.InDelta(t, predictiontest.GoodCreditProbability, body["probability"], 0.01)
	assert.Equal(t, models.VariantLogisticRegression, body["modelVariant"])

	_, err = run(t, "predict", "--url", server.URL, "--applicant", applicant, "--variant", "svm")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestProcessVariables(t *testing.T) {
	vars, err := processVariables([]byte(applicantJSON), models.VariantRandomForest)
	require.NoError(t, err)
	assert.Equal(t, models.VariantRandomForest, vars["modelVariant"])
	applicant, ok := vars["applicant"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Urban", applicant["Property_Area"])

	vars, err = processVariables([]byte(applicantJSON), "")
	require.NoError(t, err)
	assert.NotContains(t, vars, "modelVariant")

	_, err = processVariables([]byte(`[1, 2]`), "")
	assert.Error(t, err)
	_, err = processVariables([]byte(`{`), "")
	assert.Error(t, err)
}
