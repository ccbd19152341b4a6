// test/e2e/e2e_test.go
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loan-eligibility/internal/api"
	"loan-eligibility/internal/artifacts"
	"loan-eligibility/internal/common/config"
	"loan-eligibility/internal/common/database"
	"loan-eligibility/internal/common/logger"
	"loan-eligibility/internal/models"
	"loan-eligibility/internal/prediction"
	"loan-eligibility/internal/scoring"
	"loan-eligibility/internal/training"
	"loan-eligibility/internal/training/trainingtest"
	"loan-eligibility/pkg/registry"

	gla "loan-eligibility/internal/workers/loan/generate-loan-advice"
	ple "loan-eligibility/internal/workers/loan/predict-loan-eligibility"
	rlp "loan-eligibility/internal/workers/loan/record-loan-prediction"
	vla "loan-eligibility/internal/workers/loan/validate-loan-application"
)

const applicantJSON = `{
	"Gender": "Female", "Married": "No", "Dependents": "3+", "Education": "Graduate",
	"Self_Employed": "No", "ApplicantIncome": 4200, "CoapplicantIncome": 1200,
	"LoanAmount": 130, "Loan_Amount_Term": 360, "Credit_History": 1, "Property_Area": "Semiurban"
}`

// trainedBundle runs the training pipeline on a synthetic table and returns
// the artifact directory and the processed table path.
func trainedBundle(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	opts := training.DefaultOptions()
	opts.RawData = trainingtest.WriteRawCSV(t, 90)
	opts.ProcessedData = filepath.Join(dir, "processed_loan_data.csv")
	opts.OutputDir = filepath.Join(dir, "models")
	opts.Trees = 20
	opts.CVFolds = 3

	_, err := training.NewPipeline(opts, logger.NewTestLogger(t)).Run(context.Background())
	require.NoError(t, err)
	return opts.OutputDir, opts.ProcessedData
}

func newService(t *testing.T, dir, reference string, mode prediction.EncodingMode, cache *redis.Client) *scoring.Service {
	t.Helper()
	log := logger.NewTestLogger(t)
	bundle, err := artifacts.Load(dir, reference)
	require.NoError(t, err)
	predictor, err := prediction.NewPredictor(bundle, prediction.Options{Mode: mode, Strict: true}, log)
	require.NoError(t, err)
	return scoring.NewService(predictor, cache, time.Minute, nil, log)
}

// variables mimics the process variable scope: every job reads all of it and
// its output is merged back in.
type variables map[string]json.RawMessage

func (v variables) merge(t *testing.T, output interface{}) {
	t.Helper()
	data, err := json.Marshal(output)
	require.NoError(t, err)
	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &fields))
	for k, raw := range fields {
		v[k] = raw
	}
}

func (v variables) decode(t *testing.T, input interface{}) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, input))
}

func TestPredictionAPI(t *testing.T) {
	dir, _ := trainedBundle(t)
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	svc := newService(t, dir, "", prediction.ModeDomains, cache)
	handler, err := api.NewHandler(svc, logger.NewTestLogger(t))
	require.NoError(t, err)
	server := httptest.NewServer(api.NewRouter(config.HTTPConfig{}, handler))
	defer server.Close()

	post := func(body string) (int, map[string]interface{}) {
		resp, err := http.Post(server.URL+"/api/v1/predictions", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		var out map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return resp.StatusCode, out
	}

	status, first := post(`{"applicant": ` + applicantJSON + `}`)
	require.Equal(t, http.StatusOK, status, first)
	assert.Equal(t, models.VariantRandomForest, first["modelVariant"])
	assert.Equal(t, false, first["cached"])
	assert.NotEmpty(t, first["interpretation"])

	status, second := post(`{"applicant": ` + applicantJSON + `}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, second["cached"])
	assert.Equal(t, first["probability"], second["probability"])
	assert.Len(t, mr.Keys(), 1)

	status, lr := post(`{"modelVariant": "logistic_regression", "applicant": ` + applicantJSON + `}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.VariantLogisticRegression, lr["modelVariant"])

	status, bad := post(`{"applicant": {"Gender": "Male"}}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "APPLICATION_VALIDATION_FAILED", bad["error"])

	resp, err := http.Get(server.URL + "/api/v1/models")
	require.NoError(t, err)
	defer resp.Body.Close()
	var catalog scoring.Catalog
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&catalog))
	assert.Len(t, catalog.Models, 2)
	assert.Equal(t, models.VariantRandomForest, catalog.DefaultVariant)
	for _, m := range catalog.Models {
		require.NotNil(t, m.Metrics, m.Variant)
	}
}

func TestLoanProcessWorkers(t *testing.T) {
	dir, processed := trainedBundle(t)
	log := logger.NewTestLogger(t)
	ctx := context.Background()

	reg, err := registry.LoadRegistry("../../configs/activity-registry.json")
	require.NoError(t, err)
	require.NoError(t, reg.Validate())
	activity, err := reg.FindByTaskType(vla.TaskType)
	require.NoError(t, err)
	inputSchema, err := activity.InputValidator()
	require.NoError(t, err)

	svc := newService(t, dir, processed, prediction.ModeReference, nil)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectExec("INSERT INTO loan_predictions").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			models.VariantRandomForest, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	var (
		mu      sync.Mutex
		indexed []map[string]interface{}
	)
	esServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var doc map[string]interface{}
		if json.Unmarshal(bytes.TrimSpace(body), &doc) == nil {
			mu.Lock()
			indexed = append(indexed, doc)
			mu.Unlock()
		}
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	}))
	defer esServer.Close()
	es, err := database.NewElasticsearch(config.ElasticsearchConfig{URL: esServer.URL, Index: "loan-predictions"})
	require.NoError(t, err)

	vars := variables{"applicant": json.RawMessage(applicantJSON)}

	// validate-loan-application
	validator, err := vla.NewHandler(vla.LoadConfig(), inputSchema, log)
	require.NoError(t, err)
	var vin vla.Input
	vars.decode(t, &vin)
	vout, err := validator.Execute(ctx, &vin)
	require.NoError(t, err)
	require.True(t, vout.IsValid, vout.ValidationErrors)
	vars.merge(t, vout)

	// predict-loan-eligibility
	var pin ple.Input
	vars.decode(t, &pin)
	pout, err := ple.NewHandler(ple.LoadConfig(), svc, log).Execute(ctx, &pin)
	require.NoError(t, err)
	assert.Equal(t, models.VariantRandomForest, pout.ModelVariant)
	assert.GreaterOrEqual(t, pout.Probability, 0.0)
	assert.LessOrEqual(t, pout.Probability, 100.0)
	vars.merge(t, pout)

	// generate-loan-advice
	var gin gla.Input
	vars.decode(t, &gin)
	gout, err := gla.NewHandler(gla.LoadConfig(), log).Execute(ctx, &gin)
	require.NoError(t, err)
	assert.Equal(t, pout.Interpretation, gout.Interpretation)
	assert.Equal(t, pout.Color, gout.Color)
	assert.Equal(t, pout.Probability, gout.Gauge.Value)
	vars.merge(t, gout)

	// record-loan-prediction
	var rin rlp.Input
	vars.decode(t, &rin)
	rin.PredictionID = uuid.NewString()
	rout, err := rlp.NewHandler(rlp.LoadConfig(), db, es, log).Execute(ctx, &rin)
	require.NoError(t, err)
	assert.Equal(t, rin.PredictionID, rout.PredictionID)
	assert.True(t, rout.Indexed)
	assert.NoError(t, mock.ExpectationsWereMet())
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, indexed, 1)
	assert.Equal(t, pout.Interpretation, indexed[0]["interpretation"])
}

func TestLoanProcessWorkers_InvalidApplication(t *testing.T) {
	log := logger.NewTestLogger(t)
	validator, err := vla.NewHandler(vla.LoadConfig(), nil, log)
	require.NoError(t, err)

	vars := variables{"applicant": json.RawMessage(`{"Gender": "Male", "ApplicantIncome": -5}`)}
	var vin vla.Input
	vars.decode(t, &vin)
	vout, err := validator.Execute(context.Background(), &vin)
	require.NoError(t, err)
	assert.False(t, vout.IsValid)
	assert.NotEmpty(t, vout.ValidationErrors)
	assert.Nil(t, vout.Applicant)
}
