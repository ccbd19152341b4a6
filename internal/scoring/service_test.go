package scoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loan-eligibility/internal/advice"
	apperrors "loan-eligibility/internal/common/errors"
	"loan-eligibility/internal/common/logger"
	"loan-eligibility/internal/models"
	"loan-eligibility/internal/prediction/predictiontest"
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

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func createTestService(t *testing.T, cache *redis.Client, ttl time.Duration) *Service {
	t.Helper()
	return NewService(predictiontest.Predictor(t), cache, ttl, nil, &testLogger{t: t})
}

func TestCacheKey(t *testing.T) {
	a := predictiontest.Applicant()
	key := CacheKey("fs-1", models.VariantRandomForest, a)
	assert.Regexp(t, `^loan:prediction:fs-1:random_forest:[0-9a-f]{64}$`, key)

	spelled := a
	spelled.CreditHistory = "1"
	spelled.LoanAmountTerm = "360.0"
	assert.Equal(t, key, CacheKey("fs-1", models.VariantRandomForest, spelled), "normalised spellings share a key")

	other := a
	other.CreditHistory = "0.0"
	assert.NotEqual(t, key, CacheKey("fs-1", models.VariantRandomForest, other))
	assert.NotEqual(t, key, CacheKey("fs-2", models.VariantRandomForest, a))
	assert.NotEqual(t, key, CacheKey("fs-1", models.VariantLogisticRegression, a))
}

func TestService_PredictCachesResult(t *testing.T) {
	mr, client := setupRedis(t)
	svc := createTestService(t, client, time.Minute)
	a := predictiontest.Applicant()

	first, err := svc.Predict(context.Background(), a, "")
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, models.VariantLogisticRegression, first.ModelVariant)
	assert.InDelta(t, predictiontest.GoodCreditProbability, first.Probability, 0.01)
	assert.Equal(t, advice.VeryLikely, first.Interpretation)
	assert.Equal(t, "green", first.Color)
	assert.Equal(t, svc.SchemaVersion(), first.SchemaVersion)

	key := CacheKey(svc.SchemaVersion(), models.VariantLogisticRegression, a)
	require.True(t, mr.Exists(key))
	assert.Equal(t, time.Minute, mr.TTL(key))

	second, err := svc.Predict(context.Background(), a, models.VariantLogisticRegression)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Probability, second.Probability)
	assert.Equal(t, first.Interpretation, second.Interpretation)
}

func TestService_PredictWithoutCache(t *testing.T) {
	svc := createTestService(t, nil, time.Minute)

	for i := 0; i < 2; i++ {
		result, err := svc.Predict(context.Background(), predictiontest.Applicant(), "")
		require.NoError(t, err)
		assert.False(t, result.Cached)
	}
	assert.NoError(t, svc.Ping(context.Background()))
}

func TestService_ZeroTTLDisablesCache(t *testing.T) {
	mr, client := setupRedis(t)
	svc := createTestService(t, client, 0)

	_, err := svc.Predict(context.Background(), predictiontest.Applicant(), "")
	require.NoError(t, err)
	assert.Empty(t, mr.Keys())
}

func TestService_CacheFailureDoesNotFailRequest(t *testing.T) {
	mr, client := setupRedis(t)
	svc := createTestService(t, client, time.Minute)
	mr.SetError("LOADING redis is loading the dataset")

	result, err := svc.Predict(context.Background(), predictiontest.Applicant(), "")
	require.NoError(t, err)
	assert.False(t, result.Cached)
	assert.InDelta(t, predictiontest.GoodCreditProbability, result.Probability, 0.01)
}

func TestService_CorruptCacheEntryIsRecomputed(t *testing.T) {
	mr, client := setupRedis(t)
	svc := createTestService(t, client, time.Minute)
	a := predictiontest.Applicant()

	key := CacheKey(svc.SchemaVersion(), models.VariantLogisticRegression, a)
	require.NoError(t, mr.Set(key, "{not json"))

	result, err := svc.Predict(context.Background(), a, "")
	require.NoError(t, err)
	assert.False(t, result.Cached)
}

func TestService_PredictFailures(t *testing.T) {
	svc := createTestService(t, nil, 0)

	t.Run("unknown variant", func(t *testing.T) {
		_, err := svc.Predict(context.Background(), predictiontest.Applicant(), "xgboost")
		require.Error(t, err)
		var stdErr *apperrors.StandardError
		require.True(t, errors.As(err, &stdErr))
		assert.Equal(t, apperrors.ErrCodeModelVariantNotFound, stdErr.Code)
	})

	t.Run("prediction failed", func(t *testing.T) {
		a := predictiontest.Applicant()
		a.LoanAmount = nil
		_, err := svc.Predict(context.Background(), a, "")
		require.Error(t, err)
		var stdErr *apperrors.StandardError
		require.True(t, errors.As(err, &stdErr))
		assert.Equal(t, apperrors.ErrCodePredictionFailed, stdErr.Code)
	})
}

func TestService_Score(t *testing.T) {
	svc := createTestService(t, nil, 0)
	a := predictiontest.Applicant()
	a.CreditHistory = "0.0"
	a.ApplicantIncome = models.Float(2500)
	a.LoanAmount = models.Float(250)

	scored, err := svc.Score(context.Background(), a, "")
	require.NoError(t, err)
	assert.InDelta(t, predictiontest.BadCreditProbability, scored.Probability, 0.01)
	assert.Equal(t, advice.VeryUnlikely, scored.Interpretation)
	assert.Equal(t, []string{advice.LowIncomeAdvice, advice.HighAmountAdvice, advice.CreditHistoryAdvice}, scored.Advice)
	assert.Equal(t, scored.Probability, scored.Gauge.Value)
	assert.Len(t, scored.Gauge.Steps, 5)
}

func TestService_ScoreZeroIncomeMinimalAmount(t *testing.T) {
	svc := createTestService(t, nil, 0)
	a := predictiontest.Applicant()
	a.ApplicantIncome = models.Float(0)
	a.LoanAmount = models.Float(1)
	a.CreditHistory = "0.0"

	scored, err := svc.Score(context.Background(), a, "")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, scored.Probability, 0.0)
	assert.LessOrEqual(t, scored.Probability, 100.0)
	assert.Contains(t,
		[]string{advice.VeryUnlikely, advice.Unlikely, advice.SomewhatLikely, advice.Likely, advice.VeryLikely},
		scored.Interpretation)
	assert.Equal(t, []string{advice.LowIncomeAdvice, advice.CreditHistoryAdvice}, scored.Advice)
	assert.NotContains(t, scored.Advice, advice.HighAmountAdvice)
}

func TestService_Models(t *testing.T) {
	svc := createTestService(t, nil, 0)
	catalog := svc.Models()

	assert.Equal(t, svc.SchemaVersion(), catalog.SchemaVersion)
	assert.Equal(t, models.VariantLogisticRegression, catalog.DefaultVariant)
	assert.Len(t, catalog.Features, 20)
	require.Len(t, catalog.Models, 2)
	assert.Equal(t, models.VariantLogisticRegression, catalog.Models[0].Variant)
	assert.True(t, catalog.Models[0].Default)
	require.NotNil(t, catalog.Models[0].Metrics)
	assert.False(t, catalog.Models[1].Default)
	assert.Nil(t, catalog.Models[1].Metrics)
}

func TestService_Ping(t *testing.T) {
	db, mock := redismock.NewClientMock()
	svc := createTestService(t, db, time.Minute)

	mock.ExpectPing().SetVal("PONG")
	assert.NoError(t, svc.Ping(context.Background()))

	mock.ExpectPing().SetErr(errors.New("connection refused"))
	err := svc.Ping(context.Background())
	require.Error(t, err)
	var stdErr *apperrors.StandardError
	require.True(t, errors.As(err, &stdErr))
	assert.Equal(t, apperrors.ErrCodeCacheUnavailable, stdErr.Code)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_PurgeStale(t *testing.T) {
	mr, client := setupRedis(t)
	svc := createTestService(t, client, time.Minute)
	a := predictiontest.Applicant()

	_, err := svc.Predict(context.Background(), a, "")
	require.NoError(t, err)
	current := CacheKey(svc.SchemaVersion(), models.VariantLogisticRegression, a)
	old := CacheKey("retired-schema", models.VariantLogisticRegression, a)
	require.NoError(t, mr.Set(old, "{}"))
	require.NoError(t, mr.Set("session:abc", "keep"))

	n, err := svc.PurgeStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, mr.Exists(current))
	assert.False(t, mr.Exists(old))
	assert.True(t, mr.Exists("session:abc"))

	n, err = createTestService(t, nil, 0).PurgeStale(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
