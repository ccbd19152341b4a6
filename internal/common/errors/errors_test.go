// internal/common/errors/errors_test.go
package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errScalerWidth = stderrors.New("scaler expects 20 features, got 19")

func TestNewPredictionFailedError_KeepsCause(t *testing.T) {
	err := NewPredictionFailedError(ErrCodeScalingFailed, errScalerWidth)

	assert.Equal(t, ErrCodePredictionFailed, err.Code)
	assert.False(t, err.Retryable)
	assert.Equal(t, "SCALING_FAILED", err.Metadata["stage"])
	assert.Contains(t, err.Error(), "scaler expects 20 features")
	assert.True(t, stderrors.Is(err, errScalerWidth))
}

func TestNormalize(t *testing.T) {
	t.Run("standard error found through wrapping", func(t *testing.T) {
		inner := NewDatabaseInsertFailedError(stderrors.New("connection reset"))
		wrapped := fmt.Errorf("record prediction: %w", inner)

		got := Normalize(wrapped)
		assert.Same(t, inner, got)
	})

	t.Run("plain error becomes internal", func(t *testing.T) {
		got := Normalize(stderrors.New("boom"))
		assert.Equal(t, ErrCodeInternal, got.Code)
		assert.Equal(t, "boom", got.Details)
	})
}

func TestConvertToBPMNError(t *testing.T) {
	tests := []struct {
		name        string
		err         *StandardError
		wantCode    string
		wantRetries int
	}{
		{
			name:        "prediction failure is routed, not retried",
			err:         NewPredictionFailedError(ErrCodeEncodingFailed, stderrors.New("Gender absent")),
			wantCode:    "PREDICTION_FAILED",
			wantRetries: 0,
		},
		{
			name:        "insert failure is retried",
			err:         NewDatabaseInsertFailedError(stderrors.New("deadlock")),
			wantCode:    "DATABASE_INSERT_FAILED",
			wantRetries: 3,
		},
		{
			name:        "unknown code falls back to itself",
			err:         &StandardError{Code: "SOMETHING_ELSE", Message: "x"},
			wantCode:    "SOMETHING_ELSE",
			wantRetries: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bpmn := ConvertToBPMNError(tt.err)
			assert.Equal(t, tt.wantCode, bpmn.Code)
			assert.Equal(t, tt.wantRetries, bpmn.Retries)

			vars := bpmn.ToErrorVariables()
			assert.Equal(t, tt.wantCode, vars["errorCode"])
			assert.Equal(t, string(tt.err.Code), vars["originalErrorCode"])
		})
	}
}

func TestConvertToBPMNError_CarriesStage(t *testing.T) {
	bpmn := ConvertToBPMNError(NewPredictionFailedError(ErrCodeSchemaVersionMismatch, stderrors.New("v1 != v2")))
	require.Contains(t, bpmn.ErrorVariables, "failedStage")
	assert.Equal(t, "SCHEMA_VERSION_MISMATCH", bpmn.ErrorVariables["failedStage"])
}

func TestGetErrorCategory(t *testing.T) {
	assert.Equal(t, "MODEL", GetErrorCategory(ErrCodeArtifactLoadFailed))
	assert.Equal(t, "PREDICTION", GetErrorCategory(ErrCodePredictionFailed))
	assert.Equal(t, "DATABASE", GetErrorCategory(ErrCodeDatabaseInsertFailed))
	assert.Equal(t, "VALIDATION", GetErrorCategory(ErrCodeApplicationInvalid))
	assert.True(t, IsRetryableErrorCode(ErrCodeSearchIndexFailed))
	assert.False(t, IsRetryableErrorCode(ErrCodePredictionFailed))
}

func TestNextRetries(t *testing.T) {
	tests := []struct {
		name       string
		jobRetries int32
		allowed    int
		want       int32
		wantRetry  bool
	}{
		{name: "not retryable", jobRetries: 3, allowed: 0, wantRetry: false},
		{name: "capped by allowed", jobRetries: 10, allowed: 3, want: 3, wantRetry: true},
		{name: "counts down from job retries", jobRetries: 3, allowed: 3, want: 2, wantRetry: true},
		{name: "last attempt throws", jobRetries: 1, allowed: 3, wantRetry: false},
		{name: "no attempts left", jobRetries: 0, allowed: 3, wantRetry: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, retry := NextRetries(tt.jobRetries, tt.allowed)
			assert.Equal(t, tt.wantRetry, retry)
			assert.Equal(t, tt.want, got)
		})
	}
}
