// Package errors provides standardized error handling for BPMN workflow integration.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Artifact / Prediction Errors
const (
	ErrCodeArtifactLoadFailed     ErrorCode = "ARTIFACT_LOAD_FAILED"
	ErrCodeEncodingFailed         ErrorCode = "ENCODING_FAILED"
	ErrCodeSchemaMismatch         ErrorCode = "SCHEMA_MISMATCH"
	ErrCodeSchemaVersionMismatch  ErrorCode = "SCHEMA_VERSION_MISMATCH"
	ErrCodeScalingFailed          ErrorCode = "SCALING_FAILED"
	ErrCodeModelInvocationFailed  ErrorCode = "MODEL_INVOCATION_FAILED"
	ErrCodePredictionFailed       ErrorCode = "PREDICTION_FAILED"
	ErrCodeModelVariantNotFound   ErrorCode = "MODEL_VARIANT_NOT_FOUND"
	ErrCodeTrainingFailed         ErrorCode = "TRAINING_FAILED"
	ErrCodeApplicationInvalid     ErrorCode = "APPLICATION_VALIDATION_FAILED"
	ErrCodeDatabaseConnection     ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeDatabaseInsertFailed   ErrorCode = "DATABASE_INSERT_FAILED"
	ErrCodeDatabaseQueryFailed    ErrorCode = "DATABASE_QUERY_FAILED"
	ErrCodeRecordNotFound         ErrorCode = "RECORD_NOT_FOUND"
	ErrCodeSearchIndexFailed      ErrorCode = "SEARCH_INDEX_FAILED"
	ErrCodeSearchQueryFailed      ErrorCode = "SEARCH_QUERY_FAILED"
	ErrCodeCacheUnavailable       ErrorCode = "CACHE_UNAVAILABLE"
	ErrCodeExternalServiceFailure ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeTimeout                ErrorCode = "TIMEOUT"
	ErrCodeInternal               ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Cause     error                  `json:"-"`
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is / errors.As.
func (e *StandardError) Unwrap() error {
	return e.Cause
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}

	for k, v := range e.ErrorVariables {
		vars[k] = v
	}

	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		Cause:     cause,
	}
}

func (e *StandardError) with(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = map[string]interface{}{}
	}
	e.Metadata[key] = value
	return e
}

// NewArtifactLoadError is fatal for the serving process and never retried.
func NewArtifactLoadError(artifact string, err error) *StandardError {
	return newError(ErrCodeArtifactLoadFailed, "Failed to load model artifacts",
		fmt.Sprintf("artifact: %s, error: %v", artifact, err), false, err).
		with("artifact", artifact)
}

// NewPredictionFailedError wraps any failure inside the inference path. The
// stage that failed is kept in metadata; callers only need the code.
func NewPredictionFailedError(stage ErrorCode, err error) *StandardError {
	return newError(ErrCodePredictionFailed, "Prediction failed", err.Error(), false, err).
		with("stage", string(stage))
}

func NewModelVariantNotFoundError(variant string, available []string) *StandardError {
	return newError(ErrCodeModelVariantNotFound, "Requested model variant is not loaded",
		fmt.Sprintf("variant: %s, available: [%s]", variant, strings.Join(available, ", ")), false, nil)
}

func NewTrainingFailedError(step string, err error) *StandardError {
	return newError(ErrCodeTrainingFailed, "Training pipeline failed",
		fmt.Sprintf("step: %s, error: %v", step, err), false, err).
		with("step", step)
}

func NewApplicationValidationFailedError(details string) *StandardError {
	return newError(ErrCodeApplicationInvalid, "Loan application validation failed", details, false, nil)
}

func NewDatabaseConnectionFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseConnection, "Database connection error", err.Error(), true, err)
}

func NewDatabaseInsertFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseInsertFailed, "Failed to persist prediction record", err.Error(), true, err)
}

func NewDatabaseQueryFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseQueryFailed, "Failed to read prediction records", err.Error(), true, err)
}

// NewRecordNotFoundError reports a prediction id with no stored record.
func NewRecordNotFoundError(id string) *StandardError {
	return newError(ErrCodeRecordNotFound, "Prediction record not found", "id: "+id, false, nil).
		with("id", id)
}

func NewSearchQueryFailedError(index string, err error) *StandardError {
	return newError(ErrCodeSearchQueryFailed, "Prediction search failed",
		fmt.Sprintf("index: %s, error: %v", index, err), true, err)
}

func NewSearchIndexFailedError(index string, err error) *StandardError {
	return newError(ErrCodeSearchIndexFailed, "Failed to index prediction record",
		fmt.Sprintf("index: %s, error: %v", index, err), true, err)
}

// NewCacheUnavailableError is informational; cache failures never fail a request.
func NewCacheUnavailableError(err error) *StandardError {
	return newError(ErrCodeCacheUnavailable, "Prediction cache unavailable", err.Error(), true, err)
}

func NewExternalServiceError(service string, err error) *StandardError {
	return newError(ErrCodeExternalServiceFailure, service+" service error", err.Error(), true, err)
}

func NewTimeoutError(service string, err error) *StandardError {
	return newError(ErrCodeTimeout, service+" operation timed out", err.Error(), true, err)
}

// NewInternalError is the non-retryable catch-all.
func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", err.Error(), false, err)
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// BPMNErrorMapping maps internal error codes to the error codes modelled on
// boundary events in the loan process.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeArtifactLoadFailed:     "ARTIFACT_LOAD_FAILED",
	ErrCodeEncodingFailed:         "PREDICTION_FAILED",
	ErrCodeSchemaMismatch:         "PREDICTION_FAILED",
	ErrCodeSchemaVersionMismatch:  "PREDICTION_FAILED",
	ErrCodeScalingFailed:          "PREDICTION_FAILED",
	ErrCodeModelInvocationFailed:  "PREDICTION_FAILED",
	ErrCodePredictionFailed:       "PREDICTION_FAILED",
	ErrCodeModelVariantNotFound:   "MODEL_VARIANT_NOT_FOUND",
	ErrCodeApplicationInvalid:     "APPLICATION_VALIDATION_FAILED",
	ErrCodeDatabaseConnection:     "DATABASE_CONNECTION_FAILED",
	ErrCodeDatabaseInsertFailed:   "DATABASE_INSERT_FAILED",
	ErrCodeDatabaseQueryFailed:    "DATABASE_QUERY_FAILED",
	ErrCodeSearchIndexFailed:      "SEARCH_INDEX_FAILED",
	ErrCodeSearchQueryFailed:      "SEARCH_QUERY_FAILED",
	ErrCodeExternalServiceFailure: "EXTERNAL_SERVICE_ERROR",
	ErrCodeTimeout:                "TIMEOUT",
}

// GetRetryCount returns the recommended retry count for an error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabaseConnection,
		ErrCodeDatabaseInsertFailed,
		ErrCodeDatabaseQueryFailed,
		ErrCodeSearchIndexFailed,
		ErrCodeSearchQueryFailed,
		ErrCodeExternalServiceFailure:
		return 3 // Retryable technical errors

	case ErrCodeTimeout, ErrCodeCacheUnavailable:
		return 2

	default:
		return 0 // Prediction and business errors: no retry
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	if stage, ok := stdErr.Metadata["stage"]; ok {
		vars["failedStage"] = stage
	}

	return &BPMNError{
		Code:           bpmnCode,
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "ARTIFACT") || strings.Contains(codeStr, "MODEL") || strings.Contains(codeStr, "TRAINING"):
		return "MODEL"
	case strings.Contains(codeStr, "PREDICTION") || strings.Contains(codeStr, "ENCODING") ||
		strings.Contains(codeStr, "SCHEMA") || strings.Contains(codeStr, "SCALING"):
		return "PREDICTION"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "RECORD"):
		return "DATABASE"
	case strings.Contains(codeStr, "SEARCH"):
		return "SEARCH"
	case strings.Contains(codeStr, "CACHE"):
		return "CACHE"
	case strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
