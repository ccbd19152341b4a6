// internal/workers/loan/record-loan-prediction/handler.go
package recordloanprediction

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"

	"loan-eligibility/internal/common/database"
	apperrors "loan-eligibility/internal/common/errors"
	"loan-eligibility/internal/common/logger"
	"loan-eligibility/internal/common/metrics"
	"loan-eligibility/internal/models"
)

const (
	TaskType = "record-loan-prediction"
)

type Handler struct {
	config       *Config
	db           *sql.DB
	es           *database.ElasticsearchClient
	errorHandler *apperrors.ErrorHandler
	logger       logger.Logger
}

// NewHandler builds a Handler. es may be nil, in which case records are only
// written to Postgres.
func NewHandler(config *Config, db *sql.DB, es *database.ElasticsearchClient, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		db:           db,
		es:           es,
		errorHandler: apperrors.NewErrorHandler(log),
		logger:       log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.failJob(client, job, "PARSE_ERROR", fmt.Sprintf("parse input: %v", err), 0)
		return
	}
	if input.PredictionID == "" {
		// retries of the same task instance must hit the same row
		input.PredictionID = jobPredictionID(job)
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		stdErr := apperrors.Normalize(err)
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, apperrors.ConvertToBPMNError(stdErr).Code).Inc()
		h.errorHandler.HandleJobError(ctx, client, job, stdErr)
		return
	}

	h.completeJob(client, job, output)
}

func jobPredictionID(job entities.Job) string {
	name := fmt.Sprintf("%d/%d", job.ProcessInstanceKey, job.ElementInstanceKey)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	predictionID := input.PredictionID
	if predictionID == "" {
		predictionID = uuid.New().String()
	}
	recordedAt := time.Now().UTC()
	advice := input.Advice
	if advice == nil {
		advice = []string{}
	}

	record := models.PredictionRecord{
		ID:             predictionID,
		Applicant:      input.Applicant.Normalize(),
		Probability:    *input.Probability,
		Interpretation: input.Interpretation,
		ModelVariant:   input.ModelVariant,
		SchemaVersion:  input.SchemaVersion,
		Advice:         advice,
		CreatedAt:      recordedAt.Format(time.RFC3339),
	}

	applicantJSON, err := json.Marshal(record.Applicant)
	if err != nil {
		return nil, apperrors.NewDatabaseInsertFailedError(fmt.Errorf("marshal applicant: %w", err))
	}
	adviceJSON, err := json.Marshal(advice)
	if err != nil {
		return nil, apperrors.NewDatabaseInsertFailedError(fmt.Errorf("marshal advice: %w", err))
	}

	_, err = h.db.ExecContext(ctx, `
		INSERT INTO loan_predictions (
			id, applicant, probability, interpretation,
			model_variant, schema_version, advice, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		predictionID,
		applicantJSON,
		record.Probability,
		record.Interpretation,
		record.ModelVariant,
		record.SchemaVersion,
		adviceJSON,
		recordedAt,
	)
	metrics.RecordsWritten.WithLabelValues("postgres", metrics.Outcome(err)).Inc()
	if err != nil {
		return nil, apperrors.NewDatabaseInsertFailedError(err)
	}

	// The search copy is best effort; Postgres is the system of record.
	indexed := false
	if h.es != nil && h.config.IndexEnabled {
		err := database.IndexDocument(ctx, h.es.Client, h.es.Index, predictionID, record)
		metrics.RecordsWritten.WithLabelValues("elasticsearch", metrics.Outcome(err)).Inc()
		if err != nil {
			h.logger.Warn("prediction not indexed", map[string]interface{}{
				"predictionId": predictionID,
				"error":        apperrors.NewSearchIndexFailedError(h.es.Index, err).Error(),
			})
		} else {
			indexed = true
		}
	}

	h.logger.Info("prediction recorded", map[string]interface{}{
		"predictionId": predictionID,
		"modelVariant": record.ModelVariant,
		"probability":  record.Probability,
		"indexed":      indexed,
	})

	return &Output{
		PredictionID: predictionID,
		RecordedAt:   record.CreatedAt,
		Indexed:      indexed,
	}, nil
}

func validateInput(input *Input) error {
	var missing []string
	if input.Applicant == nil {
		missing = append(missing, "applicant")
	}
	if input.Probability == nil {
		missing = append(missing, "probability")
	}
	if input.Interpretation == "" {
		missing = append(missing, "interpretation")
	}
	if input.ModelVariant == "" {
		missing = append(missing, "modelVariant")
	}
	if input.SchemaVersion == "" {
		missing = append(missing, "schemaVersion")
	}
	if len(missing) > 0 {
		return apperrors.NewApplicationValidationFailedError("missing " + strings.Join(missing, ", "))
	}
	if p := *input.Probability; p < 0 || p > 100 {
		return apperrors.NewApplicationValidationFailedError(fmt.Sprintf("probability %v outside [0, 100]", p))
	}
	if input.PredictionID != "" {
		if _, err := uuid.Parse(input.PredictionID); err != nil {
			return apperrors.NewApplicationValidationFailedError("predictionId must be a UUID")
		}
	}
	return nil
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	_, err = cmd.Send(context.Background())
	if err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	h.logger.Info("job completed successfully", map[string]interface{}{
		"jobKey": job.Key,
	})
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, errorCode, errorMessage string, retries int32) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, errorCode).Inc()
	h.logger.Error("job failed", map[string]interface{}{
		"jobKey":       job.Key,
		"errorCode":    errorCode,
		"errorMessage": errorMessage,
		"retries":      retries,
	})

	_, err := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(errorCode).
		ErrorMessage(errorMessage).
		Send(context.Background())
	if err != nil {
		h.logger.Error("failed to throw error", map[string]interface{}{
			"error": err,
		})
	}
}
