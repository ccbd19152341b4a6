// internal/workers/loan/validate-loan-application/handler.go
package validateloanapplication

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"loan-eligibility/internal/common/logger"
	"loan-eligibility/internal/common/metrics"
	"loan-eligibility/internal/common/validation"
)

const (
	TaskType = "validate-loan-application"
)

var (
	ErrApplicantMissing = errors.New("APPLICATION_VALIDATION_FAILED")
)

// Handler checks the job variables against the activity input schema, then
// the applicant against the field schema and the domain rules. An invalid
// application completes the job with isValid=false so the process can route
// on it.
type Handler struct {
	config    *Config
	input     *validation.SchemaValidator
	applicant *validation.SchemaValidator
	logger    logger.Logger
}

// NewHandler builds a Handler. inputSchema may be nil when no registry is
// loaded.
func NewHandler(config *Config, inputSchema *validation.SchemaValidator, log logger.Logger) (*Handler, error) {
	applicant, err := validation.NewSchemaValidator(validation.ApplicantSchema())
	if err != nil {
		return nil, fmt.Errorf("compile applicant schema: %w", err)
	}
	return &Handler{
		config:    config,
		input:     inputSchema,
		applicant: applicant,
		logger:    log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}, nil
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

	if result := h.validateVariables(job.Variables); !result.Valid {
		h.completeJob(client, job, &Output{IsValid: false, ValidationErrors: result.Errors})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.failJob(client, job, "APPLICATION_VALIDATION_FAILED", err.Error(), 0)
		return
	}

	h.completeJob(client, job, output)
}

// validateVariables checks the whole variable document against the activity
// input schema.
func (h *Handler) validateVariables(variables string) *validation.ValidationResult {
	if h.input == nil {
		return &validation.ValidationResult{Valid: true}
	}
	var document interface{}
	if err := json.Unmarshal([]byte(variables), &document); err != nil {
		return &validation.ValidationResult{
			Errors: []validation.ValidationError{{Field: "(root)", Message: err.Error(), Code: "INVALID_JSON"}},
		}
	}
	return h.input.Validate(document)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if len(input.Applicant) == 0 || string(input.Applicant) == "null" {
		return nil, fmt.Errorf("%w: applicant is required", ErrApplicantMissing)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	applicant, result := validation.ValidateApplicantDocument(input.Applicant, h.applicant)
	if !result.Valid {
		h.logger.Info("application rejected", map[string]interface{}{
			"errors": result.GetErrorMessages(),
		})
		return &Output{IsValid: false, ValidationErrors: result.Errors}, nil
	}

	return &Output{
		IsValid:          true,
		ValidationErrors: []validation.ValidationError{},
		Applicant:        applicant,
	}, nil
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
		"jobKey":  job.Key,
		"isValid": output.IsValid,
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
