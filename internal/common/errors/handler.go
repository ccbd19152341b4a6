// internal/common/errors/handler.go
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// ErrorHandler reports a failed loan job back to Zeebe.
type ErrorHandler struct {
	logger Logger
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Normalize returns the first StandardError in err's chain, or wraps err as
// an internal error.
func Normalize(err error) *StandardError {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return NewInternalError(err)
}

// NextRetries decides how a failed job is reported. It returns the retry
// count to fail the job with, or false when the error should be thrown as a
// BPMN error instead. The count always drops below what the job has left, so
// a retried job cannot loop; once retries run out the process routes on the
// error code.
func NextRetries(jobRetries int32, allowed int) (int32, bool) {
	if allowed <= 0 || jobRetries <= 1 {
		return 0, false
	}
	next := jobRetries - 1
	if int32(allowed) < next {
		next = int32(allowed)
	}
	return next, true
}

// HandleJobError fails the job for another attempt when the error is
// retryable and attempts remain, and throws a BPMN error otherwise. The
// error variables ride along either way.
func (h *ErrorHandler) HandleJobError(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	stdErr := Normalize(err)
	bpmnErr := ConvertToBPMNError(stdErr)
	retries, retry := NextRetries(job.Retries, bpmnErr.Retries)
	h.logError(job, stdErr, bpmnErr, retry)

	vars := bpmnErr.ToErrorVariables()
	var sendErr error
	if retry {
		cmd := client.NewFailJobCommand().JobKey(job.Key).Retries(retries).ErrorMessage(bpmnErr.Message)
		if withVars, err := cmd.VariablesFromMap(vars); err == nil {
			_, sendErr = withVars.Send(ctx)
		} else {
			_, sendErr = cmd.Send(ctx)
		}
	} else {
		cmd := client.NewThrowErrorCommand().JobKey(job.Key).ErrorCode(bpmnErr.Code).ErrorMessage(bpmnErr.Message)
		body, marshalErr := json.Marshal(vars)
		if withVars, err := cmd.VariablesFromString(string(body)); marshalErr == nil && err == nil {
			_, sendErr = withVars.Send(ctx)
		} else {
			_, sendErr = cmd.Send(ctx)
		}
	}
	if sendErr != nil {
		h.logger.Error("failed to report job failure", map[string]interface{}{
			"jobKey": job.Key,
			"error":  sendErr.Error(),
		})
	}
}

func (h *ErrorHandler) logError(job entities.Job, stdErr *StandardError, bpmnErr *BPMNError, retry bool) {
	h.logger.Error("loan job failed", map[string]interface{}{
		"jobKey":             job.Key,
		"jobType":            job.Type,
		"errorCode":          string(stdErr.Code),
		"bpmnErrorCode":      bpmnErr.Code,
		"message":            bpmnErr.Message,
		"details":            stdErr.Details,
		"willRetry":          retry,
		"retriesLeft":        job.Retries,
		"errorCategory":      GetErrorCategory(stdErr.Code),
		"processInstanceKey": job.ProcessInstanceKey,
	})
}
