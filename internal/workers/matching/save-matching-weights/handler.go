// internal/workers/matching/save-matching-weights/handler.go
package savematchingweights

import (
	"context"
	"encoding/json"
	"time"

	"funding-match-workers/internal/admin"
	"funding-match-workers/internal/common/camunda"
	apperrors "funding-match-workers/internal/common/errors"
	"funding-match-workers/internal/common/logger"
	"funding-match-workers/internal/common/metrics"
	"funding-match-workers/internal/common/validation"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "save-matching-weights"
)

type Handler struct {
	config     *Config
	service    *admin.WeightsService
	errHandler *apperrors.ErrorHandler
	logger     logger.Logger
}

func NewHandler(config *Config, service *admin.WeightsService, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		service:    service,
		errHandler: apperrors.NewErrorHandler(l),
		logger:     l,
	}
}

// Handle processes one job and returns how it ended, as an apperrors.JobStatus value.
func (h *Handler) Handle(client worker.JobClient, job entities.Job) string {
	start := time.Now()
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	input, err := parseInput(job.Variables)
	if err != nil {
		return h.fail(ctx, client, job, err)
	}

	output, err := h.execute(ctx, input)
	if err != nil {
		return h.fail(ctx, client, job, err)
	}

	if err := h.completeJob(client, job, output); err != nil {
		return apperrors.JobStatusFailed
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	return apperrors.JobStatusCompleted
}

func parseInput(variables string) (*Input, error) {
	result, err := validation.WeightsInput.ValidateJSON([]byte(variables))
	if err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error())
	}
	if !result.Valid {
		return nil, apperrors.NewInvalidWeightsError(result.Error())
	}

	var input Input
	if err := json.Unmarshal([]byte(variables), &input); err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error())
	}
	return &input, nil
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	source := "worker"
	if input.UpdatedBy != "" {
		source = "worker:" + input.UpdatedBy
	}

	saved, err := h.service.Save(ctx, input.Weights, source)
	if err != nil {
		return nil, err
	}
	return &Output{Weights: saved.Weights, SavedAt: saved.SavedAt}, nil
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) error {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return err
	}
	err = camunda.ExecuteWithRetry(context.Background(), camunda.DefaultRetryConfig, func(ctx context.Context) error {
		_, err := cmd.Send(ctx)
		return err
	}, "complete job")
	if err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err,
		})
	}
	return err
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) string {
	bpmnErr := h.errHandler.HandleJobError(ctx, client, job, err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, bpmnErr.Code).Inc()
	return apperrors.Outcome(job, bpmnErr)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
