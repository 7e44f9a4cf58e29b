// internal/workers/matching/get-opportunity-suggestions/handler.go
package getopportunitysuggestions

import (
	"context"
	"encoding/json"
	"time"

	"funding-match-workers/internal/common/camunda"
	apperrors "funding-match-workers/internal/common/errors"
	"funding-match-workers/internal/common/logger"
	"funding-match-workers/internal/common/metrics"
	"funding-match-workers/internal/common/validation"
	"funding-match-workers/internal/matching"
	"funding-match-workers/internal/stores"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "get-opportunity-suggestions"
)

type Handler struct {
	config       *Config
	orchestrator *matching.Orchestrator
	errHandler   *apperrors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, orchestrator *matching.Orchestrator, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		orchestrator: orchestrator,
		errHandler:   apperrors.NewErrorHandler(l),
		logger:       l,
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

	input, err := h.parseInput(job.Variables)
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

func (h *Handler) parseInput(variables string) (*Input, error) {
	result, err := validation.SuggestionsInput.ValidateJSON([]byte(variables))
	if err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error())
	}
	if !result.Valid {
		return nil, apperrors.NewInvalidInputError(result.Error())
	}

	var input Input
	if err := json.Unmarshal([]byte(variables), &input); err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error())
	}
	return &input, nil
}

// execute never fails on data problems: fetch errors and malformed records come back as
// diagnostics on an otherwise valid result.
func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	req := matching.SuggestRequest{
		UserID:     input.UserID,
		MaxResults: input.MaxResults,
	}

	var decodeDiags []matching.Diagnostic
	if input.Catalog != nil {
		req.Catalog, decodeDiags = stores.DecodeCatalog(input.Catalog)
	}
	if input.Intent != nil || input.Profile != nil {
		req.Context = matching.ContextFor(input.UserID, input.Intent, input.Profile)
	}

	out := h.orchestrator.Suggest(ctx, req)
	if len(decodeDiags) > 0 {
		out.Diagnostics = append(decodeDiags, out.Diagnostics...)
	}

	h.logger.Info("suggestions ready", map[string]interface{}{
		"requestId":   out.RequestID,
		"userId":      input.UserID,
		"strategy":    out.Strategy,
		"results":     len(out.Results),
		"diagnostics": len(out.Diagnostics),
	})
	return &Output{Suggestions: out}, nil
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
