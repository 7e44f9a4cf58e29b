// internal/workers/matching/calculate-opportunity-match/handler.go
package calculateopportunitymatch

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
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
	TaskType = "calculate-opportunity-match"
)

// OpportunityGetter looks up a single catalog entry.
type OpportunityGetter interface {
	GetOpportunity(ctx context.Context, id string) (matching.Opportunity, error)
}

type Handler struct {
	config     *Config
	engine     *matching.Engine
	weights    *matching.WeightsProvider
	catalog    OpportunityGetter
	errHandler *apperrors.ErrorHandler
	logger     logger.Logger
}

func NewHandler(config *Config, engine *matching.Engine, weights *matching.WeightsProvider, catalog OpportunityGetter, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		engine:     engine,
		weights:    weights,
		catalog:    catalog,
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

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	opp, err := h.resolveOpportunity(ctx, input)
	if err != nil {
		return nil, err
	}
	if opp, err = matching.NormalizeOpportunity(opp); err != nil {
		return nil, err
	}

	intent, err := matching.NormalizeIntent(input.Intent)
	if err != nil {
		return nil, err
	}

	weights := h.weights.GetWeights(ctx)
	if len(input.Weights) > 0 {
		var unknown []string
		weights, unknown = matching.ApplyOverrides(weights, input.Weights)
		if len(unknown) > 0 {
			return nil, apperrors.NewInvalidWeightsError("unknown criteria: " + strings.Join(unknown, ", "))
		}
		if err := weights.Validate(); err != nil {
			return nil, apperrors.NewInvalidWeightsError(err.Error())
		}
	}

	result := h.engine.Score(opp, intent, weights)

	h.logger.Info("match score calculated", map[string]interface{}{
		"userId":        intent.UserID,
		"opportunityId": opp.ID,
		"score":         result.Score,
	})
	return &Output{MatchResult: result}, nil
}

func (h *Handler) resolveOpportunity(ctx context.Context, input *Input) (matching.Opportunity, error) {
	if len(input.Opportunity) > 0 && string(input.Opportunity) != "null" {
		return stores.DecodeOpportunity(input.OpportunityID, input.Opportunity)
	}
	if input.OpportunityID == "" {
		return matching.Opportunity{}, apperrors.NewInvalidInputError("opportunity or opportunityId is required")
	}
	if h.catalog == nil {
		return matching.Opportunity{}, apperrors.NewInvalidInputError("no catalog configured to look up " + input.OpportunityID)
	}

	opp, err := h.catalog.GetOpportunity(ctx, input.OpportunityID)
	var (
		missing   *stores.IndexMissingError
		searchErr *apperrors.StandardError
	)
	switch {
	case err == nil:
		return opp, nil
	case errors.Is(err, stores.ErrOpportunityNotFound):
		return matching.Opportunity{}, apperrors.NewOpportunityNotFoundError(input.OpportunityID)
	case errors.As(err, &missing):
		return matching.Opportunity{}, apperrors.NewIndexNotFoundError(missing.Index)
	case errors.Is(err, context.DeadlineExceeded):
		return matching.Opportunity{}, apperrors.NewSearchTimeoutError("opportunity-lookup")
	case errors.As(err, &searchErr):
		return matching.Opportunity{}, searchErr
	}
	return opp, err
}

func parseInput(variables string) (*Input, error) {
	result, err := validation.MatchInput.ValidateJSON([]byte(variables))
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
