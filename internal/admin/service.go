// internal/admin/service.go
package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "funding-match-workers/internal/common/errors"
	"funding-match-workers/internal/common/logger"
	"funding-match-workers/internal/matching"
)

// ChangeNotifier tells operators about weight saves.
type ChangeNotifier interface {
	WeightsUpdated(ctx context.Context, source string, weights map[string]float64) error
	PartialSave(ctx context.Context, written []string, failed string, cause error) error
}

// Invalidator broadcasts that other processes must drop their cached weights.
type Invalidator interface {
	Publish(ctx context.Context, source string) error
}

// SaveResult is returned after a complete save.
type SaveResult struct {
	Weights map[string]float64 `json:"weights"`
	SavedAt time.Time          `json:"savedAt"`
}

// WeightsService is the single write path for weight overrides, shared by the HTTP API,
// the save-matching-weights worker and the CLI.
type WeightsService struct {
	provider    *matching.WeightsProvider
	notifier    ChangeNotifier
	invalidator Invalidator
	logger      logger.Logger
}

func NewWeightsService(provider *matching.WeightsProvider, notifier ChangeNotifier, invalidator Invalidator, log logger.Logger) *WeightsService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &WeightsService{
		provider:    provider,
		notifier:    notifier,
		invalidator: invalidator,
		logger:      log.WithFields(map[string]interface{}{"component": "weights-service"}),
	}
}

// Current returns the weights currently in effect.
func (s *WeightsService) Current(ctx context.Context) matching.WeightSet {
	return s.provider.GetWeights(ctx)
}

// ClearCache drops the local cache and asks every other process to do the same.
func (s *WeightsService) ClearCache(ctx context.Context, source string) {
	s.provider.ClearCache()
	s.broadcast(ctx, source)
}

// Save merges overrides into the current weights and persists the result. Unknown keys and
// invalid values are rejected with INVALID_WEIGHTS before anything is written.
func (s *WeightsService) Save(ctx context.Context, overrides map[string]float64, source string) (*SaveResult, error) {
	if len(overrides) == 0 {
		return nil, apperrors.NewInvalidWeightsError("no weights supplied")
	}

	next, unknown := matching.ApplyOverrides(s.provider.GetWeights(ctx), overrides)
	if len(unknown) > 0 {
		return nil, apperrors.NewInvalidWeightsError("unknown criteria: " + strings.Join(unknown, ", "))
	}
	if err := next.Validate(); err != nil {
		return nil, apperrors.NewInvalidWeightsError(err.Error())
	}

	if err := s.provider.SaveWeights(ctx, next); err != nil {
		var partial *matching.PartialPersistenceError
		if errors.As(err, &partial) {
			if nerr := s.notifier.PartialSave(ctx, partial.Written, partial.Failed, partial.Err); nerr != nil {
				s.logger.Warn("partial save notification failed", map[string]interface{}{"error": nerr})
			}
			// some keys may have changed in storage even though the local cache did not
			s.broadcast(ctx, source)
		}
		return nil, err
	}

	weights := next.ToMap()
	if err := s.notifier.WeightsUpdated(ctx, source, weights); err != nil {
		s.logger.Warn("weights update notification failed", map[string]interface{}{"error": err})
	}
	s.broadcast(ctx, source)

	s.logger.Info("weights updated", map[string]interface{}{
		"source":  source,
		"weights": weights,
	})
	return &SaveResult{Weights: weights, SavedAt: time.Now().UTC()}, nil
}

func (s *WeightsService) broadcast(ctx context.Context, source string) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Publish(ctx, source); err != nil {
		s.logger.Warn("weights invalidation broadcast failed", map[string]interface{}{
			"source": source,
			"error":  fmt.Sprintf("%v", err),
		})
	}
}

type noopNotifier struct{}

func (noopNotifier) WeightsUpdated(context.Context, string, map[string]float64) error { return nil }

func (noopNotifier) PartialSave(context.Context, []string, string, error) error { return nil }
