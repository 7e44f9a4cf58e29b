// internal/matching/orchestrator.go
package matching

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"funding-match-workers/internal/common/logger"
	"funding-match-workers/internal/common/metrics"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxResults applies when a caller passes a non-positive maxResults.
const DefaultMaxResults = 5

// CatalogSource supplies the opportunity catalog. Diagnostics describe records it dropped.
type CatalogSource interface {
	ListOpportunities(ctx context.Context) ([]Opportunity, []Diagnostic, error)
}

// ContextSource resolves what is known about an identified applicant.
type ContextSource interface {
	ResolveContext(ctx context.Context, userID string) (ApplicantContext, error)
}

// Orchestrator picks a strategy for the caller's context, scores, sorts and truncates.
type Orchestrator struct {
	engine     *Engine
	weights    *WeightsProvider
	catalog    CatalogSource
	contexts   ContextSource
	defaultMax int
	logger     logger.Logger
	tracer     trace.Tracer
}

type Option func(*Orchestrator)

func WithCatalogSource(s CatalogSource) Option {
	return func(o *Orchestrator) { o.catalog = s }
}

func WithContextSource(s ContextSource) Option {
	return func(o *Orchestrator) { o.contexts = s }
}

func WithDefaultMaxResults(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.defaultMax = n
		}
	}
}

func NewOrchestrator(engine *Engine, weights *WeightsProvider, log logger.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		engine:     engine,
		weights:    weights,
		defaultMax: DefaultMaxResults,
		logger:     log.WithFields(map[string]interface{}{"component": "suggestion-orchestrator"}),
		tracer:     otel.Tracer("funding-match-workers/matching"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Weights exposes the provider the orchestrator scores with.
func (o *Orchestrator) Weights() *WeightsProvider {
	return o.weights
}

// SuggestRequest describes one suggestion call. Nil Catalog or Context are fetched from the
// configured sources.
type SuggestRequest struct {
	UserID     string
	MaxResults int
	Catalog    []Opportunity
	Context    ApplicantContext
}

// Suggest fetches whatever the request does not carry, then ranks. Fetch failures and
// cancellation produce an empty result with a diagnostic instead of an error.
func (o *Orchestrator) Suggest(ctx context.Context, req SuggestRequest) Suggestions {
	ctx, span := o.tracer.Start(ctx, "matching.Suggest",
		trace.WithAttributes(attribute.Bool("anonymous", req.UserID == "")))
	defer span.End()

	requestID := uuid.New().String()
	log := o.logger.WithFields(map[string]interface{}{"requestId": requestID, "userId": req.UserID})

	catalog := req.Catalog
	actx := req.Context
	var sourceDiags []Diagnostic

	g, gctx := errgroup.WithContext(ctx)
	if catalog == nil && o.catalog != nil {
		g.Go(func() error {
			opps, diags, err := o.catalog.ListOpportunities(gctx)
			if err != nil {
				return asFetchError("catalog", err)
			}
			catalog, sourceDiags = opps, diags
			return nil
		})
	}
	if actx == nil {
		switch {
		case req.UserID == "":
			actx = NoIdentity{}
		case o.contexts != nil:
			g.Go(func() error {
				resolved, err := o.contexts.ResolveContext(gctx, req.UserID)
				if err != nil {
					return asFetchError("applicant", err)
				}
				actx = resolved
				return nil
			})
		default:
			actx = ContextFor(req.UserID, nil, nil)
		}
	}

	err := g.Wait()
	if err == nil && ctx.Err() != nil {
		err = &DataFetchError{Source: "request", Err: ctx.Err()}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		log.Warn("suggestion inputs unavailable, returning empty result", map[string]interface{}{"error": err})
		metrics.SuggestionsServed.WithLabelValues(string(StrategyNone)).Inc()
		return Suggestions{
			RequestID:   requestID,
			Strategy:    StrategyNone,
			Results:     []MatchResult{},
			Diagnostics: []Diagnostic{DiagnosticFromError("", err)},
		}
	}

	out := o.GetSuggestions(ctx, catalog, actx, req.MaxResults)
	out.RequestID = requestID
	if len(sourceDiags) > 0 {
		out.Diagnostics = append(sourceDiags, out.Diagnostics...)
	}

	span.SetAttributes(
		attribute.String("strategy", string(out.Strategy)),
		attribute.Int("results", len(out.Results)),
		attribute.Int("diagnostics", len(out.Diagnostics)),
	)
	return out
}

// GetSuggestions ranks an in-memory catalog for the given context. It never fails; records that
// cannot be scored are reported in Diagnostics.
func (o *Orchestrator) GetSuggestions(ctx context.Context, catalog []Opportunity, actx ApplicantContext, maxResults int) Suggestions {
	start := time.Now()
	limit := maxResults
	if limit <= 0 {
		limit = o.defaultMax
	}

	out := Suggestions{Strategy: StrategyNone, Results: []MatchResult{}}
	if len(catalog) == 0 {
		o.observe(out, start)
		return out
	}
	if actx == nil {
		actx = NoIdentity{}
	}

	valid, diags := normalizeCatalog(catalog)
	out.Diagnostics = diags

	var scored []MatchResult
	switch c := actx.(type) {
	case NoIdentity:
		out.Strategy = StrategyRecency
		out.Results = RankByRecency(valid, limit)
		o.observe(out, start)
		return out

	case IntentContext:
		intent, err := NormalizeIntent(c.Intent)
		if err != nil {
			// A broken intent degrades to the profile strategy rather than failing the request.
			out.Diagnostics = append(out.Diagnostics, DiagnosticFromError("", err))
			o.logger.Warn("intent record unusable, falling back to profile scoring", map[string]interface{}{
				"error": err,
			})
			profile := CoarseProfile{UserID: c.Intent.UserID}
			out.Strategy = StrategyProfile
			scored, diags = scoreEach(valid, func(opp Opportunity) MatchResult { return ScoreProfile(opp, profile) })
			break
		}
		weights := o.weights.GetWeights(ctx)
		at := o.engine.Now()
		out.Strategy = StrategyIntent
		scored, diags = scoreEach(valid, func(opp Opportunity) MatchResult { return ScoreAt(opp, intent, weights, at) })

	case ProfileContext:
		profile := c.Profile
		out.Strategy = StrategyProfile
		scored, diags = scoreEach(valid, func(opp Opportunity) MatchResult { return ScoreProfile(opp, profile) })

	default:
		o.logger.Warn("unknown applicant context, treating as anonymous", map[string]interface{}{
			"type": fmt.Sprintf("%T", actx),
		})
		out.Strategy = StrategyRecency
		out.Results = RankByRecency(valid, limit)
		o.observe(out, start)
		return out
	}

	out.Diagnostics = append(out.Diagnostics, diags...)
	out.Results = rankAndTruncate(scored, limit)
	o.observe(out, start)
	return out
}

func (o *Orchestrator) observe(out Suggestions, start time.Time) {
	metrics.SuggestionsServed.WithLabelValues(string(out.Strategy)).Inc()
	metrics.SuggestionDuration.WithLabelValues(string(out.Strategy)).Observe(time.Since(start).Seconds())
	for _, d := range out.Diagnostics {
		metrics.OpportunitiesSkipped.WithLabelValues(d.Code).Inc()
	}

	fields := map[string]interface{}{
		"strategy":    string(out.Strategy),
		"results":     len(out.Results),
		"diagnostics": len(out.Diagnostics),
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if len(out.Diagnostics) > 0 {
		o.logger.Warn("suggestions ranked with skipped records", fields)
		return
	}
	o.logger.Debug("suggestions ranked", fields)
}

func normalizeCatalog(catalog []Opportunity) ([]Opportunity, []Diagnostic) {
	valid := make([]Opportunity, 0, len(catalog))
	var diags []Diagnostic
	for _, raw := range catalog {
		opp, err := NormalizeOpportunity(raw)
		if err != nil {
			diags = append(diags, DiagnosticFromError(raw.ID, err))
			continue
		}
		valid = append(valid, opp)
	}
	return valid, diags
}

func scoreEach(catalog []Opportunity, score func(Opportunity) MatchResult) ([]MatchResult, []Diagnostic) {
	results := make([]MatchResult, 0, len(catalog))
	var diags []Diagnostic
	for _, opp := range catalog {
		res, err := safeScore(opp, score)
		if err != nil {
			diags = append(diags, DiagnosticFromError(opp.ID, err))
			continue
		}
		results = append(results, res)
	}
	return results, diags
}

func safeScore(opp Opportunity, score func(Opportunity) MatchResult) (res MatchResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scoring opportunity %s: %v", opp.ID, r)
		}
	}()
	return score(opp), nil
}

// rankAndTruncate sorts by score descending. Equal scores keep catalog order.
func rankAndTruncate(results []MatchResult, limit int) []MatchResult {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

func asFetchError(source string, err error) error {
	var fetch *DataFetchError
	if errors.As(err, &fetch) {
		return err
	}
	return &DataFetchError{Source: source, Err: err}
}
