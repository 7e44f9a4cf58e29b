// internal/matching/provider.go
package matching

import (
	"context"
	"errors"
	"sync"

	"funding-match-workers/internal/common/logger"
	"funding-match-workers/internal/common/metrics"
)

// WeightStore persists weight overrides as name/value pairs.
type WeightStore interface {
	LoadWeights(ctx context.Context) (map[string]float64, error)
	SaveWeight(ctx context.Context, name string, value float64) error
}

// ErrNoWeightStore is returned by SaveWeights when the provider has nowhere to persist.
var ErrNoWeightStore = errors.New("no weight store configured")

// WeightsProvider memoizes the effective WeightSet until ClearCache is called.
type WeightsProvider struct {
	store  WeightStore
	logger logger.Logger

	mu     sync.RWMutex
	cached *WeightSet
}

// NewWeightsProvider returns a provider over store. A nil store serves defaults only.
func NewWeightsProvider(store WeightStore, log logger.Logger) *WeightsProvider {
	return &WeightsProvider{
		store:  store,
		logger: log.WithFields(map[string]interface{}{"component": "weights-provider"}),
	}
}

// GetWeights returns the cached weights, loading them on first use. It never fails:
// any store problem yields the compiled-in defaults, which are then cached.
func (p *WeightsProvider) GetWeights(ctx context.Context) WeightSet {
	if w, ok := p.Cached(); ok {
		return w
	}

	w := p.load(ctx)

	// Concurrent first loads may both get here; the last one wins.
	p.mu.Lock()
	p.cached = &w
	p.mu.Unlock()
	return w
}

// Cached returns the memoized weights without loading.
func (p *WeightsProvider) Cached() (WeightSet, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.cached == nil {
		return WeightSet{}, false
	}
	return *p.cached, true
}

// ClearCache drops the memoized weights so the next GetWeights reloads them.
func (p *WeightsProvider) ClearCache() {
	p.mu.Lock()
	p.cached = nil
	p.mu.Unlock()
	p.logger.Debug("weights cache cleared", nil)
}

// Reload replaces the cached weights with a fresh read from the store. When the read fails the
// previously cached value is kept and returned along with the error; with nothing cached yet
// the defaults are cached, as on a failed first load.
func (p *WeightsProvider) Reload(ctx context.Context) (WeightSet, error) {
	w, err := p.loadStored(ctx)
	if err != nil {
		if prev, ok := p.Cached(); ok {
			p.logger.Warn("weight reload failed, keeping cached weights", map[string]interface{}{
				"error": err,
			})
			return prev, err
		}
		p.logger.Warn("weight overrides unavailable, using defaults", map[string]interface{}{
			"error": err,
		})
		w = DefaultWeights()
	}

	p.mu.Lock()
	p.cached = &w
	p.mu.Unlock()
	return w, err
}

// SaveWeights writes every weight, one key at a time in canonical order, and updates the cache
// only when all writes succeed. A failed write returns *PartialPersistenceError and leaves the
// cache untouched.
func (p *WeightsProvider) SaveWeights(ctx context.Context, w WeightSet) error {
	if err := w.Validate(); err != nil {
		return err
	}
	if p.store == nil {
		return ErrNoWeightStore
	}

	written := make([]string, 0, len(Criteria))
	for _, c := range Criteria {
		if err := p.store.SaveWeight(ctx, string(c), w.Get(c)); err != nil {
			metrics.WeightSaveFailures.Inc()
			p.logger.Error("weight write failed", map[string]interface{}{
				"criterion": string(c),
				"written":   written,
				"error":     err,
			})
			return &PartialPersistenceError{Written: written, Failed: string(c), Err: err}
		}
		written = append(written, string(c))
	}

	p.mu.Lock()
	saved := w
	p.cached = &saved
	p.mu.Unlock()

	p.logger.Info("weights saved", map[string]interface{}{"weights": w.ToMap()})
	return nil
}

func (p *WeightsProvider) load(ctx context.Context) WeightSet {
	w, err := p.loadStored(ctx)
	if err != nil {
		p.logger.Warn("weight overrides unavailable, using defaults", map[string]interface{}{
			"error": err,
		})
		return DefaultWeights()
	}
	return w
}

// loadStored merges the stored overrides over the defaults. A nil store yields the defaults.
func (p *WeightsProvider) loadStored(ctx context.Context) (WeightSet, error) {
	defaults := DefaultWeights()
	if p.store == nil {
		metrics.WeightLoads.WithLabelValues("defaults").Inc()
		return defaults, nil
	}

	stored, err := p.store.LoadWeights(ctx)
	if err != nil {
		metrics.WeightLoads.WithLabelValues("defaults").Inc()
		return WeightSet{}, err
	}

	w := defaults
	for name, v := range stored {
		c, ok := ParseCriterion(name)
		if !ok {
			p.logger.Debug("ignoring unknown weight key", map[string]interface{}{"key": name})
			continue
		}
		if err := validateWeight(c, v); err != nil {
			p.logger.Warn("ignoring malformed weight override", map[string]interface{}{
				"key":   name,
				"error": err,
			})
			continue
		}
		w.Set(c, v)
	}

	metrics.WeightLoads.WithLabelValues("store").Inc()
	return w, nil
}
