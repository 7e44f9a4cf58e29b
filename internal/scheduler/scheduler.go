// Package scheduler refreshes the memoized matching weights on a cron schedule so that
// overrides written by another process are picked up without a restart.
package scheduler

import (
	"context"
	"fmt"

	"funding-match-workers/internal/common/logger"
	"funding-match-workers/internal/matching"

	"github.com/robfig/cron/v3"
)

// WeightRefresher reloads the provider cache on every tick.
type WeightRefresher struct {
	cron     *cron.Cron
	provider *matching.WeightsProvider
	spec     string
	logger   logger.Logger
}

// New returns a refresher for spec, e.g. "@every 10m". An empty spec disables it.
func New(provider *matching.WeightsProvider, spec string, log logger.Logger) *WeightRefresher {
	l := log.WithFields(map[string]interface{}{"component": "weight-refresher", "spec": spec})
	return &WeightRefresher{
		cron:     cron.New(cron.WithLogger(cronLogger{l})),
		provider: provider,
		spec:     spec,
		logger:   l,
	}
}

// Start registers the refresh job and starts the scheduler.
func (r *WeightRefresher) Start(ctx context.Context) error {
	if r.spec == "" {
		r.logger.Info("weight refresh disabled", nil)
		return nil
	}
	if _, err := r.cron.AddFunc(r.spec, func() { r.Refresh(ctx) }); err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}
	r.cron.Start()
	r.logger.Info("weight refresh scheduled", nil)
	return nil
}

// Stop waits for a running refresh to finish.
func (r *WeightRefresher) Stop() {
	<-r.cron.Stop().Done()
	r.logger.Info("weight refresh stopped", nil)
}

// Refresh reloads the weights from the store. A failed read keeps the weights already cached.
func (r *WeightRefresher) Refresh(ctx context.Context) matching.WeightSet {
	w, err := r.provider.Reload(ctx)
	if err != nil {
		r.logger.Warn("weight refresh failed", map[string]interface{}{"error": err})
		return w
	}
	r.logger.Debug("weights refreshed", map[string]interface{}{"weights": w.ToMap()})
	return w
}

// cronLogger routes cron's own messages into the structured logger.
type cronLogger struct {
	l logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, pairs(keysAndValues))
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := pairs(keysAndValues)
	fields["error"] = err
	c.l.Error("cron: "+msg, fields)
}

func pairs(kv []interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(kv)/2+1)
	for i := 0; i+1 < len(kv); i += 2 {
		out[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return out
}
