// cmd/match-worker/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"go.uber.org/zap"

	"funding-match-workers/internal/admin"
	"funding-match-workers/internal/common/aws"
	"funding-match-workers/internal/common/camunda"
	"funding-match-workers/internal/common/config"
	"funding-match-workers/internal/common/database"
	"funding-match-workers/internal/common/logger"
	"funding-match-workers/internal/common/observability"
	"funding-match-workers/internal/matching"
	"funding-match-workers/internal/scheduler"
	"funding-match-workers/internal/stores"

	com "funding-match-workers/internal/workers/matching/calculate-opportunity-match"
	gos "funding-match-workers/internal/workers/matching/get-opportunity-suggestions"
	smw "funding-match-workers/internal/workers/matching/save-matching-weights"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting match worker...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.Observability, log)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// --- Init Zeebe Client with retry ---
	var zeebe *camunda.Client
	err = camunda.RetryWithBackoff(func() error {
		var err error
		zeebe, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
			ConnectionTimeout:      config.GetDuration(cfg.Camunda.RequestTimeout),
		})
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = camunda.RetryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = camunda.RetryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		return esClient.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = camunda.RetryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	// --- Matching core ---
	weightStore := stores.NewPostgresWeightStore(pg.DB, cfg.Matching.WeightsTable)
	if err := weightStore.EnsureSchema(ctx); err != nil {
		zapLog.Warn("weights table check failed, serving defaults until it exists", zap.Error(err))
	}
	weights := matching.NewWeightsProvider(weightStore, log)

	catalog := stores.NewElasticsearchCatalog(esClient.Client, cfg.Matching.CatalogIndex, cfg.Matching.CatalogSize, log)
	applicants := stores.NewPostgresContextSource(pg.DB, rdb.Client, config.GetDuration(cfg.Matching.ApplicantCacheTTL), log)

	engine := matching.NewEngine()
	orchestrator := matching.NewOrchestrator(engine, weights, log,
		matching.WithCatalogSource(catalog),
		matching.WithContextSource(applicants),
		matching.WithDefaultMaxResults(cfg.Matching.DefaultMaxResults),
	)

	notifier, err := aws.NewNotifierFromConfig(ctx, cfg.Notifications, log)
	if err != nil {
		zapLog.Fatal("notification clients failed", zap.Error(err))
	}
	events := stores.NewWeightEvents(rdb.Client, cfg.Matching.InvalidationChannel, log)
	weightsService := admin.NewWeightsService(weights, notifier, events, log)

	// --- Register workers ---
	var workers []worker.JobWorker
	register := func(taskType string, handle observability.JobHandler) {
		wcfg := config.GetWorkerConfig(cfg, taskType)
		if w := camunda.StartWorker(zeebe.GetClient(), taskType, wcfg, obs.Observe(taskType, handle), zapLog); w != nil {
			workers = append(workers, w)
		}
	}

	register(gos.TaskType, gos.NewHandler(
		gos.LoadConfig(config.GetWorkerConfig(cfg, gos.TaskType)), orchestrator, log,
	).Handle)

	register(com.TaskType, com.NewHandler(
		com.LoadConfig(config.GetWorkerConfig(cfg, com.TaskType)), engine, weights, catalog, log,
	).Handle)

	register(smw.TaskType, smw.NewHandler(
		smw.LoadConfig(config.GetWorkerConfig(cfg, smw.TaskType)), weightsService, log,
	).Handle)

	zapLog.Info("Workers registered", zap.Int("count", len(workers)))

	// --- Weight cache coherence ---
	invalidated, err := events.Subscribe(ctx, func(evt stores.WeightsInvalidation) {
		if _, err := weights.Reload(ctx); err != nil {
			zapLog.Warn("weight reload after invalidation failed, keeping cached weights",
				zap.String("source", evt.Source), zap.String("origin", evt.Origin), zap.Error(err))
		}
	})
	if err != nil {
		zapLog.Warn("weight invalidation subscription failed, relying on scheduled refresh", zap.Error(err))
	}

	refresher := scheduler.New(weights, cfg.Matching.WeightsRefreshSpec, log)
	if err := refresher.Start(ctx); err != nil {
		zapLog.Fatal("weight refresher failed to start", zap.Error(err))
	}

	// --- Admin / Health / Metrics server ---
	handler := admin.NewHandler(weightsService, map[string]admin.Pinger{
		"postgres":      pg,
		"redis":         rdb,
		"elasticsearch": esClient,
		"zeebe":         zeebe,
	}, cfg.Observability.ServiceName, log)
	server := admin.NewServer(cfg.Admin.Address, admin.SetupRouter(cfg.Admin, cfg.App.Environment, handler), log)
	server.Start()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, w := range workers {
		w.Close()
		w.AwaitClose()
	}

	refresher.Stop()
	stop()
	if invalidated != nil {
		<-invalidated
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping admin server", zap.Error(err))
	}
	obs.Shutdown(shutdownCtx)

	if err := zeebe.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Match worker stopped gracefully")
}
