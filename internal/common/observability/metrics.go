package observability

import (
	"context"
	"time"

	"funding-match-workers/internal/common/config"
	"funding-match-workers/internal/common/logger"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Observability owns the process meter and tracer providers.
type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	meter          otelmetric.Meter
	jobCounter     otelmetric.Int64Counter
	jobDuration    otelmetric.Float64Histogram
}

// New installs the global providers. Metrics go through the Prometheus registry served on
// /metrics; spans are exported to Jaeger only when an endpoint is configured.
func New(cfg config.ObservabilityConfig, log logger.Logger) *Observability {
	o := &Observability{}
	res := resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))

	exporter, err := prometheus.New()
	if err != nil {
		log.Warn("Failed to create Prometheus exporter", map[string]interface{}{"error": err})
	} else {
		o.useMeterProvider(metric.NewMeterProvider(metric.WithReader(exporter), metric.WithResource(res)), cfg.ServiceName)
		otel.SetMeterProvider(o.meterProvider)
	}

	if cfg.JaegerEndpoint == "" {
		return o
	}

	traceExporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.JaegerEndpoint)))
	if err != nil {
		log.Warn("Failed to create Jaeger exporter, tracing disabled", map[string]interface{}{"error": err})
		return o
	}
	o.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(o.tracerProvider)
	log.Info("Tracing enabled", map[string]interface{}{"endpoint": cfg.JaegerEndpoint})
	return o
}

func (o *Observability) useMeterProvider(mp *metric.MeterProvider, serviceName string) {
	o.meterProvider = mp
	o.meter = mp.Meter(serviceName)
	o.jobCounter, _ = o.meter.Int64Counter(
		"jobs.processed",
		otelmetric.WithDescription("Number of jobs processed"),
	)
	o.jobDuration, _ = o.meter.Float64Histogram(
		"jobs.duration",
		otelmetric.WithDescription("Job processing duration"),
		otelmetric.WithUnit("ms"),
	)
}

// JobHandler handles one job and returns the status it ended with.
type JobHandler func(worker.JobClient, entities.Job) string

// Observe wraps handle so each job is counted and timed under the status it returned.
func (o *Observability) Observe(taskType string, handle JobHandler) func(worker.JobClient, entities.Job) {
	return func(client worker.JobClient, job entities.Job) {
		start := time.Now()
		status := handle(client, job)
		ctx := context.Background()
		o.RecordJobProcessed(ctx, taskType, status)
		o.RecordJobDuration(ctx, taskType, time.Since(start), status)
	}
}

func (o *Observability) RecordJobProcessed(ctx context.Context, taskType, status string) {
	if o.jobCounter != nil {
		o.jobCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("task_type", taskType),
			attribute.String("status", status),
		))
	}
}

func (o *Observability) RecordJobDuration(ctx context.Context, taskType string, duration time.Duration, status string) {
	if o.jobDuration != nil {
		o.jobDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("task_type", taskType),
			attribute.String("status", status),
		))
	}
}

// Shutdown flushes pending spans and metrics.
func (o *Observability) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if o.tracerProvider != nil {
		_ = o.tracerProvider.Shutdown(ctx)
	}
	if o.meterProvider != nil {
		_ = o.meterProvider.Shutdown(ctx)
	}
}
