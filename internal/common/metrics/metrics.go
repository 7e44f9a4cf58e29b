// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	SuggestionsServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matching_suggestions_total",
			Help: "Suggestion requests answered, by strategy",
		},
		[]string{"strategy"},
	)

	SuggestionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "matching_suggestion_duration_seconds",
			Help:    "Time spent scoring and ranking a catalog",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		},
		[]string{"strategy"},
	)

	OpportunitiesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matching_opportunities_skipped_total",
			Help: "Opportunities excluded from a batch, by diagnostic code",
		},
		[]string{"code"},
	)

	WeightLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matching_weight_loads_total",
			Help: "Weight cache fills, by source (store or defaults)",
		},
		[]string{"source"},
	)

	WeightSaveFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "matching_weight_save_failures_total",
			Help: "Weight saves that stopped before every key was written",
		},
	)
)
