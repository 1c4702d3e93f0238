// Package telemetry exposes Prometheus metrics for the precompute pipeline.
package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	// ToolCalls counts dependency calls by dependency and outcome
	// (success, unavailable, timeout, rejected).
	ToolCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "marketbrief_tool_calls_total",
		Help: "External dependency calls by dependency and outcome",
	}, []string{"dependency", "outcome"})

	// ToolCallsRejected counts fail-fast rejections while a circuit is open.
	ToolCallsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "marketbrief_tool_calls_rejected_total",
		Help: "Calls rejected without a network attempt because the circuit was open",
	}, []string{"dependency"})

	// JobsSucceeded counts jobs that produced and cached a report.
	JobsSucceeded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "marketbrief_jobs_succeeded_total",
		Help: "Report jobs completed successfully",
	})

	// JobsFailed counts jobs that reached a terminal failure.
	JobsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "marketbrief_jobs_failed_total",
		Help: "Report jobs that failed after exhausting retries",
	})

	// JobsSkipped counts jobs skipped because a fresh artifact existed.
	JobsSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "marketbrief_jobs_skipped_total",
		Help: "Report jobs skipped due to a fresh cached artifact",
	})

	// JobRetries counts redispatched attempts.
	JobRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "marketbrief_job_retries_total",
		Help: "Job attempts redispatched after a retryable failure",
	})

	// InFlightJobs tracks jobs currently being processed.
	InFlightJobs = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "marketbrief_jobs_inflight",
		Help: "Jobs currently being processed by the worker pool",
	})

	// RunsCompleted counts completed fan-out runs.
	RunsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "marketbrief_runs_completed_total",
		Help: "Fan-out runs that reached the complete state",
	})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			ToolCalls,
			ToolCallsRejected,
			JobsSucceeded,
			JobsFailed,
			JobsSkipped,
			JobRetries,
			InFlightJobs,
			RunsCompleted,
		)
	})
	return promhttp.Handler()
}
