package orchestrator

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/marketbrief/internal/common"
	"github.com/ternarybob/marketbrief/internal/models"
	"github.com/ternarybob/marketbrief/internal/telemetry"
)

// JobProcessor runs one job attempt to a terminal outcome.
// *worker.ReportWorker satisfies this interface.
type JobProcessor interface {
	Process(ctx context.Context, job models.Job) models.RunOutcome
}

// Orchestrator fans one run out across the tracked symbols with a bounded
// worker pool, per-job deadlines, and bounded retries for retryable failures.
type Orchestrator struct {
	processor JobProcessor
	config    *common.Config
	logger    arbor.ILogger
}

// New creates an orchestrator.
func New(processor JobProcessor, config *common.Config, logger arbor.ILogger) *Orchestrator {
	return &Orchestrator{
		processor: processor,
		config:    config,
		logger:    logger,
	}
}

// jobResult pairs a symbol's final outcome with its attempt count.
type jobResult struct {
	outcome  models.RunOutcome
	attempts int
}

// Run executes one fan-out run and returns its summary. One job exists per
// symbol; retryable failures are re-attempted with exponential backoff up to
// the configured budget. The run-level deadline bounds the whole fan-out:
// jobs cut off by it are recorded as failures, never lost.
func (o *Orchestrator) Run(ctx context.Context, runID string, runDate time.Time, symbols []string) *models.RunSummary {
	summary := &models.RunSummary{
		RunID:     runID,
		State:     models.RunStatePending,
		RunDate:   runDate,
		TotalJobs: len(symbols),
		StartedAt: time.Now(),
	}

	runLogger := o.logger.WithCorrelationId(runID)
	runLogger.Info().
		Str("run_date", runDate.Format("2006-01-02")).
		Int("symbols", len(symbols)).
		Int("concurrency", o.config.Runs.Concurrency).
		Msg("Run starting")

	if len(symbols) == 0 {
		summary.State = models.RunStateComplete
		summary.FinishedAt = time.Now()
		return summary
	}

	runCtx, cancel := context.WithTimeout(ctx, o.config.Runs.RunTimeoutDuration())
	defer cancel()

	summary.State = models.RunStateDispatching
	now := time.Now()
	jobs := make(chan models.Job)
	results := make(chan jobResult, len(symbols))

	var wg sync.WaitGroup
	for i := 0; i < o.config.Runs.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				results <- o.runJob(runCtx, runLogger, job)
			}
		}()
	}

	summary.State = models.RunStateInFlight
	for _, symbol := range symbols {
		jobs <- models.Job{
			Symbol:      symbol,
			RunDate:     runDate,
			Attempt:     1,
			RequestedAt: now,
		}
	}
	close(jobs)
	wg.Wait()
	close(results)

	summary.State = models.RunStateAggregating
	for result := range results {
		switch result.outcome.Status {
		case models.OutcomeSuccess:
			summary.Succeeded++
		case models.OutcomeSkipped:
			summary.Skipped++
		case models.OutcomeFailed:
			summary.Failed++
			summary.Failures = append(summary.Failures, models.JobFailure{
				Symbol:    result.outcome.Symbol,
				Reason:    result.outcome.Reason,
				Attempts:  result.attempts,
				Retryable: result.outcome.Retryable,
			})
		}
	}

	summary.State = models.RunStateComplete
	summary.FinishedAt = time.Now()
	summary.Duration = summary.FinishedAt.Sub(summary.StartedAt)
	telemetry.RunsCompleted.Inc()

	runLogger.Info().
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Dur("duration", summary.Duration).
		Msg("Run complete")

	return summary
}

// runJob drives one symbol through its attempt budget. The first attempt
// plus MaxAttempts retries, backing off exponentially between attempts.
func (o *Orchestrator) runJob(runCtx context.Context, runLogger arbor.ILogger, job models.Job) jobResult {
	maxAttempts := 1 + o.config.Runs.MaxAttempts
	backoff := o.config.Runs.InitialBackoffDuration()
	factor := o.config.Runs.BackoffFactor
	if factor < 1 {
		factor = 1
	}

	var outcome models.RunOutcome
	attempt := 1
	for ; attempt <= maxAttempts; attempt++ {
		job.Attempt = attempt
		outcome = o.processWithDeadline(runCtx, runLogger, job)

		if outcome.Status != models.OutcomeFailed || !outcome.Retryable || attempt == maxAttempts {
			break
		}
		if runCtx.Err() != nil {
			break
		}

		runLogger.Warn().
			Str("symbol", job.Symbol).
			Int("attempt", attempt).
			Str("reason", outcome.Reason).
			Dur("backoff", backoff).
			Msg("Retrying job after backoff")
		telemetry.JobRetries.Inc()

		if !sleepCtx(runCtx, backoff) {
			break
		}
		backoff = time.Duration(float64(backoff) * factor)
	}

	return jobResult{outcome: outcome, attempts: attempt}
}

// processWithDeadline runs one attempt under the per-job deadline. When the
// worker does not report back in time a timeout outcome is synthesized so the
// run summary always accounts for every job.
func (o *Orchestrator) processWithDeadline(runCtx context.Context, runLogger arbor.ILogger, job models.Job) models.RunOutcome {
	jobCtx, cancel := context.WithTimeout(runCtx, o.config.Runs.JobTimeoutDuration())
	defer cancel()

	telemetry.InFlightJobs.Inc()
	defer telemetry.InFlightJobs.Dec()

	done := make(chan models.RunOutcome, 1)
	go func() {
		// A panicking worker must still yield an outcome: the run summary
		// accounts for every job, crashed or not.
		defer func() {
			if r := recover(); r != nil {
				runLogger.Error().
					Str("symbol", job.Symbol).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(debug.Stack())).
					Msg("Worker panicked processing job")
				done <- models.Failed(common.NormalizeSymbol(job.Symbol), "worker-panic", false)
			}
		}()
		done <- o.processor.Process(jobCtx, job)
	}()

	select {
	case outcome := <-done:
		return outcome
	case <-jobCtx.Done():
		symbol := common.NormalizeSymbol(job.Symbol)
		if runCtx.Err() != nil {
			runLogger.Warn().Str("symbol", symbol).Msg("Job cut off by run deadline")
			return models.Failed(symbol, "run-timeout", false)
		}
		runLogger.Warn().Str("symbol", symbol).Int("attempt", job.Attempt).Msg("Job deadline exceeded, synthesizing timeout outcome")
		return models.Failed(symbol, "job-timeout", true)
	}
}

// sleepCtx sleeps for d unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
