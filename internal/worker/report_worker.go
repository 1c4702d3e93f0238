package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/marketbrief/internal/common"
	"github.com/ternarybob/marketbrief/internal/interfaces"
	"github.com/ternarybob/marketbrief/internal/models"
	"github.com/ternarybob/marketbrief/internal/services/generator"
	"github.com/ternarybob/marketbrief/internal/telemetry"
	"github.com/ternarybob/marketbrief/internal/toolclient"
)

// SkipReasonFresh is the skip reason recorded when a fresh artifact
// already covers the (symbol, date) key.
const SkipReasonFresh = "already-current"

// ReportWorker processes one precompute job end to end: freshness check,
// generation, optional PDF rendering, and the cache commit.
type ReportWorker struct {
	storage   interfaces.ReportStorage
	generator interfaces.ReportGenerator
	pdf       interfaces.PDFService
	config    *common.Config
	logger    arbor.ILogger

	// now is injectable for deterministic freshness tests
	now func() time.Time
}

// NewReportWorker creates a report worker.
func NewReportWorker(
	storage interfaces.ReportStorage,
	gen interfaces.ReportGenerator,
	pdf interfaces.PDFService,
	config *common.Config,
	logger arbor.ILogger,
) *ReportWorker {
	return &ReportWorker{
		storage:   storage,
		generator: gen,
		pdf:       pdf,
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
}

// SetClock overrides the worker clock. Tests only.
func (w *ReportWorker) SetClock(now func() time.Time) {
	w.now = now
}

// Process runs one job attempt to a terminal outcome. It never panics the
// pool: every failure path returns a classified RunOutcome.
func (w *ReportWorker) Process(ctx context.Context, job models.Job) (outcome models.RunOutcome) {
	start := w.now()
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error().
				Str("symbol", job.Symbol).
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", string(debug.Stack())).
				Msg("Panic recovered processing job")
			outcome = models.Failed(common.NormalizeSymbol(job.Symbol), "worker-panic", false)
			outcome.Duration = w.now().Sub(start)
			telemetry.JobsFailed.Inc()
		}
	}()

	outcome = w.process(ctx, job)
	outcome.Duration = w.now().Sub(start)

	switch outcome.Status {
	case models.OutcomeSuccess:
		telemetry.JobsSucceeded.Inc()
	case models.OutcomeFailed:
		telemetry.JobsFailed.Inc()
	case models.OutcomeSkipped:
		telemetry.JobsSkipped.Inc()
	}

	w.logger.Info().
		Str("symbol", job.Symbol).
		Int("attempt", job.Attempt).
		Str("status", string(outcome.Status)).
		Str("reason", outcome.Reason).
		Bool("retryable", outcome.Retryable).
		Dur("duration", outcome.Duration).
		Msg("Job processed")

	return outcome
}

func (w *ReportWorker) process(ctx context.Context, job models.Job) models.RunOutcome {
	symbol := common.NormalizeSymbol(job.Symbol)
	if symbol == "" {
		return models.Failed(job.Symbol, "invalid-symbol", false)
	}

	// Freshness check first: a fresh artifact makes re-runs idempotent and
	// costs zero tool calls.
	window := w.config.Runs.FreshnessWindowDuration()
	existing, err := w.storage.Get(ctx, symbol, job.RunDate)
	if err == nil && existing.IsFresh(w.now(), window) {
		return models.Skipped(symbol, SkipReasonFresh)
	}
	if err != nil && !errors.Is(err, interfaces.ErrReportNotFound) {
		// Storage read failures are environmental, worth a retry
		return models.Failed(symbol, fmt.Sprintf("cache-read-failed: %v", err), true)
	}

	generated, err := w.generator.Generate(ctx, symbol, job.RunDate)
	if err != nil {
		return models.Failed(symbol, failureReason(err), toolclient.IsRetryable(err))
	}

	artifact := &models.ReportArtifact{
		ID:             common.NewReportID(),
		Symbol:         symbol,
		DataDate:       job.RunDate,
		ReportMarkdown: generated.Markdown,
		GeneratedAt:    w.now(),
		SourceDigest:   generated.SourceDigest,
		Degraded:       generated.Degraded,
		MissingInputs:  generated.MissingInputs,
	}

	// PDF rendering is best effort: a render failure never fails the job,
	// the artifact just carries no PDF reference.
	if w.config.Runs.RenderPDF && w.pdf != nil {
		artifact.PDFRef = w.renderPDF(symbol, job.RunDate, generated.Markdown)
	}

	stored, err := w.storage.PutIfNewer(ctx, artifact)
	if err != nil {
		return models.Failed(symbol, fmt.Sprintf("cache-commit-failed: %v", err), true)
	}
	if !stored {
		// A concurrent attempt committed a newer artifact; the work is done
		// either way.
		w.logger.Debug().
			Str("symbol", symbol).
			Str("report_id", artifact.ID).
			Msg("Commit superseded by newer artifact")
	}

	return models.Success(symbol, artifact.ID)
}

// renderPDF renders the markdown and writes it under the configured PDF
// directory. Returns the file path, or empty on any failure.
func (w *ReportWorker) renderPDF(symbol string, runDate time.Time, markdown string) string {
	title := fmt.Sprintf("%s Daily Brief - %s", symbol, runDate.Format("2006-01-02"))
	pdfBytes, err := w.pdf.ConvertMarkdownToPDF(markdown, title)
	if err != nil {
		w.logger.Warn().Err(err).Str("symbol", symbol).Msg("PDF rendering failed, continuing without PDF")
		return ""
	}

	dir := w.config.Runs.PDFDir
	if err := os.MkdirAll(dir, 0755); err != nil {
		w.logger.Warn().Err(err).Str("dir", dir).Msg("Failed to create PDF directory")
		return ""
	}

	name := fmt.Sprintf("%s-%s.pdf",
		strings.ToLower(strings.ReplaceAll(symbol, ".", "-")),
		runDate.Format("2006-01-02"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, pdfBytes, 0644); err != nil {
		w.logger.Warn().Err(err).Str("path", path).Msg("Failed to write PDF file")
		return ""
	}

	return path
}

// failureReason maps a generation error to a stable reason string for
// outcomes and run summaries.
func failureReason(err error) string {
	switch {
	case errors.Is(err, generator.ErrInvalidSymbol):
		return "invalid-symbol"
	case toolclient.IsTimeout(err):
		return "dependency-timeout"
	case toolclient.IsUnavailable(err):
		return "dependency-unavailable"
	default:
		var depErr *toolclient.DependencyError
		if errors.As(err, &depErr) {
			return fmt.Sprintf("%s-%s", depErr.Dependency, depErr.Kind)
		}
		return "generation-failed"
	}
}
