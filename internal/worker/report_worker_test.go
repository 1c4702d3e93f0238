package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/marketbrief/internal/common"
	"github.com/ternarybob/marketbrief/internal/interfaces"
	"github.com/ternarybob/marketbrief/internal/models"
	"github.com/ternarybob/marketbrief/internal/services/generator"
	"github.com/ternarybob/marketbrief/internal/toolclient"
)

type memStorage struct {
	mu       sync.Mutex
	reports  map[string]*models.ReportArtifact
	getErr   error
	putErr   error
	putCalls int
}

func newMemStorage() *memStorage {
	return &memStorage{reports: map[string]*models.ReportArtifact{}}
}

func (m *memStorage) Get(ctx context.Context, symbol string, date time.Time) (*models.ReportArtifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	artifact, ok := m.reports[models.ReportKey(symbol, date)]
	if !ok {
		return nil, interfaces.ErrReportNotFound
	}
	return artifact, nil
}

func (m *memStorage) PutIfNewer(ctx context.Context, artifact *models.ReportArtifact) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putCalls++
	if m.putErr != nil {
		return false, m.putErr
	}
	key := artifact.Key()
	if existing, ok := m.reports[key]; ok && !existing.GeneratedAt.Before(artifact.GeneratedAt) {
		return false, nil
	}
	m.reports[key] = artifact
	return true, nil
}

func (m *memStorage) GetBySymbol(ctx context.Context, symbol string) (*models.ReportArtifact, error) {
	return nil, interfaces.ErrReportNotFound
}

func (m *memStorage) List(ctx context.Context, date time.Time) ([]*models.ReportArtifact, error) {
	return nil, nil
}

func (m *memStorage) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reports), nil
}

type fakeGenerator struct {
	report *interfaces.GeneratedReport
	err    error
	calls  int
}

func (f *fakeGenerator) Generate(ctx context.Context, symbol string, runDate time.Time) (*interfaces.GeneratedReport, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.report, nil
}

type panickingGenerator struct{}

func (panickingGenerator) Generate(ctx context.Context, symbol string, runDate time.Time) (*interfaces.GeneratedReport, error) {
	panic("generator crashed")
}

type fakePDF struct {
	err   error
	calls int
}

func (f *fakePDF) ConvertMarkdownToPDF(markdown, title string) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF-fake"), nil
}

func testConfig(t *testing.T, renderPDF bool) *common.Config {
	t.Helper()
	cfg := common.NewDefaultConfig()
	cfg.Runs.RenderPDF = renderPDF
	cfg.Runs.PDFDir = t.TempDir()
	return cfg
}

func testJob() models.Job {
	return models.Job{
		Symbol:      "ASX:GNP",
		RunDate:     time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC),
		Attempt:     1,
		RequestedAt: time.Now(),
	}
}

func TestProcessRecoversGeneratorPanic(t *testing.T) {
	storage := newMemStorage()
	w := NewReportWorker(storage, panickingGenerator{}, &fakePDF{}, testConfig(t, false), arbor.NewLogger())

	outcome := w.Process(context.Background(), testJob())

	assert.Equal(t, models.OutcomeFailed, outcome.Status)
	assert.Equal(t, "GNP.AU", outcome.Symbol)
	assert.Equal(t, "worker-panic", outcome.Reason)
	assert.False(t, outcome.Retryable)
	assert.Zero(t, storage.putCalls, "a crashed job must not commit anything")
}

func TestProcessSuccess(t *testing.T) {
	storage := newMemStorage()
	gen := &fakeGenerator{report: &interfaces.GeneratedReport{
		Markdown:     "# GNP.AU Daily Brief",
		SourceDigest: "abc123",
	}}
	w := NewReportWorker(storage, gen, &fakePDF{}, testConfig(t, false), arbor.NewLogger())

	outcome := w.Process(context.Background(), testJob())

	assert.Equal(t, models.OutcomeSuccess, outcome.Status)
	assert.Equal(t, "GNP.AU", outcome.Symbol)
	assert.NotEmpty(t, outcome.ArtifactID)

	stored, err := storage.Get(context.Background(), "GNP.AU", testJob().RunDate)
	require.NoError(t, err)
	assert.Equal(t, outcome.ArtifactID, stored.ID)
	assert.Equal(t, "abc123", stored.SourceDigest)
	assert.Empty(t, stored.PDFRef)
}

func TestProcessSkipsFreshArtifact(t *testing.T) {
	storage := newMemStorage()
	job := testJob()
	now := time.Date(2026, 1, 6, 9, 0, 0, 0, time.UTC)

	fresh := &models.ReportArtifact{
		ID:          "rpt_existing",
		Symbol:      "GNP.AU",
		DataDate:    job.RunDate,
		GeneratedAt: now.Add(-time.Hour),
	}
	storage.reports[fresh.Key()] = fresh

	gen := &fakeGenerator{report: &interfaces.GeneratedReport{Markdown: "unused"}}
	w := NewReportWorker(storage, gen, &fakePDF{}, testConfig(t, false), arbor.NewLogger())
	w.SetClock(func() time.Time { return now })

	outcome := w.Process(context.Background(), job)

	assert.Equal(t, models.OutcomeSkipped, outcome.Status)
	assert.Equal(t, SkipReasonFresh, outcome.Reason)
	// Idempotent skip costs zero generation work
	assert.Equal(t, 0, gen.calls)
	assert.Equal(t, 0, storage.putCalls)
}

func TestProcessRegeneratesStaleArtifact(t *testing.T) {
	storage := newMemStorage()
	job := testJob()
	now := time.Date(2026, 1, 6, 9, 0, 0, 0, time.UTC)

	stale := &models.ReportArtifact{
		ID:          "rpt_stale",
		Symbol:      "GNP.AU",
		DataDate:    job.RunDate,
		GeneratedAt: now.Add(-48 * time.Hour),
	}
	storage.reports[stale.Key()] = stale

	gen := &fakeGenerator{report: &interfaces.GeneratedReport{Markdown: "# fresh"}}
	w := NewReportWorker(storage, gen, &fakePDF{}, testConfig(t, false), arbor.NewLogger())
	w.SetClock(func() time.Time { return now })

	outcome := w.Process(context.Background(), job)

	assert.Equal(t, models.OutcomeSuccess, outcome.Status)
	assert.Equal(t, 1, gen.calls)

	stored, err := storage.Get(context.Background(), "GNP.AU", job.RunDate)
	require.NoError(t, err)
	assert.NotEqual(t, "rpt_stale", stored.ID)
}

func TestProcessRendersPDF(t *testing.T) {
	storage := newMemStorage()
	gen := &fakeGenerator{report: &interfaces.GeneratedReport{Markdown: "# brief"}}
	pdf := &fakePDF{}
	w := NewReportWorker(storage, gen, pdf, testConfig(t, true), arbor.NewLogger())

	outcome := w.Process(context.Background(), testJob())

	require.Equal(t, models.OutcomeSuccess, outcome.Status)
	assert.Equal(t, 1, pdf.calls)

	stored, err := storage.Get(context.Background(), "GNP.AU", testJob().RunDate)
	require.NoError(t, err)
	assert.NotEmpty(t, stored.PDFRef)
	assert.Contains(t, stored.PDFRef, "gnp-au-2026-01-06.pdf")
}

func TestProcessPDFFailureStillSucceeds(t *testing.T) {
	storage := newMemStorage()
	gen := &fakeGenerator{report: &interfaces.GeneratedReport{Markdown: "# brief"}}
	pdf := &fakePDF{err: errors.New("render failed")}
	w := NewReportWorker(storage, gen, pdf, testConfig(t, true), arbor.NewLogger())

	outcome := w.Process(context.Background(), testJob())

	require.Equal(t, models.OutcomeSuccess, outcome.Status)

	stored, err := storage.Get(context.Background(), "GNP.AU", testJob().RunDate)
	require.NoError(t, err)
	assert.Empty(t, stored.PDFRef)
}

func TestProcessDegradedGeneration(t *testing.T) {
	storage := newMemStorage()
	gen := &fakeGenerator{report: &interfaces.GeneratedReport{
		Markdown:      "# brief",
		Degraded:      true,
		MissingInputs: []string{"news"},
	}}
	w := NewReportWorker(storage, gen, &fakePDF{}, testConfig(t, false), arbor.NewLogger())

	outcome := w.Process(context.Background(), testJob())
	require.Equal(t, models.OutcomeSuccess, outcome.Status)

	stored, err := storage.Get(context.Background(), "GNP.AU", testJob().RunDate)
	require.NoError(t, err)
	assert.True(t, stored.Degraded)
	assert.Equal(t, []string{"news"}, stored.MissingInputs)
}

func TestProcessRetryableFailure(t *testing.T) {
	storage := newMemStorage()
	gen := &fakeGenerator{err: &toolclient.DependencyError{
		Dependency: toolclient.DependencyMarketData,
		Kind:       toolclient.KindTimeout,
		Err:        context.DeadlineExceeded,
	}}
	w := NewReportWorker(storage, gen, &fakePDF{}, testConfig(t, false), arbor.NewLogger())

	outcome := w.Process(context.Background(), testJob())

	assert.Equal(t, models.OutcomeFailed, outcome.Status)
	assert.True(t, outcome.Retryable)
	assert.Equal(t, "dependency-timeout", outcome.Reason)
}

func TestProcessInvalidSymbolNotRetryable(t *testing.T) {
	storage := newMemStorage()
	gen := &fakeGenerator{err: generator.ErrInvalidSymbol}
	w := NewReportWorker(storage, gen, &fakePDF{}, testConfig(t, false), arbor.NewLogger())

	outcome := w.Process(context.Background(), testJob())

	assert.Equal(t, models.OutcomeFailed, outcome.Status)
	assert.False(t, outcome.Retryable)
	assert.Equal(t, "invalid-symbol", outcome.Reason)
}

func TestProcessCommitFailureRetryable(t *testing.T) {
	storage := newMemStorage()
	storage.putErr = errors.New("disk full")
	gen := &fakeGenerator{report: &interfaces.GeneratedReport{Markdown: "# brief"}}
	w := NewReportWorker(storage, gen, &fakePDF{}, testConfig(t, false), arbor.NewLogger())

	outcome := w.Process(context.Background(), testJob())

	assert.Equal(t, models.OutcomeFailed, outcome.Status)
	assert.True(t, outcome.Retryable)
	assert.Contains(t, outcome.Reason, "cache-commit-failed")
}

// supersededStorage reports every commit as lost to a newer concurrent entry.
type supersededStorage struct {
	*memStorage
}

func (s *supersededStorage) PutIfNewer(ctx context.Context, artifact *models.ReportArtifact) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putCalls++
	return false, nil
}

func TestProcessSupersededCommitIsSuccess(t *testing.T) {
	storage := &supersededStorage{memStorage: newMemStorage()}
	gen := &fakeGenerator{report: &interfaces.GeneratedReport{Markdown: "# brief"}}
	w := NewReportWorker(storage, gen, &fakePDF{}, testConfig(t, false), arbor.NewLogger())

	outcome := w.Process(context.Background(), testJob())

	// Losing the commit race to a newer artifact is still a successful job
	assert.Equal(t, models.OutcomeSuccess, outcome.Status)
	assert.Equal(t, 1, storage.putCalls)
}
