package dispatcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/marketbrief/internal/common"
	"github.com/ternarybob/marketbrief/internal/models"
)

var (
	// ErrRunInProgress is returned when a trigger arrives while a run is
	// still active. Runs are serialized: the daily fan-out never overlaps.
	ErrRunInProgress = errors.New("a run is already in progress")

	// ErrRunNotFound is returned when polling an unknown run ID.
	ErrRunNotFound = errors.New("run not found")

	// ErrNoSymbols is returned when neither the trigger nor the config
	// provides symbols to run.
	ErrNoSymbols = errors.New("no symbols configured")
)

// Runner executes one fan-out run to completion.
// *orchestrator.Orchestrator satisfies this interface.
type Runner interface {
	Run(ctx context.Context, runID string, runDate time.Time, symbols []string) *models.RunSummary
}

// Dispatcher owns run lifecycle: manual triggers, the scheduled daily
// trigger, and the pollable registry of run summaries.
type Dispatcher struct {
	runner Runner
	config *common.Config
	logger arbor.ILogger
	cron   *cron.Cron

	mu       sync.RWMutex
	runs     map[string]*models.RunSummary
	order    []string
	activeID string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// now is injectable for deterministic run-date tests
	now func() time.Time
}

// New creates a dispatcher.
func New(runner Runner, config *common.Config, logger arbor.ILogger) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		runner: runner,
		config: config,
		logger: logger,
		runs:   make(map[string]*models.RunSummary),
		ctx:    ctx,
		cancel: cancel,
		now:    time.Now,
	}
}

// SetClock overrides the dispatcher clock. Tests only.
func (d *Dispatcher) SetClock(now func() time.Time) {
	d.now = now
}

// Start installs the scheduled daily trigger when enabled. Safe to call
// when scheduling is disabled.
func (d *Dispatcher) Start() error {
	if !d.config.Schedule.Enabled {
		d.logger.Info().Msg("Scheduled runs disabled")
		return nil
	}

	d.cron = cron.New(cron.WithSeconds())
	_, err := d.cron.AddFunc(d.config.Schedule.Cron, func() {
		runID, err := d.TriggerRun(nil, time.Time{})
		if err != nil {
			d.logger.Warn().Err(err).Msg("Scheduled run trigger rejected")
			return
		}
		d.logger.Info().Str("run_id", runID).Msg("Scheduled run triggered")
	})
	if err != nil {
		return err
	}

	d.cron.Start()
	d.logger.Info().Str("cron", d.config.Schedule.Cron).Msg("Scheduled runs enabled")
	return nil
}

// Stop stops the scheduler and waits for any active run to finish.
func (d *Dispatcher) Stop() {
	if d.cron != nil {
		ctx := d.cron.Stop()
		<-ctx.Done()
	}
	d.cancel()
	d.wg.Wait()
}

// TriggerRun starts a new run in the background and returns its ID for
// polling. Passing nil symbols uses the configured watchlist; a zero
// runDate resolves to the last trading day.
func (d *Dispatcher) TriggerRun(symbols []string, runDate time.Time) (string, error) {
	if symbols == nil {
		symbols = d.config.Runs.Symbols
	}
	if len(symbols) == 0 {
		return "", ErrNoSymbols
	}
	if runDate.IsZero() {
		runDate = common.LastTradingDay(d.now(), nil)
	}

	d.mu.Lock()
	if d.activeID != "" {
		active := d.runs[d.activeID]
		if active != nil && active.State != models.RunStateComplete {
			d.mu.Unlock()
			return "", ErrRunInProgress
		}
	}

	runID := common.NewRunID()
	summary := &models.RunSummary{
		RunID:     runID,
		State:     models.RunStatePending,
		RunDate:   runDate,
		TotalJobs: len(symbols),
		StartedAt: d.now(),
	}
	d.runs[runID] = summary
	d.order = append(d.order, runID)
	d.activeID = runID
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		d.mu.Lock()
		summary.State = models.RunStateInFlight
		d.mu.Unlock()

		final := d.runner.Run(d.ctx, runID, runDate, symbols)

		d.mu.Lock()
		d.runs[runID] = final
		d.mu.Unlock()
	}()

	return runID, nil
}

// GetRun returns a snapshot of a run summary by ID.
func (d *Dispatcher) GetRun(runID string) (*models.RunSummary, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	summary, ok := d.runs[runID]
	if !ok {
		return nil, ErrRunNotFound
	}

	snapshot := *summary
	snapshot.Failures = append([]models.JobFailure(nil), summary.Failures...)
	return &snapshot, nil
}

// ListRuns returns snapshots of all runs, most recent first.
func (d *Dispatcher) ListRuns() []*models.RunSummary {
	d.mu.RLock()
	defer d.mu.RUnlock()

	result := make([]*models.RunSummary, 0, len(d.order))
	for i := len(d.order) - 1; i >= 0; i-- {
		summary := d.runs[d.order[i]]
		snapshot := *summary
		snapshot.Failures = append([]models.JobFailure(nil), summary.Failures...)
		result = append(result, &snapshot)
	}
	return result
}
