package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/marketbrief/internal/breaker"
	"github.com/ternarybob/marketbrief/internal/common"
	"github.com/ternarybob/marketbrief/internal/dispatcher"
	"github.com/ternarybob/marketbrief/internal/eodhd"
	"github.com/ternarybob/marketbrief/internal/filings"
	"github.com/ternarybob/marketbrief/internal/handlers"
	"github.com/ternarybob/marketbrief/internal/interfaces"
	"github.com/ternarybob/marketbrief/internal/orchestrator"
	"github.com/ternarybob/marketbrief/internal/services/generator"
	"github.com/ternarybob/marketbrief/internal/services/llm"
	"github.com/ternarybob/marketbrief/internal/services/pdf"
	"github.com/ternarybob/marketbrief/internal/storage/badger"
	"github.com/ternarybob/marketbrief/internal/toolclient"
	"github.com/ternarybob/marketbrief/internal/worker"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Dependency guards
	Breaker    *breaker.Breaker
	ToolClient *toolclient.Client

	// External clients
	MarketDataClient *eodhd.Client
	FilingsClient    *filings.Client

	// Report pipeline
	LLMService       interfaces.LLMService
	PDFService       interfaces.PDFService
	GeneratorService *generator.Service
	ReportWorker     *worker.ReportWorker
	Orchestrator     *orchestrator.Orchestrator
	Dispatcher       *dispatcher.Dispatcher

	// HTTP handlers
	APIHandler    *handlers.APIHandler
	ReportHandler *handlers.ReportHandler
	RunHandler    *handlers.RunHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := app.initServices(); err != nil {
		app.StorageManager.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	logger.Info().
		Int("symbols", len(cfg.Runs.Symbols)).
		Int("concurrency", cfg.Runs.Concurrency).
		Bool("schedule_enabled", cfg.Schedule.Enabled).
		Msg("Application initialization complete")

	return app, nil
}

// initStorage initializes the Badger-backed report cache and KV store.
func (a *App) initStorage() error {
	manager, err := badger.NewManager(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return err
	}
	a.StorageManager = manager

	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")
	return nil
}

// initServices builds the report pipeline in dependency order: breakers,
// external clients, generator, worker, orchestrator, dispatcher.
func (a *App) initServices() error {
	ctx := context.Background()

	a.Breaker = breaker.New(breaker.Options{
		FailureThreshold: a.Config.Breaker.FailureThreshold,
		Window:           a.Config.Breaker.WindowDuration(),
		ResetTimeout:     a.Config.Breaker.ResetTimeoutDuration(),
	}, a.Logger)
	a.ToolClient = toolclient.New(a.Breaker, a.Logger)

	kv := a.StorageManager.KeyValueStorage()

	eodhdKey, err := common.ResolveAPIKey(ctx, kv, "eodhd_api_key", a.Config.EODHD.APIKey)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("No EODHD API key resolved, market data calls will fail")
	}
	marketDataOpts := []eodhd.ClientOption{
		eodhd.WithLogger(a.Logger),
		eodhd.WithRateLimit(a.Config.EODHD.RateLimit),
	}
	if a.Config.EODHD.BaseURL != "" {
		marketDataOpts = append(marketDataOpts, eodhd.WithBaseURL(a.Config.EODHD.BaseURL))
	}
	a.MarketDataClient = eodhd.NewClient(eodhdKey, marketDataOpts...)

	if a.Config.Filings.Enabled {
		filingsOpts := []filings.ClientOption{
			filings.WithLogger(a.Logger),
			filings.WithRateLimit(a.Config.Filings.RateLimit),
		}
		if a.Config.Filings.BaseURL != "" {
			filingsOpts = append(filingsOpts, filings.WithBaseURL(a.Config.Filings.BaseURL))
		}
		a.FilingsClient = filings.NewClient(a.Config.Filings.UserAgent, filingsOpts...)
		a.Logger.Debug().Msg("Filings client initialized")
	}

	llmService, err := llm.NewClaudeService(&a.Config.Claude, a.StorageManager, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize LLM service: %w", err)
	}
	if err := llmService.HealthCheck(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("LLM health check failed, report generation may fail at run time")
	}
	a.LLMService = llmService

	a.PDFService = pdf.NewService(a.Logger)

	a.GeneratorService = generator.NewService(
		a.Config,
		a.MarketDataClient,
		a.FilingsClient,
		generator.NewKVCIKResolver(kv),
		a.LLMService,
		a.ToolClient,
		a.Logger,
	)

	a.ReportWorker = worker.NewReportWorker(
		a.StorageManager.ReportStorage(),
		a.GeneratorService,
		a.PDFService,
		a.Config,
		a.Logger,
	)

	a.Orchestrator = orchestrator.New(a.ReportWorker, a.Config, a.Logger)
	a.Dispatcher = dispatcher.New(a.Orchestrator, a.Config, a.Logger)

	return nil
}

// initHandlers creates the HTTP handlers.
func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.Breaker)
	a.ReportHandler = handlers.NewReportHandler(a.StorageManager.ReportStorage(), a.Config)
	a.RunHandler = handlers.NewRunHandler(a.Dispatcher)
}

// Start begins background work: the scheduled daily trigger.
func (a *App) Start() error {
	return a.Dispatcher.Start()
}

// Close shuts down background work and storage.
func (a *App) Close() error {
	a.Dispatcher.Stop()

	if closer, ok := a.LLMService.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close LLM service")
		}
	}

	if err := a.StorageManager.Close(); err != nil {
		return fmt.Errorf("failed to close storage: %w", err)
	}
	return nil
}
