package generator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/marketbrief/internal/common"
	"github.com/ternarybob/marketbrief/internal/eodhd"
	"github.com/ternarybob/marketbrief/internal/filings"
	"github.com/ternarybob/marketbrief/internal/interfaces"
	"github.com/ternarybob/marketbrief/internal/toolclient"
)

const (
	// priceHistoryDays is the lookback window for EOD price history.
	priceHistoryDays = 90

	// newsLookbackDays is the lookback window for news articles.
	newsLookbackDays = 7
)

// Input name constants recorded on degraded artifacts.
const (
	InputNews         = "news"
	InputFundamentals = "fundamentals"
	InputFilings      = "filings"
)

// ErrInvalidSymbol indicates the requested symbol could not be parsed
// or is unknown to the market data provider.
var ErrInvalidSymbol = errors.New("invalid symbol")

// Service generates analyst reports for tracked tickers. Every external
// call goes through the guarded tool client so dependency failures trip
// the matching circuit breaker.
type Service struct {
	config      *common.Config
	marketData  MarketDataProvider
	filingsData FilingsProvider
	cikResolver CIKResolver
	llm         interfaces.LLMService
	tools       *toolclient.Client
	logger      arbor.ILogger
}

// Compile-time assertion
var _ interfaces.ReportGenerator = (*Service)(nil)

// NewService creates a report generator.
func NewService(
	config *common.Config,
	marketData MarketDataProvider,
	filingsData FilingsProvider,
	cikResolver CIKResolver,
	llm interfaces.LLMService,
	tools *toolclient.Client,
	logger arbor.ILogger,
) *Service {
	return &Service{
		config:      config,
		marketData:  marketData,
		filingsData: filingsData,
		cikResolver: cikResolver,
		llm:         llm,
		tools:       tools,
		logger:      logger,
	}
}

// reportInputs collects the gathered data used to build the prompt and
// the source digest.
type reportInputs struct {
	ticker       common.Ticker
	runDate      time.Time
	eod          eodhd.EODResponse
	news         eodhd.NewsResponse
	fundamentals *eodhd.Fundamentals
	filings      []filings.Filing
	missing      []string
}

// Generate produces a markdown analyst report for the symbol as of runDate.
//
// Market data is a required input; its failure aborts generation with the
// dependency error so the caller can classify retryability. News,
// fundamentals and filings degrade gracefully: their failures are recorded
// on the artifact instead of failing the job.
func (s *Service) Generate(ctx context.Context, symbol string, runDate time.Time) (*interfaces.GeneratedReport, error) {
	ticker := common.ParseTicker(symbol)
	if ticker.Code == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
	}

	s.logger.Info().
		Str("symbol", ticker.EODHDSymbol()).
		Str("run_date", runDate.Format("2006-01-02")).
		Msg("Generating report")

	inputs, err := s.gatherInputs(ctx, ticker, runDate)
	if err != nil {
		return nil, err
	}

	prompt := buildPrompt(inputs)

	var markdown string
	llmTimeout := s.config.Claude.TimeoutDuration()
	err = s.tools.Call(ctx, toolclient.DependencyLLM, llmTimeout, func(callCtx context.Context) error {
		var chatErr error
		markdown, chatErr = s.llm.Chat(callCtx, []interfaces.Message{
			{Role: "system", Content: prompt.System},
			{Role: "user", Content: prompt.User},
		})
		return chatErr
	})
	if err != nil {
		return nil, fmt.Errorf("report generation failed for %s: %w", ticker.EODHDSymbol(), err)
	}

	report := &interfaces.GeneratedReport{
		Markdown:      markdown,
		SourceDigest:  digestInputs(inputs),
		Degraded:      len(inputs.missing) > 0,
		MissingInputs: inputs.missing,
	}

	s.logger.Info().
		Str("symbol", ticker.EODHDSymbol()).
		Int("markdown_len", len(markdown)).
		Bool("degraded", report.Degraded).
		Strs("missing_inputs", inputs.missing).
		Msg("Report generated")

	return report, nil
}

// gatherInputs fetches all report inputs through the guarded tool client.
func (s *Service) gatherInputs(ctx context.Context, ticker common.Ticker, runDate time.Time) (*reportInputs, error) {
	inputs := &reportInputs{
		ticker:  ticker,
		runDate: runDate,
	}
	symbol := ticker.EODHDSymbol()
	mdTimeout := s.config.EODHD.RequestTimeoutDuration()

	// Price history is required. An unknown symbol surfaces as a semantic
	// rejection so the breaker stays closed.
	err := s.tools.Call(ctx, toolclient.DependencyMarketData, mdTimeout, func(callCtx context.Context) error {
		eod, eodErr := s.marketData.GetEOD(callCtx, symbol,
			eodhd.WithDateRange(runDate.AddDate(0, 0, -priceHistoryDays), runDate))
		if eodErr != nil {
			var apiErr *eodhd.APIError
			if errors.As(eodErr, &apiErr) && apiErr.IsNotFound() {
				return toolclient.Rejected(toolclient.DependencyMarketData,
					fmt.Errorf("%w: %s", ErrInvalidSymbol, symbol))
			}
			return eodErr
		}
		inputs.eod = eod
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("market data fetch failed for %s: %w", symbol, err)
	}
	if len(inputs.eod) == 0 {
		return nil, toolclient.Rejected(toolclient.DependencyMarketData,
			fmt.Errorf("%w: no price history for %s", ErrInvalidSymbol, symbol))
	}

	// News is optional.
	newsLimit := s.config.EODHD.NewsLimit
	err = s.tools.Call(ctx, toolclient.DependencyNews, mdTimeout, func(callCtx context.Context) error {
		news, newsErr := s.marketData.GetNews(callCtx, []string{symbol},
			eodhd.WithDateRange(runDate.AddDate(0, 0, -newsLookbackDays), runDate),
			eodhd.WithLimit(newsLimit))
		if newsErr != nil {
			return newsErr
		}
		inputs.news = news
		return nil
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("News fetch failed, continuing degraded")
		inputs.missing = append(inputs.missing, InputNews)
	}

	// Fundamentals are optional.
	err = s.tools.Call(ctx, toolclient.DependencyMarketData, mdTimeout, func(callCtx context.Context) error {
		fundamentals, fundErr := s.marketData.GetFundamentals(callCtx, symbol)
		if fundErr != nil {
			var apiErr *eodhd.APIError
			if errors.As(fundErr, &apiErr) && apiErr.IsNotFound() {
				return toolclient.Rejected(toolclient.DependencyMarketData, fundErr)
			}
			return fundErr
		}
		inputs.fundamentals = fundamentals
		return nil
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("Fundamentals fetch failed, continuing degraded")
		inputs.missing = append(inputs.missing, InputFundamentals)
	}

	// Filings are optional and only gathered where a company identifier
	// mapping exists.
	if s.config.Filings.Enabled && s.filingsData != nil {
		s.gatherFilings(ctx, inputs)
	}

	return inputs, nil
}

func (s *Service) gatherFilings(ctx context.Context, inputs *reportInputs) {
	cik, err := s.cikResolver.ResolveCIK(ctx, inputs.ticker)
	if err != nil {
		if !errors.Is(err, ErrNoCIKMapping) {
			s.logger.Warn().Err(err).Str("code", inputs.ticker.Code).Msg("CIK resolution failed")
		}
		return
	}

	filingsTimeout := s.config.Filings.RequestTimeoutDuration()
	err = s.tools.Call(ctx, toolclient.DependencyFilings, filingsTimeout, func(callCtx context.Context) error {
		recent, filErr := s.filingsData.GetRecentFilings(callCtx, cik, s.config.Filings.MaxFilings)
		if filErr != nil {
			var apiErr *filings.APIError
			if errors.As(filErr, &apiErr) && apiErr.IsNotFound() {
				return toolclient.Rejected(toolclient.DependencyFilings, filErr)
			}
			return filErr
		}
		inputs.filings = recent
		return nil
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("cik", cik).Msg("Filings fetch failed, continuing degraded")
		inputs.missing = append(inputs.missing, InputFilings)
	}
}

// digestInputs produces a stable hash over the gathered inputs so
// unchanged inputs yield the same digest across runs.
func digestInputs(inputs *reportInputs) string {
	h := sha256.New()
	fmt.Fprintf(h, "symbol=%s\n", inputs.ticker.EODHDSymbol())
	fmt.Fprintf(h, "date=%s\n", inputs.runDate.Format("2006-01-02"))

	for _, bar := range inputs.eod {
		fmt.Fprintf(h, "eod=%s,%.4f,%.4f,%d\n", bar.DateStr, bar.Close, bar.AdjustedClose, bar.Volume)
	}
	for _, item := range inputs.news {
		fmt.Fprintf(h, "news=%s,%s\n", item.DateStr, item.Title)
	}
	if inputs.fundamentals != nil {
		if g := inputs.fundamentals.General; g != nil {
			fmt.Fprintf(h, "fundamentals.general=%s,%s\n", g.Name, g.Sector)
		}
		if hl := inputs.fundamentals.Highlights; hl != nil {
			fmt.Fprintf(h, "fundamentals.highlights=%.2f,%.4f\n", hl.MarketCapitalization, hl.PERatio)
		}
	}
	for _, f := range inputs.filings {
		fmt.Fprintf(h, "filing=%s,%s\n", f.AccessionNumber, f.Form)
	}

	return hex.EncodeToString(h.Sum(nil))
}
