package generator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/marketbrief/internal/breaker"
	"github.com/ternarybob/marketbrief/internal/common"
	"github.com/ternarybob/marketbrief/internal/eodhd"
	"github.com/ternarybob/marketbrief/internal/filings"
	"github.com/ternarybob/marketbrief/internal/interfaces"
	"github.com/ternarybob/marketbrief/internal/toolclient"
)

type fakeMarket struct {
	eod          eodhd.EODResponse
	eodErr       error
	news         eodhd.NewsResponse
	newsErr      error
	fundamentals *eodhd.Fundamentals
	fundErr      error

	eodCalls  int
	newsCalls int
	fundCalls int
}

func (f *fakeMarket) GetEOD(ctx context.Context, symbol string, opts ...eodhd.QueryOption) (eodhd.EODResponse, error) {
	f.eodCalls++
	return f.eod, f.eodErr
}

func (f *fakeMarket) GetNews(ctx context.Context, symbols []string, opts ...eodhd.QueryOption) (eodhd.NewsResponse, error) {
	f.newsCalls++
	return f.news, f.newsErr
}

func (f *fakeMarket) GetFundamentals(ctx context.Context, symbol string) (*eodhd.Fundamentals, error) {
	f.fundCalls++
	return f.fundamentals, f.fundErr
}

type fakeFilings struct {
	filings []filings.Filing
	err     error
	calls   int
}

func (f *fakeFilings) GetRecentFilings(ctx context.Context, cik string, limit int) ([]filings.Filing, error) {
	f.calls++
	return f.filings, f.err
}

type fakeResolver struct {
	cik string
	err error
}

func (f *fakeResolver) ResolveCIK(ctx context.Context, ticker common.Ticker) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.cik, nil
}

type fakeLLM struct {
	response string
	err      error
	calls    int
	lastMsgs []interfaces.Message
}

func (f *fakeLLM) Chat(ctx context.Context, messages []interfaces.Message) (string, error) {
	f.calls++
	f.lastMsgs = messages
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *fakeLLM) HealthCheck(ctx context.Context) error { return nil }

func (f *fakeLLM) GetModelInfo() (string, string) { return "fake", "fake-model" }

func testEOD() eodhd.EODResponse {
	return eodhd.EODResponse{
		{DateStr: "2026-01-05", Open: 1.20, High: 1.26, Low: 1.19, Close: 1.23, AdjustedClose: 1.23, Volume: 100000},
		{DateStr: "2026-01-06", Open: 1.23, High: 1.28, Low: 1.22, Close: 1.25, AdjustedClose: 1.25, Volume: 120000},
	}
}

func newTestService(t *testing.T, market *fakeMarket, fil *fakeFilings, resolver CIKResolver, llm *fakeLLM) *Service {
	t.Helper()
	logger := arbor.NewLogger()
	cfg := common.NewDefaultConfig()
	brk := breaker.New(breaker.DefaultOptions(), logger)
	tools := toolclient.New(brk, logger)
	if resolver == nil {
		resolver = &fakeResolver{err: ErrNoCIKMapping}
	}
	return NewService(cfg, market, fil, resolver, llm, tools, logger)
}

func TestGenerateFullInputs(t *testing.T) {
	market := &fakeMarket{
		eod:  testEOD(),
		news: eodhd.NewsResponse{{DateStr: "2026-01-06", Title: "Contract win announced"}},
		fundamentals: &eodhd.Fundamentals{
			General:    &eodhd.GeneralInfo{Name: "GenusPlus Group", Sector: "Industrials"},
			Highlights: &eodhd.Highlights{MarketCapitalization: 1.2e9, PERatio: 18.4},
		},
	}
	fil := &fakeFilings{filings: []filings.Filing{
		{AccessionNumber: "0001-26-000001", Form: "10-K", FilingDate: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)},
	}}
	llm := &fakeLLM{response: "# AAPL.US Daily Brief\n\nAll good."}

	svc := newTestService(t, market, fil, &fakeResolver{cik: "320193"}, llm)

	report, err := svc.Generate(context.Background(), "NYSE:AAPL", time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, llm.response, report.Markdown)
	assert.False(t, report.Degraded)
	assert.Empty(t, report.MissingInputs)
	assert.NotEmpty(t, report.SourceDigest)
	assert.Equal(t, 1, fil.calls)
	assert.Equal(t, 1, llm.calls)

	// The prompt carries the gathered data
	require.Len(t, llm.lastMsgs, 2)
	assert.Contains(t, llm.lastMsgs[1].Content, "Contract win announced")
	assert.Contains(t, llm.lastMsgs[1].Content, "10-K")
}

func TestGenerateDegradedWhenNewsFails(t *testing.T) {
	market := &fakeMarket{
		eod:     testEOD(),
		newsErr: errors.New("connection refused"),
		fundamentals: &eodhd.Fundamentals{
			General: &eodhd.GeneralInfo{Name: "GenusPlus Group"},
		},
	}
	llm := &fakeLLM{response: "# GNP.AU Daily Brief"}

	svc := newTestService(t, market, &fakeFilings{}, nil, llm)

	report, err := svc.Generate(context.Background(), "ASX:GNP", time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.True(t, report.Degraded)
	assert.Contains(t, report.MissingInputs, InputNews)
	assert.NotContains(t, report.MissingInputs, InputFundamentals)
	assert.Contains(t, llm.lastMsgs[1].Content, "News data was unavailable")
}

func TestGenerateFailsWhenMarketDataUnavailable(t *testing.T) {
	market := &fakeMarket{eodErr: errors.New("connection refused")}
	llm := &fakeLLM{response: "unused"}

	svc := newTestService(t, market, &fakeFilings{}, nil, llm)

	_, err := svc.Generate(context.Background(), "ASX:GNP", time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)

	assert.True(t, toolclient.IsRetryable(err))
	assert.Equal(t, 0, llm.calls)
}

func TestGenerateUnknownSymbolNotRetryable(t *testing.T) {
	market := &fakeMarket{eodErr: &eodhd.APIError{StatusCode: 404, Endpoint: "/eod/NOPE.AU"}}
	llm := &fakeLLM{response: "unused"}

	svc := newTestService(t, market, &fakeFilings{}, nil, llm)

	_, err := svc.Generate(context.Background(), "ASX:NOPE", time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)

	assert.False(t, toolclient.IsRetryable(err))
	assert.ErrorIs(t, err, ErrInvalidSymbol)
}

func TestGenerateEmptySymbolRejected(t *testing.T) {
	svc := newTestService(t, &fakeMarket{}, &fakeFilings{}, nil, &fakeLLM{})

	_, err := svc.Generate(context.Background(), "  ", time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidSymbol)
	assert.False(t, toolclient.IsRetryable(err))
}

func TestGenerateLLMFailurePropagates(t *testing.T) {
	market := &fakeMarket{eod: testEOD()}
	llm := &fakeLLM{err: errors.New("api error")}

	svc := newTestService(t, market, &fakeFilings{}, nil, llm)

	_, err := svc.Generate(context.Background(), "ASX:GNP", time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.True(t, toolclient.IsRetryable(err))
}

func TestGenerateFilingsFailureDegrades(t *testing.T) {
	market := &fakeMarket{eod: testEOD()}
	fil := &fakeFilings{err: errors.New("edgar unavailable")}
	llm := &fakeLLM{response: "# Brief"}

	svc := newTestService(t, market, fil, &fakeResolver{cik: "320193"}, llm)

	report, err := svc.Generate(context.Background(), "NYSE:AAPL", time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.True(t, report.Degraded)
	assert.Contains(t, report.MissingInputs, InputFilings)
}

func TestGenerateNoCIKMappingSkipsFilings(t *testing.T) {
	market := &fakeMarket{eod: testEOD()}
	fil := &fakeFilings{}
	llm := &fakeLLM{response: "# Brief"}

	svc := newTestService(t, market, fil, &fakeResolver{err: ErrNoCIKMapping}, llm)

	report, err := svc.Generate(context.Background(), "ASX:GNP", time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	// No filings attempt and no degradation, the input simply does not apply
	assert.Equal(t, 0, fil.calls)
	assert.NotContains(t, report.MissingInputs, InputFilings)
}

func TestSourceDigestStability(t *testing.T) {
	runDate := time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC)
	makeService := func() (*Service, *fakeLLM) {
		market := &fakeMarket{eod: testEOD()}
		llm := &fakeLLM{response: "# Brief"}
		return newTestService(t, market, &fakeFilings{}, nil, llm), llm
	}

	svc1, _ := makeService()
	svc2, _ := makeService()

	r1, err := svc1.Generate(context.Background(), "ASX:GNP", runDate)
	require.NoError(t, err)
	r2, err := svc2.Generate(context.Background(), "ASX:GNP", runDate)
	require.NoError(t, err)

	assert.Equal(t, r1.SourceDigest, r2.SourceDigest)

	// A changed input changes the digest
	market3 := &fakeMarket{eod: append(testEOD(), eodhd.EODData{DateStr: "2026-01-07", Close: 1.30})}
	svc3 := newTestService(t, market3, &fakeFilings{}, nil, &fakeLLM{response: "# Brief"})
	r3, err := svc3.Generate(context.Background(), "ASX:GNP", runDate)
	require.NoError(t, err)
	assert.NotEqual(t, r1.SourceDigest, r3.SourceDigest)
}
