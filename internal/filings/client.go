package filings

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the SEC EDGAR data API base URL.
	DefaultBaseURL = "https://data.sec.gov"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the default rate limit (requests per second).
	// EDGAR enforces 10 req/s per user agent; stay well under it.
	DefaultRateLimit = 5
)

// Client retrieves company filings from an EDGAR-style API.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	logger     arbor.ILogger
	limiter    *rate.Limiter
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets a custom rate limit.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// NewClient creates a new filings client. EDGAR requires a descriptive
// user agent identifying the caller.
func NewClient(userAgent string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:   DefaultBaseURL,
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// get performs a GET request to the API.
func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	if c.logger != nil {
		c.logger.Debug().
			Str("url", c.baseURL+path).
			Msg("Filings API request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   path,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// GetRecentFilings retrieves the most recent filings for a company,
// newest first, up to limit entries.
func (c *Client) GetRecentFilings(ctx context.Context, cik string, limit int) ([]Filing, error) {
	var submissions submissionsResponse
	path := fmt.Sprintf("/submissions/CIK%s.json", padCIK(cik))
	if err := c.get(ctx, path, &submissions); err != nil {
		return nil, err
	}

	recent := submissions.Filings.Recent
	n := len(recent.AccessionNumber)

	filings := make([]Filing, 0, n)
	for i := 0; i < n; i++ {
		f := Filing{
			AccessionNumber: recent.AccessionNumber[i],
			Form:            at(recent.Form, i),
			PrimaryDocument: at(recent.PrimaryDocument, i),
		}
		if d := at(recent.FilingDate, i); d != "" {
			if t, err := time.Parse("2006-01-02", d); err == nil {
				f.FilingDate = t
			}
		}
		filings = append(filings, f)
	}

	sort.Slice(filings, func(i, j int) bool {
		return filings[i].FilingDate.After(filings[j].FilingDate)
	})

	if limit > 0 && len(filings) > limit {
		filings = filings[:limit]
	}

	return filings, nil
}

func at(s []string, i int) string {
	if i < len(s) {
		return s[i]
	}
	return ""
}

// padCIK left-pads a CIK to the 10 digits EDGAR expects.
func padCIK(cik string) string {
	for len(cik) < 10 {
		cik = "0" + cik
	}
	return cik
}
