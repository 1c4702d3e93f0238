package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ternarybob/marketbrief/internal/common"
	"github.com/ternarybob/marketbrief/internal/eodhd"
	"github.com/ternarybob/marketbrief/internal/filings"
	"github.com/ternarybob/marketbrief/internal/interfaces"
)

// MarketDataProvider supplies price, news and fundamentals data for a ticker.
// *eodhd.Client satisfies this interface.
type MarketDataProvider interface {
	GetEOD(ctx context.Context, symbol string, opts ...eodhd.QueryOption) (eodhd.EODResponse, error)
	GetNews(ctx context.Context, symbols []string, opts ...eodhd.QueryOption) (eodhd.NewsResponse, error)
	GetFundamentals(ctx context.Context, symbol string) (*eodhd.Fundamentals, error)
}

// FilingsProvider supplies recent regulatory filings for a company.
// *filings.Client satisfies this interface.
type FilingsProvider interface {
	GetRecentFilings(ctx context.Context, cik string, limit int) ([]filings.Filing, error)
}

// CIKResolver maps a ticker to the company identifier used by the filings
// provider. Tickers without a known mapping return ErrNoCIKMapping.
type CIKResolver interface {
	ResolveCIK(ctx context.Context, ticker common.Ticker) (string, error)
}

// ErrNoCIKMapping indicates no company identifier is known for a ticker.
var ErrNoCIKMapping = errors.New("no CIK mapping for ticker")

// KVCIKResolver resolves CIK mappings from the key-value store under
// keys of the form "cik:<code>".
type KVCIKResolver struct {
	kv interfaces.KeyValueStorage
}

// NewKVCIKResolver creates a CIK resolver backed by the key-value store.
func NewKVCIKResolver(kv interfaces.KeyValueStorage) *KVCIKResolver {
	return &KVCIKResolver{kv: kv}
}

// ResolveCIK looks up the CIK for a ticker code.
func (r *KVCIKResolver) ResolveCIK(ctx context.Context, ticker common.Ticker) (string, error) {
	key := "cik:" + strings.ToLower(ticker.Code)
	cik, err := r.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, interfaces.ErrKeyNotFound) {
			return "", ErrNoCIKMapping
		}
		return "", fmt.Errorf("failed to resolve CIK for %s: %w", ticker.Code, err)
	}
	if cik == "" {
		return "", ErrNoCIKMapping
	}
	return cik, nil
}
