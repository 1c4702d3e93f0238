// Package common provides shared utilities across the application.
package common

import (
	"strings"
)

// Ticker represents a parsed exchange-qualified ticker.
// Format: EXCHANGE:CODE (e.g., "ASX:GNP", "NYSE:AAPL")
type Ticker struct {
	// Exchange is the exchange code (e.g., "ASX", "NYSE", "NASDAQ")
	Exchange string
	// Code is the stock/security code (e.g., "GNP", "AAPL")
	Code string
	// Raw is the original ticker string
	Raw string
}

// ExchangeToSuffix maps exchange codes to EODHD API suffixes.
var ExchangeToSuffix = map[string]string{
	"ASX":    ".AU",
	"NYSE":   ".US",
	"NASDAQ": ".US",
	"LSE":    ".LSE",
	"TSX":    ".TO",
	"XETRA":  ".XETRA",
}

// SuffixToExchange maps EODHD suffixes back to a representative exchange code.
var SuffixToExchange = map[string]string{
	"AU":    "ASX",
	"US":    "NYSE",
	"LSE":   "LSE",
	"TO":    "TSX",
	"XETRA": "XETRA",
}

// DefaultExchange is the default exchange used when parsing tickers without
// an exchange prefix.
var DefaultExchange = "ASX"

// ParseTicker parses an exchange-qualified ticker string.
// Supports formats:
//   - "ASX:GNP" -> Exchange="ASX", Code="GNP" (colon separator)
//   - "GNP.AU"  -> Exchange="ASX", Code="GNP" (EODHD CODE.SUFFIX format)
//   - "GNP"     -> Exchange=DefaultExchange, Code="GNP"
//   - "gnp"     -> normalized to uppercase
func ParseTicker(ticker string) Ticker {
	ticker = strings.TrimSpace(ticker)
	if ticker == "" {
		return Ticker{}
	}

	if idx := strings.Index(ticker, ":"); idx > 0 {
		return Ticker{
			Exchange: strings.ToUpper(ticker[:idx]),
			Code:     strings.ToUpper(ticker[idx+1:]),
			Raw:      ticker,
		}
	}

	// EODHD format: CODE.SUFFIX (suffix follows the last dot)
	if idx := strings.LastIndex(ticker, "."); idx > 0 {
		suffix := strings.ToUpper(ticker[idx+1:])
		if exchange, ok := SuffixToExchange[suffix]; ok {
			return Ticker{
				Exchange: exchange,
				Code:     strings.ToUpper(ticker[:idx]),
				Raw:      ticker,
			}
		}
	}

	return Ticker{
		Exchange: DefaultExchange,
		Code:     strings.ToUpper(ticker),
		Raw:      ticker,
	}
}

// String returns the full exchange-qualified ticker string.
func (t Ticker) String() string {
	if t.Exchange == "" || t.Code == "" {
		return t.Code
	}
	return t.Exchange + ":" + t.Code
}

// EODHDSymbol returns the EODHD API symbol format.
// Example: "ASX:GNP" -> "GNP.AU"
func (t Ticker) EODHDSymbol() string {
	if t.Code == "" {
		return ""
	}
	suffix, ok := ExchangeToSuffix[t.Exchange]
	if !ok {
		// Default to AU for unknown exchanges
		suffix = ".AU"
	}
	return t.Code + suffix
}

// NormalizeSymbol converts any supported ticker format to EODHD format.
// Examples:
//   - "CBA"     -> "CBA.AU"
//   - "ASX:CBA" -> "CBA.AU"
//   - "CBA.AU"  -> "CBA.AU" (no change)
func NormalizeSymbol(symbol string) string {
	return ParseTicker(symbol).EODHDSymbol()
}
