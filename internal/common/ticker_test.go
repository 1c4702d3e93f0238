package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTicker(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		exchange string
		code     string
	}{
		{"colon format", "ASX:GNP", "ASX", "GNP"},
		{"colon format lowercase", "asx:gnp", "ASX", "GNP"},
		{"eodhd format", "GNP.AU", "ASX", "GNP"},
		{"eodhd us format", "AAPL.US", "NYSE", "AAPL"},
		{"bare code defaults", "CBA", "ASX", "CBA"},
		{"bare code lowercase", "cba", "ASX", "CBA"},
		{"whitespace trimmed", "  CBA.AU ", "ASX", "CBA"},
		{"unknown suffix treated as code", "BRK.A", "ASX", "BRK.A"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ticker := ParseTicker(tt.input)
			assert.Equal(t, tt.exchange, ticker.Exchange)
			assert.Equal(t, tt.code, ticker.Code)
		})
	}
}

func TestParseTickerEmpty(t *testing.T) {
	ticker := ParseTicker("")
	assert.Empty(t, ticker.Code)
	assert.Empty(t, ticker.Exchange)

	ticker = ParseTicker("   ")
	assert.Empty(t, ticker.Code)
}

func TestTickerEODHDSymbol(t *testing.T) {
	assert.Equal(t, "GNP.AU", ParseTicker("ASX:GNP").EODHDSymbol())
	assert.Equal(t, "AAPL.US", ParseTicker("NASDAQ:AAPL").EODHDSymbol())
	assert.Equal(t, "", Ticker{}.EODHDSymbol())
}

func TestTickerString(t *testing.T) {
	assert.Equal(t, "ASX:GNP", ParseTicker("GNP.AU").String())
	assert.Equal(t, "NYSE:AAPL", ParseTicker("AAPL.US").String())
}

func TestNormalizeSymbol(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"CBA", "CBA.AU"},
		{"ASX:CBA", "CBA.AU"},
		{"CBA.AU", "CBA.AU"},
		{"cba.au", "CBA.AU"},
		{"NASDAQ:MSFT", "MSFT.US"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeSymbol(tt.input), "input %q", tt.input)
	}
}
