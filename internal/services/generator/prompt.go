package generator

import (
	"fmt"
	"strings"
)

// Prompt holds the system and user messages sent to the LLM.
type Prompt struct {
	System string
	User   string
}

const systemPrompt = `You are an equity research analyst producing a concise daily brief for a single ticker.

Write well-structured markdown with these sections:
# <TICKER> Daily Brief - <DATE>
## Price Action
## News
## Fundamentals
## Filings
## Assessment

Rules:
- Use only the data provided. Never invent prices, events or figures.
- If a section has no data, state that the data was unavailable for this run.
- Keep the Assessment section to three or four sentences.
- Do not give financial advice or price targets of your own.`

// buildPrompt renders the gathered inputs into the LLM prompt.
func buildPrompt(inputs *reportInputs) Prompt {
	var b strings.Builder
	symbol := inputs.ticker.EODHDSymbol()
	date := inputs.runDate.Format("2006-01-02")

	fmt.Fprintf(&b, "Ticker: %s\nRun date: %s\n\n", symbol, date)

	b.WriteString("## Price history (most recent last)\n")
	if len(inputs.eod) > 0 {
		b.WriteString("| Date | Open | High | Low | Close | Volume |\n")
		b.WriteString("|------|------|------|-----|-------|--------|\n")
		bars := inputs.eod
		// Keep the prompt bounded, the LLM only needs recent context
		if len(bars) > 30 {
			bars = bars[len(bars)-30:]
		}
		for _, bar := range bars {
			fmt.Fprintf(&b, "| %s | %.4f | %.4f | %.4f | %.4f | %d |\n",
				bar.DateStr, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume)
		}
	} else {
		b.WriteString("No price history available.\n")
	}
	b.WriteString("\n")

	b.WriteString("## News\n")
	if missingInput(inputs.missing, InputNews) {
		b.WriteString("News data was unavailable for this run.\n")
	} else if len(inputs.news) == 0 {
		b.WriteString("No news articles in the lookback window.\n")
	} else {
		for _, item := range inputs.news {
			fmt.Fprintf(&b, "- [%s] %s\n", item.DateStr, item.Title)
			if item.Sentiment != nil {
				fmt.Fprintf(&b, "  (sentiment polarity %.2f)\n", item.Sentiment.Polarity)
			}
			if content := strings.TrimSpace(item.Content); content != "" {
				if len(content) > 500 {
					content = content[:500] + "..."
				}
				fmt.Fprintf(&b, "  %s\n", content)
			}
		}
	}
	b.WriteString("\n")

	b.WriteString("## Fundamentals\n")
	if missingInput(inputs.missing, InputFundamentals) {
		b.WriteString("Fundamentals data was unavailable for this run.\n")
	} else if inputs.fundamentals == nil {
		b.WriteString("No fundamentals data available.\n")
	} else {
		if g := inputs.fundamentals.General; g != nil {
			fmt.Fprintf(&b, "Name: %s\nSector: %s\nIndustry: %s\nCurrency: %s\n",
				g.Name, g.Sector, g.Industry, g.CurrencyCode)
		}
		if hl := inputs.fundamentals.Highlights; hl != nil {
			fmt.Fprintf(&b, "Market cap: %.0f\nPE ratio: %.2f\nDividend yield: %.4f\nEPS: %.2f\n",
				hl.MarketCapitalization, hl.PERatio, hl.DividendYield, hl.EarningsShare)
		}
	}
	b.WriteString("\n")

	b.WriteString("## Filings\n")
	if missingInput(inputs.missing, InputFilings) {
		b.WriteString("Filings data was unavailable for this run.\n")
	} else if len(inputs.filings) == 0 {
		b.WriteString("No recent filings available.\n")
	} else {
		for _, f := range inputs.filings {
			fmt.Fprintf(&b, "- %s filed %s (%s)\n",
				f.Form, f.FilingDate.Format("2006-01-02"), f.AccessionNumber)
		}
	}

	return Prompt{
		System: systemPrompt,
		User:   b.String(),
	}
}

func missingInput(missing []string, name string) bool {
	for _, m := range missing {
		if m == name {
			return true
		}
	}
	return false
}
