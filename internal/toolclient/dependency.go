// Package toolclient wraps every call to an unreliable external dependency
// behind a uniform contract: circuit breaker consultation, per-call timeout,
// failure classification, and per-call tracing.
package toolclient

// Dependency identifies one external dependency guarded by its own circuit.
type Dependency string

const (
	// DependencyMarketData is the EODHD price/fundamentals API
	DependencyMarketData Dependency = "market_data"
	// DependencyNews is the EODHD news API (separate circuit: separate quota and failure modes)
	DependencyNews Dependency = "news"
	// DependencyFilings is the external filings provider
	DependencyFilings Dependency = "filings"
	// DependencyLLM is the Claude API
	DependencyLLM Dependency = "llm"
)

func (d Dependency) String() string {
	return string(d)
}
