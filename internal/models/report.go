package models

import (
	"fmt"
	"strings"
	"time"
)

// ReportArtifact is the cacheable unit: one generated analyst report for a
// (symbol, data date) key. Artifacts are never mutated in place - a newer
// generation supersedes the old entry via ReportStorage.PutIfNewer.
type ReportArtifact struct {
	ID             string    `json:"id"` // rpt_{uuid}
	Symbol         string    `json:"symbol"`
	DataDate       time.Time `json:"data_date"`
	ReportMarkdown string    `json:"report_markdown"`
	PDFRef         string    `json:"pdf_ref,omitempty"` // storage path, empty when rendering failed or was not requested
	GeneratedAt    time.Time `json:"generated_at"`
	SourceDigest   string    `json:"source_digest"` // hash of the inputs the report was built from

	// Degraded marks a report produced with one or more inputs unavailable.
	Degraded      bool     `json:"degraded,omitempty"`
	MissingInputs []string `json:"missing_inputs,omitempty"`
}

// Key returns the canonical storage key for a (symbol, date) pair.
func (a *ReportArtifact) Key() string {
	return ReportKey(a.Symbol, a.DataDate)
}

// ReportKey builds the canonical storage key: lowercase symbol + ISO date.
func ReportKey(symbol string, date time.Time) string {
	return fmt.Sprintf("%s:%s", strings.ToLower(symbol), date.Format("2006-01-02"))
}

// IsFresh reports whether the artifact is within the freshness window.
// Freshness is a property of GeneratedAt only; the store never enforces it.
func (a *ReportArtifact) IsFresh(now time.Time, maxStaleness time.Duration) bool {
	if maxStaleness <= 0 {
		return false
	}
	return now.Sub(a.GeneratedAt) < maxStaleness
}
