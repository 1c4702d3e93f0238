// Package interfaces provides service interfaces for dependency injection.
package interfaces

import (
	"context"
	"time"
)

// GeneratedReport is the output of one report generation pass.
type GeneratedReport struct {
	// Markdown is the full report text.
	Markdown string
	// SourceDigest is a hash of the inputs the report was built from,
	// used for staleness reasoning by downstream consumers.
	SourceDigest string
	// Degraded indicates one or more inputs were unavailable and the report
	// was produced from reduced inputs.
	Degraded bool
	// MissingInputs names the unavailable inputs when Degraded is true.
	MissingInputs []string
}

// ReportGenerator produces one analyst report for a ticker. The worker treats
// it as an opaque capability: internally it may issue any number of guarded
// external calls, but the caller observes a single blocking Generate.
type ReportGenerator interface {
	Generate(ctx context.Context, symbol string, runDate time.Time) (*GeneratedReport, error)
}
