package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/marketbrief/internal/models"
)

// ErrReportNotFound is returned when no artifact exists for a (symbol, date)
// key. Callers must treat this as "not yet computed", not as a failure.
var ErrReportNotFound = errors.New("report not found")

// ReportStorage defines the report cache store.
//
// Only workers write; chat/API consumers only read. PutIfNewer is the single
// write path and is atomic per key, so two concurrent retries can never both
// believe they committed the latest result.
type ReportStorage interface {
	// Get retrieves the current artifact for (symbol, date).
	// Returns ErrReportNotFound when no artifact exists for the key.
	Get(ctx context.Context, symbol string, date time.Time) (*models.ReportArtifact, error)

	// PutIfNewer stores the artifact unless an entry with an equal or later
	// GeneratedAt already exists for the same key. Returns true if the
	// artifact was stored, false if a newer entry won (not an error).
	PutIfNewer(ctx context.Context, artifact *models.ReportArtifact) (bool, error)

	// GetBySymbol returns the most recent artifact for a symbol regardless
	// of date, or ErrReportNotFound.
	GetBySymbol(ctx context.Context, symbol string) (*models.ReportArtifact, error)

	// List returns all artifacts for a run date.
	List(ctx context.Context, date time.Time) ([]*models.ReportArtifact, error)

	// Count returns the total number of cached artifacts.
	Count(ctx context.Context) (int, error)
}

// StorageManager provides access to all storage backends.
type StorageManager interface {
	ReportStorage() ReportStorage
	KeyValueStorage() KeyValueStorage
	Close() error
}
