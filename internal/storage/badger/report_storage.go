package badger

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/marketbrief/internal/interfaces"
	"github.com/ternarybob/marketbrief/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// keyStripes bounds the lock table for per-key commit serialization.
const keyStripes = 64

// ReportStorage implements the ReportStorage interface for Badger.
//
// PutIfNewer serializes commits per key with striped locks so two workers
// retrying the same (symbol, date) can never both observe a stale entry
// and both overwrite it.
type ReportStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
	locks  [keyStripes]sync.Mutex
}

// NewReportStorage creates a new ReportStorage instance
func NewReportStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ReportStorage {
	return &ReportStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ReportStorage) lockFor(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &s.locks[h.Sum32()%keyStripes]
}

// Get retrieves the current artifact for (symbol, date).
func (s *ReportStorage) Get(ctx context.Context, symbol string, date time.Time) (*models.ReportArtifact, error) {
	key := models.ReportKey(symbol, date)

	var artifact models.ReportArtifact
	err := s.db.Store().Get(key, &artifact)
	if err == badgerhold.ErrNotFound {
		return nil, interfaces.ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report %s: %w", key, err)
	}

	return &artifact, nil
}

// PutIfNewer stores the artifact unless an entry with an equal or later
// GeneratedAt already exists for the same (symbol, date) key. Returns true
// if the artifact was stored, false if an existing entry won.
func (s *ReportStorage) PutIfNewer(ctx context.Context, artifact *models.ReportArtifact) (bool, error) {
	if artifact == nil {
		return false, fmt.Errorf("artifact cannot be nil")
	}
	key := artifact.Key()

	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	var existing models.ReportArtifact
	err := s.db.Store().Get(key, &existing)
	switch {
	case err == badgerhold.ErrNotFound:
		// First entry for the key
	case err != nil:
		return false, fmt.Errorf("failed to check existing report %s: %w", key, err)
	default:
		if !existing.GeneratedAt.Before(artifact.GeneratedAt) {
			s.logger.Debug().
				Str("key", key).
				Str("existing_id", existing.ID).
				Str("candidate_id", artifact.ID).
				Msg("Existing report is newer, skipping commit")
			return false, nil
		}
	}

	if err := s.db.Store().Upsert(key, artifact); err != nil {
		return false, fmt.Errorf("failed to store report %s: %w", key, err)
	}

	s.logger.Debug().
		Str("key", key).
		Str("report_id", artifact.ID).
		Bool("degraded", artifact.Degraded).
		Msg("Report committed")

	return true, nil
}

// GetBySymbol returns the most recent artifact for a symbol regardless of date.
func (s *ReportStorage) GetBySymbol(ctx context.Context, symbol string) (*models.ReportArtifact, error) {
	var artifacts []models.ReportArtifact
	err := s.db.Store().Find(&artifacts,
		badgerhold.Where("Symbol").MatchFunc(func(ra *badgerhold.RecordAccess) (bool, error) {
			field, ok := ra.Field().(string)
			return ok && strings.EqualFold(field, symbol), nil
		}).SortBy("DataDate").Reverse().Limit(1))
	if err != nil {
		return nil, fmt.Errorf("failed to find reports for %s: %w", symbol, err)
	}
	if len(artifacts) == 0 {
		return nil, interfaces.ErrReportNotFound
	}

	return &artifacts[0], nil
}

// List returns all artifacts for a run date.
func (s *ReportStorage) List(ctx context.Context, date time.Time) ([]*models.ReportArtifact, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	var artifacts []models.ReportArtifact
	err := s.db.Store().Find(&artifacts,
		badgerhold.Where("DataDate").Ge(dayStart).And("DataDate").Lt(dayEnd).SortBy("Symbol"))
	if err != nil {
		return nil, fmt.Errorf("failed to list reports for %s: %w", date.Format("2006-01-02"), err)
	}

	result := make([]*models.ReportArtifact, len(artifacts))
	for i := range artifacts {
		result[i] = &artifacts[i]
	}
	return result, nil
}

// Count returns the total number of cached artifacts.
func (s *ReportStorage) Count(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.ReportArtifact{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count reports: %w", err)
	}
	return int(count), nil
}
