package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/marketbrief/internal/common"
	"github.com/ternarybob/marketbrief/internal/interfaces"
	"github.com/ternarybob/marketbrief/internal/models"
)

// ReportHandler serves cached report artifacts to API consumers. Reads
// never trigger generation: a missing artifact is reported as not yet
// computed and a stale one is served with a staleness marker.
type ReportHandler struct {
	storage interfaces.ReportStorage
	config  *common.Config
	logger  arbor.ILogger

	// now is injectable for staleness tests
	now func() time.Time
}

// NewReportHandler creates a report handler.
func NewReportHandler(storage interfaces.ReportStorage, config *common.Config) *ReportHandler {
	return &ReportHandler{
		storage: storage,
		config:  config,
		logger:  common.GetLogger(),
		now:     time.Now,
	}
}

// reportResponse wraps an artifact with its staleness marker.
type reportResponse struct {
	Report *models.ReportArtifact `json:"report"`
	Stale  bool                   `json:"stale"`
}

// GetReportHandler handles GET /api/reports/{symbol}.
// An optional date query parameter (YYYY-MM-DD) selects a specific run
// date; without it the most recent artifact for the symbol is returned.
func (h *ReportHandler) GetReportHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	symbol := strings.TrimPrefix(r.URL.Path, "/api/reports/")
	symbol = strings.TrimSuffix(symbol, "/")
	if symbol == "" {
		WriteError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	symbol = common.NormalizeSymbol(symbol)

	var artifact *models.ReportArtifact
	var err error
	if dateStr := r.URL.Query().Get("date"); dateStr != "" {
		date, parseErr := time.Parse("2006-01-02", dateStr)
		if parseErr != nil {
			WriteError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
			return
		}
		artifact, err = h.storage.Get(r.Context(), symbol, date)
	} else {
		artifact, err = h.storage.GetBySymbol(r.Context(), symbol)
	}

	if err != nil {
		if errors.Is(err, interfaces.ErrReportNotFound) {
			WriteJSON(w, http.StatusNotFound, map[string]string{
				"status": "not_computed",
				"symbol": symbol,
			})
			return
		}
		h.logger.Error().Err(err).Str("symbol", symbol).Msg("Report lookup failed")
		WriteError(w, http.StatusInternalServerError, "report lookup failed")
		return
	}

	window := h.config.Runs.FreshnessWindowDuration()
	WriteJSON(w, http.StatusOK, reportResponse{
		Report: artifact,
		Stale:  !artifact.IsFresh(h.now(), window),
	})
}

// ListReportsHandler handles GET /api/reports?date=YYYY-MM-DD.
func (h *ReportHandler) ListReportsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	dateStr := r.URL.Query().Get("date")
	if dateStr == "" {
		WriteError(w, http.StatusBadRequest, "date query parameter is required")
		return
	}
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}

	artifacts, err := h.storage.List(r.Context(), date)
	if err != nil {
		h.logger.Error().Err(err).Str("date", dateStr).Msg("Report listing failed")
		WriteError(w, http.StatusInternalServerError, "report listing failed")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"date":    dateStr,
		"count":   len(artifacts),
		"reports": artifacts,
	})
}
