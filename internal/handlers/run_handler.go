package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/marketbrief/internal/common"
	"github.com/ternarybob/marketbrief/internal/dispatcher"
)

// RunHandler exposes run triggering and polling.
type RunHandler struct {
	dispatcher *dispatcher.Dispatcher
	logger     arbor.ILogger
}

// NewRunHandler creates a run handler.
func NewRunHandler(d *dispatcher.Dispatcher) *RunHandler {
	return &RunHandler{
		dispatcher: d,
		logger:     common.GetLogger(),
	}
}

// triggerRunRequest is the POST /api/runs body. Both fields are optional:
// omitted symbols use the configured watchlist, an omitted run date
// resolves to the last trading day.
type triggerRunRequest struct {
	Symbols []string `json:"symbols,omitempty"`
	RunDate string   `json:"run_date,omitempty"`
}

// RunsHandler handles /api/runs: POST triggers a run, GET lists runs.
func (h *RunHandler) RunsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.triggerRun(w, r)
	case http.MethodGet:
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"runs": h.dispatcher.ListRuns(),
		})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *RunHandler) triggerRun(w http.ResponseWriter, r *http.Request) {
	var req triggerRunRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	var runDate time.Time
	if req.RunDate != "" {
		parsed, err := time.Parse("2006-01-02", req.RunDate)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid run_date, expected YYYY-MM-DD")
			return
		}
		runDate = parsed
	}

	runID, err := h.dispatcher.TriggerRun(req.Symbols, runDate)
	if err != nil {
		switch {
		case errors.Is(err, dispatcher.ErrRunInProgress):
			WriteError(w, http.StatusConflict, "a run is already in progress")
		case errors.Is(err, dispatcher.ErrNoSymbols):
			WriteError(w, http.StatusBadRequest, "no symbols configured or provided")
		default:
			h.logger.Error().Err(err).Msg("Run trigger failed")
			WriteError(w, http.StatusInternalServerError, "run trigger failed")
		}
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]string{
		"status": "started",
		"run_id": runID,
	})
}

// GetRunHandler handles GET /api/runs/{id}.
func (h *RunHandler) GetRunHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	runID := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	runID = strings.TrimSuffix(runID, "/")
	if runID == "" {
		WriteError(w, http.StatusBadRequest, "run id is required")
		return
	}

	summary, err := h.dispatcher.GetRun(runID)
	if err != nil {
		if errors.Is(err, dispatcher.ErrRunNotFound) {
			WriteError(w, http.StatusNotFound, "run not found")
			return
		}
		h.logger.Error().Err(err).Str("run_id", runID).Msg("Run lookup failed")
		WriteError(w, http.StatusInternalServerError, "run lookup failed")
		return
	}

	WriteJSON(w, http.StatusOK, summary)
}
