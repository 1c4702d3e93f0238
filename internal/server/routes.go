package server

import (
	"net/http"

	"github.com/ternarybob/marketbrief/internal/telemetry"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// API routes - Reports (read-only cache access)
	mux.HandleFunc("/api/reports", s.app.ReportHandler.ListReportsHandler) // GET ?date=YYYY-MM-DD
	mux.HandleFunc("/api/reports/", s.app.ReportHandler.GetReportHandler) // GET /{symbol}[?date=YYYY-MM-DD]

	// API routes - Runs (trigger and poll precompute runs)
	mux.HandleFunc("/api/runs", s.app.RunHandler.RunsHandler)    // POST (trigger), GET (list)
	mux.HandleFunc("/api/runs/", s.app.RunHandler.GetRunHandler) // GET /{id}

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// Prometheus metrics
	mux.Handle("/metrics", telemetry.Handler())

	// Catch-all for unknown API paths
	mux.HandleFunc("/", s.app.APIHandler.NotFoundHandler)

	return mux
}
