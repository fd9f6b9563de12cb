package server

import (
	"net/http"
	"strings"

	"github.com/ternarybob/tenor/internal/handlers"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// API routes - Reports (synchronous pipeline)
	mux.HandleFunc("/api/reports/", s.app.ReportHandler.HandleReportRoutes) // POST /{id}/process, POST /{id}/reset

	// API routes - Batches (asynchronous pipeline)
	mux.HandleFunc("/api/batches", s.app.BatchHandler.SubmitHandler) // POST - submit
	mux.HandleFunc("/api/batches/", s.handleBatchRoutes)             // GET /{id}, GET /{id}/ws

	// API routes - Deltas
	mux.HandleFunc("/api/deltas", s.app.DeltaHandler.CompareHandler) // POST - compare two reports
	mux.HandleFunc("/api/deltas/", s.handleDeltaRoutes)              // GET /{id}/export

	// API routes - Trends and exports
	mux.HandleFunc("/api/companies/", s.app.TrendHandler.HandleCompanyRoutes) // GET /{id}/trends
	mux.HandleFunc("/api/analyses/", s.handleAnalysisRoutes)                  // GET /{id}/export

	// API routes - Maintenance
	mux.HandleFunc("/api/sweep", s.app.SweepHandler.SweepHandler)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	mux.HandleFunc("/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleBatchRoutes routes /api/batches/{id} and /api/batches/{id}/ws
func (s *Server) handleBatchRoutes(w http.ResponseWriter, r *http.Request) {
	id := handlers.PathSegment(r.URL.Path, "/api/batches/")
	if id == "" {
		s.app.APIHandler.NotFoundHandler(w, r)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/batches/"+id)
	switch rest {
	case "", "/":
		s.app.BatchHandler.GetHandler(w, r, id)
	case "/ws":
		s.app.WSHandler.StreamHandler(w, r, id)
	default:
		s.app.APIHandler.NotFoundHandler(w, r)
	}
}

// handleDeltaRoutes routes /api/deltas/{id}/export
func (s *Server) handleDeltaRoutes(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/export") {
		s.app.APIHandler.NotFoundHandler(w, r)
		return
	}
	s.app.ExportHandler.DeltaExportHandler(w, r)
}

// handleAnalysisRoutes routes /api/analyses/{id}/export
func (s *Server) handleAnalysisRoutes(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/export") {
		s.app.APIHandler.NotFoundHandler(w, r)
		return
	}
	s.app.ExportHandler.AnalysisExportHandler(w, r)
}
