package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tenor/internal/services/trends"
)

// TrendHandler serves company sentiment trends
type TrendHandler struct {
	trends TrendBuilder
	logger arbor.ILogger
}

// NewTrendHandler creates a new TrendHandler
func NewTrendHandler(trendBuilder TrendBuilder, logger arbor.ILogger) *TrendHandler {
	return &TrendHandler{
		trends: trendBuilder,
		logger: logger,
	}
}

// HandleCompanyRoutes dispatches /api/companies/{id}/trends
func (h *TrendHandler) HandleCompanyRoutes(w http.ResponseWriter, r *http.Request) {
	id := PathSegment(r.URL.Path, "/api/companies/")
	if id == "" || !strings.HasSuffix(r.URL.Path, "/trends") {
		WriteError(w, http.StatusNotFound, "Unknown company operation")
		return
	}
	h.TrendsHandler(w, r, id)
}

// TrendsHandler handles GET /api/companies/{id}/trends?window=
func (h *TrendHandler) TrendsHandler(w http.ResponseWriter, r *http.Request, companyID string) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	window := QueryInt(r, "window", trends.DefaultWindow)
	result, err := h.trends.Build(r.Context(), companyID, window)
	if err != nil {
		WriteServiceError(w, h.logger, err, "Failed to build trends")
		return
	}
	WriteJSON(w, http.StatusOK, result)
}
