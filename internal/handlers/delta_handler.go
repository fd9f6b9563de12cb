package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
)

// DeltaHandler compares report analyses
type DeltaHandler struct {
	deltas DeltaComparer
	logger arbor.ILogger
}

// NewDeltaHandler creates a new DeltaHandler
func NewDeltaHandler(deltas DeltaComparer, logger arbor.ILogger) *DeltaHandler {
	return &DeltaHandler{
		deltas: deltas,
		logger: logger,
	}
}

type compareRequest struct {
	BaseReportID       string `json:"base_report_id"`
	ComparisonReportID string `json:"comparison_report_id"`
}

// CompareHandler handles POST /api/deltas
func (h *DeltaHandler) CompareHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req compareRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.BaseReportID == "" || req.ComparisonReportID == "" {
		WriteError(w, http.StatusBadRequest, "base_report_id and comparison_report_id are required")
		return
	}

	delta, err := h.deltas.Compare(r.Context(), req.BaseReportID, req.ComparisonReportID)
	if err != nil {
		WriteServiceError(w, h.logger, err, "Failed to compare reports")
		return
	}
	WriteJSON(w, http.StatusOK, delta)
}
