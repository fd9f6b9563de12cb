package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tenor/internal/interfaces"
)

// ReportHandler runs the synchronous pipeline for single reports
type ReportHandler struct {
	storage           interfaces.StorageManager
	processor         interfaces.DocumentProcessor
	includeEmbeddings bool
	logger            arbor.ILogger
}

// NewReportHandler creates a new ReportHandler
func NewReportHandler(storage interfaces.StorageManager, processor interfaces.DocumentProcessor,
	includeEmbeddings bool, logger arbor.ILogger) *ReportHandler {
	return &ReportHandler{
		storage:           storage,
		processor:         processor,
		includeEmbeddings: includeEmbeddings,
		logger:            logger,
	}
}

// HandleReportRoutes dispatches /api/reports/{id}/process and /api/reports/{id}/reset
func (h *ReportHandler) HandleReportRoutes(w http.ResponseWriter, r *http.Request) {
	id := PathSegment(r.URL.Path, "/api/reports/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Report ID is required")
		return
	}

	switch {
	case strings.HasSuffix(r.URL.Path, "/process"):
		h.ProcessHandler(w, r, id)
	case strings.HasSuffix(r.URL.Path, "/reset"):
		h.ResetHandler(w, r, id)
	default:
		WriteError(w, http.StatusNotFound, "Unknown report operation")
	}
}

// ProcessHandler handles POST /api/reports/{id}/process?force=&embeddings=.
// The pipeline result is always returned; a failed run answers 422.
func (h *ReportHandler) ProcessHandler(w http.ResponseWriter, r *http.Request, id string) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	opts := interfaces.ProcessOptions{
		IncludeEmbeddings: QueryBool(r, "embeddings", h.includeEmbeddings),
		ForceReprocess:    QueryBool(r, "force", false),
	}

	result := h.processor.Process(r.Context(), id, opts)
	if !result.Success() {
		WriteJSON(w, http.StatusUnprocessableEntity, result)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// ResetHandler handles POST /api/reports/{id}/reset, returning a FAILED or
// COMPLETED report to PENDING
func (h *ReportHandler) ResetHandler(w http.ResponseWriter, r *http.Request, id string) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	report, err := h.storage.TransactionStorage().ResetReport(r.Context(), id)
	if err != nil {
		WriteServiceError(w, h.logger, err, "Failed to reset report")
		return
	}

	h.logger.Info().Str("report_id", id).Msg("Report reset to pending")
	WriteJSON(w, http.StatusOK, report)
}
