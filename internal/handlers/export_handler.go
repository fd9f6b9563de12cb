package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tenor/internal/services/export"
)

// ExportHandler streams analysis and delta documents
type ExportHandler struct {
	exporter Exporter
	logger   arbor.ILogger
}

// NewExportHandler creates a new ExportHandler
func NewExportHandler(exporter Exporter, logger arbor.ILogger) *ExportHandler {
	return &ExportHandler{
		exporter: exporter,
		logger:   logger,
	}
}

// AnalysisExportHandler handles GET /api/analyses/{id}/export?format=pdf|md|csv
func (h *ExportHandler) AnalysisExportHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	id := PathSegment(r.URL.Path, "/api/analyses/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Analysis ID is required")
		return
	}
	format, ok := h.format(w, r, export.FormatPDF)
	if !ok {
		return
	}

	doc, err := h.exporter.Analysis(r.Context(), id, format)
	if err != nil {
		WriteServiceError(w, h.logger, err, "Failed to export analysis")
		return
	}
	h.writeDocument(w, doc)
}

// DeltaExportHandler handles GET /api/deltas/{id}/export?format=pdf|md
func (h *ExportHandler) DeltaExportHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	id := PathSegment(r.URL.Path, "/api/deltas/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Delta ID is required")
		return
	}
	format, ok := h.format(w, r, export.FormatPDF)
	if !ok {
		return
	}

	doc, err := h.exporter.Delta(r.Context(), id, format)
	if err != nil {
		WriteServiceError(w, h.logger, err, "Failed to export delta")
		return
	}
	h.writeDocument(w, doc)
}

func (h *ExportHandler) format(w http.ResponseWriter, r *http.Request, def export.Format) (export.Format, bool) {
	raw := r.URL.Query().Get("format")
	if raw == "" {
		return def, true
	}
	format, err := export.ParseFormat(raw)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return format, true
}

func (h *ExportHandler) writeDocument(w http.ResponseWriter, doc *export.Document) {
	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(doc.Data); err != nil {
		h.logger.Warn().Err(err).Str("filename", doc.Filename).Msg("Failed to write export")
	}
}
