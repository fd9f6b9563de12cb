package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tenor/internal/services/batch"
)

// BatchHandler handles batch submission and status
type BatchHandler struct {
	batches BatchCoordinator
	logger  arbor.ILogger
}

// NewBatchHandler creates a new BatchHandler
func NewBatchHandler(batches BatchCoordinator, logger arbor.ILogger) *BatchHandler {
	return &BatchHandler{
		batches: batches,
		logger:  logger,
	}
}

// SubmitHandler handles POST /api/batches. The batch is accepted once its
// members are claimed; processing continues on the queue.
func (h *BatchHandler) SubmitHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req batch.Request
	if !DecodeJSON(w, r, &req) {
		return
	}

	job, err := h.batches.Submit(r.Context(), req)
	if err != nil {
		WriteServiceError(w, h.logger, err, "Failed to submit batch")
		return
	}
	WriteJSON(w, http.StatusAccepted, job)
}

// GetHandler handles GET /api/batches/{id}
func (h *BatchHandler) GetHandler(w http.ResponseWriter, r *http.Request, id string) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	job, err := h.batches.Get(r.Context(), id)
	if err != nil {
		WriteServiceError(w, h.logger, err, "Failed to get batch")
		return
	}
	WriteJSON(w, http.StatusOK, job)
}
