package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
)

// SweepHandler triggers the stuck-report sweep on demand
type SweepHandler struct {
	sweeper StuckSweeper
	logger  arbor.ILogger
}

// NewSweepHandler creates a new SweepHandler
func NewSweepHandler(sweeper StuckSweeper, logger arbor.ILogger) *SweepHandler {
	return &SweepHandler{
		sweeper: sweeper,
		logger:  logger,
	}
}

// SweepHandler handles POST /api/sweep?older_than=2h. Without older_than the
// configured threshold applies.
func (h *SweepHandler) SweepHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var olderThan time.Duration
	if raw := r.URL.Query().Get("older_than"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			WriteError(w, http.StatusBadRequest, "older_than must be a positive duration such as 2h")
			return
		}
		olderThan = d
	}

	result, err := h.sweeper.ResetStuck(r.Context(), olderThan)
	if err != nil {
		WriteServiceError(w, h.logger, err, "Failed to sweep stuck reports")
		return
	}
	WriteJSON(w, http.StatusOK, result)
}
