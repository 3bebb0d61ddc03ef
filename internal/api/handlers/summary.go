package handlers

import (
	"net/http"

	"github.com/mkessler-dev/ledgermatch/internal/api/dto"
	"github.com/mkessler-dev/ledgermatch/internal/infrastructure/storage"
)

// SummaryHandler handles aggregate statistics requests.
type SummaryHandler struct {
	*Base
}

// NewSummaryHandler creates a new summary handler.
func NewSummaryHandler(repo storage.Repository) *SummaryHandler {
	return &SummaryHandler{
		Base: NewBase(repo),
	}
}

// Get handles GET /api/summary - returns aggregate run statistics.
func (h *SummaryHandler) Get(w http.ResponseWriter, r *http.Request) {
	summary, err := h.repo.GetSummary()
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	h.WriteJSON(w, http.StatusOK, dto.SummaryResponse{
		TotalRuns:     summary.TotalRuns,
		CompletedRuns: summary.CompletedRuns,
		FailedRuns:    summary.FailedRuns,
		TotalChanges:  summary.TotalChanges,
		TotalApplied:  summary.TotalApplied,
		AvgMatchRate:  summary.AvgMatchRate,
	})
}
