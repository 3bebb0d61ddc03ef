package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mkessler-dev/ledgermatch/internal/api/dto"
	"github.com/mkessler-dev/ledgermatch/internal/infrastructure/storage"
)

// RunsHandler handles reconciliation run HTTP requests.
type RunsHandler struct {
	*Base
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(repo storage.Repository) *RunsHandler {
	return &RunsHandler{
		Base: NewBase(repo),
	}
}

// List handles GET /api/runs - returns recent runs, newest first.
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := ParseIntParam(r, "limit", 20)

	runs, err := h.repo.ListRuns(limit)
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	response := dto.RunListResponse{
		Runs:  make([]dto.RunResponse, 0, len(runs)),
		Count: len(runs),
	}
	for _, run := range runs {
		response.Runs = append(response.Runs, toRunResponse(run))
	}

	h.WriteJSON(w, http.StatusOK, response)
}

// Get handles GET /api/runs/{id} - returns a single run by ID.
func (h *RunsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid run ID"))
		return
	}

	run, err := h.repo.GetRun(id)
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}
	if run == nil {
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("run"))
		return
	}

	h.WriteJSON(w, http.StatusOK, toRunResponse(*run))
}

// Changes handles GET /api/runs/{id}/changes - returns a run's proposed changes.
func (h *RunsHandler) Changes(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid run ID"))
		return
	}

	run, err := h.repo.GetRun(id)
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}
	if run == nil {
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("run"))
		return
	}

	changes, err := h.repo.GetChanges(id)
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	response := dto.ChangeListResponse{
		RunID:   id,
		Changes: make([]dto.ChangeResponse, 0, len(changes)),
		Count:   len(changes),
	}
	for _, c := range changes {
		response.Changes = append(response.Changes, toChangeResponse(c))
	}

	h.WriteJSON(w, http.StatusOK, response)
}

// toRunResponse converts a storage Run to an API response.
func toRunResponse(run storage.Run) dto.RunResponse {
	return dto.RunResponse{
		ID:               run.ID,
		StartedAt:        run.StartedAt,
		CompletedAt:      run.CompletedAt,
		WindowStart:      run.WindowStart,
		WindowEnd:        run.WindowEnd,
		DryRun:           run.DryRun,
		TransactionCount: run.TransactionCount,
		MatchedCount:     run.MatchedCount,
		UnmatchedCount:   run.UnmatchedCount,
		ChangeCount:      run.ChangeCount,
		AppliedCount:     run.AppliedCount,
		FailedBuckets:    run.FailedBuckets,
		InputTokens:      run.InputTokens,
		OutputTokens:     run.OutputTokens,
		Status:           run.Status,
		ErrorMessage:     run.ErrorMessage,
	}
}

// toChangeResponse converts a storage ChangeRecord to an API response.
func toChangeResponse(c storage.ChangeRecord) dto.ChangeResponse {
	resp := dto.ChangeResponse{
		ID:            c.ID,
		TransactionID: c.TransactionID,
		ChangeType:    string(c.ChangeType),
		Category:      c.Category,
		Confidence:    c.Confidence,
		Reason:        c.Reason,
		Applied:       c.Applied,
	}
	for _, s := range c.Splits {
		resp.Splits = append(resp.Splits, dto.SplitResponse{
			Amount:   s.Amount,
			Category: s.Category,
			Notes:    s.Notes,
		})
	}
	return resp
}
