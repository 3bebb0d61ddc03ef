package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkessler-dev/ledgermatch/internal/api/dto"
	"github.com/mkessler-dev/ledgermatch/internal/infrastructure/storage"
	"github.com/mkessler-dev/ledgermatch/internal/pipeline"
)

func runsRouter(repo storage.Repository) chi.Router {
	h := NewRunsHandler(repo)
	r := chi.NewRouter()
	r.Get("/api/runs", h.List)
	r.Get("/api/runs/{id}", h.Get)
	r.Get("/api/runs/{id}/changes", h.Changes)
	return r
}

func seedRun(t *testing.T, repo *storage.MockRepository) string {
	t.Helper()
	id, err := repo.StartRun("2025-01-10", "2025-01-20", true)
	require.NoError(t, err)
	require.NoError(t, repo.CompleteRun(id, storage.RunOutcome{
		TransactionCount: 40,
		MatchedCount:     12,
		ChangeCount:      2,
	}))
	require.NoError(t, repo.SaveChanges(id, []storage.ChangeRecord{
		{TransactionID: "tx1", ChangeType: pipeline.ChangeRecategorize, Category: "Groceries", Confidence: 0.9},
		{TransactionID: "tx2", ChangeType: pipeline.ChangeSplit, Splits: []pipeline.SplitItem{
			{Amount: 20.30, Category: "Groceries"},
			{Amount: 30.45, Category: "Household"},
		}},
	}))
	return id
}

func TestRunsList(t *testing.T) {
	repo := storage.NewMockRepository()
	seedRun(t, repo)
	router := runsRouter(repo)

	req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp dto.RunListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, 40, resp.Runs[0].TransactionCount)
	assert.Equal(t, "completed", resp.Runs[0].Status)
}

func TestRunsGet(t *testing.T) {
	repo := storage.NewMockRepository()
	id := seedRun(t, repo)
	router := runsRouter(repo)

	req := httptest.NewRequest(http.MethodGet, "/api/runs/"+id, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp dto.RunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, id, resp.ID)
	assert.Equal(t, 12, resp.MatchedCount)
}

func TestRunsGet_InvalidID(t *testing.T) {
	router := runsRouter(storage.NewMockRepository())

	req := httptest.NewRequest(http.MethodGet, "/api/runs/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var apiErr dto.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	assert.Equal(t, dto.ErrCodeBadRequest, apiErr.Code)
}

func TestRunsGet_NotFound(t *testing.T) {
	router := runsRouter(storage.NewMockRepository())

	req := httptest.NewRequest(http.MethodGet, "/api/runs/9f3cfc38-6cde-4d0e-b0f3-aa42c4a3cf00", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunsChanges(t *testing.T) {
	repo := storage.NewMockRepository()
	id := seedRun(t, repo)
	router := runsRouter(repo)

	req := httptest.NewRequest(http.MethodGet, "/api/runs/"+id+"/changes", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp dto.ChangeListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Count)
	assert.Equal(t, "recategorize", resp.Changes[0].ChangeType)
	assert.Equal(t, "split", resp.Changes[1].ChangeType)
	require.Len(t, resp.Changes[1].Splits, 2)
	assert.InDelta(t, 30.45, resp.Changes[1].Splits[1].Amount, 0.001)
}

func TestSummaryGet(t *testing.T) {
	repo := storage.NewMockRepository()
	seedRun(t, repo)

	h := NewSummaryHandler(repo)
	req := httptest.NewRequest(http.MethodGet, "/api/summary", nil)
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp dto.SummaryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.TotalRuns)
	assert.Equal(t, 1, resp.CompletedRuns)
	assert.Equal(t, 2, resp.TotalChanges)
}
