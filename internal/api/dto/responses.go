package dto

import "time"

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// NewHealthResponse creates a health response with current timestamp.
func NewHealthResponse() HealthResponse {
	return HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// RunResponse represents a reconciliation run in API responses.
type RunResponse struct {
	ID               string `json:"id"`
	StartedAt        string `json:"started_at"`
	CompletedAt      string `json:"completed_at,omitempty"`
	WindowStart      string `json:"window_start"`
	WindowEnd        string `json:"window_end"`
	DryRun           bool   `json:"dry_run"`
	TransactionCount int    `json:"transaction_count"`
	MatchedCount     int    `json:"matched_count"`
	UnmatchedCount   int    `json:"unmatched_count"`
	ChangeCount      int    `json:"change_count"`
	AppliedCount     int    `json:"applied_count"`
	FailedBuckets    int    `json:"failed_buckets"`
	InputTokens      int64  `json:"input_tokens"`
	OutputTokens     int64  `json:"output_tokens"`
	Status           string `json:"status"`
	ErrorMessage     string `json:"error_message,omitempty"`
}

// RunListResponse is returned when listing runs.
type RunListResponse struct {
	Runs  []RunResponse `json:"runs"`
	Count int           `json:"count"`
}

// ChangeResponse represents one proposed change of a run.
type ChangeResponse struct {
	ID            int64           `json:"id"`
	TransactionID string          `json:"transaction_id"`
	ChangeType    string          `json:"change_type"`
	Category      string          `json:"category,omitempty"`
	Splits        []SplitResponse `json:"splits,omitempty"`
	Confidence    float64         `json:"confidence"`
	Reason        string          `json:"reason,omitempty"`
	Applied       bool            `json:"applied"`
}

// SplitResponse represents one leg of a split change.
type SplitResponse struct {
	Amount   float64 `json:"amount"`
	Category string  `json:"category"`
	Notes    string  `json:"notes,omitempty"`
}

// ChangeListResponse is returned when listing a run's changes.
type ChangeListResponse struct {
	RunID   string           `json:"run_id"`
	Changes []ChangeResponse `json:"changes"`
	Count   int              `json:"count"`
}

// SummaryResponse is returned by the summary endpoint.
type SummaryResponse struct {
	TotalRuns     int     `json:"total_runs"`
	CompletedRuns int     `json:"completed_runs"`
	FailedRuns    int     `json:"failed_runs"`
	TotalChanges  int     `json:"total_changes"`
	TotalApplied  int     `json:"total_applied"`
	AvgMatchRate  float64 `json:"avg_match_rate"`
}
