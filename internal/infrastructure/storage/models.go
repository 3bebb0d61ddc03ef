package storage

import "github.com/mkessler-dev/ledgermatch/internal/pipeline"

// Run statuses
const (
	StatusRunning             = "running"
	StatusCompleted           = "completed"
	StatusCompletedWithErrors = "completed_with_errors"
	StatusFailed              = "failed"
)

// Run represents one reconciliation run.
type Run struct {
	ID               string  `json:"id"`
	StartedAt        string  `json:"started_at"`
	CompletedAt      string  `json:"completed_at,omitempty"`
	WindowStart      string  `json:"window_start"`
	WindowEnd        string  `json:"window_end"`
	DryRun           bool    `json:"dry_run"`
	TransactionCount int     `json:"transaction_count"`
	MatchedCount     int     `json:"matched_count"`
	UnmatchedCount   int     `json:"unmatched_count"`
	ChangeCount      int     `json:"change_count"`
	AppliedCount     int     `json:"applied_count"`
	FailedBuckets    int     `json:"failed_buckets"`
	InputTokens      int64   `json:"input_tokens"`
	OutputTokens     int64   `json:"output_tokens"`
	Status           string  `json:"status"`
	ErrorMessage     string  `json:"error_message,omitempty"`
}

// ChangeRecord is one proposed change persisted against its run.
type ChangeRecord struct {
	ID            int64                `json:"id"`
	RunID         string               `json:"run_id"`
	TransactionID string               `json:"transaction_id"`
	ChangeType    pipeline.ChangeType  `json:"change_type"`
	Category      string               `json:"category,omitempty"`
	Splits        []pipeline.SplitItem `json:"splits,omitempty"`
	Confidence    float64              `json:"confidence"`
	Reason        string               `json:"reason,omitempty"`
	Applied       bool                 `json:"applied"`
}

// RunSummary holds aggregate run statistics.
type RunSummary struct {
	TotalRuns     int     `json:"total_runs"`
	CompletedRuns int     `json:"completed_runs"`
	FailedRuns    int     `json:"failed_runs"`
	TotalChanges  int     `json:"total_changes"`
	TotalApplied  int     `json:"total_applied"`
	AvgMatchRate  float64 `json:"avg_match_rate"`
}
