package storage

// Repository defines the complete storage interface.
// This interface allows swapping implementations (SQLite, PostgreSQL, etc.)
// and makes testing with mocks straightforward.
type Repository interface {
	RunRepository
	ChangeRepository
	Close() error
}

// RunRepository tracks reconciliation runs.
type RunRepository interface {
	// StartRun records the start of a run and returns its ID
	StartRun(windowStart, windowEnd string, dryRun bool) (string, error)

	// CompleteRun records the outcome of a run
	CompleteRun(runID string, outcome RunOutcome) error

	// FailRun marks a run as failed with an error message
	FailRun(runID string, message string) error

	// GetRun retrieves a run by ID; a missing run is (nil, nil)
	GetRun(runID string) (*Run, error)

	// ListRuns returns recent runs, newest first
	ListRuns(limit int) ([]Run, error)

	// GetSummary returns aggregate statistics over recent runs
	GetSummary() (*RunSummary, error)
}

// RunOutcome carries the counters recorded when a run completes.
type RunOutcome struct {
	TransactionCount int
	MatchedCount     int
	UnmatchedCount   int
	ChangeCount      int
	AppliedCount     int
	FailedBuckets    int
	InputTokens      int64
	OutputTokens     int64
}

// ChangeRepository persists the proposed changes of each run.
type ChangeRepository interface {
	// SaveChanges persists all proposed changes of one run
	SaveChanges(runID string, changes []ChangeRecord) error

	// GetChanges retrieves the changes of a run
	GetChanges(runID string) ([]ChangeRecord, error)

	// MarkApplied marks the first n changes of a run as applied
	MarkApplied(runID string, n int) error
}
