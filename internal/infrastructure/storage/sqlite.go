package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/mkessler-dev/ledgermatch/internal/pipeline"
)

// Storage provides SQLite database access for run history.
// It implements the Repository interface.
type Storage struct {
	db *sql.DB
}

// Compile-time check that Storage implements Repository
var _ Repository = (*Storage)(nil)

// NewStorage creates a new storage instance with SQLite database
func NewStorage(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable foreign key constraints (SQLite-specific)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Storage{db: db}

	if err := s.runMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// StartRun records the start of a run and returns its ID
func (s *Storage) StartRun(windowStart, windowEnd string, dryRun bool) (string, error) {
	id := uuid.New().String()

	query := `
		INSERT INTO runs (id, window_start, window_end, dry_run, status)
		VALUES (?, ?, ?, ?, ?)
	`

	if _, err := s.db.Exec(query, id, windowStart, windowEnd, dryRun, StatusRunning); err != nil {
		return "", err
	}

	return id, nil
}

// CompleteRun records the outcome of a run
func (s *Storage) CompleteRun(runID string, outcome RunOutcome) error {
	query := `
		UPDATE runs
		SET completed_at = CURRENT_TIMESTAMP,
		    transaction_count = ?,
		    matched_count = ?,
		    unmatched_count = ?,
		    change_count = ?,
		    applied_count = ?,
		    failed_buckets = ?,
		    input_tokens = ?,
		    output_tokens = ?,
		    status = CASE WHEN ? > 0 THEN ? ELSE ? END
		WHERE id = ?
	`

	_, err := s.db.Exec(query,
		outcome.TransactionCount,
		outcome.MatchedCount,
		outcome.UnmatchedCount,
		outcome.ChangeCount,
		outcome.AppliedCount,
		outcome.FailedBuckets,
		outcome.InputTokens,
		outcome.OutputTokens,
		outcome.FailedBuckets, StatusCompletedWithErrors, StatusCompleted,
		runID,
	)
	return err
}

// FailRun marks a run as failed with an error message
func (s *Storage) FailRun(runID string, message string) error {
	query := `
		UPDATE runs
		SET completed_at = CURRENT_TIMESTAMP, status = ?, error_message = ?
		WHERE id = ?
	`

	_, err := s.db.Exec(query, StatusFailed, message, runID)
	return err
}

const runColumns = `
	id, started_at, COALESCE(completed_at, ''), window_start, window_end, dry_run,
	transaction_count, matched_count, unmatched_count, change_count, applied_count,
	failed_buckets, input_tokens, output_tokens, status, error_message
`

func scanRun(row interface{ Scan(...any) error }) (Run, error) {
	var r Run
	err := row.Scan(
		&r.ID,
		&r.StartedAt,
		&r.CompletedAt,
		&r.WindowStart,
		&r.WindowEnd,
		&r.DryRun,
		&r.TransactionCount,
		&r.MatchedCount,
		&r.UnmatchedCount,
		&r.ChangeCount,
		&r.AppliedCount,
		&r.FailedBuckets,
		&r.InputTokens,
		&r.OutputTokens,
		&r.Status,
		&r.ErrorMessage,
	)
	return r, err
}

// GetRun retrieves a run by ID. A missing run is (nil, nil).
func (s *Storage) GetRun(runID string) (*Run, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRuns returns recent runs, newest first
func (s *Storage) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}

	return runs, rows.Err()
}

// GetSummary returns aggregate statistics over the last 30 days of runs
func (s *Storage) GetSummary() (*RunSummary, error) {
	summary := &RunSummary{}

	query := `
	SELECT
		COUNT(*) as total,
		COUNT(CASE WHEN status IN (?, ?) THEN 1 END) as completed,
		COUNT(CASE WHEN status = ? THEN 1 END) as failed,
		COALESCE(SUM(change_count), 0) as total_changes,
		COALESCE(SUM(applied_count), 0) as total_applied,
		COALESCE(AVG(CASE WHEN matched_count + unmatched_count > 0
			THEN CAST(matched_count AS REAL) / (matched_count + unmatched_count)
			END), 0) as avg_match_rate
	FROM runs
	WHERE started_at > datetime('now', '-30 days')
	`

	err := s.db.QueryRow(query, StatusCompleted, StatusCompletedWithErrors, StatusFailed).Scan(
		&summary.TotalRuns,
		&summary.CompletedRuns,
		&summary.FailedRuns,
		&summary.TotalChanges,
		&summary.TotalApplied,
		&summary.AvgMatchRate,
	)
	if err != nil {
		return nil, err
	}

	return summary, nil
}

// SaveChanges persists all proposed changes of one run
func (s *Storage) SaveChanges(runID string, changes []ChangeRecord) error {
	if len(changes) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	query := `
		INSERT INTO proposed_changes
		(run_id, transaction_id, change_type, category, splits_json, confidence, reason, applied)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	for _, c := range changes {
		var splitsJSON string
		if len(c.Splits) > 0 {
			data, err := json.Marshal(c.Splits)
			if err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("marshaling splits for %s: %w", c.TransactionID, err)
			}
			splitsJSON = string(data)
		}

		_, err := tx.Exec(query,
			runID,
			c.TransactionID,
			string(c.ChangeType),
			c.Category,
			splitsJSON,
			c.Confidence,
			c.Reason,
			c.Applied,
		)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("saving change for %s: %w", c.TransactionID, err)
		}
	}

	return tx.Commit()
}

// GetChanges retrieves the changes of a run in insertion order
func (s *Storage) GetChanges(runID string) ([]ChangeRecord, error) {
	query := `
		SELECT id, run_id, transaction_id, change_type, category, splits_json, confidence, reason, applied
		FROM proposed_changes
		WHERE run_id = ?
		ORDER BY id ASC
	`

	rows, err := s.db.Query(query, runID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var changes []ChangeRecord
	for rows.Next() {
		var c ChangeRecord
		var changeType, splitsJSON string
		err := rows.Scan(
			&c.ID,
			&c.RunID,
			&c.TransactionID,
			&changeType,
			&c.Category,
			&splitsJSON,
			&c.Confidence,
			&c.Reason,
			&c.Applied,
		)
		if err != nil {
			return nil, err
		}
		c.ChangeType = pipeline.ChangeType(changeType)
		if splitsJSON != "" {
			if err := json.Unmarshal([]byte(splitsJSON), &c.Splits); err != nil {
				return nil, fmt.Errorf("parsing splits for change %d: %w", c.ID, err)
			}
		}
		changes = append(changes, c)
	}

	return changes, rows.Err()
}

// MarkApplied marks the first n changes of a run as applied
func (s *Storage) MarkApplied(runID string, n int) error {
	query := `
		UPDATE proposed_changes
		SET applied = 1
		WHERE id IN (
			SELECT id FROM proposed_changes WHERE run_id = ? ORDER BY id ASC LIMIT ?
		)
	`

	_, err := s.db.Exec(query, runID, n)
	return err
}
