package storage

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockRepository is an in-memory Repository for tests.
type MockRepository struct {
	mu      sync.Mutex
	runs    map[string]*Run
	changes map[string][]ChangeRecord
	order   []string

	// Error injection
	StartRunErr error
	SaveErr     error
}

// Compile-time check that MockRepository implements Repository
var _ Repository = (*MockRepository)(nil)

// NewMockRepository creates an empty in-memory repository
func NewMockRepository() *MockRepository {
	return &MockRepository{
		runs:    make(map[string]*Run),
		changes: make(map[string][]ChangeRecord),
	}
}

func (m *MockRepository) Close() error { return nil }

func (m *MockRepository) StartRun(windowStart, windowEnd string, dryRun bool) (string, error) {
	if m.StartRunErr != nil {
		return "", m.StartRunErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.runs[id] = &Run{
		ID:          id,
		StartedAt:   time.Now().UTC().Format(time.RFC3339),
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		DryRun:      dryRun,
		Status:      StatusRunning,
	}
	m.order = append(m.order, id)
	return id, nil
}

func (m *MockRepository) CompleteRun(runID string, outcome RunOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.runs[runID]
	if !ok {
		return fmt.Errorf("run %s not found", runID)
	}

	r.CompletedAt = time.Now().UTC().Format(time.RFC3339)
	r.TransactionCount = outcome.TransactionCount
	r.MatchedCount = outcome.MatchedCount
	r.UnmatchedCount = outcome.UnmatchedCount
	r.ChangeCount = outcome.ChangeCount
	r.AppliedCount = outcome.AppliedCount
	r.FailedBuckets = outcome.FailedBuckets
	r.InputTokens = outcome.InputTokens
	r.OutputTokens = outcome.OutputTokens
	r.Status = StatusCompleted
	if outcome.FailedBuckets > 0 {
		r.Status = StatusCompletedWithErrors
	}
	return nil
}

func (m *MockRepository) FailRun(runID string, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.runs[runID]
	if !ok {
		return fmt.Errorf("run %s not found", runID)
	}

	r.CompletedAt = time.Now().UTC().Format(time.RFC3339)
	r.Status = StatusFailed
	r.ErrorMessage = message
	return nil
}

func (m *MockRepository) GetRun(runID string) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.runs[runID]
	if !ok {
		return nil, nil
	}
	copied := *r
	return &copied, nil
}

func (m *MockRepository) ListRuns(limit int) ([]Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}

	var runs []Run
	for i := len(m.order) - 1; i >= 0 && len(runs) < limit; i-- {
		runs = append(runs, *m.runs[m.order[i]])
	}
	return runs, nil
}

func (m *MockRepository) GetSummary() (*RunSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	summary := &RunSummary{}
	var rateSum float64
	var rated int

	for _, r := range m.runs {
		summary.TotalRuns++
		switch r.Status {
		case StatusCompleted, StatusCompletedWithErrors:
			summary.CompletedRuns++
		case StatusFailed:
			summary.FailedRuns++
		}
		summary.TotalChanges += r.ChangeCount
		summary.TotalApplied += r.AppliedCount
		if total := r.MatchedCount + r.UnmatchedCount; total > 0 {
			rateSum += float64(r.MatchedCount) / float64(total)
			rated++
		}
	}
	if rated > 0 {
		summary.AvgMatchRate = rateSum / float64(rated)
	}
	return summary, nil
}

func (m *MockRepository) SaveChanges(runID string, changes []ChangeRecord) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i, c := range changes {
		c.ID = int64(len(m.changes[runID]) + i + 1)
		c.RunID = runID
		m.changes[runID] = append(m.changes[runID], c)
	}
	return nil
}

func (m *MockRepository) GetChanges(runID string) ([]ChangeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]ChangeRecord, len(m.changes[runID]))
	copy(out, m.changes[runID])
	return out, nil
}

func (m *MockRepository) MarkApplied(runID string, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	changes := m.changes[runID]
	for i := 0; i < n && i < len(changes); i++ {
		changes[i].Applied = true
	}
	return nil
}
