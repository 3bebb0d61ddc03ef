package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileTransactionSource reads a transaction feed and a category taxonomy
// from JSON files. Updates are appended to a JSON-lines log next to the
// feed instead of mutating it, so a run can be replayed from the same
// inputs.
type FileTransactionSource struct {
	transactionsPath string
	categoriesPath   string
	updatesPath      string

	mu sync.Mutex
}

// NewFileTransactionSource creates a source over the given feed files.
// The updates log is created on the first write.
func NewFileTransactionSource(transactionsPath, categoriesPath, updatesPath string) *FileTransactionSource {
	return &FileTransactionSource{
		transactionsPath: transactionsPath,
		categoriesPath:   categoriesPath,
		updatesPath:      updatesPath,
	}
}

func (s *FileTransactionSource) FetchTransactions(_ context.Context, r FetchRange) ([]Transaction, error) {
	var all []Transaction
	if err := readJSONFile(s.transactionsPath, &all); err != nil {
		return nil, fmt.Errorf("reading transactions: %w", err)
	}

	var out []Transaction
	for _, tx := range all {
		if inRange(tx.Date, r) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (s *FileTransactionSource) FetchCategories(_ context.Context) ([]Category, error) {
	var categories []Category
	if err := readJSONFile(s.categoriesPath, &categories); err != nil {
		return nil, fmt.Errorf("reading categories: %w", err)
	}
	return categories, nil
}

func (s *FileTransactionSource) UpdateCategory(_ context.Context, id, category string) error {
	return s.appendUpdate(updateEntry{
		Timestamp:     time.Now().UTC(),
		TransactionID: id,
		Action:        "recategorize",
		Category:      category,
	})
}

func (s *FileTransactionSource) UpdateSplits(_ context.Context, id string, parts []SplitPart) error {
	return s.appendUpdate(updateEntry{
		Timestamp:     time.Now().UTC(),
		TransactionID: id,
		Action:        "split",
		Splits:        parts,
	})
}

type updateEntry struct {
	Timestamp     time.Time   `json:"timestamp"`
	TransactionID string      `json:"transactionId"`
	Action        string      `json:"action"`
	Category      string      `json:"category,omitempty"`
	Splits        []SplitPart `json:"splits,omitempty"`
}

func (s *FileTransactionSource) appendUpdate(entry updateEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.updatesPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating updates dir: %w", err)
		}
	}

	f, err := os.OpenFile(s.updatesPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("opening updates log: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(entry); err != nil {
		return fmt.Errorf("writing update for %s: %w", entry.TransactionID, err)
	}
	return nil
}

// FileRecordSource reads one domain's external records from a JSON file.
type FileRecordSource struct {
	name string
	path string
}

// NewFileRecordSource creates a record source named after its domain.
func NewFileRecordSource(name, path string) *FileRecordSource {
	return &FileRecordSource{name: name, path: path}
}

func (s *FileRecordSource) Name() string { return s.name }

func (s *FileRecordSource) FetchRecords(_ context.Context, r FetchRange) ([]ExternalRecord, error) {
	var all []ExternalRecord
	if err := readJSONFile(s.path, &all); err != nil {
		return nil, fmt.Errorf("reading %s records: %w", s.name, err)
	}

	var out []ExternalRecord
	for _, rec := range all {
		if !inRange(rec.Date, r) {
			continue
		}
		// A record without itemization still gets one line item covering
		// its total, so matching and classification see a uniform shape.
		if len(rec.LineItems) == 0 {
			rec.LineItems = []LineItem{{Name: rec.RecordID, Price: rec.Total, Quantity: 1}}
		}
		out = append(out, rec)
	}
	return out, nil
}

func readJSONFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return nil
}

// inRange treats a zero range as unbounded and compares on calendar dates,
// both bounds inclusive.
func inRange(t time.Time, r FetchRange) bool {
	if r.Start.IsZero() && r.End.IsZero() {
		return true
	}
	day := t.Truncate(24 * time.Hour)
	if !r.Start.IsZero() && day.Before(r.Start.Truncate(24*time.Hour)) {
		return false
	}
	if !r.End.IsZero() && day.After(r.End.Truncate(24*time.Hour)) {
		return false
	}
	return true
}
