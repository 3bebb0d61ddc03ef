// Package sources defines the data model shared across the reconciliation
// engine and the collaborator interfaces that supply it.
//
// The engine never mutates what a source returns: corrections are expressed
// as proposed changes, not in-place edits.
package sources

import (
	"context"
	"time"
)

// Transaction is a single entry from the bank/brokerage feed.
// Amount is signed in currency units: negative for purchases,
// positive for refunds and deposits.
type Transaction struct {
	ID              string
	Amount          float64
	Date            time.Time
	Merchant        string
	BankDescription string
	Category        string
	IsSplit         bool
}

// Category is one entry of the transaction source's taxonomy.
type Category struct {
	ID    string
	Name  string
	Group string
}

// LineItem is a single item on an external record. Records without
// itemization carry one synthetic line item covering the whole total.
type LineItem struct {
	Name     string
	Price    float64
	Quantity int
}

// ExternalRecord is a ground-truth record from one of the reconciliation
// domains: an e-commerce order, warehouse receipt, utility bill, insurance
// statement, or peer-to-peer payment log entry.
type ExternalRecord struct {
	RecordID  string
	Date      time.Time
	Total     float64
	LineItems []LineItem
}

// FetchRange bounds a source fetch to a date window.
type FetchRange struct {
	Start time.Time
	End   time.Time
}

// SplitPart is one leg of a split update sent back to the transaction source.
type SplitPart struct {
	Amount   float64
	Category string
	Notes    string
}

// TransactionSource supplies the bank feed and the category taxonomy, and
// accepts approved updates. Applying the same update twice must be a no-op
// from the source's perspective.
type TransactionSource interface {
	FetchTransactions(ctx context.Context, r FetchRange) ([]Transaction, error)
	FetchCategories(ctx context.Context) ([]Category, error)
	UpdateCategory(ctx context.Context, transactionID, category string) error
	UpdateSplits(ctx context.Context, transactionID string, parts []SplitPart) error
}

// RecordSource supplies external records for one reconciliation domain.
type RecordSource interface {
	Name() string
	FetchRecords(ctx context.Context, r FetchRange) ([]ExternalRecord, error)
}
