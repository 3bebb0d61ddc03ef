package matcher

import (
	"github.com/mkessler-dev/ledgermatch/internal/sources"
)

// Config holds matcher tolerances for one reconciliation domain.
type Config struct {
	DateWindowDays  int     // Inclusive calendar-day window
	AmountTolerance float64 // Inclusive, in currency units
}

// DefaultConfig returns the tolerances used when a domain does not override
// them.
func DefaultConfig() Config {
	return Config{
		DateWindowDays:  3,
		AmountTolerance: 0.01,
	}
}

// MatchBasis records which amount rule accepted a pair.
type MatchBasis string

const (
	// BasisTotal means the record total matched the transaction amount.
	BasisTotal MatchBasis = "total"
	// BasisLineItem means the record's single line item matched instead.
	BasisLineItem MatchBasis = "line_item"
)

// Match is a 1:1 pairing of a transaction and a record.
type Match struct {
	Transaction sources.Transaction
	Record      sources.ExternalRecord
	Basis       MatchBasis
}

// Result holds the outcome of one matching pass.
type Result struct {
	Matched               []Match
	UnmatchedTransactions []sources.Transaction
	UnmatchedRecords      []sources.ExternalRecord
}
