package pipeline

import (
	"github.com/mkessler-dev/ledgermatch/internal/domain/matcher"
	"github.com/mkessler-dev/ledgermatch/internal/sources"
)

// ChangeType distinguishes the three kinds of proposed change.
type ChangeType string

const (
	// ChangeRecategorize proposes a single-category correction.
	ChangeRecategorize ChangeType = "recategorize"
	// ChangeSplit proposes splitting the transaction across categories.
	ChangeSplit ChangeType = "split"
	// ChangeFlag marks the transaction for manual review.
	ChangeFlag ChangeType = "flag"
)

// SplitItem is one leg of a proposed split. Across a change, the legs sum in
// integer cents to the transaction amount's cents.
type SplitItem struct {
	Amount   float64
	Category string
	Notes    string
}

// ProposedChange is the pipeline's output unit. Changes are advisory: the
// caller decides whether to apply them, and applying the same change twice
// is a no-op at the transaction source.
type ProposedChange struct {
	TransactionID string
	Type          ChangeType
	Category      string
	Splits        []SplitItem
	Confidence    float64
	Reason        string
}

// Domain is one deep-path reconciliation domain: its bucketing patterns,
// matcher tolerances, and record source.
type Domain struct {
	Name     string
	Patterns []string
	Matcher  matcher.Config
	Source   sources.RecordSource
}

// Options tunes one pipeline run.
type Options struct {
	BatchSize     int // merchant groups per classification prompt
	MaxConcurrent int // classification batches in flight
}

// DefaultOptions returns the tuning used when the caller does not override.
func DefaultOptions() Options {
	return Options{
		BatchSize:     10,
		MaxConcurrent: 3,
	}
}

// BucketError records a bucket that failed mid-run. Failures never discard
// the changes other buckets already produced.
type BucketError struct {
	Bucket string
	Err    error
}

func (e BucketError) Error() string {
	return e.Bucket + ": " + e.Err.Error()
}

// Result is the outcome of one reconciliation run.
type Result struct {
	Changes      []ProposedChange
	BucketErrors []BucketError

	TransactionCount int
	MatchedCount     int
	UnmatchedCount   int
}
