// Package matcher pairs bank transactions with external ground-truth records
// under per-domain date and amount tolerances.
//
// Matching is greedy first-fit: transactions are visited in input order and
// each takes the first unconsumed record that fits its window. This is a
// deliberate simplification over optimal assignment — downstream consumers
// depend on the earliest-record tie-break, so any change to it is a
// behavioral break.
//
// Example usage:
//
//	m := matcher.New(matcher.Config{DateWindowDays: 3, AmountTolerance: 0.01})
//	result := m.Match(transactions, records)
//	for _, pair := range result.Matched {
//		// pair.Transaction is reconciled against pair.Record
//	}
package matcher

import (
	"math"
	"time"

	"github.com/mkessler-dev/ledgermatch/internal/sources"
)

// Matcher pairs transactions with records under a fixed tolerance config.
type Matcher struct {
	config Config
}

// New creates a matcher with the given config.
func New(config Config) *Matcher {
	return &Matcher{config: config}
}

// Match runs one matching pass. Transactions already marked as split are
// excluded entirely; they are assumed already reconciled. A transaction or
// record appears in at most one pair, and the unmatched slices are the exact
// complements of the matched set. Finding no match is a normal outcome, not
// an error.
func (m *Matcher) Match(transactions []sources.Transaction, records []sources.ExternalRecord) Result {
	result := Result{
		Matched:               []Match{},
		UnmatchedTransactions: []sources.Transaction{},
		UnmatchedRecords:      []sources.ExternalRecord{},
	}

	usedRecords := make(map[int]bool, len(records))

	for _, tx := range transactions {
		if tx.IsSplit {
			continue
		}

		matchedIdx := -1
		var basis MatchBasis

		for i, rec := range records {
			if usedRecords[i] {
				continue
			}
			if daysApart(tx.Date, rec.Date) > m.config.DateWindowDays {
				continue
			}

			ok, b := m.amountFits(tx.Amount, rec)
			if !ok {
				continue
			}

			matchedIdx = i
			basis = b
			break
		}

		if matchedIdx == -1 {
			result.UnmatchedTransactions = append(result.UnmatchedTransactions, tx)
			continue
		}

		usedRecords[matchedIdx] = true
		result.Matched = append(result.Matched, Match{
			Transaction: tx,
			Record:      records[matchedIdx],
			Basis:       basis,
		})
	}

	for i, rec := range records {
		if !usedRecords[i] {
			result.UnmatchedRecords = append(result.UnmatchedRecords, rec)
		}
	}

	return result
}

// amountFits checks the record total against the transaction amount, then
// falls back to the single-line-item rule: a record whose total misses but
// whose only line item fits still matches. This covers orders where shipping
// or an unrelated charge crossed a statement boundary.
func (m *Matcher) amountFits(txAmount float64, rec sources.ExternalRecord) (bool, MatchBasis) {
	target := math.Abs(txAmount)

	if withinTolerance(rec.Total, target, m.config.AmountTolerance) {
		return true, BasisTotal
	}

	if len(rec.LineItems) == 1 && withinTolerance(rec.LineItems[0].Price, target, m.config.AmountTolerance) {
		return true, BasisLineItem
	}

	return false, BasisTotal
}

// withinTolerance is a closed-interval check: a difference exactly at the
// tolerance boundary matches. The epsilon absorbs float representation error
// without widening the interval by a reportable amount.
func withinTolerance(a, b, tolerance float64) bool {
	const epsilon = 1e-7
	return math.Abs(a-b) <= tolerance+epsilon
}

// daysApart returns the absolute calendar-day difference, ignoring the time
// of day on either side.
func daysApart(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)

	diff := int(da.Sub(db).Hours() / 24)
	if diff < 0 {
		diff = -diff
	}
	return diff
}
