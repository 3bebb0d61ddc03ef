// Package pipeline orchestrates one reconciliation run: transactions are
// bucketed by merchant-pattern heuristics, each deep-path bucket is matched
// against its domain's external records and classified per record, the
// regular bucket is classified per merchant group, and everything converges
// into a single ordered list of proposed changes.
//
// Applying changes is deliberately a separate step driven by caller policy
// (dry-run vs. apply); the pipeline only proposes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mkessler-dev/ledgermatch/internal/cache"
	"github.com/mkessler-dev/ledgermatch/internal/classify"
	"github.com/mkessler-dev/ledgermatch/internal/domain/matcher"
	"github.com/mkessler-dev/ledgermatch/internal/domain/prorate"
	"github.com/mkessler-dev/ledgermatch/internal/sources"
)

// Pipeline wires the matcher, classifier, proration calculator, and caches
// into a run loop. The caches are owned here with an explicit flush at the
// end of each run so tests can inject isolated in-memory instances.
type Pipeline struct {
	txSource    sources.TransactionSource
	domains     []Domain
	classifier  *classify.Classifier
	recordCache *cache.RecordCache
	periodCache *cache.PeriodCache
	options     Options
	logger      *slog.Logger
}

// New creates a pipeline. domains are reconciled in slice order, which fixes
// the order of the output change list.
func New(
	txSource sources.TransactionSource,
	domains []Domain,
	classifier *classify.Classifier,
	recordCache *cache.RecordCache,
	periodCache *cache.PeriodCache,
	options Options,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if options.BatchSize <= 0 {
		options.BatchSize = DefaultOptions().BatchSize
	}
	if options.MaxConcurrent <= 0 {
		options.MaxConcurrent = DefaultOptions().MaxConcurrent
	}
	return &Pipeline{
		txSource:    txSource,
		domains:     domains,
		classifier:  classifier,
		recordCache: recordCache,
		periodCache: periodCache,
		options:     options,
		logger:      logger,
	}
}

// Run executes one reconciliation over the given date range. A failed bucket
// is reported in Result.BucketErrors without discarding the changes other
// buckets produced; only feed-level failures abort the run.
func (p *Pipeline) Run(ctx context.Context, r sources.FetchRange) (Result, error) {
	transactions, err := p.txSource.FetchTransactions(ctx, r)
	if err != nil {
		return Result{}, fmt.Errorf("fetching transactions: %w", err)
	}
	categories, err := p.txSource.FetchCategories(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("fetching categories: %w", err)
	}

	p.logger.Info("starting reconciliation",
		"transactions", len(transactions),
		"categories", len(categories),
		"domains", len(p.domains))

	buckets := partition(transactions, p.domains)
	result := Result{TransactionCount: len(transactions)}

	for _, d := range p.domains {
		bucket := buckets.ByDomain[d.Name]
		if len(bucket) == 0 {
			continue
		}

		changes, matched, unmatched, err := p.reconcileDomain(ctx, d, bucket, categories, r)
		result.Changes = append(result.Changes, changes...)
		result.MatchedCount += matched
		result.UnmatchedCount += unmatched
		if err != nil {
			p.logger.Error("bucket failed", "bucket", d.Name, "error", err)
			result.BucketErrors = append(result.BucketErrors, BucketError{Bucket: d.Name, Err: err})
		}
	}

	changes, err := p.reconcileRegular(ctx, buckets.Regular, categories, periodKey(r))
	result.Changes = append(result.Changes, changes...)
	if err != nil {
		p.logger.Error("bucket failed", "bucket", "regular", "error", err)
		result.BucketErrors = append(result.BucketErrors, BucketError{Bucket: "regular", Err: err})
	}

	if err := p.flushCaches(); err != nil {
		return result, err
	}

	p.logger.Info("reconciliation complete",
		"changes", len(result.Changes),
		"matched", result.MatchedCount,
		"failed_buckets", len(result.BucketErrors))

	return result, nil
}

// reconcileDomain runs one deep-path bucket: fetch records, match, classify
// each matched record (cache first), and turn classifications into changes.
func (p *Pipeline) reconcileDomain(ctx context.Context, d Domain, bucket []sources.Transaction, categories []sources.Category, r sources.FetchRange) ([]ProposedChange, int, int, error) {
	records, err := d.Source.FetchRecords(ctx, r)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("fetching %s records: %w", d.Name, err)
	}

	m := matcher.New(d.Matcher)
	matchResult := m.Match(bucket, records)

	p.logger.Debug("matched bucket",
		"bucket", d.Name,
		"matched", len(matchResult.Matched),
		"unmatched_transactions", len(matchResult.UnmatchedTransactions),
		"unmatched_records", len(matchResult.UnmatchedRecords))

	classifications, err := p.classifyMatches(ctx, matchResult.Matched, categories)

	var changes []ProposedChange
	for i, pair := range matchResult.Matched {
		if classifications[i] == nil {
			continue
		}
		if change, ok := buildRecordChange(pair.Transaction, *classifications[i]); ok {
			changes = append(changes, change)
		}
	}

	return changes, len(matchResult.Matched), len(matchResult.UnmatchedTransactions), err
}

// classifyMatches resolves a classification per matched record, consulting
// the record-level cache first and fanning uncached records out to a bounded
// number of in-flight classification calls. The cache is only written after
// all in-flight work has completed, so a failure never leaves partial state
// behind.
func (p *Pipeline) classifyMatches(ctx context.Context, matched []matcher.Match, categories []sources.Category) ([]*classify.RecordClassification, error) {
	results := make([]*classify.RecordClassification, len(matched))
	errs := make([]error, len(matched))

	var uncached []int
	for i, pair := range matched {
		if rc, ok := p.recordCache.Get(pair.Record.RecordID); ok {
			results[i] = &rc
			continue
		}
		uncached = append(uncached, i)
	}

	if len(uncached) > 0 {
		sem := make(chan struct{}, p.options.MaxConcurrent)
		var wg sync.WaitGroup

		for _, idx := range uncached {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()

				rc, err := p.classifier.ClassifyRecord(ctx, matched[idx].Record, categories)
				if err != nil {
					errs[idx] = err
					return
				}
				results[idx] = &rc
			}(idx)
		}
		wg.Wait()

		for _, idx := range uncached {
			if results[idx] != nil {
				p.recordCache.Put(matched[idx].Record.RecordID, *results[idx])
			}
		}
	}

	return results, errors.Join(errs...)
}

// buildRecordChange turns one record classification into a proposed change,
// or nothing when the classification agrees with the current category.
func buildRecordChange(tx sources.Transaction, rc classify.RecordClassification) (ProposedChange, bool) {
	if len(rc.Items) == 0 {
		return ProposedChange{}, false
	}

	groups := groupByCategory(rc.Items)

	if len(groups) == 1 {
		g := groups[0]
		if g.category == tx.Category {
			return ProposedChange{}, false
		}
		return ProposedChange{
			TransactionID: tx.ID,
			Type:          ChangeRecategorize,
			Category:      g.category,
			Confidence:    g.confidence,
		}, true
	}

	items := make([]prorate.Item, len(groups))
	for i, g := range groups {
		items[i] = prorate.Item{Name: g.notes, Amount: g.amount, Category: g.category}
	}
	adjusted := prorate.ComputeSplits(tx.Amount, items)

	confidence := 1.0
	splits := make([]SplitItem, len(adjusted))
	for i, item := range adjusted {
		splits[i] = SplitItem{Amount: item.Amount, Category: item.Category, Notes: item.Name}
		if groups[i].confidence < confidence {
			confidence = groups[i].confidence
		}
	}

	return ProposedChange{
		TransactionID: tx.ID,
		Type:          ChangeSplit,
		Splits:        splits,
		Confidence:    confidence,
	}, true
}

type categoryGroup struct {
	category   string
	amount     float64
	notes      string
	confidence float64
}

// groupByCategory folds item decisions into per-category sums, preserving
// first-appearance order. Group confidence is the weakest item's.
func groupByCategory(items []classify.ItemDecision) []categoryGroup {
	var groups []categoryGroup
	index := make(map[string]int)

	for _, item := range items {
		i, ok := index[item.Category]
		if !ok {
			i = len(groups)
			index[item.Category] = i
			groups = append(groups, categoryGroup{category: item.Category, confidence: 1.0})
		}
		groups[i].amount += item.Price
		if groups[i].notes != "" {
			groups[i].notes += ", "
		}
		groups[i].notes += item.ItemName
		if item.Confidence < groups[i].confidence {
			groups[i].confidence = item.Confidence
		}
	}

	return groups
}

// reconcileRegular classifies the generic bucket merchant-by-merchant,
// consulting the period-level cache so an unchanged transaction set never
// re-calls the service.
func (p *Pipeline) reconcileRegular(ctx context.Context, bucket []sources.Transaction, categories []sources.Category, period string) ([]ProposedChange, error) {
	groups := groupMerchants(bucket)
	if len(groups) == 0 {
		return nil, nil
	}

	txIDs := make([]string, len(bucket))
	for i, tx := range bucket {
		txIDs[i] = tx.ID
	}
	key := cache.PeriodKey(period, txIDs)

	var decisions []classify.MerchantDecision
	var classifyErr error

	if entry, ok := p.periodCache.Get(key); ok {
		p.logger.Debug("period cache hit", "period", period, "merchants", len(entry.Results))
		decisions = entry.Results
	} else {
		decisions, classifyErr = p.classifyMerchantBatches(ctx, groups, categories)
		if classifyErr == nil {
			p.periodCache.Put(key, cache.PeriodEntry{TransactionIDs: txIDs, Results: decisions})
		}
	}

	byMerchant := make(map[string]classify.MerchantDecision, len(decisions))
	for _, d := range decisions {
		byMerchant[d.Merchant] = d
	}

	var changes []ProposedChange
	for _, g := range groups {
		decision, ok := byMerchant[g.Name]
		if !ok {
			continue
		}
		for _, tx := range g.Transactions {
			if change, ok := buildMerchantChange(tx, decision); ok {
				changes = append(changes, change)
			}
		}
	}

	return changes, classifyErr
}

// classifyMerchantBatches fans merchant-group batches out with bounded
// concurrency and fans their decisions back in. Successful batches still
// contribute when a sibling batch fails; the cache is only written on a
// fully clean pass.
func (p *Pipeline) classifyMerchantBatches(ctx context.Context, groups []*merchantGroup, categories []sources.Category) ([]classify.MerchantDecision, error) {
	batches := batchGroups(groups, p.options.BatchSize)

	batchResults := make([][]classify.MerchantDecision, len(batches))
	errs := make([]error, len(batches))

	sem := make(chan struct{}, p.options.MaxConcurrent)
	var wg sync.WaitGroup

	for i, batch := range batches {
		wg.Add(1)
		go func(i int, batch []*merchantGroup) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			merchants := make([]classify.MerchantGroup, len(batch))
			for j, g := range batch {
				merchants[j] = g.MerchantGroup
			}

			decisions, err := p.classifier.ClassifyMerchants(ctx, merchants, categories)
			if err != nil {
				errs[i] = fmt.Errorf("merchant batch %d: %w", i, err)
				return
			}
			batchResults[i] = decisions
		}(i, batch)
	}
	wg.Wait()

	var decisions []classify.MerchantDecision
	for _, batch := range batchResults {
		decisions = append(decisions, batch...)
	}

	return decisions, errors.Join(errs...)
}

// buildMerchantChange maps one merchant decision onto one transaction.
func buildMerchantChange(tx sources.Transaction, decision classify.MerchantDecision) (ProposedChange, bool) {
	if decision.Ambiguous {
		return ProposedChange{
			TransactionID: tx.ID,
			Type:          ChangeFlag,
			Confidence:    decision.Confidence,
			Reason:        fmt.Sprintf("merchant %q is ambiguous, review manually", decision.Merchant),
		}, true
	}
	if decision.Category == tx.Category {
		return ProposedChange{}, false
	}
	return ProposedChange{
		TransactionID: tx.ID,
		Type:          ChangeRecategorize,
		Category:      decision.Category,
		Confidence:    decision.Confidence,
	}, true
}

func (p *Pipeline) flushCaches() error {
	if err := p.recordCache.Flush(); err != nil {
		return fmt.Errorf("flushing record cache: %w", err)
	}
	if err := p.periodCache.Flush(); err != nil {
		return fmt.Errorf("flushing period cache: %w", err)
	}
	return nil
}

func periodKey(r sources.FetchRange) string {
	return r.Start.Format("2006-01-02") + ".." + r.End.Format("2006-01-02")
}
