package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkessler-dev/ledgermatch/internal/cache"
	"github.com/mkessler-dev/ledgermatch/internal/classify"
	"github.com/mkessler-dev/ledgermatch/internal/domain/matcher"
	"github.com/mkessler-dev/ledgermatch/internal/domain/prorate"
	"github.com/mkessler-dev/ledgermatch/internal/sources"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeTxSource serves a fixed feed and records applied updates.
type fakeTxSource struct {
	mu           sync.Mutex
	transactions []sources.Transaction
	categories   []sources.Category
	fetchErr     error
	recategsBy   map[string]string
	splitsBy     map[string][]sources.SplitPart
}

func (f *fakeTxSource) FetchTransactions(_ context.Context, _ sources.FetchRange) ([]sources.Transaction, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.transactions, nil
}

func (f *fakeTxSource) FetchCategories(_ context.Context) ([]sources.Category, error) {
	return f.categories, nil
}

func (f *fakeTxSource) UpdateCategory(_ context.Context, id, category string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recategsBy == nil {
		f.recategsBy = make(map[string]string)
	}
	f.recategsBy[id] = category
	return nil
}

func (f *fakeTxSource) UpdateSplits(_ context.Context, id string, parts []sources.SplitPart) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.splitsBy == nil {
		f.splitsBy = make(map[string][]sources.SplitPart)
	}
	f.splitsBy[id] = parts
	return nil
}

// fakeRecordSource serves fixed records for one domain.
type fakeRecordSource struct {
	name    string
	records []sources.ExternalRecord
	err     error
}

func (f *fakeRecordSource) Name() string { return f.name }

func (f *fakeRecordSource) FetchRecords(_ context.Context, _ sources.FetchRange) ([]sources.ExternalRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

// queueGen hands out canned responses in order, safely under concurrency.
type queueGen struct {
	mu        sync.Mutex
	responses []string
	calls     int
}

func (g *queueGen) Generate(_ context.Context, _, _ string) (classify.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := g.calls
	g.calls++
	if i >= len(g.responses) {
		i = len(g.responses) - 1
	}
	return classify.Response{Text: g.responses[i], Usage: classify.Usage{InputTokens: 1, OutputTokens: 1}}, nil
}

func (g *queueGen) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

var pipelineCategories = []sources.Category{
	{ID: "c1", Name: "Groceries", Group: "Food"},
	{ID: "c2", Name: "Household", Group: "Home"},
	{ID: "c3", Name: "Shopping", Group: "Discretionary"},
}

func newTestPipeline(txSrc sources.TransactionSource, domains []Domain, gen classify.TextGenerator) (*Pipeline, *cache.RecordCache, *cache.PeriodCache) {
	client := classify.NewClient(gen, nil, discardLogger()).
		WithPolicies(
			classify.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond},
			classify.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond},
		)
	recordCache := cache.NewRecordCache(cache.NewMemoryStore(), "records.json", discardLogger())
	periodCache := cache.NewPeriodCache(cache.NewMemoryStore(), "periods.json", discardLogger())

	p := New(txSrc, domains, classify.NewClassifier(client), recordCache, periodCache, DefaultOptions(), discardLogger())
	return p, recordCache, periodCache
}

func weekRange() sources.FetchRange {
	return sources.FetchRange{
		Start: time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC),
	}
}

func TestRun_DeepPathRecategorize(t *testing.T) {
	txSrc := &fakeTxSource{
		transactions: []sources.Transaction{
			{ID: "tx1", Amount: -29.99, Date: time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), Merchant: "AMAZON.COM", Category: "Shopping"},
		},
		categories: pipelineCategories,
	}
	recSrc := &fakeRecordSource{name: "retail", records: []sources.ExternalRecord{
		{
			RecordID:  "ord1",
			Date:      time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
			Total:     29.99,
			LineItems: []sources.LineItem{{Name: "laundry detergent", Price: 29.99, Quantity: 1}},
		},
	}}
	domains := []Domain{{Name: "retail", Patterns: []string{"amazon"}, Matcher: matcher.Config{DateWindowDays: 3, AmountTolerance: 0.01}, Source: recSrc}}

	gen := &queueGen{responses: []string{
		`{"items": [{"item_name": "laundry detergent", "category": "Household", "confidence": 0.94}]}`,
	}}

	p, _, _ := newTestPipeline(txSrc, domains, gen)
	result, err := p.Run(context.Background(), weekRange())
	require.NoError(t, err)

	require.Empty(t, result.BucketErrors)
	require.Len(t, result.Changes, 1)
	change := result.Changes[0]
	assert.Equal(t, "tx1", change.TransactionID)
	assert.Equal(t, ChangeRecategorize, change.Type)
	assert.Equal(t, "Household", change.Category)
	assert.InDelta(t, 0.94, change.Confidence, 0.001)
	assert.Equal(t, 1, result.MatchedCount)
}

func TestRun_DeepPathSplitSumsToCents(t *testing.T) {
	txSrc := &fakeTxSource{
		transactions: []sources.Transaction{
			{ID: "tx1", Amount: -50.75, Date: time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), Merchant: "AMAZON.COM", Category: "Shopping"},
		},
		categories: pipelineCategories,
	}
	recSrc := &fakeRecordSource{name: "retail", records: []sources.ExternalRecord{
		{
			RecordID: "ord1",
			Date:     time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
			Total:    50.75,
			LineItems: []sources.LineItem{
				{Name: "milk", Price: 20.00, Quantity: 1},
				{Name: "paper towels", Price: 30.00, Quantity: 1},
			},
		},
	}}
	domains := []Domain{{Name: "retail", Patterns: []string{"amazon"}, Matcher: matcher.Config{DateWindowDays: 3, AmountTolerance: 0.01}, Source: recSrc}}

	gen := &queueGen{responses: []string{
		`{"items": [
			{"item_name": "milk", "category": "Groceries", "confidence": 0.97},
			{"item_name": "paper towels", "category": "Household", "confidence": 0.92}
		]}`,
	}}

	p, _, _ := newTestPipeline(txSrc, domains, gen)
	result, err := p.Run(context.Background(), weekRange())
	require.NoError(t, err)

	require.Len(t, result.Changes, 1)
	change := result.Changes[0]
	require.Equal(t, ChangeSplit, change.Type)
	require.Len(t, change.Splits, 2)

	// Tax residue prorated 40/60 and reconciled to the cent.
	assert.InDelta(t, 20.30, change.Splits[0].Amount, 0.001)
	assert.InDelta(t, 30.45, change.Splits[1].Amount, 0.001)

	var cents int64
	for _, s := range change.Splits {
		cents += prorate.Cents(s.Amount)
	}
	assert.Equal(t, int64(5075), cents)

	// Confidence is the weakest item's.
	assert.InDelta(t, 0.92, change.Confidence, 0.001)
}

func TestRun_RecordCacheSkipsSecondCall(t *testing.T) {
	txSrc := &fakeTxSource{
		transactions: []sources.Transaction{
			{ID: "tx1", Amount: -29.99, Date: time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), Merchant: "AMAZON.COM", Category: "Shopping"},
		},
		categories: pipelineCategories,
	}
	recSrc := &fakeRecordSource{name: "retail", records: []sources.ExternalRecord{
		{
			RecordID:  "ord1",
			Date:      time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
			Total:     29.99,
			LineItems: []sources.LineItem{{Name: "detergent", Price: 29.99, Quantity: 1}},
		},
	}}
	domains := []Domain{{Name: "retail", Patterns: []string{"amazon"}, Matcher: matcher.Config{DateWindowDays: 3, AmountTolerance: 0.01}, Source: recSrc}}

	gen := &queueGen{responses: []string{
		`{"items": [{"item_name": "detergent", "category": "Household", "confidence": 0.94}]}`,
	}}

	p, _, _ := newTestPipeline(txSrc, domains, gen)

	_, err := p.Run(context.Background(), weekRange())
	require.NoError(t, err)
	assert.Equal(t, 1, gen.callCount())

	// An identical second run hits the record cache and never calls the
	// service again.
	result, err := p.Run(context.Background(), weekRange())
	require.NoError(t, err)
	assert.Equal(t, 1, gen.callCount())
	require.Len(t, result.Changes, 1)
}

func TestRun_SplitTransactionsNeverMatched(t *testing.T) {
	txSrc := &fakeTxSource{
		transactions: []sources.Transaction{
			{ID: "tx1", Amount: -29.99, Date: time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), Merchant: "AMAZON.COM", Category: "Shopping", IsSplit: true},
		},
		categories: pipelineCategories,
	}
	recSrc := &fakeRecordSource{name: "retail", records: []sources.ExternalRecord{
		{RecordID: "ord1", Date: time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), Total: 29.99,
			LineItems: []sources.LineItem{{Name: "detergent", Price: 29.99, Quantity: 1}}},
	}}
	domains := []Domain{{Name: "retail", Patterns: []string{"amazon"}, Matcher: matcher.Config{DateWindowDays: 3, AmountTolerance: 0.01}, Source: recSrc}}

	gen := &queueGen{responses: []string{`{}`}}

	p, _, _ := newTestPipeline(txSrc, domains, gen)
	result, err := p.Run(context.Background(), weekRange())
	require.NoError(t, err)

	assert.Empty(t, result.Changes)
	assert.Zero(t, gen.callCount())
}

func TestRun_RegularBucketFlagsAmbiguousMerchant(t *testing.T) {
	txSrc := &fakeTxSource{
		transactions: []sources.Transaction{
			{ID: "tx1", Amount: -12.00, Merchant: "SQ *MARKET", Category: "Shopping", BankDescription: "SQ *MARKET 0412"},
			{ID: "tx2", Amount: -30.00, Merchant: "CITY GROCER", Category: "Shopping"},
			{ID: "tx3", Amount: -8.00, Merchant: "CITY GROCER", Category: "Groceries"},
		},
		categories: pipelineCategories,
	}

	gen := &queueGen{responses: []string{
		`{"merchants": [
			{"merchant": "SQ *MARKET", "category": "", "confidence": 0.2, "ambiguous": true},
			{"merchant": "CITY GROCER", "category": "Groceries", "confidence": 0.9, "ambiguous": false}
		]}`,
	}}

	p, _, _ := newTestPipeline(txSrc, nil, gen)
	result, err := p.Run(context.Background(), weekRange())
	require.NoError(t, err)

	// tx1 flagged; tx2 recategorized; tx3 already Groceries, untouched.
	require.Len(t, result.Changes, 2)
	assert.Equal(t, ChangeFlag, result.Changes[0].Type)
	assert.Equal(t, "tx1", result.Changes[0].TransactionID)
	assert.Contains(t, result.Changes[0].Reason, "ambiguous")

	assert.Equal(t, ChangeRecategorize, result.Changes[1].Type)
	assert.Equal(t, "tx2", result.Changes[1].TransactionID)
	assert.Equal(t, "Groceries", result.Changes[1].Category)
}

func TestRun_PeriodCacheHitSkipsService(t *testing.T) {
	txSrc := &fakeTxSource{
		transactions: []sources.Transaction{
			{ID: "tx1", Amount: -30.00, Merchant: "CITY GROCER", Category: "Shopping"},
		},
		categories: pipelineCategories,
	}

	gen := &queueGen{responses: []string{
		`{"merchants": [{"merchant": "CITY GROCER", "category": "Groceries", "confidence": 0.9, "ambiguous": false}]}`,
	}}

	p, _, _ := newTestPipeline(txSrc, nil, gen)

	_, err := p.Run(context.Background(), weekRange())
	require.NoError(t, err)
	require.Equal(t, 1, gen.callCount())

	result, err := p.Run(context.Background(), weekRange())
	require.NoError(t, err)
	assert.Equal(t, 1, gen.callCount())
	require.Len(t, result.Changes, 1)

	// A changed transaction set misses the period cache and re-classifies.
	txSrc.transactions = append(txSrc.transactions, sources.Transaction{
		ID: "tx2", Amount: -5.00, Merchant: "CITY GROCER", Category: "Shopping",
	})
	_, err = p.Run(context.Background(), weekRange())
	require.NoError(t, err)
	assert.Equal(t, 2, gen.callCount())
}

func TestRun_FailedBucketKeepsOtherBuckets(t *testing.T) {
	txSrc := &fakeTxSource{
		transactions: []sources.Transaction{
			{ID: "tx1", Amount: -29.99, Date: time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), Merchant: "AMAZON.COM", Category: "Shopping"},
			{ID: "tx2", Amount: -55.00, Date: time.Date(2025, 1, 16, 0, 0, 0, 0, time.UTC), Merchant: "COSTCO WHSE", Category: "Shopping"},
		},
		categories: pipelineCategories,
	}
	retail := &fakeRecordSource{name: "retail", records: []sources.ExternalRecord{
		{RecordID: "ord1", Date: time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), Total: 29.99,
			LineItems: []sources.LineItem{{Name: "detergent", Price: 29.99, Quantity: 1}}},
	}}
	warehouse := &fakeRecordSource{name: "warehouse", err: errors.New("receipt portal down")}

	domains := []Domain{
		{Name: "retail", Patterns: []string{"amazon"}, Matcher: matcher.Config{DateWindowDays: 3, AmountTolerance: 0.01}, Source: retail},
		{Name: "warehouse", Patterns: []string{"costco"}, Matcher: matcher.Config{DateWindowDays: 2, AmountTolerance: 0.01}, Source: warehouse},
	}

	gen := &queueGen{responses: []string{
		`{"items": [{"item_name": "detergent", "category": "Household", "confidence": 0.94}]}`,
	}}

	p, _, _ := newTestPipeline(txSrc, domains, gen)
	result, err := p.Run(context.Background(), weekRange())
	require.NoError(t, err)

	// The warehouse failure is reported without discarding retail's change.
	require.Len(t, result.BucketErrors, 1)
	assert.Equal(t, "warehouse", result.BucketErrors[0].Bucket)
	require.Len(t, result.Changes, 1)
	assert.Equal(t, "tx1", result.Changes[0].TransactionID)
}

func TestRun_FetchFailureAborts(t *testing.T) {
	txSrc := &fakeTxSource{fetchErr: errors.New("ledger unavailable")}

	p, _, _ := newTestPipeline(txSrc, nil, &queueGen{responses: []string{`{}`}})
	_, err := p.Run(context.Background(), weekRange())

	assert.Error(t, err)
}

func TestApply_AppliesRecategorizeAndSplitSkipsFlag(t *testing.T) {
	txSrc := &fakeTxSource{}

	changes := []ProposedChange{
		{TransactionID: "tx1", Type: ChangeRecategorize, Category: "Groceries"},
		{TransactionID: "tx2", Type: ChangeSplit, Splits: []SplitItem{
			{Amount: 20.30, Category: "Groceries"},
			{Amount: 30.45, Category: "Household"},
		}},
		{TransactionID: "tx3", Type: ChangeFlag, Reason: "ambiguous"},
	}

	applied, err := Apply(context.Background(), txSrc, changes, discardLogger())
	require.NoError(t, err)

	assert.Equal(t, 2, applied)
	assert.Equal(t, "Groceries", txSrc.recategsBy["tx1"])
	require.Len(t, txSrc.splitsBy["tx2"], 2)
	_, flagged := txSrc.recategsBy["tx3"]
	assert.False(t, flagged)
}
