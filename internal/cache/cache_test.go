package cache

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkessler-dev/ledgermatch/internal/classify"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleClassification() classify.RecordClassification {
	return classify.RecordClassification{
		Items: []classify.ItemDecision{
			{ItemName: "milk", Category: "Groceries", Confidence: 0.95},
		},
		NeedsSplit: false,
	}
}

func TestRecordCache_PutGetFlushReload(t *testing.T) {
	store := NewMemoryStore()

	c := NewRecordCache(store, "records.json", discardLogger())
	_, ok := c.Get("ord-1")
	assert.False(t, ok)

	c.Put("ord-1", sampleClassification())
	require.NoError(t, c.Flush())

	// A fresh cache over the same store sees the flushed entry.
	c2 := NewRecordCache(store, "records.json", discardLogger())
	entry, ok := c2.Get("ord-1")
	require.True(t, ok)
	assert.Equal(t, "Groceries", entry.Items[0].Category)
}

func TestRecordCache_FlushWithoutChangesIsNoop(t *testing.T) {
	store := NewMemoryStore()
	c := NewRecordCache(store, "records.json", discardLogger())

	require.NoError(t, c.Flush())
	_, ok, err := store.Read("records.json")
	require.NoError(t, err)
	assert.False(t, ok, "no blob should be written when nothing changed")
}

func TestRecordCache_CorruptBlobStartsEmpty(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Write("records.json", []byte("{ not json")))

	c := NewRecordCache(store, "records.json", discardLogger())
	_, ok := c.Get("anything")
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestRecordCache_WrongShapeDiscardsWholeDomain(t *testing.T) {
	store := NewMemoryStore()
	// Valid JSON, wrong value shape.
	require.NoError(t, store.Write("records.json", []byte(`{"ord-1": {"items": "nope"}}`)))

	c := NewRecordCache(store, "records.json", discardLogger())
	_, ok := c.Get("ord-1")
	assert.False(t, ok)
}

func TestRecordCache_EntryMissingItemsDiscardsWholeDomain(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Write("records.json", []byte(`{"ord-1": {"needsSplit": true}}`)))

	c := NewRecordCache(store, "records.json", discardLogger())
	_, ok := c.Get("ord-1")
	assert.False(t, ok, "entry without items fails schema validation")
}

func TestPeriodKey_SortsTransactionIDs(t *testing.T) {
	a := PeriodKey("2025-01", []string{"tx2", "tx1", "tx3"})
	b := PeriodKey("2025-01", []string{"tx1", "tx3", "tx2"})
	assert.Equal(t, a, b)

	// A changed transaction set produces a different key.
	c := PeriodKey("2025-01", []string{"tx1", "tx2"})
	assert.NotEqual(t, a, c)

	// A different period with the same set is distinct too.
	d := PeriodKey("2025-02", []string{"tx1", "tx2", "tx3"})
	assert.NotEqual(t, a, d)
}

func TestPeriodKey_DoesNotMutateInput(t *testing.T) {
	ids := []string{"tx2", "tx1"}
	PeriodKey("2025-01", ids)
	assert.Equal(t, []string{"tx2", "tx1"}, ids)
}

func TestPeriodCache_RoundTrip(t *testing.T) {
	store := NewMemoryStore()
	c := NewPeriodCache(store, "periods.json", discardLogger())

	key := PeriodKey("2025-01", []string{"tx1", "tx2"})
	c.Put(key, PeriodEntry{
		TransactionIDs: []string{"tx1", "tx2"},
		Results: []classify.MerchantDecision{
			{Merchant: "CITY WATER", Category: "Utilities", Confidence: 0.9},
		},
	})
	require.NoError(t, c.Flush())

	c2 := NewPeriodCache(store, "periods.json", discardLogger())
	entry, ok := c2.Get(key)
	require.True(t, ok)
	assert.Equal(t, "Utilities", entry.Results[0].Category)

	// The same period with a different transaction set misses.
	_, ok = c2.Get(PeriodKey("2025-01", []string{"tx1", "tx2", "tx9"}))
	assert.False(t, ok)
}

func TestFileStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(filepath.Join(dir, "cache"))
	require.NoError(t, err)

	_, ok, err := store.Read("records.json")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Write("records.json", []byte(`{}`)))
	data, ok, err := store.Read("records.json")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{}`, string(data))
}
