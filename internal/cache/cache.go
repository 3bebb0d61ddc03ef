package cache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/mkessler-dev/ledgermatch/internal/classify"
)

// RecordCache is the record-level domain: one classification per external
// record id.
type RecordCache struct {
	mu      sync.Mutex
	store   BlobStore
	name    string
	logger  *slog.Logger
	loaded  bool
	dirty   bool
	entries map[string]classify.RecordClassification
}

// NewRecordCache creates a cache over the named blob. Nothing is read until
// the first access.
func NewRecordCache(store BlobStore, name string, logger *slog.Logger) *RecordCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordCache{store: store, name: name, logger: logger}
}

// Get returns the cached classification for a record id, if any.
func (c *RecordCache) Get(recordID string) (classify.RecordClassification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.load()
	entry, ok := c.entries[recordID]
	return entry, ok
}

// Put stores a classification. The blob is not rewritten until Flush.
func (c *RecordCache) Put(recordID string, rc classify.RecordClassification) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.load()
	c.entries[recordID] = rc
	c.dirty = true
}

// Flush rewrites the whole blob if anything changed since the last flush.
func (c *RecordCache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.dirty {
		return nil
	}

	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s cache: %w", c.name, err)
	}
	if err := c.store.Write(c.name, data); err != nil {
		return fmt.Errorf("writing %s cache: %w", c.name, err)
	}

	c.dirty = false
	return nil
}

// Len returns the number of cached entries.
func (c *RecordCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.load()
	return len(c.entries)
}

// load populates the in-memory map on first access. A corrupt blob is
// discarded wholesale: starting empty is safer than trusting a blob that
// only partially decodes.
func (c *RecordCache) load() {
	if c.loaded {
		return
	}
	c.loaded = true
	c.entries = make(map[string]classify.RecordClassification)

	data, ok, err := c.store.Read(c.name)
	if err != nil {
		c.logger.Warn("cache read failed, starting empty", "cache", c.name, "error", err)
		return
	}
	if !ok {
		return
	}

	var entries map[string]classify.RecordClassification
	if err := json.Unmarshal(data, &entries); err != nil {
		c.logger.Warn("cache blob corrupt, starting empty", "cache", c.name, "error", err)
		return
	}
	for key, entry := range entries {
		if key == "" || entry.Items == nil {
			c.logger.Warn("cache blob failed validation, starting empty", "cache", c.name)
			return
		}
	}

	c.entries = entries
}

// PeriodEntry is the period-level cache value: the transaction set the
// results were computed from, and the results themselves.
type PeriodEntry struct {
	TransactionIDs []string                    `json:"transactionIds"`
	Results        []classify.MerchantDecision `json:"results"`
}

// PeriodCache is the period-level domain, keyed by PeriodKey.
type PeriodCache struct {
	mu      sync.Mutex
	store   BlobStore
	name    string
	logger  *slog.Logger
	loaded  bool
	dirty   bool
	entries map[string]PeriodEntry
}

// NewPeriodCache creates a cache over the named blob.
func NewPeriodCache(store BlobStore, name string, logger *slog.Logger) *PeriodCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &PeriodCache{store: store, name: name, logger: logger}
}

// PeriodKey builds the content-addressed composite key for a period: the
// period identifier plus the sorted transaction ids. Any change to the
// period's transaction set changes the key and so invalidates the old entry
// without explicit bookkeeping.
func PeriodKey(period string, transactionIDs []string) string {
	ids := make([]string, len(transactionIDs))
	copy(ids, transactionIDs)
	sort.Strings(ids)
	return period + "|" + strings.Join(ids, ",")
}

// Get returns the cached entry for a period key, if any.
func (c *PeriodCache) Get(key string) (PeriodEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.load()
	entry, ok := c.entries[key]
	return entry, ok
}

// Put stores an entry. The blob is not rewritten until Flush.
func (c *PeriodCache) Put(key string, entry PeriodEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.load()
	c.entries[key] = entry
	c.dirty = true
}

// Flush rewrites the whole blob if anything changed since the last flush.
func (c *PeriodCache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.dirty {
		return nil
	}

	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s cache: %w", c.name, err)
	}
	if err := c.store.Write(c.name, data); err != nil {
		return fmt.Errorf("writing %s cache: %w", c.name, err)
	}

	c.dirty = false
	return nil
}

func (c *PeriodCache) load() {
	if c.loaded {
		return
	}
	c.loaded = true
	c.entries = make(map[string]PeriodEntry)

	data, ok, err := c.store.Read(c.name)
	if err != nil {
		c.logger.Warn("cache read failed, starting empty", "cache", c.name, "error", err)
		return
	}
	if !ok {
		return
	}

	var entries map[string]PeriodEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		c.logger.Warn("cache blob corrupt, starting empty", "cache", c.name, "error", err)
		return
	}
	for key, entry := range entries {
		if key == "" || entry.TransactionIDs == nil {
			c.logger.Warn("cache blob failed validation, starting empty", "cache", c.name)
			return
		}
	}

	c.entries = entries
}
