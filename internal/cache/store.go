// Package cache persists classification results between runs.
//
// Two independent cache domains exist: a record-level cache keyed by
// external-record id (stable across runs because the record itself never
// changes) and a period-level cache keyed by a period identifier plus the
// sorted set of transaction ids in that period, so the key — and with it the
// entry — changes whenever the period's transaction set changes.
//
// Each domain is one JSON blob behind a BlobStore: loaded lazily on first
// access, held in memory for the process lifetime, rewritten in full on
// flush. A blob that fails to decode is treated as corrupt and the whole
// domain starts empty rather than using partially valid data.
package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// BlobStore is a named JSON document store. Read reports ok=false when the
// blob does not exist yet.
type BlobStore interface {
	Read(name string) (data []byte, ok bool, err error)
	Write(name string, data []byte) error
}

// FileStore keeps one file per blob under a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Read(name string) ([]byte, bool, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (s *FileStore) Write(name string, data []byte) error {
	return os.WriteFile(filepath.Join(s.dir, name), data, 0o644)
}

// MemoryStore is an in-memory BlobStore for tests and dry runs.
type MemoryStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (s *MemoryStore) Read(name string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.blobs[name]
	return data, ok, nil
}

func (s *MemoryStore) Write(name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blobs[name] = data
	return nil
}
