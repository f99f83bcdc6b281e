package memory

import (
	"sort"
	"sync"

	"github.com/JakeFAU/grocery-catalog-crawler/internal/crawler"
)

// RecordStore is the run's keyed accumulator. A later Put for the same key
// replaces the earlier record whole; fields are never merged.
type RecordStore struct {
	mu      sync.RWMutex
	records map[int64]crawler.ProductRecord
	writes  int
}

// NewRecordStore constructs an empty RecordStore.
func NewRecordStore() *RecordStore {
	return &RecordStore{
		records: make(map[int64]crawler.ProductRecord),
	}
}

// Put stores record under key.
func (s *RecordStore) Put(key int64, record crawler.ProductRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = record
	s.writes++
}

// Get fetches the record stored under key.
func (s *RecordStore) Get(key int64) (crawler.ProductRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	return rec, ok
}

// Len returns the number of distinct keys.
func (s *RecordStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Overwrites returns how many Puts replaced an existing key.
func (s *RecordStore) Overwrites() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes - len(s.records)
}

// Snapshot returns every record ordered by key.
func (s *RecordStore) Snapshot() []crawler.KeyedRecord {
	s.mu.RLock()
	out := make([]crawler.KeyedRecord, 0, len(s.records))
	for k, rec := range s.records {
		out = append(out, crawler.KeyedRecord{Key: k, Record: rec})
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
