// Package storage is the persistence layer for attribution state: a narrow
// typed key-value store plus the SQLite handle shared with the event spool.
package storage

import "sync"

// Persisted key names. These must stay stable across SDK versions for the
// same install; changing one orphans the state written by older versions.
const (
	KeyJourneyID          = "paylisher_journey_id"
	KeyJourneyIDTimestamp = "paylisher_journey_id_timestamp"
	KeyJourneySource      = "paylisher_journey_source"
	KeyHasLaunched        = "paylisher_first_launch_has_launched"
	KeyInstallTimestamp   = "paylisher_first_launch_install_timestamp"
	KeyVendorID           = "paylisher_vendor_id"
)

// Store is the typed key-value surface the attribution core uses. It is
// deliberately narrow; arbitrary dynamic storage is not exposed.
type Store interface {
	GetString(key string) (string, bool)
	GetFloat64(key string) (float64, bool)
	SetString(key, value string)
	SetFloat64(key string, value float64)
	Remove(key string)
}

// MemoryStore is an in-process Store. Used when no storage path is
// configured and throughout the tests.
type MemoryStore struct {
	mu      sync.RWMutex
	strings map[string]string
	floats  map[string]float64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		strings: make(map[string]string),
		floats:  make(map[string]float64),
	}
}

func (s *MemoryStore) GetString(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.strings[key]
	return v, ok
}

func (s *MemoryStore) GetFloat64(key string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.floats[key]
	return v, ok
}

func (s *MemoryStore) SetString(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strings[key] = value
}

func (s *MemoryStore) SetFloat64(key string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.floats[key] = value
}

func (s *MemoryStore) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.strings, key)
	delete(s.floats, key)
}
