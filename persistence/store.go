// Package persistence provides storage interfaces for the registry's
// persisted state: small named records that survive a process restart.
package persistence

import (
	"sort"
	"sync"
)

// DiscoveredServicesKey names the record holding the JSON array of
// discovered provider descriptors.
const DiscoveredServicesKey = "discovered_services"

// Cache defines the interface for persisting named records.
type Cache interface {
	// Get returns the value stored under name. ok is false if no record exists.
	Get(name string) (value string, ok bool, err error)

	// Put stores value under name, replacing any previous value.
	Put(name, value string) error

	// Delete removes the record. Deleting a missing record is not an error.
	Delete(name string) error

	// Names returns all record names in lexical order.
	Names() ([]string, error)

	// Close closes the cache and releases resources.
	Close() error
}

// MemoryCache provides an in-memory implementation of Cache.
type MemoryCache struct {
	mu      sync.Mutex
	records map[string]string
}

// NewMemoryCache creates a new in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		records: make(map[string]string),
	}
}

// Get implements Cache.
func (m *MemoryCache) Get(name string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.records[name]
	return v, ok, nil
}

// Put implements Cache.
func (m *MemoryCache) Put(name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[name] = value
	return nil
}

// Delete implements Cache.
func (m *MemoryCache) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, name)
	return nil
}

// Names implements Cache.
func (m *MemoryCache) Names() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.records))
	for name := range m.records {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Close implements Cache.
func (m *MemoryCache) Close() error {
	return nil
}
