// Package catalog holds the set of known capability providers, whether or not
// they are currently connected.
package catalog

import (
	"sync"

	"github.com/bpowers/go-modelcontext/capability"
	"github.com/bpowers/go-modelcontext/internal/logging"
)

// Option configures a Store.
type Option func(*Store)

// WithRemoveHook registers fn to be called for every descriptor dropped by
// RemoveWhere. The hook runs after the store lock is released.
func WithRemoveHook(fn func(capability.Descriptor)) Option {
	return func(s *Store) {
		s.onRemove = fn
	}
}

// Store is an ordered, deduplicated collection of descriptors. Identity is
// (ProcessID, EntryID); the capability type of the first insertion wins.
type Store struct {
	mu       sync.Mutex
	order    []capability.Descriptor
	keys     map[string]struct{}
	onRemove func(capability.Descriptor)
}

// New returns an empty Store.
func New(opts ...Option) *Store {
	s := &Store{keys: make(map[string]struct{})}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// AddIfAbsent inserts d unless a descriptor with the same identity is already
// present. It reports whether d was inserted.
func (s *Store) AddIfAbsent(d capability.Descriptor) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := d.Key()
	if _, ok := s.keys[key]; ok {
		return false
	}
	s.keys[key] = struct{}{}
	s.order = append(s.order, d)
	return true
}

// ByType returns descriptors of the given capability type in insertion order.
func (s *Store) ByType(capType string) []capability.Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []capability.Descriptor{}
	for _, d := range s.order {
		if d.CapabilityType == capType {
			out = append(out, d)
		}
	}
	return out
}

// RemoveWhere drops every descriptor matching pred and returns them.
func (s *Store) RemoveWhere(pred func(capability.Descriptor) bool) []capability.Descriptor {
	s.mu.Lock()
	var removed []capability.Descriptor
	kept := s.order[:0]
	for _, d := range s.order {
		if pred(d) {
			removed = append(removed, d)
			delete(s.keys, d.Key())
			continue
		}
		kept = append(kept, d)
	}
	// clear the tail so dropped descriptors aren't retained by the backing array
	clear(s.order[len(kept):])
	s.order = kept
	hook := s.onRemove
	s.mu.Unlock()

	if hook != nil {
		for _, d := range removed {
			hook(d)
		}
	}
	return removed
}

// Snapshot returns a copy of every descriptor in insertion order.
func (s *Store) Snapshot() []capability.Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]capability.Descriptor, len(s.order))
	copy(out, s.order)
	return out
}

// Len returns the number of stored descriptors.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// LoadFromCache merges a persisted descriptor array into the store. Records
// that fail to decode are skipped individually. When exists is non-nil,
// records whose process is no longer installed are dropped. It returns the
// number of descriptors added.
func (s *Store) LoadFromCache(data string, exists func(processID string) bool) int {
	log := logging.For("catalog")
	if data == "" {
		return 0
	}

	records, err := capability.SplitRecords(data)
	if err != nil {
		log.Warn("ignoring unreadable descriptor cache", "error", err)
		return 0
	}

	added := 0
	for i, raw := range records {
		d, err := capability.DecodeDescriptor(raw)
		if err != nil {
			log.Warn("skipping malformed cache record", "index", i, "error", err)
			continue
		}
		if exists != nil && !exists(d.ProcessID) {
			log.Debug("dropping cached descriptor for missing process", "descriptor", d.String())
			continue
		}
		if s.AddIfAbsent(d) {
			added++
		}
	}
	return added
}

// EncodeCache serializes the current contents in the persisted cache shape.
func (s *Store) EncodeCache() (string, error) {
	return capability.EncodeDescriptors(s.Snapshot())
}
