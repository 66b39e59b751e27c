package dispatch

import (
	"sync"

	"github.com/bpowers/go-modelcontext/capability"
)

type builtin struct {
	desc     capability.Descriptor
	provider capability.Provider
}

// Builtins holds the providers compiled into the coordinator. They take
// precedence over connected remote providers of the same type.
type Builtins struct {
	mu      sync.Mutex
	entries []builtin
}

// NewBuiltins returns an empty set.
func NewBuiltins() *Builtins {
	return &Builtins{}
}

// Register adds p under d. Registering the same identity again replaces the
// provider in place.
func (b *Builtins) Register(d capability.Descriptor, p capability.Provider) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, e := range b.entries {
		if e.desc.SameIdentity(d) {
			b.entries[i] = builtin{desc: d, provider: p}
			return
		}
	}
	b.entries = append(b.entries, builtin{desc: d, provider: p})
}

// FirstByType returns the first registered built-in of the given type.
func (b *Builtins) FirstByType(capType string) (capability.Provider, capability.Descriptor, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, e := range b.entries {
		if e.desc.CapabilityType == capType {
			return e.provider, e.desc, true
		}
	}
	return nil, capability.Descriptor{}, false
}

// Descriptors returns the descriptors of every built-in in registration order.
func (b *Builtins) Descriptors() []capability.Descriptor {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]capability.Descriptor, 0, len(b.entries))
	for _, e := range b.entries {
		out = append(out, e.desc)
	}
	return out
}

// Has reports whether a built-in of the given type exists.
func (b *Builtins) Has(capType string) bool {
	_, _, ok := b.FirstByType(capType)
	return ok
}
