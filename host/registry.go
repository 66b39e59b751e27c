package host

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"sort"
	"sync"

	"github.com/bpowers/go-modelcontext/discovery"
	"github.com/bpowers/go-modelcontext/internal/logging"
)

// EventKind classifies a change to the installed set.
type EventKind int

const (
	Installed EventKind = iota
	Updated
	Removed
)

func (k EventKind) String() string {
	switch k {
	case Installed:
		return "installed"
	case Updated:
		return "updated"
	case Removed:
		return "removed"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event reports that a provider process was installed, updated or removed.
type Event struct {
	Kind      EventKind
	ProcessID string
}

// Registry is the host component registry, backed by a directory of YAML
// manifests (*.yaml, *.yml) at the root of an fs.FS.
type Registry struct {
	fsys fs.FS

	mu        sync.RWMutex
	manifests map[string]Manifest
}

var _ discovery.Enumerator = (*Registry)(nil)

// NewRegistry returns an empty registry over fsys. Call Load to read it.
func NewRegistry(fsys fs.FS) *Registry {
	return &Registry{fsys: fsys, manifests: make(map[string]Manifest)}
}

// Load rereads every manifest and returns how the installed set changed
// since the previous load, sorted by process. Malformed manifests are
// logged and skipped.
func (r *Registry) Load() ([]Event, error) {
	log := logging.For("host")

	entries, err := fs.ReadDir(r.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read manifests: %w", err)
	}

	loaded := make(map[string]Manifest)
	for _, entry := range entries {
		if entry.IsDir() || !isManifest(entry.Name()) {
			continue
		}
		data, err := fs.ReadFile(r.fsys, entry.Name())
		if err != nil {
			log.Warn("skipping unreadable manifest", "file", entry.Name(), "error", err)
			continue
		}
		m, err := ParseManifest(data)
		if err != nil {
			log.Warn("skipping malformed manifest", "file", entry.Name(), "error", err)
			continue
		}
		if _, dup := loaded[m.Process]; dup {
			log.Warn("skipping duplicate manifest", "file", entry.Name(), "process", m.Process)
			continue
		}
		loaded[m.Process] = m
	}

	r.mu.Lock()
	previous := r.manifests
	r.manifests = loaded
	r.mu.Unlock()

	var events []Event
	for process, m := range loaded {
		old, existed := previous[process]
		switch {
		case !existed:
			events = append(events, Event{Kind: Installed, ProcessID: process})
		case !old.equal(m):
			events = append(events, Event{Kind: Updated, ProcessID: process})
		}
	}
	for process := range previous {
		if _, ok := loaded[process]; !ok {
			events = append(events, Event{Kind: Removed, ProcessID: process})
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].ProcessID < events[j].ProcessID })

	log.Debug("manifests loaded", "count", len(loaded), "changes", len(events))
	return events, nil
}

func isManifest(name string) bool {
	switch path.Ext(name) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// Enumerate implements discovery.Enumerator.
func (r *Registry) Enumerate(ctx context.Context) ([]discovery.Component, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var components []discovery.Component
	for _, process := range r.Processes() {
		m, _ := r.Manifest(process)
		components = append(components, m.Components()...)
	}
	return components, nil
}

// Exists reports whether a manifest declares processID.
func (r *Registry) Exists(processID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.manifests[processID]
	return ok
}

// Manifest returns the manifest declaring processID.
func (r *Registry) Manifest(processID string) (Manifest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.manifests[processID]
	return m, ok
}

// Command returns the launch command of processID.
func (r *Registry) Command(processID string) ([]string, bool) {
	m, ok := r.Manifest(processID)
	if !ok || len(m.Command) == 0 {
		return nil, false
	}
	return slices.Clone(m.Command), true
}

// Processes returns the declared process IDs in sorted order.
func (r *Registry) Processes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	processes := make([]string, 0, len(r.manifests))
	for p := range r.manifests {
		processes = append(processes, p)
	}
	sort.Strings(processes)
	return processes
}
