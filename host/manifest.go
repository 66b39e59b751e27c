// Package host models the machine's installed provider processes: the
// manifests that declare them, the watcher that notices changes, and the
// dialer that launches them.
package host

import (
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/bpowers/go-modelcontext/discovery"
)

// Protocols a provider process can speak on stdio.
const (
	ProtocolNative = "native"
	ProtocolMCP    = "mcp"
)

// Manifest declares one installed provider process.
type Manifest struct {
	Process  string   `yaml:"process"`
	Command  []string `yaml:"command"`
	Protocol string   `yaml:"protocol,omitempty"`
	Entries  []Entry  `yaml:"entries"`
}

// Entry is one component exposed by the process.
type Entry struct {
	ID       string            `yaml:"id"`
	Actions  []string          `yaml:"actions,omitempty"`
	Metadata map[string]string `yaml:"metadata,omitempty"`
}

// ParseManifest decodes and validates a manifest document.
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	if m.Protocol == "" {
		m.Protocol = ProtocolNative
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// Validate checks the fields every manifest needs.
func (m Manifest) Validate() error {
	if m.Process == "" {
		return fmt.Errorf("manifest: missing process")
	}
	if m.Protocol != ProtocolNative && m.Protocol != ProtocolMCP {
		return fmt.Errorf("manifest %s: unknown protocol %q", m.Process, m.Protocol)
	}
	for i, e := range m.Entries {
		if e.ID == "" {
			return fmt.Errorf("manifest %s: entry %d has no id", m.Process, i)
		}
	}
	return nil
}

// Entry returns the entry with the given id.
func (m Manifest) Entry(id string) (Entry, bool) {
	for _, e := range m.Entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Components lists the manifest's entries as host components.
func (m Manifest) Components() []discovery.Component {
	components := make([]discovery.Component, 0, len(m.Entries))
	for _, e := range m.Entries {
		components = append(components, discovery.Component{
			ProcessID: m.Process,
			EntryID:   e.ID,
			Actions:   slices.Clone(e.Actions),
			Metadata:  e.Metadata,
		})
	}
	return components
}

func (m Manifest) equal(other Manifest) bool {
	a, errA := yaml.Marshal(m)
	b, errB := yaml.Marshal(other)
	return errA == nil && errB == nil && string(a) == string(b)
}
