package discovery

import (
	"context"
	"slices"
	"strings"

	"github.com/iancoleman/strcase"

	"github.com/bpowers/go-modelcontext/capability"
)

// MarkerAction is advertised by every host component that implements the
// provider contract.
const MarkerAction = "modelcontext.provider"

// MetadataType is the component metadata key declaring the capability type.
const MetadataType = "service.type"

// Component is one entry in the host's component registry.
type Component struct {
	ProcessID string
	EntryID   string
	Actions   []string
	Metadata  map[string]string
}

// IsProvider reports whether c advertises the provider marker action.
func (c Component) IsProvider() bool {
	return slices.Contains(c.Actions, MarkerAction)
}

// Enumerator lists the components installed on the host.
type Enumerator interface {
	Enumerate(ctx context.Context) ([]Component, error)
}

// EnumeratorFunc adapts a function to the Enumerator interface.
type EnumeratorFunc func(ctx context.Context) ([]Component, error)

func (f EnumeratorFunc) Enumerate(ctx context.Context) ([]Component, error) {
	return f(ctx)
}

// typeKeywords maps process-name substrings to capability types, checked
// in order.
var typeKeywords = []struct {
	keyword string
	typ     string
}{
	{"date", "date"},
	{"time", "time"},
	{"schedule", "schedule"},
	{"calendar", "schedule"},
	{"file", "file"},
}

// ResolveType determines the capability type of a component: the declared
// metadata wins, then a keyword match over the process name, then
// capability.UnknownType.
func ResolveType(c Component) string {
	if t := declaredType(c.Metadata); t != "" {
		return t
	}
	return GuessType(c.ProcessID)
}

// declaredType reads MetadataType. Manifests written by hand also spell the
// key serviceType or service-type; those normalize to the same snake form.
func declaredType(metadata map[string]string) string {
	if t := strings.TrimSpace(metadata[MetadataType]); t != "" {
		return t
	}
	want := strcase.ToSnake(MetadataType)
	for key, value := range metadata {
		if strcase.ToSnake(key) != want {
			continue
		}
		if t := strings.TrimSpace(value); t != "" {
			return t
		}
	}
	return ""
}

// GuessType reports the first known keyword contained anywhere in the
// process name, ignoring case. The match is deliberately loose:
// "com.example.update" resolves to date.
func GuessType(processID string) string {
	name := strings.ToLower(processID)
	for _, kw := range typeKeywords {
		if strings.Contains(name, kw.keyword) {
			return kw.typ
		}
	}
	return capability.UnknownType
}

// Descriptor builds the descriptor for a provider component.
func (c Component) Descriptor() capability.Descriptor {
	return capability.Descriptor{
		ProcessID:      c.ProcessID,
		EntryID:        c.EntryID,
		CapabilityType: ResolveType(c),
	}
}
