// Package capability defines the values exchanged between the registry and
// capability providers, and the contract every provider implements whether it
// is compiled into the coordinator or reached across a process boundary.
package capability

import (
	"context"
	"fmt"
)

// Well-known capability names answered by HasCapability.
const (
	CapabilityTools     = "tools"
	CapabilityResources = "resources"
)

// UnknownType is used when a provider's capability type cannot be determined.
const UnknownType = "unknown"

// Descriptor identifies a provider independent of whether it is connected.
// Two descriptors share an identity when ProcessID and EntryID match; the
// capability type is not part of the identity key.
type Descriptor struct {
	ProcessID      string `json:"processId"`
	EntryID        string `json:"entryId"`
	CapabilityType string `json:"capabilityType"`
}

// Key returns the identity key of the descriptor.
func (d Descriptor) Key() string {
	return d.ProcessID + "/" + d.EntryID
}

// SameIdentity reports whether d and other name the same provider.
func (d Descriptor) SameIdentity(other Descriptor) bool {
	return d.ProcessID == other.ProcessID && d.EntryID == other.EntryID
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s (%s)", d.Key(), d.CapabilityType)
}

// Tool describes a named, schema-described callable operation.
// InputSchema is a JSON Schema object encoded as a string.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema string `json:"inputSchema"`
}

// Resource describes a URI-addressed readable document.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MIMEType    string `json:"mimeType,omitzero"`
}

// Provider is the contract implemented by every capability provider.
//
// The returned error is reserved for transport-level failure (the provider
// could not be reached or went away mid-call). Application-level failures such
// as malformed arguments or unknown tool names are reported in-band as error
// Content so that local and remote providers behave the same way.
type Provider interface {
	// ServiceType returns the capability type this provider answers for.
	ServiceType(ctx context.Context) (string, error)
	// ServiceVersion returns a free-form version string.
	ServiceVersion(ctx context.Context) (string, error)
	// Calculate is the legacy single-value entry point.
	Calculate(ctx context.Context, value string) (string, error)
	ListTools(ctx context.Context) ([]Tool, error)
	// CallTool invokes the named tool with a JSON object encoded as a string.
	CallTool(ctx context.Context, name, jsonArgs string) ([]Content, error)
	ListResources(ctx context.Context) ([]Resource, error)
	ReadResource(ctx context.Context, uri string) ([]Content, error)
	HasCapability(ctx context.Context, name string) (bool, error)
}
