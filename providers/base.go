// Package providers holds the plumbing shared by the bundled capability
// providers. Each provider lives in its own subpackage.
package providers

import (
	"context"
	"time"

	"github.com/bpowers/go-modelcontext/capability"
)

// Clock returns the current time. Providers take one so tests can pin it.
type Clock func() time.Time

// Base implements the parts of capability.Provider that are driven by a
// ToolSet. Embedders supply Calculate.
type Base struct {
	Type    string
	Version string
	Tools   *capability.ToolSet
}

// NewBase returns a Base with an empty ToolSet.
func NewBase(capType, version string) Base {
	return Base{Type: capType, Version: version, Tools: capability.NewToolSet()}
}

// Descriptor returns the descriptor this provider announces under processID.
func (b *Base) Descriptor(processID, entryID string) capability.Descriptor {
	return capability.Descriptor{ProcessID: processID, EntryID: entryID, CapabilityType: b.Type}
}

func (b *Base) ServiceType(context.Context) (string, error) {
	return b.Type, nil
}

func (b *Base) ServiceVersion(context.Context) (string, error) {
	return b.Version, nil
}

func (b *Base) ListTools(context.Context) ([]capability.Tool, error) {
	return b.Tools.Tools(), nil
}

func (b *Base) CallTool(ctx context.Context, name, jsonArgs string) ([]capability.Content, error) {
	return b.Tools.Call(ctx, name, jsonArgs), nil
}

func (b *Base) ListResources(context.Context) ([]capability.Resource, error) {
	return b.Tools.Resources(), nil
}

func (b *Base) ReadResource(ctx context.Context, uri string) ([]capability.Content, error) {
	return b.Tools.Read(ctx, uri), nil
}

func (b *Base) HasCapability(_ context.Context, name string) (bool, error) {
	return b.Tools.Supports(name), nil
}

// MustRegister registers a tool built into a provider. Bundled schemas are
// fixed at compile time, so a failure is a programming error.
func (b *Base) MustRegister(tool capability.Tool, fn capability.ToolFunc) {
	if err := b.Tools.Register(tool, fn); err != nil {
		panic(err)
	}
}

// MustRegisterResource is the resource counterpart of MustRegister.
func (b *Base) MustRegisterResource(resource capability.Resource, fn capability.ResourceFunc) {
	if err := b.Tools.RegisterResource(resource, fn); err != nil {
		panic(err)
	}
}
