// Package dispatch routes capability calls to a provider of the requested
// type and folds every provider-side failure into an ordinary result.
package dispatch

import (
	"context"
	"fmt"

	"github.com/bpowers/go-modelcontext/capability"
	"github.com/bpowers/go-modelcontext/conn"
	"github.com/bpowers/go-modelcontext/internal/logging"
)

// Results returned when no provider can answer.
const (
	NotConnectedMessage = "Service not connected"
	CallFailedMessage   = "Service call failed"
	UnknownVersion      = "Unknown"
	ToolUnavailable     = "Service not connected or tool not available"
	ResourceUnavailable = "Service not connected or resource not available"
)

// Connections is the view of live remote connections the dispatcher needs.
type Connections interface {
	FirstByType(capType string) (conn.Link, capability.Descriptor, bool)
}

// Dispatcher resolves built-ins first, then connected remote providers, and
// the first match of each wins.
type Dispatcher struct {
	builtins *Builtins
	conns    Connections
}

// New returns a dispatcher over builtins and conns. Either may be nil.
func New(builtins *Builtins, conns Connections) *Dispatcher {
	if builtins == nil {
		builtins = NewBuiltins()
	}
	return &Dispatcher{builtins: builtins, conns: conns}
}

func (d *Dispatcher) resolve(capType string) (capability.Provider, capability.Descriptor, bool) {
	if p, desc, ok := d.builtins.FirstByType(capType); ok {
		return p, desc, true
	}
	if d.conns != nil {
		if link, desc, ok := d.conns.FirstByType(capType); ok {
			return link, desc, true
		}
	}
	return nil, capability.Descriptor{}, false
}

// IsAvailable reports whether a built-in or connected provider of capType exists.
func (d *Dispatcher) IsAvailable(capType string) bool {
	_, _, ok := d.resolve(capType)
	return ok
}

// invoke runs fn against p, turning a panic into an error.
func invoke[T any](p capability.Provider, fn func(capability.Provider) (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider panic: %v", r)
		}
	}()
	return fn(p)
}

// Calculate relays the legacy single-value call.
func (d *Dispatcher) Calculate(ctx context.Context, capType, value string) string {
	p, desc, ok := d.resolve(capType)
	if !ok {
		return NotConnectedMessage
	}
	result, err := invoke(p, func(p capability.Provider) (string, error) {
		return p.Calculate(ctx, value)
	})
	if err != nil {
		logging.For("dispatch").Warn("calculate failed", "descriptor", desc.String(), "error", err)
		return CallFailedMessage
	}
	return result
}

// Version returns the provider's version string.
func (d *Dispatcher) Version(ctx context.Context, capType string) string {
	p, desc, ok := d.resolve(capType)
	if !ok {
		return UnknownVersion
	}
	version, err := invoke(p, func(p capability.Provider) (string, error) {
		return p.ServiceVersion(ctx)
	})
	if err != nil {
		logging.For("dispatch").Warn("version query failed", "descriptor", desc.String(), "error", err)
		return UnknownVersion
	}
	return version
}

// ListTools returns the provider's tools, or an empty list.
func (d *Dispatcher) ListTools(ctx context.Context, capType string) []capability.Tool {
	p, desc, ok := d.resolve(capType)
	if !ok {
		return []capability.Tool{}
	}
	tools, err := invoke(p, func(p capability.Provider) ([]capability.Tool, error) {
		return p.ListTools(ctx)
	})
	if err != nil {
		logging.For("dispatch").Warn("list tools failed", "descriptor", desc.String(), "error", err)
		return []capability.Tool{}
	}
	if tools == nil {
		tools = []capability.Tool{}
	}
	return tools
}

// CallTool invokes a tool. Every failure is reported as error content.
func (d *Dispatcher) CallTool(ctx context.Context, capType, name, jsonArgs string) []capability.Content {
	p, desc, ok := d.resolve(capType)
	if !ok {
		return []capability.Content{capability.ErrorContent(ToolUnavailable)}
	}
	contents, err := invoke(p, func(p capability.Provider) ([]capability.Content, error) {
		return p.CallTool(ctx, name, jsonArgs)
	})
	if err != nil {
		logging.For("dispatch").Warn("tool call failed", "descriptor", desc.String(), "tool", name, "error", err)
		return []capability.Content{capability.ErrorContent("Tool call error: %v", err)}
	}
	if contents == nil {
		contents = []capability.Content{}
	}
	return contents
}

// ListResources returns the provider's resources, or an empty list.
func (d *Dispatcher) ListResources(ctx context.Context, capType string) []capability.Resource {
	p, desc, ok := d.resolve(capType)
	if !ok {
		return []capability.Resource{}
	}
	resources, err := invoke(p, func(p capability.Provider) ([]capability.Resource, error) {
		return p.ListResources(ctx)
	})
	if err != nil {
		logging.For("dispatch").Warn("list resources failed", "descriptor", desc.String(), "error", err)
		return []capability.Resource{}
	}
	if resources == nil {
		resources = []capability.Resource{}
	}
	return resources
}

// ReadResource reads a resource. Every failure is reported as error content.
func (d *Dispatcher) ReadResource(ctx context.Context, capType, uri string) []capability.Content {
	p, desc, ok := d.resolve(capType)
	if !ok {
		return []capability.Content{capability.ErrorContent(ResourceUnavailable)}
	}
	contents, err := invoke(p, func(p capability.Provider) ([]capability.Content, error) {
		return p.ReadResource(ctx, uri)
	})
	if err != nil {
		logging.For("dispatch").Warn("resource read failed", "descriptor", desc.String(), "uri", uri, "error", err)
		return []capability.Content{capability.ErrorContent("Resource read error: %v", err)}
	}
	if contents == nil {
		contents = []capability.Content{}
	}
	return contents
}

// HasCapability asks the provider whether it supports the named capability.
func (d *Dispatcher) HasCapability(ctx context.Context, capType, name string) bool {
	p, desc, ok := d.resolve(capType)
	if !ok {
		return false
	}
	supported, err := invoke(p, func(p capability.Provider) (bool, error) {
		return p.HasCapability(ctx, name)
	})
	if err != nil {
		logging.For("dispatch").Warn("capability query failed", "descriptor", desc.String(), "capability", name, "error", err)
		return false
	}
	return supported
}
