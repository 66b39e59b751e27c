package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// ToolFunc executes a tool. It should check args.Err before acting on the
// values it read.
type ToolFunc func(ctx context.Context, args *Args) []Content

// ResourceFunc produces the contents of a resource.
type ResourceFunc func(ctx context.Context) []Content

type toolEntry struct {
	tool Tool
	fn   ToolFunc
}

type resourceEntry struct {
	resource Resource
	fn       ResourceFunc
}

// ToolSet holds the tools and resources a provider exposes and handles the
// lookup and argument failures common to every provider. It is safe for
// concurrent use; entries can be registered while calls are in flight.
type ToolSet struct {
	mu            sync.Mutex
	tools         map[string]toolEntry
	toolOrder     []string
	resources     map[string]resourceEntry
	resourceOrder []string
}

// NewToolSet creates an empty set.
func NewToolSet() *ToolSet {
	return &ToolSet{
		tools:     make(map[string]toolEntry),
		resources: make(map[string]resourceEntry),
	}
}

// Register adds a tool. If a tool with the same name already exists, it is
// replaced in place. The input schema must be a JSON object.
func (s *ToolSet) Register(tool Tool, fn ToolFunc) error {
	if fn == nil {
		return fmt.Errorf("register tool: nil handler")
	}
	if tool.Name == "" {
		return fmt.Errorf("register tool: missing tool name")
	}
	var schema map[string]any
	if err := json.Unmarshal([]byte(tool.InputSchema), &schema); err != nil || schema == nil {
		return fmt.Errorf("register tool: invalid input schema for %q", tool.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tools[tool.Name]; !exists {
		s.toolOrder = append(s.toolOrder, tool.Name)
	}
	s.tools[tool.Name] = toolEntry{tool: tool, fn: fn}
	return nil
}

// RegisterResource adds a resource, replacing any with the same URI.
func (s *ToolSet) RegisterResource(resource Resource, fn ResourceFunc) error {
	if fn == nil {
		return fmt.Errorf("register resource: nil handler")
	}
	if resource.URI == "" {
		return fmt.Errorf("register resource: missing uri")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.resources[resource.URI]; !exists {
		s.resourceOrder = append(s.resourceOrder, resource.URI)
	}
	s.resources[resource.URI] = resourceEntry{resource: resource, fn: fn}
	return nil
}

// Tools returns the registered tools in the order they were first registered.
func (s *ToolSet) Tools() []Tool {
	s.mu.Lock()
	defer s.mu.Unlock()

	tools := make([]Tool, 0, len(s.toolOrder))
	for _, name := range s.toolOrder {
		tools = append(tools, s.tools[name].tool)
	}
	return tools
}

// Resources returns the registered resources in registration order.
func (s *ToolSet) Resources() []Resource {
	s.mu.Lock()
	defer s.mu.Unlock()

	resources := make([]Resource, 0, len(s.resourceOrder))
	for _, uri := range s.resourceOrder {
		resources = append(resources, s.resources[uri].resource)
	}
	return resources
}

// Call runs the named tool. Unknown names and malformed arguments produce
// error content rather than a Go error.
func (s *ToolSet) Call(ctx context.Context, name, jsonArgs string) []Content {
	s.mu.Lock()
	entry, ok := s.tools[name]
	s.mu.Unlock()
	if !ok {
		return []Content{ErrorContent("Unknown tool: %s", name)}
	}

	args, err := ParseArgs(jsonArgs)
	if err != nil {
		return []Content{ErrorContent("Invalid arguments: %v", err)}
	}

	result := entry.fn(ctx, args)
	if err := args.Err(); err != nil {
		return []Content{ErrorContent("Invalid arguments: %v", err)}
	}
	return result
}

// Read produces the contents of the resource at uri.
func (s *ToolSet) Read(ctx context.Context, uri string) []Content {
	s.mu.Lock()
	entry, ok := s.resources[uri]
	s.mu.Unlock()
	if !ok {
		return []Content{ErrorContent("Unknown resource: %s", uri)}
	}
	return entry.fn(ctx)
}

// Supports reports whether the set offers the named capability.
func (s *ToolSet) Supports(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch name {
	case CapabilityTools:
		return len(s.toolOrder) > 0
	case CapabilityResources:
		return len(s.resourceOrder) > 0
	default:
		return false
	}
}
