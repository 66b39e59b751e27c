// Package mcp implements the wire contract between the registry and an
// out-of-process capability provider: JSON-RPC 2.0 messages, one per line,
// over any reader/writer pair (typically a child process's stdio).
//
// The method set follows the Model Context Protocol for tools and resources
// and adds three provider methods for the legacy single-value interface:
//
//   - initialize: Handshake and capability exchange
//   - ping: Connection health check
//   - tools/list, tools/call: Enumerate and execute tools
//   - resources/list, resources/read: Enumerate and read resources
//   - provider/info: Capability type and version
//   - provider/calculate: Legacy single-value entry point
//   - provider/hasCapability: Named capability query
//   - notifications/initialized: Client ready notification (no response)
//
// [Server] exposes a [capability.Provider]; [Client] is the matching local
// proxy and itself implements [capability.Provider].
//
// # Basic Usage
//
//	server, err := mcp.NewServer(provider, mcp.Implementation{
//	    Name:    "com.example.datecalc",
//	    Version: "1.0.0",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := server.Serve(ctx, os.Stdin, os.Stdout); err != nil {
//	    log.Fatal(err)
//	}
package mcp

import (
	"encoding/json"
	"fmt"
)

// ProtocolVersion is the protocol version spoken by this package.
const ProtocolVersion = "2025-11-25"

// Request represents a JSON-RPC 2.0 request message.
// The ID field is omitted for notification requests that don't expect a response.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitzero"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitzero"`
}

// Response represents a JSON-RPC 2.0 response message.
// Either Result or Error will be set, but not both.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitzero"`
	Result  any             `json:"result,omitzero"`
	Error   *Error          `json:"error,omitzero"`
}

// Error represents a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitzero"`
}

func (e *Error) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("rpc error %d: %s: %v", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Implementation identifies a server or client implementation.
// Name and Version are required; Description is optional.
type Implementation struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description,omitzero"`
}

// ProviderInfo carries the provider's capability type and version string.
type ProviderInfo struct {
	Type    string `json:"type"`
	Version string `json:"version"`
}

// ToolDefinition describes a tool's interface as returned by tools/list.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitzero"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ResourceDefinition describes a resource as returned by resources/list.
type ResourceDefinition struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitzero"`
	MIMEType    string `json:"mimeType,omitzero"`
}

// ToolCapabilities describes the server's tool-related capabilities.
type ToolCapabilities struct {
	ListChanged bool `json:"listChanged,omitzero"`
}

// ResourceCapabilities describes the server's resource-related capabilities.
type ResourceCapabilities struct {
	Subscribe bool `json:"subscribe,omitzero"`
}

// ServerCapabilities describes what features the server supports.
type ServerCapabilities struct {
	Tools     *ToolCapabilities     `json:"tools,omitzero"`
	Resources *ResourceCapabilities `json:"resources,omitzero"`
}

// InitializeResult is returned by the initialize method during handshake.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	ServerInfo      Implementation     `json:"serverInfo"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	Provider        ProviderInfo       `json:"provider"`
	Instructions    string             `json:"instructions,omitzero"`
}

// ListToolsResult is returned by the tools/list method.
type ListToolsResult struct {
	Tools      []ToolDefinition `json:"tools"`
	NextCursor string           `json:"nextCursor,omitzero"`
}

// ListResourcesResult is returned by the resources/list method.
type ListResourcesResult struct {
	Resources  []ResourceDefinition `json:"resources"`
	NextCursor string               `json:"nextCursor,omitzero"`
}

// ContentBlock is one item of a tool result or resource read.
// Type is "text", "image" or "resource"; JSON documents travel as text with
// an application/json MIME type. IsError marks this item alone as an error
// so a partial success survives the trip next to its failure.
type ContentBlock struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitzero"`
	Data     string `json:"data,omitzero"`
	MIMEType string `json:"mimeType,omitzero"`
	IsError  bool   `json:"isError,omitzero"`
}

// CallToolResult is returned by the tools/call method.
// IsError is true if the tool reported an application-level failure
// (distinct from JSON-RPC errors).
type CallToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitzero"`
}

// ReadResourceResult is returned by the resources/read method.
type ReadResourceResult struct {
	Contents []ContentBlock `json:"contents"`
	IsError  bool           `json:"isError,omitzero"`
}

// CalculateResult is returned by provider/calculate.
type CalculateResult struct {
	Result string `json:"result"`
}

// HasCapabilityResult is returned by provider/hasCapability.
type HasCapabilityResult struct {
	Supported bool `json:"supported"`
}
