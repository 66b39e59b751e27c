// Package sdkbridge connects capability providers to the standard Model
// Context Protocol through the official Go SDK, in both directions.
package sdkbridge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bpowers/go-modelcontext/capability"
	"github.com/bpowers/go-modelcontext/internal/logging"
)

// NewServer publishes p as a standard MCP server. The tool and resource
// lists are read once, here; the server reports the provider's type and
// version as its implementation name and version.
func NewServer(ctx context.Context, p capability.Provider) (*mcp.Server, error) {
	capType, err := p.ServiceType(ctx)
	if err != nil {
		return nil, fmt.Errorf("service type: %w", err)
	}
	version, err := p.ServiceVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("service version: %w", err)
	}
	tools, err := p.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	resources, err := p.ListResources(ctx)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}

	server := mcp.NewServer(&mcp.Implementation{Name: capType, Version: version}, nil)
	for _, t := range tools {
		if !json.Valid([]byte(t.InputSchema)) {
			return nil, fmt.Errorf("tool %q: invalid input schema", t.Name)
		}
		name := t.Name
		server.AddTool(&mcp.Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: json.RawMessage(t.InputSchema),
		}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := "{}"
			if req.Params != nil && len(req.Params.Arguments) > 0 {
				args = string(req.Params.Arguments)
			}
			contents, err := p.CallTool(ctx, name, args)
			if err != nil {
				return nil, err
			}
			return toolResult(contents), nil
		})
	}
	for _, r := range resources {
		uri := r.URI
		server.AddResource(&mcp.Resource{
			URI:         r.URI,
			Name:        r.Name,
			Description: r.Description,
			MIMEType:    r.MIMEType,
		}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			contents, err := p.ReadResource(ctx, uri)
			if err != nil {
				return nil, err
			}
			return resourceResult(uri, contents)
		})
	}

	logging.For("sdkbridge").Debug("publishing provider", "type", capType, "tools", len(tools), "resources", len(resources))
	return server, nil
}

// Serve publishes p over transport until ctx ends or the peer disconnects.
func Serve(ctx context.Context, p capability.Provider, transport mcp.Transport) error {
	server, err := NewServer(ctx, p)
	if err != nil {
		return err
	}
	return server.Run(ctx, transport)
}

func toolResult(contents []capability.Content) *mcp.CallToolResult {
	result := &mcp.CallToolResult{Content: make([]mcp.Content, 0, len(contents))}
	for _, c := range contents {
		if c.IsError {
			result.IsError = true
		}
		if c.Kind == capability.KindImage {
			data, err := base64.StdEncoding.DecodeString(c.Payload)
			if err == nil {
				result.Content = append(result.Content, &mcp.ImageContent{Data: data, MIMEType: c.MIMEType})
				continue
			}
		}
		result.Content = append(result.Content, &mcp.TextContent{Text: c.Payload})
	}
	return result
}

// resourceResult converts a read into resource contents. Standard MCP has no
// per-read error flag, so an error item becomes a JSON-RPC error.
func resourceResult(uri string, contents []capability.Content) (*mcp.ReadResourceResult, error) {
	if item, ok := capability.Errors(contents); ok {
		return nil, errors.New(item.Payload)
	}
	result := &mcp.ReadResourceResult{Contents: make([]*mcp.ResourceContents, 0, len(contents))}
	for _, c := range contents {
		rc := &mcp.ResourceContents{URI: uri, MIMEType: c.MIMEType}
		if c.Kind == capability.KindImage {
			data, err := base64.StdEncoding.DecodeString(c.Payload)
			if err != nil {
				return nil, fmt.Errorf("decode image: %w", err)
			}
			rc.Blob = data
		} else {
			rc.Text = c.Payload
		}
		result.Contents = append(result.Contents, rc)
	}
	return result, nil
}
