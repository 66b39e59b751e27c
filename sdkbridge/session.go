package sdkbridge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bpowers/go-modelcontext/capability"
)

// ClientName identifies this registry to MCP servers.
const ClientName = "modelcontext"

// CalculateUnsupported is the Calculate result for MCP-linked providers.
const CalculateUnsupported = "Error: calculate is not supported by MCP providers"

// SessionProvider adapts an MCP client session to capability.Provider. It
// also satisfies conn.Link.
//
// Errors are classified by the session: a failure while the session is still
// open is the server refusing the request and comes back as error content; a
// failure after it has ended is a transport error.
type SessionProvider struct {
	session *mcp.ClientSession
	done    chan struct{}
}

var _ capability.Provider = (*SessionProvider)(nil)

// Dial connects to an MCP server over transport.
func Dial(ctx context.Context, transport mcp.Transport) (*SessionProvider, error) {
	client := mcp.NewClient(&mcp.Implementation{Name: ClientName, Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcp connect: %w", err)
	}
	return NewSessionProvider(session), nil
}

// NewSessionProvider wraps an established session.
func NewSessionProvider(session *mcp.ClientSession) *SessionProvider {
	sp := &SessionProvider{session: session, done: make(chan struct{})}
	go func() {
		_ = session.Wait()
		close(sp.done)
	}()
	return sp
}

// Close ends the session.
func (sp *SessionProvider) Close() error {
	return sp.session.Close()
}

// Done is closed when the session has ended.
func (sp *SessionProvider) Done() <-chan struct{} {
	return sp.done
}

func (sp *SessionProvider) transportFailure(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	select {
	case <-sp.done:
		return true
	default:
		return false
	}
}

func (sp *SessionProvider) serverInfo() *mcp.Implementation {
	if res := sp.session.InitializeResult(); res != nil && res.ServerInfo != nil {
		return res.ServerInfo
	}
	return &mcp.Implementation{}
}

// ServiceType returns the server's implementation name.
func (sp *SessionProvider) ServiceType(context.Context) (string, error) {
	return sp.serverInfo().Name, nil
}

func (sp *SessionProvider) ServiceVersion(context.Context) (string, error) {
	return sp.serverInfo().Version, nil
}

func (sp *SessionProvider) Calculate(context.Context, string) (string, error) {
	return CalculateUnsupported, nil
}

func (sp *SessionProvider) HasCapability(_ context.Context, name string) (bool, error) {
	res := sp.session.InitializeResult()
	if res == nil || res.Capabilities == nil {
		return false, nil
	}
	switch name {
	case capability.CapabilityTools:
		return res.Capabilities.Tools != nil, nil
	case capability.CapabilityResources:
		return res.Capabilities.Resources != nil, nil
	default:
		return false, nil
	}
}

func (sp *SessionProvider) ListTools(ctx context.Context) ([]capability.Tool, error) {
	var tools []capability.Tool
	params := &mcp.ListToolsParams{}
	for {
		res, err := sp.session.ListTools(ctx, params)
		if err != nil {
			return nil, err
		}
		for _, t := range res.Tools {
			schema := `{"type":"object"}`
			if t.InputSchema != nil {
				data, err := json.Marshal(t.InputSchema)
				if err != nil {
					return nil, fmt.Errorf("tool %q schema: %w", t.Name, err)
				}
				schema = string(data)
			}
			tools = append(tools, capability.Tool{Name: t.Name, Description: t.Description, InputSchema: schema})
		}
		if res.NextCursor == "" {
			return tools, nil
		}
		params = &mcp.ListToolsParams{Cursor: res.NextCursor}
	}
}

func (sp *SessionProvider) CallTool(ctx context.Context, name, jsonArgs string) ([]capability.Content, error) {
	if _, err := capability.ParseArgs(jsonArgs); err != nil {
		return []capability.Content{capability.ErrorContent("Invalid arguments: %v", err)}, nil
	}
	raw := json.RawMessage(jsonArgs)
	if trimmed := strings.TrimSpace(jsonArgs); trimmed == "" || trimmed == "null" {
		raw = json.RawMessage("{}")
	}
	res, err := sp.session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: raw})
	if err != nil {
		if sp.transportFailure(ctx) {
			return nil, err
		}
		return []capability.Content{capability.ErrorContent("%v", err)}, nil
	}
	return fromToolResult(res), nil
}

func fromToolResult(res *mcp.CallToolResult) []capability.Content {
	contents := make([]capability.Content, 0, len(res.Content))
	for _, c := range res.Content {
		switch c := c.(type) {
		case *mcp.TextContent:
			item := capability.TextContent(c.Text)
			item.IsError = res.IsError
			contents = append(contents, item)
		case *mcp.ImageContent:
			contents = append(contents, capability.ImageContent(c.Data, c.MIMEType))
		case *mcp.EmbeddedResource:
			if c.Resource != nil {
				contents = append(contents, capability.Content{Kind: capability.KindResource, Payload: c.Resource.Text, MIMEType: c.Resource.MIMEType})
			}
		}
	}
	return contents
}

func (sp *SessionProvider) ListResources(ctx context.Context) ([]capability.Resource, error) {
	var resources []capability.Resource
	params := &mcp.ListResourcesParams{}
	for {
		res, err := sp.session.ListResources(ctx, params)
		if err != nil {
			return nil, err
		}
		for _, r := range res.Resources {
			resources = append(resources, capability.Resource{URI: r.URI, Name: r.Name, Description: r.Description, MIMEType: r.MIMEType})
		}
		if res.NextCursor == "" {
			return resources, nil
		}
		params = &mcp.ListResourcesParams{Cursor: res.NextCursor}
	}
}

func (sp *SessionProvider) ReadResource(ctx context.Context, uri string) ([]capability.Content, error) {
	res, err := sp.session.ReadResource(ctx, &mcp.ReadResourceParams{URI: uri})
	if err != nil {
		if sp.transportFailure(ctx) {
			return nil, err
		}
		return []capability.Content{capability.ErrorContent("%v", err)}, nil
	}

	contents := make([]capability.Content, 0, len(res.Contents))
	for _, rc := range res.Contents {
		switch {
		case len(rc.Blob) > 0:
			contents = append(contents, capability.Content{
				Kind:     capability.KindImage,
				Payload:  base64.StdEncoding.EncodeToString(rc.Blob),
				MIMEType: rc.MIMEType,
			})
		case rc.MIMEType == "application/json":
			contents = append(contents, capability.JSONContent(rc.Text))
		default:
			item := capability.TextContent(rc.Text)
			if rc.MIMEType != "" {
				item.MIMEType = rc.MIMEType
			}
			contents = append(contents, item)
		}
	}
	return contents, nil
}
