package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/bpowers/go-modelcontext/capability"
	"github.com/bpowers/go-modelcontext/internal/logging"
)

const (
	errParse          = -32700
	errInvalidRequest = -32600
	errMethodNotFound = -32601
	errInvalidParams  = -32602
	errInternal       = -32603
)

type Option func(*Server)

type Server struct {
	provider        capability.Provider
	info            Implementation
	protocolVersion string
	instructions    string
}

func NewServer(provider capability.Provider, info Implementation, opts ...Option) (*Server, error) {
	if provider == nil {
		return nil, fmt.Errorf("new server: provider is required")
	}
	if info.Name == "" {
		return nil, fmt.Errorf("new server: server name is required")
	}
	if info.Version == "" {
		return nil, fmt.Errorf("new server: server version is required")
	}

	server := &Server{
		provider:        provider,
		info:            info,
		protocolVersion: ProtocolVersion,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(server)
		}
	}

	if server.protocolVersion == "" {
		return nil, fmt.Errorf("new server: protocol version is required")
	}

	return server, nil
}

func WithInstructions(instructions string) Option {
	return func(server *Server) {
		server.instructions = instructions
	}
}

func WithProtocolVersion(version string) Option {
	return func(server *Server) {
		server.protocolVersion = version
	}
}

func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	if s == nil {
		return fmt.Errorf("serve: server is nil")
	}
	if in == nil {
		return fmt.Errorf("serve: input reader is nil")
	}
	if out == nil {
		return fmt.Errorf("serve: output writer is nil")
	}

	decoder := json.NewDecoder(in)
	encoder := json.NewEncoder(out)

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("serve: %w", ctx.Err())
		default:
		}

		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			if err == io.EOF || err == io.ErrClosedPipe {
				return nil
			}
			resp := errorResponse(json.RawMessage("null"), errParse, "parse error", err.Error())
			if encodeErr := encoder.Encode(resp); encodeErr != nil {
				return fmt.Errorf("serve: writing parse error response: %w", encodeErr)
			}
			return fmt.Errorf("serve: decode failed: %w", err)
		}

		resp := s.handleRaw(ctx, raw)
		if resp == nil {
			continue
		}
		if err := encoder.Encode(resp); err != nil {
			return fmt.Errorf("serve: writing response: %w", err)
		}
	}
}

func (s *Server) handleRaw(ctx context.Context, raw json.RawMessage) (resp *Response) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse(json.RawMessage("null"), errInvalidRequest, "invalid request", err.Error())
	}

	if req.JSONRPC != "2.0" || req.Method == "" {
		return errorResponse(requestID(req.ID), errInvalidRequest, "invalid request", nil)
	}

	// notifications (notifications/initialized and friends) get no reply
	if len(req.ID) == 0 {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			logging.For("mcp").Error("provider panic", "method", req.Method, "panic", r)
			resp = errorResponse(req.ID, errInternal, "provider panic", fmt.Sprintf("%v", r))
		}
	}()

	switch req.Method {
	case "initialize":
		return s.handleInitialize(ctx, req)
	case "ping":
		return resultResponse(req.ID, struct{}{})
	case "tools/list":
		return s.handleListTools(ctx, req)
	case "tools/call":
		return s.handleCallTool(ctx, req)
	case "resources/list":
		return s.handleListResources(ctx, req)
	case "resources/read":
		return s.handleReadResource(ctx, req)
	case "provider/info":
		return s.handleInfo(ctx, req)
	case "provider/calculate":
		return s.handleCalculate(ctx, req)
	case "provider/hasCapability":
		return s.handleHasCapability(ctx, req)
	default:
		return errorResponse(req.ID, errMethodNotFound, "method not found", req.Method)
	}
}

func (s *Server) handleInitialize(ctx context.Context, req Request) *Response {
	if len(req.Params) == 0 {
		return errorResponse(req.ID, errInvalidParams, "missing params", nil)
	}

	var params struct {
		ProtocolVersion string          `json:"protocolVersion"`
		ClientInfo      Implementation  `json:"clientInfo"`
		Capabilities    json.RawMessage `json:"capabilities"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, errInvalidParams, "invalid params", err.Error())
	}
	if params.ProtocolVersion == "" || params.ClientInfo.Name == "" || params.ClientInfo.Version == "" {
		return errorResponse(req.ID, errInvalidParams, "invalid params", "missing required fields")
	}
	if len(params.Capabilities) == 0 {
		return errorResponse(req.ID, errInvalidParams, "invalid params", "missing client capabilities")
	}

	info, err := s.providerInfo(ctx)
	if err != nil {
		return errorResponse(req.ID, errInternal, "provider info failed", err.Error())
	}

	result := InitializeResult{
		ProtocolVersion: s.protocolVersion,
		ServerInfo:      s.info,
		Provider:        info,
	}
	if ok, err := s.provider.HasCapability(ctx, capability.CapabilityTools); err == nil && ok {
		result.Capabilities.Tools = &ToolCapabilities{}
	}
	if ok, err := s.provider.HasCapability(ctx, capability.CapabilityResources); err == nil && ok {
		result.Capabilities.Resources = &ResourceCapabilities{}
	}
	if s.instructions != "" {
		result.Instructions = s.instructions
	}

	return resultResponse(req.ID, result)
}

func (s *Server) providerInfo(ctx context.Context) (ProviderInfo, error) {
	typ, err := s.provider.ServiceType(ctx)
	if err != nil {
		return ProviderInfo{}, err
	}
	version, err := s.provider.ServiceVersion(ctx)
	if err != nil {
		return ProviderInfo{}, err
	}
	return ProviderInfo{Type: typ, Version: version}, nil
}

func (s *Server) handleInfo(ctx context.Context, req Request) *Response {
	info, err := s.providerInfo(ctx)
	if err != nil {
		return errorResponse(req.ID, errInternal, "provider info failed", err.Error())
	}
	return resultResponse(req.ID, info)
}

func (s *Server) handleCalculate(ctx context.Context, req Request) *Response {
	var params struct {
		Value string `json:"value"`
	}
	if err := unmarshalParams(req.Params, &params); err != nil {
		return errorResponse(req.ID, errInvalidParams, "invalid params", err.Error())
	}
	result, err := s.provider.Calculate(ctx, params.Value)
	if err != nil {
		return errorResponse(req.ID, errInternal, "calculate failed", err.Error())
	}
	return resultResponse(req.ID, CalculateResult{Result: result})
}

func (s *Server) handleHasCapability(ctx context.Context, req Request) *Response {
	var params struct {
		Name string `json:"name"`
	}
	if err := unmarshalParams(req.Params, &params); err != nil {
		return errorResponse(req.ID, errInvalidParams, "invalid params", err.Error())
	}
	ok, err := s.provider.HasCapability(ctx, params.Name)
	if err != nil {
		return errorResponse(req.ID, errInternal, "capability query failed", err.Error())
	}
	return resultResponse(req.ID, HasCapabilityResult{Supported: ok})
}

func (s *Server) handleListTools(ctx context.Context, req Request) *Response {
	if len(req.Params) > 0 {
		var params struct {
			Cursor json.RawMessage `json:"cursor"`
		}
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, errInvalidParams, "invalid params", err.Error())
		}
		// Pagination is not implemented; cursor is parsed but ignored.
	}

	tools, err := s.provider.ListTools(ctx)
	if err != nil {
		return errorResponse(req.ID, errInternal, "list tools failed", err.Error())
	}

	defs := make([]ToolDefinition, 0, len(tools))
	for _, t := range tools {
		schema := json.RawMessage(t.InputSchema)
		if len(bytes.TrimSpace(schema)) == 0 || !json.Valid(schema) {
			schema = json.RawMessage(`{"type":"object"}`)
		}
		defs = append(defs, ToolDefinition{Name: t.Name, Description: t.Description, InputSchema: schema})
	}
	return resultResponse(req.ID, ListToolsResult{Tools: defs})
}

func (s *Server) handleCallTool(ctx context.Context, req Request) *Response {
	if len(req.Params) == 0 {
		return errorResponse(req.ID, errInvalidParams, "missing params", nil)
	}

	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, errInvalidParams, "invalid params", err.Error())
	}
	if params.Name == "" {
		return errorResponse(req.ID, errInvalidParams, "invalid params", "tool name is required")
	}

	contents, err := s.provider.CallTool(ctx, params.Name, normalizeArguments(params.Arguments))
	if err != nil {
		return errorResponse(req.ID, errInternal, "tool call failed", err.Error())
	}

	blocks, isError := toBlocks(contents)
	return resultResponse(req.ID, CallToolResult{Content: blocks, IsError: isError})
}

func (s *Server) handleListResources(ctx context.Context, req Request) *Response {
	resources, err := s.provider.ListResources(ctx)
	if err != nil {
		return errorResponse(req.ID, errInternal, "list resources failed", err.Error())
	}

	defs := make([]ResourceDefinition, 0, len(resources))
	for _, r := range resources {
		defs = append(defs, ResourceDefinition{URI: r.URI, Name: r.Name, Description: r.Description, MIMEType: r.MIMEType})
	}
	return resultResponse(req.ID, ListResourcesResult{Resources: defs})
}

func (s *Server) handleReadResource(ctx context.Context, req Request) *Response {
	var params struct {
		URI string `json:"uri"`
	}
	if err := unmarshalParams(req.Params, &params); err != nil {
		return errorResponse(req.ID, errInvalidParams, "invalid params", err.Error())
	}

	contents, err := s.provider.ReadResource(ctx, params.URI)
	if err != nil {
		return errorResponse(req.ID, errInternal, "resource read failed", err.Error())
	}

	blocks, isError := toBlocks(contents)
	return resultResponse(req.ID, ReadResourceResult{Contents: blocks, IsError: isError})
}

func unmarshalParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("missing params")
	}
	return json.Unmarshal(raw, v)
}

// normalizeArguments returns the argument text handed to the provider.
// Arguments that are not valid JSON travel as a JSON string so the provider
// sees, and reports on, exactly what the caller sent.
func normalizeArguments(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	trimmed := bytes.TrimSpace(raw)
	if bytes.Equal(trimmed, []byte("null")) {
		return "{}"
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err == nil {
			return text
		}
	}
	return string(trimmed)
}

func resultResponse(id json.RawMessage, result any) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}
}

func errorResponse(id json.RawMessage, code int, message string, data any) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      id,
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

func requestID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}
