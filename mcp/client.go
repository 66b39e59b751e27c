package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/bpowers/go-modelcontext/capability"
)

// ErrClosed is returned for calls made on, or pending when, a closed stream.
var ErrClosed = errors.New("mcp: connection closed")

// ClientVersion is reported in the initialize handshake.
const ClientVersion = "1.0.0"

type rpcReply struct {
	result json.RawMessage
	err    error
}

// Client is the local proxy for a provider served by [Server]. Calls are
// serialized: each one writes its request and blocks until the matching
// response arrives, ctx ends, or the stream closes.
type Client struct {
	enc    *json.Encoder
	closer io.Closer

	callMu sync.Mutex

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan rpcReply
	closed  bool

	done      chan struct{}
	closeOnce sync.Once
}

var _ capability.Provider = (*Client)(nil)

// NewClient starts reading responses from r and writes requests to w.
// closer, if non-nil, is closed by Close and should unblock reads on r.
func NewClient(r io.Reader, w io.Writer, closer io.Closer) *Client {
	c := &Client{
		enc:     json.NewEncoder(w),
		closer:  closer,
		nextID:  1,
		pending: make(map[int64]chan rpcReply),
		done:    make(chan struct{}),
	}
	go c.readLoop(r)
	return c
}

// Done is closed once the stream has ended, whether by Close or because the
// remote side went away.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close tears down the stream. Pending calls fail with ErrClosed.
func (c *Client) Close() error {
	var err error
	if c.shutdown() && c.closer != nil {
		err = c.closer.Close()
	}
	return err
}

// shutdown marks the client closed and fails pending calls. It reports
// whether this call performed the shutdown.
func (c *Client) shutdown() bool {
	first := false
	c.closeOnce.Do(func() {
		first = true
		c.mu.Lock()
		c.closed = true
		pending := c.pending
		c.pending = make(map[int64]chan rpcReply)
		c.mu.Unlock()

		for _, ch := range pending {
			ch <- rpcReply{err: ErrClosed}
		}
		close(c.done)
	})
	return first
}

func (c *Client) readLoop(r io.Reader) {
	dec := json.NewDecoder(r)
	for {
		var msg struct {
			ID     json.RawMessage `json:"id"`
			Result json.RawMessage `json:"result"`
			Error  *Error          `json:"error"`
		}
		if err := dec.Decode(&msg); err != nil {
			c.shutdown()
			return
		}

		id, err := strconv.ParseInt(string(msg.ID), 10, 64)
		if err != nil {
			// server-initiated or unparsable message; nothing waits for it
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[id]
		delete(c.pending, id)
		c.mu.Unlock()
		if !ok {
			continue
		}

		if msg.Error != nil {
			ch <- rpcReply{err: msg.Error}
		} else {
			ch <- rpcReply{result: msg.Result}
		}
	}
}

func (c *Client) call(ctx context.Context, method string, params, result any) error {
	c.callMu.Lock()
	defer c.callMu.Unlock()

	var rawParams json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("%s: encode params: %w", method, err)
		}
		rawParams = data
	}

	ch := make(chan rpcReply, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("%s: %w", method, ErrClosed)
	}
	id := c.nextID
	c.nextID++
	c.pending[id] = ch
	c.mu.Unlock()

	req := Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(strconv.FormatInt(id, 10)),
		Method:  method,
		Params:  rawParams,
	}
	if err := c.enc.Encode(req); err != nil {
		c.forget(id)
		c.shutdown()
		return fmt.Errorf("%s: write request: %w", method, ErrClosed)
	}

	select {
	case reply := <-ch:
		if reply.err != nil {
			return fmt.Errorf("%s: %w", method, reply.err)
		}
		if result == nil {
			return nil
		}
		if err := json.Unmarshal(reply.result, result); err != nil {
			return fmt.Errorf("%s: decode result: %w", method, err)
		}
		return nil
	case <-ctx.Done():
		c.forget(id)
		return fmt.Errorf("%s: %w", method, ctx.Err())
	}
}

func (c *Client) forget(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) notify(method string) error {
	c.callMu.Lock()
	defer c.callMu.Unlock()
	return c.enc.Encode(Request{JSONRPC: "2.0", Method: method})
}

// Initialize performs the protocol handshake.
func (c *Client) Initialize(ctx context.Context) (InitializeResult, error) {
	params := map[string]any{
		"protocolVersion": ProtocolVersion,
		"clientInfo":      Implementation{Name: "modelcontext", Version: ClientVersion},
		"capabilities":    struct{}{},
	}
	var result InitializeResult
	if err := c.call(ctx, "initialize", params, &result); err != nil {
		return InitializeResult{}, err
	}
	if err := c.notify("notifications/initialized"); err != nil {
		return InitializeResult{}, fmt.Errorf("initialized notification: %w", err)
	}
	return result, nil
}

// Ping checks that the provider is responsive.
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, "ping", nil, nil)
}

func (c *Client) info(ctx context.Context) (ProviderInfo, error) {
	var info ProviderInfo
	err := c.call(ctx, "provider/info", nil, &info)
	return info, err
}

// ServiceType implements capability.Provider.
func (c *Client) ServiceType(ctx context.Context) (string, error) {
	info, err := c.info(ctx)
	return info.Type, err
}

// ServiceVersion implements capability.Provider.
func (c *Client) ServiceVersion(ctx context.Context) (string, error) {
	info, err := c.info(ctx)
	return info.Version, err
}

// Calculate implements capability.Provider.
func (c *Client) Calculate(ctx context.Context, value string) (string, error) {
	var result CalculateResult
	if err := c.call(ctx, "provider/calculate", map[string]string{"value": value}, &result); err != nil {
		return "", err
	}
	return result.Result, nil
}

// HasCapability implements capability.Provider.
func (c *Client) HasCapability(ctx context.Context, name string) (bool, error) {
	var result HasCapabilityResult
	if err := c.call(ctx, "provider/hasCapability", map[string]string{"name": name}, &result); err != nil {
		return false, err
	}
	return result.Supported, nil
}

// ListTools implements capability.Provider.
func (c *Client) ListTools(ctx context.Context) ([]capability.Tool, error) {
	var result ListToolsResult
	if err := c.call(ctx, "tools/list", nil, &result); err != nil {
		return nil, err
	}
	tools := make([]capability.Tool, 0, len(result.Tools))
	for _, t := range result.Tools {
		tools = append(tools, capability.Tool{Name: t.Name, Description: t.Description, InputSchema: string(t.InputSchema)})
	}
	return tools, nil
}

// CallTool implements capability.Provider.
func (c *Client) CallTool(ctx context.Context, name, jsonArgs string) ([]capability.Content, error) {
	params := struct {
		Name      string `json:"name"`
		Arguments any    `json:"arguments"`
	}{Name: name}
	if json.Valid([]byte(jsonArgs)) {
		params.Arguments = json.RawMessage(jsonArgs)
	} else {
		params.Arguments = jsonArgs
	}

	var result CallToolResult
	if err := c.call(ctx, "tools/call", params, &result); err != nil {
		return nil, err
	}
	return fromBlocks(result.Content, result.IsError), nil
}

// ListResources implements capability.Provider.
func (c *Client) ListResources(ctx context.Context) ([]capability.Resource, error) {
	var result ListResourcesResult
	if err := c.call(ctx, "resources/list", nil, &result); err != nil {
		return nil, err
	}
	resources := make([]capability.Resource, 0, len(result.Resources))
	for _, r := range result.Resources {
		resources = append(resources, capability.Resource{URI: r.URI, Name: r.Name, Description: r.Description, MIMEType: r.MIMEType})
	}
	return resources, nil
}

// ReadResource implements capability.Provider.
func (c *Client) ReadResource(ctx context.Context, uri string) ([]capability.Content, error) {
	var result ReadResourceResult
	if err := c.call(ctx, "resources/read", map[string]string{"uri": uri}, &result); err != nil {
		return nil, err
	}
	return fromBlocks(result.Contents, result.IsError), nil
}
