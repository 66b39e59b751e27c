package mcp

import (
	"context"
	"errors"

	"github.com/bpowers/go-modelcontext/capability"
)

// stubProvider is a small provider backed by a ToolSet.
type stubProvider struct {
	set        *capability.ToolSet
	calledWith *string
	failAll    bool
}

func newStubProvider() *stubProvider {
	p := &stubProvider{set: capability.NewToolSet()}
	_ = p.set.Register(capability.Tool{
		Name:        "Echo",
		Description: "echoes input",
		InputSchema: `{"type":"object","properties":{"msg":{"type":"string"}}}`,
	}, func(ctx context.Context, args *capability.Args) []capability.Content {
		msg := args.String("msg")
		if args.Err() != nil {
			return nil
		}
		return []capability.Content{capability.TextContent(msg)}
	})
	_ = p.set.Register(capability.Tool{
		Name:        "Panic",
		InputSchema: `{"type":"object"}`,
	}, func(context.Context, *capability.Args) []capability.Content {
		panic("intentional panic for testing")
	})
	_ = p.set.RegisterResource(capability.Resource{URI: "stub://doc", Name: "doc", MIMEType: "application/json"},
		func(context.Context) []capability.Content {
			return []capability.Content{capability.JSONContent(`{"ok":true}`)}
		})
	return p
}

var errUnreachable = errors.New("backend unreachable")

func (p *stubProvider) ServiceType(ctx context.Context) (string, error) {
	return "stub", nil
}

func (p *stubProvider) ServiceVersion(ctx context.Context) (string, error) {
	return "Stub v1", nil
}

func (p *stubProvider) Calculate(ctx context.Context, value string) (string, error) {
	if p.failAll {
		return "", errUnreachable
	}
	return "calc:" + value, nil
}

func (p *stubProvider) ListTools(ctx context.Context) ([]capability.Tool, error) {
	if p.failAll {
		return nil, errUnreachable
	}
	return p.set.Tools(), nil
}

func (p *stubProvider) CallTool(ctx context.Context, name, jsonArgs string) ([]capability.Content, error) {
	if p.calledWith != nil {
		*p.calledWith = jsonArgs
	}
	if p.failAll {
		return nil, errUnreachable
	}
	return p.set.Call(ctx, name, jsonArgs), nil
}

func (p *stubProvider) ListResources(ctx context.Context) ([]capability.Resource, error) {
	return p.set.Resources(), nil
}

func (p *stubProvider) ReadResource(ctx context.Context, uri string) ([]capability.Content, error) {
	return p.set.Read(ctx, uri), nil
}

func (p *stubProvider) HasCapability(ctx context.Context, name string) (bool, error) {
	return p.set.Supports(name), nil
}

var _ capability.Provider = (*stubProvider)(nil)
