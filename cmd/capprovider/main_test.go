package main

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpowers/go-modelcontext/capability"
	"github.com/bpowers/go-modelcontext/catalog"
	"github.com/bpowers/go-modelcontext/discovery"
	"github.com/bpowers/go-modelcontext/host"
	"github.com/bpowers/go-modelcontext/mcp"
)

func TestDescriptorDefaults(t *testing.T) {
	t.Setenv(host.EntryEnv, "")
	assert.Equal(t, capability.Descriptor{ProcessID: "capprovider.time", EntryID: "time", CapabilityType: "time"},
		options{provider: "time"}.descriptor())

	t.Setenv(host.EntryEnv, "TimeCalculatorService")
	assert.Equal(t, capability.Descriptor{ProcessID: "com.example.time", EntryID: "TimeCalculatorService", CapabilityType: "time"},
		options{provider: "time", process: "com.example.time"}.descriptor())
}

func TestRunRejectsBadOptions(t *testing.T) {
	ctx := context.Background()
	err := run(ctx, options{provider: "date", protocol: "grpc"}, nil, nil)
	assert.ErrorContains(t, err, `unknown protocol "grpc"`)

	err = run(ctx, options{provider: "weather", protocol: host.ProtocolNative}, nil, nil)
	assert.ErrorContains(t, err, "unknown provider")
}

func TestRunNativeAnswersDiscovery(t *testing.T) {
	t.Setenv(host.EntryEnv, "DateCalculatorService")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bus := discovery.NewMemoryBus()
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	errc := make(chan error, 1)
	go func() {
		err := run(ctx, options{provider: "date", protocol: host.ProtocolNative, bus: bus}, inR, outW)
		outW.Close()
		errc <- err
	}()

	client := mcp.NewClient(outR, inW, inW)
	info, err := client.Initialize(ctx)
	require.NoError(t, err)
	assert.Equal(t, "DateCalculatorService", info.ServerInfo.Name)

	capType, err := client.ServiceType(ctx)
	require.NoError(t, err)
	assert.Equal(t, "date", capType)

	got, err := client.CallTool(ctx, "add_days", `{"days":1}`)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.False(t, got[0].IsError)

	// the server is up, so the responder has subscribed
	d, err := discovery.New(catalog.New(), discovery.WithBus(bus), discovery.WithWindow(50*time.Millisecond))
	require.NoError(t, err)
	found, err := d.Run(ctx)
	require.NoError(t, err)
	assert.Contains(t, found, capability.Descriptor{ProcessID: "capprovider.date", EntryID: "DateCalculatorService", CapabilityType: "date"})

	require.NoError(t, client.Close())
	require.NoError(t, <-errc)
	assert.Zero(t, bus.Subscribers(discovery.TopicRequest))
}
