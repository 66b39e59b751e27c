// Command capprovider runs one of the bundled capability providers as a
// standalone process speaking on stdin and stdout. capd launches it from a
// manifest such as:
//
//	process: com.example.datecalculator
//	command: ["capprovider", "--provider", "date"]
//	entries:
//	  - id: DateCalculatorService
//	    actions: [modelcontext.provider]
//
// With --redis it also answers broadcast discovery requests.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/bpowers/go-modelcontext/capability"
	"github.com/bpowers/go-modelcontext/discovery"
	"github.com/bpowers/go-modelcontext/host"
	"github.com/bpowers/go-modelcontext/mcp"
	"github.com/bpowers/go-modelcontext/providers/bundled"
	"github.com/bpowers/go-modelcontext/sdkbridge"
)

type options struct {
	provider string
	protocol string
	process  string
	redis    string
	prefix   string
	files    string
	zone     string

	// bus overrides redis; set by tests
	bus discovery.Bus
}

func main() {
	// stdout carries the protocol
	logrus.SetOutput(os.Stderr)
	if os.Getenv("LOG_LEVEL") == "debug" {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if err := newRootCmd(os.Stdin, os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	opts := options{}
	cmd := &cobra.Command{
		Use:          "capprovider",
		Short:        "Serve a bundled capability provider on stdin and stdout",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, opts, in, out)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.provider, "provider", "date", fmt.Sprintf("provider to serve %v", bundled.Types()))
	f.StringVar(&opts.protocol, "protocol", host.ProtocolNative, "wire protocol: native or mcp")
	f.StringVar(&opts.process, "process", "", "process ID announced on the discovery bus (default capprovider.<provider>)")
	f.StringVar(&opts.redis, "redis", os.Getenv("CAPD_REDIS"), "Redis URL of the discovery bus to answer on")
	f.StringVar(&opts.prefix, "bus-prefix", "", "channel prefix scoping the Redis discovery bus")
	f.StringVar(&opts.files, "files", "", "directory served by the file provider (default: working directory)")
	f.StringVar(&opts.zone, "zone", "", "time zone for the time and schedule providers (default: local)")
	return cmd
}

// descriptor returns how this process identifies itself. The entry comes
// from the launching host when there is one.
func (o options) descriptor() capability.Descriptor {
	process := o.process
	if process == "" {
		process = "capprovider." + o.provider
	}
	entry := os.Getenv(host.EntryEnv)
	if entry == "" {
		entry = o.provider
	}
	return capability.Descriptor{ProcessID: process, EntryID: entry, CapabilityType: o.provider}
}

func run(ctx context.Context, opts options, in io.Reader, out io.Writer) error {
	if opts.protocol != host.ProtocolNative && opts.protocol != host.ProtocolMCP {
		return fmt.Errorf("unknown protocol %q", opts.protocol)
	}
	p, err := bundled.New(opts.provider, bundled.Options{FilesRoot: opts.files, Zone: opts.zone})
	if err != nil {
		return err
	}
	version, err := p.ServiceVersion(ctx)
	if err != nil {
		return err
	}
	desc := opts.descriptor()
	log := logrus.WithFields(logrus.Fields{
		"provider": desc.Key(),
		"protocol": opts.protocol,
	})

	bus := opts.bus
	if bus == nil && opts.redis != "" {
		rb, err := discovery.NewRedisBus(opts.redis, opts.prefix)
		if err != nil {
			return err
		}
		defer rb.Close()
		bus = rb
	}
	if bus != nil {
		responder := discovery.NewResponder(bus, desc, version)
		if err := responder.Start(ctx); err != nil {
			return err
		}
		defer responder.Stop()
		log.Debug("answering discovery requests")
	}

	log.Info("serving")
	switch opts.protocol {
	case host.ProtocolMCP:
		// the SDK transport always owns the process's own stdio
		err = sdkbridge.Serve(ctx, p, &sdk.StdioTransport{})
	default:
		var server *mcp.Server
		server, err = mcp.NewServer(p, mcp.Implementation{Name: desc.EntryID, Version: version})
		if err == nil {
			err = server.Serve(ctx, in, out)
		}
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
