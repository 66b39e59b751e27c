package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	modelcontext "github.com/bpowers/go-modelcontext"
	"github.com/bpowers/go-modelcontext/capability"
	"github.com/bpowers/go-modelcontext/discovery"
	"github.com/bpowers/go-modelcontext/host"
	"github.com/bpowers/go-modelcontext/httpapi"
	"github.com/bpowers/go-modelcontext/persistence/sqlitestore"
	"github.com/bpowers/go-modelcontext/providers/bundled"
)

const shutdownGrace = 5 * time.Second

type serveOptions struct {
	manifests string
	cache     string
	redis     string
	prefix    string
	window    time.Duration
	listen    string
	builtins  []string
	files     string
	zone      string
}

func newRootCmd() *cobra.Command {
	opts := serveOptions{}
	cmd := &cobra.Command{
		Use:   "capd",
		Short: "Discover capability providers on this host and serve them over HTTP",
		Long: "capd discovers capability providers declared in manifest files or answering on a discovery bus, " +
			"keeps their descriptors in a persistent cache and dispatches tool calls and resource reads to them.",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.manifests, "manifests", os.Getenv("CAPD_MANIFESTS"), "directory of provider manifests to enumerate and watch")
	f.StringVar(&opts.cache, "cache", os.Getenv("CAPD_CACHE"), "SQLite database persisting discovered providers (in-memory if empty)")
	f.StringVar(&opts.redis, "redis", os.Getenv("CAPD_REDIS"), "Redis URL of the discovery bus (in-process bus if empty)")
	f.StringVar(&opts.prefix, "bus-prefix", "", "channel prefix scoping the Redis discovery bus")
	f.DurationVar(&opts.window, "window", discovery.DefaultWindow, "how long broadcast discovery waits for answers")
	f.StringVar(&opts.listen, "listen", "127.0.0.1:8765", "HTTP listen address")
	f.StringSliceVar(&opts.builtins, "builtin", []string{"date", "time"}, fmt.Sprintf("built-in providers to register %v", bundled.Types()))
	f.StringVar(&opts.files, "files", "", "directory served by a built-in file provider (default: working directory)")
	f.StringVar(&opts.zone, "zone", "", "time zone for the time and schedule providers (default: local)")

	cmd.AddCommand(newCacheCmd())
	return cmd
}

// daemon is everything runServe owns.
type daemon struct {
	reg     *modelcontext.Registry
	watcher *host.Watcher
	closers []func() error
}

func (d *daemon) Close() error {
	return errors.Join(d.reg.Close(), d.closeAll())
}

func (d *daemon) closeAll() error {
	var err error
	for _, c := range d.closers {
		err = errors.Join(err, c())
	}
	return err
}

func newDaemon(opts serveOptions) (*daemon, error) {
	d := &daemon{}
	regOpts := []modelcontext.Option{modelcontext.WithCollectionWindow(opts.window)}

	for _, capType := range opts.builtins {
		p, err := bundled.New(capType, bundled.Options{FilesRoot: opts.files, Zone: opts.zone})
		if err != nil {
			return nil, err
		}
		regOpts = append(regOpts, modelcontext.WithBuiltin(p))
	}

	var bus discovery.Bus = discovery.NewMemoryBus()
	if opts.redis != "" {
		rb, err := discovery.NewRedisBus(opts.redis, opts.prefix)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, rb.Close)
		bus = rb
	}
	regOpts = append(regOpts, modelcontext.WithBus(bus))

	if opts.manifests != "" {
		hostReg := host.NewRegistry(os.DirFS(opts.manifests))
		if _, err := hostReg.Load(); err != nil {
			d.closeAll()
			return nil, fmt.Errorf("load manifests: %w", err)
		}
		regOpts = append(regOpts,
			modelcontext.WithEnumerator(hostReg),
			modelcontext.WithDialer(host.NewProcessDialer(hostReg)),
		)
		d.watcher = host.NewWatcher(opts.manifests, hostReg)
	}

	// the registry owns the cache once New succeeds
	var store *sqlitestore.SQLiteStore
	if opts.cache != "" {
		var err error
		if store, err = sqlitestore.New(opts.cache); err != nil {
			d.closeAll()
			return nil, fmt.Errorf("open cache: %w", err)
		}
		regOpts = append(regOpts, modelcontext.WithCache(store))
	}

	reg, err := modelcontext.New(regOpts...)
	if err != nil {
		if store != nil {
			store.Close()
		}
		d.closeAll()
		return nil, err
	}
	d.reg = reg
	return d, nil
}

// start watches the manifest directory, if any, and kicks off the first
// discovery.
func (d *daemon) start(ctx context.Context) error {
	log := logrus.WithField("component", "capd")

	if d.watcher != nil {
		events, err := d.watcher.Watch(ctx)
		if err != nil {
			return err
		}
		go d.reg.WatchProcesses(ctx, events)
	}

	d.reg.Discover(ctx, func(ds []capability.Descriptor) {
		log.WithField("providers", len(ds)).Info("discovery finished")
		for _, desc := range ds {
			if d.reg.Connect(desc) {
				continue
			}
			log.WithField("provider", desc.Key()).Warn("could not start connection")
		}
	})
	return nil
}

func runServe(ctx context.Context, opts serveOptions) error {
	log := logrus.WithField("component", "capd")
	if !logrus.IsLevelEnabled(logrus.DebugLevel) {
		gin.SetMode(gin.ReleaseMode)
	}

	d, err := newDaemon(opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := d.Close(); err != nil {
			log.WithError(err).Warn("shutdown")
		}
	}()

	if err := d.start(ctx); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", opts.listen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	srv := &http.Server{Handler: httpapi.NewRouter(d.reg), ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.WithFields(logrus.Fields{
		"addr":      ln.Addr().String(),
		"builtins":  opts.builtins,
		"manifests": opts.manifests,
	}).Info("serving capability registry")

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
