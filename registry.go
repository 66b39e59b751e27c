// Package modelcontext is a capability registry: it discovers capability
// providers running on the local host, connects to them, and dispatches
// tool calls, resource reads and capability queries to the right one,
// preferring providers built into this process.
package modelcontext

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bpowers/go-modelcontext/capability"
	"github.com/bpowers/go-modelcontext/catalog"
	"github.com/bpowers/go-modelcontext/conn"
	"github.com/bpowers/go-modelcontext/discovery"
	"github.com/bpowers/go-modelcontext/dispatch"
	"github.com/bpowers/go-modelcontext/host"
	"github.com/bpowers/go-modelcontext/internal/logging"
	"github.com/bpowers/go-modelcontext/persistence"
)

// BuiltinProcess is the process ID of providers compiled into this process.
const BuiltinProcess = "modelcontext.builtin"

// ProcessChecker reports whether a provider process is still installed.
type ProcessChecker interface {
	Exists(processID string) bool
}

// ProcessCheckerFunc adapts a function to ProcessChecker.
type ProcessCheckerFunc func(processID string) bool

func (f ProcessCheckerFunc) Exists(processID string) bool {
	return f(processID)
}

// Option configures a Registry.
type Option func(*config)

type config struct {
	bus        discovery.Bus
	enumerator discovery.Enumerator
	checker    ProcessChecker
	cache      persistence.Cache
	dialer     conn.Dialer
	builtins   []capability.Provider
	window     time.Duration
}

// WithBus sets the bus used for the broadcast discovery phase.
func WithBus(bus discovery.Bus) Option {
	return func(c *config) {
		c.bus = bus
	}
}

// WithEnumerator sets the host component registry used for the enumeration
// phase. If it also implements ProcessChecker and no checker is given, it
// validates cached descriptors too.
func WithEnumerator(e discovery.Enumerator) Option {
	return func(c *config) {
		c.enumerator = e
	}
}

// WithProcessChecker sets how cached descriptors are validated at startup.
// Without one, every cached descriptor is admitted.
func WithProcessChecker(pc ProcessChecker) Option {
	return func(c *config) {
		c.checker = pc
	}
}

// WithCache sets where discovered descriptors are persisted. The registry
// closes it on Close. Defaults to an in-memory cache.
func WithCache(cache persistence.Cache) Option {
	return func(c *config) {
		c.cache = cache
	}
}

// WithDialer sets how connections to remote providers are opened.
func WithDialer(d conn.Dialer) Option {
	return func(c *config) {
		c.dialer = d
	}
}

// WithBuiltin registers a provider compiled into this process. It is
// preferred over any remote provider of the same type.
func WithBuiltin(p capability.Provider) Option {
	return func(c *config) {
		c.builtins = append(c.builtins, p)
	}
}

// WithCollectionWindow overrides discovery.DefaultWindow.
func WithCollectionWindow(d time.Duration) Option {
	return func(c *config) {
		c.window = d
	}
}

// Registry is the single entry point for callers. It owns the descriptor
// store and the connection manager; callers only ever hold descriptors.
type Registry struct {
	store      *catalog.Store
	conns      *conn.Manager
	builtins   *dispatch.Builtins
	dispatcher *dispatch.Dispatcher
	discoverer *discovery.Discoverer
	cache      persistence.Cache

	closeOnce sync.Once
	closeErr  error
}

// New builds a registry, reloads the persisted cache and registers the
// built-in providers.
func New(opts ...Option) (*Registry, error) {
	cfg := config{window: discovery.DefaultWindow}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.cache == nil {
		cfg.cache = persistence.NewMemoryCache()
	}
	if cfg.dialer == nil {
		cfg.dialer = conn.NewProviderDialer()
	}
	if cfg.checker == nil {
		if pc, ok := cfg.enumerator.(ProcessChecker); ok {
			cfg.checker = pc
		}
	}

	r := &Registry{
		conns:    conn.NewManager(cfg.dialer),
		builtins: dispatch.NewBuiltins(),
		cache:    cfg.cache,
	}
	r.store = catalog.New(catalog.WithRemoveHook(r.conns.Disconnect))
	r.dispatcher = dispatch.New(r.builtins, r.conns)

	discoverer, err := discovery.New(r.store,
		discovery.WithBus(cfg.bus),
		discovery.WithEnumerator(cfg.enumerator),
		discovery.WithWindow(cfg.window),
		discovery.WithSaver(r.save),
	)
	if err != nil {
		return nil, err
	}
	r.discoverer = discoverer

	ctx := context.Background()
	for _, p := range cfg.builtins {
		capType, err := p.ServiceType(ctx)
		if err != nil {
			return nil, fmt.Errorf("builtin provider: %w", err)
		}
		d := capability.Descriptor{ProcessID: BuiltinProcess, EntryID: capType, CapabilityType: capType}
		r.builtins.Register(d, p)
		r.store.AddIfAbsent(d)
	}

	if err := r.loadCache(cfg.checker); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *Registry) loadCache(checker ProcessChecker) error {
	data, ok, err := r.cache.Get(persistence.DiscoveredServicesKey)
	if err != nil {
		return fmt.Errorf("read cache: %w", err)
	}
	if !ok {
		return nil
	}
	// built-ins come from configuration only, never from the cache
	exists := func(processID string) bool {
		if processID == BuiltinProcess {
			return false
		}
		return checker == nil || checker.Exists(processID)
	}
	n := r.store.LoadFromCache(data, exists)
	logging.For("registry").Debug("cache loaded", "descriptors", n)
	return nil
}

func (r *Registry) save([]capability.Descriptor) error {
	data, err := r.store.EncodeCache()
	if err != nil {
		return err
	}
	return r.cache.Put(persistence.DiscoveredServicesKey, data)
}

// Discover runs a full discovery in the background and passes the store's
// contents to callback exactly once when it finishes. Concurrent calls each
// run their own cycle.
func (r *Registry) Discover(ctx context.Context, callback func([]capability.Descriptor)) {
	go func() {
		descriptors, err := r.discoverer.Run(ctx)
		if err != nil {
			logging.For("registry").Debug("discovery interrupted", "error", err)
		}
		if callback != nil {
			callback(descriptors)
		}
	}()
}

// DiscoverNow runs a full discovery and waits for it.
func (r *Registry) DiscoverNow(ctx context.Context) ([]capability.Descriptor, error) {
	return r.discoverer.Run(ctx)
}

// ProvidersByType returns the known descriptors of capType in the order they
// were found.
func (r *Registry) ProvidersByType(capType string) []capability.Descriptor {
	return r.store.ByType(capType)
}

// Providers returns every known descriptor.
func (r *Registry) Providers() []capability.Descriptor {
	return r.store.Snapshot()
}

func (r *Registry) isBuiltin(d capability.Descriptor) bool {
	for _, b := range r.builtins.Descriptors() {
		if b.SameIdentity(d) {
			return true
		}
	}
	return false
}

// Connect starts connecting to d. It reports whether d is connected or an
// attempt is under way; the connection becomes usable asynchronously.
// Built-in providers are always connected.
func (r *Registry) Connect(d capability.Descriptor) bool {
	if r.isBuiltin(d) {
		return true
	}
	return r.conns.Connect(d)
}

// Disconnect drops the connection to d, if any. Built-ins are unaffected.
func (r *Registry) Disconnect(d capability.Descriptor) {
	if r.isBuiltin(d) {
		return
	}
	r.conns.Disconnect(d)
}

// ConnectionState reports the state of the connection to d.
func (r *Registry) ConnectionState(d capability.Descriptor) conn.State {
	if r.isBuiltin(d) {
		return conn.Connected
	}
	return r.conns.State(d)
}

// IsConnected reports whether any built-in or connected provider answers
// for capType.
func (r *Registry) IsConnected(capType string) bool {
	return r.dispatcher.IsAvailable(capType)
}

// Version returns the version of the provider answering for capType, or
// dispatch.UnknownVersion.
func (r *Registry) Version(ctx context.Context, capType string) string {
	return r.dispatcher.Version(ctx, capType)
}

// Calculate relays the single-value call to the provider of capType.
func (r *Registry) Calculate(ctx context.Context, capType, value string) string {
	return r.dispatcher.Calculate(ctx, capType, value)
}

// ListTools returns the tools of the provider of capType, or an empty list.
func (r *Registry) ListTools(ctx context.Context, capType string) []capability.Tool {
	return r.dispatcher.ListTools(ctx, capType)
}

// CallTool invokes a tool on the provider of capType. Failures come back
// as error content, never as a Go error.
func (r *Registry) CallTool(ctx context.Context, capType, name, jsonArgs string) []capability.Content {
	return r.dispatcher.CallTool(ctx, capType, name, jsonArgs)
}

// ListResources returns the resources of the provider of capType, or an
// empty list.
func (r *Registry) ListResources(ctx context.Context, capType string) []capability.Resource {
	return r.dispatcher.ListResources(ctx, capType)
}

// ReadResource reads uri from the provider of capType. Failures come back
// as error content.
func (r *Registry) ReadResource(ctx context.Context, capType, uri string) []capability.Content {
	return r.dispatcher.ReadResource(ctx, capType, uri)
}

// HasCapability reports whether the provider of capType supports the named
// capability. An unreachable provider supports nothing.
func (r *Registry) HasCapability(ctx context.Context, capType, name string) bool {
	return r.dispatcher.HasCapability(ctx, capType, name)
}

// HandleProcessEvent reacts to a change in the installed provider set. An
// install or update probes the process and then runs a full discovery; a
// removal prunes its descriptors, closes their connections and rewrites the
// cache.
func (r *Registry) HandleProcessEvent(ctx context.Context, ev host.Event) {
	log := logging.For("registry")

	switch ev.Kind {
	case host.Installed, host.Updated:
		added := r.discoverer.Probe(ctx, ev.ProcessID)
		log.Info("provider process changed", "process", ev.ProcessID, "kind", ev.Kind.String(), "probed", len(added))
		if _, err := r.discoverer.Run(ctx); err != nil {
			log.Debug("discovery interrupted", "error", err)
		}
	case host.Removed:
		removed := r.store.RemoveWhere(func(d capability.Descriptor) bool {
			return d.ProcessID == ev.ProcessID
		})
		log.Info("provider process removed", "process", ev.ProcessID, "descriptors", len(removed))
		if err := r.save(nil); err != nil {
			log.Warn("failed to persist discovered providers", "error", err)
		}
	}
}

// WatchProcesses handles events until ctx ends or events is closed.
func (r *Registry) WatchProcesses(ctx context.Context, events <-chan host.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			r.HandleProcessEvent(ctx, ev)
		}
	}
}

// Close disconnects every remote provider and closes the cache.
func (r *Registry) Close() error {
	r.closeOnce.Do(func() {
		r.conns.DisconnectAll()
		r.closeErr = r.cache.Close()
	})
	return r.closeErr
}
