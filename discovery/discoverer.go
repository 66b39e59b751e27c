package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/bpowers/go-modelcontext/capability"
	"github.com/bpowers/go-modelcontext/catalog"
	"github.com/bpowers/go-modelcontext/internal/logging"
)

// DefaultWindow is how long the broadcast phase waits for answers.
const DefaultWindow = 2 * time.Second

// Saver persists the full set of known descriptors after a run.
type Saver func(ds []capability.Descriptor) error

// Option configures a Discoverer.
type Option func(*Discoverer)

// WithBus sets the broadcast bus. Without one the broadcast phase is skipped.
func WithBus(bus Bus) Option {
	return func(d *Discoverer) {
		d.bus = bus
	}
}

// WithEnumerator sets the host component registry consulted in the second
// phase. Without one that phase is skipped.
func WithEnumerator(e Enumerator) Option {
	return func(d *Discoverer) {
		d.enumerator = e
	}
}

// WithWindow overrides DefaultWindow.
func WithWindow(window time.Duration) Option {
	return func(d *Discoverer) {
		if window > 0 {
			d.window = window
		}
	}
}

// WithSaver sets the callback that persists the store after each run.
func WithSaver(fn Saver) Option {
	return func(d *Discoverer) {
		d.save = fn
	}
}

// Discoverer runs the two discovery phases and merges results into a store.
// Concurrent runs are permitted; they merge into the same store.
type Discoverer struct {
	store      *catalog.Store
	bus        Bus
	enumerator Enumerator
	window     time.Duration
	save       Saver
}

// New returns a Discoverer merging into store.
func New(store *catalog.Store, opts ...Option) (*Discoverer, error) {
	if store == nil {
		return nil, fmt.Errorf("new discoverer: store is required")
	}
	d := &Discoverer{
		store:  store,
		window: DefaultWindow,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d, nil
}

// Window returns the configured collection window.
func (d *Discoverer) Window() time.Duration {
	return d.window
}

// Run performs a full discovery: broadcast and collect for the window, then
// enumerate the host registry, then persist. It returns every descriptor
// known to the store, including ones found by earlier runs. Failures of
// individual phases are logged; only cancellation of ctx is returned.
func (d *Discoverer) Run(ctx context.Context) ([]capability.Descriptor, error) {
	log := logging.For("discovery")

	found := d.collect(ctx, "")
	if err := ctx.Err(); err != nil {
		return d.store.Snapshot(), err
	}

	if d.enumerator != nil {
		components, err := d.enumerator.Enumerate(ctx)
		if err != nil {
			log.Warn("component enumeration failed", "error", err)
		}
		for _, c := range components {
			if !c.IsProvider() {
				continue
			}
			desc := c.Descriptor()
			if d.store.AddIfAbsent(desc) {
				log.Info("enumerated provider", "descriptor", desc.String())
				found++
			}
		}
	}

	snapshot := d.store.Snapshot()
	if d.save != nil {
		if err := d.save(snapshot); err != nil {
			log.Warn("failed to persist discovered providers", "error", err)
		}
	}
	log.Debug("discovery finished", "new", found, "total", len(snapshot))
	return snapshot, nil
}

// Probe broadcasts a request targeted at one process and collects its
// answers for the window. It returns the descriptors newly added.
func (d *Discoverer) Probe(ctx context.Context, processID string) []capability.Descriptor {
	before := d.store.Len()
	d.collect(ctx, processID)
	if d.store.Len() == before {
		return nil
	}
	var added []capability.Descriptor
	for _, desc := range d.store.Snapshot() {
		if desc.ProcessID == processID {
			added = append(added, desc)
		}
	}
	return added
}

// collect runs the broadcast phase, returning how many descriptors were added.
func (d *Discoverer) collect(ctx context.Context, target string) int {
	if d.bus == nil {
		return 0
	}
	log := logging.For("discovery")

	windowCtx, cancel := context.WithTimeout(ctx, d.window)
	defer cancel()

	sub, err := d.bus.Subscribe(windowCtx, TopicResponse)
	if err != nil {
		log.Warn("discovery subscribe failed", "error", err)
		return 0
	}
	defer sub.Close()

	req := Message{Action: ActionRequest, Target: target}
	if err := d.bus.Publish(windowCtx, TopicRequest, req); err != nil {
		log.Warn("discovery broadcast failed", "error", err)
		return 0
	}

	added := 0
	// the subscription channel closes when the window elapses
	for msg := range sub.C() {
		desc, ok := descriptorFromResponse(msg)
		if !ok {
			continue
		}
		if target != "" && desc.ProcessID != target {
			continue
		}
		if d.store.AddIfAbsent(desc) {
			log.Info("discovered provider", "descriptor", desc.String(), "version", msg.Version)
			added++
		}
	}
	return added
}

func descriptorFromResponse(msg Message) (capability.Descriptor, bool) {
	if msg.Action != ActionResponse || msg.ProcessID == "" || msg.EntryID == "" {
		return capability.Descriptor{}, false
	}
	typ := msg.CapabilityType
	if typ == "" {
		typ = capability.UnknownType
	}
	return capability.Descriptor{ProcessID: msg.ProcessID, EntryID: msg.EntryID, CapabilityType: typ}, true
}
