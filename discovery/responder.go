package discovery

import (
	"context"
	"fmt"
	"sync"

	"github.com/bpowers/go-modelcontext/capability"
	"github.com/bpowers/go-modelcontext/internal/logging"
)

// Responder is the provider side of the broadcast phase: it answers every
// discovery request that is untargeted or targeted at its process.
type Responder struct {
	bus     Bus
	desc    capability.Descriptor
	version string

	mu   sync.Mutex
	sub  Subscription
	done chan struct{}
}

// NewResponder returns a responder announcing d.
func NewResponder(bus Bus, d capability.Descriptor, version string) *Responder {
	return &Responder{bus: bus, desc: d, version: version}
}

// Start subscribes to discovery requests and answers them in the background
// until Stop is called or ctx is done. Requests published after Start returns
// are guaranteed to be seen.
func (r *Responder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sub != nil {
		return fmt.Errorf("responder for %s already started", r.desc.Key())
	}

	sub, err := r.bus.Subscribe(ctx, TopicRequest)
	if err != nil {
		return fmt.Errorf("responder: %w", err)
	}
	r.sub = sub
	r.done = make(chan struct{})
	go r.loop(ctx, sub, r.done)
	return nil
}

// Stop ends the subscription and waits for the answer loop to exit.
func (r *Responder) Stop() {
	r.mu.Lock()
	sub, done := r.sub, r.done
	r.sub = nil
	r.mu.Unlock()

	if sub == nil {
		return
	}
	sub.Close()
	<-done
}

func (r *Responder) loop(ctx context.Context, sub Subscription, done chan struct{}) {
	defer close(done)
	log := logging.For("discovery")

	for msg := range sub.C() {
		if msg.Action != ActionRequest {
			continue
		}
		if msg.Target != "" && msg.Target != r.desc.ProcessID {
			continue
		}
		reply := Message{
			Action:         ActionResponse,
			ProcessID:      r.desc.ProcessID,
			EntryID:        r.desc.EntryID,
			CapabilityType: r.desc.CapabilityType,
			Version:        r.version,
		}
		if err := r.bus.Publish(ctx, TopicResponse, reply); err != nil {
			log.Warn("discovery reply failed", "provider", r.desc.Key(), "error", err)
		}
	}
}
