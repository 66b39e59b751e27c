// Package discovery finds capability providers installed on the host, first
// by a broadcast request that providers answer within a collection window,
// then by enumerating the host's component registry.
package discovery

import (
	"context"
	"fmt"
	"sync"
)

// Topics carried on the bus.
const (
	TopicRequest  = "modelcontext.discovery.request"
	TopicResponse = "modelcontext.discovery.response"
)

// Message actions.
const (
	ActionRequest  = "modelcontext.action.DISCOVER"
	ActionResponse = "modelcontext.action.DISCOVER_RESPONSE"
)

// Message is a discovery request or response. Requests may set Target to a
// single ProcessID; responses carry the answering provider's identity.
type Message struct {
	Action         string `json:"action"`
	Target         string `json:"target,omitzero"`
	ProcessID      string `json:"processId,omitzero"`
	EntryID        string `json:"entryId,omitzero"`
	CapabilityType string `json:"capabilityType,omitzero"`
	Version        string `json:"version,omitzero"`
}

// Bus is a host-wide best-effort publish/subscribe channel.
type Bus interface {
	Publish(ctx context.Context, topic string, msg Message) error
	// Subscribe registers interest in topic. The subscription ends when
	// Close is called or ctx is done.
	Subscribe(ctx context.Context, topic string) (Subscription, error)
}

// Subscription delivers messages until closed. The channel returned by C is
// closed when the subscription ends.
type Subscription interface {
	C() <-chan Message
	Close() error
}

const subscriptionBuffer = 64

// MemoryBus is an in-process Bus. Delivery never blocks the publisher: a
// subscriber whose buffer is full misses the message.
type MemoryBus struct {
	mu   sync.Mutex
	subs map[string][]*memorySubscription
}

// NewMemoryBus returns an empty bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]*memorySubscription)}
}

type memorySubscription struct {
	bus    *MemoryBus
	topic  string
	ch     chan Message
	closed bool
}

func (s *memorySubscription) C() <-chan Message {
	return s.ch
}

func (s *memorySubscription) Close() error {
	s.bus.remove(s)
	return nil
}

// Publish implements Bus.
func (b *MemoryBus) Publish(ctx context.Context, topic string, msg Message) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs[topic] {
		select {
		case sub.ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe implements Bus.
func (b *MemoryBus) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	sub := &memorySubscription{
		bus:   b,
		topic: topic,
		ch:    make(chan Message, subscriptionBuffer),
	}

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()

	context.AfterFunc(ctx, func() { b.remove(sub) })
	return sub, nil
}

// Subscribers returns the number of live subscriptions on topic.
func (b *MemoryBus) Subscribers(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[topic])
}

func (b *MemoryBus) remove(sub *memorySubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub.closed {
		return
	}
	sub.closed = true

	subs := b.subs[sub.topic]
	for i, s := range subs {
		if s == sub {
			b.subs[sub.topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subs[sub.topic]) == 0 {
		delete(b.subs, sub.topic)
	}
	close(sub.ch)
}
