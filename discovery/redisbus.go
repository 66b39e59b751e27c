package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/bpowers/go-modelcontext/internal/logging"
)

// RedisBus carries discovery traffic over Redis PUBLISH/SUBSCRIBE so that
// providers in other processes can answer. Channels are namespaced by prefix,
// which scopes discovery to one host.
type RedisBus struct {
	client *redis.Client
	prefix string
}

// NewRedisBus connects to the Redis server named by url
// (e.g. "redis://localhost:6379/0").
func NewRedisBus(url, prefix string) (*RedisBus, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis bus: %w", err)
	}
	return NewRedisBusFromClient(redis.NewClient(opt), prefix), nil
}

// NewRedisBusFromClient wraps an existing client.
func NewRedisBusFromClient(client *redis.Client, prefix string) *RedisBus {
	return &RedisBus{client: client, prefix: prefix}
}

func (b *RedisBus) channel(topic string) string {
	if b.prefix == "" {
		return topic
	}
	return b.prefix + ":" + topic
}

// Publish implements Bus.
func (b *RedisBus) Publish(ctx context.Context, topic string, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	if err := b.client.Publish(ctx, b.channel(topic), data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe implements Bus. It returns once the server has confirmed the
// subscription, so a request published afterwards is guaranteed to be seen.
func (b *RedisBus) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	ps := b.client.Subscribe(ctx, b.channel(topic))
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	sub := &redisSubscription{
		ps:   ps,
		ch:   make(chan Message, subscriptionBuffer),
		done: make(chan struct{}),
	}
	go sub.pump(topic)
	context.AfterFunc(ctx, func() { sub.Close() })
	return sub, nil
}

// Close releases the underlying client.
func (b *RedisBus) Close() error {
	return b.client.Close()
}

type redisSubscription struct {
	ps        *redis.PubSub
	ch        chan Message
	done      chan struct{}
	closeOnce sync.Once
}

func (s *redisSubscription) C() <-chan Message {
	return s.ch
}

func (s *redisSubscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}

func (s *redisSubscription) pump(topic string) {
	defer close(s.ch)
	log := logging.For("discovery")

	msgs := s.ps.Channel()
	for {
		select {
		case <-s.done:
			return
		case raw, ok := <-msgs:
			if !ok {
				return
			}
			var msg Message
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				log.Warn("dropping undecodable bus message", "topic", topic, "error", err)
				continue
			}
			select {
			case s.ch <- msg:
			default:
				log.Debug("subscriber buffer full, dropping message", "topic", topic)
			}
		}
	}
}
