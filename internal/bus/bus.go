// Package bus implements the Event Bus & Subscription Fan-out (§4.8):
// an in-process publish/subscribe transport with per-subscription
// bounded queues, seq-ordered at-least-once delivery, configurable
// backpressure policies, and head-of-queue priority for emergency
// alerts.
package bus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/metrofleet/induction/internal/clock"
	"github.com/metrofleet/induction/internal/config"
	"github.com/metrofleet/induction/internal/domain"
	"github.com/metrofleet/induction/internal/log"
	"github.com/metrofleet/induction/internal/metrics"
)

// Bus is the event transport every component publishes occurrences to
// and every Command Surface subscriber reads from.
type Bus struct {
	mu   sync.RWMutex
	seq  atomic.Uint64
	subs map[string]*Subscription // subscription id -> subscription
	clk  clock.Clock

	queueDepth    int
	defaultPolicy config.BusPolicy
	dropGrace     time.Duration
}

// New creates a Bus using cfg's queue depth and default policy.
func New(cfg config.BusConfig, clk clock.Clock) *Bus {
	if clk == nil {
		clk = clock.System{}
	}
	depth := cfg.QueueDepth
	if depth <= 0 {
		depth = 1024
	}
	policy := cfg.DefaultPolicy
	if policy == "" {
		policy = config.BusPolicyDropOldest
	}
	return &Bus{
		subs:          make(map[string]*Subscription),
		clk:           clk,
		queueDepth:    depth,
		defaultPolicy: policy,
		dropGrace:     30 * time.Second,
	}
}

// SubscribeOptions configures a new subscription.
type SubscribeOptions struct {
	Topics     []domain.Topic
	RoleFilter string // optional; empty matches every role
	Policy     config.BusPolicy
	Capacity   int
}

// Subscribe registers a new subscription and returns a handle the
// caller reads events from via Next.
func (b *Bus) Subscribe(opts SubscribeOptions) (*Subscription, error) {
	if len(opts.Topics) == 0 {
		return nil, fmt.Errorf("subscribe requires at least one topic")
	}
	policy := opts.Policy
	if policy == "" {
		policy = b.defaultPolicy
	}
	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = b.queueDepth
	}

	topics := make(map[domain.Topic]struct{}, len(opts.Topics))
	for _, t := range opts.Topics {
		topics[t] = struct{}{}
	}

	sub := newSubscription(topics, opts.RoleFilter, policy, capacity, b.dropGrace, b.clk)

	b.mu.Lock()
	b.subs[sub.id] = sub
	b.mu.Unlock()

	for t := range topics {
		metrics.SetSubscriptionsActive(string(t), b.countSubscribers(t))
	}
	return sub, nil
}

// Unsubscribe removes and closes a subscription.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()
	if ok {
		sub.close()
	}
}

// AllStats returns a Stats snapshot for every live subscription,
// letting a health checker spot queues nearing capacity without
// reaching into subscription internals.
func (b *Bus) AllStats() []Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Stats, 0, len(b.subs))
	for _, s := range b.subs {
		out = append(out, s.Stats())
	}
	return out
}

func (b *Bus) countSubscribers(topic domain.Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, s := range b.subs {
		if s.matchesTopic(topic) {
			n++
		}
	}
	return n
}

// Publish emits an event on topic to every matching subscription whose
// role filter is empty or equals role, applying each subscription's
// own backpressure policy. Emergency alerts (TopicEmergencyAlert) are
// inserted at the head of every matching queue and are never dropped.
func (b *Bus) Publish(ctx context.Context, topic domain.Topic, role string, payload any) (domain.Event, error) {
	seq := b.seq.Add(1)
	ev := domain.Event{Seq: seq, Kind: topic, Payload: payload, EmittedAt: b.clk.Now()}

	b.mu.RLock()
	targets := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if s.matches(topic, role) {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	priority := topic == domain.TopicEmergencyAlert
	logger := log.WithComponent("bus")

	var toRemove []string
	for _, s := range targets {
		closed := s.deliver(ctx, ev, priority)
		if closed {
			toRemove = append(toRemove, s.id)
			logger.Warn().Str("topic", string(topic)).Str("subscription", s.id).Msg("subscription closed after sustained backpressure")
		}
	}
	for _, id := range toRemove {
		b.Unsubscribe(id)
	}

	metrics.IncBusPublished(string(topic))
	return ev, nil
}

// Seq returns the bus's current sequence counter, for heartbeat replies.
func (b *Bus) Seq() uint64 {
	return b.seq.Load()
}
