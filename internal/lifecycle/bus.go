package lifecycle

import (
	"context"
	"sort"
	"sync"
)

// Event is a message delivered to bus subscribers.
type Event struct {
	Topic string
	Data  any
}

// Handler receives events. Handlers run synchronously on the publisher's
// goroutine.
type Handler func(ctx context.Context, ev Event)

// Bus is a topic based publish/subscribe registry.
type Bus struct {
	name string
	mu   sync.RWMutex
	next uint64
	subs map[string]map[uint64]Handler
}

func NewBus(name string) *Bus {
	return &Bus{name: name, subs: make(map[string]map[uint64]Handler)}
}

// Name identifies the bus in logs.
func (b *Bus) Name() string { return b.name }

// Subscribe registers h for topic until the subscription is cancelled.
func (b *Bus) Subscribe(topic string, h Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[uint64]Handler)
	}
	b.subs[topic][b.next] = h
	return &Subscription{bus: b, topic: topic, id: b.next}
}

// Publish delivers data to every subscriber of topic in subscription order
// and returns how many handlers ran.
func (b *Bus) Publish(ctx context.Context, topic string, data any) int {
	b.mu.RLock()
	ids := make([]uint64, 0, len(b.subs[topic]))
	for id := range b.subs[topic] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	handlers := make([]Handler, len(ids))
	for i, id := range ids {
		handlers[i] = b.subs[topic][id]
	}
	b.mu.RUnlock()

	ev := Event{Topic: topic, Data: data}
	for _, h := range handlers {
		h(ctx, ev)
	}
	return len(handlers)
}

// Count returns the number of live subscriptions for topic.
func (b *Bus) Count(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

// Total returns the number of live subscriptions across all topics.
func (b *Bus) Total() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, s := range b.subs {
		n += len(s)
	}
	return n
}

// Clear drops every subscription.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[string]map[uint64]Handler)
}

func (b *Bus) remove(topic string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs[topic], id)
	if len(b.subs[topic]) == 0 {
		delete(b.subs, topic)
	}
}

// Subscription is a handle to one registered handler.
type Subscription struct {
	bus   *Bus
	topic string
	id    uint64
	once  sync.Once
}

// Cancel unregisters the handler. It is safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() { s.bus.remove(s.topic, s.id) })
}

// Close implements io.Closer.
func (s *Subscription) Close() error {
	s.Cancel()
	return nil
}
