package events

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// subscriberBuffer is how many undelivered events a subscriber may lag
// behind before further events are dropped for it. Publishers never block.
const subscriberBuffer = 16

// Bus is an in-memory publish-subscribe hub for engine events. Each
// subscriber receives events of its kind in publication order on a
// dedicated goroutine, so a slow callback delays only its own
// subscription.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]*subscriber
	logger *slog.Logger
	closed bool
}

type subscriber struct {
	id   uuid.UUID
	kind Kind
	ch   chan Event
	done chan struct{}
}

// NewBus creates a new event bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		subs:   make(map[uuid.UUID]*subscriber),
		logger: logger.With("component", "event_bus"),
	}
}

// Subscription is the handle returned by the subscribe methods.
// Unsubscribe releases it; calling Unsubscribe more than once is safe.
type Subscription struct {
	bus  *Bus
	id   uuid.UUID
	once sync.Once
}

// Unsubscribe removes the subscription from the bus and stops its
// delivery goroutine. Events already buffered are discarded.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.remove(s.id)
	})
}

// SubscribeTaskUpdated registers fn for task lifecycle events.
func (b *Bus) SubscribeTaskUpdated(fn func(TaskUpdatedEvent)) *Subscription {
	return b.subscribe(KindTaskUpdated, func(ev Event) {
		if e, ok := ev.(TaskUpdatedEvent); ok {
			fn(e)
		}
	})
}

// SubscribeNetworkChanged registers fn for connectivity transitions.
func (b *Bus) SubscribeNetworkChanged(fn func(NetworkChangedEvent)) *Subscription {
	return b.subscribe(KindNetworkChanged, func(ev Event) {
		if e, ok := ev.(NetworkChangedEvent); ok {
			fn(e)
		}
	})
}

// SubscribeSyncStatusChanged registers fn for sync state transitions.
func (b *Bus) SubscribeSyncStatusChanged(fn func(SyncStatusChangedEvent)) *Subscription {
	return b.subscribe(KindSyncStatusChanged, func(ev Event) {
		if e, ok := ev.(SyncStatusChangedEvent); ok {
			fn(e)
		}
	})
}

func (b *Bus) subscribe(kind Kind, fn func(Event)) *Subscription {
	sub := &subscriber{
		id:   uuid.New(),
		kind: kind,
		ch:   make(chan Event, subscriberBuffer),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		// Inert handle: nothing registered, nothing to release.
		return &Subscription{bus: b, id: sub.id}
	}
	b.subs[sub.id] = sub
	count := len(b.subs)
	b.mu.Unlock()

	go sub.run(fn)

	b.logger.Debug("subscriber added",
		"kind", kind,
		"subscriber_count", count)

	return &Subscription{bus: b, id: sub.id}
}

// run delivers buffered events to fn until the subscription is released.
// The done channel is checked first so an unsubscribed callback stops
// promptly even with events still buffered.
func (s *subscriber) run(fn func(Event)) {
	for {
		select {
		case <-s.done:
			return
		default:
		}

		select {
		case ev := <-s.ch:
			fn(ev)
		case <-s.done:
			return
		}
	}
}

// Publish delivers the event to every subscriber of its kind without
// blocking. A subscriber that has fallen subscriberBuffer events behind
// misses this event; the drop is logged and delivery to others proceeds.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	matching := make([]*subscriber, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.kind == event.Kind() {
			matching = append(matching, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range matching {
		select {
		case sub.ch <- event:
		default:
			b.logger.Warn("subscriber lagging, dropping event",
				"kind", event.Kind(),
				"subscriber_id", sub.id)
		}
	}
}

// Close tears down the bus and stops all delivery goroutines. Later
// publishes are no-ops and later subscriptions are inert.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, sub := range b.subs {
		close(sub.done)
	}
	b.subs = make(map[uuid.UUID]*subscriber)
}

func (b *Bus) remove(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	close(sub.done)

	b.logger.Debug("subscriber removed",
		"subscriber_count", len(b.subs))
}
