package events

import (
	"log/slog"
	"sync"
)

// subscriberBuffer bounds the per-subscriber channel. A slow subscriber
// drops events rather than stalling the publisher; this mirrors the
// watcher's own backpressure policy.
const subscriberBuffer = 64

// Bus fans an Event out to in-process subscribers. A Bus has no network
// surface of its own; the WebSocket bridge subscribes to it like any
// other consumer.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	logger *slog.Logger

	dropped map[int]int64
}

// NewBus creates an empty Bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}

	return &Bus{
		subs:    make(map[int]chan Event),
		dropped: make(map[int]int64),
		logger:  logger,
	}
}

// Subscribe registers a new listener, returning the channel to receive on
// and an unsubscribe function. The channel is closed by Unsubscribe.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch

	return ch, func() { b.unsubscribe(id) }
}

func (b *Bus) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		delete(b.dropped, id)
		close(ch)
	}
}

// Publish fans ev out to every current subscriber, non-blocking. A
// subscriber whose buffer is full has the event dropped and a warning
// logged; the publisher never blocks on a slow listener.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped[id]++
			b.logger.Warn("events: subscriber buffer full, dropping event",
				"subscriber", id, "type", ev.Type, "totalDropped", b.dropped[id])
		}
	}
}

// SubscriberCount returns the number of currently registered subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.subs)
}
