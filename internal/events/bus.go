// Package events carries domain events from HTTP mutations to gateway
// sessions over an in-process broadcast bus.
package events

import (
	"log/slog"
	"sync"
)

// DefaultBuffer is the per-subscriber channel depth.
const DefaultBuffer = 1024

// Bus is a process-wide broadcast. Every subscriber gets an independent
// buffered channel. A subscriber whose buffer is full at publish time is
// dropped: its channel closes and the owning connection must resync. The
// producer never blocks.
type Bus struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	buffer int
	closed bool
}

// Subscription is one receiver on the bus. The channel closes when the
// subscriber is dropped or the bus shuts down.
type Subscription struct {
	ch chan Event
}

// Events returns the receive channel.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

func NewBus() *Bus {
	return NewBusWithBuffer(DefaultBuffer)
}

func NewBusWithBuffer(buffer int) *Bus {
	return &Bus{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
	}
}

// Subscribe registers a new receiver. Returns nil if the bus is closed.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	sub := &Subscription{ch: make(chan Event, b.buffer)}
	b.subs[sub] = struct{}{}
	return sub
}

// Unsubscribe removes and closes the subscription. Safe to call for an
// already-dropped subscription.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	close(sub.ch)
}

// Publish broadcasts the event to every live subscriber. Publishes are
// serialized so all subscribers observe the same order.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			// Full buffer: the consumer is too slow. Drop it so the
			// producer keeps moving.
			delete(b.subs, sub)
			close(sub.ch)
			slog.Warn("events: dropped slow subscriber", "type", ev.Type, "buffer", b.buffer)
		}
	}
}

// Close shuts the bus down, closing all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		delete(b.subs, sub)
		close(sub.ch)
	}
}

// SubscriberCount reports the number of live subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
