// Package eventbus is a non-blocking fanout for in-process events.
// Publishers never wait on consumers: each subscriber has a bounded
// backlog and falls behind by losing events, so a stalled stream
// client cannot stall the control plane.
package eventbus

import "sync"

// defaultBacklog is the per-subscriber channel capacity. A consumer
// this far behind starts missing events instead of blocking
// publishers.
const defaultBacklog = 256

// Bus fans published events out to all current subscribers.
type Bus[T any] struct {
	mu     sync.Mutex
	subs   map[int]chan T
	nextID int
}

// New creates an empty bus.
func New[T any]() *Bus[T] {
	return &Bus[T]{subs: make(map[int]chan T)}
}

// Publish delivers ev to every subscriber whose backlog has room and
// returns immediately.
func (b *Bus[T]) Publish(ev T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe registers a consumer and returns its channel plus a cancel
// that unregisters it and closes the channel. Cancel is idempotent.
func (b *Bus[T]) Subscribe() (<-chan T, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan T, defaultBacklog)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
	return ch, cancel
}
