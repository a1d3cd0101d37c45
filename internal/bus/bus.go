package bus

import (
	"sync"
	"sync/atomic"
)

// Bus is an in-process publish/subscribe event bus. Subscribers register a
// topic prefix ("conversation.", "playback.", or "" for everything) and
// receive matching events on a buffered channel. Delivery is non-blocking:
// a slow subscriber loses events rather than stalling the publisher.
type Bus struct {
	mu      sync.RWMutex
	subs    map[int]*subscriber
	nextID  int
	dropped atomic.Int64
}

type subscriber struct {
	prefix string
	ch     chan Event
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[int]*subscriber)}
}

// Publish delivers evt to every subscriber whose prefix matches evt.Kind.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if !matches(evt.Kind, sub.prefix) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribe registers interest in events whose kind starts with prefix.
// Returns the receive channel and an unsubscribe function. Unsubscribing
// does not close the channel; pending events remain readable.
func (b *Bus) Subscribe(prefix string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = &subscriber{prefix: prefix, ch: ch}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Dropped reports how many events were discarded because a subscriber
// channel was full. Used by the daemon status endpoint.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

func matches(kind, prefix string) bool {
	if len(prefix) > len(kind) {
		return false
	}
	return kind[:len(prefix)] == prefix
}
