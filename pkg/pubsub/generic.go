package pubsub

import (
	"sync"
)

// PubSub fans values out to per-topic subscribers. Subscriber channels
// are bounded; when one lags, its oldest buffered value is evicted so
// a publisher never blocks on a slow consumer.
type PubSub[T any] struct {
	mu      sync.Mutex
	subs    map[string][]chan T
	dropped uint64
}

func NewPubSub[T any]() *PubSub[T] {
	return &PubSub[T]{
		subs: make(map[string][]chan T),
	}
}

// Subscribe registers a subscriber with the given buffer capacity.
// Capacity 1 gives latest-wins semantics.
func (ps *PubSub[T]) Subscribe(topic string, capacity int) <-chan T {
	if capacity < 1 {
		capacity = 1
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ch := make(chan T, capacity)
	ps.subs[topic] = append(ps.subs[topic], ch)
	return ch
}

// Unsubscribe removes the subscriber and closes its channel.
func (ps *PubSub[T]) Unsubscribe(topic string, ch <-chan T) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	subs := ps.subs[topic]
	for i, c := range subs {
		if c == ch {
			ps.subs[topic] = append(subs[:i], subs[i+1:]...)
			close(c)
			return
		}
	}
}

func (ps *PubSub[T]) Publish(topic string, data T) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	for _, ch := range ps.subs[topic] {
		select {
		case ch <- data:
			continue
		default:
		}
		// full subscriber: evict the oldest value, then retry once
		select {
		case <-ch:
			ps.dropped++
		default:
		}
		select {
		case ch <- data:
		default:
			ps.dropped++
		}
	}
}

// Dropped returns how many values were evicted from lagging subscribers.
func (ps *PubSub[T]) Dropped() uint64 {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.dropped
}

// Close closes every subscriber channel and forgets all topics.
func (ps *PubSub[T]) Close() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	for topic, subs := range ps.subs {
		for _, ch := range subs {
			close(ch)
		}
		delete(ps.subs, topic)
	}
}
