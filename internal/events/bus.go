package events

import (
	"sync"
	"sync/atomic"
)

// Bus fans execution lifecycle notifications out to in-process
// listeners. Delivery is best-effort: a listener that falls behind its
// buffer misses payloads rather than stalling the execution path.
type Bus struct {
	mu        sync.RWMutex
	listeners map[Event][]chan any
}

func NewBus() *Bus {
	return &Bus{listeners: make(map[Event][]chan any)}
}

// Subscribe adds a listener for one event topic. The returned cancel
// func closes the channel and is safe to call more than once.
func (b *Bus) Subscribe(e Event, buffer int) (<-chan any, func()) {
	ch := make(chan any, buffer)

	b.mu.Lock()
	b.listeners[e] = append(b.listeners[e], ch)
	b.mu.Unlock()

	var once atomic.Bool
	cancel := func() {
		if !once.CompareAndSwap(false, true) {
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, c := range b.listeners[e] {
			if c == ch {
				b.listeners[e] = append(b.listeners[e][:i], b.listeners[e][i+1:]...)
				close(c)
				return
			}
		}
	}
	return ch, cancel
}

// Publish hands the payload to every listener of the topic without
// blocking the caller. Full listener buffers drop the payload.
func (b *Bus) Publish(e Event, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.listeners[e] {
		select {
		case ch <- payload:
		default:
		}
	}
}
