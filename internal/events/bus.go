package events

import (
	"sync"
	"sync/atomic"
)

// Bus is a lightweight pub/sub broker using channels.
type Bus struct {
	mu      sync.RWMutex
	subs    map[Event][]chan Envelope
	dropped atomic.Int64
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Event][]chan Envelope)}
}

// Subscribe registers one channel for every topic in topics and returns it
// with an unsubscribe function. The channel is closed on unsubscribe.
func (b *Bus) Subscribe(topics []Event, buffer int) (<-chan Envelope, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Envelope, buffer)
	for _, e := range topics {
		b.subs[e] = append(b.subs[e], ch)
	}

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for _, e := range topics {
				subs := b.subs[e]
				for i, c := range subs {
					if c == ch {
						b.subs[e] = append(subs[:i], subs[i+1:]...)
						break
					}
				}
			}
			close(ch)
		})
	}

	return ch, unsub
}

// Publish fans the payload out without blocking; slow subscribers lose events.
func (b *Bus) Publish(e Event, sessionID string, payload any) {
	env := Envelope{Type: e, SessionID: sessionID, Data: payload}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[e] {
		select {
		case ch <- env:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped counts envelopes discarded because a subscriber was full.
func (b *Bus) Dropped() int64 { return b.dropped.Load() }
