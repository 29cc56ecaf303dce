// Package events is the typed publish/subscribe bridge between the host
// chat application and Loreline. The host emits message and conversation
// events; the trigger engine and macro cache subscribe to them.
package events

import (
	"log"
	"sync"
)

// Event is one host chat event. Exactly one field set is meaningful per
// Kind.
type Event struct {
	Kind   Kind
	Index  int    // Floor index for message events (1-based)
	ChatID string // Conversation id for all events
}

// Kind discriminates host event variants.
type Kind string

const (
	// MessageSent fires after the user's message lands in the history.
	MessageSent Kind = "message_sent"

	// MessageReceived fires after a model reply lands in the history.
	MessageReceived Kind = "message_received"

	// ChatChanged fires when the host switches conversations. It resets
	// caches, never counters.
	ChatChanged Kind = "chat_changed"
)

// Listener receives published events. Listeners run synchronously on the
// publishing goroutine.
type Listener func(Event)

// Bus is a typed pub/sub hub. One listener panicking never prevents the
// others from running.
type Bus struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[int]Listener
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{listeners: make(map[int]Listener)}
}

// Subscribe registers a listener and returns an unsubscribe handle.
func (b *Bus) Subscribe(fn Listener) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}
}

// Publish delivers an event to every listener in subscription order of the
// underlying map (unordered). Panics are contained per listener.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	listeners := make([]Listener, 0, len(b.listeners))
	for _, fn := range b.listeners {
		listeners = append(listeners, fn)
	}
	b.mu.RUnlock()

	for _, fn := range listeners {
		safeCall(fn, evt)
	}
}

func safeCall(fn Listener, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("events: listener panicked on %s: %v", evt.Kind, r)
		}
	}()
	fn(evt)
}
