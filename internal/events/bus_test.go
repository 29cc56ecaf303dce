package events

import "testing"

func TestPublishDeliversToAllListeners(t *testing.T) {
	bus := NewBus()

	var a, b []Event
	bus.Subscribe(func(evt Event) { a = append(a, evt) })
	bus.Subscribe(func(evt Event) { b = append(b, evt) })

	bus.Publish(Event{Kind: MessageSent, ChatID: "c1", Index: 3})
	bus.Publish(Event{Kind: ChatChanged, ChatID: "c2"})

	if len(a) != 2 || len(b) != 2 {
		t.Fatalf("listeners received %d and %d events, want 2 each", len(a), len(b))
	}
	if a[0].Kind != MessageSent || a[0].Index != 3 || a[0].ChatID != "c1" {
		t.Errorf("unexpected first event: %+v", a[0])
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()

	count := 0
	unsubscribe := bus.Subscribe(func(Event) { count++ })

	bus.Publish(Event{Kind: MessageSent})
	unsubscribe()
	bus.Publish(Event{Kind: MessageSent})

	if count != 1 {
		t.Errorf("listener called %d times after unsubscribe, want 1", count)
	}
}

func TestPanickingListenerIsIsolated(t *testing.T) {
	bus := NewBus()

	delivered := false
	bus.Subscribe(func(Event) { panic("listener bug") })
	bus.Subscribe(func(Event) { delivered = true })

	bus.Publish(Event{Kind: MessageReceived, ChatID: "c1", Index: 1})

	if !delivered {
		t.Error("second listener was not called after the first panicked")
	}
}
