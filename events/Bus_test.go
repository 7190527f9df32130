package events

import (
	"testing"
)

func TestPublishReachesSubscriber(t *testing.T) {
	bus := NewBus()
	ch := make(chan Event, 1)
	defer bus.Subscribe(EpisodeEnded, ch)()

	bus.Publish(Event{Topic: EpisodeEnded, Payload: 42})

	select {
	case e := <-ch:
		if e.Topic != EpisodeEnded || e.Payload.(int) != 42 {
			t.Errorf("unexpected event %+v", e)
		}
	default:
		t.Error("subscriber did not receive the event")
	}
}

func TestPublishIgnoresOtherTopics(t *testing.T) {
	bus := NewBus()
	ch := make(chan Event, 1)
	defer bus.Subscribe(EpisodeEnded, ch)()

	bus.Publish(Event{Topic: EpisodeStarted})

	select {
	case e := <-ch:
		t.Errorf("received event for a topic not subscribed to: %+v", e)
	default:
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	bus := NewBus()
	ch := make(chan Event, 1)
	defer bus.Subscribe(StepTaken, ch)()

	// Fill the channel; further publishes must drop, not block
	bus.Publish(Event{Topic: StepTaken, Payload: 1})
	bus.Publish(Event{Topic: StepTaken, Payload: 2})

	e := <-ch
	if e.Payload.(int) != 1 {
		t.Errorf("expected first event to be delivered, got %v", e.Payload)
	}
	select {
	case e := <-ch:
		t.Errorf("second event should have been dropped, got %v", e.Payload)
	default:
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus()
	ch := make(chan Event, 1)
	unsub := bus.Subscribe(EpisodeEnded, ch)

	unsub()
	unsub() // calling twice is safe

	bus.Publish(Event{Topic: EpisodeEnded})
	select {
	case <-ch:
		t.Error("received event after unsubscribing")
	default:
	}
}

func TestReset(t *testing.T) {
	bus := NewBus()
	ch := make(chan Event, 1)
	bus.Subscribe(EpisodeEnded, ch)

	bus.Reset()
	bus.Publish(Event{Topic: EpisodeEnded})
	select {
	case <-ch:
		t.Error("received event after bus reset")
	default:
	}
}
