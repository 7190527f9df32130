// Package events implements an in-process publish/subscribe bus used to
// surface training signals to listeners without coupling the training
// loop to them.
package events

import (
	"sync"

	"github.com/google/uuid"
)

// Topic identifies a class of events on the bus.
type Topic string

const (
	TrainingStarted   Topic = "training.started"
	TrainingProgress  Topic = "training.progress"
	TrainingCompleted Topic = "training.completed"
	TrainingStopped   Topic = "training.stopped"
	TrainingPaused    Topic = "training.paused"
	TrainingResumed   Topic = "training.resumed"
	TrainingError     Topic = "training.error"
	EpisodeStarted    Topic = "episode.started"
	EpisodeEnded      Topic = "episode.ended"
	StepTaken         Topic = "step.taken"
	EvalCompleted     Topic = "evaluation.completed"
)

// Event is a single published signal. Payload is owned by the publisher
// and must not be mutated by subscribers.
type Event struct {
	Topic   Topic
	Payload interface{}
}

// Bus is an in-process broker. Publishing never blocks: a subscriber
// whose channel is full misses that event.
type Bus struct {
	subscribers map[Topic]map[string]chan<- Event
	mu          sync.RWMutex
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[Topic]map[string]chan<- Event),
	}
}

// Publish broadcasts the event to every subscriber of its topic. Sends
// are non-blocking; slow subscribers drop events rather than stall the
// publisher.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers[e.Topic] {
		select {
		case ch <- e:
		default:
			// Channel is full, skip this subscriber
		}
	}
}

// Subscribe registers a channel to receive events on the topic and
// returns a function that removes the subscription. The returned
// function is safe to call more than once.
func (b *Bus) Subscribe(topic Topic, ch chan<- Event) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.NewString()
	if _, ok := b.subscribers[topic]; !ok {
		b.subscribers[topic] = make(map[string]chan<- Event)
	}
	b.subscribers[topic][id] = ch

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subscribers[topic], id)
		})
	}
}

// Reset removes every subscription.
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = make(map[Topic]map[string]chan<- Event)
}
