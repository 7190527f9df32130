// Package expreplay implements experience replay: a bounded buffer of
// transitions sampled from during training.
package expreplay

import (
	"fmt"

	"golang.org/x/exp/rand"

	"github.com/habib256/pocketcosmos-sub000/timestep"
)

// Buffer implements a bounded first-in-first-out experience replay
// buffer. Insertion is O(1): the buffer is a ring, and once full each new
// transition overwrites the oldest one. There is no deduplication and no
// prioritization; sampling draws a batch of unique indices uniformly at
// random.
type Buffer struct {
	transitions []timestep.Transition

	pos    int
	isFull bool

	minCapacity int
	maxCapacity int
	batchSize   int

	rng *rand.Rand
}

// New creates a replay buffer. minCapacity is the number of transitions
// that must be in the buffer before sampling is allowed; maxCapacity the
// bound after which FIFO eviction starts; batchSize the number of unique
// transitions returned by Sample.
func New(minCapacity, maxCapacity, batchSize int,
	seed uint64) (*Buffer, error) {
	if minCapacity <= 0 {
		return nil, fmt.Errorf("new: minCapacity must be > 0")
	}
	if maxCapacity < 1 {
		return nil, fmt.Errorf("new: maxCapacity must be >= 1")
	}
	if batchSize > maxCapacity {
		return nil, fmt.Errorf("new: cannot have batch size(%v) > max "+
			"buffer capacity (%v)", batchSize, maxCapacity)
	}
	if minCapacity < batchSize {
		minCapacity = batchSize
	}

	return &Buffer{
		transitions: make([]timestep.Transition, maxCapacity),
		minCapacity: minCapacity,
		maxCapacity: maxCapacity,
		batchSize:   batchSize,
		rng:         rand.New(rand.NewSource(seed)),
	}, nil
}

// Add appends a transition to the buffer, evicting the oldest transition
// first when the buffer is at capacity.
func (b *Buffer) Add(t timestep.Transition) {
	b.transitions[b.pos] = t
	b.pos = (b.pos + 1) % b.maxCapacity
	if b.pos == 0 {
		b.isFull = true
	}
}

// Sample draws a batch of unique transitions uniformly at random. The
// returned slice is freshly allocated; the transitions themselves are the
// stored (immutable) values.
func (b *Buffer) Sample() ([]timestep.Transition, error) {
	capacity := b.Capacity()
	if capacity == 0 {
		return nil, &ExpReplayError{Op: "sample", Err: errEmptyBuffer}
	}
	if capacity < b.minCapacity {
		return nil, &ExpReplayError{Op: "sample", Err: errInsufficientSamples}
	}

	indices := b.rng.Perm(capacity)[:b.batchSize]

	batch := make([]timestep.Transition, b.batchSize)
	for i, index := range indices {
		batch[i] = b.transitions[index]
	}
	return batch, nil
}

// Contains reports whether any stored transition satisfies the predicate.
// Used by tests to verify the FIFO eviction property.
func (b *Buffer) Contains(match func(timestep.Transition) bool) bool {
	for i := 0; i < b.Capacity(); i++ {
		if match(b.transitions[i]) {
			return true
		}
	}
	return false
}

// Clear releases all stored transitions.
func (b *Buffer) Clear() {
	for i := range b.transitions {
		b.transitions[i] = timestep.Transition{}
	}
	b.pos = 0
	b.isFull = false
}

// Capacity returns the current number of transitions in the buffer.
func (b *Buffer) Capacity() int {
	if b.isFull {
		return b.maxCapacity
	}
	return b.pos
}

// MaxCapacity returns the maximum allowable transitions in the buffer.
func (b *Buffer) MaxCapacity() int {
	return b.maxCapacity
}

// MinCapacity returns the number of transitions required in the buffer
// before sampling is allowed.
func (b *Buffer) MinCapacity() int {
	return b.minCapacity
}

// BatchSize returns the number of transitions returned by Sample.
func (b *Buffer) BatchSize() int {
	return b.batchSize
}
