// Package agent defines the interfaces satisfied by learning agents.
//
// An Agent is composed of a Learner, which updates weights from
// experience, and a Policy, which chooses actions in each state. Agents
// that hold networks and virtual machines also persist and release those
// resources through the Persister and Cleanup surfaces.
package agent

import (
	"errors"

	"github.com/habib256/pocketcosmos-sub000/network"
	"github.com/habib256/pocketcosmos-sub000/store"
	"github.com/habib256/pocketcosmos-sub000/timestep"
)

// ErrDisposed reports a call on an agent after Cleanup. Callers racing
// cleanup should detect it with errors.Is and swallow it.
var ErrDisposed = errors.New("agent disposed")

// Agent determines the implementation details of a learning algorithm.
type Agent interface {
	Learner
	Policy
	Persister

	// Cleanup releases the agent's networks, virtual machines and
	// buffers. It is idempotent. After Cleanup, methods that return
	// errors return ErrDisposed and the rest are no-ops.
	Cleanup() error
}

// Learner implements a learning algorithm that defines how weights are
// updated.
type Learner interface {
	// Step performs a single update to the learner
	Step() error

	// Observe records that an action lead to some timestep
	Observe(action int, nextStep timestep.TimeStep)

	// ObserveFirst records the first timestep in an episode
	ObserveFirst(timestep.TimeStep)

	// SyncTarget hard-copies the learned weights into the network
	// providing update targets
	SyncTarget() error

	// Loss returns the loss of the most recent update
	Loss() float64

	// EndEpisode performs cleanup at the end of an episode
	EndEpisode()
}

// Policy determines how an agent selects actions. The same weights back
// both the training-mode and evaluation-mode behaviour; evaluation mode
// acts greedily.
type Policy interface {
	SelectAction(t timestep.TimeStep) (int, error)
	Eval()        // Set policy to evaluation mode
	Train()       // Set policy to training mode
	IsEval() bool // Indicates if in evaluation mode
	Epsilon() float64
}

// Persister saves and restores an agent's learned weights.
type Persister interface {
	// Save writes the learned weights into a named store slot
	Save(st *store.Store, slot string) error

	// Load restores the learned weights from a named store slot. A
	// missing slot is reported with an error wrapping store.ErrNoSlot
	// and leaves the agent unchanged.
	Load(st *store.Store, slot string) error

	// Snapshot returns a detached copy of the learned weights
	Snapshot() (*network.Weights, error)

	// Restore overwrites the learned weights from a snapshot
	Restore(*network.Weights) error
}
