// Package deepq implements the deep Q-learning algorithm with
// experience replay and a target network.
package deepq

import (
	"fmt"
	"math"
	"os"
	"sync/atomic"

	"golang.org/x/exp/rand"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/habib256/pocketcosmos-sub000/agent"
	"github.com/habib256/pocketcosmos-sub000/expreplay"
	"github.com/habib256/pocketcosmos-sub000/network"
	"github.com/habib256/pocketcosmos-sub000/store"
	ts "github.com/habib256/pocketcosmos-sub000/timestep"
)

// DeepQ implements deep Q-learning with the MSE loss. Four networks
// share one architecture and one set of learned weights:
//
//   - learnNet computes the loss and is the only network the solver
//     adapts. Its graph holds a target-values node set before each
//     update.
//   - selectNet is a batch-one copy used for action selection.
//   - onlineNet is a batch copy used to predict the current action
//     values of sampled states when building update targets.
//   - targetNet provides max[Q(s', a')] and is synced only by
//     SyncTarget.
//
// selectNet and onlineNet are hard-copied from learnNet after every
// gradient step so that behaviour always reflects the newest weights.
type DeepQ struct {
	selectNet *network.QNetwork
	selectVM  G.VM
	onlineNet *network.QNetwork
	onlineVM  G.VM
	targetNet *network.QNetwork
	targetVM  G.VM

	learnNet *network.QNetwork
	learnVM  G.VM
	targets  *G.Node
	costVal  *G.Value
	lastLoss float64
	solver   G.Solver

	replay *expreplay.Buffer

	numFeatures int
	numActions  int
	batchSize   int
	discount    float64

	epsilon      float64
	epsilonDecay float64
	minEpsilon   float64

	// Keep track of the previous state to build replay transitions
	prevStep ts.TimeStep

	eval bool
	rng  *rand.Rand

	inFlight atomic.Bool
	blocked  atomic.Uint64
	updates  atomic.Uint64
	disposed atomic.Bool
}

// New creates and returns a new DeepQ agent acting on observation
// vectors of numFeatures features and numActions discrete actions
// enumerated from 0.
func New(numFeatures, numActions int, config Config,
	seed uint64) (*DeepQ, error) {
	if numFeatures < 1 || numActions < 2 {
		return nil, fmt.Errorf("deepq: need at least 1 feature and 2 "+
			"actions \n\thave(%v, %v)", numFeatures, numActions)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	init := config.InitWFn
	if init == nil {
		init = G.GlorotU(1.0)
	}

	learnNet, err := network.NewQNetwork(numFeatures, config.BatchSize,
		numActions, config.PolicyLayers, config.Biases, init,
		config.Activations)
	if err != nil {
		return nil, fmt.Errorf("deepq: could not create learning "+
			"network: %v", err)
	}

	// Nodes to compute the MSE between predicted rows and the update
	// target rows built on the host
	gLearn := learnNet.Graph()
	targets := G.NewMatrix(gLearn, tensor.Float64,
		G.WithShape(config.BatchSize, numActions), G.WithName("targets"))
	losses := G.Must(G.Sub(learnNet.Prediction(), targets))
	losses = G.Must(G.Square(losses))
	cost := G.Must(G.Mean(losses))

	costVal := new(G.Value)
	G.Read(cost, costVal)

	if _, err := G.Grad(cost, learnNet.Learnables()...); err != nil {
		return nil, fmt.Errorf("deepq: could not compute gradient: %v", err)
	}
	learnVM := G.NewTapeMachine(gLearn,
		G.BindDualValues(learnNet.Learnables()...))
	solver := G.NewAdamSolver(G.WithLearnRate(config.LearningRate))

	selectNet, err := learnNet.CloneWithBatch(1)
	if err != nil {
		return nil, fmt.Errorf("deepq: could not create selection "+
			"network: %v", err)
	}
	onlineNet, err := learnNet.CloneWithBatch(config.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("deepq: could not create online "+
			"network: %v", err)
	}
	targetNet, err := learnNet.CloneWithBatch(config.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("deepq: could not create target "+
			"network: %v", err)
	}

	replay, err := expreplay.New(config.MinReplayCapacity,
		config.MaxReplayCapacity, config.BatchSize, seed)
	if err != nil {
		return nil, fmt.Errorf("deepq: could not create experience "+
			"replay buffer: %v", err)
	}

	return &DeepQ{
		selectNet: selectNet,
		selectVM:  G.NewTapeMachine(selectNet.Graph()),
		onlineNet: onlineNet,
		onlineVM:  G.NewTapeMachine(onlineNet.Graph()),
		targetNet: targetNet,
		targetVM:  G.NewTapeMachine(targetNet.Graph()),

		learnNet: learnNet,
		learnVM:  learnVM,
		targets:  targets,
		costVal:  costVal,
		solver:   solver,

		replay: replay,

		numFeatures: numFeatures,
		numActions:  numActions,
		batchSize:   config.BatchSize,
		discount:    config.Discount,

		epsilon:      config.Epsilon,
		epsilonDecay: config.EpsilonDecay,
		minEpsilon:   config.MinEpsilon,

		rng: rand.New(rand.NewSource(seed)),
	}, nil
}

// ObserveFirst observes and records the first episodic timestep
func (d *DeepQ) ObserveFirst(t ts.TimeStep) {
	if d.disposed.Load() {
		return
	}
	if !t.First() {
		fmt.Fprintf(os.Stderr, "Warning: ObserveFirst() should only be "+
			"called on the first timestep (current timestep = %d)\n",
			t.Number)
	}
	d.prevStep = t
}

// Observe records that the action taken in the previously observed
// state led to nextStep, appending the transition to the replay buffer.
func (d *DeepQ) Observe(action int, nextStep ts.TimeStep) {
	if d.disposed.Load() {
		return
	}
	if d.prevStep.Observation == nil {
		fmt.Fprintln(os.Stderr, "Warning: Observe() called before "+
			"ObserveFirst()")
		d.prevStep = nextStep
		return
	}

	d.replay.Add(ts.NewTransition(d.prevStep, action, nextStep))
	d.prevStep = nextStep
}

// SelectAction returns an action for the timestep: ε-greedy over the
// current action-value estimates in training mode, greedy in evaluation
// mode.
func (d *DeepQ) SelectAction(t ts.TimeStep) (int, error) {
	if d.disposed.Load() {
		return 0, fmt.Errorf("selectaction: %w", agent.ErrDisposed)
	}

	if !d.eval && d.rng.Float64() < d.epsilon {
		return d.rng.Intn(d.numActions), nil
	}

	obs := make([]float64, t.Observation.Len())
	for i := range obs {
		obs[i] = t.Observation.AtVec(i)
	}
	if err := d.selectNet.SetInput(obs); err != nil {
		return 0, fmt.Errorf("selectaction: %v", err)
	}
	if err := d.selectVM.RunAll(); err != nil {
		return 0, fmt.Errorf("selectaction: could not run selection "+
			"network: %v", err)
	}
	values, err := d.selectNet.OutputData()
	d.selectVM.Reset()
	if err != nil {
		return 0, fmt.Errorf("selectaction: %v", err)
	}

	return d.argmax(values), nil
}

// argmax returns the index of the maximum action value, breaking ties
// uniformly at random.
func (d *DeepQ) argmax(values []float64) int {
	best := math.Inf(-1)
	var ties []int
	for i, v := range values {
		if v > best {
			best = v
			ties = ties[:0]
		}
		if v == best {
			ties = append(ties, i)
		}
	}
	if len(ties) == 1 {
		return ties[0]
	}
	return ties[d.rng.Intn(len(ties))]
}

// Step performs a single gradient update on the learned weights. It is
// a no-op while the replay buffer holds less than the minimum capacity,
// and a counted no-op while another update is already in flight; a
// concurrent second call is dropped, never queued.
func (d *DeepQ) Step() error {
	if d.disposed.Load() {
		return fmt.Errorf("step: %w", agent.ErrDisposed)
	}
	if !d.inFlight.CompareAndSwap(false, true) {
		d.blocked.Add(1)
		return nil
	}
	defer d.inFlight.Store(false)

	batch, err := d.replay.Sample()
	if expreplay.IsEmptyBuffer(err) || expreplay.IsInsufficientSamples(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("step: %v", err)
	}

	states, nextStates, err := flatten(batch, d.numFeatures)
	if err != nil {
		return fmt.Errorf("step: %v", err)
	}

	// Predicted action values of the sampled states under the current
	// weights
	if err := d.onlineNet.SetInput(states); err != nil {
		return fmt.Errorf("step: could not set online net input: %v", err)
	}
	if err := d.onlineVM.RunAll(); err != nil {
		return fmt.Errorf("step: could not run online net: %v", err)
	}
	predicted, err := d.onlineNet.OutputData()
	d.onlineVM.Reset()
	if err != nil {
		return fmt.Errorf("step: %v", err)
	}

	// Action values of the next states under the target weights
	if err := d.targetNet.SetInput(nextStates); err != nil {
		return fmt.Errorf("step: could not set target net input: %v", err)
	}
	if err := d.targetVM.RunAll(); err != nil {
		return fmt.Errorf("step: could not run target net: %v", err)
	}
	nextPredicted, err := d.targetNet.OutputData()
	d.targetVM.Reset()
	if err != nil {
		return fmt.Errorf("step: %v", err)
	}

	targets, err := BuildTargets(predicted, nextPredicted, batch,
		d.discount, d.numActions)
	if err != nil {
		return fmt.Errorf("step: %v", err)
	}

	// Run the learning step
	if err := d.learnNet.SetInput(states); err != nil {
		return fmt.Errorf("step: could not set learning net input: %v", err)
	}
	targetTensor := tensor.New(
		tensor.WithBacking(targets),
		tensor.WithShape(d.batchSize, d.numActions),
	)
	if err := G.Let(d.targets, targetTensor); err != nil {
		return fmt.Errorf("step: could not set update targets: %v", err)
	}
	if err := d.learnVM.RunAll(); err != nil {
		d.learnVM.Reset()
		return fmt.Errorf("step: could not run learning net: %v", err)
	}
	if err := d.solver.Step(d.learnNet.Model()); err != nil {
		d.learnVM.Reset()
		return fmt.Errorf("step: could not adapt weights: %v", err)
	}
	if loss, ok := lossValue(*d.costVal); ok {
		d.lastLoss = loss
	}
	d.learnVM.Reset()
	d.updates.Add(1)

	// Behaviour reflects the newly learned weights
	if err := d.selectNet.Set(d.learnNet); err != nil {
		return fmt.Errorf("step: could not update selection net: %v", err)
	}
	if err := d.onlineNet.Set(d.learnNet); err != nil {
		return fmt.Errorf("step: could not update online net: %v", err)
	}
	return nil
}

// flatten lays out the states and next states of a batch of transitions
// in row major order.
func flatten(batch []ts.Transition, numFeatures int) ([]float64, []float64,
	error) {
	states := make([]float64, 0, len(batch)*numFeatures)
	nextStates := make([]float64, 0, len(batch)*numFeatures)
	for _, tr := range batch {
		if tr.State.Len() != numFeatures || tr.NextState.Len() != numFeatures {
			return nil, nil, fmt.Errorf("flatten: invalid state dimension"+
				"\n\twant(%v)\n\thave(%v, %v)", numFeatures, tr.State.Len(),
				tr.NextState.Len())
		}
		states = append(states, tr.State.RawVector().Data...)
		nextStates = append(nextStates, tr.NextState.RawVector().Data...)
	}
	return states, nextStates, nil
}

// SyncTarget sets the target network weights to the learned weights.
func (d *DeepQ) SyncTarget() error {
	if d.disposed.Load() {
		return fmt.Errorf("synctarget: %w", agent.ErrDisposed)
	}
	if err := d.targetNet.Set(d.learnNet); err != nil {
		return fmt.Errorf("synctarget: %v", err)
	}
	return nil
}

// EndEpisode decays the exploration rate toward its floor. Evaluation
// episodes leave the rate untouched.
func (d *DeepQ) EndEpisode() {
	if d.disposed.Load() || d.eval {
		return
	}
	d.epsilon = math.Max(d.minEpsilon, d.epsilon*d.epsilonDecay)
}

// Eval sets the agent into evaluation mode
func (d *DeepQ) Eval() {
	d.eval = true
}

// Train sets the agent into training mode
func (d *DeepQ) Train() {
	d.eval = false
}

// IsEval returns whether the agent is in evaluation mode
func (d *DeepQ) IsEval() bool {
	return d.eval
}

// Epsilon returns the current exploration rate
func (d *DeepQ) Epsilon() float64 {
	return d.epsilon
}

// lossValue extracts the scalar loss from the cost node's read value.
func lossValue(v G.Value) (float64, bool) {
	if v == nil {
		return 0, false
	}
	switch data := v.Data().(type) {
	case float64:
		return data, true
	case []float64:
		if len(data) == 1 {
			return data[0], true
		}
	}
	return 0, false
}

// Loss returns the mean squared error of the most recent gradient
// update.
func (d *DeepQ) Loss() float64 {
	return d.lastLoss
}

// Blocked returns how many training calls were dropped because another
// pass was in flight.
func (d *DeepQ) Blocked() uint64 {
	return d.blocked.Load()
}

// Updates returns the number of completed gradient updates.
func (d *DeepQ) Updates() uint64 {
	return d.updates.Load()
}

// Snapshot returns a detached copy of the learned weights.
func (d *DeepQ) Snapshot() (*network.Weights, error) {
	if d.disposed.Load() {
		return nil, fmt.Errorf("snapshot: %w", agent.ErrDisposed)
	}
	return d.learnNet.Snapshot()
}

// Restore overwrites the learned weights from a snapshot and propagates
// them to every network, the target network included.
func (d *DeepQ) Restore(w *network.Weights) error {
	if d.disposed.Load() {
		return fmt.Errorf("restore: %w", agent.ErrDisposed)
	}
	if err := d.learnNet.Restore(w); err != nil {
		return fmt.Errorf("restore: %v", err)
	}
	for _, net := range []*network.QNetwork{d.selectNet, d.onlineNet,
		d.targetNet} {
		if err := net.Set(d.learnNet); err != nil {
			return fmt.Errorf("restore: %v", err)
		}
	}
	return nil
}

// Save writes the learned weights into the named store slot.
func (d *DeepQ) Save(st *store.Store, slot string) error {
	if d.disposed.Load() {
		return fmt.Errorf("save: %w", agent.ErrDisposed)
	}
	w, err := d.learnNet.Snapshot()
	if err != nil {
		return fmt.Errorf("save: %v", err)
	}
	if err := st.Put(slot, w); err != nil {
		return fmt.Errorf("save: %v", err)
	}
	return nil
}

// Load restores the learned weights from the named store slot. A slot
// that was never written is reported with an error wrapping
// store.ErrNoSlot; the agent keeps its current weights.
func (d *DeepQ) Load(st *store.Store, slot string) error {
	if d.disposed.Load() {
		return fmt.Errorf("load: %w", agent.ErrDisposed)
	}
	var w network.Weights
	if err := st.Get(slot, &w); err != nil {
		return fmt.Errorf("load: %w", err)
	}
	if err := d.Restore(&w); err != nil {
		return fmt.Errorf("load: %v", err)
	}
	return nil
}

// Cleanup closes the agent's virtual machines and releases its buffers.
// It is idempotent; only the first call does any work.
func (d *DeepQ) Cleanup() error {
	if !d.disposed.CompareAndSwap(false, true) {
		return nil
	}

	var firstErr error
	for _, vm := range []G.VM{d.selectVM, d.onlineVM, d.targetVM,
		d.learnVM} {
		if err := vm.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("cleanup: could not close vm: %v", err)
		}
	}
	d.replay.Clear()
	return firstErr
}
