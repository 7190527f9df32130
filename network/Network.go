// Package network implements the value-network function approximators
// using Gorgonia. A QNetwork maps a batch of observation vectors to one
// value estimate per action.
package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// fcLayer implements a fully connected layer of a feed forward neural
// network
type fcLayer struct {
	weights *G.Node
	bias    *G.Node
	act     *Activation
}

// fwd adds the forward pass of the fcLayer to the computational graph
func (f *fcLayer) fwd(x *G.Node) (*G.Node, error) {
	if f.weights != nil {
		x = G.Must(G.Mul(x, f.weights))
	}
	if f.bias != nil {
		// Broadcast the bias weights to all samples along the batch
		// dimension
		x = G.Must(G.BroadcastAdd(x, f.bias, nil, []byte{0}))
	}
	if f.act == nil || f.act.IsIdentity() {
		return x, nil
	}
	return f.act.fwd(x)
}

// QNetwork implements a multi-layered perceptron with one output per
// action. The graph is owned by the QNetwork; callers run it through
// their own virtual machine.
type QNetwork struct {
	g      *G.ExprGraph
	layers []*fcLayer
	input  *G.Node

	features   int
	numOutputs int
	batchSize  int

	hiddenSizes []int
	biases      []bool
	activations []*Activation

	learnables G.Nodes
	model      []G.ValueGrad

	prediction *G.Node
	predVal    G.Value
}

// NewQNetwork creates and returns a new value network on a fresh graph.
// A final linear layer with a bias unit is always appended so that the
// network produces exactly one output per action regardless of the hidden
// layout.
func NewQNetwork(features, batch, outputs int, hiddenSizes []int,
	biases []bool, init G.InitWFn,
	activations []*Activation) (*QNetwork, error) {
	if len(hiddenSizes) != len(activations) {
		msg := "newqnetwork: invalid number of activations\n\twant(%d)" +
			"\n\thave(%d)"
		return nil, fmt.Errorf(msg, len(hiddenSizes), len(activations))
	}
	if len(hiddenSizes) != len(biases) {
		msg := "newqnetwork: invalid number of biases\n\twant(%d)" +
			"\n\thave(%d)"
		return nil, fmt.Errorf(msg, len(hiddenSizes), len(biases))
	}
	if features <= 0 || batch <= 0 || outputs <= 0 {
		return nil, fmt.Errorf("newqnetwork: features, batch and outputs "+
			"must be positive \n\thave(%v, %v, %v)", features, batch, outputs)
	}

	g := G.NewGraph()
	input := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, features),
		G.WithName("input"), G.WithInit(G.Zeroes()))

	// Final linear output layer
	sizes := append(append([]int{}, hiddenSizes...), outputs)
	withBias := append(append([]bool{}, biases...), true)
	acts := append(append([]*Activation{}, activations...), Identity())

	layers := make([]*fcLayer, len(sizes))
	prevSize := features
	for i, size := range sizes {
		weights := G.NewMatrix(
			g,
			tensor.Float64,
			G.WithShape(prevSize, size),
			G.WithName(fmt.Sprintf("layer%dweights", i)),
			G.WithInit(init),
		)

		var bias *G.Node
		if withBias[i] {
			bias = G.NewVector(
				g,
				tensor.Float64,
				G.WithShape(size),
				G.WithName(fmt.Sprintf("layer%dbias", i)),
				G.WithInit(G.Zeroes()),
			)
		}

		layers[i] = &fcLayer{weights: weights, bias: bias, act: acts[i]}
		prevSize = size
	}

	net := &QNetwork{
		g:           g,
		layers:      layers,
		input:       input,
		features:    features,
		numOutputs:  outputs,
		batchSize:   batch,
		hiddenSizes: hiddenSizes,
		biases:      biases,
		activations: activations,
	}

	if _, err := net.fwd(input); err != nil {
		return nil, fmt.Errorf("newqnetwork: could not compute forward "+
			"pass: %v", err)
	}
	return net, nil
}

// CloneWithBatch clones the network architecture and current weights onto
// a fresh graph with a new input batch size.
func (n *QNetwork) CloneWithBatch(batch int) (*QNetwork, error) {
	clone, err := NewQNetwork(n.features, batch, n.numOutputs,
		n.hiddenSizes, n.biases, G.Zeroes(), n.activations)
	if err != nil {
		return nil, fmt.Errorf("clonewithbatch: %v", err)
	}
	if err := clone.Set(n); err != nil {
		return nil, fmt.Errorf("clonewithbatch: could not copy weights: %v",
			err)
	}
	return clone, nil
}

// fwd performs the forward pass of the QNetwork on the input node
func (n *QNetwork) fwd(input *G.Node) (*G.Node, error) {
	pred := input
	var err error
	for i, l := range n.layers {
		if pred, err = l.fwd(pred); err != nil {
			return nil, fmt.Errorf("fwd: could not compute forward pass "+
				"of layer %v: %v", i, err)
		}
	}

	n.prediction = pred
	G.Read(n.prediction, &n.predVal)
	return pred, nil
}

// Graph returns the computational graph of the QNetwork.
func (n *QNetwork) Graph() *G.ExprGraph {
	return n.g
}

// BatchSize returns the batch size of inputs to the network
func (n *QNetwork) BatchSize() int {
	return n.batchSize
}

// Features returns the number of features in a single observation vector
func (n *QNetwork) Features() int {
	return n.features
}

// Outputs returns the number of outputs (actions) of the network
func (n *QNetwork) Outputs() int {
	return n.numOutputs
}

// SetInput sets the value of the input node before running the forward
// pass through a VM.
func (n *QNetwork) SetInput(input []float64) error {
	if len(input) != n.features*n.batchSize {
		return fmt.Errorf("setinput: invalid number of inputs"+
			"\n\twant(%v)\n\thave(%v)", n.features*n.batchSize, len(input))
	}

	backing := make([]float64, len(input))
	copy(backing, input)
	inputTensor := tensor.New(
		tensor.WithBacking(backing),
		tensor.WithShape(n.input.Shape()...),
	)
	return G.Let(n.input, inputTensor)
}

// Prediction returns the node of the computational graph that stores the
// network prediction.
func (n *QNetwork) Prediction() *G.Node {
	return n.prediction
}

// OutputData returns a copy of the prediction computed by the last VM
// run: batchSize rows of one value per action. The copy means callers
// hold no reference into VM-owned memory once the VM is reset.
func (n *QNetwork) OutputData() ([]float64, error) {
	if n.predVal == nil {
		return nil, fmt.Errorf("outputdata: vm must be run before reading " +
			"the prediction")
	}
	data, ok := n.predVal.Data().([]float64)
	if !ok {
		return nil, fmt.Errorf("outputdata: prediction has unexpected "+
			"type %T", n.predVal.Data())
	}
	out := make([]float64, len(data))
	copy(out, data)
	return out, nil
}

// Set sets the weights of the QNetwork to be equal to the weights of the
// source network (a hard copy, not an average).
func (n *QNetwork) Set(source *QNetwork) error {
	sourceNodes := source.Learnables()
	nodes := n.Learnables()
	if len(nodes) != len(sourceNodes) {
		return fmt.Errorf("set: source has different number of "+
			"learnables\n\twant(%v)\n\thave(%v)", len(nodes),
			len(sourceNodes))
	}
	for i, destLearnable := range nodes {
		sourceLearnable := sourceNodes[i].Clone()
		err := G.Let(destLearnable, sourceLearnable.(*G.Node).Value())
		if err != nil {
			return err
		}
	}
	return nil
}

// Learnables returns the learnable nodes of the QNetwork
func (n *QNetwork) Learnables() G.Nodes {
	// Lazy instantiation
	if n.learnables == nil {
		learnables := make([]*G.Node, 0, 2*len(n.layers))
		for i := range n.layers {
			learnables = append(learnables, n.layers[i].weights)
			if bias := n.layers[i].bias; bias != nil {
				learnables = append(learnables, bias)
			}
		}
		n.learnables = G.Nodes(learnables)
	}
	return n.learnables
}

// Model returns the learnable nodes with their gradients.
func (n *QNetwork) Model() []G.ValueGrad {
	// Lazy instantiation
	if n.model == nil {
		model := make([]G.ValueGrad, 0, 2*len(n.layers))
		for _, node := range n.Learnables() {
			model = append(model, node)
		}
		n.model = model
	}
	return n.model
}
