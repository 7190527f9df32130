package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// layerWeights holds the serializable parameters of a single layer.
type layerWeights struct {
	Name  string
	Shape []int
	Data  []float64
}

// Weights is a detached snapshot of a QNetwork's parameters together with
// the architecture needed to rebuild a compatible network. Snapshots are
// gob encodable and independent of any computational graph, so they can
// be held across training, persisted, or restored into a network of a
// different batch size.
type Weights struct {
	Features    int
	Outputs     int
	HiddenSizes []int
	Biases      []bool
	Activations []*Activation

	Params []layerWeights
}

// Release drops the parameter data so the backing memory can be
// reclaimed. A released snapshot cannot be restored.
func (w *Weights) Release() {
	if w == nil {
		return
	}
	w.Params = nil
}

// Released returns whether the snapshot's parameters have been dropped.
func (w *Weights) Released() bool {
	return w == nil || w.Params == nil
}

// Snapshot copies the current parameters of the QNetwork into a detached
// Weights value.
func (n *QNetwork) Snapshot() (*Weights, error) {
	learnables := n.Learnables()
	params := make([]layerWeights, len(learnables))
	for i, node := range learnables {
		t, ok := node.Value().(tensor.Tensor)
		if !ok {
			return nil, fmt.Errorf("snapshot: learnable %v holds no tensor",
				node.Name())
		}
		data, ok := t.Data().([]float64)
		if !ok {
			return nil, fmt.Errorf("snapshot: learnable %v has unexpected "+
				"type %T", node.Name(), t.Data())
		}

		backing := make([]float64, len(data))
		copy(backing, data)
		params[i] = layerWeights{
			Name:  node.Name(),
			Shape: append([]int{}, t.Shape()...),
			Data:  backing,
		}
	}

	return &Weights{
		Features:    n.features,
		Outputs:     n.numOutputs,
		HiddenSizes: append([]int{}, n.hiddenSizes...),
		Biases:      append([]bool{}, n.biases...),
		Activations: n.activations,
		Params:      params,
	}, nil
}

// Restore overwrites the parameters of the QNetwork with those stored in
// the snapshot. The snapshot must come from a network of the same
// architecture; the batch size may differ.
func (n *QNetwork) Restore(w *Weights) error {
	if w.Released() {
		return fmt.Errorf("restore: snapshot has been released")
	}

	learnables := n.Learnables()
	if len(learnables) != len(w.Params) {
		return fmt.Errorf("restore: invalid number of parameters"+
			"\n\twant(%v)\n\thave(%v)", len(learnables), len(w.Params))
	}

	for i, node := range learnables {
		param := w.Params[i]
		if !sameShape(node.Shape(), param.Shape) {
			return fmt.Errorf("restore: parameter %v has invalid shape"+
				"\n\twant(%v)\n\thave(%v)", param.Name, node.Shape(),
				param.Shape)
		}

		backing := make([]float64, len(param.Data))
		copy(backing, param.Data)
		t := tensor.New(
			tensor.WithBacking(backing),
			tensor.WithShape(param.Shape...),
		)
		if err := G.Let(node, t); err != nil {
			return fmt.Errorf("restore: could not set parameter %v: %v",
				param.Name, err)
		}
	}
	return nil
}

// FromWeights builds a fresh QNetwork with the snapshot's architecture
// and parameters at the given batch size.
func FromWeights(w *Weights, batch int) (*QNetwork, error) {
	if w.Released() {
		return nil, fmt.Errorf("fromweights: snapshot has been released")
	}

	net, err := NewQNetwork(w.Features, batch, w.Outputs, w.HiddenSizes,
		w.Biases, G.Zeroes(), w.Activations)
	if err != nil {
		return nil, fmt.Errorf("fromweights: %v", err)
	}
	if err := net.Restore(w); err != nil {
		return nil, fmt.Errorf("fromweights: %v", err)
	}
	return net, nil
}

func sameShape(a tensor.Shape, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
