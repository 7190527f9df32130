package deepq

import (
	"fmt"

	G "gorgonia.org/gorgonia"

	"github.com/habib256/pocketcosmos-sub000/network"
)

// Config implements a configuration for a DeepQ agent
type Config struct {
	PolicyLayers []int                 // Layer sizes in neural net
	Biases       []bool                // Whether each layer should have a bias
	Activations  []*network.Activation // Activation of each layer

	// Initialization algorithm for weights. Defaults to Glorot uniform
	// when nil.
	InitWFn G.InitWFn

	LearningRate float64

	Epsilon      float64 // Starting exploration rate
	EpsilonDecay float64 // Multiplicative decay applied at episode end
	MinEpsilon   float64 // Exploration floor

	Discount float64 // Reward discount γ

	// Experience replay parameters
	BatchSize         int
	MinReplayCapacity int
	MaxReplayCapacity int
}

// DefaultConfig returns a Config with reasonable hyperparameter
// defaults.
func DefaultConfig() Config {
	return Config{
		PolicyLayers: []int{64, 64},
		Biases:       []bool{true, true},
		Activations: []*network.Activation{
			network.ReLU(),
			network.ReLU(),
		},
		LearningRate:      0.001,
		Epsilon:           1.0,
		EpsilonDecay:      0.995,
		MinEpsilon:        0.05,
		Discount:          0.99,
		BatchSize:         64,
		MinReplayCapacity: 500,
		MaxReplayCapacity: 50000,
	}
}

// Validate checks a Config to ensure it is a valid configuration of a
// DeepQ agent.
func (c Config) Validate() error {
	if len(c.PolicyLayers) != len(c.Biases) {
		return fmt.Errorf("config: invalid number of biases\n\twant(%v)"+
			"\n\thave(%v)", len(c.PolicyLayers), len(c.Biases))
	}
	if len(c.PolicyLayers) != len(c.Activations) {
		return fmt.Errorf("config: invalid number of activations"+
			"\n\twant(%v)\n\thave(%v)", len(c.PolicyLayers),
			len(c.Activations))
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("config: learning rate must be positive"+
			"\n\thave(%v)", c.LearningRate)
	}
	if c.Epsilon < 0 || c.Epsilon > 1 {
		return fmt.Errorf("config: epsilon must be in [0, 1]\n\thave(%v)",
			c.Epsilon)
	}
	if c.EpsilonDecay <= 0 || c.EpsilonDecay > 1 {
		return fmt.Errorf("config: epsilon decay must be in (0, 1]"+
			"\n\thave(%v)", c.EpsilonDecay)
	}
	if c.MinEpsilon < 0 || c.MinEpsilon > c.Epsilon {
		return fmt.Errorf("config: minimum epsilon must be in [0, ε]"+
			"\n\thave(%v)", c.MinEpsilon)
	}
	if c.Discount < 0 || c.Discount > 1 {
		return fmt.Errorf("config: discount must be in [0, 1]\n\thave(%v)",
			c.Discount)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("config: batch size must be positive\n\thave(%v)",
			c.BatchSize)
	}
	if c.MaxReplayCapacity < c.BatchSize {
		return fmt.Errorf("config: replay capacity (%v) must hold at "+
			"least one batch (%v)", c.MaxReplayCapacity, c.BatchSize)
	}
	return nil
}
