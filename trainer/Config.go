package trainer

import (
	"fmt"
	"os"
	"reflect"

	"gonum.org/v1/gonum/spatial/r2"
	"gopkg.in/yaml.v3"

	"github.com/habib256/pocketcosmos-sub000/agent"
	"github.com/habib256/pocketcosmos-sub000/agent/deepq"
	"github.com/habib256/pocketcosmos-sub000/environment"
	"github.com/habib256/pocketcosmos-sub000/environment/rocket"
	"github.com/habib256/pocketcosmos-sub000/network"
	"github.com/habib256/pocketcosmos-sub000/physics"
)

// AgentConfig is the hyperparameter surface of the learning agent.
type AgentConfig struct {
	HiddenSizes []int `yaml:"hiddenSizes"`

	LearningRate float64 `yaml:"learningRate"`
	Discount     float64 `yaml:"discount"`

	Epsilon      float64 `yaml:"epsilon"`
	EpsilonDecay float64 `yaml:"epsilonDecay"`
	MinEpsilon   float64 `yaml:"minEpsilon"`

	BatchSize         int `yaml:"batchSize"`
	MinReplayCapacity int `yaml:"minReplayCapacity"`
	MaxReplayCapacity int `yaml:"maxReplayCapacity"`
}

// Config is the full configuration surface of a training run. Zero
// values are replaced by defaults when the run starts.
type Config struct {
	// Episodes caps the number of training episodes per objective.
	Episodes int `yaml:"episodes"`

	// Dt is the simulated seconds advanced per environment step.
	Dt float64 `yaml:"dt"`

	// TrainEvery and SyncEvery are environment-step intervals for
	// gradient updates and target-network syncs.
	TrainEvery int `yaml:"trainEvery"`
	SyncEvery  int `yaml:"syncEvery"`

	// Evaluation cadence: every EvalEvery episodes, run EvalEpisodes
	// episodes with exploration disabled. A negative EvalEvery disables
	// evaluation; zero falls back to the default.
	EvalEvery    int `yaml:"evalEvery"`
	EvalEpisodes int `yaml:"evalEpisodes"`

	// Checkpoint cadence and the store slot written to. A negative
	// CheckpointEvery disables checkpointing; zero falls back to the
	// default.
	CheckpointEvery int    `yaml:"checkpointEvery"`
	CheckpointSlot  string `yaml:"checkpointSlot"`
	StoreDir        string `yaml:"storeDir"`

	// Convergence: after ConvergenceWarmup episodes of the current
	// objective, a cumulative success rate at or above
	// SuccessRateTarget completes the objective.
	SuccessRateTarget float64 `yaml:"successRateTarget"`
	ConvergenceWarmup int     `yaml:"convergenceWarmup"`

	// Early stopping: after EarlyStopWarmup episodes, stop the
	// objective once every evaluation score in the window has stayed
	// within EarlyStopTolerance below the best score for
	// EarlyStopPatience consecutive evaluations.
	EarlyStopWarmup    int     `yaml:"earlyStopWarmup"`
	EarlyStopWindow    int     `yaml:"earlyStopWindow"`
	EarlyStopPatience  int     `yaml:"earlyStopPatience"`
	EarlyStopTolerance float64 `yaml:"earlyStopTolerance"`

	// MetricsWindow is the length of the rolling metric windows.
	MetricsWindow int `yaml:"metricsWindow"`

	// StepEventStride publishes a step snapshot every N steps; 0
	// disables step events.
	StepEventStride int `yaml:"stepEventStride"`

	// YieldEvery bounds how many steps may run before control is
	// yielded back to the scheduler.
	YieldEvery int `yaml:"yieldEvery"`

	Seed uint64 `yaml:"seed"`

	Agent AgentConfig `yaml:"agent"`

	// Objectives is the ordered list of episode configurations trained
	// in sequence. A converged objective advances to the next one.
	Objectives []environment.EpisodeConfig `yaml:"objectives"`

	Shaping rocket.ShapingConfig `yaml:"shaping"`
}

// DefaultConfig returns the full default configuration: a single
// navigation objective around one planet.
func DefaultConfig() Config {
	return Config{
		Episodes:   500,
		Dt:         1.0 / 30.0,
		TrainEvery: 4,
		SyncEvery:  500,

		EvalEvery:    25,
		EvalEpisodes: 5,

		CheckpointEvery: 50,
		CheckpointSlot:  "policy",
		StoreDir:        "checkpoints",

		SuccessRateTarget: 0.9,
		ConvergenceWarmup: 100,

		EarlyStopWarmup:    200,
		EarlyStopWindow:    5,
		EarlyStopPatience:  3,
		EarlyStopTolerance: 1.0,

		MetricsWindow:   100,
		StepEventStride: 0,
		YieldEvery:      64,

		Seed: 42,

		Agent: AgentConfig{
			HiddenSizes:       []int{64, 64},
			LearningRate:      0.001,
			Discount:          0.99,
			Epsilon:           1.0,
			EpsilonDecay:      0.995,
			MinEpsilon:        0.05,
			BatchSize:         64,
			MinReplayCapacity: 500,
			MaxReplayCapacity: 50000,
		},

		Objectives: []environment.EpisodeConfig{
			{
				Objective:      environment.Navigate,
				TargetPosition: r2.Vec{X: 4000, Y: 0},
				SuccessRadius:  200,
				MaxSteps:       1000,
				FuelCapacity:   100,
				StartJitter:    50,
				Bodies: []physics.Body{
					{Name: "planet", Position: r2.Vec{X: 0, Y: -1200},
						Mass: 5e5, Radius: 600},
				},
			},
		},

		Shaping: rocket.DefaultShaping(),
	}
}

// Merge overlays the non-zero fields of c onto the defaults and returns
// the result.
func Merge(c Config) Config {
	merged := DefaultConfig()

	if c.Episodes > 0 {
		merged.Episodes = c.Episodes
	}
	if c.Dt > 0 {
		merged.Dt = c.Dt
	}
	if c.TrainEvery > 0 {
		merged.TrainEvery = c.TrainEvery
	}
	if c.SyncEvery > 0 {
		merged.SyncEvery = c.SyncEvery
	}
	// Negative cadences mean "disabled"; the merged config carries that
	// as zero, which the loop skips
	if c.EvalEvery > 0 {
		merged.EvalEvery = c.EvalEvery
	} else if c.EvalEvery < 0 {
		merged.EvalEvery = 0
	}
	if c.EvalEpisodes > 0 {
		merged.EvalEpisodes = c.EvalEpisodes
	}
	if c.CheckpointEvery > 0 {
		merged.CheckpointEvery = c.CheckpointEvery
	} else if c.CheckpointEvery < 0 {
		merged.CheckpointEvery = 0
	}
	if c.CheckpointSlot != "" {
		merged.CheckpointSlot = c.CheckpointSlot
	}
	if c.StoreDir != "" {
		merged.StoreDir = c.StoreDir
	}
	if c.SuccessRateTarget > 0 {
		merged.SuccessRateTarget = c.SuccessRateTarget
	}
	if c.ConvergenceWarmup > 0 {
		merged.ConvergenceWarmup = c.ConvergenceWarmup
	}
	if c.EarlyStopWarmup > 0 {
		merged.EarlyStopWarmup = c.EarlyStopWarmup
	}
	if c.EarlyStopWindow > 0 {
		merged.EarlyStopWindow = c.EarlyStopWindow
	}
	if c.EarlyStopPatience > 0 {
		merged.EarlyStopPatience = c.EarlyStopPatience
	}
	if c.EarlyStopTolerance > 0 {
		merged.EarlyStopTolerance = c.EarlyStopTolerance
	}
	if c.MetricsWindow > 0 {
		merged.MetricsWindow = c.MetricsWindow
	}
	if c.StepEventStride > 0 {
		merged.StepEventStride = c.StepEventStride
	}
	if c.YieldEvery > 0 {
		merged.YieldEvery = c.YieldEvery
	}
	if c.Seed != 0 {
		merged.Seed = c.Seed
	}

	a := c.Agent
	if len(a.HiddenSizes) > 0 {
		merged.Agent.HiddenSizes = a.HiddenSizes
	}
	if a.LearningRate > 0 {
		merged.Agent.LearningRate = a.LearningRate
	}
	if a.Discount > 0 {
		merged.Agent.Discount = a.Discount
	}
	if a.Epsilon > 0 {
		merged.Agent.Epsilon = a.Epsilon
	}
	if a.EpsilonDecay > 0 {
		merged.Agent.EpsilonDecay = a.EpsilonDecay
	}
	if a.MinEpsilon > 0 {
		merged.Agent.MinEpsilon = a.MinEpsilon
	}
	if a.BatchSize > 0 {
		merged.Agent.BatchSize = a.BatchSize
	}
	if a.MinReplayCapacity > 0 {
		merged.Agent.MinReplayCapacity = a.MinReplayCapacity
	}
	if a.MaxReplayCapacity > 0 {
		merged.Agent.MaxReplayCapacity = a.MaxReplayCapacity
	}

	if len(c.Objectives) > 0 {
		merged.Objectives = c.Objectives
	}
	if !reflect.DeepEqual(c.Shaping, rocket.ShapingConfig{}) {
		merged.Shaping = c.Shaping
	}

	return merged
}

// LoadConfig reads a YAML configuration file. A missing path returns
// the zero Config so callers fall back to defaults.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("loadconfig: could not read %v: %v",
			path, err)
	}

	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("loadconfig: could not parse %v: %v",
			path, err)
	}
	return c, nil
}

// Build constructs the environment and agent pair for a merged
// configuration. It is the single factory used by both training runs
// and tests.
func Build(cfg Config) (environment.Environment, agent.Agent, error) {
	world := physics.NewSpaceWorld(physics.Config{})
	env := rocket.New(world, cfg.Shaping, cfg.Agent.Discount, cfg.Seed)

	layers := cfg.Agent.HiddenSizes
	biases := make([]bool, len(layers))
	activations := make([]*network.Activation, len(layers))
	for i := range layers {
		biases[i] = true
		activations[i] = network.ReLU()
	}

	agentCfg := deepq.Config{
		PolicyLayers:      layers,
		Biases:            biases,
		Activations:       activations,
		LearningRate:      cfg.Agent.LearningRate,
		Epsilon:           cfg.Agent.Epsilon,
		EpsilonDecay:      cfg.Agent.EpsilonDecay,
		MinEpsilon:        cfg.Agent.MinEpsilon,
		Discount:          cfg.Agent.Discount,
		BatchSize:         cfg.Agent.BatchSize,
		MinReplayCapacity: cfg.Agent.MinReplayCapacity,
		MaxReplayCapacity: cfg.Agent.MaxReplayCapacity,
	}

	agt, err := deepq.New(rocket.ObservationSize, environment.NumActions,
		agentCfg, cfg.Seed)
	if err != nil {
		return nil, nil, fmt.Errorf("build: %v", err)
	}
	return env, agt, nil
}
