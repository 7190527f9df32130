// Package environment outlines the interfaces and structs needed to
// implement concrete environments
package environment

import (
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/habib256/pocketcosmos-sub000/physics"
	"github.com/habib256/pocketcosmos-sub000/timestep"
)

// Action is one of the discrete control actions available to the agent.
// Actions are mutually exclusive; the value network outputs one estimate
// per action.
type Action int

const (
	NoOp Action = iota
	ThrustForward
	ThrustBackward
	RotateLeft
	RotateRight

	NumActions int = 5
)

func (a Action) String() string {
	switch a {
	case ThrustForward:
		return "thrust-forward"
	case ThrustBackward:
		return "thrust-backward"
	case RotateLeft:
		return "rotate-left"
	case RotateRight:
		return "rotate-right"
	default:
		return "no-op"
	}
}

// ObjectiveKind names a goal configuration that parameterizes reward and
// termination logic.
type ObjectiveKind string

const (
	Navigate ObjectiveKind = "navigate"
	Orbit    ObjectiveKind = "orbit"
	Land     ObjectiveKind = "land"
	Impact   ObjectiveKind = "impact"
	Explore  ObjectiveKind = "explore"
)

// EpisodeConfig describes one episode: the objective, its parameters, the
// initial vehicle state, and the world contents.
type EpisodeConfig struct {
	Objective ObjectiveKind `yaml:"objective"`

	// TargetBody names the reference body for orbit, land and impact
	// objectives. TargetPosition is the navigation goal.
	TargetBody     string  `yaml:"targetBody"`
	TargetPosition r2.Vec  `yaml:"targetPosition"`
	SuccessRadius  float64 `yaml:"successRadius"`

	OrbitAltitude     float64 `yaml:"orbitAltitude"`
	OrbitAltitudeBand float64 `yaml:"orbitAltitudeBand"`
	OrbitSpeed        float64 `yaml:"orbitSpeed"`
	OrbitSpeedBand    float64 `yaml:"orbitSpeedBand"`
	OrbitHoldSteps    int     `yaml:"orbitHoldSteps"`

	LandingMaxSpeed float64 `yaml:"landingMaxSpeed"`
	ImpactRadius    float64 `yaml:"impactRadius"`

	ExploreCellSize float64 `yaml:"exploreCellSize"`
	ExploreMinCells int     `yaml:"exploreMinCells"`

	MaxSteps     int     `yaml:"maxSteps"`
	FuelCapacity float64 `yaml:"fuelCapacity"`
	InfiniteFuel bool    `yaml:"infiniteFuel"`

	StartPosition    r2.Vec  `yaml:"startPosition"`
	StartVelocity    r2.Vec  `yaml:"startVelocity"`
	StartOrientation float64 `yaml:"startOrientation"`

	// StartJitter is the half-width of the uniform perturbation applied
	// to the start position on every reset.
	StartJitter float64 `yaml:"startJitter"`

	Bodies []physics.Body `yaml:"-"`
}

// Environment implements a simulated environment wrapping a vehicle, a
// world and an objective behind the episodic reset/step contract.
//
// Reset must be callable repeatedly without leaking state between
// episodes. Step after the episode has ended is a no-op returning the last
// observation with zero reward; it never panics.
//
// Vehicle and Bodies expose raw world state for telemetry consumers such
// as step snapshots; learning code reads only the observation vector.
type Environment interface {
	Reset(EpisodeConfig) timestep.TimeStep
	Step(action Action, dt float64) (timestep.TimeStep, bool)
	ObservationSpec() Spec
	ActionSpec() Spec
	CurrentTimeStep() timestep.TimeStep
	Vehicle() physics.Vehicle
	Bodies() []physics.Body
}
