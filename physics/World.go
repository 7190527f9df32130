// Package physics outlines the contract between the rocket environment and
// the physics world that integrates it, as well as a Box2D-backed
// implementation of that contract.
//
// The environment never reaches into the integrator. It issues Commands and
// reads back per-step snapshots of the vehicle and the reference bodies.
package physics

import "gonum.org/v1/gonum/spatial/r2"

// Command is the control input issued to the vehicle for one step. Thrust
// and Reverse are normalized thruster powers in [0, 1]. Rotation is a
// normalized torque command in [-1, 1], positive counter-clockwise.
type Command struct {
	Thrust   float64
	Reverse  float64
	Rotation float64
}

// Power returns the total normalized thruster power of the command, used
// for fuel accounting and fuel-proportional reward penalties.
func (c Command) Power() float64 {
	power := c.Thrust + c.Reverse
	if c.Rotation < 0 {
		power -= c.Rotation
	} else {
		power += c.Rotation
	}
	return power
}

// Body describes a reference body (planet, moon, target pad) in the world.
type Body struct {
	Name     string
	Position r2.Vec
	Mass     float64
	Radius   float64
}

// Vehicle is a per-step snapshot of the vehicle state. Orientation is in
// radians with 0 pointing along +Y; Fuel and Health are absolute levels,
// not fractions. ContactBody names the body the vehicle rests on and is
// empty when airborne.
type Vehicle struct {
	Position        r2.Vec
	Velocity        r2.Vec
	Orientation     float64
	AngularVelocity float64
	Fuel            float64
	Health          float64
	Landed          bool
	Destroyed       bool
	ContactBody     string
}

// Config describes the initial conditions of a world reset.
type Config struct {
	Position     r2.Vec
	Velocity     r2.Vec
	Orientation  float64
	FuelCapacity float64
	InfiniteFuel bool
	Bodies       []Body
}

// World is the physics collaborator consumed by the environment. Reset must
// be callable repeatedly; Step advances the integrator by dt seconds under
// the given command. Vehicle and Bodies return snapshots of the state after
// the most recent step.
type World interface {
	Reset(Config)
	Step(cmd Command, dt float64)
	Vehicle() Vehicle
	Bodies() []Body
}
