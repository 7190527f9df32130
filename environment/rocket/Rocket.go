// Package rocket provides the simulated rocket environment: a vehicle, a
// world of reference bodies and an objective wrapped behind the episodic
// reset/step contract.
package rocket

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/habib256/pocketcosmos-sub000/environment"
	"github.com/habib256/pocketcosmos-sub000/physics"
	"github.com/habib256/pocketcosmos-sub000/timestep"
)

// Episode status strings reported through TimeStep.Status.
const (
	StatusRunning     = "running"
	StatusComplete    = "episode already complete"
	StatusCrashed     = "crashed"
	StatusOutOfFuel   = "out of fuel"
	StatusStepLimit   = "step limit reached"
	StatusDestroyed   = "vehicle destroyed"
	successPrefix     = "success"
	defaultMaxSteps   = 1000
	defaultFuel       = 100.0
	defaultDt float64 = 1.0 / 30.0
)

// IsSuccess reports whether a status string denotes objective success.
func IsSuccess(status string) bool {
	return len(status) >= len(successPrefix) &&
		status[:len(successPrefix)] == successPrefix
}

// Rocket implements environment.Environment over a physics.World.
type Rocket struct {
	world   physics.World
	shaping ShapingConfig
	config  environment.EpisodeConfig

	discount  float64
	objective objective

	prevStep    timestep.TimeStep
	prevVehicle physics.Vehicle
	stepCount   int
	done        bool

	initialDistance float64

	rng distuv.Uniform
}

// New returns a Rocket environment on the given physics world. The world
// is reset on every call to Reset; the environment never steps it outside
// Step.
func New(world physics.World, shaping ShapingConfig, discount float64,
	seed uint64) *Rocket {
	src := rand.NewSource(seed)
	rng := distuv.Uniform{Min: -1.0, Max: 1.0, Src: src}

	return &Rocket{
		world:    world,
		shaping:  shaping,
		discount: discount,
		rng:      rng,
	}
}

// Reset reinitializes the vehicle, the world and the objective state for a
// new episode and returns the first timestep.
func (r *Rocket) Reset(config environment.EpisodeConfig) timestep.TimeStep {
	r.config = withDefaults(config)

	start := r.config.StartPosition
	if r.config.StartJitter > 0 {
		start.X += r.rng.Rand() * r.config.StartJitter
		start.Y += r.rng.Rand() * r.config.StartJitter
	}

	r.world.Reset(physics.Config{
		Position:     start,
		Velocity:     r.config.StartVelocity,
		Orientation:  r.config.StartOrientation,
		FuelCapacity: r.config.FuelCapacity,
		InfiniteFuel: r.config.InfiniteFuel,
		Bodies:       r.config.Bodies,
	})

	r.stepCount = 0
	r.done = false
	r.prevVehicle = r.world.Vehicle()

	r.objective = newObjective(r.config.Objective)
	r.initialDistance = r.distanceToTarget(r.prevVehicle)
	if !finitePositive(r.initialDistance) {
		r.initialDistance = 1.0
	}
	r.objective.reset(r, r.prevVehicle)

	obs := r.buildObservation(r.prevVehicle)
	r.prevStep = timestep.New(timestep.First, 0, r.discount, obs, 0,
		StatusRunning)
	return r.prevStep
}

// Step translates the action into a control command, advances the physics
// world by dt and computes the reward and termination for the resulting
// state. Stepping a finished episode returns the last observation with
// zero reward and never mutates the episode counters.
func (r *Rocket) Step(action environment.Action,
	dt float64) (timestep.TimeStep, bool) {
	if r.done {
		last := r.prevStep
		last.Reward = 0
		last.Status = StatusComplete
		return last, true
	}
	if dt <= 0 {
		dt = defaultDt
	}

	command := commandFor(action)
	prev := r.prevVehicle

	r.world.Step(command, dt)
	cur := r.world.Vehicle()
	r.stepCount++

	reward := -r.shaping.StepPenalty
	if !r.config.InfiniteFuel {
		reward -= r.shaping.FuelPenaltyScale * command.Power()
	}
	reward += r.objective.reward(r, prev, cur)

	done := false
	status := StatusRunning

	crashed := cur.Destroyed || r.anticipatedCrash(cur)
	if ok, successStatus := r.objective.success(r, cur); ok {
		done = true
		status = successStatus
		reward += r.shaping.SuccessBonus
	} else if crashed {
		done = true
		status = StatusCrashed
		if cur.Destroyed {
			status = StatusDestroyed
		}
		if !r.objective.collisionIsSuccess() {
			reward -= r.shaping.CollisionPenalty
		}
	} else if !r.config.InfiniteFuel && cur.Fuel <= 0 {
		done = true
		status = StatusOutOfFuel
	} else if r.stepCount >= r.config.MaxSteps {
		done = true
		status = StatusStepLimit
	}

	stepType := timestep.Mid
	if done {
		stepType = timestep.Last
	}

	obs := r.buildObservation(cur)
	step := timestep.New(stepType, reward, r.discount, obs, r.stepCount,
		status)

	r.prevVehicle = cur
	r.prevStep = step
	r.done = done
	return step, done
}

// CurrentTimeStep returns the timestep produced by the most recent Reset
// or Step.
func (r *Rocket) CurrentTimeStep() timestep.TimeStep {
	return r.prevStep
}

// Vehicle returns the raw vehicle state after the most recent Reset or
// Step.
func (r *Rocket) Vehicle() physics.Vehicle {
	return r.prevVehicle
}

// Bodies returns the reference bodies of the current episode.
func (r *Rocket) Bodies() []physics.Body {
	return r.world.Bodies()
}

// ObservationSpec returns the specification of the feature vector.
func (r *Rocket) ObservationSpec() environment.Spec {
	shape := mat.NewVecDense(ObservationSize, nil)

	lower := mat.NewVecDense(ObservationSize, []float64{
		-1, -1, -1, -1, -1, -1, 0, -1, 0, 0,
	})
	upper := mat.NewVecDense(ObservationSize, []float64{
		1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
	})

	return environment.NewSpec(shape, environment.ObservationSpec, lower,
		upper, environment.Continuous)
}

// ActionSpec returns the specification of the discrete action set.
func (r *Rocket) ActionSpec() environment.Spec {
	shape := mat.NewVecDense(1, nil)
	lower := mat.NewVecDense(1, []float64{0})
	upper := mat.NewVecDense(1, []float64{float64(environment.NumActions - 1)})

	return environment.NewSpec(shape, environment.ActionSpec, lower, upper,
		environment.Discrete)
}

// commandFor translates a discrete action into thruster commands.
func commandFor(action environment.Action) physics.Command {
	switch action {
	case environment.ThrustForward:
		return physics.Command{Thrust: 1.0}
	case environment.ThrustBackward:
		return physics.Command{Reverse: 1.0}
	case environment.RotateLeft:
		return physics.Command{Rotation: 1.0}
	case environment.RotateRight:
		return physics.Command{Rotation: -1.0}
	default:
		return physics.Command{}
	}
}

// targetPoint returns the point the current objective steers toward.
func (r *Rocket) targetPoint() (r2.Vec, bool) {
	switch r.config.Objective {
	case environment.Navigate, environment.Explore:
		return r.config.TargetPosition, true
	default:
		for _, b := range r.world.Bodies() {
			if b.Name == r.config.TargetBody {
				return b.Position, true
			}
		}
		return r2.Vec{}, false
	}
}

// targetBody returns the reference body named by the episode config.
func (r *Rocket) targetBody() (physics.Body, bool) {
	for _, b := range r.world.Bodies() {
		if b.Name == r.config.TargetBody {
			return b, true
		}
	}
	return physics.Body{}, false
}

// nearestBody returns the reference body closest to the given position.
func (r *Rocket) nearestBody(pos r2.Vec) (physics.Body, bool) {
	bodies := r.world.Bodies()
	if len(bodies) == 0 {
		return physics.Body{}, false
	}

	nearest := bodies[0]
	nearestDist := math.Hypot(bodies[0].Position.X-pos.X,
		bodies[0].Position.Y-pos.Y)
	for _, b := range bodies[1:] {
		d := math.Hypot(b.Position.X-pos.X, b.Position.Y-pos.Y)
		if d < nearestDist {
			nearest = b
			nearestDist = d
		}
	}
	return nearest, true
}

// distanceToTarget returns the distance from the vehicle to the objective
// target point. Returns +Inf when the objective has no resolvable target.
func (r *Rocket) distanceToTarget(v physics.Vehicle) float64 {
	target, ok := r.targetPoint()
	if !ok {
		return math.Inf(1)
	}
	return math.Hypot(target.X-v.Position.X, target.Y-v.Position.Y)
}

// surfaceDistanceToTarget returns the distance from the vehicle to the
// surface of the target body.
func (r *Rocket) surfaceDistanceToTarget(v physics.Vehicle) (float64, bool) {
	body, ok := r.targetBody()
	if !ok {
		return 0, false
	}
	center := math.Hypot(body.Position.X-v.Position.X,
		body.Position.Y-v.Position.Y)
	if !finite(center) {
		return 0, false
	}
	return math.Max(0, center-body.Radius-physics.VehicleRadius), true
}

// altitudeAboveTarget returns the vehicle's altitude above the target
// body's surface.
func (r *Rocket) altitudeAboveTarget(v physics.Vehicle) (float64, bool) {
	return r.surfaceDistanceToTarget(v)
}

// headingReward is the heading-alignment shaping: the dot product between
// the vehicle heading and the direction to the target, plus a bonus for a
// positive radial closing velocity.
func (r *Rocket) headingReward(v physics.Vehicle) float64 {
	target, ok := r.targetPoint()
	if !ok {
		return 0
	}

	dx := target.X - v.Position.X
	dy := target.Y - v.Position.Y
	dist := math.Hypot(dx, dy)
	if !finitePositive(dist) {
		return 0
	}
	dirX, dirY := dx/dist, dy/dist

	tipX := -math.Sin(v.Orientation)
	tipY := math.Cos(v.Orientation)

	reward := r.shaping.HeadingScale * (tipX*dirX + tipY*dirY)

	closing := v.Velocity.X*dirX + v.Velocity.Y*dirY
	if closing > 0 {
		reward += r.shaping.ClosingBonus *
			math.Min(1.0, closing/r.shaping.VelocityScale)
	}
	return reward
}

// anticipatedCrash short-circuits termination when the vehicle is on a
// closing trajectory within a small proximity band of a body at high
// relative speed, instead of waiting for the integrator to resolve the
// collision. It never fires during the start-of-episode grace period or
// while the vehicle is at rest or already landed.
func (r *Rocket) anticipatedCrash(v physics.Vehicle) bool {
	if r.stepCount <= r.shaping.CrashGraceSteps || v.Landed {
		return false
	}
	speed := math.Hypot(v.Velocity.X, v.Velocity.Y)
	if !finite(speed) || speed <= r.shaping.RestSpeed {
		return false
	}

	for _, b := range r.world.Bodies() {
		dx := b.Position.X - v.Position.X
		dy := b.Position.Y - v.Position.Y
		dist := math.Hypot(dx, dy)
		if !finitePositive(dist) {
			// Degenerate geometry: treat as no crash detected
			continue
		}

		altitude := dist - b.Radius - physics.VehicleRadius
		if altitude > r.shaping.CrashBand {
			continue
		}

		closing := (v.Velocity.X*dx + v.Velocity.Y*dy) / dist
		if closing > r.shaping.CrashSpeed {
			return true
		}
	}
	return false
}

// withDefaults fills the zero-valued fields of an episode config.
func withDefaults(c environment.EpisodeConfig) environment.EpisodeConfig {
	if c.Objective == "" {
		c.Objective = environment.Navigate
	}
	if c.MaxSteps <= 0 {
		c.MaxSteps = defaultMaxSteps
	}
	if c.FuelCapacity <= 0 {
		c.FuelCapacity = defaultFuel
	}
	if c.SuccessRadius <= 0 {
		c.SuccessRadius = 10.0
	}
	if c.OrbitHoldSteps <= 0 {
		c.OrbitHoldSteps = 50
	}
	if c.LandingMaxSpeed <= 0 {
		c.LandingMaxSpeed = physics.LandingSpeed
	}
	if c.ImpactRadius <= 0 {
		c.ImpactRadius = 25.0
	}
	if c.ExploreCellSize <= 0 {
		c.ExploreCellSize = 100.0
	}
	if c.ExploreMinCells <= 0 {
		c.ExploreMinCells = 10
	}
	return c
}
