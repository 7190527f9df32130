package physics

import (
	"math"

	"github.com/ByteArena/box2d"
	"gonum.org/v1/gonum/spatial/r2"
)

const (
	// Gravity between the vehicle and reference bodies is computed per
	// step from an inverse-square law with a game-scaled constant. Body
	// masses are tuned against this constant, not against SI units.
	GravitationalConstant float64 = 6.674e-2

	MainEnginePower  float64 = 25.0
	RetroEnginePower float64 = 10.0
	RotationTorque   float64 = 3.0

	VehicleRadius  float64 = 1.0
	VehicleDensity float64 = 5.0

	FullHealth float64 = 100.0

	// Contacts slower than LandingSpeed leave the hull intact and count
	// as a landing. Faster contacts damage the hull proportionally.
	LandingSpeed   float64 = 4.0
	DamagePerSpeed float64 = 12.0

	// Fuel burned per second at full power, per thruster group.
	MainBurnRate     float64 = 1.2
	RetroBurnRate    float64 = 0.6
	RotationBurnRate float64 = 0.15
)

// contactDetector listens for contacts between the vehicle and reference
// bodies, deriving landed/destroyed state from the impact speed.
type contactDetector struct {
	world *SpaceWorld
}

func newContactDetector(w *SpaceWorld) *contactDetector {
	return &contactDetector{w}
}

func (c *contactDetector) BeginContact(contact box2d.B2ContactInterface) {
	w := c.world
	var other *box2d.B2Body
	if w.vehicle == contact.GetFixtureA().GetBody() {
		other = contact.GetFixtureB().GetBody()
	} else if w.vehicle == contact.GetFixtureB().GetBody() {
		other = contact.GetFixtureA().GetBody()
	} else {
		return
	}

	name, ok := w.bodyNames[other]
	if !ok {
		return
	}

	vel := w.vehicle.GetLinearVelocity()
	speed := math.Hypot(vel.X, vel.Y)
	if speed > LandingSpeed {
		w.health -= (speed - LandingSpeed) * DamagePerSpeed
		if w.health <= 0 {
			w.health = 0
			w.destroyed = true
		}
	}
	if !w.destroyed {
		w.landed = true
		w.contactBody = name
	}
}

func (c *contactDetector) EndContact(contact box2d.B2ContactInterface) {
	w := c.world
	if w.vehicle != contact.GetFixtureA().GetBody() &&
		w.vehicle != contact.GetFixtureB().GetBody() {
		return
	}
	w.landed = false
	w.contactBody = ""
}

func (c *contactDetector) PreSolve(contact box2d.B2ContactInterface,
	oldManifold box2d.B2Manifold) {
}

func (c *contactDetector) PostSolve(contact box2d.B2ContactInterface,
	impulse *box2d.B2ContactImpulse) {
}

// SpaceWorld implements World on top of Box2D. The Box2D world carries no
// ambient gravity; the pairwise pull of each reference body is applied to
// the vehicle by hand at the top of every step.
type SpaceWorld struct {
	world box2d.B2World

	vehicle   *box2d.B2Body
	bodies    []*box2d.B2Body
	bodyNames map[*box2d.B2Body]string
	refBodies []Body

	fuel         float64
	fuelCapacity float64
	infiniteFuel bool
	health       float64

	landed      bool
	destroyed   bool
	contactBody string
}

// NewSpaceWorld returns a World backed by a Box2D integrator, reset to the
// given initial conditions.
func NewSpaceWorld(config Config) *SpaceWorld {
	w := &SpaceWorld{}
	w.Reset(config)
	return w
}

// Reset destroys all bodies from the previous episode and rebuilds the
// world from config.
func (w *SpaceWorld) Reset(config Config) {
	w.destroy()

	w.world = box2d.MakeB2World(box2d.MakeB2Vec2(0, 0))
	w.world.SetContactListener(newContactDetector(w))

	w.bodyNames = make(map[*box2d.B2Body]string, len(config.Bodies))
	w.bodies = make([]*box2d.B2Body, 0, len(config.Bodies))
	w.refBodies = make([]Body, len(config.Bodies))
	copy(w.refBodies, config.Bodies)

	for _, b := range config.Bodies {
		def := box2d.NewB2BodyDef()
		def.Type = box2d.B2BodyType.B2_staticBody
		def.Position = box2d.MakeB2Vec2(b.Position.X, b.Position.Y)

		body := w.world.CreateBody(def)

		shape := box2d.NewB2CircleShape()
		shape.M_radius = b.Radius

		fix := box2d.MakeB2FixtureDef()
		fix.Shape = shape
		fix.Friction = 0.4
		body.CreateFixtureFromDef(&fix)

		w.bodies = append(w.bodies, body)
		w.bodyNames[body] = b.Name
	}

	def := box2d.NewB2BodyDef()
	def.Type = box2d.B2BodyType.B2_dynamicBody
	def.Position = box2d.MakeB2Vec2(config.Position.X, config.Position.Y)
	def.Angle = config.Orientation

	w.vehicle = w.world.CreateBody(def)

	shape := box2d.NewB2CircleShape()
	shape.M_radius = VehicleRadius

	fix := box2d.MakeB2FixtureDef()
	fix.Shape = shape
	fix.Density = VehicleDensity
	fix.Friction = 0.4
	fix.Restitution = 0.0
	w.vehicle.CreateFixtureFromDef(&fix)

	w.vehicle.SetLinearVelocity(box2d.MakeB2Vec2(config.Velocity.X,
		config.Velocity.Y))

	w.fuelCapacity = config.FuelCapacity
	w.fuel = config.FuelCapacity
	w.infiniteFuel = config.InfiniteFuel
	w.health = FullHealth
	w.landed = false
	w.destroyed = false
	w.contactBody = ""
}

func (w *SpaceWorld) destroy() {
	if w.vehicle == nil {
		return
	}
	w.world.SetContactListener(nil)
	w.world.DestroyBody(w.vehicle)
	w.vehicle = nil
	for _, b := range w.bodies {
		w.world.DestroyBody(b)
	}
	w.bodies = nil
	w.bodyNames = nil
}

// Step applies the command, the gravitational pull of each reference body,
// and advances the integrator by dt seconds.
func (w *SpaceWorld) Step(command Command, dt float64) {
	if w.destroyed {
		w.world.Step(dt, 8, 3)
		return
	}

	// Gravity from each reference body
	pos := w.vehicle.GetPosition()
	mass := w.vehicle.GetMass()
	for _, b := range w.refBodies {
		dx := b.Position.X - pos.X
		dy := b.Position.Y - pos.Y
		distSq := dx*dx + dy*dy
		if distSq <= 0 || math.IsInf(distSq, 0) || math.IsNaN(distSq) {
			continue
		}
		dist := math.Sqrt(distSq)
		force := GravitationalConstant * b.Mass * mass / distSq
		w.vehicle.ApplyForceToCenter(
			box2d.MakeB2Vec2(force*dx/dist, force*dy/dist), true)
	}

	command = w.clampCommand(command)
	if w.fuel > 0 || w.infiniteFuel {
		angle := w.vehicle.GetAngle()
		tip := [2]float64{-math.Sin(angle), math.Cos(angle)}

		if command.Thrust > 0 {
			w.vehicle.ApplyForceToCenter(box2d.MakeB2Vec2(
				tip[0]*MainEnginePower*command.Thrust,
				tip[1]*MainEnginePower*command.Thrust), true)
		}
		if command.Reverse > 0 {
			w.vehicle.ApplyForceToCenter(box2d.MakeB2Vec2(
				-tip[0]*RetroEnginePower*command.Reverse,
				-tip[1]*RetroEnginePower*command.Reverse), true)
		}
		if command.Rotation != 0 {
			w.vehicle.ApplyTorque(RotationTorque*command.Rotation, true)
		}

		if !w.infiniteFuel {
			burn := command.Thrust*MainBurnRate +
				command.Reverse*RetroBurnRate +
				math.Abs(command.Rotation)*RotationBurnRate
			w.fuel -= burn * dt
			if w.fuel < 0 {
				w.fuel = 0
			}
		}
	}

	w.world.Step(dt, 8, 3)
}

func (w *SpaceWorld) clampCommand(c Command) Command {
	c.Thrust = math.Max(0, math.Min(1, c.Thrust))
	c.Reverse = math.Max(0, math.Min(1, c.Reverse))
	c.Rotation = math.Max(-1, math.Min(1, c.Rotation))
	return c
}

// Vehicle returns a snapshot of the vehicle state after the last step.
func (w *SpaceWorld) Vehicle() Vehicle {
	pos := w.vehicle.GetPosition()
	vel := w.vehicle.GetLinearVelocity()

	return Vehicle{
		Position:        r2.Vec{X: pos.X, Y: pos.Y},
		Velocity:        r2.Vec{X: vel.X, Y: vel.Y},
		Orientation:     w.vehicle.GetAngle(),
		AngularVelocity: w.vehicle.GetAngularVelocity(),
		Fuel:            w.fuel,
		Health:          w.health,
		Landed:          w.landed,
		Destroyed:       w.destroyed,
		ContactBody:     w.contactBody,
	}
}

// Bodies returns the reference bodies of the current world.
func (w *SpaceWorld) Bodies() []Body {
	bodies := make([]Body, len(w.refBodies))
	copy(bodies, w.refBodies)
	return bodies
}

// FuelCapacity returns the tank capacity of the current episode.
func (w *SpaceWorld) FuelCapacity() float64 {
	return w.fuelCapacity
}
