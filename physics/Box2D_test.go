package physics

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r2"
)

var _ World = (*SpaceWorld)(nil)

func TestResetInitializesVehicle(t *testing.T) {
	w := NewSpaceWorld(Config{
		Position:     r2.Vec{X: 10, Y: 20},
		Velocity:     r2.Vec{X: 1, Y: -1},
		Orientation:  0.5,
		FuelCapacity: 80,
		Bodies: []Body{
			{Name: "planet", Position: r2.Vec{X: 0, Y: -500}, Mass: 1e5,
				Radius: 100},
		},
	})

	v := w.Vehicle()
	if v.Position.X != 10 || v.Position.Y != 20 {
		t.Errorf("unexpected position %+v", v.Position)
	}
	if v.Velocity.X != 1 || v.Velocity.Y != -1 {
		t.Errorf("unexpected velocity %+v", v.Velocity)
	}
	if v.Orientation != 0.5 {
		t.Errorf("unexpected orientation %v", v.Orientation)
	}
	if v.Fuel != 80 {
		t.Errorf("unexpected fuel %v", v.Fuel)
	}
	if v.Health != FullHealth {
		t.Errorf("unexpected health %v", v.Health)
	}
	if v.Landed || v.Destroyed {
		t.Errorf("fresh vehicle should be neither landed nor destroyed")
	}
	if len(w.Bodies()) != 1 || w.Bodies()[0].Name != "planet" {
		t.Errorf("unexpected bodies %+v", w.Bodies())
	}
}

func TestThrustAcceleratesAlongHeading(t *testing.T) {
	// Orientation zero points the tip along +Y
	w := NewSpaceWorld(Config{FuelCapacity: 100})

	for i := 0; i < 10; i++ {
		w.Step(Command{Thrust: 1}, 1.0/30.0)
	}

	v := w.Vehicle()
	if v.Velocity.Y <= 0 {
		t.Errorf("thrust should accelerate along +Y, velocity %+v",
			v.Velocity)
	}
	if math.Abs(v.Velocity.X) > 1e-9 {
		t.Errorf("no lateral force applied, yet X velocity is %v",
			v.Velocity.X)
	}
	if v.Fuel >= 100 {
		t.Errorf("thrusting should burn fuel, fuel still %v", v.Fuel)
	}
}

func TestRotationTorqueSpinsVehicle(t *testing.T) {
	w := NewSpaceWorld(Config{FuelCapacity: 100})

	for i := 0; i < 10; i++ {
		w.Step(Command{Rotation: 1}, 1.0/30.0)
	}
	if w.Vehicle().AngularVelocity <= 0 {
		t.Errorf("positive torque should spin the vehicle, angular "+
			"velocity %v", w.Vehicle().AngularVelocity)
	}
}

func TestGravityPullsTowardBody(t *testing.T) {
	w := NewSpaceWorld(Config{
		Position:     r2.Vec{X: 0, Y: 200},
		FuelCapacity: 100,
		Bodies: []Body{
			{Name: "planet", Position: r2.Vec{X: 0, Y: 0}, Mass: 1e6,
				Radius: 50},
		},
	})

	for i := 0; i < 30; i++ {
		w.Step(Command{}, 1.0/30.0)
	}
	if w.Vehicle().Velocity.Y >= 0 {
		t.Errorf("gravity should pull toward the body, velocity %+v",
			w.Vehicle().Velocity)
	}
}

func TestFuelExhaustionDisablesThrusters(t *testing.T) {
	w := NewSpaceWorld(Config{FuelCapacity: 0.001})

	// Burn through the tank
	for i := 0; i < 5; i++ {
		w.Step(Command{Thrust: 1}, 1.0)
	}
	if w.Vehicle().Fuel != 0 {
		t.Fatalf("fuel should be exhausted, have %v", w.Vehicle().Fuel)
	}

	before := w.Vehicle().Velocity.Y
	w.Step(Command{Thrust: 1}, 1.0)
	after := w.Vehicle().Velocity.Y
	if after > before+1e-9 {
		t.Errorf("empty tank must not accelerate the vehicle: %v -> %v",
			before, after)
	}
}

func TestInfiniteFuelNeverDrains(t *testing.T) {
	w := NewSpaceWorld(Config{FuelCapacity: 1, InfiniteFuel: true})

	for i := 0; i < 100; i++ {
		w.Step(Command{Thrust: 1, Rotation: 1}, 1.0)
	}
	if w.Vehicle().Fuel != 1 {
		t.Errorf("infinite fuel should never drain, have %v",
			w.Vehicle().Fuel)
	}
}

func TestCommandClamping(t *testing.T) {
	w := NewSpaceWorld(Config{FuelCapacity: 100})

	c := w.clampCommand(Command{Thrust: 4, Reverse: -3, Rotation: -9})
	if c.Thrust != 1 {
		t.Errorf("thrust should clamp to 1, have %v", c.Thrust)
	}
	if c.Reverse != 0 {
		t.Errorf("reverse should clamp to 0, have %v", c.Reverse)
	}
	if c.Rotation != -1 {
		t.Errorf("rotation should clamp to -1, have %v", c.Rotation)
	}
}

func TestResetClearsPreviousEpisode(t *testing.T) {
	w := NewSpaceWorld(Config{
		Position:     r2.Vec{X: 0, Y: 0},
		Velocity:     r2.Vec{X: 100, Y: 0},
		FuelCapacity: 100,
	})
	for i := 0; i < 10; i++ {
		w.Step(Command{Thrust: 1}, 1.0/30.0)
	}

	w.Reset(Config{Position: r2.Vec{X: 5, Y: 5}, FuelCapacity: 50})
	v := w.Vehicle()
	if v.Position.X != 5 || v.Position.Y != 5 {
		t.Errorf("reset did not reposition the vehicle: %+v", v.Position)
	}
	if v.Velocity.X != 0 || v.Velocity.Y != 0 {
		t.Errorf("reset did not clear velocity: %+v", v.Velocity)
	}
	if v.Fuel != 50 {
		t.Errorf("reset did not refill the tank: %v", v.Fuel)
	}
}
