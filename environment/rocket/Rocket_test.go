package rocket

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/habib256/pocketcosmos-sub000/environment"
	"github.com/habib256/pocketcosmos-sub000/physics"
	"github.com/habib256/pocketcosmos-sub000/timestep"
)

var (
	_ physics.World           = (*fakeWorld)(nil)
	_ environment.Environment = (*Rocket)(nil)
)

// fakeWorld is a scripted physics.World: every Step applies the script
// to the vehicle state, ignoring real dynamics. Tests use it to place
// the vehicle exactly where a property needs it.
type fakeWorld struct {
	vehicle physics.Vehicle
	bodies  []physics.Body
	script  func(v *physics.Vehicle, cmd physics.Command, dt float64)
}

func (w *fakeWorld) Reset(c physics.Config) {
	w.vehicle = physics.Vehicle{
		Position:    c.Position,
		Velocity:    c.Velocity,
		Orientation: c.Orientation,
		Fuel:        c.FuelCapacity,
		Health:      physics.FullHealth,
	}
	w.bodies = c.Bodies
}

func (w *fakeWorld) Step(cmd physics.Command, dt float64) {
	if w.script != nil {
		w.script(&w.vehicle, cmd, dt)
	}
}

func (w *fakeWorld) Vehicle() physics.Vehicle { return w.vehicle }

func (w *fakeWorld) Bodies() []physics.Body { return w.bodies }

func newTestRocket(w physics.World) *Rocket {
	return New(w, DefaultShaping(), 0.99, 1)
}

func TestObservationShapeAndBounds(t *testing.T) {
	world := &fakeWorld{}
	env := newTestRocket(world)

	step := env.Reset(environment.EpisodeConfig{
		Objective:      environment.Navigate,
		TargetPosition: r2.Vec{X: 500, Y: 500},
		StartPosition:  r2.Vec{X: 0, Y: 0},
		StartVelocity:  r2.Vec{X: 200, Y: -200},
		Bodies: []physics.Body{
			{Name: "planet", Position: r2.Vec{X: 0, Y: -300}, Mass: 1e5,
				Radius: 100},
		},
	})

	if step.Observation.Len() != ObservationSize {
		t.Fatalf("observation length: want %d, have %d", ObservationSize,
			step.Observation.Len())
	}
	for i := 0; i < step.Observation.Len(); i++ {
		f := step.Observation.AtVec(i)
		if math.IsNaN(f) || f < -1 || f > 1 {
			t.Errorf("feature %d out of bounds: %v", i, f)
		}
	}
	for _, i := range []int{6, 8, 9} {
		if f := step.Observation.AtVec(i); f < 0 {
			t.Errorf("feature %d should be non-negative, have %v", i, f)
		}
	}
}

func TestObservationZeroedOnNonFiniteState(t *testing.T) {
	world := &fakeWorld{
		script: func(v *physics.Vehicle, cmd physics.Command, dt float64) {
			v.Position.X = math.NaN()
			v.Velocity.Y = math.Inf(1)
		},
	}
	env := newTestRocket(world)
	env.Reset(environment.EpisodeConfig{
		Objective:      environment.Navigate,
		TargetPosition: r2.Vec{X: 100, Y: 0},
	})

	step, _ := env.Step(environment.NoOp, 0)
	for i := 0; i < step.Observation.Len(); i++ {
		if f := step.Observation.AtVec(i); f != 0 {
			t.Errorf("feature %d should be zeroed, have %v", i, f)
		}
	}
}

func TestNavigationSuccessScenario(t *testing.T) {
	const speed = 3000.0
	world := &fakeWorld{}
	world.script = func(v *physics.Vehicle, cmd physics.Command,
		dt float64) {
		// Move straight toward the target at constant speed
		dx := 100000.0 - v.Position.X
		dy := 100000.0 - v.Position.Y
		dist := math.Hypot(dx, dy)
		if dist > 0 {
			v.Position.X += speed * dx / dist
			v.Position.Y += speed * dy / dist
		}
	}

	env := newTestRocket(world)
	step := env.Reset(environment.EpisodeConfig{
		Objective:      environment.Navigate,
		TargetPosition: r2.Vec{X: 100000, Y: 100000},
		SuccessRadius:  5000,
		StartPosition:  r2.Vec{X: 0, Y: 0},
		InfiniteFuel:   true,
	})
	if !step.First() {
		t.Fatal("reset should return a First timestep")
	}

	done := false
	for i := 0; i < 1000 && !done; i++ {
		step, done = env.Step(environment.NoOp, 0)
	}

	if !done {
		t.Fatal("episode never terminated while closing on the target")
	}
	if !IsSuccess(step.Status) {
		t.Errorf("expected success status, have %q", step.Status)
	}
	if !step.Last() {
		t.Error("terminal timestep should be Last")
	}
}

func TestOrbitHoldCountBoundary(t *testing.T) {
	const holdSteps = 3
	world := &fakeWorld{}
	env := newTestRocket(world)

	env.Reset(environment.EpisodeConfig{
		Objective:         environment.Orbit,
		TargetBody:        "planet",
		OrbitAltitude:     50,
		OrbitAltitudeBand: 10,
		OrbitSpeed:        10,
		OrbitSpeedBand:    5,
		OrbitHoldSteps:    holdSteps,
		// Altitude 151 - 100 - 1 = 50, speed 10: both bands hold
		StartPosition: r2.Vec{X: 0, Y: 151},
		StartVelocity: r2.Vec{X: 10, Y: 0},
		InfiniteFuel:  true,
		Bodies: []physics.Body{
			{Name: "planet", Position: r2.Vec{X: 0, Y: 0}, Mass: 1e5,
				Radius: 100},
		},
	})

	for i := 1; i < holdSteps; i++ {
		step, done := env.Step(environment.NoOp, 0)
		if done {
			t.Fatalf("episode terminated after holding only %d steps: %q",
				i, step.Status)
		}
	}

	step, done := env.Step(environment.NoOp, 0)
	if !done {
		t.Fatal("episode should terminate once the hold count is reached")
	}
	if !IsSuccess(step.Status) {
		t.Errorf("expected success status, have %q", step.Status)
	}
}

func TestInfiniteFuelSuppressesFuelExhaustion(t *testing.T) {
	drain := func(v *physics.Vehicle, cmd physics.Command, dt float64) {
		v.Fuel -= 50
	}

	// Finite fuel terminates once the tank is empty
	world := &fakeWorld{script: drain}
	env := newTestRocket(world)
	env.Reset(environment.EpisodeConfig{
		Objective:      environment.Navigate,
		TargetPosition: r2.Vec{X: 1e6, Y: 0},
		FuelCapacity:   100,
	})

	var step timestep.TimeStep
	done := false
	steps := 0
	for !done && steps < 10 {
		step, done = env.Step(environment.NoOp, 0)
		steps++
	}
	if !done || step.Status != StatusOutOfFuel {
		t.Errorf("expected fuel exhaustion, done=%v status=%q", done,
			step.Status)
	}

	// Infinite fuel must run well past that point
	world = &fakeWorld{script: drain}
	env = newTestRocket(world)
	env.Reset(environment.EpisodeConfig{
		Objective:      environment.Navigate,
		TargetPosition: r2.Vec{X: 1e6, Y: 0},
		FuelCapacity:   100,
		InfiniteFuel:   true,
	})

	for i := 0; i < 30; i++ {
		step, done = env.Step(environment.NoOp, 0)
		if done {
			t.Fatalf("infinite-fuel episode terminated early with %q",
				step.Status)
		}
	}
}

func TestStepAfterDoneIsNoOp(t *testing.T) {
	world := &fakeWorld{
		script: func(v *physics.Vehicle, cmd physics.Command, dt float64) {
			v.Fuel = 0
		},
	}
	env := newTestRocket(world)
	env.Reset(environment.EpisodeConfig{
		Objective:      environment.Navigate,
		TargetPosition: r2.Vec{X: 1e6, Y: 0},
		FuelCapacity:   100,
	})

	step, done := env.Step(environment.NoOp, 0)
	if !done {
		t.Fatal("expected episode to terminate on fuel exhaustion")
	}
	number := step.Number

	again, stillDone := env.Step(environment.ThrustForward, 0)
	if !stillDone {
		t.Error("done should remain true after termination")
	}
	if again.Reward != 0 {
		t.Errorf("post-termination reward should be 0, have %v",
			again.Reward)
	}
	if again.Status != StatusComplete {
		t.Errorf("post-termination status should be %q, have %q",
			StatusComplete, again.Status)
	}
	if again.Number != number {
		t.Errorf("episode counters mutated after done: %d -> %d", number,
			again.Number)
	}
}

func TestAnticipatedCrashRespectsGracePeriod(t *testing.T) {
	shaping := DefaultShaping()
	world := &fakeWorld{}
	env := New(world, shaping, 0.99, 1)

	// Altitude 2 with closing speed 20: inside the crash band, above the
	// crash speed. The vehicle never actually moves.
	env.Reset(environment.EpisodeConfig{
		Objective:      environment.Navigate,
		TargetPosition: r2.Vec{X: 1e6, Y: 0},
		StartPosition:  r2.Vec{X: 0, Y: 0},
		StartVelocity:  r2.Vec{X: 0, Y: -20},
		InfiniteFuel:   true,
		Bodies: []physics.Body{
			{Name: "planet", Position: r2.Vec{X: 0, Y: -103}, Mass: 1e5,
				Radius: 100},
		},
	})

	for i := 1; i <= shaping.CrashGraceSteps; i++ {
		step, done := env.Step(environment.NoOp, 0)
		if done {
			t.Fatalf("crash fired during grace period at step %d: %q", i,
				step.Status)
		}
	}

	step, done := env.Step(environment.NoOp, 0)
	if !done {
		t.Fatal("anticipated crash should fire after the grace period")
	}
	if step.Status != StatusCrashed {
		t.Errorf("expected status %q, have %q", StatusCrashed, step.Status)
	}
}

func TestPotentialShapingTelescopes(t *testing.T) {
	distances := []float64{1000, 900, 750, 400, 380, 50}
	initial := distances[0]

	sum := 0.0
	for i := 1; i < len(distances); i++ {
		sum += PotentialShaping(1.0, distances[i-1], distances[i], initial)
	}

	terminal := -distances[len(distances)-1] / initial
	first := -distances[0] / initial
	want := terminal - first

	if math.Abs(sum-want) > 1e-12 {
		t.Errorf("telescoping sum: want %v, have %v", want, sum)
	}
}

func TestPotentialShapingDegenerateGeometry(t *testing.T) {
	if got := PotentialShaping(0.99, 10, 5, 0); got != 0 {
		t.Errorf("zero initial distance should yield 0, have %v", got)
	}
	if got := PotentialShaping(0.99, 10, 5, math.NaN()); got != 0 {
		t.Errorf("NaN initial distance should yield 0, have %v", got)
	}
	if got := PotentialShaping(0.99, 10, 5, math.Inf(1)); got != 0 {
		t.Errorf("infinite initial distance should yield 0, have %v", got)
	}
}

func TestZoneBonusPaidOncePerZone(t *testing.T) {
	shaping := DefaultShaping()
	world := &fakeWorld{}
	env := New(world, shaping, 0.99, 1)

	env.Reset(environment.EpisodeConfig{
		Objective:      environment.Navigate,
		TargetPosition: r2.Vec{X: 1000, Y: 0},
		SuccessRadius:  10,
		StartPosition:  r2.Vec{X: 0, Y: 0},
		InfiniteFuel:   true,
	})

	// Jump inside the 0.5 zone, which also crosses 0.75
	world.vehicle.Position.X = 600
	first, _ := env.Step(environment.NoOp, 0)

	// Stay put: no zone may pay twice
	second, _ := env.Step(environment.NoOp, 0)

	if first.Reward <= second.Reward {
		t.Errorf("zone bonuses should only pay on the crossing step: "+
			"first %v, second %v", first.Reward, second.Reward)
	}
}
