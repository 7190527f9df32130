package rocket

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/habib256/pocketcosmos-sub000/physics"
)

// ObservationSize is the fixed dimension of the feature vector fed to the
// value network.
const ObservationSize int = 10

// buildObservation derives the feature vector from the vehicle and world
// state. Features are clamped to their documented intervals; any
// non-finite input collapses the whole vector to zero so that invalid
// physics states are detectable downstream and never reach the network as
// NaN.
//
// Layout:
//
//	0-1  position relative to the objective target, scaled
//	2-3  velocity relative to the target frame, scaled
//	4    orientation wrapped to [-pi, pi], scaled to [-1, 1]
//	5    angular velocity, scaled
//	6    distance to the nearest reference body, in [0, 1)
//	7    bearing to the nearest reference body, scaled to [-1, 1]
//	8    fuel fraction in [0, 1]
//	9    hull fraction in [0, 1]
func (r *Rocket) buildObservation(v physics.Vehicle) *mat.VecDense {
	target, hasTarget := r.targetPoint()

	posScale := r.initialDistance
	if posScale < 1.0 {
		posScale = 1.0
	}

	relX, relY := 0.0, 0.0
	if hasTarget {
		relX = (target.X - v.Position.X) / posScale
		relY = (target.Y - v.Position.Y) / posScale
	}

	velX := v.Velocity.X / r.shaping.VelocityScale
	velY := v.Velocity.Y / r.shaping.VelocityScale

	orientation := wrapAngle(v.Orientation) / math.Pi
	angVel := v.AngularVelocity / r.shaping.AngularVelocityScale

	bodyDist, bodyBearing := 0.0, 0.0
	if body, ok := r.nearestBody(v.Position); ok {
		dx := body.Position.X - v.Position.X
		dy := body.Position.Y - v.Position.Y
		d := math.Hypot(dx, dy)
		bodyDist = d / (d + posScale)
		bodyBearing = wrapAngle(math.Atan2(-dx, dy)-v.Orientation) / math.Pi
	}

	fuel := 1.0
	if !r.config.InfiniteFuel && r.config.FuelCapacity > 0 {
		fuel = v.Fuel / r.config.FuelCapacity
	}
	health := v.Health / physics.FullHealth

	features := []float64{
		relX, relY, velX, velY,
		orientation, angVel,
		bodyDist, bodyBearing,
		fuel, health,
	}

	for _, f := range features {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return mat.NewVecDense(ObservationSize, nil)
		}
	}

	clamped := []float64{
		clip(relX, -1, 1),
		clip(relY, -1, 1),
		clip(velX, -1, 1),
		clip(velY, -1, 1),
		clip(orientation, -1, 1),
		clip(angVel, -1, 1),
		clip(bodyDist, 0, 1),
		clip(bodyBearing, -1, 1),
		clip(fuel, 0, 1),
		clip(health, 0, 1),
	}

	return mat.NewVecDense(ObservationSize, clamped)
}

// clip clips a floating point to within a minimum and maximum value
func clip(value, min, max float64) float64 {
	clipped := math.Min(value, max)
	return math.Max(clipped, min)
}

// wrapAngle wraps an angle to [-pi, pi]
func wrapAngle(angle float64) float64 {
	wrapped := math.Mod(angle+math.Pi, 2*math.Pi)
	if wrapped < 0 {
		wrapped += 2 * math.Pi
	}
	return wrapped - math.Pi
}
