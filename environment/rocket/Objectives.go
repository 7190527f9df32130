package rocket

import (
	"fmt"
	"math"

	"github.com/habib256/pocketcosmos-sub000/environment"
	"github.com/habib256/pocketcosmos-sub000/physics"
)

// objective implements the reward shaping and success condition of one
// goal configuration. Objectives own their per-episode auxiliary state
// (progress accumulators, visited cells, hold counters) and are rebuilt on
// every reset so no state leaks between episodes.
type objective interface {
	kind() environment.ObjectiveKind

	// reset captures the state the shaping terms are measured against.
	reset(r *Rocket, v physics.Vehicle)

	// reward returns the objective-specific shaping for one step. The
	// step and fuel penalties are added by the environment, not here.
	reward(r *Rocket, prev, cur physics.Vehicle) float64

	// success reports whether the objective has been achieved. Called
	// exactly once per environment step.
	success(r *Rocket, cur physics.Vehicle) (bool, string)

	// collisionIsSuccess reports whether this objective treats a
	// destructive collision as its goal rather than a failure.
	collisionIsSuccess() bool
}

func newObjective(kind environment.ObjectiveKind) objective {
	switch kind {
	case environment.Orbit:
		return &orbitObjective{}
	case environment.Land:
		return &landObjective{}
	case environment.Impact:
		return &impactObjective{}
	case environment.Explore:
		return &exploreObjective{}
	default:
		return &navigateObjective{}
	}
}

// navigateObjective rewards progress toward a fixed point. Progress is
// measured as the reduction in distance since the previous step,
// normalized by the initial distance so the reward scale does not drift
// across episodes with different start distances.
type navigateObjective struct {
	prevDistance float64
	zoneRewarded []bool
}

func (n *navigateObjective) kind() environment.ObjectiveKind {
	return environment.Navigate
}

func (n *navigateObjective) collisionIsSuccess() bool { return false }

func (n *navigateObjective) reset(r *Rocket, v physics.Vehicle) {
	n.prevDistance = r.distanceToTarget(v)
	n.zoneRewarded = make([]bool, len(r.shaping.ZoneThresholds))
}

func (n *navigateObjective) reward(r *Rocket, prev,
	cur physics.Vehicle) float64 {
	dist := r.distanceToTarget(cur)
	if !finitePositive(r.initialDistance) || !finite(dist) {
		return 0
	}

	reward := r.shaping.DeltaDistanceScale *
		(n.prevDistance - dist) / r.initialDistance
	n.prevDistance = dist

	reward += r.headingReward(cur)

	// One-time zone-crossing bonuses
	ratio := dist / r.initialDistance
	for i, threshold := range r.shaping.ZoneThresholds {
		if !n.zoneRewarded[i] && ratio <= threshold {
			n.zoneRewarded[i] = true
			reward += r.shaping.ZoneBonus
		}
	}

	return reward
}

func (n *navigateObjective) success(r *Rocket,
	cur physics.Vehicle) (bool, string) {
	dist := r.distanceToTarget(cur)
	if finite(dist) && dist <= r.config.SuccessRadius {
		return true, "success: reached navigation target"
	}
	return false, ""
}

// orbitObjective rewards holding an altitude band and a speed band around
// the target body. Success requires both bands to hold simultaneously for
// a configured number of consecutive steps.
type orbitObjective struct {
	hold int
}

func (o *orbitObjective) kind() environment.ObjectiveKind {
	return environment.Orbit
}

func (o *orbitObjective) collisionIsSuccess() bool { return false }

func (o *orbitObjective) reset(r *Rocket, v physics.Vehicle) {
	o.hold = 0
}

func (o *orbitObjective) reward(r *Rocket, prev, cur physics.Vehicle) float64 {
	altitude, ok := r.altitudeAboveTarget(cur)
	if !ok {
		return 0
	}
	speed := math.Hypot(cur.Velocity.X, cur.Velocity.Y)

	reward := r.shaping.VelocityRewardScale *
		gaussianReward(speed, r.config.OrbitSpeed, r.shaping.VelocitySigma)
	reward += r.shaping.VelocityRewardScale *
		gaussianReward(altitude, r.config.OrbitAltitude,
			r.shaping.VelocitySigma)
	return reward
}

func (o *orbitObjective) success(r *Rocket,
	cur physics.Vehicle) (bool, string) {
	altitude, ok := r.altitudeAboveTarget(cur)
	if !ok {
		return false, ""
	}
	speed := math.Hypot(cur.Velocity.X, cur.Velocity.Y)

	inAltBand := math.Abs(altitude-r.config.OrbitAltitude) <=
		r.config.OrbitAltitudeBand
	inSpeedBand := math.Abs(speed-r.config.OrbitSpeed) <=
		r.config.OrbitSpeedBand

	if inAltBand && inSpeedBand {
		o.hold++
	} else {
		o.hold = 0
	}

	if o.hold >= r.config.OrbitHoldSteps {
		return true, "success: stable orbit held"
	}
	return false, ""
}

// landObjective rewards descending toward the target body, using
// potential-based shaping so the shaping sums to a bounded telescoping
// value over the episode.
type landObjective struct {
	prevDistance float64
}

func (l *landObjective) kind() environment.ObjectiveKind {
	return environment.Land
}

func (l *landObjective) collisionIsSuccess() bool { return false }

func (l *landObjective) reset(r *Rocket, v physics.Vehicle) {
	l.prevDistance = r.distanceToTarget(v)
}

func (l *landObjective) reward(r *Rocket, prev, cur physics.Vehicle) float64 {
	dist := r.distanceToTarget(cur)
	if !finite(dist) {
		return 0
	}

	reward := r.shaping.PotentialScale * PotentialShaping(r.discount,
		l.prevDistance, dist, r.initialDistance)
	l.prevDistance = dist

	speed := math.Hypot(cur.Velocity.X, cur.Velocity.Y)
	reward += r.shaping.VelocityRewardScale *
		gaussianReward(speed, r.config.LandingMaxSpeed,
			r.shaping.VelocitySigma)

	return reward
}

func (l *landObjective) success(r *Rocket,
	cur physics.Vehicle) (bool, string) {
	if !cur.Landed || cur.ContactBody != r.config.TargetBody {
		return false, ""
	}
	speed := math.Hypot(cur.Velocity.X, cur.Velocity.Y)
	if speed <= r.config.LandingMaxSpeed {
		return true, fmt.Sprintf("success: soft landing on %v",
			cur.ContactBody)
	}
	return false, ""
}

// impactObjective rewards a destructive impact on the target body. The
// usual terminal collision penalty is suppressed: here the collision is
// the goal.
type impactObjective struct {
	prevDistance float64
}

func (i *impactObjective) kind() environment.ObjectiveKind {
	return environment.Impact
}

func (i *impactObjective) collisionIsSuccess() bool { return true }

func (i *impactObjective) reset(r *Rocket, v physics.Vehicle) {
	i.prevDistance = r.distanceToTarget(v)
}

func (i *impactObjective) reward(r *Rocket, prev,
	cur physics.Vehicle) float64 {
	dist := r.distanceToTarget(cur)
	if !finitePositive(r.initialDistance) || !finite(dist) {
		return 0
	}

	reward := r.shaping.DeltaDistanceScale *
		(i.prevDistance - dist) / r.initialDistance
	i.prevDistance = dist

	reward += r.headingReward(cur)
	return reward
}

func (i *impactObjective) success(r *Rocket,
	cur physics.Vehicle) (bool, string) {
	if !cur.Destroyed {
		return false, ""
	}
	surface, ok := r.surfaceDistanceToTarget(cur)
	if ok && surface <= r.config.ImpactRadius {
		return true, "success: target impact confirmed"
	}
	return false, ""
}

// exploreObjective rewards visiting distinct cells of a grid laid over the
// world. Success requires a minimum count of distinct visited cells.
type exploreObjective struct {
	visited map[[2]int]bool
}

func (e *exploreObjective) kind() environment.ObjectiveKind {
	return environment.Explore
}

func (e *exploreObjective) collisionIsSuccess() bool { return false }

func (e *exploreObjective) reset(r *Rocket, v physics.Vehicle) {
	e.visited = make(map[[2]int]bool)
	e.visited[e.cell(r, v)] = true
}

func (e *exploreObjective) cell(r *Rocket, v physics.Vehicle) [2]int {
	size := r.config.ExploreCellSize
	return [2]int{
		int(math.Floor(v.Position.X / size)),
		int(math.Floor(v.Position.Y / size)),
	}
}

func (e *exploreObjective) reward(r *Rocket, prev,
	cur physics.Vehicle) float64 {
	if !finite(cur.Position.X) || !finite(cur.Position.Y) {
		return 0
	}
	cell := e.cell(r, cur)
	if !e.visited[cell] {
		e.visited[cell] = true
		return r.shaping.ExploreCellBonus
	}
	return 0
}

func (e *exploreObjective) success(r *Rocket,
	cur physics.Vehicle) (bool, string) {
	if len(e.visited) >= r.config.ExploreMinCells {
		return true, fmt.Sprintf("success: explored %v locations",
			len(e.visited))
	}
	return false, ""
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func finitePositive(f float64) bool {
	return finite(f) && f > 0
}
