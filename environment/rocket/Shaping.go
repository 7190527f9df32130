package rocket

import "math"

// ShapingConfig collects the reward-shaping and termination constants of
// the rocket environment. The magnitudes are tuned empirically; they are
// configuration defaults, not derived quantities.
type ShapingConfig struct {
	StepPenalty      float64 `yaml:"stepPenalty"`
	FuelPenaltyScale float64 `yaml:"fuelPenaltyScale"`
	CollisionPenalty float64 `yaml:"collisionPenalty"`
	SuccessBonus     float64 `yaml:"successBonus"`

	DeltaDistanceScale  float64 `yaml:"deltaDistanceScale"`
	HeadingScale        float64 `yaml:"headingScale"`
	ClosingBonus        float64 `yaml:"closingBonus"`
	VelocityRewardScale float64 `yaml:"velocityRewardScale"`
	VelocitySigma       float64 `yaml:"velocitySigma"`
	PotentialScale      float64 `yaml:"potentialScale"`

	// ZoneThresholds are distance ratios (distance / initial distance);
	// crossing each threshold pays ZoneBonus at most once per episode.
	ZoneThresholds []float64 `yaml:"zoneThresholds"`
	ZoneBonus      float64   `yaml:"zoneBonus"`

	ExploreCellBonus float64 `yaml:"exploreCellBonus"`

	// Anticipatory crash check: fires when the vehicle is within
	// CrashBand of a body surface and closing faster than CrashSpeed,
	// but never within the first CrashGraceSteps of an episode nor
	// below RestSpeed.
	CrashBand       float64 `yaml:"crashBand"`
	CrashSpeed      float64 `yaml:"crashSpeed"`
	CrashGraceSteps int     `yaml:"crashGraceSteps"`
	RestSpeed       float64 `yaml:"restSpeed"`

	// Observation scaling
	VelocityScale        float64 `yaml:"velocityScale"`
	AngularVelocityScale float64 `yaml:"angularVelocityScale"`
}

// DefaultShaping returns the shaping constants used when none are
// configured.
func DefaultShaping() ShapingConfig {
	return ShapingConfig{
		StepPenalty:      0.01,
		FuelPenaltyScale: 0.05,
		CollisionPenalty: 25.0,
		SuccessBonus:     100.0,

		DeltaDistanceScale:  10.0,
		HeadingScale:        0.5,
		ClosingBonus:        0.3,
		VelocityRewardScale: 1.0,
		VelocitySigma:       0.25,
		PotentialScale:      5.0,

		ZoneThresholds: []float64{0.75, 0.5, 0.25, 0.1},
		ZoneBonus:      2.0,

		ExploreCellBonus: 1.0,

		CrashBand:       3.0,
		CrashSpeed:      8.0,
		CrashGraceSteps: 12,
		RestSpeed:       0.5,

		VelocityScale:        50.0,
		AngularVelocityScale: 4.0,
	}
}

// PotentialShaping returns the potential-based shaping term
// gamma*Phi(next) - Phi(prev) with Phi = -distance/initialDistance. Summed
// over an episode with gamma = 1 the terms telescope to
// Phi(terminal) - Phi(initial), so the shaping cannot change which policy
// is optimal.
func PotentialShaping(gamma, prevDistance, distance,
	initialDistance float64) float64 {
	if initialDistance <= 0 || math.IsNaN(initialDistance) ||
		math.IsInf(initialDistance, 0) {
		return 0
	}
	phiPrev := -prevDistance / initialDistance
	phiNext := -distance / initialDistance
	return gamma*phiNext - phiPrev
}

// gaussianReward is a reward peaked at target, falling off with the given
// relative width. Both too-slow and too-fast (or too-low and too-high)
// are penalized symmetrically.
func gaussianReward(value, target, relativeSigma float64) float64 {
	if target == 0 || relativeSigma <= 0 {
		return 0
	}
	sigma := relativeSigma * math.Abs(target)
	diff := value - target
	return math.Exp(-(diff * diff) / (2 * sigma * sigma))
}
