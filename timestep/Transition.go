package timestep

import "gonum.org/v1/gonum/mat"

// Transition packages together a single (s, a, r, s', done) tuple, the
// atomic unit stored in an experience replay buffer. A Transition is
// immutable once created: NewTransition copies both state vectors so that
// later environment mutation cannot reach into the buffer.
type Transition struct {
	State     *mat.VecDense
	Action    int
	Reward    float64
	NextState *mat.VecDense
	Done      bool
}

// NewTransition creates a Transition from the timestep the action was taken
// on and the timestep that resulted from it.
func NewTransition(step TimeStep, action int, nextStep TimeStep) Transition {
	state := mat.VecDenseCopyOf(step.Observation)
	nextState := mat.VecDenseCopyOf(nextStep.Observation)

	return Transition{
		State:     state,
		Action:    action,
		Reward:    nextStep.Reward,
		NextState: nextState,
		Done:      nextStep.Last(),
	}
}
