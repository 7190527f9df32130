package deepq

import (
	"fmt"
	"math"

	ts "github.com/habib256/pocketcosmos-sub000/timestep"
)

// BuildTargets constructs the update-target rows for one batch. Both
// predicted and nextPredicted are row major with numActions values per
// transition: predicted holds the current action values of the sampled
// states, nextPredicted the target-network values of the next states.
//
// Each target row is a copy of the corresponding predicted row with only
// the taken action's entry overwritten: by the reward alone for terminal
// transitions, and by r + γ·max[Q(s', a')] otherwise. Leaving the other
// entries at their predicted values means the MSE loss produces zero
// gradient for actions that were not taken.
func BuildTargets(predicted, nextPredicted []float64, batch []ts.Transition,
	discount float64, numActions int) ([]float64, error) {
	want := len(batch) * numActions
	if len(predicted) != want || len(nextPredicted) != want {
		return nil, fmt.Errorf("buildtargets: invalid prediction size"+
			"\n\twant(%v)\n\thave(%v, %v)", want, len(predicted),
			len(nextPredicted))
	}

	targets := make([]float64, want)
	copy(targets, predicted)

	for i, tr := range batch {
		if tr.Action < 0 || tr.Action >= numActions {
			return nil, fmt.Errorf("buildtargets: action out of range"+
				"\n\twant([0, %v))\n\thave(%v)", numActions, tr.Action)
		}

		y := tr.Reward
		if !tr.Done {
			row := nextPredicted[i*numActions : (i+1)*numActions]
			best := math.Inf(-1)
			for _, v := range row {
				if v > best {
					best = v
				}
			}
			y += discount * best
		}
		targets[i*numActions+tr.Action] = y
	}
	return targets, nil
}
