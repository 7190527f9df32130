package trainer

import (
	"time"

	"gonum.org/v1/gonum/stat"
)

// Metrics holds the running counters and rolling windows of a training
// run. Only the training loop mutates a Metrics; readers get copies
// through Summary.
type Metrics struct {
	window int

	episodes    int
	totalSteps  int
	totalReward float64
	successes   int

	// Counters for the objective currently being trained
	objectiveEpisodes  int
	objectiveSuccesses int

	returns  []float64
	lengths  []float64
	losses   []float64
	epsilons []float64

	evalScores []float64
	bestEval   float64
	lastEval   float64
	hasEval    bool

	started time.Time
}

// Summary is a point-in-time copy of the run statistics.
type Summary struct {
	Episodes      int
	TotalSteps    int
	Elapsed       time.Duration
	SuccessRate   float64
	MeanReturn    float64
	MeanLength    float64
	MeanLoss      float64
	MeanEpsilon   float64
	BestEvalScore float64
	LastEvalScore float64
}

// NewMetrics returns metrics with rolling windows of the given length.
func NewMetrics(window int) *Metrics {
	m := &Metrics{}
	m.Reset(window)
	return m
}

// Reset clears every counter and window and restarts the clock.
func (m *Metrics) Reset(window int) {
	if window < 1 {
		window = 1
	}
	*m = Metrics{
		window:   window,
		returns:  make([]float64, 0, window),
		lengths:  make([]float64, 0, window),
		losses:   make([]float64, 0, window),
		epsilons: make([]float64, 0, window),
		started:  time.Now(),
	}
}

// StartObjective resets the per-objective counters and rolling windows
// while keeping the run-wide totals.
func (m *Metrics) StartObjective() {
	m.objectiveEpisodes = 0
	m.objectiveSuccesses = 0
	m.returns = m.returns[:0]
	m.lengths = m.lengths[:0]
	m.losses = m.losses[:0]
	m.epsilons = m.epsilons[:0]
}

// RecordEpisode folds one finished training episode into the counters.
func (m *Metrics) RecordEpisode(ret float64, steps int, epsilon,
	loss float64, success bool) {
	m.episodes++
	m.objectiveEpisodes++
	m.totalSteps += steps
	m.totalReward += ret
	if success {
		m.successes++
		m.objectiveSuccesses++
	}

	m.returns = push(m.returns, ret, m.window)
	m.lengths = push(m.lengths, float64(steps), m.window)
	m.losses = push(m.losses, loss, m.window)
	m.epsilons = push(m.epsilons, epsilon, m.window)
}

// RecordEval folds one evaluation score into the counters and reports
// whether it improved on the best known score.
func (m *Metrics) RecordEval(score float64) bool {
	m.lastEval = score
	m.evalScores = append(m.evalScores, score)

	improved := !m.hasEval || score > m.bestEval
	if improved {
		m.bestEval = score
	}
	m.hasEval = true
	return improved
}

// push appends v to a rolling window, dropping the oldest value once
// the window is full.
func push(window []float64, v float64, size int) []float64 {
	if len(window) == size {
		copy(window, window[1:])
		window = window[:size-1]
	}
	return append(window, v)
}

// Episodes returns the number of completed training episodes.
func (m *Metrics) Episodes() int {
	return m.episodes
}

// ObjectiveEpisodes returns the episode count of the current objective.
func (m *Metrics) ObjectiveEpisodes() int {
	return m.objectiveEpisodes
}

// TotalSteps returns the total number of environment steps taken.
func (m *Metrics) TotalSteps() int {
	return m.totalSteps
}

// SuccessRate returns the cumulative success rate across the run.
func (m *Metrics) SuccessRate() float64 {
	if m.episodes == 0 {
		return 0
	}
	return float64(m.successes) / float64(m.episodes)
}

// ObjectiveSuccessRate returns the cumulative success rate of the
// current objective.
func (m *Metrics) ObjectiveSuccessRate() float64 {
	if m.objectiveEpisodes == 0 {
		return 0
	}
	return float64(m.objectiveSuccesses) / float64(m.objectiveEpisodes)
}

// MeanReturn returns the mean episodic return over the rolling window.
func (m *Metrics) MeanReturn() float64 {
	if len(m.returns) == 0 {
		return 0
	}
	return stat.Mean(m.returns, nil)
}

// MeanLength returns the mean episode length over the rolling window.
func (m *Metrics) MeanLength() float64 {
	if len(m.lengths) == 0 {
		return 0
	}
	return stat.Mean(m.lengths, nil)
}

// MeanLoss returns the mean training loss over the rolling window.
func (m *Metrics) MeanLoss() float64 {
	if len(m.losses) == 0 {
		return 0
	}
	return stat.Mean(m.losses, nil)
}

// MeanEpsilon returns the mean exploration rate over the rolling window.
func (m *Metrics) MeanEpsilon() float64 {
	if len(m.epsilons) == 0 {
		return 0
	}
	return stat.Mean(m.epsilons, nil)
}

// BestEval returns the best evaluation score seen so far and whether
// any evaluation has run.
func (m *Metrics) BestEval() (float64, bool) {
	return m.bestEval, m.hasEval
}

// RecentEvals returns the last n evaluation scores, oldest first.
func (m *Metrics) RecentEvals(n int) []float64 {
	if n > len(m.evalScores) {
		n = len(m.evalScores)
	}
	out := make([]float64, n)
	copy(out, m.evalScores[len(m.evalScores)-n:])
	return out
}

// Summary returns a point-in-time copy of the run statistics.
func (m *Metrics) Summary() Summary {
	return Summary{
		Episodes:      m.episodes,
		TotalSteps:    m.totalSteps,
		Elapsed:       time.Since(m.started),
		SuccessRate:   m.SuccessRate(),
		MeanReturn:    m.MeanReturn(),
		MeanLength:    m.MeanLength(),
		MeanLoss:      m.MeanLoss(),
		MeanEpsilon:   m.MeanEpsilon(),
		BestEvalScore: m.bestEval,
		LastEvalScore: m.lastEval,
	}
}
