// Package trainer implements the training orchestrator: it owns the
// environment and agent lifecycles, drives the episode loop, evaluates
// and checkpoints the policy, and applies convergence and early-stopping
// rules.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/habib256/pocketcosmos-sub000/agent"
	"github.com/habib256/pocketcosmos-sub000/environment"
	"github.com/habib256/pocketcosmos-sub000/environment/rocket"
	"github.com/habib256/pocketcosmos-sub000/events"
	"github.com/habib256/pocketcosmos-sub000/network"
	"github.com/habib256/pocketcosmos-sub000/physics"
	"github.com/habib256/pocketcosmos-sub000/store"
)

// State is the lifecycle state of a Trainer.
type State int32

const (
	Idle State = iota
	Initializing
	Training
	Paused
	Completed
	Stopped
	Errored
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Initializing:
		return "initializing"
	case Training:
		return "training"
	case Paused:
		return "paused"
	case Completed:
		return "completed"
	case Stopped:
		return "stopped"
	case Errored:
		return "errored"
	default:
		return "unknown"
	}
}

// pausePollInterval is the backoff between pause-flag polls.
const pausePollInterval = 5 * time.Millisecond

// EpisodePayload describes an episode boundary event.
type EpisodePayload struct {
	Objective string
	Episode   int
	Reward    float64
	Steps     int
	Success   bool
	Status    string
	Duration  time.Duration
}

// StepPayload is a periodic snapshot of the running episode, carrying
// enough raw state for an external visualizer: the vehicle pose and
// resources, its terminal flags and the reference bodies.
type StepPayload struct {
	Episode     int
	Step        int
	Reward      float64
	Status      string
	Observation []float64

	Position  r2.Vec
	Velocity  r2.Vec
	Fuel      float64
	Landed    bool
	Destroyed bool
	Bodies    []physics.Body
}

// EvalPayload describes a completed evaluation round.
type EvalPayload struct {
	Episode     int
	Score       float64
	SuccessRate float64
	BestScore   float64
}

// ErrorPayload carries the error that aborted a run.
type ErrorPayload struct {
	Err error
}

// Trainer drives training runs. A Trainer may be reused for consecutive
// runs but runs at most one at a time; the loop itself executes on the
// goroutine that calls Start.
type Trainer struct {
	cfg    Config
	bus    *events.Bus
	logger *log.Logger

	env environment.Environment
	agt agent.Agent
	st  *store.Store

	metrics *Metrics

	state   atomic.Int32
	paused  atomic.Bool
	stopped atomic.Bool

	best     *network.Weights
	stagnant int

	mu      sync.Mutex
	unsubs  []func()
	cleaned bool
}

// New returns a Trainer publishing on the given bus. A nil bus gets a
// private one; a nil logger logs to standard error.
func New(cfg Config, bus *events.Bus, logger *log.Logger) *Trainer {
	if bus == nil {
		bus = events.NewBus()
	}
	if logger == nil {
		logger = log.New(os.Stderr, "trainer: ", log.LstdFlags)
	}
	return &Trainer{
		cfg:     cfg,
		bus:     bus,
		logger:  logger,
		metrics: NewMetrics(DefaultConfig().MetricsWindow),
	}
}

// Bus returns the event bus the trainer publishes on.
func (t *Trainer) Bus() *events.Bus {
	return t.bus
}

// Metrics returns the run metrics. Only read it from the loop goroutine
// or after Start returns.
func (t *Trainer) Metrics() *Metrics {
	return t.metrics
}

// State returns the current lifecycle state.
func (t *Trainer) State() State {
	return State(t.state.Load())
}

func (t *Trainer) setState(s State) {
	t.state.Store(int32(s))
}

// Subscribe registers a listener channel for a topic. The subscription
// is tracked and removed by Cleanup at the end of the run.
func (t *Trainer) Subscribe(topic events.Topic, ch chan<- events.Event) {
	unsub := t.bus.Subscribe(topic, ch)
	t.mu.Lock()
	t.unsubs = append(t.unsubs, unsub)
	t.mu.Unlock()
}

// Pause asks the loop to hold at its next poll point.
func (t *Trainer) Pause() {
	t.paused.Store(true)
}

// Resume releases a paused loop.
func (t *Trainer) Resume() {
	t.paused.Store(false)
}

// Stop asks the loop to end promptly, mid-episode included.
func (t *Trainer) Stop() {
	t.stopped.Store(true)
}

// Start merges the configured overrides onto the defaults, builds a
// fresh environment and agent, and runs the training loop to completion
// on the calling goroutine. It returns once the run has completed,
// stopped, or errored; the trainer is back in the Idle state either
// way.
func (t *Trainer) Start(ctx context.Context) error {
	if !t.state.CompareAndSwap(int32(Idle), int32(Initializing)) {
		return fmt.Errorf("start: a run is already in progress (state %v)",
			t.State())
	}
	t.paused.Store(false)
	t.stopped.Store(false)
	t.best = nil
	t.stagnant = 0
	t.mu.Lock()
	t.cleaned = false
	t.mu.Unlock()

	cfg := Merge(t.cfg)
	t.metrics.Reset(cfg.MetricsWindow)

	st, err := store.New(cfg.StoreDir)
	if err != nil {
		return t.failStart(fmt.Errorf("start: %v", err))
	}
	t.st = st

	env, agt, err := Build(cfg)
	if err != nil {
		return t.failStart(fmt.Errorf("start: %v", err))
	}
	t.env = env
	t.agt = agt

	t.bus.Publish(events.Event{Topic: events.TrainingStarted, Payload: cfg})
	t.setState(Training)

	outcome, runErr := t.run(ctx, cfg)
	return t.finalize(cfg, outcome, runErr)
}

// failStart tears down after an initialization error and returns to
// Idle.
func (t *Trainer) failStart(err error) error {
	t.bus.Publish(events.Event{Topic: events.TrainingError,
		Payload: ErrorPayload{Err: err}})
	t.Cleanup()
	t.setState(Idle)
	return err
}

// run executes the episode loop over every configured objective and
// reports the terminal outcome.
func (t *Trainer) run(ctx context.Context, cfg Config) (State, error) {
	totalSteps := 0

	for _, objective := range cfg.Objectives {
		t.metrics.StartObjective()
		t.stagnant = 0
		converged := false

		for ep := 0; ep < cfg.Episodes && !converged; ep++ {
			if t.shouldStop(ctx) {
				return Stopped, nil
			}
			if t.pausePoint(ctx) {
				return Stopped, nil
			}

			outcome, err := t.runEpisode(ctx, cfg, objective, &totalSteps)
			if err != nil || outcome != Training {
				return outcome, err
			}

			epNumber := t.metrics.ObjectiveEpisodes()

			if cfg.EvalEvery > 0 && epNumber%cfg.EvalEvery == 0 {
				if t.shouldStop(ctx) {
					return Stopped, nil
				}
				stop, err := t.evaluationRound(ctx, cfg, objective, epNumber)
				if err != nil {
					return Errored, err
				}
				if stop {
					if t.shouldStop(ctx) {
						return Stopped, nil
					}
					converged = true
				}
			}

			if !converged && epNumber >= cfg.ConvergenceWarmup &&
				t.metrics.ObjectiveSuccessRate() >= cfg.SuccessRateTarget {
				t.logger.Printf("objective %v converged: success rate %.3f "+
					"after %d episodes", objective.Objective,
					t.metrics.ObjectiveSuccessRate(), epNumber)
				converged = true
			}

			if cfg.CheckpointEvery > 0 && epNumber%cfg.CheckpointEvery == 0 {
				if t.shouldStop(ctx) {
					return Stopped, nil
				}
				t.checkpoint(cfg)
			}
		}
	}
	return Completed, nil
}

// runEpisode plays out one training episode. It returns Training when
// the loop should continue with the next episode.
func (t *Trainer) runEpisode(ctx context.Context, cfg Config,
	objective environment.EpisodeConfig, totalSteps *int) (State, error) {
	step := t.env.Reset(objective)
	t.agt.ObserveFirst(step)

	episode := t.metrics.Episodes() + 1
	t.bus.Publish(events.Event{Topic: events.EpisodeStarted,
		Payload: EpisodePayload{
			Objective: string(objective.Objective),
			Episode:   episode,
		}})

	started := time.Now()
	ret := 0.0
	steps := 0

	for done := false; !done; {
		if t.shouldStop(ctx) {
			return Stopped, nil
		}
		if t.pausePoint(ctx) {
			return Stopped, nil
		}

		action, err := t.agt.SelectAction(step)
		if err != nil {
			if errors.Is(err, agent.ErrDisposed) {
				return Stopped, nil
			}
			return Errored, fmt.Errorf("run: could not select action: %v",
				err)
		}

		next, d := t.env.Step(environment.Action(action), cfg.Dt)
		t.agt.Observe(action, next)
		done = d
		ret += next.Reward
		steps++
		*totalSteps++

		if *totalSteps%cfg.TrainEvery == 0 {
			if err := t.agt.Step(); err != nil {
				if errors.Is(err, agent.ErrDisposed) {
					return Stopped, nil
				}
				// A failed pass is skipped, never fatal
				t.logger.Printf("training pass skipped: %v", err)
			}
		}
		if *totalSteps%cfg.SyncEvery == 0 {
			if err := t.agt.SyncTarget(); err != nil {
				if errors.Is(err, agent.ErrDisposed) {
					return Stopped, nil
				}
				t.logger.Printf("target sync failed: %v", err)
			}
		}

		if cfg.StepEventStride > 0 && steps%cfg.StepEventStride == 0 {
			v := t.env.Vehicle()
			t.bus.Publish(events.Event{Topic: events.StepTaken,
				Payload: StepPayload{
					Episode:     episode,
					Step:        steps,
					Reward:      next.Reward,
					Status:      next.Status,
					Observation: vecData(next.Observation),
					Position:    v.Position,
					Velocity:    v.Velocity,
					Fuel:        v.Fuel,
					Landed:      v.Landed,
					Destroyed:   v.Destroyed,
					Bodies:      t.env.Bodies(),
				}})
		}
		if cfg.YieldEvery > 0 && steps%cfg.YieldEvery == 0 {
			runtime.Gosched()
		}

		step = next
	}

	t.agt.EndEpisode()
	success := rocket.IsSuccess(step.Status)
	t.metrics.RecordEpisode(ret, steps, t.agt.Epsilon(), t.agt.Loss(),
		success)

	t.bus.Publish(events.Event{Topic: events.EpisodeEnded,
		Payload: EpisodePayload{
			Objective: string(objective.Objective),
			Episode:   episode,
			Reward:    ret,
			Steps:     steps,
			Success:   success,
			Status:    step.Status,
			Duration:  time.Since(started),
		}})
	t.bus.Publish(events.Event{Topic: events.TrainingProgress,
		Payload: t.metrics.Summary()})

	return Training, nil
}

// evaluationRound runs one evaluation, retains the weights on
// improvement, and reports whether early stopping fired.
func (t *Trainer) evaluationRound(ctx context.Context, cfg Config,
	objective environment.EpisodeConfig, epNumber int) (bool, error) {
	score, successRate, err := t.evaluate(ctx, cfg, objective)
	if t.shouldStop(ctx) {
		// A partial evaluation is discarded, not recorded
		return true, nil
	}
	if err != nil {
		if errors.Is(err, agent.ErrDisposed) {
			t.stopped.Store(true)
			return true, nil
		}
		// Transient evaluation failures never abort a run
		t.logger.Printf("evaluation failed: %v", err)
		return false, nil
	}

	if t.metrics.RecordEval(score) {
		snap, snapErr := t.agt.Snapshot()
		if snapErr != nil {
			t.logger.Printf("could not retain best weights: %v", snapErr)
		} else {
			// The previous snapshot owns its memory and must be
			// released before being replaced
			t.best.Release()
			t.best = snap
		}
		t.stagnant = 0
	} else {
		best, _ := t.metrics.BestEval()
		window := t.metrics.RecentEvals(cfg.EarlyStopWindow)
		if len(window) == cfg.EarlyStopWindow &&
			withinBand(window, best, cfg.EarlyStopTolerance) {
			t.stagnant++
		} else {
			t.stagnant = 0
		}
	}

	best, _ := t.metrics.BestEval()
	t.bus.Publish(events.Event{Topic: events.EvalCompleted,
		Payload: EvalPayload{
			Episode:     t.metrics.Episodes(),
			Score:       score,
			SuccessRate: successRate,
			BestScore:   best,
		}})

	if epNumber >= cfg.EarlyStopWarmup && t.stagnant >= cfg.EarlyStopPatience {
		t.logger.Printf("early stopping objective %v: %d consecutive "+
			"evaluations without improvement over %.3f",
			objective.Objective, t.stagnant, best)
		return true, nil
	}
	return false, nil
}

// evaluate runs the configured number of episodes with exploration
// disabled and returns the mean return and success rate.
func (t *Trainer) evaluate(ctx context.Context, cfg Config,
	objective environment.EpisodeConfig) (float64, float64, error) {
	t.agt.Eval()
	defer t.agt.Train()

	total := 0.0
	successes := 0
	episodes := 0

	for i := 0; i < cfg.EvalEpisodes; i++ {
		if t.shouldStop(ctx) {
			break
		}

		step := t.env.Reset(objective)
		ret := 0.0
		steps := 0
		aborted := false
		for done := false; !done; {
			// Stop is honored per-step here too, never deferred to the
			// episode boundary
			if t.shouldStop(ctx) {
				aborted = true
				break
			}

			action, err := t.agt.SelectAction(step)
			if err != nil {
				return 0, 0, err
			}
			step, done = t.env.Step(environment.Action(action), cfg.Dt)
			ret += step.Reward
			steps++

			if cfg.YieldEvery > 0 && steps%cfg.YieldEvery == 0 {
				runtime.Gosched()
			}
		}
		if aborted {
			break
		}

		total += ret
		episodes++
		if rocket.IsSuccess(step.Status) {
			successes++
		}
	}

	if episodes == 0 {
		return 0, 0, fmt.Errorf("evaluate: no evaluation episode completed")
	}
	return total / float64(episodes),
		float64(successes) / float64(episodes), nil
}

// checkpoint persists the current weights. Failures are logged and
// swallowed so a transient persistence error never aborts a run.
func (t *Trainer) checkpoint(cfg Config) {
	if err := t.agt.Save(t.st, cfg.CheckpointSlot); err != nil &&
		!errors.Is(err, agent.ErrDisposed) {
		t.logger.Printf("checkpoint failed: %v", err)
	}
}

// finalize restores the best weights on completion, emits the terminal
// event, tears everything down and returns to Idle.
func (t *Trainer) finalize(cfg Config, outcome State, runErr error) error {
	if outcome == Completed && t.best != nil && !t.best.Released() {
		if err := t.agt.Restore(t.best); err != nil &&
			!errors.Is(err, agent.ErrDisposed) {
			t.logger.Printf("could not restore best weights: %v", err)
		} else {
			t.checkpoint(cfg)
		}
	}
	t.best.Release()
	t.best = nil

	summary := t.metrics.Summary()
	t.setState(outcome)

	switch outcome {
	case Completed:
		t.logger.Printf("training completed: %d episodes, %d steps, "+
			"success rate %.3f, best score %.3f", summary.Episodes,
			summary.TotalSteps, summary.SuccessRate, summary.BestEvalScore)
		t.bus.Publish(events.Event{Topic: events.TrainingCompleted,
			Payload: summary})
	case Stopped:
		t.bus.Publish(events.Event{Topic: events.TrainingStopped,
			Payload: summary})
	case Errored:
		if !errors.Is(runErr, agent.ErrDisposed) {
			t.bus.Publish(events.Event{Topic: events.TrainingError,
				Payload: ErrorPayload{Err: runErr}})
		}
	}

	t.Cleanup()
	t.setState(Idle)
	return runErr
}

// Cleanup removes every tracked subscription, disposes the agent and
// releases the environment. It is idempotent and safe after errors.
func (t *Trainer) Cleanup() {
	t.mu.Lock()
	if t.cleaned {
		t.mu.Unlock()
		return
	}
	t.cleaned = true
	unsubs := t.unsubs
	t.unsubs = nil
	t.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}

	if t.agt != nil {
		if err := t.agt.Cleanup(); err != nil &&
			!errors.Is(err, agent.ErrDisposed) {
			t.logger.Printf("agent cleanup failed: %v", err)
		}
		t.agt = nil
	}
	t.env = nil
	t.st = nil
}

// pausePoint blocks while the pause flag is set, polling with a short
// backoff. It reports whether a stop arrived while paused.
func (t *Trainer) pausePoint(ctx context.Context) bool {
	if !t.paused.Load() {
		return false
	}

	t.setState(Paused)
	t.bus.Publish(events.Event{Topic: events.TrainingPaused})
	for t.paused.Load() {
		if t.shouldStop(ctx) {
			return true
		}
		time.Sleep(pausePollInterval)
	}
	t.setState(Training)
	t.bus.Publish(events.Event{Topic: events.TrainingResumed})
	return false
}

func (t *Trainer) shouldStop(ctx context.Context) bool {
	return t.stopped.Load() || ctx.Err() != nil
}

// withinBand reports whether every score sits in the tolerance band
// directly below (or at) the best known score.
func withinBand(scores []float64, best, tolerance float64) bool {
	for _, s := range scores {
		if s > best || best-s > tolerance {
			return false
		}
	}
	return true
}

func vecData(v mat.Vector) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}
