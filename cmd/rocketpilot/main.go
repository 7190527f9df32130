package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/habib256/pocketcosmos-sub000/environment"
	"github.com/habib256/pocketcosmos-sub000/environment/rocket"
	"github.com/habib256/pocketcosmos-sub000/events"
	"github.com/habib256/pocketcosmos-sub000/store"
	"github.com/habib256/pocketcosmos-sub000/trainer"
)

var (
	configPath string
	storeDir   string
	episodes   int
	seed       uint64
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "rocketpilot",
		Short: "rocketpilot trains and evaluates a rocket-flying control policy",
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"path to a YAML training configuration")
	rootCmd.PersistentFlags().StringVar(&storeDir, "store", "",
		"directory holding weight checkpoints")
	rootCmd.PersistentFlags().Uint64Var(&seed, "seed", 0,
		"random seed (0 keeps the configured default)")

	trainCmd := &cobra.Command{
		Use:   "train",
		Short: "Run a training session",
		RunE:  runTraining,
	}
	trainCmd.Flags().IntVar(&episodes, "episodes", 0,
		"episode cap per objective (0 keeps the configured default)")

	evalCmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate the checkpointed policy with exploration disabled",
		RunE:  runEvaluation,
	}
	evalCmd.Flags().IntVar(&episodes, "episodes", 10,
		"number of evaluation episodes")

	// Local environment overrides, if present
	for _, envFile := range []string{".env", "../../.env"} {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(evalCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (trainer.Config, error) {
	if configPath == "" {
		configPath = os.Getenv("ROCKETPILOT_CONFIG")
	}
	cfg, err := trainer.LoadConfig(configPath)
	if err != nil {
		return trainer.Config{}, err
	}
	if storeDir != "" {
		cfg.StoreDir = storeDir
	}
	if episodes > 0 {
		cfg.Episodes = episodes
	}
	if seed != 0 {
		cfg.Seed = seed
	}
	return cfg, nil
}

func runTraining(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	logger := log.New(os.Stderr, fmt.Sprintf("run %.8s: ", runID),
		log.LstdFlags)

	bus := events.NewBus()
	t := trainer.New(cfg, bus, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Stop the loop promptly on interrupt
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		t.Stop()
		cancel()
	}()

	progress := make(chan events.Event, 64)
	t.Subscribe(events.EpisodeEnded, progress)
	t.Subscribe(events.EvalCompleted, progress)
	go func() {
		for e := range progress {
			switch p := e.Payload.(type) {
			case trainer.EpisodePayload:
				logger.Printf("episode %d: reward %.2f, steps %d, "+
					"status %q", p.Episode, p.Reward, p.Steps, p.Status)
			case trainer.EvalPayload:
				logger.Printf("evaluation: score %.2f, success rate "+
					"%.2f, best %.2f", p.Score, p.SuccessRate, p.BestScore)
			}
		}
	}()

	return t.Start(ctx)
}

func runEvaluation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	merged := trainer.Merge(cfg)

	env, agt, err := trainer.Build(merged)
	if err != nil {
		return err
	}
	defer agt.Cleanup()

	st, err := store.New(merged.StoreDir)
	if err != nil {
		return err
	}
	if err := agt.Load(st, merged.CheckpointSlot); err != nil {
		if errors.Is(err, store.ErrNoSlot) {
			return fmt.Errorf("no checkpoint found in %v; train first",
				merged.StoreDir)
		}
		return err
	}
	agt.Eval()

	objective := merged.Objectives[0]
	successes := 0
	total := 0.0
	for i := 0; i < episodes; i++ {
		step := env.Reset(objective)
		ret := 0.0
		for done := false; !done; {
			action, err := agt.SelectAction(step)
			if err != nil {
				return err
			}
			step, done = env.Step(environment.Action(action), merged.Dt)
			ret += step.Reward
		}
		total += ret
		if rocket.IsSuccess(step.Status) {
			successes++
		}
		fmt.Printf("episode %d: reward %.2f, status %q\n", i+1, ret,
			step.Status)
	}
	fmt.Printf("mean reward %.2f, success rate %.2f\n",
		total/float64(episodes), float64(successes)/float64(episodes))
	return nil
}
