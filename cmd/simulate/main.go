// Command simulate runs headless AI-vs-AI matches, then re-drives each one
// from its recorded history and compares final checksums. Useful for
// exercising the full pipeline and for catching determinism regressions.
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/Farjord/dronewars-server/internal/game"
	"github.com/Farjord/dronewars-server/internal/game/ai"
)

var (
	matches    = flag.Int("matches", 1, "number of matches to simulate")
	seed       = flag.Int64("seed", 1, "seed of the first match; subsequent matches increment it")
	difficulty = flag.String("difficulty", "normal", "ai difficulty: easy, normal, hard")
	maxSteps   = flag.Int("max-steps", 20000, "safety cap on actions per match")
	verbose    = flag.Bool("v", false, "debug logging")
)

func main() {
	flag.Parse()

	logCfg := zap.NewDevelopmentConfig()
	if !*verbose {
		logCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	logger, err := logCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	engine := game.NewEngine(logger)
	director := ai.NewDirector(logger, ai.WeightsFor(ai.Difficulty(*difficulty)))
	engine.SetInterceptionChooser(director)
	runner := ai.NewRunner(engine, director, logger)

	failures := 0
	for i := 0; i < *matches; i++ {
		matchSeed := *seed + int64(i)
		if err := runOne(engine, runner, i, matchSeed); err != nil {
			fmt.Fprintf(os.Stderr, "match %d (seed %d): %v\n", i, matchSeed, err)
			failures++
		}
	}
	if failures > 0 {
		os.Exit(1)
	}
}

func runOne(engine *game.Engine, runner *ai.Runner, index int, matchSeed int64) error {
	matchID := fmt.Sprintf("sim-%04d", index)
	players := [2]string{"ai-alpha", "ai-beta"}
	controllers := [2]game.Controller{game.ControllerAI, game.ControllerAI}

	if err := engine.StartMatch(matchID, players, controllers, matchSeed); err != nil {
		return err
	}
	defer engine.EndMatch(matchID)

	steps := runner.Pump(matchID, players[:], *maxSteps)

	view, err := engine.GetState(matchID)
	if err != nil {
		return err
	}
	if view.Winner == "" {
		return fmt.Errorf("no winner after %d actions (round %d, phase %s)", steps, view.Round, view.Phase)
	}

	history, err := engine.History(matchID, 0)
	if err != nil {
		return err
	}
	finalChecksum, err := engine.Replay(matchID, players, controllers, matchSeed, history)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	if finalChecksum != history[len(history)-1].Checksum {
		return fmt.Errorf("final checksum mismatch after replay")
	}

	fmt.Printf("match %s: winner=%s rounds=%d actions=%d checksum=%s\n",
		matchID, view.Winner, view.Round, steps, finalChecksum[:12])
	return nil
}
