package ai

import (
	"go.uber.org/zap"

	"github.com/Farjord/dronewars-server/internal/game"
	"github.com/Farjord/dronewars-server/internal/game/targeting"
)

// Runner drives the AI seats of a match through the engine's public
// pipeline. The session layer attaches a runner when a match has at least
// one AI-controlled player; cmd/simulate pumps it directly.
type Runner struct {
	engine   *game.Engine
	director *Director
	logger   *zap.Logger
}

// NewRunner creates a runner backed by the given director.
func NewRunner(engine *game.Engine, director *Director, logger *zap.Logger) *Runner {
	return &Runner{engine: engine, director: director, logger: logger}
}

// Step makes at most one decision for the given AI seats and submits it.
// Returns true when an action was accepted, false when no seat had a move.
func (r *Runner) Step(matchID string, players []string) bool {
	view, err := r.engine.GetState(matchID)
	if err != nil {
		return false
	}
	route := func(actingPlayerID string, source targeting.Source, def targeting.Definition) []targeting.Descriptor {
		out, routeErr := r.engine.RouteTargeting(matchID, actingPlayerID, source, def)
		if routeErr != nil {
			return nil
		}
		return out
	}

	for _, playerID := range players {
		act, ok := r.director.Decide(view, playerID, route)
		if !ok {
			continue
		}
		result, err := r.engine.ProcessAction(matchID, act)
		if err != nil {
			r.logger.Error("ai action failed", zap.String("match_id", matchID), zap.Error(err))
			return false
		}
		if !result.Accepted {
			// A rejection here means the heuristics proposed an illegal move;
			// log it loudly rather than retry-looping on the same decision.
			r.logger.Warn("ai action rejected",
				zap.String("match_id", matchID),
				zap.String("player", playerID),
				zap.String("type", string(act.Type)),
				zap.String("reason", result.Reason),
			)
			continue
		}
		return true
	}
	return false
}

// Pump repeatedly steps until no AI seat has a move or the step limit is
// reached. Returns the number of accepted actions.
func (r *Runner) Pump(matchID string, players []string, maxSteps int) int {
	steps := 0
	for steps < maxSteps {
		if !r.Step(matchID, players) {
			break
		}
		steps++
	}
	return steps
}

// Attach spawns a background loop that pumps the AI seats after every
// accepted action in the match. Returns a stop function.
func (r *Runner) Attach(matchID string, players []string) func() {
	kick := make(chan struct{}, 1)
	done := make(chan struct{})

	unsubscribe := r.engine.Subscribe(func(id string, _ game.GameStateView) {
		if id != matchID {
			return
		}
		select {
		case kick <- struct{}{}:
		default:
		}
	})

	go func() {
		for {
			select {
			case <-kick:
				for r.Step(matchID, players) {
				}
			case <-done:
				return
			}
		}
	}()

	// Initial kick so AI-first matches start moving without a human action.
	kick <- struct{}{}

	return func() {
		unsubscribe()
		close(done)
	}
}
