package game

import (
	"fmt"
	"sync"
	"time"

	"github.com/Farjord/dronewars-server/internal/game/rules"
	"github.com/Farjord/dronewars-server/internal/game/targeting"
	"go.uber.org/zap"
)

// InterceptionChooser supplies the interception decision for an
// AI-controlled defender. Implemented by the decision module; the returned
// instance ID must come from the candidate set (empty string declines).
type InterceptionChooser interface {
	ChooseInterceptor(view GameStateView, defenderID string, candidates []targeting.Descriptor) string
}

// StateListener receives a read-only snapshot after every accepted action.
type StateListener func(matchID string, view GameStateView)

// Engine is the authoritative action processor. It owns every match's
// canonical state and is the only component permitted to mutate it. Each
// match is serialized behind its own mutex: exactly one action is applied at
// any instant, and an action either fully succeeds or leaves the state
// untouched.
type Engine struct {
	logger  *zap.Logger
	mu      sync.RWMutex
	matches map[string]*gameState
	chooser InterceptionChooser

	listenerMu sync.RWMutex
	listeners  map[int]StateListener
	nextHandle int
}

// NewEngine creates an engine instance.
func NewEngine(logger *zap.Logger) *Engine {
	return &Engine{
		logger:    logger,
		matches:   make(map[string]*gameState),
		listeners: make(map[int]StateListener),
	}
}

// SetInterceptionChooser registers the decision module used for
// AI-controlled defenders.
func (e *Engine) SetInterceptionChooser(chooser InterceptionChooser) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.chooser = chooser
}

// Subscribe registers a listener notified with a state snapshot after every
// accepted action. Returns an unsubscribe function.
func (e *Engine) Subscribe(listener StateListener) func() {
	e.listenerMu.Lock()
	handle := e.nextHandle
	e.nextHandle++
	e.listeners[handle] = listener
	e.listenerMu.Unlock()
	return func() {
		e.listenerMu.Lock()
		delete(e.listeners, handle)
		e.listenerMu.Unlock()
	}
}

// notifyListeners fans a snapshot out to subscribers. Called after the match
// lock is released; the snapshot is already a deep copy.
func (e *Engine) notifyListeners(matchID string, view GameStateView) {
	e.listenerMu.RLock()
	defer e.listenerMu.RUnlock()
	for _, listener := range e.listeners {
		listener(matchID, view)
	}
}

// StartMatch initializes a new match. The seed drives every random choice in
// the match (deck shuffles, first player), which is what makes two
// identically-seeded instances fed the same action stream deterministic.
func (e *Engine) StartMatch(matchID string, playerIDs [2]string, controllers [2]Controller, seed int64) error {
	if matchID == "" {
		return fmt.Errorf("matchID is required")
	}
	if playerIDs[0] == "" || playerIDs[1] == "" || playerIDs[0] == playerIDs[1] {
		return fmt.Errorf("two distinct player IDs required")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.matches[matchID]; exists {
		return fmt.Errorf("match %s already exists", matchID)
	}
	e.matches[matchID] = newGameState(matchID, playerIDs, controllers, seed)

	e.logger.Info("match started",
		zap.String("match_id", matchID),
		zap.String("player1", playerIDs[0]),
		zap.String("player2", playerIDs[1]),
		zap.Int64("seed", seed),
	)
	return nil
}

// EndMatch drops a match from the engine.
func (e *Engine) EndMatch(matchID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.matches, matchID)
}

func (e *Engine) match(matchID string) (*gameState, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	gs, ok := e.matches[matchID]
	if !ok {
		return nil, fmt.Errorf("match %s not found", matchID)
	}
	return gs, nil
}

// ProcessAction is the sole mutation entry point. Validation failures come
// back as structured rejections with the state guaranteed unchanged; an
// error is returned only for unknown matches.
func (e *Engine) ProcessAction(matchID string, action Action) (Result, error) {
	gs, err := e.match(matchID)
	if err != nil {
		return Result{}, err
	}

	gs.mu.Lock()
	result := e.process(gs, action)
	var view GameStateView
	if result.Accepted {
		gs.seq++
		result.Seq = gs.seq
		result.Phase = gs.phases.CurrentPhase().String()
		result.Round = gs.phases.RoundNumber()
		result.Winner = gs.winner
		checksum := gs.checksum()
		gs.history = append(gs.history, AcceptedAction{
			Seq:      gs.seq,
			Action:   action,
			Checksum: checksum,
		})
		view = gs.viewLocked()
	}
	gs.mu.Unlock()

	if result.Accepted {
		e.logger.Debug("action accepted",
			zap.String("match_id", matchID),
			zap.String("type", string(action.Type)),
			zap.String("player", action.ActingPlayerID),
			zap.Uint64("seq", result.Seq),
		)
		e.notifyListeners(matchID, view)
	} else {
		e.logger.Debug("action rejected",
			zap.String("match_id", matchID),
			zap.String("type", string(action.Type)),
			zap.String("player", action.ActingPlayerID),
			zap.String("reason", result.Reason),
		)
	}
	return result, nil
}

// GetState returns a read-only snapshot of the match.
func (e *Engine) GetState(matchID string) (GameStateView, error) {
	gs, err := e.match(matchID)
	if err != nil {
		return GameStateView{}, err
	}
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	return gs.viewLocked(), nil
}

// History returns the ordered accepted-action records from the given
// sequence number (exclusive). Consumed by the sync adapter and the replayer.
func (e *Engine) History(matchID string, afterSeq uint64) ([]AcceptedAction, error) {
	gs, err := e.match(matchID)
	if err != nil {
		return nil, err
	}
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	var out []AcceptedAction
	for _, rec := range gs.history {
		if rec.Seq > afterSeq {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Log returns the structured match log.
func (e *Engine) Log(matchID string) ([]LogEntry, error) {
	gs, err := e.match(matchID)
	if err != nil {
		return nil, err
	}
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	out := make([]LogEntry, len(gs.log))
	copy(out, gs.log)
	return out, nil
}

// EventBus exposes the match's rules event bus for phase/commitment
// subscriptions (sync layer, session layer). Listeners must not mutate state.
func (e *Engine) EventBus(matchID string) (*rules.EventBus, error) {
	gs, err := e.match(matchID)
	if err != nil {
		return nil, err
	}
	return gs.bus, nil
}

// RouteTargeting exposes the targeting resolver against the current
// snapshot, for UI greying and the decision module. Pure read.
func (e *Engine) RouteTargeting(matchID, actingPlayerID string, source targeting.Source, def targeting.Definition) ([]targeting.Descriptor, error) {
	gs, err := e.match(matchID)
	if err != nil {
		return nil, err
	}
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	p1 := gs.boardFor(gs.playerOrder[0])
	p2 := gs.boardFor(gs.playerOrder[1])
	return targeting.Route(actingPlayerID, source, def, p1, p2), nil
}

// Replay re-drives a fresh match from a seed and an ordered action history,
// returning the final checksum. Any rejection mid-replay reports corruption.
func (e *Engine) Replay(matchID string, playerIDs [2]string, controllers [2]Controller, seed int64, history []AcceptedAction) (string, error) {
	replayID := matchID + "-replay-" + fmt.Sprintf("%d", time.Now().UnixNano())
	if err := e.StartMatch(replayID, playerIDs, controllers, seed); err != nil {
		return "", err
	}
	defer e.EndMatch(replayID)

	for _, rec := range history {
		result, err := e.ProcessAction(replayID, rec.Action)
		if err != nil {
			return "", err
		}
		if !result.Accepted {
			return "", fmt.Errorf("replay diverged at seq %d: %s", rec.Seq, result.Reason)
		}
		if rec.Checksum != "" {
			gs, _ := e.match(replayID)
			gs.mu.RLock()
			sum := gs.checksum()
			gs.mu.RUnlock()
			if sum != rec.Checksum {
				return "", fmt.Errorf("replay checksum mismatch at seq %d", rec.Seq)
			}
		}
	}

	gs, err := e.match(replayID)
	if err != nil {
		return "", err
	}
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	return gs.checksum(), nil
}
