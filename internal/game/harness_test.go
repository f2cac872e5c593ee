package game

import (
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/Farjord/dronewars-server/internal/game/rules"
)

// matchHarness sets up an engine with one match and shortcuts for driving it
// through the round structure. Tests manipulate internal state directly for
// scenario setup, then exercise behavior through ProcessAction.
type matchHarness struct {
	t       *testing.T
	engine  *Engine
	matchID string
	first   string
	second  string
}

func newMatchHarness(t *testing.T, seed int64, controllers [2]Controller) *matchHarness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	engine := NewEngine(logger)
	matchID := "match-under-test"
	players := [2]string{"alice", "bob"}

	if err := engine.StartMatch(matchID, players, controllers, seed); err != nil {
		t.Fatalf("failed to start match: %v", err)
	}

	h := &matchHarness{t: t, engine: engine, matchID: matchID}
	gs := h.gs()
	gs.mu.RLock()
	h.first = gs.phases.FirstPlayer()
	gs.mu.RUnlock()
	h.second = "bob"
	if h.first == "bob" {
		h.second = "alice"
	}
	return h
}

func newHumanHarness(t *testing.T, seed int64) *matchHarness {
	return newMatchHarness(t, seed, [2]Controller{ControllerHuman, ControllerHuman})
}

func (h *matchHarness) gs() *gameState {
	h.t.Helper()
	h.engine.mu.RLock()
	defer h.engine.mu.RUnlock()
	gs, ok := h.engine.matches[h.matchID]
	if !ok {
		h.t.Fatalf("match %s not found", h.matchID)
	}
	return gs
}

// submit runs an action and returns the result, failing on engine errors.
func (h *matchHarness) submit(action Action) Result {
	h.t.Helper()
	result, err := h.engine.ProcessAction(h.matchID, action)
	if err != nil {
		h.t.Fatalf("ProcessAction returned error: %v", err)
	}
	return result
}

// accept runs an action and fails the test if it is rejected.
func (h *matchHarness) accept(action Action) Result {
	h.t.Helper()
	result := h.submit(action)
	if !result.Accepted {
		h.t.Fatalf("expected %s by %s to be accepted, rejected: %s",
			action.Type, action.ActingPlayerID, result.Reason)
	}
	return result
}

// expectReject runs an action and fails the test if it is accepted.
func (h *matchHarness) expectReject(action Action) Result {
	h.t.Helper()
	result := h.submit(action)
	if result.Accepted {
		h.t.Fatalf("expected %s by %s to be rejected", action.Type, action.ActingPlayerID)
	}
	return result
}

func (h *matchHarness) ackBoth() {
	h.t.Helper()
	for _, id := range []string{h.first, h.second} {
		h.accept(Action{Type: ActionAcknowledgeFirstPlayer, ActingPlayerID: id})
	}
}

func (h *matchHarness) commitBoth(phase rules.Phase) {
	h.t.Helper()
	for _, id := range []string{h.first, h.second} {
		h.accept(Action{
			Type:           ActionCommitPhase,
			ActingPlayerID: id,
			Payload:        Payload{Phase: phase.String()},
		})
	}
}

// toDeployment drives a fresh match to the deployment phase.
func (h *matchHarness) toDeployment() {
	h.t.Helper()
	h.ackBoth()
	h.commitBoth(rules.PhaseOptionalDiscard)
	h.commitBoth(rules.PhaseAllocateShields)
	if got := h.phase(); got != rules.PhaseDeployment {
		h.t.Fatalf("expected DEPLOYMENT, got %s", got)
	}
}

// toAction drives a fresh match to the action phase.
func (h *matchHarness) toAction() {
	h.t.Helper()
	h.toDeployment()
	h.passBoth()
	if got := h.phase(); got != rules.PhaseAction {
		h.t.Fatalf("expected ACTION, got %s", got)
	}
}

// passBoth has both players pass out of an alternating phase.
func (h *matchHarness) passBoth() {
	h.t.Helper()
	h.accept(Action{Type: ActionTurnTransition, ActingPlayerID: h.first, Payload: Payload{Pass: true}})
	h.accept(Action{Type: ActionTurnTransition, ActingPlayerID: h.second, Payload: Payload{Pass: true}})
}

func (h *matchHarness) phase() rules.Phase {
	gs := h.gs()
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	return gs.phases.CurrentPhase()
}

func (h *matchHarness) view() GameStateView {
	h.t.Helper()
	view, err := h.engine.GetState(h.matchID)
	if err != nil {
		h.t.Fatalf("GetState: %v", err)
	}
	return view
}

func (h *matchHarness) checksum() string {
	gs := h.gs()
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	return gs.checksum()
}

// place puts a drone on the board directly, bypassing deployment costs.
func (h *matchHarness) place(playerID, droneName, lane string) string {
	h.t.Helper()
	gs := h.gs()
	gs.mu.Lock()
	defer gs.mu.Unlock()
	d := gs.placeDrone(gs.players[playerID], droneName, lane)
	return d.InstanceID
}

func (h *matchHarness) setEnergy(playerID string, energy int) {
	gs := h.gs()
	gs.mu.Lock()
	defer gs.mu.Unlock()
	gs.players[playerID].Energy = energy
}

func (h *matchHarness) setMomentum(playerID string, momentum int) {
	gs := h.gs()
	gs.mu.Lock()
	defer gs.mu.Unlock()
	gs.players[playerID].Momentum = momentum
}

func (h *matchHarness) addStatus(instanceID string, kind StatusKind) {
	h.t.Helper()
	gs := h.gs()
	gs.mu.Lock()
	defer gs.mu.Unlock()
	d, ok := gs.drones[instanceID]
	if !ok {
		h.t.Fatalf("drone %s not found", instanceID)
	}
	d.Statuses.Add(kind, 1)
}

func (h *matchHarness) setExhausted(instanceID string) {
	h.t.Helper()
	gs := h.gs()
	gs.mu.Lock()
	defer gs.mu.Unlock()
	d, ok := gs.drones[instanceID]
	if !ok {
		h.t.Fatalf("drone %s not found", instanceID)
	}
	d.Exhausted = true
}

func (h *matchHarness) setSection(playerID, name string, hull, shields int) {
	gs := h.gs()
	gs.mu.Lock()
	defer gs.mu.Unlock()
	s := gs.players[playerID].Sections[name]
	s.Hull = hull
	s.Shields = shields
}

func (h *matchHarness) drone(instanceID string) (internalDrone, bool) {
	gs := h.gs()
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	d, ok := gs.drones[instanceID]
	if !ok {
		return internalDrone{}, false
	}
	return *d, true
}

// handIDs returns the card instance IDs in a player's hand.
func (h *matchHarness) handIDs(playerID string) []string {
	gs := h.gs()
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	out := make([]string, 0, len(gs.players[playerID].Hand))
	for _, c := range gs.players[playerID].Hand {
		out = append(out, c.InstanceID)
	}
	return out
}

// giveCard injects a specific card into a player's hand.
func (h *matchHarness) giveCard(playerID, defName string) string {
	gs := h.gs()
	gs.mu.Lock()
	defer gs.mu.Unlock()
	card := cardInstance{InstanceID: gs.nextID("card"), DefName: defName}
	gs.players[playerID].Hand = append(gs.players[playerID].Hand, card)
	return card.InstanceID
}

func (h *matchHarness) player(playerID string) internalPlayer {
	gs := h.gs()
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	return *gs.players[playerID]
}
