package rules

import (
	"fmt"
	"strings"
)

// Phase represents the phases that make up one round of play.
type Phase int

const (
	PhaseOptionalDiscard Phase = iota
	PhaseMandatoryDiscard
	PhaseMandatoryDroneRemoval
	PhaseAllocateShields
	PhaseDeployment
	PhaseAction
	PhaseGameOver
)

var phaseNames = map[Phase]string{
	PhaseOptionalDiscard:       "OPTIONAL_DISCARD",
	PhaseMandatoryDiscard:      "MANDATORY_DISCARD",
	PhaseMandatoryDroneRemoval: "MANDATORY_DRONE_REMOVAL",
	PhaseAllocateShields:       "ALLOCATE_SHIELDS",
	PhaseDeployment:            "DEPLOYMENT",
	PhaseAction:                "ACTION",
	PhaseGameOver:              "GAME_OVER",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("PHASE_%d", int(p))
}

// Simultaneous reports whether both players act independently during the
// phase. Simultaneous phases advance only when both players have committed;
// the remaining phases alternate turns and advance on pass/turn-transition.
func (p Phase) Simultaneous() bool {
	switch p {
	case PhaseOptionalDiscard, PhaseMandatoryDiscard, PhaseMandatoryDroneRemoval, PhaseAllocateShields:
		return true
	}
	return false
}

// ParsePhase converts a phase name back to its Phase value.
func ParsePhase(name string) (Phase, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for phase, phaseName := range phaseNames {
		if phaseName == name {
			return phase, true
		}
	}
	return PhaseGameOver, false
}

// roundSequence is the fixed phase order within one round. The two mandatory
// phases are conditional and are skipped when neither player qualifies.
var roundSequence = []Phase{
	PhaseOptionalDiscard,
	PhaseMandatoryDiscard,
	PhaseMandatoryDroneRemoval,
	PhaseAllocateShields,
	PhaseDeployment,
	PhaseAction,
}

// PhaseMachine drives the per-round phase progression. It does not inspect
// game state itself; the caller supplies an applicability predicate so that
// conditional phases (mandatory discard/removal) are skipped when no player
// qualifies. Transitions are announced on the event bus, which is what keeps
// an independently-driven mirror instance in the identical phase sequence
// for the same ordered action history.
type PhaseMachine struct {
	bus          *EventBus
	orderIndex   int
	roundNumber  int
	firstPlayer  string
	activePlayer string
	pendingFirst string
	over         bool
}

// NewPhaseMachine creates a phase machine positioned at the first phase of
// round 1 with the given first player holding the turn.
func NewPhaseMachine(bus *EventBus, firstPlayer string) *PhaseMachine {
	first := strings.TrimSpace(firstPlayer)
	return &PhaseMachine{
		bus:          bus,
		orderIndex:   0,
		roundNumber:  1,
		firstPlayer:  first,
		activePlayer: first,
	}
}

// CurrentPhase returns the phase currently in progress.
func (pm *PhaseMachine) CurrentPhase() Phase {
	if pm.over {
		return PhaseGameOver
	}
	return roundSequence[pm.orderIndex]
}

// RoundNumber returns the current round number (1-based).
func (pm *PhaseMachine) RoundNumber() int {
	return pm.roundNumber
}

// FirstPlayer returns the player who opens alternating phases this round.
func (pm *PhaseMachine) FirstPlayer() string {
	return pm.firstPlayer
}

// ActivePlayer returns the player who currently holds the turn during an
// alternating phase. During simultaneous phases the value is not meaningful.
func (pm *PhaseMachine) ActivePlayer() string {
	return pm.activePlayer
}

// SetActivePlayer hands the turn to the given player.
func (pm *PhaseMachine) SetActivePlayer(player string) {
	pm.activePlayer = strings.TrimSpace(player)
}

// SetFirstPlayer records which player opens the round. Called once after the
// first-player determination is acknowledged by both sides.
func (pm *PhaseMachine) SetFirstPlayer(player string) {
	pm.firstPlayer = strings.TrimSpace(player)
	pm.activePlayer = pm.firstPlayer
	pm.bus.Publish(NewEvent(EventFirstPlayerChosen, pm.firstPlayer, "", pm.firstPlayer))
}

// Advance moves to the next applicable phase, wrapping into a new round after
// the action phase. The applies predicate decides whether a conditional phase
// is entered; unconditional phases are always entered. Returns the phase the
// machine landed on. A PHASE_TRANSITION event is published for the single
// transition the caller observes, carrying previous phase, new phase and
// round number.
func (pm *PhaseMachine) Advance(applies func(Phase) bool) Phase {
	if pm.over {
		return PhaseGameOver
	}
	previous := roundSequence[pm.orderIndex]

	for {
		pm.orderIndex++
		if pm.orderIndex >= len(roundSequence) {
			pm.orderIndex = 0
			pm.roundNumber++
			// Initiative alternates between rounds.
			pm.firstPlayer = pm.nextFirstPlayer()
			pm.bus.Publish(Event{
				Type:     EventRoundStarted,
				PlayerID: pm.firstPlayer,
				Amount:   pm.roundNumber,
			})
		}
		candidate := roundSequence[pm.orderIndex]
		if applies == nil || applies(candidate) {
			break
		}
	}

	next := roundSequence[pm.orderIndex]
	// Turn reverts to the round's first player at the start of a phase.
	pm.activePlayer = pm.firstPlayer

	evt := NewEvent(EventPhaseTransition, "", "", pm.activePlayer)
	evt.Amount = pm.roundNumber
	evt.Metadata["previous_phase"] = previous.String()
	evt.Metadata["new_phase"] = next.String()
	pm.bus.Publish(evt)

	return next
}

// Finish moves the machine to the terminal state and announces the winner.
func (pm *PhaseMachine) Finish(winner string) {
	if pm.over {
		return
	}
	pm.over = true
	pm.bus.Publish(NewEvent(EventGameEnded, winner, "", winner))
}

// Over reports whether the machine reached the terminal state.
func (pm *PhaseMachine) Over() bool {
	return pm.over
}

// nextFirstPlayer returns the scheduled opener for the new round, falling
// back to the current holder when the engine never scheduled one.
func (pm *PhaseMachine) nextFirstPlayer() string {
	if pm.pendingFirst != "" {
		next := pm.pendingFirst
		pm.pendingFirst = ""
		return next
	}
	return pm.firstPlayer
}

// ScheduleNextFirstPlayer records who opens the next round. The engine calls
// this when the action phase ends, before Advance wraps the round.
func (pm *PhaseMachine) ScheduleNextFirstPlayer(player string) {
	pm.pendingFirst = strings.TrimSpace(player)
}
