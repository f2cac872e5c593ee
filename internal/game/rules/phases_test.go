package rules

import (
	"testing"
)

func TestPhaseStringRoundTrip(t *testing.T) {
	for phase, name := range phaseNames {
		if phase.String() != name {
			t.Errorf("String(%d) = %s, want %s", int(phase), phase.String(), name)
		}
		parsed, ok := ParsePhase(name)
		if !ok || parsed != phase {
			t.Errorf("ParsePhase(%s) = %v, %v", name, parsed, ok)
		}
	}
	if _, ok := ParsePhase("NOT_A_PHASE"); ok {
		t.Error("ParsePhase accepted an unknown name")
	}
}

func TestPhaseSimultaneous(t *testing.T) {
	tests := []struct {
		phase Phase
		want  bool
	}{
		{PhaseOptionalDiscard, true},
		{PhaseMandatoryDiscard, true},
		{PhaseMandatoryDroneRemoval, true},
		{PhaseAllocateShields, true},
		{PhaseDeployment, false},
		{PhaseAction, false},
		{PhaseGameOver, false},
	}
	for _, tt := range tests {
		if got := tt.phase.Simultaneous(); got != tt.want {
			t.Errorf("%s.Simultaneous() = %t, want %t", tt.phase, got, tt.want)
		}
	}
}

func TestAdvanceFullRound(t *testing.T) {
	pm := NewPhaseMachine(NewEventBus(), "alice")
	if pm.CurrentPhase() != PhaseOptionalDiscard || pm.RoundNumber() != 1 {
		t.Fatalf("fresh machine at %s round %d", pm.CurrentPhase(), pm.RoundNumber())
	}

	want := []Phase{
		PhaseMandatoryDiscard,
		PhaseMandatoryDroneRemoval,
		PhaseAllocateShields,
		PhaseDeployment,
		PhaseAction,
	}
	for i, expected := range want {
		if got := pm.Advance(nil); got != expected {
			t.Fatalf("advance %d: got %s, want %s", i, got, expected)
		}
	}
	if pm.RoundNumber() != 1 {
		t.Fatalf("round changed mid-sequence: %d", pm.RoundNumber())
	}

	// Advancing past ACTION wraps into round 2.
	if got := pm.Advance(nil); got != PhaseOptionalDiscard {
		t.Fatalf("wrap landed on %s", got)
	}
	if pm.RoundNumber() != 2 {
		t.Fatalf("round after wrap = %d, want 2", pm.RoundNumber())
	}
}

func TestAdvanceSkipsInapplicablePhases(t *testing.T) {
	pm := NewPhaseMachine(NewEventBus(), "alice")
	applies := func(p Phase) bool {
		return p != PhaseMandatoryDiscard && p != PhaseMandatoryDroneRemoval
	}
	if got := pm.Advance(applies); got != PhaseAllocateShields {
		t.Fatalf("conditional phases not skipped, landed on %s", got)
	}
}

func TestScheduledFirstPlayerAppliesOnWrap(t *testing.T) {
	pm := NewPhaseMachine(NewEventBus(), "alice")
	for pm.CurrentPhase() != PhaseAction {
		pm.Advance(nil)
	}
	pm.ScheduleNextFirstPlayer("bob")
	pm.Advance(nil)

	if pm.FirstPlayer() != "bob" {
		t.Fatalf("first player after wrap = %s, want bob", pm.FirstPlayer())
	}
	if pm.ActivePlayer() != "bob" {
		t.Fatalf("active player after wrap = %s, want bob", pm.ActivePlayer())
	}

	// With nothing scheduled the holder keeps initiative.
	for pm.CurrentPhase() != PhaseAction {
		pm.Advance(nil)
	}
	pm.Advance(nil)
	if pm.FirstPlayer() != "bob" {
		t.Fatalf("unscheduled wrap changed initiative to %s", pm.FirstPlayer())
	}
}

func TestActivePlayerResetsEachPhase(t *testing.T) {
	pm := NewPhaseMachine(NewEventBus(), "alice")
	pm.SetActivePlayer("bob")
	pm.Advance(nil)
	if pm.ActivePlayer() != "alice" {
		t.Fatalf("active player = %s, want the round's first player", pm.ActivePlayer())
	}
}

func TestFinishIsTerminal(t *testing.T) {
	bus := NewEventBus()
	var ended int
	bus.SubscribeTyped(EventGameEnded, func(Event) { ended++ })

	pm := NewPhaseMachine(bus, "alice")
	pm.Finish("alice")
	pm.Finish("alice") // second call is a no-op

	if !pm.Over() {
		t.Fatal("machine not over after Finish")
	}
	if pm.CurrentPhase() != PhaseGameOver {
		t.Fatalf("terminal phase = %s", pm.CurrentPhase())
	}
	if got := pm.Advance(nil); got != PhaseGameOver {
		t.Fatalf("advance after finish returned %s", got)
	}
	if ended != 1 {
		t.Fatalf("GAME_ENDED published %d times", ended)
	}
}

func TestAdvancePublishesTransitionEvent(t *testing.T) {
	bus := NewEventBus()
	var events []Event
	bus.SubscribeTyped(EventPhaseTransition, func(e Event) { events = append(events, e) })

	pm := NewPhaseMachine(bus, "alice")
	pm.Advance(nil)

	if len(events) != 1 {
		t.Fatalf("got %d transition events, want 1", len(events))
	}
	e := events[0]
	if e.Metadata["previous_phase"] != PhaseOptionalDiscard.String() {
		t.Errorf("previous_phase = %s", e.Metadata["previous_phase"])
	}
	if e.Metadata["new_phase"] != PhaseMandatoryDiscard.String() {
		t.Errorf("new_phase = %s", e.Metadata["new_phase"])
	}
	if e.Amount != 1 {
		t.Errorf("round in event = %d", e.Amount)
	}
}
