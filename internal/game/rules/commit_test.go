package rules

import (
	"testing"
)

func TestCommitBothOrders(t *testing.T) {
	for _, order := range [][2]string{{"alice", "bob"}, {"bob", "alice"}} {
		bus := NewEventBus()
		var completes int
		bus.SubscribeTyped(EventBothPlayersComplete, func(Event) { completes++ })

		ct := NewCommitTracker(bus, "alice", "bob")
		ct.Begin(PhaseAllocateShields)

		if !ct.Commit(PhaseAllocateShields, order[0], nil) {
			t.Fatalf("first commit by %s rejected", order[0])
		}
		if completes != 0 {
			t.Fatal("both-complete fired after one commit")
		}
		if !ct.Commit(PhaseAllocateShields, order[1], nil) {
			t.Fatalf("second commit by %s rejected", order[1])
		}
		if completes != 1 {
			t.Fatalf("both-complete fired %d times", completes)
		}
	}
}

func TestCommitIdempotent(t *testing.T) {
	bus := NewEventBus()
	var completes int
	bus.SubscribeTyped(EventBothPlayersComplete, func(Event) { completes++ })

	ct := NewCommitTracker(bus, "alice", "bob")
	ct.Begin(PhaseOptionalDiscard)

	ct.Commit(PhaseOptionalDiscard, "alice", map[string]string{"discards": "2"})
	if ct.Commit(PhaseOptionalDiscard, "alice", map[string]string{"discards": "5"}) {
		t.Fatal("duplicate commit reported as newly completed")
	}
	ct.Commit(PhaseOptionalDiscard, "bob", nil)
	ct.Commit(PhaseOptionalDiscard, "bob", nil)

	if completes != 1 {
		t.Fatalf("both-complete fired %d times, want exactly once", completes)
	}
	// The first commit's data wins.
	if got := ct.Status(PhaseOptionalDiscard)["alice"].Data["discards"]; got != "2" {
		t.Fatalf("duplicate commit overwrote data: %s", got)
	}
}

func TestCommitUnknownPlayer(t *testing.T) {
	ct := NewCommitTracker(NewEventBus(), "alice", "bob")
	ct.Begin(PhaseAllocateShields)
	if ct.Commit(PhaseAllocateShields, "mallory", nil) {
		t.Fatal("commit accepted from a player outside the match")
	}
}

func TestCommitWithoutBegin(t *testing.T) {
	ct := NewCommitTracker(NewEventBus(), "alice", "bob")
	// Commit before Begin lazily creates the slots.
	if !ct.Commit(PhaseOptionalDiscard, "alice", nil) {
		t.Fatal("commit before Begin rejected")
	}
	if !ct.Completed(PhaseOptionalDiscard, "alice") {
		t.Fatal("completion flag not recorded")
	}
}

func TestOnBothCompleteCallback(t *testing.T) {
	ct := NewCommitTracker(NewEventBus(), "alice", "bob")
	var got Phase = -1
	ct.OnBothComplete(func(p Phase) { got = p })

	ct.Begin(PhaseAllocateShields)
	ct.Commit(PhaseAllocateShields, "alice", nil)
	ct.Commit(PhaseAllocateShields, "bob", nil)

	if got != PhaseAllocateShields {
		t.Fatalf("callback phase = %v", got)
	}
}

func TestClearResetsPhase(t *testing.T) {
	ct := NewCommitTracker(NewEventBus(), "alice", "bob")
	ct.Begin(PhaseAllocateShields)
	ct.Commit(PhaseAllocateShields, "alice", nil)
	ct.Clear(PhaseAllocateShields)

	if ct.Completed(PhaseAllocateShields, "alice") {
		t.Fatal("clear did not drop the commitment")
	}
	status := ct.Status(PhaseAllocateShields)
	if status["alice"].Completed || status["bob"].Completed {
		t.Fatalf("status after clear: %+v", status)
	}
}

func TestBeginResetsExistingSlots(t *testing.T) {
	ct := NewCommitTracker(NewEventBus(), "alice", "bob")
	ct.Begin(PhaseOptionalDiscard)
	ct.Commit(PhaseOptionalDiscard, "alice", nil)
	ct.Begin(PhaseOptionalDiscard) // new round, same phase

	if ct.Completed(PhaseOptionalDiscard, "alice") {
		t.Fatal("Begin did not reset a stale commitment")
	}
}
