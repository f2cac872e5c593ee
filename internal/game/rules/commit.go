package rules

import (
	"sync"
)

// Commitment is one player's completion record for a simultaneous phase.
// Completion is a single atomic flag flip; Data carries whatever the phase
// needs (shield allocation, discarded card IDs) and is opaque to the tracker.
type Commitment struct {
	Completed bool
	Data      map[string]string
}

// CommitTracker records per-phase, per-player commitment flags for
// simultaneous phases and notifies the phase machine exactly once, at the
// instant the second flag flips true. It tolerates either player committing
// first and treats duplicate or late commits as no-ops.
type CommitTracker struct {
	mu          sync.Mutex
	bus         *EventBus
	players     [2]string
	commitments map[Phase]map[string]Commitment
	onBoth      func(Phase)
}

// NewCommitTracker creates a tracker for the two given players.
func NewCommitTracker(bus *EventBus, player1, player2 string) *CommitTracker {
	return &CommitTracker{
		bus:         bus,
		players:     [2]string{player1, player2},
		commitments: make(map[Phase]map[string]Commitment),
	}
}

// OnBothComplete registers the callback invoked when both players have
// committed a phase. Invoked synchronously, outside the tracker lock.
func (ct *CommitTracker) OnBothComplete(fn func(Phase)) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.onBoth = fn
}

// Begin initializes (or re-initializes) the commitment slots for a phase.
// Called when a simultaneous phase starts.
func (ct *CommitTracker) Begin(phase Phase) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	slots := make(map[string]Commitment, 2)
	for _, p := range ct.players {
		slots[p] = Commitment{}
	}
	ct.commitments[phase] = slots
}

// Commit marks the player's required actions for the phase as submitted.
// Idempotent: committing an already-completed slot changes nothing and does
// not re-fire the both-complete notification. Returns true when this call
// newly completed the slot.
func (ct *CommitTracker) Commit(phase Phase, playerID string, data map[string]string) bool {
	ct.mu.Lock()
	slots, ok := ct.commitments[phase]
	if !ok {
		slots = make(map[string]Commitment, 2)
		for _, p := range ct.players {
			slots[p] = Commitment{}
		}
		ct.commitments[phase] = slots
	}
	slot, known := slots[playerID]
	if !known || slot.Completed {
		ct.mu.Unlock()
		return false
	}
	slots[playerID] = Commitment{Completed: true, Data: data}

	bothDone := true
	for _, p := range ct.players {
		if !slots[p].Completed {
			bothDone = false
			break
		}
	}
	onBoth := ct.onBoth
	ct.mu.Unlock()

	evt := NewEvent(EventCommitRecorded, "", "", playerID)
	evt.Data = phase.String()
	ct.bus.Publish(evt)

	if bothDone {
		complete := NewEvent(EventBothPlayersComplete, "", "", "")
		complete.Data = phase.String()
		ct.bus.Publish(complete)
		if onBoth != nil {
			onBoth(phase)
		}
	}
	return true
}

// Status returns a copy of both players' commitment flags for the phase.
func (ct *CommitTracker) Status(phase Phase) map[string]Commitment {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	out := make(map[string]Commitment, 2)
	slots, ok := ct.commitments[phase]
	if !ok {
		for _, p := range ct.players {
			out[p] = Commitment{}
		}
		return out
	}
	for player, slot := range slots {
		dataCopy := make(map[string]string, len(slot.Data))
		for k, v := range slot.Data {
			dataCopy[k] = v
		}
		out[player] = Commitment{Completed: slot.Completed, Data: dataCopy}
	}
	return out
}

// Completed reports whether the given player has committed the phase.
func (ct *CommitTracker) Completed(phase Phase, playerID string) bool {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	slots, ok := ct.commitments[phase]
	if !ok {
		return false
	}
	return slots[playerID].Completed
}

// Clear drops the commitment record for a phase. Called on phase exit.
func (ct *CommitTracker) Clear(phase Phase) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	delete(ct.commitments, phase)
}
