package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Farjord/dronewars-server/internal/game"
)

// syncFixture wires a host and one guest mirror over in-memory senders so the
// whole relay round-trips synchronously in a test.
type syncFixture struct {
	t       *testing.T
	engine  *game.Engine
	host    *Host
	mirror  *Mirror
	matchID string

	resyncRequests int
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	f := &syncFixture{t: t, matchID: "m-sync"}
	f.engine = game.NewEngine(logger)
	f.host = NewHost(f.engine, logger)

	players := [2]string{"alice", "bob"}
	controllers := [2]game.Controller{game.ControllerHuman, game.ControllerHuman}
	require.NoError(t, f.engine.StartMatch(f.matchID, players, controllers, 7))
	f.host.RegisterMatch(f.matchID, 7, players, controllers)

	var toGuest Sender = func(env Envelope) error {
		return f.mirror.Handle(env)
	}
	toHost := func(env Envelope) error {
		if env.Type == MessageRequestFullSync {
			f.resyncRequests++
		}
		return f.host.Handle(env, toGuest)
	}
	f.mirror = NewMirror(f.matchID, toHost, logger)
	require.NoError(t, f.host.AttachGuest(f.matchID, "bob", toGuest))
	return f
}

func (f *syncFixture) hostView() game.GameStateView {
	f.t.Helper()
	view, err := f.engine.GetState(f.matchID)
	require.NoError(f.t, err)
	return view
}

func (f *syncFixture) act(action game.Action) {
	f.t.Helper()
	result, err := f.engine.ProcessAction(f.matchID, action)
	require.NoError(f.t, err)
	require.True(f.t, result.Accepted, "host rejected %s: %s", action.Type, result.Reason)
}

func ack(playerID string) game.Action {
	return game.Action{Type: game.ActionAcknowledgeFirstPlayer, ActingPlayerID: playerID}
}

func TestMirrorConvergesOnLiveActions(t *testing.T) {
	f := newSyncFixture(t)

	// Initial full sync already landed.
	assert.Equal(t, f.hostView(), f.mirror.View())

	f.act(ack("alice"))
	f.act(ack("bob"))
	for _, id := range []string{"alice", "bob"} {
		f.act(game.Action{
			Type:           game.ActionCommitPhase,
			ActingPlayerID: id,
			Payload:        game.Payload{Phase: "OPTIONAL_DISCARD"},
		})
	}

	assert.Equal(t, f.hostView(), f.mirror.View(), "mirror must track the host action by action")
	assert.Zero(t, f.resyncRequests)

	history, err := f.engine.History(f.matchID, 0)
	require.NoError(t, err)
	assert.Equal(t, history[len(history)-1].Checksum, f.mirror.Checksum())
}

func TestMirrorIntentRoundTrip(t *testing.T) {
	f := newSyncFixture(t)

	// The guest submits through the mirror; the host processes and relays the
	// accepted record back, which is when the mirror's state moves.
	require.NoError(t, f.mirror.SubmitIntent(ack("bob")))

	view := f.mirror.View()
	assert.True(t, view.Players["bob"].AckedFirstPlayer)
	assert.Equal(t, f.hostView(), view)
}

func TestMirrorIgnoresDuplicateRecords(t *testing.T) {
	f := newSyncFixture(t)
	f.act(ack("alice"))
	f.act(ack("bob"))

	history, err := f.engine.History(f.matchID, 0)
	require.NoError(t, err)
	require.NotEmpty(t, history)

	before := f.mirror.View()
	stale := game.GameStateView{Seq: history[0].Seq}
	env, err := Encode(MessageAction, f.matchID, ActionPayload{Record: history[0], View: stale})
	require.NoError(t, err)
	require.NoError(t, f.mirror.Handle(env))

	assert.Equal(t, before, f.mirror.View(), "replayed old record must be a no-op")
	assert.Zero(t, f.resyncRequests)
}

func TestMirrorSequenceGapTriggersResync(t *testing.T) {
	f := newSyncFixture(t)
	f.act(ack("alice"))

	// A record far ahead of the cursor cannot be applied in order.
	fabricated := game.AcceptedAction{Seq: 40, Action: ack("bob"), Checksum: "irrelevant"}
	env, err := Encode(MessageAction, f.matchID, ActionPayload{Record: fabricated, View: game.GameStateView{Seq: 40}})
	require.NoError(t, err)
	require.NoError(t, f.mirror.Handle(env))

	assert.Equal(t, 1, f.resyncRequests)
	// The resync request was answered synchronously with a full state
	// transfer, so the mirror is already consistent again.
	assert.Equal(t, f.hostView(), f.mirror.View())
}

func TestMirrorAdoptsRelayedStateVerbatim(t *testing.T) {
	f := newSyncFixture(t)
	f.act(ack("alice"))

	// Cut the live relay so the next record can be delivered by hand.
	f.host.DetachGuest(f.matchID, "bob")
	f.act(ack("bob"))

	history, err := f.engine.History(f.matchID, 0)
	require.NoError(t, err)
	record := history[len(history)-1]

	// The relayed view is authoritative even where it disagrees with what
	// local rules would compute: the mirror installs it without re-running
	// any game logic.
	view := f.hostView()
	doctored := view.Players["alice"]
	doctored.Energy = 42
	view.Players["alice"] = doctored

	env, err := Encode(MessageAction, f.matchID, ActionPayload{Record: record, View: view})
	require.NoError(t, err)
	require.NoError(t, f.mirror.Handle(env))

	assert.Equal(t, 42, f.mirror.View().Players["alice"].Energy)
	assert.Zero(t, f.resyncRequests)
}

func TestMirrorRejectsRecordViewMismatch(t *testing.T) {
	f := newSyncFixture(t)

	f.host.DetachGuest(f.matchID, "bob")
	f.act(ack("alice"))

	history, err := f.engine.History(f.matchID, 0)
	require.NoError(t, err)
	record := history[len(history)-1]

	// A view that does not belong to its record cannot be trusted.
	view := f.hostView()
	view.Seq = record.Seq + 5

	env, err := Encode(MessageAction, f.matchID, ActionPayload{Record: record, View: view})
	require.NoError(t, err)
	require.NoError(t, f.mirror.Handle(env))

	assert.Equal(t, 1, f.resyncRequests)
	assert.Equal(t, f.hostView(), f.mirror.View())
}

func TestHostCatchUpFallsBackToFullSync(t *testing.T) {
	f := newSyncFixture(t)
	f.act(ack("alice"))
	f.act(ack("bob"))

	// Rewind the guest cursor so the next action finds a multi-record
	// backlog. Only the newest post-state is at hand, so the host must
	// answer with a full transfer rather than replayable deltas.
	f.host.mu.Lock()
	f.host.guests[f.matchID][0].lastSeq = 0
	f.host.mu.Unlock()

	f.act(game.Action{
		Type:           game.ActionCommitPhase,
		ActingPlayerID: "alice",
		Payload:        game.Payload{Phase: "OPTIONAL_DISCARD"},
	})

	assert.Equal(t, f.hostView(), f.mirror.View())
	assert.Zero(t, f.resyncRequests, "the catch-up is host-initiated")
}

func TestLateGuestGetsFullState(t *testing.T) {
	logger := zaptest.NewLogger(t)
	engine := game.NewEngine(logger)
	host := NewHost(engine, logger)

	players := [2]string{"alice", "bob"}
	controllers := [2]game.Controller{game.ControllerHuman, game.ControllerHuman}
	require.NoError(t, engine.StartMatch("late", players, controllers, 11))
	host.RegisterMatch("late", 11, players, controllers)

	// History accumulates before any guest is attached.
	for _, id := range players {
		result, err := engine.ProcessAction("late", ack(id))
		require.NoError(t, err)
		require.True(t, result.Accepted)
	}

	var mirror *Mirror
	toGuest := Sender(func(env Envelope) error { return mirror.Handle(env) })
	toHost := func(env Envelope) error { return host.Handle(env, toGuest) }
	mirror = NewMirror("late", toHost, logger)

	require.NoError(t, host.AttachGuest("late", "bob", toGuest))

	hostView, err := engine.GetState("late")
	require.NoError(t, err)
	assert.Equal(t, hostView, mirror.View(), "full sync must cover pre-attachment history")
	assert.False(t, mirror.View().AwaitingAck)
}

func TestHandleRejectsUnknownEnvelope(t *testing.T) {
	f := newSyncFixture(t)
	err := f.host.Handle(Envelope{Type: "gibberish", MatchID: f.matchID}, func(Envelope) error { return nil })
	assert.Error(t, err)

	err = f.mirror.Handle(Envelope{Type: "gibberish", MatchID: f.matchID})
	assert.Error(t, err)
}
