package match

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Farjord/dronewars-server/internal/game"
)

func newTestManager(t *testing.T) (*Manager, *game.Engine) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	engine := game.NewEngine(logger)
	return NewManager(engine, 6, 10*time.Minute, logger), engine
}

func TestCreateAndJoin(t *testing.T) {
	m, engine := newTestManager(t)

	var started [2]string
	m.OnMatchStarted = func(matchID string, seed int64, playerIDs [2]string, controllers [2]game.Controller) {
		started = playerIDs
	}

	lobby, code, err := m.Create("alice", false)
	require.NoError(t, err)
	require.Len(t, code, 6)
	for _, r := range code {
		assert.True(t, strings.ContainsRune(codeAlphabet, r), "code character %q outside the alphabet", r)
	}
	assert.Equal(t, StatusWaiting, lobby.Status)
	assert.Empty(t, lobby.GuestID)

	joined, err := m.Join("bob", code)
	require.NoError(t, err)
	assert.Equal(t, lobby.MatchID, joined.MatchID)
	assert.Equal(t, StatusStarted, joined.Status)
	assert.Equal(t, "bob", joined.GuestID)
	assert.Equal(t, [2]string{"alice", "bob"}, started)

	view, err := engine.GetState(lobby.MatchID)
	require.NoError(t, err)
	assert.Len(t, view.Players, 2)
}

func TestJoinWrongCode(t *testing.T) {
	m, _ := newTestManager(t)
	_, _, err := m.Create("alice", false)
	require.NoError(t, err)

	_, err = m.Join("bob", "WRONG1")
	assert.Error(t, err)
}

func TestJoinOwnLobbyRejected(t *testing.T) {
	m, _ := newTestManager(t)
	lobby, code, err := m.Create("alice", false)
	require.NoError(t, err)

	_, err = m.Join("alice", code)
	require.Error(t, err)

	// The lobby survives the failed attempt.
	got, ok := m.Get(lobby.MatchID)
	require.True(t, ok)
	assert.Equal(t, StatusWaiting, got.Status)

	_, err = m.Join("bob", code)
	assert.NoError(t, err)
}

func TestCreateRequiresHostID(t *testing.T) {
	m, _ := newTestManager(t)
	_, _, err := m.Create("", false)
	assert.Error(t, err)
}

func TestCreateVsAIStartsImmediately(t *testing.T) {
	m, engine := newTestManager(t)

	var callbackControllers [2]game.Controller
	m.OnMatchStarted = func(matchID string, seed int64, playerIDs [2]string, controllers [2]game.Controller) {
		callbackControllers = controllers
	}

	lobby, code, err := m.Create("alice", true)
	require.NoError(t, err)
	assert.Empty(t, code, "AI matches have no join code")
	assert.Equal(t, StatusStarted, lobby.Status)
	assert.Equal(t, "ai-"+lobby.MatchID[:8], lobby.GuestID)
	assert.Equal(t, [2]game.Controller{game.ControllerHuman, game.ControllerAI}, lobby.Controllers)
	assert.Equal(t, lobby.Controllers, callbackControllers)

	_, err = engine.GetState(lobby.MatchID)
	assert.NoError(t, err, "engine match must exist right after create")
}

func TestExpireStale(t *testing.T) {
	m, _ := newTestManager(t)
	waiting, code, err := m.Create("alice", false)
	require.NoError(t, err)
	ai, _, err := m.Create("carol", true)
	require.NoError(t, err)

	expired := m.ExpireStale(time.Now().Add(11 * time.Minute))
	assert.Equal(t, 1, expired)

	_, ok := m.Get(waiting.MatchID)
	assert.False(t, ok, "expired lobby must be removed")
	_, ok = m.Get(ai.MatchID)
	assert.True(t, ok, "started matches are not expired")

	_, err = m.Join("bob", code)
	assert.Error(t, err, "join code must die with the lobby")
}

func TestRemove(t *testing.T) {
	m, _ := newTestManager(t)
	lobby, _, err := m.Create("alice", true)
	require.NoError(t, err)

	m.Remove(lobby.MatchID)
	_, ok := m.Get(lobby.MatchID)
	assert.False(t, ok)
}
