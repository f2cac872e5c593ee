package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Farjord/dronewars-server/internal/game"
	"github.com/Farjord/dronewars-server/internal/game/targeting"
)

func TestWeightsForPresets(t *testing.T) {
	tests := []struct {
		difficulty Difficulty
		want       Weights
	}{
		{DifficultyEasy, Weights{MaxInterceptCost: 1}},
		{DifficultyNormal, Weights{MaxInterceptCost: 2, EnergyReserve: 1, SectionAggression: 1, UseSectionAbilities: true}},
		{DifficultyHard, Weights{MaxInterceptCost: 4, EnergyReserve: 2, SectionAggression: 2, UseSectionAbilities: true}},
		{"unknown", Weights{MaxInterceptCost: 2, EnergyReserve: 1, SectionAggression: 1, UseSectionAbilities: true}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, WeightsFor(tt.difficulty), string(tt.difficulty))
	}
}

// interceptView builds a minimal snapshot with two defender drones in lane1.
func interceptView() game.GameStateView {
	return game.GameStateView{
		PlayerOrder: []string{"alice", "bob"},
		Players: map[string]game.PlayerView{
			"alice": {PlayerID: "alice", Lanes: map[string][]game.DroneView{}},
			"bob": {PlayerID: "bob", Lanes: map[string][]game.DroneView{
				"lane1": {
					{InstanceID: "d-guard", Name: "Guardian", OwnerID: "bob", Lane: "lane1", Cost: 3},
					{InstanceID: "d-scout", Name: "Scout", OwnerID: "bob", Lane: "lane1", Cost: 1},
				},
			}},
		},
	}
}

func TestChooseInterceptorPicksCheapest(t *testing.T) {
	d := NewDirector(zaptest.NewLogger(t), WeightsFor(DifficultyNormal))
	candidates := []targeting.Descriptor{
		{Kind: targeting.TargetDrone, ID: "d-guard", OwnerID: "bob", Lane: "lane1"},
		{Kind: targeting.TargetDrone, ID: "d-scout", OwnerID: "bob", Lane: "lane1"},
	}
	pick := d.ChooseInterceptor(interceptView(), "bob", candidates)
	assert.Equal(t, "d-scout", pick)
}

func TestChooseInterceptorDeclinesAboveThreshold(t *testing.T) {
	d := NewDirector(zaptest.NewLogger(t), Weights{MaxInterceptCost: 0})
	candidates := []targeting.Descriptor{
		{Kind: targeting.TargetDrone, ID: "d-guard", OwnerID: "bob", Lane: "lane1"},
	}
	assert.Equal(t, "", d.ChooseInterceptor(interceptView(), "bob", candidates))
	assert.Equal(t, "", d.ChooseInterceptor(interceptView(), "bob", nil))
}

func TestDecideAcknowledgesFirstPlayer(t *testing.T) {
	d := NewDirector(zaptest.NewLogger(t), WeightsFor(DifficultyNormal))
	view := game.GameStateView{
		AwaitingAck: true,
		PlayerOrder: []string{"alice", "bob"},
		Players: map[string]game.PlayerView{
			"alice": {PlayerID: "alice"},
			"bob":   {PlayerID: "bob", AckedFirstPlayer: true},
		},
	}
	act, ok := d.Decide(view, "alice", nil)
	require.True(t, ok)
	assert.Equal(t, game.ActionAcknowledgeFirstPlayer, act.Type)

	_, ok = d.Decide(view, "bob", nil)
	assert.False(t, ok, "already acknowledged, nothing to do")
}

func TestDecideAnswersSuppressionPending(t *testing.T) {
	d := NewDirector(zaptest.NewLogger(t), WeightsFor(DifficultyNormal))
	view := game.GameStateView{
		Phase:       "ACTION",
		PlayerOrder: []string{"alice", "bob"},
		Players: map[string]game.PlayerView{
			"alice": {PlayerID: "alice"},
			"bob":   {PlayerID: "bob"},
		},
		Pending: &game.PendingView{Token: "decision-0001", PlayerID: "alice", Kind: "suppression"},
	}
	act, ok := d.Decide(view, "alice", nil)
	require.True(t, ok)
	assert.Equal(t, game.ActionSuppressedConsumption, act.Type)
	assert.Equal(t, "decision-0001", act.Payload.Token)
	assert.True(t, act.Payload.Proceed)

	_, ok = d.Decide(view, "bob", nil)
	assert.False(t, ok, "pending addressed to the other seat")
}

func TestDiscardPicksHighestCostFirst(t *testing.T) {
	hand := []game.CardView{
		{InstanceID: "c1", Name: "ResupplyDrop"},  // cost 1
		{InstanceID: "c2", Name: "PlasmaBarrage"}, // cost 4
		{InstanceID: "c3", Name: "FocusFire"},     // cost 3
	}
	assert.Equal(t, []string{"c2", "c3"}, discardPicks(hand, 2))
	assert.Len(t, discardPicks(hand, 10), 3, "count is capped at hand size")
}

func TestAllocateShieldsWeakestFirst(t *testing.T) {
	d := NewDirector(zaptest.NewLogger(t), WeightsFor(DifficultyNormal))
	me := game.PlayerView{Sections: map[string]game.SectionView{
		"bridge":          {Name: "bridge", Hull: 10, MaxShields: 3},
		"powerCell":       {Name: "powerCell", Hull: 4, MaxShields: 3},
		"droneControlHub": {Name: "droneControlHub", Hull: 0, MaxShields: 3, Destroyed: true},
	}}
	allocation := d.allocateShields(me, 4)

	total := 0
	for _, n := range allocation {
		total += n
	}
	assert.Equal(t, 4, total)
	assert.Equal(t, 3, allocation["powerCell"], "weakest section saturates first")
	assert.Equal(t, 1, allocation["bridge"])
	assert.Zero(t, allocation["droneControlHub"], "destroyed sections take nothing")
}

func TestSpentEnergySurgeNotProposedAgain(t *testing.T) {
	d := NewDirector(zaptest.NewLogger(t), WeightsFor(DifficultyNormal))
	view := game.GameStateView{
		Phase:        "ACTION",
		ActivePlayer: "alice",
		PlayerOrder:  []string{"alice", "bob"},
		Players: map[string]game.PlayerView{
			"alice": {
				PlayerID: "alice",
				Energy:   0,
				Lanes:    map[string][]game.DroneView{},
				Sections: map[string]game.SectionView{
					"powerCell": {Name: "powerCell", Hull: 4},
				},
			},
			"bob": {PlayerID: "bob", Lanes: map[string][]game.DroneView{}},
		},
	}

	// Energy is below the reserve and the surge is available: use it.
	act, ok := d.Decide(view, "alice", nil)
	require.True(t, ok)
	require.Equal(t, game.ActionShipAbility, act.Type)
	assert.Equal(t, string(game.SectionAbilityEnergySurge), act.Payload.Ability)

	// Once spent this round it must not come back, or the seat would keep
	// proposing a move the engine rejects and never reach its pass.
	me := view.Players["alice"]
	me.UsedAbilities = []string{string(game.SectionAbilityEnergySurge)}
	view.Players["alice"] = me

	act, ok = d.Decide(view, "alice", nil)
	require.True(t, ok)
	assert.Equal(t, game.ActionTurnTransition, act.Type)
	assert.True(t, act.Payload.Pass)
}

func TestSectionAggressionPrefersOpenLaneSections(t *testing.T) {
	view := game.GameStateView{
		Phase:        "ACTION",
		ActivePlayer: "alice",
		PlayerOrder:  []string{"alice", "bob"},
		Players: map[string]game.PlayerView{
			"alice": {
				PlayerID: "alice",
				Energy:   0,
				Lanes: map[string][]game.DroneView{
					"lane1": {{InstanceID: "a-1", Name: "Fighter", Attack: 2, Hull: 3}},
					"lane2": {{InstanceID: "a-2", Name: "Fighter", Attack: 2, Hull: 3}},
				},
			},
			"bob": {
				PlayerID: "bob",
				Lanes: map[string][]game.DroneView{
					"lane1": {{InstanceID: "b-1", Name: "Scout", Hull: 1}},
				},
				Sections: map[string]game.SectionView{
					"bridge":          {Name: "bridge", Hull: 4},
					"powerCell":       {Name: "powerCell", Hull: 6},
					"droneControlHub": {Name: "droneControlHub", Hull: 8},
				},
			},
		},
	}

	cautious := NewDirector(zaptest.NewLogger(t), Weights{SectionAggression: 1})
	act, ok := cautious.Decide(view, "alice", nil)
	require.True(t, ok)
	require.Equal(t, game.ActionAttack, act.Type)
	assert.Equal(t, "b-1", act.Payload.TargetID, "low aggression clears enemy drones first")

	aggressive := NewDirector(zaptest.NewLogger(t), Weights{SectionAggression: 2})
	act, ok = aggressive.Decide(view, "alice", nil)
	require.True(t, ok)
	require.Equal(t, game.ActionAttack, act.Type)
	assert.Equal(t, "bridge", act.Payload.TargetID, "high aggression goes for the ship through the open lane")
	assert.Equal(t, "a-2", act.Payload.DroneID)
}

func TestDecideDeterministic(t *testing.T) {
	logger := zaptest.NewLogger(t)
	engine := game.NewEngine(logger)
	director := NewDirector(logger, WeightsFor(DifficultyNormal))
	engine.SetInterceptionChooser(director)

	players := [2]string{"ai-alpha", "ai-beta"}
	controllers := [2]game.Controller{game.ControllerAI, game.ControllerAI}
	require.NoError(t, engine.StartMatch("determinism", players, controllers, 99))

	view, err := engine.GetState("determinism")
	require.NoError(t, err)

	first, ok1 := director.Decide(view, "ai-alpha", nil)
	second, ok2 := director.Decide(view, "ai-alpha", nil)
	require.True(t, ok1)
	require.True(t, ok2)
	assert.Equal(t, first, second, "same snapshot must yield the same decision")
}

func TestAIMatchRunsToCompletion(t *testing.T) {
	logger := zaptest.NewLogger(t)
	engine := game.NewEngine(logger)
	director := NewDirector(logger, WeightsFor(DifficultyNormal))
	engine.SetInterceptionChooser(director)
	runner := NewRunner(engine, director, logger)

	players := [2]string{"ai-alpha", "ai-beta"}
	controllers := [2]game.Controller{game.ControllerAI, game.ControllerAI}
	require.NoError(t, engine.StartMatch("full-match", players, controllers, 4242))

	steps := runner.Pump("full-match", players[:], 20000)
	require.Greater(t, steps, 0)

	view, err := engine.GetState("full-match")
	require.NoError(t, err)
	require.NotEmpty(t, view.Winner, "AI match must reach a winner within the step budget")

	// The recorded history replays to the identical final state.
	history, err := engine.History("full-match", 0)
	require.NoError(t, err)
	final, err := engine.Replay("full-match", players, controllers, 4242, history)
	require.NoError(t, err)
	assert.Equal(t, history[len(history)-1].Checksum, final)
}
