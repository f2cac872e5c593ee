package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChecksumIgnoresMatchID(t *testing.T) {
	players := [2]string{"alice", "bob"}
	controllers := [2]Controller{ControllerHuman, ControllerHuman}

	a := newGameState("match-a", players, controllers, 77)
	b := newGameState("match-b", players, controllers, 77)

	assert.Equal(t, a.checksum(), b.checksum(),
		"same seed under different match IDs must hash equal")
}

func TestChecksumDiffersBySeed(t *testing.T) {
	players := [2]string{"alice", "bob"}
	controllers := [2]Controller{ControllerHuman, ControllerHuman}

	a := newGameState("m", players, controllers, 1)
	b := newGameState("m", players, controllers, 2)

	assert.NotEqual(t, a.checksum(), b.checksum())
}

func TestChecksumReflectsStateChange(t *testing.T) {
	gs := newGameState("m", [2]string{"alice", "bob"}, [2]Controller{ControllerHuman, ControllerHuman}, 5)
	before := gs.checksum()
	gs.players["alice"].Energy--
	assert.NotEqual(t, before, gs.checksum())

	gs.players["alice"].Energy++
	assert.Equal(t, before, gs.checksum(), "restoring the state restores the checksum")
}

func TestChecksumStable(t *testing.T) {
	gs := newGameState("m", [2]string{"alice", "bob"}, [2]Controller{ControllerHuman, ControllerHuman}, 5)
	gs.placeDrone(gs.players["alice"], "CommandDrone", "lane2")
	gs.placeDrone(gs.players["alice"], "Fighter", "lane2")
	gs.players["bob"].UsedAbilities[SectionAbilityRecall] = true

	first := gs.checksum()
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, gs.checksum(), "checksum must not depend on map iteration order")
	}
}
