package game

import (
	"github.com/Farjord/dronewars-server/internal/game/targeting"
)

// This file holds the static definition tables the engine consumes
// read-only: drone stats, card effects and ship sections. The tables are
// data, not logic; the resolver and processor never special-case a card by
// name.

// DroneAbilityKind names a passive drone ability.
type DroneAbilityKind string

const (
	// AbilityGuardian forces incoming attacks in the drone's lane onto it.
	AbilityGuardian DroneAbilityKind = "GUARDIAN"
	// AbilityAlwaysIntercepts lets the drone intercept regardless of speed.
	AbilityAlwaysIntercepts DroneAbilityKind = "ALWAYS_INTERCEPTS"
	// AbilityLaneAura grants a continuous stat bonus to friendly drones in
	// the same lane.
	AbilityLaneAura DroneAbilityKind = "LANE_AURA"
	// AbilityPiercing makes attack damage bypass drone shields.
	AbilityPiercing DroneAbilityKind = "PIERCING"
)

// DroneAbility is the data-driven passive ability of a drone definition.
type DroneAbility struct {
	Kind  DroneAbilityKind
	Stat  string // for LANE_AURA
	Delta int    // for LANE_AURA
}

// ActivatedAbility is an ability a drone can use as its activation for the
// turn, resolved through the generic `ability` action.
type ActivatedAbility struct {
	Cost      int // energy
	Exhausts  bool
	Targeting targeting.Definition
	Effect    EffectDefinition
}

// DroneDefinition is the static description of a deployable drone.
type DroneDefinition struct {
	Name      string
	Cost      int // deployment energy cost
	Attack    int
	Hull      int
	Shields   int
	Speed     int
	Ability   *DroneAbility
	Activated *ActivatedAbility
}

// EffectKind names a card effect.
type EffectKind string

const (
	EffectDamage        EffectKind = "DAMAGE"
	EffectHeal          EffectKind = "HEAL"
	EffectDraw          EffectKind = "DRAW"
	EffectSearchAndDraw EffectKind = "SEARCH_AND_DRAW"
	EffectMovement      EffectKind = "MOVEMENT"
	EffectStatus        EffectKind = "STATUS"
	EffectLaneDamage    EffectKind = "LANE_DAMAGE"
	EffectReadyDrone    EffectKind = "READY_DRONE"
)

// EffectDefinition is the data-driven effect of a card.
type EffectDefinition struct {
	Kind   EffectKind
	Value  int        // damage amount, heal amount, cards drawn, drones moved
	Status StatusKind // for STATUS effects
}

// AdditionalCost is an optional secondary cost beyond energy.
type AdditionalCost struct {
	Momentum int
	Discard  int // cards discarded from hand, chosen by the player
}

// CardDefinition is the static description of a playable card.
type CardDefinition struct {
	Name           string
	Cost           int
	Effect         EffectDefinition
	Targeting      targeting.Definition
	AdditionalCost *AdditionalCost
}

// SectionAbilityKind names a ship section's activated ability.
type SectionAbilityKind string

const (
	// SectionAbilityEnergySurge grants bonus energy this round.
	SectionAbilityEnergySurge SectionAbilityKind = "ENERGY_SURGE"
	// SectionAbilityRecalculate reopens shield allocation mid-round.
	SectionAbilityRecalculate SectionAbilityKind = "RECALCULATE"
	// SectionAbilityTargetLock applies TARGET_LOCKED to an enemy drone.
	SectionAbilityTargetLock SectionAbilityKind = "TARGET_LOCK"
	// SectionAbilityRecall returns a friendly drone to its owner's hand pool.
	SectionAbilityRecall SectionAbilityKind = "RECALL"
)

// SectionDefinition is the static description of a ship section.
type SectionDefinition struct {
	Name       string
	Hull       int
	MaxShields int
	Abilities  []SectionAbilityKind
}

// SectionAbilityCost is the energy cost of each section ability. Every
// section ability may be used once per round while its section is intact.
var SectionAbilityCost = map[SectionAbilityKind]int{
	SectionAbilityEnergySurge: 0,
	SectionAbilityRecalculate: 1,
	SectionAbilityTargetLock:  2,
	SectionAbilityRecall:      2,
}

// SectionOrder is the fixed iteration order for ship sections.
var SectionOrder = []string{"bridge", "powerCell", "droneControlHub"}

// SectionTable is the read-only ship section table.
var SectionTable = map[string]SectionDefinition{
	"bridge": {
		Name:       "bridge",
		Hull:       10,
		MaxShields: 3,
		Abilities:  []SectionAbilityKind{SectionAbilityTargetLock, SectionAbilityRecalculate},
	},
	"powerCell": {
		Name:       "powerCell",
		Hull:       10,
		MaxShields: 3,
		Abilities:  []SectionAbilityKind{SectionAbilityEnergySurge},
	},
	"droneControlHub": {
		Name:       "droneControlHub",
		Hull:       10,
		MaxShields: 3,
		Abilities:  []SectionAbilityKind{SectionAbilityRecall},
	},
}

// DroneTable is the read-only drone definition table.
var DroneTable = map[string]DroneDefinition{
	"Scout": {
		Name: "Scout", Cost: 1, Attack: 1, Hull: 1, Shields: 0, Speed: 5,
		Activated: &ActivatedAbility{
			Cost: 1, Exhausts: true,
			Targeting: targeting.Definition{
				Type:     targeting.TargetDrone,
				Affinity: targeting.AffinityEnemy,
				Location: targeting.LocationSameLane,
			},
			Effect: EffectDefinition{Kind: EffectStatus, Status: StatusMarked, Value: 1},
		},
	},
	"Interceptor": {
		Name: "Interceptor", Cost: 2, Attack: 1, Hull: 2, Shields: 1, Speed: 4,
		Ability: &DroneAbility{Kind: AbilityAlwaysIntercepts},
	},
	"Fighter": {
		Name: "Fighter", Cost: 2, Attack: 2, Hull: 2, Shields: 1, Speed: 3,
	},
	"Guardian": {
		Name: "Guardian", Cost: 3, Attack: 1, Hull: 4, Shields: 2, Speed: 1,
		Ability: &DroneAbility{Kind: AbilityGuardian},
	},
	"Bomber": {
		Name: "Bomber", Cost: 3, Attack: 4, Hull: 2, Shields: 0, Speed: 2,
		Ability: &DroneAbility{Kind: AbilityPiercing},
	},
	"CommandDrone": {
		Name: "CommandDrone", Cost: 4, Attack: 1, Hull: 3, Shields: 2, Speed: 2,
		Ability: &DroneAbility{Kind: AbilityLaneAura, Stat: "attack", Delta: 1},
	},
	"HeavyFighter": {
		Name: "HeavyFighter", Cost: 4, Attack: 3, Hull: 4, Shields: 2, Speed: 2,
		Activated: &ActivatedAbility{
			Cost: 2, Exhausts: true,
			Targeting: targeting.Definition{
				Type:     targeting.TargetDrone,
				Affinity: targeting.AffinityFriendly,
				Location: targeting.LocationSameLane,
			},
			Effect: EffectDefinition{Kind: EffectHeal, Value: 2},
		},
	},
}

// CardTable is the read-only card definition table.
var CardTable = map[string]CardDefinition{
	"LaserBlast": {
		Name: "LaserBlast", Cost: 2,
		Effect: EffectDefinition{Kind: EffectDamage, Value: 2},
		Targeting: targeting.Definition{
			Type:     targeting.TargetDrone,
			Affinity: targeting.AffinityEnemy,
		},
	},
	"NaniteRepair": {
		Name: "NaniteRepair", Cost: 1,
		Effect: EffectDefinition{Kind: EffectHeal, Value: 2},
		Targeting: targeting.Definition{
			Type:     targeting.TargetDrone,
			Affinity: targeting.AffinityFriendly,
		},
	},
	"StasisSnare": {
		Name: "StasisSnare", Cost: 2,
		Effect: EffectDefinition{Kind: EffectStatus, Status: StatusSnared, Value: 1},
		Targeting: targeting.Definition{
			Type:     targeting.TargetDrone,
			Affinity: targeting.AffinityEnemy,
		},
	},
	"SignalJammer": {
		Name: "SignalJammer", Cost: 2,
		Effect: EffectDefinition{Kind: EffectStatus, Status: StatusSuppressed, Value: 1},
		Targeting: targeting.Definition{
			Type:     targeting.TargetDrone,
			Affinity: targeting.AffinityEnemy,
		},
	},
	"ResupplyDrop": {
		Name: "ResupplyDrop", Cost: 1,
		Effect:    EffectDefinition{Kind: EffectDraw, Value: 2},
		Targeting: targeting.Definition{Type: targeting.TargetNone},
	},
	"DeepScan": {
		Name: "DeepScan", Cost: 2,
		Effect:    EffectDefinition{Kind: EffectSearchAndDraw, Value: 1},
		Targeting: targeting.Definition{Type: targeting.TargetNone},
	},
	"Redeployment": {
		Name: "Redeployment", Cost: 1,
		Effect: EffectDefinition{Kind: EffectMovement, Value: 2},
		Targeting: targeting.Definition{
			Type:     targeting.TargetLane,
			Affinity: targeting.AffinityFriendly,
		},
	},
	"PlasmaBarrage": {
		Name: "PlasmaBarrage", Cost: 4,
		Effect: EffectDefinition{Kind: EffectLaneDamage, Value: 1},
		Targeting: targeting.Definition{
			Type:     targeting.TargetLane,
			Affinity: targeting.AffinityEnemy,
		},
		AdditionalCost: &AdditionalCost{Momentum: 1},
	},
	"Overcharge": {
		Name: "Overcharge", Cost: 0,
		Effect: EffectDefinition{Kind: EffectReadyDrone, Value: 1},
		Targeting: targeting.Definition{
			Type:     targeting.TargetDrone,
			Affinity: targeting.AffinityFriendly,
			Filter:   &targeting.StatFilter{Stat: "cost", Comparison: targeting.CompareLTE, Value: 3},
		},
		AdditionalCost: &AdditionalCost{Discard: 1},
	},
	"FocusFire": {
		Name: "FocusFire", Cost: 3,
		Effect: EffectDefinition{Kind: EffectDamage, Value: 3},
		Targeting: targeting.Definition{
			Type:     targeting.TargetDrone,
			Affinity: targeting.AffinityEnemy,
			Filter:   &targeting.StatFilter{Stat: "speed", Comparison: targeting.CompareLTE, Value: 2},
		},
	},
}

// DefaultDeck is the deck list both players start with when the lobby does
// not supply one: 2-4 copies of each card in a fixed order, shuffled by the
// match's seeded RNG.
var DefaultDeck = []string{
	"LaserBlast", "LaserBlast", "LaserBlast", "LaserBlast",
	"NaniteRepair", "NaniteRepair", "NaniteRepair",
	"StasisSnare", "StasisSnare", "StasisSnare",
	"SignalJammer", "SignalJammer", "SignalJammer",
	"ResupplyDrop", "ResupplyDrop", "ResupplyDrop",
	"DeepScan", "DeepScan",
	"Redeployment", "Redeployment", "Redeployment",
	"PlasmaBarrage", "PlasmaBarrage",
	"Overcharge", "Overcharge",
	"FocusFire", "FocusFire", "FocusFire",
}

// DefaultDronePool is the set of drone types available for deployment when
// the lobby does not supply one.
var DefaultDronePool = []string{
	"Scout", "Interceptor", "Fighter", "Guardian", "Bomber", "CommandDrone", "HeavyFighter",
}
